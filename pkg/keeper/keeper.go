package keeper

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/settler"
)

const (
	ActionFinalize = "finalize"
	ActionCancel   = "cancel"

	jobBuffer = 100
)

// Engine is the part of the settler the keeper drives
type Engine interface {
	Settlements() []settler.Summary
	Now() uint64
	FinalizeSettlement(caller common.Address, orderHash common.Hash) error
	CancelSettlement(caller common.Address, orderHash common.Hash) error
}

// Keeper moves settlements out of Pending and Challenged once their
// deadlines allow it
type Keeper struct {
	engine   Engine
	caller   common.Address
	interval time.Duration
	workers  int
	jobs     chan settler.Summary
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[common.Hash]struct{}
	logger   logger.Logger
}

// New creates a keeper that submits transitions as caller
func New(engine Engine, caller common.Address, interval time.Duration, workers int, log logger.Logger) *Keeper {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if workers < 1 {
		workers = 1
	}
	return &Keeper{
		engine:   engine,
		caller:   caller,
		interval: interval,
		workers:  workers,
		jobs:     make(chan settler.Summary, jobBuffer),
		inflight: make(map[common.Hash]struct{}),
		logger:   log,
	}
}

// Due reports whether a record can be acted on at now
func Due(s settler.Summary, now uint64) bool {
	switch s.Status {
	case models.StatusPending:
		return now > s.OptimisticDeadline
	case models.StatusChallenged:
		return true
	}
	return false
}

// Start runs the worker pool and polls until ctx is done
func (k *Keeper) Start(ctx context.Context) error {
	k.logger.NoticeWithComponent(logger.Keeper, "Starting worker pool with %d workers", k.workers)
	for i := 0; i < k.workers; i++ {
		k.wg.Add(1)
		go k.worker(ctx, i)
	}

	k.logger.InfoWithComponent(logger.Keeper, "Starting keeper with polling interval %v", k.interval)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.NoticeWithComponent(logger.Keeper, "Context cancelled, shutting down keeper")
			k.wg.Wait()
			return nil
		case <-ticker.C:
			k.Poll(ctx)
		}
	}
}

// Poll queues every due settlement that is not already being processed and
// returns how many were queued
func (k *Keeper) Poll(ctx context.Context) int {
	runID := uuid.NewString()
	now := k.engine.Now()

	var due []settler.Summary
	for _, s := range k.engine.Settlements() {
		if Due(s, now) {
			due = append(due, s)
		}
	}
	metrics.KeeperPending.Set(float64(len(due)))
	k.logger.DebugWithComponent(logger.Keeper, "Run %s: %d settlements due at %d", runID, len(due), now)

	queued := 0
	for _, s := range due {
		if !k.claim(s.OrderHash) {
			continue
		}
		select {
		case k.jobs <- s:
			queued++
		case <-ctx.Done():
			k.release(s.OrderHash)
			return queued
		}
	}
	if queued > 0 {
		k.logger.InfoWithComponent(logger.Keeper, "Run %s: queued %d settlements", runID, queued)
	}
	return queued
}

func (k *Keeper) worker(ctx context.Context, id int) {
	defer k.wg.Done()
	k.logger.DebugWithComponent(logger.Keeper, "Starting worker %d", id)
	for {
		select {
		case <-ctx.Done():
			k.logger.DebugWithComponent(logger.Keeper, "Worker %d shutting down", id)
			return
		case s := <-k.jobs:
			startTime := time.Now()
			k.process(s)
			metrics.ExecutionTime.WithLabelValues("keeper").Observe(time.Since(startTime).Seconds())
			k.release(s.OrderHash)
		}
	}
}

// process finalizes a due settlement. A challenged one whose fill cannot be
// proven is cancelled once the challenge deadline passed; an unreachable
// oracle is retried on the next poll instead.
func (k *Keeper) process(s settler.Summary) {
	err := k.engine.FinalizeSettlement(k.caller, s.OrderHash)
	k.record(ActionFinalize, s.OrderHash, err)
	if err == nil || s.Status != models.StatusChallenged {
		return
	}

	switch settler.ClassifyError(err) {
	case "oracle_unavailable", "already_processed":
		return
	}
	if k.engine.Now() <= s.ChallengeDeadline {
		return
	}
	k.record(ActionCancel, s.OrderHash, k.engine.CancelSettlement(k.caller, s.OrderHash))
}

func (k *Keeper) record(action string, orderHash common.Hash, err error) {
	if err == nil {
		metrics.KeeperActions.WithLabelValues(action, "success").Inc()
		k.logger.InfoWithComponent(logger.Keeper, "Settlement %s: %s succeeded", orderHash.Hex(), action)
		return
	}
	errorType := settler.ClassifyError(err)
	metrics.KeeperActions.WithLabelValues(action, errorType).Inc()
	switch errorType {
	case "permanent":
		k.logger.ErrorWithComponent(logger.Keeper, "Settlement %s: %s failed: %v", orderHash.Hex(), action, err)
	default:
		k.logger.DebugWithComponent(logger.Keeper, "Settlement %s: %s deferred (%s): %v", orderHash.Hex(), action, errorType, err)
	}
}

func (k *Keeper) claim(orderHash common.Hash) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.inflight[orderHash]; busy {
		return false
	}
	k.inflight[orderHash] = struct{}{}
	return true
}

func (k *Keeper) release(orderHash common.Hash) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.inflight, orderHash)
}
