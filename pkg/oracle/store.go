// Package oracle provides settlement oracles: sources of truth about fills
// that happened on a target chain.
package oracle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// ErrAlreadyAttested is returned when a fill is logged twice for one order
var ErrAlreadyAttested = errors.New("fill already attested")

// Store keeps fill attestations in memory. A missing record reads as the
// zero FillRecord, like an unset mapping entry on chain.
type Store struct {
	mu      sync.RWMutex
	records map[common.Hash]models.FillRecord
	logger  logger.Logger
}

// NewStore creates an empty attestation store
func NewStore(log logger.Logger) *Store {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Store{
		records: make(map[common.Hash]models.FillRecord),
		logger:  log,
	}
}

// LogFillRecord attests that record happened for orderHash. Attestations are final.
func (s *Store) LogFillRecord(orderHash common.Hash, record models.FillRecord) error {
	if !record.Exists() {
		return fmt.Errorf("fill record for %s has no filler", orderHash.Hex())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[orderHash]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAttested, orderHash.Hex())
	}
	s.records[orderHash] = copyRecord(record)
	s.logger.InfoWithComponent(logger.Oracle, "Attested fill of %s by %s at %d", orderHash.Hex(), record.Filler.Hex(), record.FillTimestamp)
	return nil
}

// GetFillRecord returns the attestation for orderHash
func (s *Store) GetFillRecord(orderHash common.Hash) (models.FillRecord, error) {
	s.mu.RLock()
	record, ok := s.records[orderHash]
	s.mu.RUnlock()

	if !ok {
		metrics.OracleReads.WithLabelValues("store", "missing").Inc()
		return models.FillRecord{}, nil
	}
	metrics.OracleReads.WithLabelValues("store", "found").Inc()
	return copyRecord(record), nil
}

func copyRecord(r models.FillRecord) models.FillRecord {
	out := r
	out.Outputs = make([]models.CrossChainOutput, len(r.Outputs))
	copy(out.Outputs, r.Outputs)
	return out
}
