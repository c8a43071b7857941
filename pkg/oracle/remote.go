package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settlement/pkg/contracts"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// DefaultCallTimeout bounds a single oracle read
const DefaultCallTimeout = 10 * time.Second

// FillInfoCaller is the read side of the on-chain oracle binding
type FillInfoCaller interface {
	GetFillInfo(opts *bind.CallOpts, orderId [32]byte) (contracts.SettlementOracleFillInfo, error)
}

// Remote reads attestations from an oracle contract on another chain. Reads
// go through a circuit breaker so a dead RPC fails fast.
type Remote struct {
	ctx     context.Context
	caller  FillInfoCaller
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	logger  logger.Logger
}

// NewRemote creates a remote oracle. ctx bounds the lifetime of every read.
func NewRemote(ctx context.Context, caller FillInfoCaller, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Remote {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Remote{
		ctx:     ctx,
		caller:  caller,
		breaker: breaker,
		timeout: DefaultCallTimeout,
		logger:  log,
	}
}

// Breaker returns the breaker guarding the reads
func (r *Remote) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

// GetFillRecord reads the attestation for orderHash from the oracle contract
func (r *Remote) GetFillRecord(orderHash common.Hash) (models.FillRecord, error) {
	var info contracts.SettlementOracleFillInfo
	err := r.breaker.Call(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
		defer cancel()

		var err error
		info, err = r.caller.GetFillInfo(&bind.CallOpts{Context: ctx}, orderHash)
		return err
	})
	if err != nil {
		metrics.OracleReads.WithLabelValues("remote", "error").Inc()
		r.logger.ErrorWithComponent(logger.Oracle, "Failed to read fill info for %s: %v", orderHash.Hex(), err)
		return models.FillRecord{}, fmt.Errorf("failed to read fill info: %w", err)
	}

	record, err := toFillRecord(info)
	if err != nil {
		metrics.OracleReads.WithLabelValues("remote", "error").Inc()
		return models.FillRecord{}, err
	}
	if record.Exists() {
		metrics.OracleReads.WithLabelValues("remote", "found").Inc()
	} else {
		metrics.OracleReads.WithLabelValues("remote", "missing").Inc()
	}
	return record, nil
}

func toFillRecord(info contracts.SettlementOracleFillInfo) (models.FillRecord, error) {
	record := models.FillRecord{Filler: info.Filler}
	if info.FillTimestamp != nil {
		if !info.FillTimestamp.IsUint64() {
			return models.FillRecord{}, fmt.Errorf("fill timestamp %s out of range", info.FillTimestamp)
		}
		record.FillTimestamp = info.FillTimestamp.Uint64()
	}
	record.Outputs = make([]models.CrossChainOutput, len(info.Outputs))
	for i, o := range info.Outputs {
		if o.ChainId == nil || !o.ChainId.IsUint64() {
			return models.FillRecord{}, fmt.Errorf("output %d chain id %v out of range", i, o.ChainId)
		}
		record.Outputs[i] = models.CrossChainOutput{
			Recipient: o.Recipient,
			Token:     o.Token,
			Amount:    o.Amount,
			ChainID:   o.ChainId.Uint64(),
		}
	}
	return record, nil
}
