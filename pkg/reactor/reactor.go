// Package reactor settles single chain orders. A batch of signed orders is
// resolved, validated, marked filled, funded from the offerers, handed to
// the filler's callback and paid out, all inside one atomic ledger unit.
package reactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/metrics"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/orders"
	"github.com/speedrun-hq/speedrun-settlement/pkg/permit"
	"github.com/speedrun-hq/speedrun-settlement/pkg/validation"
)

var (
	// ErrEmptyBatch is returned when ExecuteBatch receives no orders
	ErrEmptyBatch = errors.New("empty batch")
	// ErrInvalidReactor is returned for orders bound to another reactor
	ErrInvalidReactor = errors.New("invalid reactor")
	// ErrDeadlinePassed is returned for expired orders
	ErrDeadlinePassed = errors.New("deadline passed")
	// ErrOrderAlreadyFilled is returned when an order hash was filled before
	ErrOrderAlreadyFilled = errors.New("order already filled")
	// ErrInvalidSigner is returned when the permit signer is not the offerer
	ErrInvalidSigner = errors.New("invalid signer")
	// ErrFillContractNotFound is returned when nothing implementing FillContract lives at the fill address
	ErrFillContractNotFound = errors.New("fill contract not found")
	// ErrValidationFailed is returned when the order's validation contract rejects the filler
	ErrValidationFailed = validation.ErrValidationFailed
)

// OrderError ties a failure to the order that caused it
type OrderError struct {
	OrderHash common.Hash
	Err       error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %s: %v", e.OrderHash.Hex(), e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// FillContract is the filler's callback. It receives every resolved order of
// the batch after inputs were delivered to it and must leave enough output
// tokens, approved to the reactor, before it returns.
type FillContract interface {
	ReactorCallback(tx *ledger.Tx, resolved []*models.ResolvedOrder, fillData []byte) error
}

// Reactor is a single chain settlement engine living at an address
type Reactor struct {
	address common.Address
	ledger  *ledger.Ledger
	permit2 *permit.Permit2
	filled  *ledger.Table[common.Hash, struct{}]
	logger  logger.Logger
}

// New creates a reactor at address
func New(address common.Address, l *ledger.Ledger, p2 *permit.Permit2, log logger.Logger) *Reactor {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Reactor{
		address: address,
		ledger:  l,
		permit2: p2,
		filled:  ledger.NewTable[common.Hash, struct{}](),
		logger:  log,
	}
}

// Address returns the address orders must name to be executed here
func (r *Reactor) Address() common.Address {
	return r.address
}

// Execute fills one order
func (r *Reactor) Execute(caller common.Address, order models.SignedOrder, fillContract common.Address, fillData []byte) error {
	return r.ExecuteBatch(caller, []models.SignedOrder{order}, fillContract, fillData)
}

// ExecuteBatch fills every order or none of them
func (r *Reactor) ExecuteBatch(caller common.Address, signed []models.SignedOrder, fillContract common.Address, fillData []byte) error {
	startTime := time.Now()
	err := r.ledger.Atomic(func(tx *ledger.Tx) error {
		return r.executeBatch(tx, caller, signed, fillContract, fillData)
	})
	metrics.ExecutionTime.WithLabelValues("execute_batch").Observe(time.Since(startTime).Seconds())

	if err != nil {
		errorType := ClassifyError(err)
		metrics.BatchExecutions.WithLabelValues("failed").Inc()
		metrics.ReactorErrors.WithLabelValues(errorType).Inc()
		r.logger.ErrorWithComponent(logger.Reactor, "Batch of %d orders from %s reverted (%s): %v", len(signed), caller.Hex(), errorType, err)
		return err
	}

	metrics.BatchExecutions.WithLabelValues("success").Inc()
	metrics.BatchSize.Observe(float64(len(signed)))
	for _, s := range signed {
		if t, err := orders.TypeOf(s.Order); err == nil {
			metrics.OrdersFilled.WithLabelValues(t.String()).Inc()
		}
	}
	r.logger.InfoWithComponent(logger.Reactor, "Filled %d orders for %s via %s", len(signed), caller.Hex(), fillContract.Hex())
	return nil
}

func (r *Reactor) executeBatch(tx *ledger.Tx, caller common.Address, signed []models.SignedOrder, fillContract common.Address, fillData []byte) error {
	if len(signed) == 0 {
		return ErrEmptyBatch
	}

	resolved := make([]*models.ResolvedOrder, len(signed))
	for i, s := range signed {
		order, err := orders.Resolve(s, tx.Now())
		if err != nil {
			return &OrderError{OrderHash: orders.Hash(s.Order), Err: err}
		}
		resolved[i] = order
	}

	for _, order := range resolved {
		if err := r.prepare(tx, caller, order, fillContract); err != nil {
			return &OrderError{OrderHash: order.Hash, Err: err}
		}
	}

	callback, err := r.fillContractAt(tx, fillContract)
	if err != nil {
		return err
	}
	if err := callback.ReactorCallback(tx, resolved, fillData); err != nil {
		return fmt.Errorf("fill callback failed: %w", err)
	}

	for _, order := range resolved {
		for i, out := range order.Outputs {
			if err := tx.TransferFrom(out.Token, r.address, fillContract, out.Recipient, out.Amount); err != nil {
				return &OrderError{OrderHash: order.Hash, Err: fmt.Errorf("output %d to %s: %w", i, out.Recipient.Hex(), err)}
			}
		}
		tx.Emit(models.FillEvent{
			OrderHash: order.Hash,
			Filler:    caller,
			Nonce:     order.Info.Nonce,
			Offerer:   order.Info.Offerer,
		})
	}
	return nil
}

// prepare validates order, burns its hash and moves its input to the fill contract
func (r *Reactor) prepare(tx *ledger.Tx, caller common.Address, order *models.ResolvedOrder, fillContract common.Address) error {
	if order.Info.Reactor != r.address {
		return fmt.Errorf("%w: order names %s", ErrInvalidReactor, order.Info.Reactor.Hex())
	}
	if tx.Now() > order.Info.Deadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlinePassed, order.Info.Deadline, tx.Now())
	}
	if err := validation.CheckOrder(tx, caller, order); err != nil {
		return err
	}
	if !r.filled.TestAndSet(tx, order.Hash, struct{}{}) {
		return ErrOrderAlreadyFilled
	}

	details := []permit.TransferDetail{{To: fillContract, RequestedAmount: order.Input.Amount}}
	signer, err := r.permit2.PermitWitnessTransferFrom(tx, r.address, orders.PermitFor(order), details, order.Hash, permit.WitnessTypeString, order.Sig)
	if err != nil {
		return err
	}
	if signer != order.Info.Offerer {
		return fmt.Errorf("%w: signed by %s, offerer %s", ErrInvalidSigner, signer.Hex(), order.Info.Offerer.Hex())
	}
	return nil
}

func (r *Reactor) fillContractAt(tx *ledger.Tx, addr common.Address) (FillContract, error) {
	c, ok := tx.ContractAt(addr)
	if !ok {
		return nil, fmt.Errorf("%w: nothing deployed at %s", ErrFillContractNotFound, addr.Hex())
	}
	fc, ok := c.(FillContract)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no reactor callback", ErrFillContractNotFound, addr.Hex())
	}
	return fc, nil
}

// IsFilled reports whether the order hash has been consumed
func (r *Reactor) IsFilled(orderHash common.Hash) bool {
	filled := false
	_ = r.ledger.View(func(tx *ledger.Tx) error {
		filled = r.filled.Has(tx, orderHash)
		return nil
	})
	return filled
}

// Resolve evaluates a signed order at the current block time without
// executing it, the way a filler simulates an order before bidding.
func (r *Reactor) Resolve(order models.SignedOrder) (*models.ResolvedOrder, error) {
	return orders.Resolve(order, r.ledger.Now())
}

// ClassifyError maps a reverted batch to a metrics label
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, ErrOrderAlreadyFilled), errors.Is(err, permit.ErrInvalidNonce):
		return "already_filled"
	case errors.Is(err, ErrDeadlinePassed), errors.Is(err, permit.ErrSignatureExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSigner), errors.Is(err, permit.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrInvalidReactor):
		return "invalid_reactor"
	case errors.Is(err, ErrFillContractNotFound):
		return "invalid_fill_contract"
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInsufficientAllowance):
		return "insufficient_funds"
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, orders.ErrMalformedOrder), errors.Is(err, orders.ErrUnsupportedOrderType),
		errors.Is(err, orders.ErrNoOutputs), errors.Is(err, orders.ErrEndTimeBeforeStart),
		errors.Is(err, orders.ErrIncorrectAmounts):
		return "malformed_order"
	}
	return "unknown_error"
}
