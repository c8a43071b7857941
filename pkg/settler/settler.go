// Package settler escrows cross-chain orders on their origin chain and pays
// them out once the fill on the target chain is either unchallenged past the
// optimistic window or attested by the settlement oracle.
//
// Lifecycle: Pending -> {Challenged} -> {Success | Cancelled}. Records are
// never deleted and escrowed amounts are zeroed when they are paid out.
package settler

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"sort"
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

// Oracle attests fills that happened on a target chain
type Oracle interface {
	GetFillRecord(orderHash common.Hash) (models.FillRecord, error)
}

// Summary is the part of a record the keeper schedules on
type Summary struct {
	OrderHash          common.Hash             `json:"order_hash"`
	Status             models.SettlementStatus `json:"status"`
	FillDeadline       uint64                  `json:"fill_deadline"`
	ChallengeDeadline  uint64                  `json:"challenge_deadline"`
	OptimisticDeadline uint64                  `json:"optimistic_deadline"`
}

// transition is what an operation did, for metrics
type transition struct {
	from, to models.SettlementStatus
	created  bool
}

// Settler is the cross-chain settlement engine living at an address
type Settler struct {
	address common.Address
	ledger  *ledger.Ledger
	permit2 *permit.Permit2
	records *ledger.Table[common.Hash, models.Settlement]
	logger  logger.Logger
}

// New creates a settler at address
func New(address common.Address, l *ledger.Ledger, p2 *permit.Permit2, log logger.Logger) *Settler {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Settler{
		address: address,
		ledger:  l,
		permit2: p2,
		records: ledger.NewTable[common.Hash, models.Settlement](),
		logger:  log,
	}
}

// Address returns the address orders must name to be settled here
func (s *Settler) Address() common.Address {
	return s.address
}

// InitiateSettlement escrows the offerer's input and the caller's filler
// collateral for a cross-chain order the caller promises targetChainFiller
// will fill.
func (s *Settler) InitiateSettlement(caller common.Address, signed models.SignedOrder, targetChainFiller common.Address) (common.Hash, error) {
	orderHash := orders.Hash(signed.Order)
	err := s.run("initiate", orderHash, func(tx *ledger.Tx) (transition, error) {
		return transition{to: models.StatusPending, created: true}, s.initiate(tx, caller, signed, targetChainFiller)
	})
	return orderHash, err
}

func (s *Settler) initiate(tx *ledger.Tx, caller common.Address, signed models.SignedOrder, targetChainFiller common.Address) error {
	order, err := orders.ResolveCrossChain(signed, tx.Now())
	if err != nil {
		return err
	}
	if s.records.Has(tx, order.Hash) {
		return ErrSettlementAlreadyExists
	}
	if order.Info.Settler != s.address {
		return fmt.Errorf("%w: order names %s", ErrInvalidSettler, order.Info.Settler.Hex())
	}
	if tx.Now() > order.Info.InitiateDeadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrInitiateDeadlinePassed, order.Info.InitiateDeadline, tx.Now())
	}
	if err := validation.CheckCrossChainOrder(tx, caller, order); err != nil {
		return err
	}

	details := []permit.TransferDetail{{To: s.address, RequestedAmount: order.Input.Amount}}
	signer, err := s.permit2.PermitWitnessTransferFrom(tx, s.address, orders.PermitForCrossChain(order), details, order.Hash, permit.WitnessTypeString, order.Sig)
	if err != nil {
		return err
	}
	if signer != order.Info.Offerer {
		return fmt.Errorf("%w: signed by %s, offerer %s", ErrInvalidSigner, signer.Hex(), order.Info.Offerer.Hex())
	}
	if err := tx.TransferFrom(order.FillerCollateral.Token, s.address, caller, s.address, order.FillerCollateral.Amount); err != nil {
		return fmt.Errorf("failed to escrow filler collateral: %w", err)
	}

	now := tx.Now()
	record := models.Settlement{
		Status:               models.StatusPending,
		Offerer:              order.Info.Offerer,
		OriginChainFiller:    caller,
		TargetChainFiller:    targetChainFiller,
		SettlementOracle:     order.Info.SettlementOracle,
		FillDeadline:         addSaturating(now, order.Info.FillPeriod),
		ChallengeDeadline:    addSaturating(now, order.Info.OptimisticSettlementPeriod),
		OptimisticDeadline:   addSaturating(now, order.Info.OptimisticSettlementPeriod),
		Input:                models.Collateral{Token: order.Input.Token, Amount: order.Input.Amount},
		FillerCollateral:     order.FillerCollateral,
		ChallengerCollateral: order.ChallengerCollateral,
		Outputs:              order.Outputs,
	}
	s.records.Set(tx, order.Hash, record.Copy())

	tx.Emit(models.InitiateSettlementEvent{
		OrderHash:          order.Hash,
		Offerer:            record.Offerer,
		OriginChainFiller:  record.OriginChainFiller,
		TargetChainFiller:  record.TargetChainFiller,
		SettlementOracle:   record.SettlementOracle,
		InitiateDeadline:   order.Info.InitiateDeadline,
		ChallengeDeadline:  record.ChallengeDeadline,
		FillDeadline:       record.FillDeadline,
		OptimisticDeadline: record.OptimisticDeadline,
	})
	return nil
}

// ChallengeSettlement bonds the caller's challenger collateral against a
// pending settlement, forcing it to be proven through the oracle.
func (s *Settler) ChallengeSettlement(caller common.Address, orderHash common.Hash) error {
	return s.run("challenge", orderHash, func(tx *ledger.Tx) (transition, error) {
		record, err := s.load(tx, orderHash)
		if err != nil {
			return transition{}, err
		}
		switch {
		case record.Status == models.StatusChallenged:
			return transition{}, ErrSettlementAlreadyChallenged
		case record.Status.IsTerminal():
			return transition{}, ErrSettlementAlreadyCompleted
		case tx.Now() > record.ChallengeDeadline:
			return transition{}, fmt.Errorf("%w: deadline %d, now %d", ErrChallengeDeadlinePassed, record.ChallengeDeadline, tx.Now())
		}

		c := record.ChallengerCollateral
		if err := tx.TransferFrom(c.Token, s.address, caller, s.address, c.Amount); err != nil {
			return transition{}, fmt.Errorf("failed to escrow challenger collateral: %w", err)
		}
		record.Challenger = caller
		record.Status = models.StatusChallenged
		s.records.Set(tx, orderHash, record)

		tx.Emit(models.SettlementChallengedEvent{OrderHash: orderHash, Challenger: caller})
		return transition{from: models.StatusPending, to: models.StatusChallenged}, nil
	})
}

// CancelSettlement refunds the offerer once the challenge window closed
// without a successful finalize. A challenged filler loses its collateral,
// split between the offerer and the challenger; an odd unit goes to the
// challenger.
func (s *Settler) CancelSettlement(caller common.Address, orderHash common.Hash) error {
	return s.run("cancel", orderHash, func(tx *ledger.Tx) (transition, error) {
		record, err := s.load(tx, orderHash)
		if err != nil {
			return transition{}, err
		}
		if record.Status.IsTerminal() {
			return transition{}, ErrSettlementAlreadyCompleted
		}
		if tx.Now() <= record.ChallengeDeadline {
			return transition{}, fmt.Errorf("%w: deadline %d, now %d", ErrChallengeDeadlineNotPassed, record.ChallengeDeadline, tx.Now())
		}

		from := record.Status
		if err := s.pay(tx, record.Input, record.Offerer); err != nil {
			return transition{}, err
		}
		if from == models.StatusChallenged {
			half := new(big.Int).Rsh(record.FillerCollateral.Amount, 1)
			rest := new(big.Int).Sub(record.FillerCollateral.Amount, half)
			if err := s.pay(tx, models.Collateral{Token: record.FillerCollateral.Token, Amount: half}, record.Offerer); err != nil {
				return transition{}, err
			}
			if err := s.pay(tx, models.Collateral{Token: record.FillerCollateral.Token, Amount: rest}, record.Challenger); err != nil {
				return transition{}, err
			}
			if err := s.pay(tx, record.ChallengerCollateral, record.Challenger); err != nil {
				return transition{}, err
			}
		} else {
			if err := s.pay(tx, record.FillerCollateral, record.OriginChainFiller); err != nil {
				return transition{}, err
			}
		}

		zeroAmounts(&record)
		record.Status = models.StatusCancelled
		s.records.Set(tx, orderHash, record)

		tx.Emit(models.SettlementCancelledEvent{OrderHash: orderHash, Challenged: from == models.StatusChallenged})
		s.logger.DebugWithComponent(logger.Settler, "Cancel of %s requested by %s", orderHash.Hex(), caller.Hex())
		return transition{from: from, to: models.StatusCancelled}, nil
	})
}

// FinalizeSettlement pays the origin chain filler. An unchallenged settlement
// finalizes once its optimistic deadline passed; a challenged one only when
// the settlement oracle attests the exact fill in time.
func (s *Settler) FinalizeSettlement(caller common.Address, orderHash common.Hash) error {
	// the oracle may be a remote chain, so it is read before the ledger lock
	check := s.readFill(orderHash)

	return s.run("finalize", orderHash, func(tx *ledger.Tx) (transition, error) {
		record, err := s.load(tx, orderHash)
		if err != nil {
			return transition{}, err
		}
		if record.Status.IsTerminal() {
			return transition{}, ErrSettlementAlreadyCompleted
		}

		from := record.Status
		if from == models.StatusPending {
			if tx.Now() <= record.OptimisticDeadline {
				return transition{}, fmt.Errorf("%w: deadline %d, now %d", ErrOptimisticDeadlineNotPassed, record.OptimisticDeadline, tx.Now())
			}
		} else {
			if err := verifyFill(record, check); err != nil {
				return transition{}, err
			}
		}

		if err := s.pay(tx, record.Input, record.OriginChainFiller); err != nil {
			return transition{}, err
		}
		if err := s.pay(tx, record.FillerCollateral, record.OriginChainFiller); err != nil {
			return transition{}, err
		}
		if from == models.StatusChallenged {
			if err := s.pay(tx, record.ChallengerCollateral, record.Challenger); err != nil {
				return transition{}, err
			}
		}

		zeroAmounts(&record)
		record.Status = models.StatusSuccess
		s.records.Set(tx, orderHash, record)

		tx.Emit(models.SettlementFinalizedEvent{
			OrderHash:         orderHash,
			OriginChainFiller: record.OriginChainFiller,
			Optimistic:        from == models.StatusPending,
		})
		s.logger.DebugWithComponent(logger.Settler, "Finalize of %s requested by %s", orderHash.Hex(), caller.Hex())
		return transition{from: from, to: models.StatusSuccess}, nil
	})
}

// fillCheck is an oracle answer fetched ahead of a finalize
type fillCheck struct {
	fetched bool
	fill    models.FillRecord
	err     error
}

// readFill asks the record's oracle for the fill when the record is
// challenged. The ledger is only locked while the oracle is looked up.
func (s *Settler) readFill(orderHash common.Hash) fillCheck {
	var (
		check  fillCheck
		oracle Oracle
	)
	_ = s.ledger.View(func(tx *ledger.Tx) error {
		record, ok := s.records.Get(tx, orderHash)
		if !ok || record.Status != models.StatusChallenged {
			return nil
		}
		check.fetched = true
		c, ok := tx.ContractAt(record.SettlementOracle)
		if !ok {
			check.err = fmt.Errorf("%w: nothing deployed at %s", ErrOracleNotFound, record.SettlementOracle.Hex())
			return nil
		}
		if oracle, ok = c.(Oracle); !ok {
			check.err = fmt.Errorf("%w: %s is not an oracle", ErrOracleNotFound, record.SettlementOracle.Hex())
		}
		return nil
	})
	if oracle == nil {
		return check
	}

	fill, err := oracle.GetFillRecord(orderHash)
	if err != nil {
		check.err = fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		return check
	}
	check.fill = fill
	return check
}

// verifyFill checks the oracle's record against what the order promised
func verifyFill(record models.Settlement, check fillCheck) error {
	if !check.fetched {
		// challenged after the oracle was read, the next attempt asks again
		return fmt.Errorf("%w: challenged while finalizing", ErrFillRecordNotFound)
	}
	if check.err != nil {
		return check.err
	}
	fill := check.fill
	if !fill.Exists() {
		return ErrFillRecordNotFound
	}
	if fill.Filler != record.TargetChainFiller {
		return fmt.Errorf("%w: attested %s, expected %s", ErrWrongFiller, fill.Filler.Hex(), record.TargetChainFiller.Hex())
	}
	if fill.FillTimestamp > record.FillDeadline {
		return fmt.Errorf("%w: filled at %d, deadline %d", ErrFillDeadlineExceeded, fill.FillTimestamp, record.FillDeadline)
	}
	return matchOutputs(record.Outputs, fill.Outputs)
}

func matchOutputs(want, got []models.CrossChainOutput) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: attested %d, expected %d", ErrOutputsLengthMismatch, len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		switch {
		case g.Token != w.Token:
			return fmt.Errorf("%w: output %d attested %s, expected %s", ErrOutputTokenMismatch, i, g.Token.Hex(), w.Token.Hex())
		case g.Amount == nil || g.Amount.Cmp(w.Amount) != 0:
			return fmt.Errorf("%w: output %d attested %v, expected %s", ErrOutputAmountMismatch, i, g.Amount, w.Amount)
		case g.Recipient != w.Recipient:
			return fmt.Errorf("%w: output %d attested %s, expected %s", ErrOutputRecipientMismatch, i, g.Recipient.Hex(), w.Recipient.Hex())
		case g.ChainID != w.ChainID:
			return fmt.Errorf("%w: output %d attested chain %d, expected %d", ErrOutputChainMismatch, i, g.ChainID, w.ChainID)
		}
	}
	return nil
}

// pay moves an escrowed amount out of the settler
func (s *Settler) pay(tx *ledger.Tx, c models.Collateral, to common.Address) error {
	if c.Amount == nil || c.Amount.Sign() == 0 {
		return nil
	}
	if err := tx.Transfer(c.Token, s.address, to, c.Amount); err != nil {
		return fmt.Errorf("failed to pay %s of %s to %s: %w", c.Amount, c.Token.Hex(), to.Hex(), err)
	}
	return nil
}

// load returns a private copy of the record, safe to modify and Set back
func (s *Settler) load(tx *ledger.Tx, orderHash common.Hash) (models.Settlement, error) {
	record, ok := s.records.Get(tx, orderHash)
	if !ok {
		return models.Settlement{}, ErrSettlementDoesNotExist
	}
	return record.Copy(), nil
}

// run executes op atomically and reports it
func (s *Settler) run(op string, orderHash common.Hash, fn func(tx *ledger.Tx) (transition, error)) error {
	startTime := time.Now()
	var t transition
	err := s.ledger.Atomic(func(tx *ledger.Tx) error {
		var err error
		t, err = fn(tx)
		return err
	})
	metrics.ExecutionTime.WithLabelValues(op).Observe(time.Since(startTime).Seconds())

	if err != nil {
		errorType := ClassifyError(err)
		metrics.SettlementErrors.WithLabelValues(op, errorType).Inc()
		s.logger.ErrorWithComponent(logger.Settler, "Failed to %s settlement %s (%s): %v", op, orderHash.Hex(), errorType, err)
		return &SettlementError{OrderHash: orderHash, Err: err}
	}

	if t.created {
		metrics.SettlementTransitions.WithLabelValues("initiated").Inc()
		metrics.SettlementsByStatus.WithLabelValues(t.to.String()).Inc()
	} else {
		metrics.SettlementTransitions.WithLabelValues(t.from.String() + "_to_" + t.to.String()).Inc()
		metrics.SettlementsByStatus.WithLabelValues(t.from.String()).Dec()
		metrics.SettlementsByStatus.WithLabelValues(t.to.String()).Inc()
	}
	s.logger.InfoWithComponent(logger.Settler, "Settlement %s is now %s (%s)", orderHash.Hex(), t.to, op)
	return nil
}

// Settlement returns a copy of the record for orderHash
func (s *Settler) Settlement(orderHash common.Hash) (models.Settlement, bool) {
	var (
		record models.Settlement
		ok     bool
	)
	_ = s.ledger.View(func(tx *ledger.Tx) error {
		var r models.Settlement
		if r, ok = s.records.Get(tx, orderHash); ok {
			record = r.Copy()
		}
		return nil
	})
	return record, ok
}

// Settlements lists every record ordered by order hash
func (s *Settler) Settlements() []Summary {
	var out []Summary
	_ = s.ledger.View(func(tx *ledger.Tx) error {
		out = make([]Summary, 0, s.records.Len(tx))
		s.records.Range(tx, func(hash common.Hash, r models.Settlement) bool {
			out = append(out, Summary{
				OrderHash:          hash,
				Status:             r.Status,
				FillDeadline:       r.FillDeadline,
				ChallengeDeadline:  r.ChallengeDeadline,
				OptimisticDeadline: r.OptimisticDeadline,
			})
			return true
		})
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].OrderHash[:], out[j].OrderHash[:]) < 0
	})
	return out
}

// Now returns the block timestamp the settler runs at
func (s *Settler) Now() uint64 {
	return s.ledger.Now()
}

func zeroAmounts(r *models.Settlement) {
	r.Input.Amount = new(big.Int)
	r.FillerCollateral.Amount = new(big.Int)
	r.ChallengerCollateral.Amount = new(big.Int)
}

func addSaturating(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
