package settler

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/validation"
)

var (
	// ErrSettlementDoesNotExist is returned for an order hash without a record
	ErrSettlementDoesNotExist = errors.New("settlement does not exist")
	// ErrSettlementAlreadyExists is returned when an order is initiated twice
	ErrSettlementAlreadyExists = errors.New("settlement already exists")
	// ErrSettlementAlreadyChallenged is returned when challenging a challenged settlement
	ErrSettlementAlreadyChallenged = errors.New("settlement already challenged")
	// ErrSettlementAlreadyCompleted is returned for operations on a terminal settlement
	ErrSettlementAlreadyCompleted = errors.New("settlement already completed")
	// ErrInvalidSettler is returned for orders bound to another settler
	ErrInvalidSettler = errors.New("invalid settler")
	// ErrInitiateDeadlinePassed is returned when initiating an expired order
	ErrInitiateDeadlinePassed = errors.New("initiate deadline passed")
	// ErrChallengeDeadlinePassed is returned when challenging after the window
	ErrChallengeDeadlinePassed = errors.New("challenge deadline passed")
	// ErrChallengeDeadlineNotPassed is returned when cancelling while the window is open
	ErrChallengeDeadlineNotPassed = errors.New("challenge deadline not passed")
	// ErrOptimisticDeadlineNotPassed is returned when finalizing an unchallenged settlement too early
	ErrOptimisticDeadlineNotPassed = errors.New("optimistic deadline not passed")
	// ErrInvalidSigner is returned when the permit signer is not the offerer
	ErrInvalidSigner = errors.New("invalid signer")
	// ErrValidationFailed is returned when the order's validation contract rejects the filler
	ErrValidationFailed = validation.ErrValidationFailed

	// ErrOracleNotFound is returned when the settlement oracle address has no oracle
	ErrOracleNotFound = errors.New("settlement oracle not found")
	// ErrOracleUnavailable wraps failures reading the oracle
	ErrOracleUnavailable = errors.New("settlement oracle unavailable")
	// ErrFillRecordNotFound is returned when the oracle has not seen a fill
	ErrFillRecordNotFound = errors.New("fill record not found")
	// ErrWrongFiller is returned when the attested filler is not the target chain filler
	ErrWrongFiller = errors.New("fill performed by wrong filler")
	// ErrFillDeadlineExceeded is returned when the attested fill happened after the fill deadline
	ErrFillDeadlineExceeded = errors.New("fill deadline exceeded")
	// ErrOutputsLengthMismatch is returned when the attested outputs differ in count
	ErrOutputsLengthMismatch = errors.New("outputs length mismatch")
	// ErrOutputTokenMismatch is returned when an attested output moved another token
	ErrOutputTokenMismatch = errors.New("output token mismatch")
	// ErrOutputAmountMismatch is returned when an attested output moved another amount
	ErrOutputAmountMismatch = errors.New("output amount mismatch")
	// ErrOutputRecipientMismatch is returned when an attested output paid someone else
	ErrOutputRecipientMismatch = errors.New("output recipient mismatch")
	// ErrOutputChainMismatch is returned when an attested output landed on another chain
	ErrOutputChainMismatch = errors.New("output chain mismatch")
)

// SettlementError ties a failure to the settlement it happened on
type SettlementError struct {
	OrderHash common.Hash
	Err       error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement %s: %v", e.OrderHash.Hex(), e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a settlement failure to a label. The keeper uses it to
// decide what to do next and the metrics use it as error_type.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, ErrSettlementAlreadyCompleted), errors.Is(err, ErrSettlementAlreadyExists),
		errors.Is(err, ErrSettlementAlreadyChallenged):
		return "already_processed"
	case errors.Is(err, ErrChallengeDeadlineNotPassed), errors.Is(err, ErrOptimisticDeadlineNotPassed):
		return "too_early"
	case errors.Is(err, ErrFillRecordNotFound), errors.Is(err, ErrWrongFiller), errors.Is(err, ErrFillDeadlineExceeded),
		errors.Is(err, ErrOutputsLengthMismatch), errors.Is(err, ErrOutputTokenMismatch),
		errors.Is(err, ErrOutputAmountMismatch), errors.Is(err, ErrOutputRecipientMismatch),
		errors.Is(err, ErrOutputChainMismatch):
		return "fill_not_attested"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	}
	return "permanent"
}
