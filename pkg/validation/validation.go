// Package validation holds the policy hooks an order can designate to accept
// or reject the filler that executes it.
package validation

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// ErrValidationFailed is returned when the designated validation contract rejects a filler
var ErrValidationFailed = errors.New("validation failed")

// OrderValidator is consulted by the reactor before an order is filled. now
// is the block timestamp of the unit executing the order.
type OrderValidator interface {
	Validate(filler common.Address, order *models.ResolvedOrder, now uint64) bool
}

// CrossChainValidator is consulted by the settler before a settlement is initiated
type CrossChainValidator interface {
	ValidateCrossChain(filler common.Address, order *models.ResolvedCrossChainOrder, now uint64) bool
}

// CheckOrder runs the validation contract of order, if any, against filler
func CheckOrder(tx *ledger.Tx, filler common.Address, order *models.ResolvedOrder) error {
	if !order.Info.HasValidation() {
		return nil
	}
	v, ok := lookup[OrderValidator](tx, order.Info.ValidationContract)
	if !ok {
		return fmt.Errorf("%w: no order validator at %s", ErrValidationFailed, order.Info.ValidationContract.Hex())
	}
	if !v.Validate(filler, order, tx.Now()) {
		return fmt.Errorf("%w: filler %s rejected", ErrValidationFailed, filler.Hex())
	}
	return nil
}

// CheckCrossChainOrder runs the validation contract of a cross-chain order, if any, against filler
func CheckCrossChainOrder(tx *ledger.Tx, filler common.Address, order *models.ResolvedCrossChainOrder) error {
	if !order.Info.HasValidation() {
		return nil
	}
	v, ok := lookup[CrossChainValidator](tx, order.Info.ValidationContract)
	if !ok {
		return fmt.Errorf("%w: no cross-chain validator at %s", ErrValidationFailed, order.Info.ValidationContract.Hex())
	}
	if !v.ValidateCrossChain(filler, order, tx.Now()) {
		return fmt.Errorf("%w: filler %s rejected", ErrValidationFailed, filler.Hex())
	}
	return nil
}

func lookup[T any](tx *ledger.Tx, addr common.Address) (T, bool) {
	var zero T
	c, ok := tx.ContractAt(addr)
	if !ok {
		return zero, false
	}
	v, ok := c.(T)
	return v, ok
}
