// Package orders decodes signed order blobs and resolves them into the
// canonical form the settlement engines execute. Resolution is a pure
// function of the blob and the block timestamp.
package orders

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// Type discriminates order encodings
type Type uint8

const (
	TypeLimit Type = iota + 1
	TypeDutchLimit
	TypeCrossChainLimit
)

func (t Type) String() string {
	switch t {
	case TypeLimit:
		return "limit"
	case TypeDutchLimit:
		return "dutch_limit"
	case TypeCrossChainLimit:
		return "cross_chain_limit"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

var (
	// ErrUnsupportedOrderType is returned for a discriminant the engine cannot resolve
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	// ErrNoOutputs is returned for orders without outputs
	ErrNoOutputs = errors.New("order has no outputs")
	// ErrEndTimeBeforeStart is returned when a decay window ends before it starts
	ErrEndTimeBeforeStart = errors.New("decay end time before start time")
	// ErrIncorrectAmounts is returned when decay moves an amount against the offerer
	ErrIncorrectAmounts = errors.New("incorrect decay amounts")
)

// Order is any order type that can be encoded into a blob
type Order interface {
	Type() Type
	Encode() ([]byte, error)
}

// Hash returns the order hash: keccak256 over the undecoded blob, so it does
// not depend on when the order is resolved.
func Hash(blob []byte) common.Hash {
	return crypto.Keccak256Hash(blob)
}

// LimitOrder trades fixed amounts
type LimitOrder struct {
	Info    models.OrderInfo
	Input   TokenAmount
	Outputs []models.OutputToken
}

// TokenAmount is a token with a fixed amount
type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

func (o *LimitOrder) Type() Type { return TypeLimit }

// DutchLimitOrder decays linearly between DecayStartTime and DecayEndTime:
// the input can only grow and the outputs can only shrink.
type DutchLimitOrder struct {
	Info           models.OrderInfo
	DecayStartTime uint64
	DecayEndTime   uint64
	Input          DutchInput
	Outputs        []DutchOutput
}

// DutchInput is an input amount increasing over the decay window
type DutchInput struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
}

// DutchOutput is an output amount decreasing over the decay window
type DutchOutput struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
	Recipient   common.Address
}

func (o *DutchLimitOrder) Type() Type { return TypeDutchLimit }

// CrossChainLimitOrder is settled by the cross-chain settler: outputs are
// delivered on other chains and proven through a settlement oracle.
type CrossChainLimitOrder struct {
	Info                 models.SettlementInfo
	Input                TokenAmount
	FillerCollateral     models.Collateral
	ChallengerCollateral models.Collateral
	Outputs              []models.CrossChainOutput
}

func (o *CrossChainLimitOrder) Type() Type { return TypeCrossChainLimit }
