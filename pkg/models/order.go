package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderInfo is the part of an order shared by every order type
type OrderInfo struct {
	Reactor            common.Address `json:"reactor"`
	Offerer            common.Address `json:"offerer"`
	Nonce              *big.Int       `json:"nonce"`
	Deadline           uint64         `json:"deadline"`
	ValidationContract common.Address `json:"validation_contract"`
	ValidationData     []byte         `json:"validation_data"`
}

// HasValidation reports whether the order designates a validation contract
func (i OrderInfo) HasValidation() bool {
	return i.ValidationContract != (common.Address{})
}

// InputToken is the token given up by the offerer. MaxAmount is the amount the
// offerer signed for; Amount is what the order resolves to at fill time.
type InputToken struct {
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	MaxAmount *big.Int       `json:"max_amount"`
}

// OutputToken is a token the offerer expects to receive
type OutputToken struct {
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// ResolvedOrder is an order evaluated at a given block timestamp
type ResolvedOrder struct {
	Info    OrderInfo     `json:"info"`
	Input   InputToken    `json:"input"`
	Outputs []OutputToken `json:"outputs"`
	Sig     []byte        `json:"sig"`
	Hash    common.Hash   `json:"hash"`
}

// SignedOrder is an encoded order together with the offerer's signature
type SignedOrder struct {
	Order []byte `json:"order"`
	Sig   []byte `json:"sig"`
}
