package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementStatus is the state of a cross-chain settlement
type SettlementStatus uint8

const (
	// StatusPending means input and filler collateral are escrowed and nobody has challenged
	StatusPending SettlementStatus = iota
	// StatusChallenged means a challenger bonded collateral against the fill
	StatusChallenged
	// StatusCancelled is terminal: escrow refunded, filler slashed if challenged
	StatusCancelled
	// StatusSuccess is terminal: the origin chain filler was paid
	StatusSuccess
)

// String returns the status name
func (s SettlementStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusChallenged:
		return "challenged"
	case StatusCancelled:
		return "cancelled"
	case StatusSuccess:
		return "success"
	}
	return "unknown"
}

// MarshalText renders the status by name in JSON
func (s SettlementStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name
func (s *SettlementStatus) UnmarshalText(text []byte) error {
	for _, st := range []SettlementStatus{StatusPending, StatusChallenged, StatusCancelled, StatusSuccess} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown settlement status %q", text)
}

// IsTerminal reports whether no further transition is possible
func (s SettlementStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusSuccess
}

// SettlementInfo is the shared part of a cross-chain order
type SettlementInfo struct {
	Settler                    common.Address `json:"settler"`
	Offerer                    common.Address `json:"offerer"`
	Nonce                      *big.Int       `json:"nonce"`
	InitiateDeadline           uint64         `json:"initiate_deadline"`
	FillPeriod                 uint64         `json:"fill_period"`
	OptimisticSettlementPeriod uint64         `json:"optimistic_settlement_period"`
	SettlementOracle           common.Address `json:"settlement_oracle"`
	ValidationContract         common.Address `json:"validation_contract"`
	ValidationData             []byte         `json:"validation_data"`
}

// HasValidation reports whether the order designates a validation contract
func (i SettlementInfo) HasValidation() bool {
	return i.ValidationContract != (common.Address{})
}

// Collateral is an amount of a token bonded by a filler or challenger
type Collateral struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// CrossChainOutput is an output delivered on a destination chain
type CrossChainOutput struct {
	Recipient common.Address `json:"recipient"`
	Token     common.Address `json:"token"`
	Amount    *big.Int       `json:"amount"`
	ChainID   uint64         `json:"chain_id"`
}

// ResolvedCrossChainOrder is a cross-chain order evaluated for initiation
type ResolvedCrossChainOrder struct {
	Info                 SettlementInfo     `json:"info"`
	Input                InputToken         `json:"input"`
	FillerCollateral     Collateral         `json:"filler_collateral"`
	ChallengerCollateral Collateral         `json:"challenger_collateral"`
	Outputs              []CrossChainOutput `json:"outputs"`
	Sig                  []byte             `json:"sig"`
	Hash                 common.Hash        `json:"hash"`
}

// Settlement is the persisted escrow record of a cross-chain order
type Settlement struct {
	Status               SettlementStatus   `json:"status"`
	Offerer              common.Address     `json:"offerer"`
	OriginChainFiller    common.Address     `json:"origin_chain_filler"`
	TargetChainFiller    common.Address     `json:"target_chain_filler"`
	Challenger           common.Address     `json:"challenger"`
	SettlementOracle     common.Address     `json:"settlement_oracle"`
	FillDeadline         uint64             `json:"fill_deadline"`
	ChallengeDeadline    uint64             `json:"challenge_deadline"`
	OptimisticDeadline   uint64             `json:"optimistic_deadline"`
	Input                Collateral         `json:"input"`
	FillerCollateral     Collateral         `json:"filler_collateral"`
	ChallengerCollateral Collateral         `json:"challenger_collateral"`
	Outputs              []CrossChainOutput `json:"outputs"`
}

// Copy returns a deep copy so stored records are never aliased
func (s Settlement) Copy() Settlement {
	out := s
	out.Input = s.Input.copy()
	out.FillerCollateral = s.FillerCollateral.copy()
	out.ChallengerCollateral = s.ChallengerCollateral.copy()
	out.Outputs = make([]CrossChainOutput, len(s.Outputs))
	for i, o := range s.Outputs {
		out.Outputs[i] = o
		out.Outputs[i].Amount = cloneInt(o.Amount)
	}
	return out
}

func (c Collateral) copy() Collateral {
	return Collateral{Token: c.Token, Amount: cloneInt(c.Amount)}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// FillRecord is what a settlement oracle attests about a target chain fill
type FillRecord struct {
	Filler        common.Address     `json:"filler"`
	FillTimestamp uint64             `json:"fill_timestamp"`
	Outputs       []CrossChainOutput `json:"outputs"`
}

// Exists reports whether the oracle has seen a fill
func (r FillRecord) Exists() bool {
	return r.Filler != (common.Address{})
}
