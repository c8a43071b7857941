package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event names as they appear in the event log
const (
	EventFill                 = "Fill"
	EventInitiateSettlement   = "InitiateSettlement"
	EventSettlementChallenged = "SettlementChallenged"
	EventSettlementCancelled  = "SettlementCancelled"
	EventSettlementFinalized  = "SettlementFinalized"
)

// FillEvent is emitted once per order filled by the reactor
type FillEvent struct {
	OrderHash common.Hash    `json:"order_hash"`
	Filler    common.Address `json:"filler"`
	Nonce     *big.Int       `json:"nonce"`
	Offerer   common.Address `json:"offerer"`
}

func (FillEvent) Name() string { return EventFill }

// InitiateSettlementEvent is emitted when a cross-chain order is escrowed
type InitiateSettlementEvent struct {
	OrderHash          common.Hash    `json:"order_hash"`
	Offerer            common.Address `json:"offerer"`
	OriginChainFiller  common.Address `json:"origin_chain_filler"`
	TargetChainFiller  common.Address `json:"target_chain_filler"`
	SettlementOracle   common.Address `json:"settlement_oracle"`
	InitiateDeadline   uint64         `json:"initiate_deadline"`
	ChallengeDeadline  uint64         `json:"challenge_deadline"`
	FillDeadline       uint64         `json:"fill_deadline"`
	OptimisticDeadline uint64         `json:"optimistic_deadline"`
}

func (InitiateSettlementEvent) Name() string { return EventInitiateSettlement }

// SettlementChallengedEvent is emitted when a challenger bonds collateral
type SettlementChallengedEvent struct {
	OrderHash  common.Hash    `json:"order_hash"`
	Challenger common.Address `json:"challenger"`
}

func (SettlementChallengedEvent) Name() string { return EventSettlementChallenged }

// SettlementCancelledEvent is emitted when escrow is refunded
type SettlementCancelledEvent struct {
	OrderHash  common.Hash `json:"order_hash"`
	Challenged bool        `json:"challenged"`
}

func (SettlementCancelledEvent) Name() string { return EventSettlementCancelled }

// SettlementFinalizedEvent is emitted when the origin chain filler is paid
type SettlementFinalizedEvent struct {
	OrderHash         common.Hash    `json:"order_hash"`
	OriginChainFiller common.Address `json:"origin_chain_filler"`
	Optimistic        bool           `json:"optimistic"`
}

func (SettlementFinalizedEvent) Name() string { return EventSettlementFinalized }
