package reactor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

// DirectFiller fills orders out of the inventory it already holds. Inputs it
// receives stay with it.
type DirectFiller struct {
	address common.Address
	reactor common.Address
}

// NewDirectFiller creates a fill contract at address serving reactor
func NewDirectFiller(address, reactor common.Address) *DirectFiller {
	return &DirectFiller{address: address, reactor: reactor}
}

// Address returns where the filler is deployed
func (d *DirectFiller) Address() common.Address {
	return d.address
}

// ReactorCallback approves the reactor to pull every output token
func (d *DirectFiller) ReactorCallback(tx *ledger.Tx, resolved []*models.ResolvedOrder, _ []byte) error {
	approved := make(map[common.Address]bool)
	for _, order := range resolved {
		for _, out := range order.Outputs {
			if approved[out.Token] {
				continue
			}
			if err := tx.Approve(out.Token, d.address, d.reactor, ledger.MaxUint256); err != nil {
				return err
			}
			approved[out.Token] = true
		}
	}
	return nil
}
