package validation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

var exclusivityFormat = abi.Arguments{
	{Name: "filler", Type: mustType("address")},
	{Name: "lastExclusiveTimestamp", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("validation: bad abi type %s: %v", t, err))
	}
	return typ
}

// ExclusiveFiller reserves an order for one filler until a timestamp. The
// order's validation data is abi.encode(address filler, uint256 lastExclusiveTimestamp);
// after that timestamp anyone may fill. Undecodable data rejects.
type ExclusiveFiller struct{}

// NewExclusiveFiller creates the validator
func NewExclusiveFiller() *ExclusiveFiller {
	return &ExclusiveFiller{}
}

// EncodeExclusivity builds the validation data for an exclusive order
func EncodeExclusivity(filler common.Address, lastExclusiveTimestamp uint64) ([]byte, error) {
	return exclusivityFormat.Pack(filler, new(big.Int).SetUint64(lastExclusiveTimestamp))
}

func (e *ExclusiveFiller) Validate(filler common.Address, order *models.ResolvedOrder, now uint64) bool {
	return e.allows(filler, order.Info.ValidationData, now)
}

func (e *ExclusiveFiller) ValidateCrossChain(filler common.Address, order *models.ResolvedCrossChainOrder, now uint64) bool {
	return e.allows(filler, order.Info.ValidationData, now)
}

func (e *ExclusiveFiller) allows(filler common.Address, data []byte, now uint64) bool {
	values, err := exclusivityFormat.Unpack(data)
	if err != nil || len(values) != 2 {
		return false
	}
	exclusive, ok := values[0].(common.Address)
	if !ok {
		return false
	}
	until, ok := values[1].(*big.Int)
	if !ok {
		return false
	}
	if until.IsUint64() && now > until.Uint64() {
		return true
	}
	return filler == exclusive
}
