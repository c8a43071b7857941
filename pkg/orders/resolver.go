package orders

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/permit"
)

// singleChainOrder is implemented by the order types a reactor can execute
type singleChainOrder interface {
	Order
	resolve(now uint64) (*models.ResolvedOrder, error)
}

var decoders = map[Type]func(body []byte) (Order, error){
	TypeLimit: func(body []byte) (Order, error) {
		return decodeLimitOrder(body)
	},
	TypeDutchLimit: func(body []byte) (Order, error) {
		return decodeDutchLimitOrder(body)
	},
	TypeCrossChainLimit: func(body []byte) (Order, error) {
		return decodeCrossChainLimitOrder(body)
	},
}

// Decode reads the discriminant of blob and decodes the matching order type
func Decode(blob []byte) (Order, error) {
	env, err := decodeEnvelope(blob)
	if err != nil {
		return nil, err
	}
	decode, ok := decoders[Type(env.OrderType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, Type(env.OrderType))
	}
	return decode(env.Order)
}

// Resolve decodes a single chain order and evaluates it at timestamp now.
// Calling it twice with the same inputs yields equal results.
func Resolve(signed models.SignedOrder, now uint64) (*models.ResolvedOrder, error) {
	order, err := Decode(signed.Order)
	if err != nil {
		return nil, err
	}
	sc, ok := order.(singleChainOrder)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a single chain order", ErrUnsupportedOrderType, order.Type())
	}
	resolved, err := sc.resolve(now)
	if err != nil {
		return nil, err
	}
	resolved.Sig = signed.Sig
	resolved.Hash = Hash(signed.Order)
	return resolved, nil
}

// ResolveCrossChain decodes a cross-chain order and evaluates it at timestamp now
func ResolveCrossChain(signed models.SignedOrder, now uint64) (*models.ResolvedCrossChainOrder, error) {
	order, err := Decode(signed.Order)
	if err != nil {
		return nil, err
	}
	cc, ok := order.(*CrossChainLimitOrder)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a cross-chain order", ErrUnsupportedOrderType, order.Type())
	}
	resolved, err := cc.resolve(now)
	if err != nil {
		return nil, err
	}
	resolved.Sig = signed.Sig
	resolved.Hash = Hash(signed.Order)
	return resolved, nil
}

// PermitFor is the transfer authorization an offerer signs for a resolved order
func PermitFor(order *models.ResolvedOrder) permit.PermitTransferFrom {
	return permit.PermitTransferFrom{
		Permitted: permit.TokenPermissions{Token: order.Input.Token, Amount: order.Input.MaxAmount},
		Nonce:     order.Info.Nonce,
		Deadline:  order.Info.Deadline,
	}
}

// PermitForCrossChain is the transfer authorization an offerer signs for a cross-chain order
func PermitForCrossChain(order *models.ResolvedCrossChainOrder) permit.PermitTransferFrom {
	return permit.PermitTransferFrom{
		Permitted: permit.TokenPermissions{Token: order.Input.Token, Amount: order.Input.MaxAmount},
		Nonce:     order.Info.Nonce,
		Deadline:  order.Info.InitiateDeadline,
	}
}

// Sign encodes order and signs it for the engine it names, producing the
// signed order a filler submits.
func Sign(p2 *permit.Permit2, key *ecdsa.PrivateKey, order Order) (models.SignedOrder, error) {
	blob, err := order.Encode()
	if err != nil {
		return models.SignedOrder{}, err
	}
	// resolve the decoded form so unset amounts are normalized like the engine sees them
	decoded, err := Decode(blob)
	if err != nil {
		return models.SignedOrder{}, err
	}

	var (
		p       permit.PermitTransferFrom
		spender common.Address
	)
	switch o := decoded.(type) {
	case *CrossChainLimitOrder:
		resolved, err := o.resolve(0)
		if err != nil {
			return models.SignedOrder{}, err
		}
		p, spender = PermitForCrossChain(resolved), o.Info.Settler
	case singleChainOrder:
		// MaxAmount does not depend on time, any timestamp works
		resolved, err := o.resolve(0)
		if err != nil {
			return models.SignedOrder{}, err
		}
		p, spender = PermitFor(resolved), resolved.Info.Reactor
	default:
		return models.SignedOrder{}, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, decoded.Type())
	}

	sig, err := p2.Sign(key, p, spender, Hash(blob), permit.WitnessTypeString)
	if err != nil {
		return models.SignedOrder{}, err
	}
	return models.SignedOrder{Order: blob, Sig: sig}, nil
}

// TypeOf returns the discriminant of blob without decoding the order body
func TypeOf(blob []byte) (Type, error) {
	env, err := decodeEnvelope(blob)
	if err != nil {
		return 0, err
	}
	return Type(env.OrderType), nil
}
