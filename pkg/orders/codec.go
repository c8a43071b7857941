package orders

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ErrMalformedOrder is returned when an order blob cannot be decoded
var ErrMalformedOrder = errors.New("malformed order")

var (
	uint8Type      = mustType("uint8")
	uint256Type    = mustType("uint256")
	addressType    = mustType("address")
	bytesType      = mustType("bytes")
	addressesType  = mustType("address[]")
	uint256sType   = mustType("uint256[]")
	envelopeFormat = abi.Arguments{
		{Name: "orderType", Type: uint8Type},
		{Name: "order", Type: bytesType},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("orders: bad abi type %s: %v", t, err))
	}
	return typ
}

func args(fields ...abi.Argument) abi.Arguments {
	return abi.Arguments(fields)
}

func arg(name string, typ abi.Type) abi.Argument {
	return abi.Argument{Name: name, Type: typ}
}

// envelope is the outer encoding shared by every order type
type envelope struct {
	OrderType uint8
	Order     []byte
}

func encodeEnvelope(kind Type, body []byte) ([]byte, error) {
	return envelopeFormat.Pack(uint8(kind), body)
}

func decodeEnvelope(blob []byte) (envelope, error) {
	var env envelope
	if err := unpack(envelopeFormat, blob, &env); err != nil {
		return env, err
	}
	return env, nil
}

// unpack decodes data with format into the exported fields of out
func unpack(format abi.Arguments, data []byte, out interface{}) (err error) {
	// the abi decoder can panic on adversarial offsets
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedOrder, r)
		}
	}()
	values, err := format.Unpack(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	if err := format.Copy(out, values); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	return nil
}

func toUint64(v *big.Int, field string) (uint64, error) {
	if v == nil || v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in uint64", ErrMalformedOrder, field)
	}
	return v.Uint64(), nil
}

func sameLength(n int, lists ...int) bool {
	for _, l := range lists {
		if l != n {
			return false
		}
	}
	return true
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

