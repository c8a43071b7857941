package orders

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

var dutchLimitOrderFormat = args(append(append([]abi.Argument{}, infoFields...),
	arg("decayStartTime", uint256Type),
	arg("decayEndTime", uint256Type),
	arg("inputToken", addressType),
	arg("inputStartAmount", uint256Type),
	arg("inputEndAmount", uint256Type),
	arg("outputTokens", addressesType),
	arg("outputStartAmounts", uint256sType),
	arg("outputEndAmounts", uint256sType),
	arg("outputRecipients", addressesType),
)...)

type dutchLimitOrderWire struct {
	Reactor            common.Address
	Offerer            common.Address
	Nonce              *big.Int
	Deadline           *big.Int
	ValidationContract common.Address
	ValidationData     []byte
	DecayStartTime     *big.Int
	DecayEndTime       *big.Int
	InputToken         common.Address
	InputStartAmount   *big.Int
	InputEndAmount     *big.Int
	OutputTokens       []common.Address
	OutputStartAmounts []*big.Int
	OutputEndAmounts   []*big.Int
	OutputRecipients   []common.Address
}

// Encode returns the enveloped blob of the order
func (o *DutchLimitOrder) Encode() ([]byte, error) {
	tokens := make([]common.Address, len(o.Outputs))
	starts := make([]*big.Int, len(o.Outputs))
	ends := make([]*big.Int, len(o.Outputs))
	recipients := make([]common.Address, len(o.Outputs))
	for i, out := range o.Outputs {
		tokens[i] = out.Token
		starts[i] = zeroIfNil(out.StartAmount)
		ends[i] = zeroIfNil(out.EndAmount)
		recipients[i] = out.Recipient
	}
	body, err := dutchLimitOrderFormat.Pack(
		o.Info.Reactor,
		o.Info.Offerer,
		zeroIfNil(o.Info.Nonce),
		new(big.Int).SetUint64(o.Info.Deadline),
		o.Info.ValidationContract,
		nonNilBytes(o.Info.ValidationData),
		new(big.Int).SetUint64(o.DecayStartTime),
		new(big.Int).SetUint64(o.DecayEndTime),
		o.Input.Token,
		zeroIfNil(o.Input.StartAmount),
		zeroIfNil(o.Input.EndAmount),
		tokens,
		starts,
		ends,
		recipients,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dutch limit order: %w", err)
	}
	return encodeEnvelope(TypeDutchLimit, body)
}

func decodeDutchLimitOrder(body []byte) (*DutchLimitOrder, error) {
	var w dutchLimitOrderWire
	if err := unpack(dutchLimitOrderFormat, body, &w); err != nil {
		return nil, err
	}
	info, err := decodeInfo(w.Reactor, w.Offerer, w.Nonce, w.Deadline, w.ValidationContract, w.ValidationData)
	if err != nil {
		return nil, err
	}
	start, err := toUint64(w.DecayStartTime, "decayStartTime")
	if err != nil {
		return nil, err
	}
	end, err := toUint64(w.DecayEndTime, "decayEndTime")
	if err != nil {
		return nil, err
	}
	if !sameLength(len(w.OutputTokens), len(w.OutputStartAmounts), len(w.OutputEndAmounts), len(w.OutputRecipients)) {
		return nil, fmt.Errorf("%w: output field lengths differ", ErrMalformedOrder)
	}
	outputs := make([]DutchOutput, len(w.OutputTokens))
	for i := range w.OutputTokens {
		outputs[i] = DutchOutput{
			Token:       w.OutputTokens[i],
			StartAmount: w.OutputStartAmounts[i],
			EndAmount:   w.OutputEndAmounts[i],
			Recipient:   w.OutputRecipients[i],
		}
	}
	return &DutchLimitOrder{
		Info:           info,
		DecayStartTime: start,
		DecayEndTime:   end,
		Input:          DutchInput{Token: w.InputToken, StartAmount: w.InputStartAmount, EndAmount: w.InputEndAmount},
		Outputs:        outputs,
	}, nil
}

func (o *DutchLimitOrder) resolve(now uint64) (*models.ResolvedOrder, error) {
	if o.DecayEndTime < o.DecayStartTime {
		return nil, fmt.Errorf("%w: start %d, end %d", ErrEndTimeBeforeStart, o.DecayStartTime, o.DecayEndTime)
	}
	if len(o.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	if o.Input.StartAmount.Cmp(o.Input.EndAmount) > 0 {
		return nil, fmt.Errorf("%w: input start %s above end %s", ErrIncorrectAmounts, o.Input.StartAmount, o.Input.EndAmount)
	}

	outputs := make([]models.OutputToken, len(o.Outputs))
	for i, out := range o.Outputs {
		if out.StartAmount.Cmp(out.EndAmount) < 0 {
			return nil, fmt.Errorf("%w: output %d start %s below end %s", ErrIncorrectAmounts, i, out.StartAmount, out.EndAmount)
		}
		outputs[i] = models.OutputToken{
			Token:     out.Token,
			Amount:    decay(out.StartAmount, out.EndAmount, o.DecayStartTime, o.DecayEndTime, now),
			Recipient: out.Recipient,
		}
	}

	return &models.ResolvedOrder{
		Info: o.Info,
		Input: models.InputToken{
			Token:     o.Input.Token,
			Amount:    decay(o.Input.StartAmount, o.Input.EndAmount, o.DecayStartTime, o.DecayEndTime, now),
			MaxAmount: new(big.Int).Set(o.Input.EndAmount),
		},
		Outputs: outputs,
	}, nil
}

// decay interpolates linearly from start to end across [decayStart, decayEnd],
// clamping to start before the window and to end after it.
func decay(start, end *big.Int, decayStart, decayEnd, now uint64) *big.Int {
	switch {
	case decayEnd <= now:
		return new(big.Int).Set(end)
	case decayStart >= now:
		return new(big.Int).Set(start)
	}
	elapsed := new(big.Int).SetUint64(now - decayStart)
	duration := new(big.Int).SetUint64(decayEnd - decayStart)

	if start.Cmp(end) > 0 {
		delta := new(big.Int).Sub(start, end)
		delta.Mul(delta, elapsed).Div(delta, duration)
		return delta.Sub(start, delta)
	}
	delta := new(big.Int).Sub(end, start)
	delta.Mul(delta, elapsed).Div(delta, duration)
	return delta.Add(start, delta)
}
