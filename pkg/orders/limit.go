package orders

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

var infoFields = []abi.Argument{
	arg("reactor", addressType),
	arg("offerer", addressType),
	arg("nonce", uint256Type),
	arg("deadline", uint256Type),
	arg("validationContract", addressType),
	arg("validationData", bytesType),
}

var limitOrderFormat = args(append(append([]abi.Argument{}, infoFields...),
	arg("inputToken", addressType),
	arg("inputAmount", uint256Type),
	arg("outputTokens", addressesType),
	arg("outputAmounts", uint256sType),
	arg("outputRecipients", addressesType),
)...)

type limitOrderWire struct {
	Reactor            common.Address
	Offerer            common.Address
	Nonce              *big.Int
	Deadline           *big.Int
	ValidationContract common.Address
	ValidationData     []byte
	InputToken         common.Address
	InputAmount        *big.Int
	OutputTokens       []common.Address
	OutputAmounts      []*big.Int
	OutputRecipients   []common.Address
}

// Encode returns the enveloped blob of the order
func (o *LimitOrder) Encode() ([]byte, error) {
	tokens, amounts, recipients := splitOutputs(o.Outputs)
	body, err := limitOrderFormat.Pack(
		o.Info.Reactor,
		o.Info.Offerer,
		zeroIfNil(o.Info.Nonce),
		new(big.Int).SetUint64(o.Info.Deadline),
		o.Info.ValidationContract,
		nonNilBytes(o.Info.ValidationData),
		o.Input.Token,
		zeroIfNil(o.Input.Amount),
		tokens,
		amounts,
		recipients,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode limit order: %w", err)
	}
	return encodeEnvelope(TypeLimit, body)
}

func decodeLimitOrder(body []byte) (*LimitOrder, error) {
	var w limitOrderWire
	if err := unpack(limitOrderFormat, body, &w); err != nil {
		return nil, err
	}
	info, err := decodeInfo(w.Reactor, w.Offerer, w.Nonce, w.Deadline, w.ValidationContract, w.ValidationData)
	if err != nil {
		return nil, err
	}
	if !sameLength(len(w.OutputTokens), len(w.OutputAmounts), len(w.OutputRecipients)) {
		return nil, fmt.Errorf("%w: output field lengths differ", ErrMalformedOrder)
	}
	outputs := make([]models.OutputToken, len(w.OutputTokens))
	for i := range w.OutputTokens {
		outputs[i] = models.OutputToken{Token: w.OutputTokens[i], Amount: w.OutputAmounts[i], Recipient: w.OutputRecipients[i]}
	}
	return &LimitOrder{
		Info:    info,
		Input:   TokenAmount{Token: w.InputToken, Amount: w.InputAmount},
		Outputs: outputs,
	}, nil
}

// resolve returns the order as is: limit orders do not change over time
func (o *LimitOrder) resolve(_ uint64) (*models.ResolvedOrder, error) {
	if len(o.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	outputs := make([]models.OutputToken, len(o.Outputs))
	for i, out := range o.Outputs {
		outputs[i] = models.OutputToken{Token: out.Token, Amount: new(big.Int).Set(out.Amount), Recipient: out.Recipient}
	}
	return &models.ResolvedOrder{
		Info: o.Info,
		Input: models.InputToken{
			Token:     o.Input.Token,
			Amount:    new(big.Int).Set(o.Input.Amount),
			MaxAmount: new(big.Int).Set(o.Input.Amount),
		},
		Outputs: outputs,
	}, nil
}

func decodeInfo(reactor, offerer common.Address, nonce, deadline *big.Int, validationContract common.Address, validationData []byte) (models.OrderInfo, error) {
	d, err := toUint64(deadline, "deadline")
	if err != nil {
		return models.OrderInfo{}, err
	}
	return models.OrderInfo{
		Reactor:            reactor,
		Offerer:            offerer,
		Nonce:              nonce,
		Deadline:           d,
		ValidationContract: validationContract,
		ValidationData:     validationData,
	}, nil
}

func splitOutputs(outputs []models.OutputToken) ([]common.Address, []*big.Int, []common.Address) {
	tokens := make([]common.Address, len(outputs))
	amounts := make([]*big.Int, len(outputs))
	recipients := make([]common.Address, len(outputs))
	for i, o := range outputs {
		tokens[i] = o.Token
		amounts[i] = zeroIfNil(o.Amount)
		recipients[i] = o.Recipient
	}
	return tokens, amounts, recipients
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
