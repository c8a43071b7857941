package orders

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
)

var crossChainLimitOrderFormat = args(
	arg("settler", addressType),
	arg("offerer", addressType),
	arg("nonce", uint256Type),
	arg("initiateDeadline", uint256Type),
	arg("fillPeriod", uint256Type),
	arg("optimisticSettlementPeriod", uint256Type),
	arg("settlementOracle", addressType),
	arg("validationContract", addressType),
	arg("validationData", bytesType),
	arg("inputToken", addressType),
	arg("inputAmount", uint256Type),
	arg("fillerCollateralToken", addressType),
	arg("fillerCollateralAmount", uint256Type),
	arg("challengerCollateralToken", addressType),
	arg("challengerCollateralAmount", uint256Type),
	arg("outputRecipients", addressesType),
	arg("outputTokens", addressesType),
	arg("outputAmounts", uint256sType),
	arg("outputChainIds", uint256sType),
)

type crossChainLimitOrderWire struct {
	Settler                    common.Address
	Offerer                    common.Address
	Nonce                      *big.Int
	InitiateDeadline           *big.Int
	FillPeriod                 *big.Int
	OptimisticSettlementPeriod *big.Int
	SettlementOracle           common.Address
	ValidationContract         common.Address
	ValidationData             []byte
	InputToken                 common.Address
	InputAmount                *big.Int
	FillerCollateralToken      common.Address
	FillerCollateralAmount     *big.Int
	ChallengerCollateralToken  common.Address
	ChallengerCollateralAmount *big.Int
	OutputRecipients           []common.Address
	OutputTokens               []common.Address
	OutputAmounts              []*big.Int
	OutputChainIds             []*big.Int
}

// Encode returns the enveloped blob of the order
func (o *CrossChainLimitOrder) Encode() ([]byte, error) {
	n := len(o.Outputs)
	recipients := make([]common.Address, n)
	tokens := make([]common.Address, n)
	amounts := make([]*big.Int, n)
	chainIDs := make([]*big.Int, n)
	for i, out := range o.Outputs {
		recipients[i] = out.Recipient
		tokens[i] = out.Token
		amounts[i] = zeroIfNil(out.Amount)
		chainIDs[i] = new(big.Int).SetUint64(out.ChainID)
	}
	info := o.Info
	body, err := crossChainLimitOrderFormat.Pack(
		info.Settler,
		info.Offerer,
		zeroIfNil(info.Nonce),
		new(big.Int).SetUint64(info.InitiateDeadline),
		new(big.Int).SetUint64(info.FillPeriod),
		new(big.Int).SetUint64(info.OptimisticSettlementPeriod),
		info.SettlementOracle,
		info.ValidationContract,
		nonNilBytes(info.ValidationData),
		o.Input.Token,
		zeroIfNil(o.Input.Amount),
		o.FillerCollateral.Token,
		zeroIfNil(o.FillerCollateral.Amount),
		o.ChallengerCollateral.Token,
		zeroIfNil(o.ChallengerCollateral.Amount),
		recipients,
		tokens,
		amounts,
		chainIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cross-chain limit order: %w", err)
	}
	return encodeEnvelope(TypeCrossChainLimit, body)
}

func decodeCrossChainLimitOrder(body []byte) (*CrossChainLimitOrder, error) {
	var w crossChainLimitOrderWire
	if err := unpack(crossChainLimitOrderFormat, body, &w); err != nil {
		return nil, err
	}

	var periods [3]uint64
	for i, f := range []struct {
		v    *big.Int
		name string
	}{
		{w.InitiateDeadline, "initiateDeadline"},
		{w.FillPeriod, "fillPeriod"},
		{w.OptimisticSettlementPeriod, "optimisticSettlementPeriod"},
	} {
		v, err := toUint64(f.v, f.name)
		if err != nil {
			return nil, err
		}
		periods[i] = v
	}

	if !sameLength(len(w.OutputRecipients), len(w.OutputTokens), len(w.OutputAmounts), len(w.OutputChainIds)) {
		return nil, fmt.Errorf("%w: output field lengths differ", ErrMalformedOrder)
	}
	outputs := make([]models.CrossChainOutput, len(w.OutputRecipients))
	for i := range w.OutputRecipients {
		chainID, err := toUint64(w.OutputChainIds[i], "outputChainId")
		if err != nil {
			return nil, err
		}
		outputs[i] = models.CrossChainOutput{
			Recipient: w.OutputRecipients[i],
			Token:     w.OutputTokens[i],
			Amount:    w.OutputAmounts[i],
			ChainID:   chainID,
		}
	}

	return &CrossChainLimitOrder{
		Info: models.SettlementInfo{
			Settler:                    w.Settler,
			Offerer:                    w.Offerer,
			Nonce:                      w.Nonce,
			InitiateDeadline:           periods[0],
			FillPeriod:                 periods[1],
			OptimisticSettlementPeriod: periods[2],
			SettlementOracle:           w.SettlementOracle,
			ValidationContract:         w.ValidationContract,
			ValidationData:             w.ValidationData,
		},
		Input:                TokenAmount{Token: w.InputToken, Amount: w.InputAmount},
		FillerCollateral:     models.Collateral{Token: w.FillerCollateralToken, Amount: w.FillerCollateralAmount},
		ChallengerCollateral: models.Collateral{Token: w.ChallengerCollateralToken, Amount: w.ChallengerCollateralAmount},
		Outputs:              outputs,
	}, nil
}

func (o *CrossChainLimitOrder) resolve(_ uint64) (*models.ResolvedCrossChainOrder, error) {
	if len(o.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	outputs := make([]models.CrossChainOutput, len(o.Outputs))
	for i, out := range o.Outputs {
		outputs[i] = out
		outputs[i].Amount = new(big.Int).Set(out.Amount)
	}
	return &models.ResolvedCrossChainOrder{
		Info: o.Info,
		Input: models.InputToken{
			Token:     o.Input.Token,
			Amount:    new(big.Int).Set(o.Input.Amount),
			MaxAmount: new(big.Int).Set(o.Input.Amount),
		},
		FillerCollateral:     models.Collateral{Token: o.FillerCollateral.Token, Amount: new(big.Int).Set(o.FillerCollateral.Amount)},
		ChallengerCollateral: models.Collateral{Token: o.ChallengerCollateral.Token, Amount: new(big.Int).Set(o.ChallengerCollateral.Amount)},
		Outputs:              outputs,
	}, nil
}
