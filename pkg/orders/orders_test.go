package orders

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/permit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	reactor   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	settler   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	offerer   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	tokenIn   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	tokenOut  = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	oracleAdr = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func info() models.OrderInfo {
	return models.OrderInfo{Reactor: reactor, Offerer: offerer, Nonce: big.NewInt(9), Deadline: 5000}
}

func dutchOrder(start, end uint64) *DutchLimitOrder {
	return &DutchLimitOrder{
		Info:           info(),
		DecayStartTime: start,
		DecayEndTime:   end,
		Input:          DutchInput{Token: tokenIn, StartAmount: big.NewInt(1000), EndAmount: big.NewInt(1000)},
		Outputs: []DutchOutput{
			{Token: tokenOut, StartAmount: big.NewInt(2000), EndAmount: big.NewInt(1000), Recipient: offerer},
		},
	}
}

func encode(t *testing.T, o Order) models.SignedOrder {
	blob, err := o.Encode()
	require.NoError(t, err)
	return models.SignedOrder{Order: blob, Sig: []byte{0x01}}
}

func TestLimitOrderRoundTrip(t *testing.T) {
	o := &LimitOrder{
		Info:  info(),
		Input: TokenAmount{Token: tokenIn, Amount: big.NewInt(1e18)},
		Outputs: []models.OutputToken{
			{Token: tokenOut, Amount: big.NewInt(2e18), Recipient: offerer},
			{Token: tokenOut, Amount: big.NewInt(5), Recipient: reactor},
		},
	}
	signed := encode(t, o)

	resolved, err := Resolve(signed, 100)
	require.NoError(t, err)
	assert.Equal(t, reactor, resolved.Info.Reactor)
	assert.Equal(t, offerer, resolved.Info.Offerer)
	assert.Equal(t, uint64(5000), resolved.Info.Deadline)
	assert.Equal(t, int64(1e18), resolved.Input.Amount.Int64())
	assert.Equal(t, int64(1e18), resolved.Input.MaxAmount.Int64())
	require.Len(t, resolved.Outputs, 2)
	assert.Equal(t, int64(5), resolved.Outputs[1].Amount.Int64())
	assert.Equal(t, reactor, resolved.Outputs[1].Recipient)
	assert.Equal(t, crypto.Keccak256Hash(signed.Order), resolved.Hash)
	assert.Equal(t, signed.Sig, resolved.Sig)
}

func TestDutchDecay(t *testing.T) {
	signed := encode(t, dutchOrder(100, 200))

	tests := []struct {
		name string
		now  uint64
		want int64
	}{
		{"before window", 50, 2000},
		{"at start", 100, 2000},
		{"quarter", 125, 1750},
		{"half", 150, 1500},
		{"at end", 200, 1000},
		{"after window", 300, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := Resolve(signed, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolved.Outputs[0].Amount.Int64())
		})
	}
}

func TestDutchInputDecaysUpward(t *testing.T) {
	o := dutchOrder(100, 200)
	o.Input = DutchInput{Token: tokenIn, StartAmount: big.NewInt(100), EndAmount: big.NewInt(200)}
	signed := encode(t, o)

	resolved, err := Resolve(signed, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), resolved.Input.Amount.Int64())
	assert.Equal(t, int64(200), resolved.Input.MaxAmount.Int64())
}

func TestResolveIsDeterministic(t *testing.T) {
	signed := encode(t, dutchOrder(100, 200))
	a, err := Resolve(signed, 133)
	require.NoError(t, err)
	b, err := Resolve(signed, 133)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolveFailures(t *testing.T) {
	t.Run("decay end before start", func(t *testing.T) {
		_, err := Resolve(encode(t, dutchOrder(200, 100)), 150)
		assert.ErrorIs(t, err, ErrEndTimeBeforeStart)
	})

	t.Run("no outputs", func(t *testing.T) {
		o := dutchOrder(100, 200)
		o.Outputs = nil
		_, err := Resolve(encode(t, o), 150)
		assert.ErrorIs(t, err, ErrNoOutputs)

		limit := &LimitOrder{Info: info(), Input: TokenAmount{Token: tokenIn, Amount: big.NewInt(1)}}
		_, err = Resolve(encode(t, limit), 150)
		assert.ErrorIs(t, err, ErrNoOutputs)
	})

	t.Run("output increasing over time", func(t *testing.T) {
		o := dutchOrder(100, 200)
		o.Outputs[0].StartAmount, o.Outputs[0].EndAmount = big.NewInt(1), big.NewInt(2)
		_, err := Resolve(encode(t, o), 150)
		assert.ErrorIs(t, err, ErrIncorrectAmounts)
	})

	t.Run("input decreasing over time", func(t *testing.T) {
		o := dutchOrder(100, 200)
		o.Input.StartAmount, o.Input.EndAmount = big.NewInt(2), big.NewInt(1)
		_, err := Resolve(encode(t, o), 150)
		assert.ErrorIs(t, err, ErrIncorrectAmounts)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Resolve(models.SignedOrder{Order: []byte{0xde, 0xad, 0xbe, 0xef}}, 1)
		assert.ErrorIs(t, err, ErrMalformedOrder)
	})

	t.Run("unknown discriminant", func(t *testing.T) {
		blob, err := encodeEnvelope(Type(42), []byte{})
		require.NoError(t, err)
		_, err = Resolve(models.SignedOrder{Order: blob}, 1)
		assert.ErrorIs(t, err, ErrUnsupportedOrderType)
	})

	t.Run("truncated body", func(t *testing.T) {
		blob, err := encodeEnvelope(TypeLimit, []byte{0x01, 0x02})
		require.NoError(t, err)
		_, err = Resolve(models.SignedOrder{Order: blob}, 1)
		assert.ErrorIs(t, err, ErrMalformedOrder)
	})

	t.Run("cross-chain blob given to single chain resolver", func(t *testing.T) {
		_, err := Resolve(encode(t, crossChainOrder()), 1)
		assert.ErrorIs(t, err, ErrUnsupportedOrderType)
	})

	t.Run("single chain blob given to cross-chain resolver", func(t *testing.T) {
		_, err := ResolveCrossChain(encode(t, dutchOrder(1, 2)), 1)
		assert.ErrorIs(t, err, ErrUnsupportedOrderType)
	})
}

func crossChainOrder() *CrossChainLimitOrder {
	return &CrossChainLimitOrder{
		Info: models.SettlementInfo{
			Settler:                    settler,
			Offerer:                    offerer,
			Nonce:                      big.NewInt(3),
			InitiateDeadline:           1000,
			FillPeriod:                 60,
			OptimisticSettlementPeriod: 300,
			SettlementOracle:           oracleAdr,
		},
		Input:                TokenAmount{Token: tokenIn, Amount: big.NewInt(1e18)},
		FillerCollateral:     models.Collateral{Token: tokenIn, Amount: big.NewInt(4e18)},
		ChallengerCollateral: models.Collateral{Token: tokenIn, Amount: big.NewInt(5e18)},
		Outputs: []models.CrossChainOutput{
			{Recipient: offerer, Token: tokenOut, Amount: big.NewInt(2e18), ChainID: 137},
		},
	}
}

func TestCrossChainRoundTrip(t *testing.T) {
	signed := encode(t, crossChainOrder())
	resolved, err := ResolveCrossChain(signed, 10)
	require.NoError(t, err)

	assert.Equal(t, settler, resolved.Info.Settler)
	assert.Equal(t, uint64(60), resolved.Info.FillPeriod)
	assert.Equal(t, uint64(300), resolved.Info.OptimisticSettlementPeriod)
	assert.Equal(t, oracleAdr, resolved.Info.SettlementOracle)
	assert.Equal(t, int64(4e18), resolved.FillerCollateral.Amount.Int64())
	assert.Equal(t, int64(5e18), resolved.ChallengerCollateral.Amount.Int64())
	require.Len(t, resolved.Outputs, 1)
	assert.Equal(t, uint64(137), resolved.Outputs[0].ChainID)
	assert.Equal(t, Hash(signed.Order), resolved.Hash)
}

func TestSignRecoversOfferer(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p2 := permit.New(common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"), big.NewInt(1), nil)

	o := dutchOrder(100, 200)
	o.Info.Offerer = crypto.PubkeyToAddress(key.PublicKey)
	o.Input.EndAmount = big.NewInt(1500)
	signed, err := Sign(p2, key, o)
	require.NoError(t, err)

	resolved, err := Resolve(signed, 150)
	require.NoError(t, err)
	digest := p2.Digest(PermitFor(resolved), reactor, resolved.Hash, permit.WitnessTypeString)

	sig := append([]byte{}, signed.Sig...)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, o.Info.Offerer, crypto.PubkeyToAddress(*pub))
}
