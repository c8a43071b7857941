package contracts

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers every call with a fixed return blob
type fakeCaller struct {
	ret      []byte
	lastCall ethereum.CallMsg
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.lastCall = call
	return f.ret, nil
}

func TestGetFillInfo(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(SettlementOracleABI))
	require.NoError(t, err)

	filler := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	outputs := []SettlementOracleOutput{
		{
			Recipient: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
			Token:     common.HexToAddress("0x00000000000000000000000000000000000000b1"),
			Amount:    big.NewInt(2_000),
			ChainId:   big.NewInt(137),
		},
	}
	ret, err := parsed.Methods["getFillInfo"].Outputs.Pack(filler, big.NewInt(1_700), outputs)
	require.NoError(t, err)

	caller := &fakeCaller{ret: ret}
	oracleAddr := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	oracle, err := NewSettlementOracleCaller(oracleAddr, caller)
	require.NoError(t, err)

	orderID := common.HexToHash("0x1234")
	info, err := oracle.GetFillInfo(nil, orderID)
	require.NoError(t, err)

	assert.Equal(t, filler, info.Filler)
	assert.Equal(t, int64(1_700), info.FillTimestamp.Int64())
	require.Len(t, info.Outputs, 1)
	assert.Equal(t, outputs[0].Recipient, info.Outputs[0].Recipient)
	assert.Equal(t, int64(137), info.Outputs[0].ChainId.Int64())

	require.NotNil(t, caller.lastCall.To)
	assert.Equal(t, oracleAddr, *caller.lastCall.To)
	assert.Equal(t, parsed.Methods["getFillInfo"].ID, caller.lastCall.Data[:4])
	assert.Equal(t, orderID.Bytes(), caller.lastCall.Data[4:36])
}
