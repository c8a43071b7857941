package permit

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	permit2Address = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	token          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender        = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	witness        = common.HexToHash("0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
)

type fixture struct {
	ledger  *ledger.Ledger
	clock   *ledger.ManualClock
	permit2 *Permit2
	key     *ecdsa.PrivateKey
	owner   common.Address
}

func newFixture(t *testing.T) *fixture {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	clock := ledger.NewManualClock(1000)
	f := &fixture{
		ledger:  ledger.New(clock),
		clock:   clock,
		permit2: New(permit2Address, big.NewInt(1), nil),
		key:     key,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
	}
	require.NoError(t, f.ledger.Mint(token, f.owner, big.NewInt(1_000)))
	require.NoError(t, f.ledger.Approve(token, f.owner, permit2Address, ledger.MaxUint256))
	return f
}

func (f *fixture) permit(nonce int64, amount int64) PermitTransferFrom {
	return PermitTransferFrom{
		Permitted: TokenPermissions{Token: token, Amount: big.NewInt(amount)},
		Nonce:     big.NewInt(nonce),
		Deadline:  2000,
	}
}

func (f *fixture) transfer(p PermitTransferFrom, requested int64, w common.Hash, sig []byte) (common.Address, error) {
	var signer common.Address
	err := f.ledger.Atomic(func(tx *ledger.Tx) error {
		var err error
		signer, err = f.permit2.PermitWitnessTransferFrom(tx, spender, p,
			[]TransferDetail{{To: recipient, RequestedAmount: big.NewInt(requested)}},
			w, WitnessTypeString, sig)
		return err
	})
	return signer, err
}

func TestPermitWitnessTransferFrom(t *testing.T) {
	f := newFixture(t)
	p := f.permit(7, 500)
	sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
	require.NoError(t, err)

	signer, err := f.transfer(p, 400, witness, sig)
	require.NoError(t, err)
	assert.Equal(t, f.owner, signer)
	assert.Equal(t, big.NewInt(400), f.ledger.BalanceOf(token, recipient))
	assert.Equal(t, big.NewInt(600), f.ledger.BalanceOf(token, f.owner))

	t.Run("nonce cannot be reused", func(t *testing.T) {
		_, err := f.transfer(p, 1, witness, sig)
		assert.ErrorIs(t, err, ErrInvalidNonce)
		assert.Equal(t, big.NewInt(400), f.ledger.BalanceOf(token, recipient))
	})
}

func TestPermitWitnessBinding(t *testing.T) {
	f := newFixture(t)
	p := f.permit(1, 500)
	sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
	require.NoError(t, err)

	// a different witness recovers a different signer instead of the owner
	otherWitness := common.HexToHash("0xfeed")
	signer, err := f.transfer(p, 100, otherWitness, sig)
	if err == nil {
		assert.NotEqual(t, f.owner, signer)
	}
	assert.Equal(t, big.NewInt(1_000), f.ledger.BalanceOf(token, f.owner))

	// the owner's nonce is still unused
	_ = f.ledger.View(func(tx *ledger.Tx) error {
		assert.False(t, f.permit2.IsNonceUsed(tx, f.owner, p.Nonce))
		return nil
	})
}

func TestPermitWitnessTransferFromFailures(t *testing.T) {
	f := newFixture(t)

	t.Run("expired", func(t *testing.T) {
		p := f.permit(2, 100)
		sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
		require.NoError(t, err)
		f.clock.Set(2001)
		defer f.clock.Set(1000)
		_, err = f.transfer(p, 100, witness, sig)
		assert.ErrorIs(t, err, ErrSignatureExpired)
	})

	t.Run("requested more than permitted", func(t *testing.T) {
		p := f.permit(3, 100)
		sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
		require.NoError(t, err)
		_, err = f.transfer(p, 101, witness, sig)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := f.transfer(f.permit(4, 100), 100, witness, []byte{0x01, 0x02})
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("owner has not approved permit2", func(t *testing.T) {
		require.NoError(t, f.ledger.Approve(token, f.owner, permit2Address, big.NewInt(0)))
		defer func() {
			require.NoError(t, f.ledger.Approve(token, f.owner, permit2Address, ledger.MaxUint256))
		}()
		p := f.permit(5, 100)
		sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
		require.NoError(t, err)
		_, err = f.transfer(p, 100, witness, sig)
		assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

		// the failed transfer must not burn the nonce
		_ = f.ledger.View(func(tx *ledger.Tx) error {
			assert.False(t, f.permit2.IsNonceUsed(tx, f.owner, p.Nonce))
			return nil
		})
	})
}

func TestInvalidateUnorderedNonces(t *testing.T) {
	f := newFixture(t)
	// nonce 258 lives in word 1, bit 2
	require.NoError(t, f.ledger.Atomic(func(tx *ledger.Tx) error {
		return f.permit2.InvalidateUnorderedNonces(tx, f.owner, big.NewInt(1), big.NewInt(0b100))
	}))

	p := f.permit(258, 100)
	sig, err := f.permit2.Sign(f.key, p, spender, witness, WitnessTypeString)
	require.NoError(t, err)
	_, err = f.transfer(p, 100, witness, sig)
	assert.ErrorIs(t, err, ErrInvalidNonce)

	_ = f.ledger.View(func(tx *ledger.Tx) error {
		assert.Equal(t, int64(4), f.permit2.NonceBitmap(tx, f.owner, big.NewInt(1)).Int64())
		assert.False(t, f.permit2.IsNonceUsed(tx, f.owner, big.NewInt(257)))
		return nil
	})
}

func TestDomainSeparatorDependsOnChain(t *testing.T) {
	a := DomainSeparator(big.NewInt(1), permit2Address)
	b := DomainSeparator(big.NewInt(10), permit2Address)
	assert.NotEqual(t, a, b)
}
