package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
)

// nonceWord is one 256-bit word of a signer's nonce bitmap
type nonceWord = uint256.Int

type nonceWordKey struct {
	owner   common.Address
	wordPos uint256.Int
}

// bitmapPositions splits a nonce into the word holding it and the bit within the word
func bitmapPositions(nonce *big.Int) (wordPos uint256.Int, bitPos uint, err error) {
	n, overflow := uint256.FromBig(nonce)
	if overflow || nonce.Sign() < 0 {
		return wordPos, 0, fmt.Errorf("%w: nonce %s out of range", ErrInvalidNonce, nonce)
	}
	wordPos.Rsh(n, 8)
	bitPos = uint(n.Uint64() & 0xff)
	return wordPos, bitPos, nil
}

// useUnorderedNonce flips the nonce bit for owner, failing if it was already set
func (p *Permit2) useUnorderedNonce(tx *ledger.Tx, owner common.Address, nonce *big.Int) error {
	wordPos, bitPos, err := bitmapPositions(nonce)
	if err != nil {
		return err
	}
	key := nonceWordKey{owner: owner, wordPos: wordPos}
	word, _ := p.nonces.Get(tx, key)

	bit := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
	if !new(uint256.Int).And(&word, bit).IsZero() {
		return fmt.Errorf("%w: nonce %s of %s already used", ErrInvalidNonce, nonce, owner.Hex())
	}
	flipped := new(uint256.Int).Or(&word, bit)
	p.nonces.Set(tx, key, *flipped)
	return nil
}

// InvalidateUnorderedNonces marks every bit of mask in owner's word at wordPos as used
func (p *Permit2) InvalidateUnorderedNonces(tx *ledger.Tx, owner common.Address, wordPos *big.Int, mask *big.Int) error {
	pos, overflow := uint256.FromBig(wordPos)
	if overflow || wordPos.Sign() < 0 {
		return fmt.Errorf("%w: word position %s out of range", ErrInvalidNonce, wordPos)
	}
	m, overflow := uint256.FromBig(mask)
	if overflow || mask.Sign() < 0 {
		return fmt.Errorf("%w: mask out of range", ErrInvalidNonce)
	}
	key := nonceWordKey{owner: owner, wordPos: *pos}
	word, _ := p.nonces.Get(tx, key)
	p.nonces.Set(tx, key, *new(uint256.Int).Or(&word, m))

	p.logger.InfoWithComponent(logger.Permit, "Invalidated nonces of %s in word %s with mask %s", owner.Hex(), wordPos, mask.Text(16))
	return nil
}

// NonceBitmap returns owner's bitmap word at wordPos
func (p *Permit2) NonceBitmap(tx *ledger.Tx, owner common.Address, wordPos *big.Int) *big.Int {
	pos, overflow := uint256.FromBig(wordPos)
	if overflow {
		return new(big.Int)
	}
	word, _ := p.nonces.Get(tx, nonceWordKey{owner: owner, wordPos: *pos})
	return word.ToBig()
}

// IsNonceUsed reports whether owner already consumed nonce
func (p *Permit2) IsNonceUsed(tx *ledger.Tx, owner common.Address, nonce *big.Int) bool {
	wordPos, bitPos, err := bitmapPositions(nonce)
	if err != nil {
		return false
	}
	word, _ := p.nonces.Get(tx, nonceWordKey{owner: owner, wordPos: wordPos})
	bit := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
	return !new(uint256.Int).And(&word, bit).IsZero()
}
