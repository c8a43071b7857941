package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when a transferFrom exceeds the spender's allowance
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrNegativeAmount is returned for amounts below zero
	ErrNegativeAmount = errors.New("negative amount")
)

// MaxUint256 is treated as an infinite allowance
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type balanceKey struct {
	token common.Address
	owner common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// BalanceOf returns owner's balance of token
func (tx *Tx) BalanceOf(token, owner common.Address) *big.Int {
	if v, ok := tx.ledger.balances.Get(tx, balanceKey{token, owner}); ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Allowance returns how much spender may move from owner
func (tx *Tx) Allowance(token, owner, spender common.Address) *big.Int {
	if v, ok := tx.ledger.allowances.Get(tx, allowanceKey{token, owner, spender}); ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Mint credits amount of token to owner
func (tx *Tx) Mint(token, owner common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	key := balanceKey{token, owner}
	tx.ledger.balances.Set(tx, key, new(big.Int).Add(tx.BalanceOf(token, owner), amount))
	return nil
}

// Approve sets the allowance of spender over owner's token
func (tx *Tx) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	tx.ledger.allowances.Set(tx, allowanceKey{token, owner, spender}, new(big.Int).Set(amount))
	return nil
}

// Transfer moves amount of token from one account to another
func (tx *Tx) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance := tx.BalanceOf(token, from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBalance.String(), token.Hex(), amount.String())
	}
	tx.ledger.balances.Set(tx, balanceKey{token, from}, new(big.Int).Sub(fromBalance, amount))
	tx.ledger.balances.Set(tx, balanceKey{token, to}, new(big.Int).Add(tx.BalanceOf(token, to), amount))
	return nil
}

// TransferFrom moves amount of token from owner to recipient on behalf of spender
func (tx *Tx) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if spender != from {
		allowance := tx.Allowance(token, from, spender)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s allowed %s to spend %s of %s, needs %s",
				ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance.String(), token.Hex(), amount.String())
		}
		if allowance.Cmp(MaxUint256) != 0 {
			tx.ledger.allowances.Set(tx, allowanceKey{token, from, spender}, new(big.Int).Sub(allowance, amount))
		}
	}
	return tx.Transfer(token, from, to, amount)
}

// BalanceOf reads owner's committed balance of token
func (l *Ledger) BalanceOf(token, owner common.Address) *big.Int {
	var balance *big.Int
	_ = l.View(func(tx *Tx) error {
		balance = tx.BalanceOf(token, owner)
		return nil
	})
	return balance
}

// Mint credits amount of token to owner in its own unit
func (l *Ledger) Mint(token, owner common.Address, amount *big.Int) error {
	return l.Atomic(func(tx *Tx) error {
		return tx.Mint(token, owner, amount)
	})
}

// Approve sets an allowance in its own unit
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	return l.Atomic(func(tx *Tx) error {
		return tx.Approve(token, owner, spender, amount)
	})
}
