// Package permit moves tokens on the strength of an off-chain signature. A
// signature authorizes one transfer bound to a witness, to one spender, and
// can be used exactly once thanks to the signer's unordered nonce bitmap.
package permit

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
)

var (
	// ErrSignatureExpired is returned once the permit deadline has passed
	ErrSignatureExpired = errors.New("signature expired")
	// ErrInvalidSignature is returned for malformed or unrecoverable signatures
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidNonce is returned when the nonce was already used or invalidated
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrInvalidAmount is returned when the requested amounts exceed the permitted amount
	ErrInvalidAmount = errors.New("invalid amount")
)

// TokenPermissions is the token and maximum amount a signature releases
type TokenPermissions struct {
	Token  common.Address
	Amount *big.Int
}

// PermitTransferFrom is the signed part of a transfer
type PermitTransferFrom struct {
	Permitted TokenPermissions
	Nonce     *big.Int
	Deadline  uint64
}

// TransferDetail is one recipient of a permitted transfer
type TransferDetail struct {
	To              common.Address
	RequestedAmount *big.Int
}

// Permit2 is the signature transfer contract
type Permit2 struct {
	address         common.Address
	chainID         *big.Int
	domainSeparator common.Hash
	nonces          *ledger.Table[nonceWordKey, nonceWord]
	logger          logger.Logger
}

// New creates a Permit2 living at address on chainID
func New(address common.Address, chainID *big.Int, log logger.Logger) *Permit2 {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Permit2{
		address:         address,
		chainID:         new(big.Int).Set(chainID),
		domainSeparator: DomainSeparator(chainID, address),
		nonces:          ledger.NewTable[nonceWordKey, nonceWord](),
		logger:          log,
	}
}

// Address returns the contract address token owners approve
func (p *Permit2) Address() common.Address {
	return p.address
}

// DomainSeparator returns the EIP-712 domain separator of this instance
func (p *Permit2) DomainSeparator() common.Hash {
	return p.domainSeparator
}

// Digest returns the hash a signer signs for the given permit
func (p *Permit2) Digest(permit PermitTransferFrom, spender common.Address, witness common.Hash, witnessTypeString string) common.Hash {
	return TypedDataHash(p.domainSeparator, WitnessStructHash(permit, spender, witness, witnessTypeString))
}

// PermitWitnessTransferFrom verifies signature over permit, spender and witness,
// consumes the signer's nonce, and moves the requested amounts from the signer
// to each recipient. It returns the recovered signer, which the caller must
// compare with the party it expects to pay.
func (p *Permit2) PermitWitnessTransferFrom(
	tx *ledger.Tx,
	spender common.Address,
	permit PermitTransferFrom,
	details []TransferDetail,
	witness common.Hash,
	witnessTypeString string,
	signature []byte,
) (common.Address, error) {
	if tx.Now() > permit.Deadline {
		return common.Address{}, fmt.Errorf("%w: deadline %d, now %d", ErrSignatureExpired, permit.Deadline, tx.Now())
	}

	total := new(big.Int)
	for _, d := range details {
		if d.RequestedAmount == nil || d.RequestedAmount.Sign() < 0 {
			return common.Address{}, fmt.Errorf("%w: negative requested amount", ErrInvalidAmount)
		}
		total.Add(total, d.RequestedAmount)
	}
	if total.Cmp(permit.Permitted.Amount) > 0 {
		return common.Address{}, fmt.Errorf("%w: requested %s, permitted %s", ErrInvalidAmount, total, permit.Permitted.Amount)
	}

	digest := p.Digest(permit, spender, witness, witnessTypeString)
	signer, err := recoverSigner(digest, signature)
	if err != nil {
		return common.Address{}, err
	}

	if err := p.useUnorderedNonce(tx, signer, permit.Nonce); err != nil {
		return common.Address{}, err
	}

	for _, d := range details {
		if err := tx.TransferFrom(permit.Permitted.Token, p.address, signer, d.To, d.RequestedAmount); err != nil {
			return common.Address{}, fmt.Errorf("failed to transfer %s from %s: %w", permit.Permitted.Token.Hex(), signer.Hex(), err)
		}
	}

	p.logger.DebugWithComponent(logger.Permit, "Consumed nonce %s of %s for witness %s", permit.Nonce, signer.Hex(), witness.Hex())
	return signer, nil
}

func recoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	// wallets produce v in {27,28}, go-ethereum expects {0,1}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: bad recovery id", ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
