package permit

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sign produces the 65-byte signature (v in {27,28}) a token owner hands to a
// spender so it can pull permit.Permitted bound to witness.
func (p *Permit2) Sign(key *ecdsa.PrivateKey, permit PermitTransferFrom, spender common.Address, witness common.Hash, witnessTypeString string) ([]byte, error) {
	digest := p.Digest(permit, spender, witness, witnessTypeString)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("permit: signing: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
