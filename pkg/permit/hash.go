package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// WitnessTypeString declares the witness as the bytes32 hash of the order it authorizes
const WitnessTypeString = "bytes32 witness)"

const permitWitnessTransferFromTypeStub = "PermitWitnessTransferFrom(TokenPermissions permitted,address spender,uint256 nonce,uint256 deadline,"

var (
	// EIP712Domain(string name,uint256 chainId,address verifyingContract)
	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"))

	// TokenPermissions(address token,uint256 amount)
	tokenPermissionsTypeHash = crypto.Keccak256([]byte("TokenPermissions(address token,uint256 amount)"))

	domainNameHash = crypto.Keccak256([]byte("Permit2"))
)

// DomainSeparator returns keccak256(abi.encode(typeHash, nameHash, chainId, verifyingContract))
func DomainSeparator(chainID *big.Int, verifyingContract common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash,
		domainNameHash,
		math.U256Bytes(new(big.Int).Set(chainID)),
		common.LeftPadBytes(verifyingContract.Bytes(), 32),
	)
}

func tokenPermissionsHash(p TokenPermissions) []byte {
	return crypto.Keccak256(
		tokenPermissionsTypeHash,
		common.LeftPadBytes(p.Token.Bytes(), 32),
		u256(p.Amount),
	)
}

// WitnessStructHash hashes a PermitWitnessTransferFrom struct
func WitnessStructHash(p PermitTransferFrom, spender common.Address, witness common.Hash, witnessTypeString string) common.Hash {
	typeHash := crypto.Keccak256([]byte(permitWitnessTransferFromTypeStub + witnessTypeString))
	return crypto.Keccak256Hash(
		typeHash,
		tokenPermissionsHash(p.Permitted),
		common.LeftPadBytes(spender.Bytes(), 32),
		u256(p.Nonce),
		u256(new(big.Int).SetUint64(p.Deadline)),
		witness.Bytes(),
	)
}

// TypedDataHash computes keccak256("\x19\x01" || domainSeparator || structHash)
func TypedDataHash(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		domainSeparator.Bytes(),
		structHash.Bytes(),
	)
}

func u256(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}
