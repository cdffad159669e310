package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	domainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	permitTypeHash = ethcrypto.Keccak256([]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"))
	domainVersion  = ethcrypto.Keccak256([]byte("1"))
)

func word(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

// DomainSeparator binds permit signatures to one token on one chain.
func DomainSeparator(name string, token common.Address, chainID *big.Int) []byte {
	return ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(name)),
		domainVersion,
		word(chainID),
		addressWord(token),
	)
}

// PermitDigest returns the 32-byte digest an owner signs to approve spender.
func PermitDigest(domain []byte, owner, spender common.Address, value, nonce *big.Int, deadline uint64) []byte {
	structHash := ethcrypto.Keccak256(
		permitTypeHash,
		addressWord(owner),
		addressWord(spender),
		word(value),
		word(nonce),
		word(new(big.Int).SetUint64(deadline)),
	)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domain, structHash)
}

// recoverSigner returns the address that produced sig over digest. Both the
// raw recovery id (0/1) and the legacy 27/28 form are accepted.
func recoverSigner(digest, sig []byte) (common.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, errBadSignature
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
