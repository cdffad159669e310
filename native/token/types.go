package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Metadata describes a fungible token held in protocol state.
type Metadata struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
	// Minter is the only account allowed to mint or burn.
	Minter common.Address
	// NonTransferable tokens can only change hands through Mint and Burn.
	NonTransferable bool
	TotalSupply     *big.Int
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	out := *m
	out.TotalSupply = copyInt(m.TotalSupply)
	return &out
}

// PermitRequest is an off-chain signed approval.
type PermitRequest struct {
	Token     common.Address
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Deadline  uint64
	Signature []byte
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
