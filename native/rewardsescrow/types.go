package rewardsescrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config wires the escrow to its custody account and privileged operator.
type Config struct {
	// Address holds the escrowed tokens.
	Address  common.Address
	Operator common.Address
	Token    common.Address
	// Cooldown is the number of seconds a lock keeps the balance unavailable.
	Cooldown uint64
}

// Entry is the escrowed balance of one account.
type Entry struct {
	Amount     *big.Int
	UnlockTime uint64
}

// Empty reports whether nothing is escrowed.
func (e *Entry) Empty() bool {
	return e == nil || e.Amount == nil || e.Amount.Sign() == 0
}
