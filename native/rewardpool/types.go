package rewardpool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SecondsPerDay is both the emission unit and the restretch throttle window.
const SecondsPerDay = 86_400

// Status captures the funding lifecycle of a pool.
type Status uint8

const (
	// StatusIdle marks a pool that has never been funded.
	StatusIdle Status = iota
	// StatusActive marks a pool inside its current reward period.
	StatusActive
	// StatusDepleted marks a pool whose reward period has elapsed.
	StatusDepleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusDepleted:
		return "depleted"
	default:
		return "unknown"
	}
}

// Params describes a pool at creation time.
type Params struct {
	Address common.Address
	// Operator is the only caller allowed to stake, withdraw, touch and claim.
	Operator common.Address
	// Distributor is the only caller allowed to fund the pool.
	Distributor common.Address
	// StakingToken is custodied by the pool. The zero address makes the pool
	// a pure accounting ledger that never moves principal.
	StakingToken common.Address
	RewardsToken common.Address
	// DailyEmission is the fraction of the funded reward released per day,
	// scaled by 1e18.
	DailyEmission *big.Int
}

// Pool is the persisted state of one staking relationship.
type Pool struct {
	Address             common.Address
	Operator            common.Address
	Distributor         common.Address
	StakingToken        common.Address
	RewardsToken        common.Address
	DailyEmission       *big.Int
	RewardsDuration     uint64
	TotalStaked         *big.Int
	RewardRate          *big.Int
	RewardPerUnitStored *big.Int
	LastUpdateTime      uint64
	PeriodFinish        uint64
	LastStakeTime       uint64
}

// AccountState is the per-account position inside a pool.
type AccountState struct {
	Balance           *big.Int
	RewardPerUnitPaid *big.Int
	PendingReward     *big.Int
}

// Custodial reports whether the pool holds staking tokens.
func (p *Pool) Custodial() bool {
	return p.StakingToken != (common.Address{})
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.DailyEmission = copyInt(p.DailyEmission)
	out.TotalStaked = copyInt(p.TotalStaked)
	out.RewardRate = copyInt(p.RewardRate)
	out.RewardPerUnitStored = copyInt(p.RewardPerUnitStored)
	return &out
}

func (p *Pool) normalize() {
	p.DailyEmission = copyInt(p.DailyEmission)
	p.TotalStaked = copyInt(p.TotalStaked)
	p.RewardRate = copyInt(p.RewardRate)
	p.RewardPerUnitStored = copyInt(p.RewardPerUnitStored)
}

func (a *AccountState) normalize() {
	a.Balance = copyInt(a.Balance)
	a.RewardPerUnitPaid = copyInt(a.RewardPerUnitPaid)
	a.PendingReward = copyInt(a.PendingReward)
}

// DeriveAddress returns a deterministic pool address for a label and seed.
func DeriveAddress(label string, seed []byte) common.Address {
	hash := ethcrypto.Keccak256([]byte("rewardpool/"), []byte(label), seed)
	return common.BytesToAddress(hash[12:])
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
