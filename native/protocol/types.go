package protocol

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleName identifies the orchestrator for pause checks and logging.
const ModuleName = "protocol"

// Access control roles recorded in the state manager.
const (
	RoleAdmin      = "protocol.admin"
	RoleController = "protocol.controller"
	RoleGuardian   = "protocol.guardian"
)

// Mode selects where fresh stake comes from and where swept stake goes.
type Mode uint8

const (
	// ModePrincipal pulls fresh value from the source's token balance and
	// returns swept value to it.
	ModePrincipal Mode = iota
	// ModeRewards draws fresh value from the source's escrow and re-escrows
	// swept value with a fresh cooldown.
	ModeRewards
)

func (m Mode) String() string {
	if m == ModeRewards {
		return "rewards"
	}
	return "principal"
}

// Config is the orchestrator's persisted wiring. Every address except the
// orchestrator account and principal token is set exactly once by an admin.
type Config struct {
	// Address is the account the orchestrator acts as when it calls pools,
	// the escrow and the governance token.
	Address         common.Address
	PrincipalToken  common.Address
	AppFactory      common.Address
	GovernanceToken common.Address
	RewardsEscrow   common.Address
	UserRewardPool  common.Address
	AppRewardPool   common.Address
	Paused          bool
}

func (c *Config) wired() bool {
	var zero common.Address
	return c.GovernanceToken != zero && c.RewardsEscrow != zero && c.UserRewardPool != zero && c.AppRewardPool != zero
}

// App is the registration record written by the app factory.
type App struct {
	Address     common.Address
	Pool        common.Address
	Owner       common.Address
	Whitelisted bool
}

// Stake is an account's position in one app split by value source.
type Stake struct {
	Principal *big.Int
	Rewards   *big.Int
}

// Total returns principal plus reward stake.
func (s *Stake) Total() *big.Int {
	return new(big.Int).Add(s.Principal, s.Rewards)
}

func (s *Stake) bucket(mode Mode) *big.Int {
	if mode == ModeRewards {
		return s.Rewards
	}
	return s.Principal
}

func (s *Stake) setBucket(mode Mode, v *big.Int) {
	if mode == ModeRewards {
		s.Rewards = v
		return
	}
	s.Principal = v
}

func (s *Stake) normalize() {
	if s.Principal == nil {
		s.Principal = big.NewInt(0)
	}
	if s.Rewards == nil {
		s.Rewards = big.NewInt(0)
	}
}
