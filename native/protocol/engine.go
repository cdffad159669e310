package protocol

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/rewardsescrow"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

var (
	errNilState      = errors.New("protocol engine: state not configured")
	errMissingDeps   = errors.New("protocol engine: collaborators not configured")
	errNotInitiated  = errors.New("protocol engine: not initialised")
	errNotWired      = errors.New("protocol engine: wiring incomplete")
	errInvariant     = errors.New("protocol engine: stake ledger diverged from governance weight")
	errInitialised   = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "protocol engine: already initialised")
	errNotAdmin      = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: admin role required")
	errNotController = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: controller role required")
	errNotGuardian   = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: guardian role required")
	errNotFactory    = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: caller is not the app factory")
	errNotDelegate   = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: caller is not the account's delegate")
	errNotSource     = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: net value movement requires the value source")
	errNotAppOwner   = nativecommon.Wrap(nativecommon.ErrUnauthorized, "protocol engine: caller does not own the app")
	errZeroAddress   = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: zero address")
	errUnknownApp    = nativecommon.Wrap(nativecommon.ErrInvalidApp, "protocol engine: app not registered")
	errAppNotListed  = nativecommon.Wrap(nativecommon.ErrInvalidApp, "protocol engine: app not whitelisted")
	errAppExists     = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "protocol engine: app already registered")
	errForeignPool   = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: pool is not operated by the orchestrator")
	errForeignToken  = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: governance token must be non-transferable and minted by the orchestrator")
	errForeignEscrow = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: escrow is not operated by the orchestrator")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
	KVAppend(key []byte, value []byte) error
	HasRole(role string, addr []byte) bool
}

type tokenLedger interface {
	Metadata(token common.Address) (*token.Metadata, error)
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) error
	Mint(token, caller, to common.Address, amount *big.Int) error
	Burn(token, caller, from common.Address, amount *big.Int) error
	BalanceOf(token, account common.Address) (*big.Int, error)
}

type rewardPools interface {
	Pool(addr common.Address) (*rewardpool.Pool, error)
	Stake(caller, pool, account common.Address, amount *big.Int) error
	Withdraw(caller, pool, account common.Address, amount *big.Int) error
	Touch(caller, pool, account common.Address) error
	ClaimReward(caller, pool, account, recipient common.Address) (*big.Int, error)
	BalanceOf(pool, account common.Address) (*big.Int, error)
}

type rewardsEscrow interface {
	Config() (*rewardsescrow.Config, error)
	Lock(caller, account common.Address, amount *big.Int) error
	Credit(caller, account common.Address, amount *big.Int) error
	Debit(caller, account common.Address, amount *big.Int) error
	Release(caller, account common.Address) (*big.Int, error)
	SetCooldown(caller common.Address, cooldown uint64) error
}

type delegationRegistry interface {
	Delegate(delegator, to common.Address) error
	DelegateOf(delegator common.Address) (common.Address, bool, error)
}

// Engine is the single entry point composing reward pools, the escrow, the
// delegation registry, the governance-weight token and the stake ledger.
type Engine struct {
	state      engineState
	tokens     tokenLedger
	pools      rewardPools
	escrow     rewardsEscrow
	delegation delegationRegistry
	emitter    events.Emitter
}

// NewEngine constructs an orchestrator with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the fungible token ledger.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetPools configures the reward pool engine.
func (e *Engine) SetPools(pools rewardPools) { e.pools = pools }

// SetEscrow configures the rewards escrow.
func (e *Engine) SetEscrow(escrow rewardsEscrow) { e.escrow = escrow }

// SetDelegation configures the delegation registry.
func (e *Engine) SetDelegation(registry delegationRegistry) { e.delegation = registry }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

// IsPaused implements nativecommon.PauseView.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName {
		return false
	}
	cfg, err := e.Config()
	if err != nil {
		return false
	}
	return cfg.Paused
}

// Config returns the stored wiring.
func (e *Engine) Config() (*Config, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var cfg Config
	ok, err := e.state.KVGet(configKey, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitiated
	}
	return &cfg, nil
}

func (e *Engine) putConfig(cfg *Config) error {
	return e.state.KVPut(configKey, cfg)
}

// ready loads the wiring for a user-facing operation: collaborators present,
// wiring complete and the module not paused.
func (e *Engine) ready() (*Config, error) {
	if e.tokens == nil || e.pools == nil || e.escrow == nil || e.delegation == nil {
		return nil, errMissingDeps
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if !cfg.wired() {
		return nil, errNotWired
	}
	if err := nativecommon.Guard(e, ModuleName); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App returns the registration record for app.
func (e *Engine) App(app common.Address) (*App, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var record App
	ok, err := e.state.KVGet(appKey(app), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnknownApp
	}
	return &record, nil
}

// Apps lists every registered app in registration order.
func (e *Engine) Apps() ([]common.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.addressList(registeredAppsIndex)
}

// StakeOf returns account's stake in app.
func (e *Engine) StakeOf(account, app common.Address) (*Stake, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var stake Stake
	if _, err := e.state.KVGet(stakeKey(account, app), &stake); err != nil {
		return nil, err
	}
	stake.normalize()
	return &stake, nil
}

// AppTotal returns the stake held in app across all accounts.
func (e *Engine) AppTotal(app common.Address) (*big.Int, error) {
	return e.loadInt(appTotalKey(app))
}

// AccountTotal returns account's stake across all apps, which is its
// governance weight.
func (e *Engine) AccountTotal(account common.Address) (*big.Int, error) {
	return e.loadInt(accountTotalKey(account))
}

// AccountApps lists the apps account has ever staked to.
func (e *Engine) AccountApps(account common.Address) ([]common.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.addressList(accountAppsKey(account))
}

// Weight returns the governance token balance of account.
func (e *Engine) Weight(account common.Address) (*big.Int, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if e.tokens == nil || cfg.GovernanceToken == (common.Address{}) {
		return nil, errNotWired
	}
	return e.tokens.BalanceOf(cfg.GovernanceToken, account)
}

// DelegateOf returns account's current delegatee.
func (e *Engine) DelegateOf(account common.Address) (common.Address, bool, error) {
	if e.delegation == nil {
		return common.Address{}, false, errMissingDeps
	}
	return e.delegation.DelegateOf(account)
}

func (e *Engine) putStake(account, app common.Address, stake *Stake) error {
	if err := e.state.KVPut(stakeKey(account, app), stake); err != nil {
		return err
	}
	return e.state.KVAppend(accountAppsKey(account), app.Bytes())
}

func (e *Engine) loadInt(key []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	value := new(big.Int)
	if _, err := e.state.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) addressList(key []byte) ([]common.Address, error) {
	var raw [][]byte
	if err := e.state.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(raw))
	for _, item := range raw {
		out = append(out, common.BytesToAddress(item))
	}
	return out, nil
}

// checkWeight asserts that the ledger, the user pool and the governance token
// agree on account's weight.
func (e *Engine) checkWeight(cfg *Config, account common.Address) error {
	total, err := e.AccountTotal(account)
	if err != nil {
		return err
	}
	weight, err := e.tokens.BalanceOf(cfg.GovernanceToken, account)
	if err != nil {
		return err
	}
	pooled, err := e.pools.BalanceOf(cfg.UserRewardPool, account)
	if err != nil {
		return err
	}
	if total.Cmp(weight) != 0 || total.Cmp(pooled) != 0 {
		return errInvariant
	}
	return nil
}
