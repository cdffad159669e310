package protocol

import (
	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

// Initialize records the orchestrator account and the principal token. It
// runs once, before any other wiring.
func (e *Engine) Initialize(caller, self, principalToken common.Address) error {
	if e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(RoleAdmin, caller.Bytes()) {
		return errNotAdmin
	}
	if self == (common.Address{}) || principalToken == (common.Address{}) {
		return errZeroAddress
	}
	exists, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return errInitialised
	}
	return e.putConfig(&Config{Address: self, PrincipalToken: principalToken})
}

// SetAppFactory records the only account allowed to register apps.
func (e *Engine) SetAppFactory(caller, factory common.Address) error {
	return e.setOnce(caller, "appFactory", factory, func(cfg *Config) *common.Address { return &cfg.AppFactory }, nil)
}

// SetGovernanceToken records the governance-weight token. The orchestrator
// must be its minter and the token must be non-transferable.
func (e *Engine) SetGovernanceToken(caller, tokenAddr common.Address) error {
	return e.setOnce(caller, "governanceToken", tokenAddr, func(cfg *Config) *common.Address { return &cfg.GovernanceToken }, func(cfg *Config) error {
		if e.tokens == nil {
			return errMissingDeps
		}
		meta, err := e.tokens.Metadata(tokenAddr)
		if err != nil {
			return err
		}
		if meta.Minter != cfg.Address || !meta.NonTransferable {
			return errForeignToken
		}
		return nil
	})
}

// SetRewardsEscrow records the escrow custody account.
func (e *Engine) SetRewardsEscrow(caller, escrowAddr common.Address) error {
	return e.setOnce(caller, "rewardsEscrow", escrowAddr, func(cfg *Config) *common.Address { return &cfg.RewardsEscrow }, func(cfg *Config) error {
		if e.escrow == nil {
			return errMissingDeps
		}
		escrowCfg, err := e.escrow.Config()
		if err != nil {
			return err
		}
		if escrowCfg.Address != escrowAddr || escrowCfg.Operator != cfg.Address || escrowCfg.Token != cfg.PrincipalToken {
			return errForeignEscrow
		}
		return nil
	})
}

// SetUserRewardPool records the protocol pool keyed by account.
func (e *Engine) SetUserRewardPool(caller, pool common.Address) error {
	return e.setOnce(caller, "userRewardPool", pool, func(cfg *Config) *common.Address { return &cfg.UserRewardPool }, e.ownedVirtualPool(pool))
}

// SetAppRewardPool records the protocol pool keyed by app.
func (e *Engine) SetAppRewardPool(caller, pool common.Address) error {
	return e.setOnce(caller, "appRewardPool", pool, func(cfg *Config) *common.Address { return &cfg.AppRewardPool }, e.ownedVirtualPool(pool))
}

func (e *Engine) ownedVirtualPool(pool common.Address) func(*Config) error {
	return func(cfg *Config) error {
		if e.pools == nil {
			return errMissingDeps
		}
		record, err := e.pools.Pool(pool)
		if err != nil {
			return err
		}
		if record.Operator != cfg.Address || record.Custodial() {
			return errForeignPool
		}
		return nil
	}
}

func (e *Engine) setOnce(caller common.Address, field string, value common.Address, slot func(*Config) *common.Address, check func(*Config) error) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if !e.state.HasRole(RoleAdmin, caller.Bytes()) {
		return errNotAdmin
	}
	if value == (common.Address{}) {
		return errZeroAddress
	}
	target := slot(cfg)
	if *target != (common.Address{}) {
		return nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "protocol engine: %s already set", field)
	}
	if check != nil {
		if err := check(cfg); err != nil {
			return err
		}
	}
	*target = value
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(configuredEvent(field, value))
	return nil
}

// ChangeEscrowCooldown updates the lock duration applied by future locks.
func (e *Engine) ChangeEscrowCooldown(caller common.Address, cooldown uint64) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if !e.state.HasRole(RoleAdmin, caller.Bytes()) {
		return errNotAdmin
	}
	if e.escrow == nil {
		return errMissingDeps
	}
	return e.escrow.SetCooldown(cfg.Address, cooldown)
}

// RegisterApp records a freshly deployed app. Only the app factory may call
// it and only once per app. New apps start out blacklisted.
func (e *Engine) RegisterApp(caller, app, pool, owner common.Address) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if cfg.AppFactory == (common.Address{}) || caller != cfg.AppFactory {
		return errNotFactory
	}
	if app == (common.Address{}) || owner == (common.Address{}) {
		return errZeroAddress
	}
	exists, err := e.state.KVGet(appKey(app), nil)
	if err != nil {
		return err
	}
	if exists {
		return errAppExists
	}
	if e.pools == nil {
		return errMissingDeps
	}
	record, err := e.pools.Pool(pool)
	if err != nil {
		return err
	}
	if record.Operator != cfg.Address || record.StakingToken != cfg.PrincipalToken {
		return errForeignPool
	}
	registration := &App{Address: app, Pool: pool, Owner: owner}
	if err := e.state.KVPut(appKey(app), registration); err != nil {
		return err
	}
	if err := e.state.KVAppend(registeredAppsIndex, app.Bytes()); err != nil {
		return err
	}
	e.emit(appEvent(EventTypeAppRegistered, registration))
	return nil
}

// WhitelistApp allows new stake into app and mirrors the app's existing stake
// into the protocol app pool.
func (e *Engine) WhitelistApp(caller, app common.Address) error {
	return e.setWhitelisted(caller, app, true)
}

// BlacklistApp blocks new stake into app and removes the app's stake from the
// protocol app pool. Unstaking stays possible.
func (e *Engine) BlacklistApp(caller, app common.Address) error {
	return e.setWhitelisted(caller, app, false)
}

func (e *Engine) setWhitelisted(caller, app common.Address, listed bool) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if !e.state.HasRole(RoleController, caller.Bytes()) {
		return errNotController
	}
	if !cfg.wired() {
		return errNotWired
	}
	record, err := e.App(app)
	if err != nil {
		return err
	}
	if record.Whitelisted == listed {
		return nil
	}
	total, err := e.AppTotal(app)
	if err != nil {
		return err
	}
	if total.Sign() > 0 {
		if listed {
			err = e.pools.Stake(cfg.Address, cfg.AppRewardPool, app, total)
		} else {
			err = e.pools.Withdraw(cfg.Address, cfg.AppRewardPool, app, total)
		}
		if err != nil {
			return err
		}
	}
	record.Whitelisted = listed
	if err := e.state.KVPut(appKey(app), record); err != nil {
		return err
	}
	kind := EventTypeAppBlacklisted
	if listed {
		kind = EventTypeAppWhitelisted
	}
	e.emit(appEvent(kind, record))
	return nil
}

// Pause halts every user-facing operation.
func (e *Engine) Pause(caller common.Address) error {
	return e.setPaused(caller, true)
}

// Unpause resumes user-facing operations.
func (e *Engine) Unpause(caller common.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller common.Address, paused bool) error {
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if !e.state.HasRole(RoleGuardian, caller.Bytes()) {
		return errNotGuardian
	}
	if cfg.Paused == paused {
		return nil
	}
	cfg.Paused = paused
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(pauseEvent(paused, caller))
	return nil
}
