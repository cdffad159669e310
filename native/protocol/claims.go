package protocol

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

// ClaimAppRewards pays the caller's accrued app-token rewards from app's pool.
func (e *Engine) ClaimAppRewards(caller, app common.Address) (*big.Int, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	record, err := e.App(app)
	if err != nil {
		return nil, err
	}
	amount, err := e.claim(cfg, record.Pool, caller, caller)
	if err != nil {
		return nil, err
	}
	e.emit(rewardsClaimedEvent(ClaimKindApp, caller, app, caller, amount))
	return amount, nil
}

// ClaimAppProtocolRewards lets an app owner collect the protocol rewards the
// app accrued in the protocol app pool.
func (e *Engine) ClaimAppProtocolRewards(caller, app, wallet common.Address) (*big.Int, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	record, err := e.App(app)
	if err != nil {
		return nil, err
	}
	if caller != record.Owner {
		return nil, errNotAppOwner
	}
	if wallet == (common.Address{}) {
		return nil, errZeroAddress
	}
	amount, err := e.claim(cfg, cfg.AppRewardPool, app, wallet)
	if err != nil {
		return nil, err
	}
	e.emit(rewardsClaimedEvent(ClaimKindAppProtocol, app, cfg.AppRewardPool, wallet, amount))
	return amount, nil
}

// ClaimProtocolRewards moves the caller's protocol rewards into escrow and
// restarts its cooldown.
func (e *Engine) ClaimProtocolRewards(caller common.Address) (*big.Int, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	amount, err := e.claim(cfg, cfg.UserRewardPool, caller, cfg.Address)
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		if err := e.escrow.Lock(cfg.Address, caller, amount); err != nil {
			return nil, err
		}
	}
	e.emit(rewardsClaimedEvent(ClaimKindProtocol, caller, cfg.UserRewardPool, cfg.RewardsEscrow, amount))
	return amount, nil
}

// ClaimProtocolRewardsAndStake claims the caller's protocol rewards and stakes
// them straight back as reward stake, split across apps in parts per million.
// Apps given a zero share are ignored. The escrow cooldown is left untouched.
func (e *Engine) ClaimProtocolRewardsAndStake(caller common.Address, apps []common.Address, shares []uint32) (*big.Int, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	if len(apps) != len(shares) {
		return nil, errLengthMismatch
	}
	if err := nativecommon.CheckPPM(shares); err != nil {
		return nil, err
	}
	targets := make([]common.Address, 0, len(apps))
	weights := make([]uint32, 0, len(shares))
	for i, app := range apps {
		if shares[i] == 0 {
			continue
		}
		record, err := e.App(app)
		if err != nil {
			return nil, err
		}
		if !record.Whitelisted {
			return nil, errAppNotListed
		}
		targets = append(targets, app)
		weights = append(weights, shares[i])
	}

	amount, err := e.claim(cfg, cfg.UserRewardPool, caller, cfg.Address)
	if err != nil {
		return nil, err
	}
	e.emit(rewardsClaimedEvent(ClaimKindProtocolStake, caller, cfg.UserRewardPool, caller, amount))
	if amount.Sign() == 0 {
		return amount, nil
	}
	parts, err := nativecommon.SplitPPM(amount, weights)
	if err != nil {
		return nil, err
	}
	if err := e.escrow.Credit(cfg.Address, caller, amount); err != nil {
		return nil, err
	}
	if err := e.stake(cfg, caller, caller, caller, targets, parts, ModeRewards); err != nil {
		return nil, err
	}
	return amount, nil
}

// UnlockRewards releases the caller's escrow once its cooldown has elapsed.
func (e *Engine) UnlockRewards(caller common.Address) (*big.Int, error) {
	cfg, err := e.ready()
	if err != nil {
		return nil, err
	}
	return e.escrow.Release(cfg.Address, caller)
}

// Delegate sets the caller's delegatee. The zero address or the caller
// itself clears it.
func (e *Engine) Delegate(caller, to common.Address) error {
	if _, err := e.ready(); err != nil {
		return err
	}
	return e.delegation.Delegate(caller, to)
}

func (e *Engine) claim(cfg *Config, pool, account, recipient common.Address) (*big.Int, error) {
	if err := e.pools.Touch(cfg.Address, pool, account); err != nil {
		return nil, err
	}
	return e.pools.ClaimReward(cfg.Address, pool, account, recipient)
}
