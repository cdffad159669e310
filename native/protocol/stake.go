package protocol

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

var (
	errLengthMismatch = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: apps and amounts differ in length")
	errEmptyBatch     = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: empty batch")
	errNonPositive    = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: amounts must be positive")
	errNegative       = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: amounts must not be negative")
	errUnbalanced     = nativecommon.Wrap(nativecommon.ErrInvalidInput, "protocol engine: unstaked and staked sums differ")
	errOverdrawn      = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "protocol engine: unstake exceeds stake")
)

// entry is one validated element of a stake batch.
type entry struct {
	app    *App
	amount *big.Int
}

// stakePlan is a fully validated batch. Nothing has been written when a plan
// is returned.
type stakePlan struct {
	unstakes []entry
	stakes   []entry
	freed    *big.Int
	staked   *big.Int
}

// Stake applies signed per-app deltas to the caller's principal stake.
// Negative entries unstake, positive entries stake.
func (e *Engine) Stake(caller common.Address, apps []common.Address, amounts []*big.Int) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	return e.stake(cfg, caller, caller, caller, apps, amounts, ModePrincipal)
}

// StakeOnBehalf stakes the caller's principal into account's position. Every
// amount must be positive.
func (e *Engine) StakeOnBehalf(caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if account == (common.Address{}) {
		return errZeroAddress
	}
	if err := allPositive(amounts); err != nil {
		return err
	}
	return e.stake(cfg, caller, account, caller, apps, amounts, ModePrincipal)
}

// StakeAsDelegate rebalances account's principal stake on its behalf. The
// batch must not move value into or out of account.
func (e *Engine) StakeAsDelegate(caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if err := e.requireDelegate(caller, account); err != nil {
		return err
	}
	return e.stake(cfg, caller, account, account, apps, amounts, ModePrincipal)
}

// StakeRewards applies signed per-app deltas to the caller's reward stake,
// drawing from and returning to its escrow.
func (e *Engine) StakeRewards(caller common.Address, apps []common.Address, amounts []*big.Int) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	return e.stake(cfg, caller, caller, caller, apps, amounts, ModeRewards)
}

// StakeRewardsAsDelegate rebalances account's reward stake on its behalf.
func (e *Engine) StakeRewardsAsDelegate(caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if err := e.requireDelegate(caller, account); err != nil {
		return err
	}
	return e.stake(cfg, caller, account, account, apps, amounts, ModeRewards)
}

// ReallocateStakes moves principal stake between apps. The unstaked and
// staked sums must match exactly.
func (e *Engine) ReallocateStakes(caller common.Address, apps []common.Address, unstakeAmounts, stakeAmounts []*big.Int) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	batchApps, deltas, err := reallocationBatch(apps, unstakeAmounts, stakeAmounts)
	if err != nil {
		return err
	}
	return e.stake(cfg, caller, caller, caller, batchApps, deltas, ModePrincipal)
}

// ReallocateStakesAsDelegate moves account's principal stake between apps on
// its behalf.
func (e *Engine) ReallocateStakesAsDelegate(caller common.Address, apps []common.Address, unstakeAmounts, stakeAmounts []*big.Int, account common.Address) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if err := e.requireDelegate(caller, account); err != nil {
		return err
	}
	batchApps, deltas, err := reallocationBatch(apps, unstakeAmounts, stakeAmounts)
	if err != nil {
		return err
	}
	return e.stake(cfg, caller, account, account, batchApps, deltas, ModePrincipal)
}

// Unstake removes principal stake and returns it to the caller. Every amount
// must be positive.
func (e *Engine) Unstake(caller common.Address, apps []common.Address, amounts []*big.Int) error {
	cfg, err := e.ready()
	if err != nil {
		return err
	}
	if err := allPositive(amounts); err != nil {
		return err
	}
	negated := make([]*big.Int, len(amounts))
	for i, amount := range amounts {
		negated[i] = new(big.Int).Neg(amount)
	}
	return e.stake(cfg, caller, caller, caller, apps, negated, ModePrincipal)
}

func (e *Engine) requireDelegate(caller, account common.Address) error {
	if account == (common.Address{}) {
		return errZeroAddress
	}
	delegatee, ok, err := e.delegation.DelegateOf(account)
	if err != nil {
		return err
	}
	if !ok || delegatee != caller {
		return errNotDelegate
	}
	return nil
}

// stake runs one batch. account owns the ledger position, source supplies or
// receives net value and caller is the acting account.
func (e *Engine) stake(cfg *Config, caller, account, source common.Address, apps []common.Address, amounts []*big.Int, mode Mode) error {
	plan, err := e.plan(account, apps, amounts, mode)
	if err != nil {
		return err
	}
	if plan.freed.Cmp(plan.staked) != 0 && caller != source {
		return errNotSource
	}
	if err := e.apply(cfg, account, source, plan, mode); err != nil {
		return err
	}
	return e.checkWeight(cfg, account)
}

// plan validates the whole batch against the current ledger before anything
// is written.
func (e *Engine) plan(account common.Address, apps []common.Address, amounts []*big.Int, mode Mode) (*stakePlan, error) {
	if len(apps) != len(amounts) {
		return nil, errLengthMismatch
	}
	if len(apps) == 0 {
		return nil, errEmptyBatch
	}
	plan := &stakePlan{freed: big.NewInt(0), staked: big.NewInt(0)}
	available := make(map[common.Address]*big.Int)
	records := make(map[common.Address]*App)

	lookup := func(app common.Address) (*App, error) {
		if record, ok := records[app]; ok {
			return record, nil
		}
		record, err := e.App(app)
		if err != nil {
			return nil, err
		}
		records[app] = record
		return record, nil
	}

	negatives := make([]bool, len(amounts))
	magnitudes := make([]*big.Int, len(amounts))
	for i, amount := range amounts {
		negative, magnitude, err := nativecommon.SignedToMagnitude(amount)
		if err != nil {
			return nil, err
		}
		negatives[i], magnitudes[i] = negative, magnitude
	}

	// Unstakes first, then stakes, matching the order they are applied in.
	for i, app := range apps {
		magnitude := magnitudes[i]
		if !negatives[i] || magnitude.Sign() == 0 {
			continue
		}
		record, err := lookup(app)
		if err != nil {
			return nil, err
		}
		left, ok := available[app]
		if !ok {
			current, err := e.StakeOf(account, app)
			if err != nil {
				return nil, err
			}
			left = new(big.Int).Set(current.bucket(mode))
		}
		if left.Cmp(magnitude) < 0 {
			return nil, errOverdrawn
		}
		available[app] = left.Sub(left, magnitude)
		plan.freed.Add(plan.freed, magnitude)
		plan.unstakes = append(plan.unstakes, entry{app: record, amount: magnitude})
	}

	for i, app := range apps {
		magnitude := magnitudes[i]
		if negatives[i] || magnitude.Sign() == 0 {
			continue
		}
		record, err := lookup(app)
		if err != nil {
			return nil, err
		}
		if !record.Whitelisted {
			return nil, errAppNotListed
		}
		if plan.staked, err = nativecommon.Add(plan.staked, magnitude); err != nil {
			return nil, err
		}
		plan.stakes = append(plan.stakes, entry{app: record, amount: magnitude})
	}
	return plan, nil
}

func (e *Engine) apply(cfg *Config, account, source common.Address, plan *stakePlan, mode Mode) error {
	self := cfg.Address
	freed := new(big.Int).Set(plan.freed)

	for _, item := range plan.unstakes {
		if err := e.adjustLedger(account, item.app.Address, item.amount, mode, false); err != nil {
			return err
		}
		if err := e.pools.Withdraw(self, item.app.Pool, account, item.amount); err != nil {
			return err
		}
		if item.app.Whitelisted {
			if err := e.pools.Withdraw(self, cfg.AppRewardPool, item.app.Address, item.amount); err != nil {
				return err
			}
		}
	}

	for _, item := range plan.stakes {
		if err := e.adjustLedger(account, item.app.Address, item.amount, mode, true); err != nil {
			return err
		}
		reused := item.amount
		if freed.Cmp(reused) < 0 {
			reused = freed
		}
		fresh := new(big.Int).Sub(item.amount, reused)
		freed = new(big.Int).Sub(freed, reused)
		if fresh.Sign() > 0 {
			if err := e.pullFresh(cfg, account, source, fresh, mode); err != nil {
				return err
			}
		}
		if err := e.pools.Stake(self, item.app.Pool, account, item.amount); err != nil {
			return err
		}
		if err := e.pools.Stake(self, cfg.AppRewardPool, item.app.Address, item.amount); err != nil {
			return err
		}
	}

	if freed.Sign() > 0 {
		if err := e.sweep(cfg, account, source, freed, mode); err != nil {
			return err
		}
	}

	total, err := e.AccountTotal(account)
	if err != nil {
		return err
	}
	e.emit(accountStakeEvent(account, total))
	return nil
}

// pullFresh brings new value into the system: principal from the source's
// balance or reward value from the source's escrow, minted as weight and
// staked into the user pool.
func (e *Engine) pullFresh(cfg *Config, account, source common.Address, amount *big.Int, mode Mode) error {
	self := cfg.Address
	var err error
	if mode == ModeRewards {
		err = e.escrow.Debit(self, source, amount)
	} else {
		err = e.tokens.TransferFrom(cfg.PrincipalToken, self, source, self, amount)
	}
	if err != nil {
		return err
	}
	if err := e.tokens.Mint(cfg.GovernanceToken, self, account, amount); err != nil {
		return err
	}
	return e.pools.Stake(self, cfg.UserRewardPool, account, amount)
}

// sweep releases value freed by unstakes that no stake consumed.
func (e *Engine) sweep(cfg *Config, account, source common.Address, amount *big.Int, mode Mode) error {
	self := cfg.Address
	if err := e.pools.Withdraw(self, cfg.UserRewardPool, account, amount); err != nil {
		return err
	}
	if err := e.tokens.Burn(cfg.GovernanceToken, self, account, amount); err != nil {
		return err
	}
	if mode == ModeRewards {
		return e.escrow.Lock(self, source, amount)
	}
	return e.tokens.Transfer(cfg.PrincipalToken, self, source, amount)
}

// adjustLedger moves one ledger bucket together with the app and account
// totals and reports the new values.
func (e *Engine) adjustLedger(account, app common.Address, amount *big.Int, mode Mode, increase bool) error {
	stake, err := e.StakeOf(account, app)
	if err != nil {
		return err
	}
	appTotal, err := e.AppTotal(app)
	if err != nil {
		return err
	}
	accountTotal, err := e.AccountTotal(account)
	if err != nil {
		return err
	}
	step := func(v *big.Int) (*big.Int, error) {
		if increase {
			return nativecommon.Add(v, amount)
		}
		return nativecommon.Sub(v, amount)
	}
	bucket, err := step(stake.bucket(mode))
	if err != nil {
		return err
	}
	if appTotal, err = step(appTotal); err != nil {
		return err
	}
	if accountTotal, err = step(accountTotal); err != nil {
		return err
	}
	stake.setBucket(mode, bucket)
	if err := e.putStake(account, app, stake); err != nil {
		return err
	}
	if err := e.state.KVPut(appTotalKey(app), appTotal); err != nil {
		return err
	}
	if err := e.state.KVPut(accountTotalKey(account), accountTotal); err != nil {
		return err
	}
	e.emit(stakeBalanceEvent(account, app, stake))
	e.emit(appStakeEvent(app, appTotal))
	return nil
}

func allPositive(amounts []*big.Int) error {
	for _, amount := range amounts {
		if !nativecommon.IsPositive(amount) {
			return errNonPositive
		}
	}
	return nil
}

// reallocationBatch turns parallel unstake and stake arrays into one signed
// batch with every unstake ahead of every stake.
func reallocationBatch(apps []common.Address, unstakeAmounts, stakeAmounts []*big.Int) ([]common.Address, []*big.Int, error) {
	if len(apps) != len(unstakeAmounts) || len(apps) != len(stakeAmounts) {
		return nil, nil, errLengthMismatch
	}
	unstaked := big.NewInt(0)
	staked := big.NewInt(0)
	batchApps := make([]common.Address, 0, 2*len(apps))
	deltas := make([]*big.Int, 0, 2*len(apps))
	for i, app := range apps {
		if unstakeAmounts[i] == nil || stakeAmounts[i] == nil || unstakeAmounts[i].Sign() < 0 || stakeAmounts[i].Sign() < 0 {
			return nil, nil, errNegative
		}
		unstaked.Add(unstaked, unstakeAmounts[i])
		batchApps = append(batchApps, app)
		deltas = append(deltas, new(big.Int).Neg(unstakeAmounts[i]))
	}
	for i, app := range apps {
		staked.Add(staked, stakeAmounts[i])
		batchApps = append(batchApps, app)
		deltas = append(deltas, new(big.Int).Set(stakeAmounts[i]))
	}
	if unstaked.Cmp(staked) != 0 {
		return nil, nil, errUnbalanced
	}
	return batchApps, deltas, nil
}
