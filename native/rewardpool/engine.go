package rewardpool

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

var (
	errNilState        = errors.New("rewardpool engine: state not configured")
	errNilTokens       = errors.New("rewardpool engine: token ledger not configured")
	errPoolNotFound    = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardpool engine: pool not found")
	errPoolExists      = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "rewardpool engine: pool already exists")
	errNotOperator     = nativecommon.Wrap(nativecommon.ErrUnauthorized, "rewardpool engine: caller is not the operator")
	errNotDistributor  = nativecommon.Wrap(nativecommon.ErrUnauthorized, "rewardpool engine: caller is not the distributor")
	errZeroAmount      = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardpool engine: amount must be positive")
	errInvalidParams   = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardpool engine: invalid pool parameters")
	errInvalidEmission = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardpool engine: daily emission must be in (0, 1e18]")
	errWithdrawTooMuch = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "rewardpool engine: withdraw exceeds balance")
	errRateTooHigh     = nativecommon.Wrap(nativecommon.ErrRewardRateTooHigh, "rewardpool engine: provided reward too high")
)

var (
	poolPrefix    = []byte("rewardpool/pool/")
	accountPrefix = []byte("rewardpool/account/")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type tokenLedger interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
	BalanceOf(token, account common.Address) (*big.Int, error)
}

// Engine implements the reward-per-unit accrual logic shared by every pool.
// Pools are independent records keyed by address.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a reward pool engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the ledger used for principal custody and payouts.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// RewardsDurationFor converts a daily emission fraction (scaled by 1e18) into
// the length of a reward period in seconds. The division is truncated before
// the day multiplier is applied.
func RewardsDurationFor(dailyEmission *big.Int) (uint64, error) {
	if !nativecommon.IsPositive(dailyEmission) || dailyEmission.Cmp(nativecommon.Scale) > 0 {
		return 0, errInvalidEmission
	}
	days := new(big.Int).Quo(nativecommon.Scale, dailyEmission)
	duration := new(big.Int).Mul(days, big.NewInt(SecondsPerDay))
	if !duration.IsUint64() {
		return 0, nativecommon.Wrap(nativecommon.ErrOverflow, "rewardpool engine: rewards duration")
	}
	return duration.Uint64(), nil
}

// Create registers a fresh pool with zero state.
func (e *Engine) Create(params Params) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var zero common.Address
	if params.Address == zero || params.Operator == zero || params.Distributor == zero || params.RewardsToken == zero {
		return nil, errInvalidParams
	}
	duration, err := RewardsDurationFor(params.DailyEmission)
	if err != nil {
		return nil, err
	}
	exists, err := e.state.KVGet(poolKey(params.Address), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errPoolExists
	}
	pool := &Pool{
		Address:         params.Address,
		Operator:        params.Operator,
		Distributor:     params.Distributor,
		StakingToken:    params.StakingToken,
		RewardsToken:    params.RewardsToken,
		DailyEmission:   new(big.Int).Set(params.DailyEmission),
		RewardsDuration: duration,
	}
	pool.normalize()
	if err := e.putPool(pool); err != nil {
		return nil, err
	}
	e.emit(createdEvent(pool))
	return pool.Clone(), nil
}

// Stake credits amount to account and pulls principal from the operator when
// the pool is custodial. A stake at least a day after the previous restretch
// spreads the undistributed reward over a fresh full period.
func (e *Engine) Stake(caller, poolAddr, account common.Address, amount *big.Int) error {
	pool, acct, err := e.loadForOperator(caller, poolAddr, account)
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	now := e.now()
	if err := updateReward(pool, acct, now); err != nil {
		return err
	}
	total, err := nativecommon.Add(pool.TotalStaked, amount)
	if err != nil {
		return err
	}
	balance, err := nativecommon.Add(acct.Balance, amount)
	if err != nil {
		return err
	}
	pool.TotalStaked = total
	acct.Balance = balance
	if pool.Custodial() {
		if e.tokens == nil {
			return errNilTokens
		}
		if err := e.tokens.Transfer(pool.StakingToken, pool.Operator, pool.Address, amount); err != nil {
			return err
		}
	}

	restretched := false
	switch {
	case pool.LastStakeTime == 0:
		pool.LastStakeTime = now
	case now < pool.PeriodFinish && now >= pool.LastStakeTime && now-pool.LastStakeTime >= SecondsPerDay:
		remaining := new(big.Int).SetUint64(pool.PeriodFinish - now)
		rate, err := nativecommon.MulDiv(remaining, pool.RewardRate, new(big.Int).SetUint64(pool.RewardsDuration))
		if err != nil {
			return err
		}
		pool.RewardRate = rate
		pool.PeriodFinish = now + pool.RewardsDuration
		pool.LastStakeTime = now
		restretched = true
	}

	if err := e.save(pool, account, acct); err != nil {
		return err
	}
	e.emit(balanceEvent(EventTypeStaked, pool, account, amount, acct.Balance))
	if restretched {
		e.emit(restretchedEvent(pool))
	}
	return nil
}

// Withdraw debits amount from account and returns principal to the operator
// when the pool is custodial.
func (e *Engine) Withdraw(caller, poolAddr, account common.Address, amount *big.Int) error {
	pool, acct, err := e.loadForOperator(caller, poolAddr, account)
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	if err := updateReward(pool, acct, e.now()); err != nil {
		return err
	}
	if acct.Balance.Cmp(amount) < 0 {
		return errWithdrawTooMuch
	}
	acct.Balance = new(big.Int).Sub(acct.Balance, amount)
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	if pool.Custodial() {
		if e.tokens == nil {
			return errNilTokens
		}
		if err := e.tokens.Transfer(pool.StakingToken, pool.Address, pool.Operator, amount); err != nil {
			return err
		}
	}
	if err := e.save(pool, account, acct); err != nil {
		return err
	}
	e.emit(balanceEvent(EventTypeWithdrawn, pool, account, amount, acct.Balance))
	return nil
}

// Touch brings the accumulator and the account's pending reward up to date
// without changing balances.
func (e *Engine) Touch(caller, poolAddr, account common.Address) error {
	pool, acct, err := e.loadForOperator(caller, poolAddr, account)
	if err != nil {
		return err
	}
	if err := updateReward(pool, acct, e.now()); err != nil {
		return err
	}
	return e.save(pool, account, acct)
}

// ClaimReward pays the account's pending reward to recipient and returns the
// amount paid. Accrual is not refreshed here; callers Touch first.
func (e *Engine) ClaimReward(caller, poolAddr, account, recipient common.Address) (*big.Int, error) {
	pool, acct, err := e.loadForOperator(caller, poolAddr, account)
	if err != nil {
		return nil, err
	}
	reward := new(big.Int).Set(acct.PendingReward)
	if reward.Sign() == 0 {
		return reward, nil
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	acct.PendingReward = big.NewInt(0)
	if err := e.putAccount(pool.Address, account, acct); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(pool.RewardsToken, pool.Address, recipient, reward); err != nil {
		return nil, err
	}
	e.emit(rewardPaidEvent(pool, account, recipient, reward))
	return reward, nil
}

// NotifyRewardAmount starts a new reward period carrying over whatever the
// current period has not yet distributed. The pool must already hold enough
// reward tokens to pay the resulting rate for a full period.
func (e *Engine) NotifyRewardAmount(caller, poolAddr common.Address, reward *big.Int) error {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return err
	}
	if caller != pool.Distributor {
		return errNotDistributor
	}
	if err := nativecommon.CheckAmount(reward); err != nil {
		return err
	}
	if e.tokens == nil {
		return errNilTokens
	}
	now := e.now()
	if err := updateReward(pool, nil, now); err != nil {
		return err
	}
	duration := new(big.Int).SetUint64(pool.RewardsDuration)
	funding := new(big.Int).Set(reward)
	if now < pool.PeriodFinish {
		leftover, err := nativecommon.MulDiv(new(big.Int).SetUint64(pool.PeriodFinish-now), pool.RewardRate, big.NewInt(1))
		if err != nil {
			return err
		}
		if funding, err = nativecommon.Add(funding, leftover); err != nil {
			return err
		}
	}
	rate := new(big.Int).Quo(funding, duration)

	available, err := e.tokens.BalanceOf(pool.RewardsToken, pool.Address)
	if err != nil {
		return err
	}
	if pool.RewardsToken == pool.StakingToken {
		available = new(big.Int).Sub(available, pool.TotalStaked)
	}
	if available.Sign() < 0 || rate.Cmp(new(big.Int).Quo(available, duration)) > 0 {
		return errRateTooHigh
	}

	pool.RewardRate = rate
	pool.LastUpdateTime = now
	pool.PeriodFinish = now + pool.RewardsDuration
	if err := e.putPool(pool); err != nil {
		return err
	}
	e.emit(rewardAddedEvent(pool, reward))
	return nil
}

// Pool returns the stored pool record.
func (e *Engine) Pool(addr common.Address) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var pool Pool
	ok, err := e.state.KVGet(poolKey(addr), &pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errPoolNotFound
	}
	pool.normalize()
	return &pool, nil
}

// Account returns the stored position of account in the pool.
func (e *Engine) Account(poolAddr, account common.Address) (*AccountState, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var acct AccountState
	if _, err := e.state.KVGet(accountKey(poolAddr, account), &acct); err != nil {
		return nil, err
	}
	acct.normalize()
	return &acct, nil
}

// Earned returns the reward accrued by account up to now.
func (e *Engine) Earned(poolAddr, account common.Address) (*big.Int, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return nil, err
	}
	acct, err := e.Account(poolAddr, account)
	if err != nil {
		return nil, err
	}
	rpu, err := rewardPerUnit(pool, e.now())
	if err != nil {
		return nil, err
	}
	return earned(acct, rpu)
}

// RewardPerUnit returns the accumulator value at the current time.
func (e *Engine) RewardPerUnit(poolAddr common.Address) (*big.Int, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return nil, err
	}
	return rewardPerUnit(pool, e.now())
}

// BalanceOf returns account's staked balance.
func (e *Engine) BalanceOf(poolAddr, account common.Address) (*big.Int, error) {
	acct, err := e.Account(poolAddr, account)
	if err != nil {
		return nil, err
	}
	return acct.Balance, nil
}

// TotalStaked returns the sum of all balances in the pool.
func (e *Engine) TotalStaked(poolAddr common.Address) (*big.Int, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return nil, err
	}
	return pool.TotalStaked, nil
}

// RewardForDuration returns the reward a full period emits at the current rate.
func (e *Engine) RewardForDuration(poolAddr common.Address) (*big.Int, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(pool.RewardRate, new(big.Int).SetUint64(pool.RewardsDuration)), nil
}

// LastTimeRewardApplicable returns min(now, periodFinish).
func (e *Engine) LastTimeRewardApplicable(poolAddr common.Address) (uint64, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return 0, err
	}
	return lastTimeRewardApplicable(pool, e.now()), nil
}

// Status reports where the pool sits in its funding lifecycle.
func (e *Engine) Status(poolAddr common.Address) (Status, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return StatusIdle, err
	}
	switch {
	case pool.PeriodFinish == 0:
		return StatusIdle, nil
	case e.now() < pool.PeriodFinish:
		return StatusActive, nil
	default:
		return StatusDepleted, nil
	}
}

func (e *Engine) loadForOperator(caller, poolAddr, account common.Address) (*Pool, *AccountState, error) {
	pool, err := e.Pool(poolAddr)
	if err != nil {
		return nil, nil, err
	}
	if caller != pool.Operator {
		return nil, nil, errNotOperator
	}
	acct, err := e.Account(poolAddr, account)
	if err != nil {
		return nil, nil, err
	}
	return pool, acct, nil
}

func (e *Engine) save(pool *Pool, account common.Address, acct *AccountState) error {
	if err := e.putPool(pool); err != nil {
		return err
	}
	return e.putAccount(pool.Address, account, acct)
}

func (e *Engine) putPool(pool *Pool) error {
	return e.state.KVPut(poolKey(pool.Address), pool)
}

func (e *Engine) putAccount(poolAddr, account common.Address, acct *AccountState) error {
	return e.state.KVPut(accountKey(poolAddr, account), acct)
}

func poolKey(addr common.Address) []byte {
	return append(append([]byte(nil), poolPrefix...), addr.Bytes()...)
}

func accountKey(poolAddr, account common.Address) []byte {
	buf := append(append([]byte(nil), accountPrefix...), poolAddr.Bytes()...)
	return append(buf, account.Bytes()...)
}

func positive(amount *big.Int) error {
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return errZeroAmount
	}
	return nil
}
