package rewardsescrow

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
	errNilState       = errors.New("rewardsescrow engine: state not configured")
	errNilTokens      = errors.New("rewardsescrow engine: token ledger not configured")
	errNotConfigured  = errors.New("rewardsescrow engine: escrow not configured")
	errConfigured     = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "rewardsescrow engine: escrow already configured")
	errInvalidConfig  = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardsescrow engine: address, operator and token required")
	errNotOperator    = nativecommon.Wrap(nativecommon.ErrUnauthorized, "rewardsescrow engine: caller is not the operator")
	errZeroAmount     = nativecommon.Wrap(nativecommon.ErrInvalidInput, "rewardsescrow engine: amount must be positive")
	errNothingLocked  = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "rewardsescrow engine: nothing escrowed")
	errDebitTooLarge  = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "rewardsescrow engine: debit exceeds escrow")
	errStillLocked    = nativecommon.Wrap(nativecommon.ErrRewardsLocked, "rewardsescrow engine: cooldown has not elapsed")
	errCooldownTooBig = nativecommon.Wrap(nativecommon.ErrOverflow, "rewardsescrow engine: cooldown out of range")
)

var (
	configKey   = []byte("rewardsescrow/config")
	entryPrefix = []byte("rewardsescrow/entry/")
)

// maxCooldown keeps now+cooldown far away from wrapping.
const maxCooldown = uint64(100 * 365 * 24 * 60 * 60)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type tokenLedger interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
}

// Engine keeps a single running balance and unlock time per account.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs an escrow engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the ledger holding escrowed funds.
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

// Configure stores the escrow wiring. It may only run once.
func (e *Engine) Configure(cfg Config) error {
	if e.state == nil {
		return errNilState
	}
	var zero common.Address
	if cfg.Address == zero || cfg.Operator == zero || cfg.Token == zero {
		return errInvalidConfig
	}
	if cfg.Cooldown > maxCooldown {
		return errCooldownTooBig
	}
	exists, err := e.state.KVGet(configKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return errConfigured
	}
	return e.state.KVPut(configKey, cfg)
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
		return nil, errNotConfigured
	}
	return &cfg, nil
}

// SetCooldown changes the lock duration applied by future locks.
func (e *Engine) SetCooldown(caller common.Address, cooldown uint64) error {
	cfg, err := e.operatorConfig(caller)
	if err != nil {
		return err
	}
	if cooldown > maxCooldown {
		return errCooldownTooBig
	}
	previous := cfg.Cooldown
	cfg.Cooldown = cooldown
	if err := e.state.KVPut(configKey, cfg); err != nil {
		return err
	}
	e.emit(cooldownEvent(previous, cooldown))
	return nil
}

// Entry returns the escrow of account. Missing entries read as zero.
func (e *Engine) Entry(account common.Address) (*Entry, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var entry Entry
	if _, err := e.state.KVGet(entryKey(account), &entry); err != nil {
		return nil, err
	}
	if entry.Amount == nil {
		entry.Amount = big.NewInt(0)
	}
	return &entry, nil
}

// Lock pulls amount from the operator into escrow for account and restarts
// the cooldown.
func (e *Engine) Lock(caller, account common.Address, amount *big.Int) error {
	return e.deposit(caller, account, amount, true)
}

// Credit pulls amount from the operator into escrow without touching the
// unlock time.
func (e *Engine) Credit(caller, account common.Address, amount *big.Int) error {
	return e.deposit(caller, account, amount, false)
}

// Debit hands amount of account's escrow back to the operator. The unlock
// time is left untouched.
func (e *Engine) Debit(caller, account common.Address, amount *big.Int) error {
	cfg, err := e.operatorConfig(caller)
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	entry, err := e.Entry(account)
	if err != nil {
		return err
	}
	if entry.Amount.Cmp(amount) < 0 {
		return errDebitTooLarge
	}
	entry.Amount = new(big.Int).Sub(entry.Amount, amount)
	if err := e.state.KVPut(entryKey(account), entry); err != nil {
		return err
	}
	if err := e.tokens.Transfer(cfg.Token, cfg.Address, cfg.Operator, amount); err != nil {
		return err
	}
	e.emit(updatedEvent(account, entry, amount, ReasonDebit))
	return nil
}

// Release pays the full escrow to account once the cooldown has elapsed and
// clears the entry.
func (e *Engine) Release(caller, account common.Address) (*big.Int, error) {
	cfg, err := e.operatorConfig(caller)
	if err != nil {
		return nil, err
	}
	entry, err := e.Entry(account)
	if err != nil {
		return nil, err
	}
	if entry.Empty() {
		return nil, errNothingLocked
	}
	if e.now() < entry.UnlockTime {
		return nil, errStillLocked
	}
	amount := new(big.Int).Set(entry.Amount)
	if err := e.state.KVDelete(entryKey(account)); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(cfg.Token, cfg.Address, account, amount); err != nil {
		return nil, err
	}
	e.emit(updatedEvent(account, &Entry{Amount: big.NewInt(0)}, amount, ReasonRelease))
	return amount, nil
}

func (e *Engine) deposit(caller, account common.Address, amount *big.Int, resetCooldown bool) error {
	cfg, err := e.operatorConfig(caller)
	if err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	entry, err := e.Entry(account)
	if err != nil {
		return err
	}
	total, err := nativecommon.Add(entry.Amount, amount)
	if err != nil {
		return err
	}
	entry.Amount = total
	reason := ReasonCredit
	if resetCooldown {
		entry.UnlockTime = e.now() + cfg.Cooldown
		reason = ReasonLock
	}
	if err := e.tokens.Transfer(cfg.Token, cfg.Operator, cfg.Address, amount); err != nil {
		return err
	}
	if err := e.state.KVPut(entryKey(account), entry); err != nil {
		return err
	}
	e.emit(updatedEvent(account, entry, amount, reason))
	return nil
}

func (e *Engine) operatorConfig(caller common.Address) (*Config, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Operator {
		return nil, errNotOperator
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	return cfg, nil
}

func entryKey(account common.Address) []byte {
	return append(append([]byte(nil), entryPrefix...), account.Bytes()...)
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
