package token

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/text/unicode/norm"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

var (
	errNilState        = errors.New("token engine: state not configured")
	errUnknownToken    = nativecommon.Wrap(nativecommon.ErrInvalidInput, "token engine: unknown token")
	errTokenExists     = nativecommon.Wrap(nativecommon.ErrAlreadyConfigured, "token engine: token already exists")
	errNonTransferable = nativecommon.Wrap(nativecommon.ErrUnauthorized, "token engine: token is non-transferable")
	errNotMinter       = nativecommon.Wrap(nativecommon.ErrUnauthorized, "token engine: caller is not the minter")
	errBadSignature    = nativecommon.Wrap(nativecommon.ErrUnauthorized, "token engine: invalid permit signature")
	errPermitExpired   = nativecommon.Wrap(nativecommon.ErrInvalidInput, "token engine: permit expired")
	errZeroAddress     = nativecommon.Wrap(nativecommon.ErrInvalidInput, "token engine: zero address")
	errInvalidMetadata = nativecommon.Wrap(nativecommon.ErrInvalidInput, "token engine: name and symbol required")
	errAllowanceTooLow = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "token engine: allowance exceeded")
	errBalanceTooLow   = nativecommon.Wrap(nativecommon.ErrInsufficientBalance, "token engine: balance exceeded")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine keeps fungible token balances, allowances and permit nonces.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	chainID *big.Int
}

// NewEngine constructs a token engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		chainID: big.NewInt(1),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for permit deadlines.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetChainID configures the chain identifier mixed into permit domains.
func (e *Engine) SetChainID(id *big.Int) {
	if id == nil {
		id = big.NewInt(1)
	}
	e.chainID = new(big.Int).Set(id)
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

func normalizeLabel(value string) string {
	return norm.NFKC.String(strings.TrimSpace(value))
}

// Create registers a new token and credits supply to holder.
func (e *Engine) Create(meta *Metadata, holder common.Address, supply *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if meta == nil || meta.Address == (common.Address{}) {
		return errZeroAddress
	}
	record := meta.Clone()
	record.Name = normalizeLabel(record.Name)
	record.Symbol = strings.ToUpper(normalizeLabel(record.Symbol))
	if record.Name == "" || record.Symbol == "" {
		return errInvalidMetadata
	}
	ok, err := e.state.KVGet(metadataKey(record.Address), nil)
	if err != nil {
		return err
	}
	if ok {
		return errTokenExists
	}
	record.TotalSupply = big.NewInt(0)
	if err := e.state.KVPut(metadataKey(record.Address), record); err != nil {
		return err
	}
	e.emit(createdEvent(record))
	if nativecommon.IsPositive(supply) {
		if holder == (common.Address{}) {
			return errZeroAddress
		}
		return e.mint(record, holder, supply)
	}
	return nil
}

// Metadata returns the registered token metadata.
func (e *Engine) Metadata(token common.Address) (*Metadata, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var meta Metadata
	ok, err := e.state.KVGet(metadataKey(token), &meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnknownToken
	}
	meta.TotalSupply = copyInt(meta.TotalSupply)
	return &meta, nil
}

// BalanceOf returns the token balance held by account.
func (e *Engine) BalanceOf(token, account common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.loadInt(balanceKey(token, account))
}

// Allowance returns the amount spender may move on behalf of owner.
func (e *Engine) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.loadInt(allowanceKey(token, owner, spender))
}

// Nonce returns the next permit nonce for owner.
func (e *Engine) Nonce(token, owner common.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.loadInt(nonceKey(token, owner))
}

// Transfer moves amount from the calling account to recipient.
func (e *Engine) Transfer(token, from, to common.Address, amount *big.Int) error {
	meta, err := e.transferable(token)
	if err != nil {
		return err
	}
	return e.move(meta.Address, from, to, amount)
}

// TransferFrom spends spender's allowance over from's balance.
func (e *Engine) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	meta, err := e.transferable(token)
	if err != nil {
		return err
	}
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if spender != from && amount.Sign() > 0 {
		allowance, err := e.loadInt(allowanceKey(token, from, spender))
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return errAllowanceTooLow
		}
		if err := e.state.KVPut(allowanceKey(token, from, spender), new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return e.move(meta.Address, from, to, amount)
}

// Approve sets spender's allowance over owner's balance.
func (e *Engine) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if _, err := e.transferable(token); err != nil {
		return err
	}
	return e.approve(token, owner, spender, amount)
}

// Permit applies an approval signed off-chain by the owner. The nonce is
// consumed on success.
func (e *Engine) Permit(req PermitRequest) error {
	meta, err := e.transferable(req.Token)
	if err != nil {
		return err
	}
	if e.now() > req.Deadline {
		return errPermitExpired
	}
	nonce, err := e.loadInt(nonceKey(req.Token, req.Owner))
	if err != nil {
		return err
	}
	digest := PermitDigest(e.DomainSeparator(meta), req.Owner, req.Spender, req.Value, nonce, req.Deadline)
	signer, err := recoverSigner(digest, req.Signature)
	if err != nil {
		return err
	}
	if signer != req.Owner {
		return errBadSignature
	}
	if err := e.state.KVPut(nonceKey(req.Token, req.Owner), new(big.Int).Add(nonce, big.NewInt(1))); err != nil {
		return err
	}
	return e.approve(req.Token, req.Owner, req.Spender, req.Value)
}

// DomainSeparator returns the permit domain for the token.
func (e *Engine) DomainSeparator(meta *Metadata) []byte {
	return DomainSeparator(meta.Name, meta.Address, e.chainID)
}

// Mint creates amount new units for to. Only the minter may call it.
func (e *Engine) Mint(token, caller, to common.Address, amount *big.Int) error {
	meta, err := e.Metadata(token)
	if err != nil {
		return err
	}
	if caller != meta.Minter {
		return errNotMinter
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	return e.mint(meta, to, amount)
}

// Burn destroys amount units held by from. Only the minter may call it.
func (e *Engine) Burn(token, caller, from common.Address, amount *big.Int) error {
	meta, err := e.Metadata(token)
	if err != nil {
		return err
	}
	if caller != meta.Minter {
		return errNotMinter
	}
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.loadInt(balanceKey(token, from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errBalanceTooLow
	}
	if err := e.state.KVPut(balanceKey(token, from), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	meta.TotalSupply = new(big.Int).Sub(meta.TotalSupply, amount)
	if err := e.state.KVPut(metadataKey(token), meta); err != nil {
		return err
	}
	e.emit(transferEvent(token, from, common.Address{}, amount))
	return nil
}

func (e *Engine) mint(meta *Metadata, to common.Address, amount *big.Int) error {
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	supply, err := nativecommon.Add(meta.TotalSupply, amount)
	if err != nil {
		return err
	}
	balance, err := e.loadInt(balanceKey(meta.Address, to))
	if err != nil {
		return err
	}
	if err := e.state.KVPut(balanceKey(meta.Address, to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	meta.TotalSupply = supply
	if err := e.state.KVPut(metadataKey(meta.Address), meta); err != nil {
		return err
	}
	e.emit(transferEvent(meta.Address, common.Address{}, to, amount))
	return nil
}

func (e *Engine) transferable(token common.Address) (*Metadata, error) {
	meta, err := e.Metadata(token)
	if err != nil {
		return nil, err
	}
	if meta.NonTransferable {
		return nil, errNonTransferable
	}
	return meta, nil
}

func (e *Engine) approve(token, owner, spender common.Address, amount *big.Int) error {
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return errZeroAddress
	}
	if err := e.state.KVPut(allowanceKey(token, owner, spender), new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emit(approvalEvent(token, owner, spender, amount))
	return nil
}

func (e *Engine) move(token, from, to common.Address, amount *big.Int) error {
	if err := nativecommon.CheckAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return errZeroAddress
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := e.loadInt(balanceKey(token, from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return errBalanceTooLow
	}
	toBal, err := e.loadInt(balanceKey(token, to))
	if err != nil {
		return err
	}
	if err := e.state.KVPut(balanceKey(token, from), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := e.state.KVPut(balanceKey(token, to), new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	e.emit(transferEvent(token, from, to, amount))
	return nil
}

func (e *Engine) loadInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := e.state.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}
