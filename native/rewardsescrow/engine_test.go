package rewardsescrow

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/state"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/token"
	"github.com/propsproject/props-protocol-sub000/storage"
)

var (
	rewardToken = common.HexToAddress("0x1000000000000000000000000000000000000001")
	custody     = common.HexToAddress("0x4000000000000000000000000000000000000001")
	operator    = common.HexToAddress("0x2000000000000000000000000000000000000001")
	alice       = common.HexToAddress("0x3000000000000000000000000000000000000001")
)

const cooldown = uint64(7 * 24 * 60 * 60)

type fixture struct {
	escrow *Engine
	tokens *token.Engine
	events *events.Buffer
	clock  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: 5_000_000, events: &events.Buffer{}}
	manager := state.NewManager(state.NewOverlay(storage.NewMemDB()))
	f.tokens = token.NewEngine()
	f.tokens.SetState(manager)
	require.NoError(t, f.tokens.Create(&token.Metadata{Address: rewardToken, Name: "Props", Symbol: "PROPS", Minter: operator}, operator, big.NewInt(1_000)))

	f.escrow = NewEngine()
	f.escrow.SetState(manager)
	f.escrow.SetTokens(f.tokens)
	f.escrow.SetEmitter(f.events)
	f.escrow.SetNowFunc(func() int64 { return f.clock })
	require.NoError(t, f.escrow.Configure(Config{Address: custody, Operator: operator, Token: rewardToken, Cooldown: cooldown}))
	return f
}

func (f *fixture) entry(t *testing.T) *Entry {
	t.Helper()
	entry, err := f.escrow.Entry(alice)
	require.NoError(t, err)
	return entry
}

func TestConfigureOnce(t *testing.T) {
	f := newFixture(t)
	err := f.escrow.Configure(Config{Address: custody, Operator: operator, Token: rewardToken})
	require.ErrorIs(t, err, nativecommon.ErrAlreadyConfigured)

	fresh := NewEngine()
	fresh.SetState(state.NewManager(state.NewOverlay(storage.NewMemDB())))
	require.ErrorIs(t, fresh.Configure(Config{Address: custody}), nativecommon.ErrInvalidInput)
}

func TestLockAndRelease(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock(operator, alice, big.NewInt(100)))

	entry := f.entry(t)
	require.Equal(t, int64(100), entry.Amount.Int64())
	require.Equal(t, uint64(f.clock)+cooldown, entry.UnlockTime)

	_, err := f.escrow.Release(operator, alice)
	require.ErrorIs(t, err, nativecommon.ErrRewardsLocked)

	f.clock += int64(cooldown)
	released, err := f.escrow.Release(operator, alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), released.Int64())

	entry = f.entry(t)
	require.True(t, entry.Empty())
	require.Zero(t, entry.UnlockTime)
	bal, err := f.tokens.BalanceOf(rewardToken, alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())

	_, err = f.escrow.Release(operator, alice)
	require.ErrorIs(t, err, nativecommon.ErrInsufficientBalance)
}

func TestCreditAndDebitKeepUnlockTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock(operator, alice, big.NewInt(100)))
	unlock := f.entry(t).UnlockTime

	f.clock += 60
	require.NoError(t, f.escrow.Credit(operator, alice, big.NewInt(50)))
	require.NoError(t, f.escrow.Debit(operator, alice, big.NewInt(120)))

	entry := f.entry(t)
	require.Equal(t, int64(30), entry.Amount.Int64())
	require.Equal(t, unlock, entry.UnlockTime)

	require.ErrorIs(t, f.escrow.Debit(operator, alice, big.NewInt(31)), nativecommon.ErrInsufficientBalance)

	f.clock += 60
	require.NoError(t, f.escrow.Lock(operator, alice, big.NewInt(1)))
	require.Equal(t, uint64(f.clock)+cooldown, f.entry(t).UnlockTime)

	held, err := f.tokens.BalanceOf(rewardToken, custody)
	require.NoError(t, err)
	require.Equal(t, int64(31), held.Int64())
}

func TestOperatorOnly(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.escrow.Lock(alice, alice, big.NewInt(1)), nativecommon.ErrUnauthorized)
	require.ErrorIs(t, f.escrow.SetCooldown(alice, 1), nativecommon.ErrUnauthorized)
	_, err := f.escrow.Release(alice, alice)
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
	require.ErrorIs(t, f.escrow.Lock(operator, alice, big.NewInt(0)), nativecommon.ErrInvalidInput)
}

func TestSetCooldown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.SetCooldown(operator, 60))
	cfg, err := f.escrow.Config()
	require.NoError(t, err)
	require.Equal(t, uint64(60), cfg.Cooldown)

	drained := f.events.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, EventTypeCooldownChanged, drained[0].Type)
	require.Equal(t, "60", drained[0].Attributes["cooldown"])

	require.ErrorIs(t, f.escrow.SetCooldown(operator, maxCooldown+1), nativecommon.ErrOverflow)
}
