package rewardpool

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
	principal   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	appToken    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	operator    = common.HexToAddress("0x2000000000000000000000000000000000000001")
	distributor = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice       = common.HexToAddress("0x3000000000000000000000000000000000000001")
	bob         = common.HexToAddress("0x3000000000000000000000000000000000000002")
	poolAddr    = DeriveAddress("app", appToken.Bytes())
)

const (
	t0           = int64(1_000_000)
	tenDays      = uint64(10 * SecondsPerDay)
	fundedReward = int64(864_000_000) // 1000 per second over ten days
)

type fixture struct {
	pools  *Engine
	tokens *token.Engine
	events *events.Buffer
	clock  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: t0, events: &events.Buffer{}}
	manager := state.NewManager(state.NewOverlay(storage.NewMemDB()))

	f.tokens = token.NewEngine()
	f.tokens.SetState(manager)
	require.NoError(t, f.tokens.Create(&token.Metadata{Address: principal, Name: "Props", Symbol: "PROPS", Minter: operator}, operator, big.NewInt(1_000_000)))
	require.NoError(t, f.tokens.Create(&token.Metadata{Address: appToken, Name: "App", Symbol: "APP", Minter: distributor}, distributor, big.NewInt(10_000_000_000)))

	f.pools = NewEngine()
	f.pools.SetState(manager)
	f.pools.SetTokens(f.tokens)
	f.pools.SetEmitter(f.events)
	f.pools.SetNowFunc(func() int64 { return f.clock })

	_, err := f.pools.Create(Params{
		Address:       poolAddr,
		Operator:      operator,
		Distributor:   distributor,
		StakingToken:  principal,
		RewardsToken:  appToken,
		DailyEmission: new(big.Int).Quo(nativecommon.Scale, big.NewInt(10)),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) fund(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, f.tokens.Transfer(appToken, distributor, poolAddr, big.NewInt(amount)))
	require.NoError(t, f.pools.NotifyRewardAmount(distributor, poolAddr, big.NewInt(amount)))
}

func TestRewardsDurationFor(t *testing.T) {
	cases := []struct {
		emission *big.Int
		want     uint64
	}{
		{new(big.Int).Quo(nativecommon.Scale, big.NewInt(100)), 100 * SecondsPerDay},
		{big.NewInt(3_000_000_000_000_000), 333 * SecondsPerDay},
		{new(big.Int).Set(nativecommon.Scale), SecondsPerDay},
	}
	for _, tc := range cases {
		got, err := RewardsDurationFor(tc.emission)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	_, err := RewardsDurationFor(big.NewInt(0))
	require.ErrorIs(t, err, nativecommon.ErrInvalidInput)
	_, err = RewardsDurationFor(new(big.Int).Add(nativecommon.Scale, big.NewInt(1)))
	require.ErrorIs(t, err, nativecommon.ErrInvalidInput)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	_, err := f.pools.Create(Params{Address: poolAddr, Operator: operator, Distributor: distributor, RewardsToken: appToken, DailyEmission: nativecommon.Scale})
	require.ErrorIs(t, err, nativecommon.ErrAlreadyConfigured)

	status, err := f.pools.Status(poolAddr)
	require.NoError(t, err)
	require.Equal(t, StatusIdle, status)
}

func TestNotifyOnFreshPool(t *testing.T) {
	f := newFixture(t)
	f.fund(t, fundedReward)

	pool, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	require.Equal(t, tenDays, pool.RewardsDuration)
	require.Equal(t, int64(fundedReward)/int64(tenDays), pool.RewardRate.Int64())
	require.Equal(t, pool.LastUpdateTime+tenDays, pool.PeriodFinish)
	require.Equal(t, uint64(t0), pool.LastUpdateTime)

	forDuration, err := f.pools.RewardForDuration(poolAddr)
	require.NoError(t, err)
	require.Equal(t, int64(fundedReward), forDuration.Int64())

	status, err := f.pools.Status(poolAddr)
	require.NoError(t, err)
	require.Equal(t, StatusActive, status)

	f.clock += int64(tenDays)
	status, err = f.pools.Status(poolAddr)
	require.NoError(t, err)
	require.Equal(t, StatusDepleted, status)
}

func TestNotifyRequiresSolvency(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Transfer(appToken, distributor, poolAddr, big.NewInt(1_000)))
	err := f.pools.NotifyRewardAmount(distributor, poolAddr, big.NewInt(fundedReward))
	require.ErrorIs(t, err, nativecommon.ErrRewardRateTooHigh)

	err = f.pools.NotifyRewardAmount(operator, poolAddr, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
}

func TestNotifyCarriesLeftover(t *testing.T) {
	f := newFixture(t)
	f.fund(t, fundedReward)
	f.clock += int64(tenDays / 2)
	f.fund(t, fundedReward)

	pool, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	// Half of the first funding is still undistributed.
	require.Equal(t, int64(1_500), pool.RewardRate.Int64())
	require.Equal(t, uint64(f.clock)+tenDays, pool.PeriodFinish)
}

func TestStakeAndWithdrawCustody(t *testing.T) {
	f := newFixture(t)

	err := f.pools.Stake(alice, poolAddr, alice, big.NewInt(10))
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
	err = f.pools.Stake(operator, poolAddr, alice, big.NewInt(0))
	require.ErrorIs(t, err, nativecommon.ErrInvalidInput)

	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))
	held, err := f.tokens.BalanceOf(principal, poolAddr)
	require.NoError(t, err)
	require.Equal(t, int64(100), held.Int64())

	err = f.pools.Withdraw(operator, poolAddr, alice, big.NewInt(101))
	require.ErrorIs(t, err, nativecommon.ErrInsufficientBalance)

	require.NoError(t, f.pools.Withdraw(operator, poolAddr, alice, big.NewInt(40)))
	bal, err := f.pools.BalanceOf(poolAddr, alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Int64())
	total, err := f.pools.TotalStaked(poolAddr)
	require.NoError(t, err)
	require.Equal(t, int64(60), total.Int64())
	opBal, err := f.tokens.BalanceOf(principal, operator)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000-60), opBal.Int64())
}

func TestRewardConservation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))
	require.NoError(t, f.pools.Stake(operator, poolAddr, bob, big.NewInt(300)))
	f.fund(t, fundedReward)

	// An extra accrual checkpoint halfway through must not change the outcome.
	f.clock += int64(tenDays / 2)
	require.NoError(t, f.pools.Touch(operator, poolAddr, alice))

	f.clock += int64(tenDays)
	aliceEarned, err := f.pools.Earned(poolAddr, alice)
	require.NoError(t, err)
	bobEarned, err := f.pools.Earned(poolAddr, bob)
	require.NoError(t, err)

	sum := new(big.Int).Add(aliceEarned, bobEarned)
	require.True(t, sum.Cmp(big.NewInt(fundedReward)) <= 0)
	require.True(t, new(big.Int).Sub(big.NewInt(fundedReward), sum).Cmp(big.NewInt(3)) <= 0)
	require.Equal(t, int64(216_000_000), aliceEarned.Int64())
}

func TestClaimPaysPendingOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))
	f.fund(t, fundedReward)
	f.clock += 1_000

	// Without a checkpoint nothing is pending yet.
	paid, err := f.pools.ClaimReward(operator, poolAddr, alice, alice)
	require.NoError(t, err)
	require.Zero(t, paid.Sign())

	require.NoError(t, f.pools.Touch(operator, poolAddr, alice))
	paid, err = f.pools.ClaimReward(operator, poolAddr, alice, bob)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), paid.Int64())

	received, err := f.tokens.BalanceOf(appToken, bob)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), received.Int64())

	acct, err := f.pools.Account(poolAddr, alice)
	require.NoError(t, err)
	require.Zero(t, acct.PendingReward.Sign())

	_, err = f.pools.ClaimReward(alice, poolAddr, alice, alice)
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
}

func TestRestretchThrottle(t *testing.T) {
	f := newFixture(t)
	f.fund(t, fundedReward)
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))

	before, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(t0), before.LastStakeTime)

	f.clock = t0 + 3_600
	require.NoError(t, f.pools.Stake(operator, poolAddr, bob, big.NewInt(100)))
	within, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	require.Equal(t, before.RewardRate, within.RewardRate)
	require.Equal(t, before.PeriodFinish, within.PeriodFinish)
	require.Equal(t, before.LastStakeTime, within.LastStakeTime)

	f.events.Reset()
	f.clock = t0 + SecondsPerDay
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(1)))
	after, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	require.Equal(t, int64(900), after.RewardRate.Int64())
	require.Equal(t, uint64(f.clock)+tenDays, after.PeriodFinish)
	require.Equal(t, uint64(f.clock), after.LastStakeTime)

	drained := f.events.Drain()
	require.Equal(t, EventTypeRateRestretched, drained[len(drained)-1].Type)
}

func TestNoRestretchAfterPeriodEnds(t *testing.T) {
	f := newFixture(t)
	f.fund(t, fundedReward)
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))

	f.clock = t0 + int64(tenDays) + SecondsPerDay
	require.NoError(t, f.pools.Stake(operator, poolAddr, alice, big.NewInt(100)))
	pool, err := f.pools.Pool(poolAddr)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), pool.RewardRate.Int64())
	require.Equal(t, uint64(t0)+tenDays, pool.PeriodFinish)

	applicable, err := f.pools.LastTimeRewardApplicable(poolAddr)
	require.NoError(t, err)
	require.Equal(t, pool.PeriodFinish, applicable)
}

func TestVirtualPoolMovesNoPrincipal(t *testing.T) {
	f := newFixture(t)
	virtual := DeriveAddress("protocol/user", nil)
	_, err := f.pools.Create(Params{Address: virtual, Operator: operator, Distributor: distributor, RewardsToken: appToken, DailyEmission: nativecommon.Scale})
	require.NoError(t, err)

	require.NoError(t, f.pools.Stake(operator, virtual, alice, big.NewInt(500)))
	held, err := f.tokens.BalanceOf(principal, virtual)
	require.NoError(t, err)
	require.Zero(t, held.Sign())
	require.NoError(t, f.pools.Withdraw(operator, virtual, alice, big.NewInt(500)))
}
