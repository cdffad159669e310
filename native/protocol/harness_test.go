package protocol

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/state"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/delegation"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/rewardsescrow"
	"github.com/propsproject/props-protocol-sub000/native/token"
	"github.com/propsproject/props-protocol-sub000/storage"
)

var (
	orchestrator = common.HexToAddress("0x0100000000000000000000000000000000000001")
	principal    = common.HexToAddress("0x0100000000000000000000000000000000000002")
	governance   = common.HexToAddress("0x0100000000000000000000000000000000000003")
	escrowAddr   = common.HexToAddress("0x0100000000000000000000000000000000000004")
	userPool     = rewardpool.DeriveAddress("protocol/user", nil)
	appPool      = rewardpool.DeriveAddress("protocol/app", nil)

	admin      = common.HexToAddress("0x0200000000000000000000000000000000000001")
	controller = common.HexToAddress("0x0200000000000000000000000000000000000002")
	guardian   = common.HexToAddress("0x0200000000000000000000000000000000000003")
	factory    = common.HexToAddress("0x0200000000000000000000000000000000000004")
	treasury   = common.HexToAddress("0x0200000000000000000000000000000000000005")

	alice = common.HexToAddress("0x0300000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0300000000000000000000000000000000000002")
	carol = common.HexToAddress("0x0300000000000000000000000000000000000003")

	appA   = common.HexToAddress("0x0a00000000000000000000000000000000000001")
	appB   = common.HexToAddress("0x0a00000000000000000000000000000000000002")
	appC   = common.HexToAddress("0x0a00000000000000000000000000000000000003")
	ownerA = common.HexToAddress("0x0b00000000000000000000000000000000000001")
)

const (
	start       = int64(1_700_000_000)
	day         = int64(rewardpool.SecondsPerDay)
	cooldown    = uint64(3 * rewardpool.SecondsPerDay)
	userBalance = int64(10_000)
)

type harness struct {
	t        *testing.T
	manager  *state.Manager
	tokens   *token.Engine
	pools    *rewardpool.Engine
	escrow   *rewardsescrow.Engine
	registry *delegation.Registry
	protocol *Engine
	events   *events.Buffer
	clock    int64
}

var unlimited = new(big.Int).Lsh(big.NewInt(1), 128)

func tenthPerDay() *big.Int {
	return new(big.Int).Quo(nativecommon.Scale, big.NewInt(10))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, clock: start, events: &events.Buffer{}}
	now := func() int64 { return h.clock }
	h.manager = state.NewManager(state.NewOverlay(storage.NewMemDB()))

	h.tokens = token.NewEngine()
	h.tokens.SetState(h.manager)
	h.tokens.SetNowFunc(now)
	h.tokens.SetEmitter(h.events)

	h.pools = rewardpool.NewEngine()
	h.pools.SetState(h.manager)
	h.pools.SetTokens(h.tokens)
	h.pools.SetNowFunc(now)
	h.pools.SetEmitter(h.events)

	h.escrow = rewardsescrow.NewEngine()
	h.escrow.SetState(h.manager)
	h.escrow.SetTokens(h.tokens)
	h.escrow.SetNowFunc(now)
	h.escrow.SetEmitter(h.events)

	h.registry = delegation.NewRegistry()
	h.registry.SetState(h.manager)
	h.registry.SetEmitter(h.events)

	h.protocol = NewEngine()
	h.protocol.SetState(h.manager)
	h.protocol.SetTokens(h.tokens)
	h.protocol.SetPools(h.pools)
	h.protocol.SetEscrow(h.escrow)
	h.protocol.SetDelegation(h.registry)
	h.protocol.SetEmitter(h.events)

	require.NoError(t, h.manager.SetRole(RoleAdmin, admin.Bytes()))
	require.NoError(t, h.manager.SetRole(RoleController, controller.Bytes()))
	require.NoError(t, h.manager.SetRole(RoleGuardian, guardian.Bytes()))

	require.NoError(t, h.tokens.Create(&token.Metadata{Address: principal, Name: "Props", Symbol: "PROPS", Decimals: 18, Minter: treasury}, treasury, big.NewInt(1_000_000_000_000)))
	require.NoError(t, h.tokens.Create(&token.Metadata{Address: governance, Name: "Staked Props", Symbol: "SPROPS", Decimals: 18, Minter: orchestrator, NonTransferable: true}, common.Address{}, nil))

	for _, pool := range []common.Address{userPool, appPool} {
		_, err := h.pools.Create(rewardpool.Params{Address: pool, Operator: orchestrator, Distributor: treasury, RewardsToken: principal, DailyEmission: tenthPerDay()})
		require.NoError(t, err)
	}
	require.NoError(t, h.escrow.Configure(rewardsescrow.Config{Address: escrowAddr, Operator: orchestrator, Token: principal, Cooldown: cooldown}))

	require.NoError(t, h.protocol.Initialize(admin, orchestrator, principal))
	require.NoError(t, h.protocol.SetAppFactory(admin, factory))
	require.NoError(t, h.protocol.SetGovernanceToken(admin, governance))
	require.NoError(t, h.protocol.SetRewardsEscrow(admin, escrowAddr))
	require.NoError(t, h.protocol.SetUserRewardPool(admin, userPool))
	require.NoError(t, h.protocol.SetAppRewardPool(admin, appPool))

	for _, app := range []common.Address{appA, appB, appC} {
		h.deployApp(app, ownerA)
	}
	require.NoError(t, h.protocol.WhitelistApp(controller, appA))
	require.NoError(t, h.protocol.WhitelistApp(controller, appB))

	for _, user := range []common.Address{alice, bob, carol} {
		require.NoError(t, h.tokens.Transfer(principal, treasury, user, big.NewInt(userBalance)))
		require.NoError(t, h.tokens.Approve(principal, user, orchestrator, unlimited))
	}
	h.events.Reset()
	return h
}

func appPoolOf(app common.Address) common.Address {
	return rewardpool.DeriveAddress("app", app.Bytes())
}

func (h *harness) deployApp(app, owner common.Address) {
	h.t.Helper()
	require.NoError(h.t, h.tokens.Create(&token.Metadata{Address: app, Name: "App " + app.Hex()[2:6], Symbol: "APP" + app.Hex()[40:], Minter: owner}, owner, big.NewInt(1_000_000_000_000)))
	_, err := h.pools.Create(rewardpool.Params{
		Address:       appPoolOf(app),
		Operator:      orchestrator,
		Distributor:   owner,
		StakingToken:  principal,
		RewardsToken:  app,
		DailyEmission: tenthPerDay(),
	})
	require.NoError(h.t, err)
	require.NoError(h.t, h.protocol.RegisterApp(factory, app, appPoolOf(app), owner))
}

func (h *harness) fund(pool, distributor, rewardToken common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.tokens.Transfer(rewardToken, distributor, pool, big.NewInt(amount)))
	require.NoError(h.t, h.pools.NotifyRewardAmount(distributor, pool, big.NewInt(amount)))
}

func amounts(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func apps(values ...common.Address) []common.Address { return values }

func (h *harness) balance(tokenAddr, account common.Address) int64 {
	h.t.Helper()
	bal, err := h.tokens.BalanceOf(tokenAddr, account)
	require.NoError(h.t, err)
	return bal.Int64()
}

func (h *harness) weight(account common.Address) int64 {
	return h.balance(governance, account)
}

func (h *harness) stakeOf(account, app common.Address) (int64, int64) {
	h.t.Helper()
	stake, err := h.protocol.StakeOf(account, app)
	require.NoError(h.t, err)
	return stake.Principal.Int64(), stake.Rewards.Int64()
}

func (h *harness) poolBalance(pool, account common.Address) int64 {
	h.t.Helper()
	bal, err := h.pools.BalanceOf(pool, account)
	require.NoError(h.t, err)
	return bal.Int64()
}

// assertInvariants checks the weight and app-total invariants over every
// known account and app.
func (h *harness) assertInvariants() {
	h.t.Helper()
	accounts := []common.Address{alice, bob, carol}
	registered, err := h.protocol.Apps()
	require.NoError(h.t, err)

	for _, account := range accounts {
		sum := big.NewInt(0)
		for _, app := range registered {
			stake, err := h.protocol.StakeOf(account, app)
			require.NoError(h.t, err)
			sum.Add(sum, stake.Total())
			require.Equal(h.t, stake.Total().Int64(), h.poolBalance(appPoolOf(app), account))
		}
		require.Equal(h.t, sum.Int64(), h.weight(account), "weight of %s", account.Hex())
		require.Equal(h.t, sum.Int64(), h.poolBalance(userPool, account))
	}
	for _, app := range registered {
		sum := big.NewInt(0)
		for _, account := range accounts {
			stake, err := h.protocol.StakeOf(account, app)
			require.NoError(h.t, err)
			sum.Add(sum, stake.Total())
		}
		total, err := h.protocol.AppTotal(app)
		require.NoError(h.t, err)
		require.Equal(h.t, sum.Int64(), total.Int64(), "total of %s", app.Hex())

		record, err := h.protocol.App(app)
		require.NoError(h.t, err)
		expected := int64(0)
		if record.Whitelisted {
			expected = total.Int64()
		}
		require.Equal(h.t, expected, h.poolBalance(appPool, app))
	}
}
