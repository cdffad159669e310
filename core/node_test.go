package core

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/config"
	"github.com/propsproject/props-protocol-sub000/native/appfactory"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/native/protocol"
	"github.com/propsproject/props-protocol-sub000/storage"
)

const (
	start int64 = 1_700_000_000
	day   int64 = 86_400
)

var (
	orchestrator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	principalTok = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	governance   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	escrowAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a4")
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	userPool     = common.HexToAddress("0x00000000000000000000000000000000000000a6")
	appPool      = common.HexToAddress("0x00000000000000000000000000000000000000a7")
	admin        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	controller   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	guardian     = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	treasury     = common.HexToAddress("0x00000000000000000000000000000000000000b4")
	appOwner     = common.HexToAddress("0x00000000000000000000000000000000000000b5")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func testGenesis() *config.Genesis {
	return &config.Genesis{
		ChainID:      1,
		GenesisTime:  start,
		Orchestrator: orchestrator.Hex(),
		Roles: map[string][]string{
			config.GenesisRoleAdmin:      {admin.Hex()},
			config.GenesisRoleController: {controller.Hex()},
			config.GenesisRoleGuardian:   {guardian.Hex()},
		},
		Principal: config.TokenSpec{
			Address:  principalTok.Hex(),
			Name:     "Props",
			Symbol:   "PROPS",
			Decimals: 18,
			Minter:   treasury.Hex(),
			Balances: map[string]string{
				treasury.Hex(): "10_000_000_000",
				alice.Hex():    "10000",
			},
		},
		Governance: config.TokenSpec{Address: governance.Hex(), Name: "Staked Props", Symbol: "SPROPS", Decimals: 18},
		UserPool: config.PoolSpec{
			Address:       userPool.Hex(),
			Distributor:   treasury.Hex(),
			DailyEmission: "100000000000000000",
			Funding:       "864000000",
		},
		AppPool: config.PoolSpec{
			Address:       appPool.Hex(),
			Distributor:   treasury.Hex(),
			DailyEmission: "100000000000000000",
		},
		Escrow:  config.EscrowSpec{Address: escrowAddr.Hex(), CooldownSeconds: uint64(3 * day)},
		Factory: config.FactorySpec{Address: factoryAddr.Hex(), DailyEmission: "100000000000000000"},
		Apps: []config.AppSpec{
			{Name: "Chess", Symbol: "CHS", Supply: "1000000", Owner: appOwner.Hex(), Whitelisted: true},
			{Name: "Draughts", Symbol: "DRT", Owner: appOwner.Hex()},
		},
	}
}

type testNode struct {
	*Node
	clock int64
}

func newTestNode(t *testing.T, db storage.Database) *testNode {
	t.Helper()
	tn := &testNode{clock: start}
	node, err := NewNode(db, WithChainID(1), WithClock(func() int64 { return tn.clock }))
	require.NoError(t, err)
	tn.Node = node
	t.Cleanup(node.Close)
	return tn
}

func bootstrapped(t *testing.T) (*testNode, []common.Address) {
	t.Helper()
	tn := newTestNode(t, storage.NewMemDB())
	ctx := context.Background()
	receipt, err := tn.Bootstrap(ctx, testGenesis())
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Sequence)
	require.Equal(t, OpGenesis, receipt.Op)

	apps, err := tn.Apps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	return tn, []common.Address{apps[0].Address, apps[1].Address}
}

func TestBootstrapBuildsProtocol(t *testing.T) {
	tn, apps := bootstrapped(t)
	ctx := context.Background()

	cfg, err := tn.ProtocolConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, orchestrator, cfg.Address)
	require.Equal(t, principalTok, cfg.PrincipalToken)
	require.Equal(t, governance, cfg.GovernanceToken)
	require.Equal(t, userPool, cfg.UserRewardPool)
	require.Equal(t, appPool, cfg.AppRewardPool)
	require.Equal(t, factoryAddr, cfg.AppFactory)

	chess, err := tn.App(ctx, apps[0])
	require.NoError(t, err)
	require.True(t, chess.Whitelisted)
	require.Equal(t, appOwner, chess.Owner)
	draughts, err := tn.App(ctx, apps[1])
	require.NoError(t, err)
	require.False(t, draughts.Whitelisted)

	pool, err := tn.Pool(ctx, userPool)
	require.NoError(t, err)
	require.Equal(t, "active", pool.Status)
	require.Equal(t, big.NewInt(1000), pool.RewardRate)

	owned, err := tn.TokenAccount(ctx, apps[0], appOwner, common.Address{})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000), owned.Balance)
	require.Nil(t, owned.Allowance)

	ok, err := tn.Bootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBootstrapRunsOnce(t *testing.T) {
	tn, _ := bootstrapped(t)
	_, err := tn.Bootstrap(context.Background(), testGenesis())
	require.ErrorIs(t, err, ErrAlreadyBootstrapped)

	seq, err := tn.Sequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
}

func TestBootstrapRejectsChainMismatch(t *testing.T) {
	tn := newTestNode(t, storage.NewMemDB())
	g := testGenesis()
	g.ChainID = 7
	_, err := tn.Bootstrap(context.Background(), g)
	require.ErrorContains(t, err, "chain id")
}

func TestBootstrapWhitelistNeedsController(t *testing.T) {
	tn := newTestNode(t, storage.NewMemDB())
	g := testGenesis()
	delete(g.Roles, config.GenesisRoleController)
	_, err := tn.Bootstrap(context.Background(), g)
	require.ErrorContains(t, err, "controller")

	ok, err := tn.Bootstrapped(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStakeClaimAndUnlockThroughNode(t *testing.T) {
	tn, apps := bootstrapped(t)
	ctx := context.Background()

	_, err := tn.Approve(ctx, alice, principalTok, orchestrator, big.NewInt(10_000))
	require.NoError(t, err)
	receipt, err := tn.Stake(ctx, alice, apps[:1], []*big.Int{big.NewInt(1000)})
	require.NoError(t, err)
	require.Equal(t, uint64(3), receipt.Sequence)
	require.Equal(t, OpStake, receipt.Op)
	require.Equal(t, alice.Hex(), receipt.Caller)
	require.NotEqual(t, common.Hash{}, receipt.Digest)
	require.NotEmpty(t, receipt.Events)

	summary, err := tn.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9000), summary.Balance)
	require.Equal(t, big.NewInt(1000), summary.Weight)
	require.Equal(t, big.NewInt(1000), summary.TotalStaked)
	require.Len(t, summary.Stakes, 1)
	require.Equal(t, apps[0], summary.Stakes[0].App)

	tn.clock += day
	paid, _, err := tn.ClaimProtocolRewards(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(86_400_000), paid)

	summary, err = tn.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, paid, summary.Escrowed)
	require.Equal(t, uint64(tn.clock+3*day), summary.UnlockTime)

	_, _, err = tn.UnlockRewards(ctx, alice)
	require.ErrorIs(t, err, nativecommon.ErrRewardsLocked)

	tn.clock += 3 * day
	released, _, err := tn.UnlockRewards(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, paid, released)

	summary, err = tn.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(big.NewInt(9000), paid), summary.Balance)
}

func TestRejectedOperationLeavesStateUntouched(t *testing.T) {
	tn, apps := bootstrapped(t)
	ctx := context.Background()
	_, err := tn.Approve(ctx, alice, principalTok, orchestrator, big.NewInt(1_000_000))
	require.NoError(t, err)

	before, err := tn.Account(ctx, alice)
	require.NoError(t, err)
	seq, err := tn.Sequence(ctx)
	require.NoError(t, err)

	_, err = tn.Stake(ctx, alice, apps, []*big.Int{big.NewInt(6000), big.NewInt(6000)})
	require.ErrorIs(t, err, nativecommon.ErrInvalidApp)
	_, err = tn.Stake(ctx, alice, apps[:1], []*big.Int{big.NewInt(20_000)})
	require.ErrorIs(t, err, nativecommon.ErrInsufficientBalance)

	after, err := tn.Account(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, before, after)
	again, err := tn.Sequence(ctx)
	require.NoError(t, err)
	require.Equal(t, seq, again)
}

func TestPauseBlocksUserOperations(t *testing.T) {
	tn, apps := bootstrapped(t)
	ctx := context.Background()
	_, err := tn.Approve(ctx, alice, principalTok, orchestrator, big.NewInt(10_000))
	require.NoError(t, err)

	_, err = tn.Pause(ctx, admin)
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)
	_, err = tn.Pause(ctx, guardian)
	require.NoError(t, err)
	_, err = tn.Stake(ctx, alice, apps[:1], []*big.Int{big.NewInt(10)})
	require.ErrorIs(t, err, nativecommon.ErrPaused)
	_, err = tn.Unpause(ctx, guardian)
	require.NoError(t, err)
	_, err = tn.Stake(ctx, alice, apps[:1], []*big.Int{big.NewInt(10)})
	require.NoError(t, err)
}

func TestSubscribeReceivesCommittedReceipts(t *testing.T) {
	tn, apps := bootstrapped(t)
	ctx := context.Background()
	ch, cancel := tn.Subscribe(4)

	_, err := tn.WhitelistApp(ctx, controller, apps[1])
	require.NoError(t, err)
	_, err = tn.WhitelistApp(ctx, alice, apps[1])
	require.Error(t, err)

	receipt := <-ch
	require.Equal(t, OpWhitelistApp, receipt.Op)
	var kinds []string
	for _, evt := range receipt.Events {
		kinds = append(kinds, evt.Type)
	}
	require.Contains(t, kinds, protocol.EventTypeAppWhitelisted)
	require.Empty(t, ch)

	cancel()
	_, open := <-ch
	require.False(t, open)
	cancel()
}

func TestDeployAppThroughNode(t *testing.T) {
	tn, _ := bootstrapped(t)
	ctx := context.Background()
	deployment, receipt, err := tn.DeployApp(ctx, appfactoryRequest("Go", "GO"))
	require.NoError(t, err)
	require.Equal(t, OpDeployApp, receipt.Op)

	app, err := tn.App(ctx, deployment.App)
	require.NoError(t, err)
	require.False(t, app.Whitelisted)
	require.Equal(t, deployment.Pool, app.Pool)
}

func TestFundPoolRequiresDistributor(t *testing.T) {
	tn, _ := bootstrapped(t)
	ctx := context.Background()
	_, err := tn.FundPool(ctx, alice, appPool, big.NewInt(100))
	require.ErrorIs(t, err, nativecommon.ErrUnauthorized)

	_, err = tn.FundPool(ctx, treasury, appPool, big.NewInt(864_000))
	require.NoError(t, err)
	pool, err := tn.Pool(ctx, appPool)
	require.NoError(t, err)
	require.Equal(t, "active", pool.Status)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	node, err := NewNode(db, WithChainID(1), WithClock(func() int64 { return start }))
	require.NoError(t, err)
	_, err = node.Bootstrap(context.Background(), testGenesis())
	require.NoError(t, err)
	node.Close()

	_, err = node.Sequence(context.Background())
	require.ErrorIs(t, err, ErrNodeClosed)

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	reopened, err := NewNode(db, WithChainID(1))
	require.NoError(t, err)
	defer reopened.Close()
	seq, err := reopened.Sequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
	ok, err := reopened.Bootstrapped(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	tn, _ := bootstrapped(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tn.Pause(ctx, guardian)
	require.ErrorIs(t, err, context.Canceled)
}

func appfactoryRequest(name, symbol string) appfactory.DeployRequest {
	return appfactory.DeployRequest{Name: name, Symbol: symbol, Supply: big.NewInt(500), Owner: appOwner}
}
