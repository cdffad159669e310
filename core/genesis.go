package core

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/config"
	"github.com/propsproject/props-protocol-sub000/native/appfactory"
	"github.com/propsproject/props-protocol-sub000/native/protocol"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/rewardsescrow"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

// ErrAlreadyBootstrapped is returned when genesis is applied to a node whose
// state already holds an orchestrator.
var ErrAlreadyBootstrapped = errors.New("core: state already bootstrapped")

// OpGenesis is the operation name recorded for the bootstrap receipt.
const OpGenesis = "genesis"

// Bootstrap applies the genesis document as the first committed operation.
func (n *Node) Bootstrap(ctx context.Context, g *config.Genesis) (*Receipt, error) {
	if g == nil {
		return nil, fmt.Errorf("core: genesis required")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.ChainID != 0 && n.chainID.Cmp(new(big.Int).SetUint64(g.ChainID)) != 0 {
		return nil, fmt.Errorf("core: genesis chain id %d does not match node chain id %s", g.ChainID, n.chainID)
	}
	return n.execute(ctx, OpGenesis, g.GenesisTime, func(e *Engines) error {
		if _, err := e.Protocol.Config(); err == nil {
			return ErrAlreadyBootstrapped
		}
		return applyGenesis(e, g)
	})
}

// Bootstrapped reports whether genesis has been applied.
func (n *Node) Bootstrapped(ctx context.Context) (bool, error) {
	var done bool
	err := n.View(ctx, func(e *Engines) error {
		_, err := e.Protocol.Config()
		done = err == nil
		return nil
	})
	return done, err
}

type genesisAddrs struct {
	orchestrator common.Address
	admin        common.Address
	controller   common.Address
	principal    common.Address
	governance   common.Address
	escrow       common.Address
	factory      common.Address
}

func applyGenesis(e *Engines, g *config.Genesis) error {
	var a genesisAddrs
	var err error
	if a.orchestrator, err = config.Addr(g.Orchestrator); err != nil {
		return err
	}
	if a.principal, err = config.Addr(g.Principal.Address); err != nil {
		return err
	}
	if a.governance, err = config.Addr(g.Governance.Address); err != nil {
		return err
	}
	if a.escrow, err = config.Addr(g.Escrow.Address); err != nil {
		return err
	}
	if a.factory, err = config.Addr(g.Factory.Address); err != nil {
		return err
	}

	roleNames := map[string]string{
		config.GenesisRoleAdmin:      protocol.RoleAdmin,
		config.GenesisRoleController: protocol.RoleController,
		config.GenesisRoleGuardian:   protocol.RoleGuardian,
	}
	for _, name := range []string{config.GenesisRoleAdmin, config.GenesisRoleController, config.GenesisRoleGuardian} {
		for i, member := range g.Roles[name] {
			addr, err := config.Addr(member)
			if err != nil {
				return err
			}
			if err := e.Manager.SetRole(roleNames[name], addr.Bytes()); err != nil {
				return err
			}
			switch {
			case i == 0 && name == config.GenesisRoleAdmin:
				a.admin = addr
			case i == 0 && name == config.GenesisRoleController:
				a.controller = addr
			}
		}
	}

	if err := createPrincipal(e, g.Principal, a.principal); err != nil {
		return fmt.Errorf("principal: %w", err)
	}
	if err := e.Tokens.Create(&token.Metadata{
		Address:         a.governance,
		Name:            g.Governance.Name,
		Symbol:          g.Governance.Symbol,
		Decimals:        g.Governance.Decimals,
		Minter:          a.orchestrator,
		NonTransferable: true,
	}, common.Address{}, nil); err != nil {
		return fmt.Errorf("governance: %w", err)
	}

	userPool, err := createProtocolPool(e, g.UserPool, a)
	if err != nil {
		return fmt.Errorf("userRewardPool: %w", err)
	}
	appPool, err := createProtocolPool(e, g.AppPool, a)
	if err != nil {
		return fmt.Errorf("appRewardPool: %w", err)
	}
	if err := e.Escrow.Configure(rewardsescrow.Config{
		Address:  a.escrow,
		Operator: a.orchestrator,
		Token:    a.principal,
		Cooldown: g.Escrow.CooldownSeconds,
	}); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	factoryEmission, err := config.PositiveAmount(g.Factory.DailyEmission)
	if err != nil {
		return fmt.Errorf("factory: %w", err)
	}
	if err := e.Factory.Configure(appfactory.Config{
		Address:        a.factory,
		Orchestrator:   a.orchestrator,
		PrincipalToken: a.principal,
		DailyEmission:  factoryEmission,
	}); err != nil {
		return fmt.Errorf("factory: %w", err)
	}

	if err := e.Protocol.Initialize(a.admin, a.orchestrator, a.principal); err != nil {
		return err
	}
	for _, step := range []func() error{
		func() error { return e.Protocol.SetAppFactory(a.admin, a.factory) },
		func() error { return e.Protocol.SetGovernanceToken(a.admin, a.governance) },
		func() error { return e.Protocol.SetRewardsEscrow(a.admin, a.escrow) },
		func() error { return e.Protocol.SetUserRewardPool(a.admin, userPool) },
		func() error { return e.Protocol.SetAppRewardPool(a.admin, appPool) },
	} {
		if err := step(); err != nil {
			return err
		}
	}

	for _, spec := range []config.PoolSpec{g.UserPool, g.AppPool} {
		if err := fundPool(e, spec, a.principal); err != nil {
			return err
		}
	}

	for i, spec := range g.Apps {
		if err := deployGenesisApp(e, spec, a); err != nil {
			return fmt.Errorf("apps[%d]: %w", i, err)
		}
	}
	return nil
}

func createPrincipal(e *Engines, spec config.TokenSpec, addr common.Address) error {
	minter, err := config.Addr(spec.Minter)
	if err != nil {
		return err
	}
	if err := e.Tokens.Create(&token.Metadata{
		Address:  addr,
		Name:     spec.Name,
		Symbol:   spec.Symbol,
		Decimals: spec.Decimals,
		Minter:   minter,
	}, common.Address{}, nil); err != nil {
		return err
	}
	holders, amounts, err := spec.SortedBalances()
	if err != nil {
		return err
	}
	for i, holder := range holders {
		if amounts[i].Sign() == 0 {
			continue
		}
		if err := e.Tokens.Mint(addr, minter, holder, amounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func createProtocolPool(e *Engines, spec config.PoolSpec, a genesisAddrs) (common.Address, error) {
	addr, err := config.Addr(spec.Address)
	if err != nil {
		return common.Address{}, err
	}
	distributor, err := config.Addr(spec.Distributor)
	if err != nil {
		return common.Address{}, err
	}
	emission, err := config.PositiveAmount(spec.DailyEmission)
	if err != nil {
		return common.Address{}, err
	}
	_, err = e.Pools.Create(rewardpool.Params{
		Address:       addr,
		Operator:      a.orchestrator,
		Distributor:   distributor,
		RewardsToken:  a.principal,
		DailyEmission: emission,
	})
	return addr, err
}

func fundPool(e *Engines, spec config.PoolSpec, principal common.Address) error {
	funding, err := config.OptionalAmount(spec.Funding)
	if err != nil || funding.Sign() == 0 {
		return err
	}
	pool, err := config.Addr(spec.Address)
	if err != nil {
		return err
	}
	distributor, err := config.Addr(spec.Distributor)
	if err != nil {
		return err
	}
	if err := e.Tokens.Transfer(principal, distributor, pool, funding); err != nil {
		return fmt.Errorf("fund %s: %w", pool.Hex(), err)
	}
	return e.Pools.NotifyRewardAmount(distributor, pool, funding)
}

func deployGenesisApp(e *Engines, spec config.AppSpec, a genesisAddrs) error {
	owner, err := config.Addr(spec.Owner)
	if err != nil {
		return err
	}
	supply, err := config.OptionalAmount(spec.Supply)
	if err != nil {
		return err
	}
	req := appfactory.DeployRequest{Name: spec.Name, Symbol: spec.Symbol, Supply: supply, Owner: owner}
	if spec.DailyEmission != "" {
		if req.DailyEmission, err = config.PositiveAmount(spec.DailyEmission); err != nil {
			return err
		}
	}
	deployment, err := e.Factory.Deploy(req)
	if err != nil {
		return err
	}
	if !spec.Whitelisted {
		return nil
	}
	if a.controller == (common.Address{}) {
		return fmt.Errorf("whitelisting %s needs a controller role", spec.Name)
	}
	return e.Protocol.WhitelistApp(a.controller, deployment.App)
}
