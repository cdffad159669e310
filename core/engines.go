package core

import (
	"math/big"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/state"
	"github.com/propsproject/props-protocol-sub000/native/appfactory"
	"github.com/propsproject/props-protocol-sub000/native/delegation"
	"github.com/propsproject/props-protocol-sub000/native/protocol"
	"github.com/propsproject/props-protocol-sub000/native/rewardpool"
	"github.com/propsproject/props-protocol-sub000/native/rewardsescrow"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

// Engines is the set of native modules bound to one unit of work. Every
// engine shares the same state manager, emitter and clock.
type Engines struct {
	Manager    *state.Manager
	Tokens     *token.Engine
	Pools      *rewardpool.Engine
	Escrow     *rewardsescrow.Engine
	Delegation *delegation.Registry
	Protocol   *protocol.Engine
	Factory    *appfactory.Engine
}

func newEngines(manager *state.Manager, emitter events.Emitter, now func() int64, chainID *big.Int) *Engines {
	tokens := token.NewEngine()
	tokens.SetState(manager)
	tokens.SetEmitter(emitter)
	tokens.SetNowFunc(now)
	tokens.SetChainID(chainID)

	pools := rewardpool.NewEngine()
	pools.SetState(manager)
	pools.SetTokens(tokens)
	pools.SetEmitter(emitter)
	pools.SetNowFunc(now)

	escrow := rewardsescrow.NewEngine()
	escrow.SetState(manager)
	escrow.SetTokens(tokens)
	escrow.SetEmitter(emitter)
	escrow.SetNowFunc(now)

	registry := delegation.NewRegistry()
	registry.SetState(manager)
	registry.SetEmitter(emitter)

	orchestrator := protocol.NewEngine()
	orchestrator.SetState(manager)
	orchestrator.SetTokens(tokens)
	orchestrator.SetPools(pools)
	orchestrator.SetEscrow(escrow)
	orchestrator.SetDelegation(registry)
	orchestrator.SetEmitter(emitter)

	factory := appfactory.NewEngine()
	factory.SetState(manager)
	factory.SetTokens(tokens)
	factory.SetPools(pools)
	factory.SetRegistrar(orchestrator)
	factory.SetEmitter(emitter)

	return &Engines{
		Manager:    manager,
		Tokens:     tokens,
		Pools:      pools,
		Escrow:     escrow,
		Delegation: registry,
		Protocol:   orchestrator,
		Factory:    factory,
	}
}
