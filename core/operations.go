package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/native/appfactory"
	"github.com/propsproject/props-protocol-sub000/native/token"
)

// Operation names recorded on receipts, logs and metrics.
const (
	OpTransfer                     = "token.transfer"
	OpApprove                      = "token.approve"
	OpPermit                       = "token.permit"
	OpFundPool                     = "rewardpool.fund"
	OpDeployApp                    = "appfactory.deploy"
	OpStake                        = "protocol.stake"
	OpStakeOnBehalf                = "protocol.stake_on_behalf"
	OpStakeAsDelegate              = "protocol.stake_as_delegate"
	OpStakeRewards                 = "protocol.stake_rewards"
	OpStakeRewardsAsDelegate       = "protocol.stake_rewards_as_delegate"
	OpReallocate                   = "protocol.reallocate"
	OpReallocateAsDelegate         = "protocol.reallocate_as_delegate"
	OpUnstake                      = "protocol.unstake"
	OpClaimAppRewards              = "protocol.claim_app_rewards"
	OpClaimAppProtocolRewards      = "protocol.claim_app_protocol_rewards"
	OpClaimProtocolRewards         = "protocol.claim_protocol_rewards"
	OpClaimProtocolRewardsAndStake = "protocol.claim_protocol_rewards_and_stake"
	OpUnlockRewards                = "protocol.unlock_rewards"
	OpDelegate                     = "protocol.delegate"
	OpWhitelistApp                 = "protocol.whitelist_app"
	OpBlacklistApp                 = "protocol.blacklist_app"
	OpPause                        = "protocol.pause"
	OpUnpause                      = "protocol.unpause"
	OpChangeEscrowCooldown         = "protocol.change_escrow_cooldown"
)

// Transfer moves token balance from caller to to.
func (n *Node) Transfer(ctx context.Context, caller, tokenAddr, to common.Address, amount *big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpTransfer, func(e *Engines) error {
		return e.Tokens.Transfer(tokenAddr, caller, to, amount)
	})
}

// Approve sets spender's allowance over caller's balance.
func (n *Node) Approve(ctx context.Context, caller, tokenAddr, spender common.Address, amount *big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpApprove, func(e *Engines) error {
		return e.Tokens.Approve(tokenAddr, caller, spender, amount)
	})
}

// Permit applies an off-chain signed approval. Anyone may submit it.
func (n *Node) Permit(ctx context.Context, req token.PermitRequest) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, req.Owner), OpPermit, func(e *Engines) error {
		return e.Tokens.Permit(req)
	})
}

// FundPool transfers reward tokens from the distributor into the pool and
// starts or extends its reward period.
func (n *Node) FundPool(ctx context.Context, caller, pool common.Address, amount *big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpFundPool, func(e *Engines) error {
		record, err := e.Pools.Pool(pool)
		if err != nil {
			return err
		}
		if err := e.Tokens.Transfer(record.RewardsToken, caller, pool, amount); err != nil {
			return err
		}
		return e.Pools.NotifyRewardAmount(caller, pool, amount)
	})
}

// DeployApp creates an app token and pool through the factory.
func (n *Node) DeployApp(ctx context.Context, req appfactory.DeployRequest) (*appfactory.Deployment, *Receipt, error) {
	var deployment *appfactory.Deployment
	receipt, err := n.Execute(WithCaller(ctx, req.Owner), OpDeployApp, func(e *Engines) error {
		var err error
		deployment, err = e.Factory.Deploy(req)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return deployment, receipt, nil
}

func (n *Node) Stake(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpStake, func(e *Engines) error {
		return e.Protocol.Stake(caller, apps, amounts)
	})
}

func (n *Node) StakeOnBehalf(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpStakeOnBehalf, func(e *Engines) error {
		return e.Protocol.StakeOnBehalf(caller, apps, amounts, account)
	})
}

func (n *Node) StakeAsDelegate(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpStakeAsDelegate, func(e *Engines) error {
		return e.Protocol.StakeAsDelegate(caller, apps, amounts, account)
	})
}

func (n *Node) StakeRewards(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpStakeRewards, func(e *Engines) error {
		return e.Protocol.StakeRewards(caller, apps, amounts)
	})
}

func (n *Node) StakeRewardsAsDelegate(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int, account common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpStakeRewardsAsDelegate, func(e *Engines) error {
		return e.Protocol.StakeRewardsAsDelegate(caller, apps, amounts, account)
	})
}

func (n *Node) ReallocateStakes(ctx context.Context, caller common.Address, apps []common.Address, unstake, stake []*big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpReallocate, func(e *Engines) error {
		return e.Protocol.ReallocateStakes(caller, apps, unstake, stake)
	})
}

func (n *Node) ReallocateStakesAsDelegate(ctx context.Context, caller common.Address, apps []common.Address, unstake, stake []*big.Int, account common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpReallocateAsDelegate, func(e *Engines) error {
		return e.Protocol.ReallocateStakesAsDelegate(caller, apps, unstake, stake, account)
	})
}

func (n *Node) Unstake(ctx context.Context, caller common.Address, apps []common.Address, amounts []*big.Int) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpUnstake, func(e *Engines) error {
		return e.Protocol.Unstake(caller, apps, amounts)
	})
}

// claim runs an operation that reports a paid amount.
func (n *Node) claim(ctx context.Context, op string, fn func(*Engines) (*big.Int, error)) (*big.Int, *Receipt, error) {
	var paid *big.Int
	receipt, err := n.Execute(ctx, op, func(e *Engines) error {
		var err error
		paid, err = fn(e)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if paid == nil {
		paid = big.NewInt(0)
	}
	return paid, receipt, nil
}

func (n *Node) ClaimAppRewards(ctx context.Context, caller, app common.Address) (*big.Int, *Receipt, error) {
	return n.claim(WithCaller(ctx, caller), OpClaimAppRewards, func(e *Engines) (*big.Int, error) {
		return e.Protocol.ClaimAppRewards(caller, app)
	})
}

func (n *Node) ClaimAppProtocolRewards(ctx context.Context, caller, app, wallet common.Address) (*big.Int, *Receipt, error) {
	return n.claim(WithCaller(ctx, caller), OpClaimAppProtocolRewards, func(e *Engines) (*big.Int, error) {
		return e.Protocol.ClaimAppProtocolRewards(caller, app, wallet)
	})
}

func (n *Node) ClaimProtocolRewards(ctx context.Context, caller common.Address) (*big.Int, *Receipt, error) {
	return n.claim(WithCaller(ctx, caller), OpClaimProtocolRewards, func(e *Engines) (*big.Int, error) {
		return e.Protocol.ClaimProtocolRewards(caller)
	})
}

func (n *Node) ClaimProtocolRewardsAndStake(ctx context.Context, caller common.Address, apps []common.Address, shares []uint32) (*big.Int, *Receipt, error) {
	return n.claim(WithCaller(ctx, caller), OpClaimProtocolRewardsAndStake, func(e *Engines) (*big.Int, error) {
		return e.Protocol.ClaimProtocolRewardsAndStake(caller, apps, shares)
	})
}

func (n *Node) UnlockRewards(ctx context.Context, caller common.Address) (*big.Int, *Receipt, error) {
	return n.claim(WithCaller(ctx, caller), OpUnlockRewards, func(e *Engines) (*big.Int, error) {
		return e.Protocol.UnlockRewards(caller)
	})
}

func (n *Node) Delegate(ctx context.Context, caller, to common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpDelegate, func(e *Engines) error {
		return e.Protocol.Delegate(caller, to)
	})
}

func (n *Node) WhitelistApp(ctx context.Context, caller, app common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpWhitelistApp, func(e *Engines) error {
		return e.Protocol.WhitelistApp(caller, app)
	})
}

func (n *Node) BlacklistApp(ctx context.Context, caller, app common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpBlacklistApp, func(e *Engines) error {
		return e.Protocol.BlacklistApp(caller, app)
	})
}

func (n *Node) Pause(ctx context.Context, caller common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpPause, func(e *Engines) error {
		return e.Protocol.Pause(caller)
	})
}

func (n *Node) Unpause(ctx context.Context, caller common.Address) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpUnpause, func(e *Engines) error {
		return e.Protocol.Unpause(caller)
	})
}

func (n *Node) ChangeEscrowCooldown(ctx context.Context, caller common.Address, cooldown uint64) (*Receipt, error) {
	return n.Execute(WithCaller(ctx, caller), OpChangeEscrowCooldown, func(e *Engines) error {
		return e.Protocol.ChangeEscrowCooldown(caller, cooldown)
	})
}
