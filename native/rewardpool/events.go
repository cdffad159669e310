package rewardpool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

const (
	EventTypeCreated         = "rewardpool.created"
	EventTypeRewardAdded     = "rewardpool.reward_added"
	EventTypeStaked          = "rewardpool.staked"
	EventTypeWithdrawn       = "rewardpool.withdrawn"
	EventTypeRewardPaid      = "rewardpool.reward_paid"
	EventTypeRateRestretched = "rewardpool.rate_restretched"
)

func createdEvent(p *Pool) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"pool":            events.FormatAddress(p.Address),
			"operator":        events.FormatAddress(p.Operator),
			"distributor":     events.FormatAddress(p.Distributor),
			"stakingToken":    events.FormatAddress(p.StakingToken),
			"rewardsToken":    events.FormatAddress(p.RewardsToken),
			"rewardsDuration": events.FormatTime(p.RewardsDuration),
		},
	}
}

func rewardAddedEvent(p *Pool, reward *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardAdded,
		Attributes: map[string]string{
			"pool":         events.FormatAddress(p.Address),
			"reward":       events.FormatAmount(reward),
			"rewardRate":   events.FormatAmount(p.RewardRate),
			"periodFinish": events.FormatTime(p.PeriodFinish),
		},
	}
}

func balanceEvent(kind string, p *Pool, account common.Address, amount, balance *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"pool":        events.FormatAddress(p.Address),
			"account":     events.FormatAddress(account),
			"amount":      events.FormatAmount(amount),
			"balance":     events.FormatAmount(balance),
			"totalStaked": events.FormatAmount(p.TotalStaked),
		},
	}
}

func rewardPaidEvent(p *Pool, account, to common.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardPaid,
		Attributes: map[string]string{
			"pool":    events.FormatAddress(p.Address),
			"account": events.FormatAddress(account),
			"to":      events.FormatAddress(to),
			"amount":  events.FormatAmount(amount),
		},
	}
}

func restretchedEvent(p *Pool) *types.Event {
	return &types.Event{
		Type: EventTypeRateRestretched,
		Attributes: map[string]string{
			"pool":         events.FormatAddress(p.Address),
			"rewardRate":   events.FormatAmount(p.RewardRate),
			"periodFinish": events.FormatTime(p.PeriodFinish),
		},
	}
}
