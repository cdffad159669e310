package protocol

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

const (
	EventTypeAppStakeUpdated     = "protocol.app_stake.updated"
	EventTypeAccountStakeUpdated = "protocol.account_stake.updated"
	EventTypeStakeBalanceUpdated = "protocol.stake_balance.updated"
	EventTypeRewardsClaimed      = "protocol.rewards.claimed"
	EventTypeAppRegistered       = "protocol.app.registered"
	EventTypeAppWhitelisted      = "protocol.app.whitelisted"
	EventTypeAppBlacklisted      = "protocol.app.blacklisted"
	EventTypePaused              = "protocol.paused"
	EventTypeUnpaused            = "protocol.unpaused"
	EventTypeConfigured          = "protocol.configured"
)

// Claim kinds reported on EventTypeRewardsClaimed.
const (
	ClaimKindApp           = "app"
	ClaimKindAppProtocol   = "app_protocol"
	ClaimKindProtocol      = "protocol"
	ClaimKindProtocolStake = "protocol_stake" // restaked without passing through escrow
)

func appStakeEvent(app common.Address, total *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAppStakeUpdated,
		Attributes: map[string]string{
			"app":   events.FormatAddress(app),
			"total": events.FormatAmount(total),
		},
	}
}

func accountStakeEvent(account common.Address, total *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeAccountStakeUpdated,
		Attributes: map[string]string{
			"account": events.FormatAddress(account),
			"total":   events.FormatAmount(total),
		},
	}
}

func stakeBalanceEvent(account, app common.Address, stake *Stake) *types.Event {
	return &types.Event{
		Type: EventTypeStakeBalanceUpdated,
		Attributes: map[string]string{
			"account":   events.FormatAddress(account),
			"app":       events.FormatAddress(app),
			"principal": events.FormatAmount(stake.Principal),
			"rewards":   events.FormatAmount(stake.Rewards),
		},
	}
}

func rewardsClaimedEvent(kind string, account, source, recipient common.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRewardsClaimed,
		Attributes: map[string]string{
			"kind":      kind,
			"account":   events.FormatAddress(account),
			"source":    events.FormatAddress(source),
			"recipient": events.FormatAddress(recipient),
			"amount":    events.FormatAmount(amount),
		},
	}
}

func appEvent(kind string, app *App) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"app":         events.FormatAddress(app.Address),
			"pool":        events.FormatAddress(app.Pool),
			"owner":       events.FormatAddress(app.Owner),
			"whitelisted": strconv.FormatBool(app.Whitelisted),
		},
	}
}

func pauseEvent(paused bool, by common.Address) *types.Event {
	kind := EventTypeUnpaused
	if paused {
		kind = EventTypePaused
	}
	return &types.Event{
		Type:       kind,
		Attributes: map[string]string{"by": events.FormatAddress(by)},
	}
}

func configuredEvent(field string, value common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeConfigured,
		Attributes: map[string]string{
			"field": field,
			"value": events.FormatAddress(value),
		},
	}
}
