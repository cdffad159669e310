package rewardsescrow

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

const (
	// EventTypeEscrowUpdated is emitted on every change to an account's escrow.
	EventTypeEscrowUpdated = "protocol.escrow.updated"
	// EventTypeCooldownChanged is emitted when the lock duration changes.
	EventTypeCooldownChanged = "protocol.escrow_cooldown.changed"
)

// Reasons attached to escrow updates.
const (
	ReasonLock    = "lock"
	ReasonCredit  = "credit"
	ReasonDebit   = "debit"
	ReasonRelease = "release"
)

func updatedEvent(account common.Address, entry *Entry, delta *big.Int, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeEscrowUpdated,
		Attributes: map[string]string{
			"account":    events.FormatAddress(account),
			"amount":     events.FormatAmount(entry.Amount),
			"unlockTime": events.FormatTime(entry.UnlockTime),
			"delta":      events.FormatAmount(delta),
			"reason":     reason,
		},
	}
}

func cooldownEvent(previous, next uint64) *types.Event {
	return &types.Event{
		Type: EventTypeCooldownChanged,
		Attributes: map[string]string{
			"previous": strconv.FormatUint(previous, 10),
			"cooldown": strconv.FormatUint(next, 10),
		},
	}
}
