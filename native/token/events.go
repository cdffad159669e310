package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

const (
	// EventTypeCreated is emitted when a token is registered.
	EventTypeCreated = "token.created"
	// EventTypeTransfer is emitted for every balance movement, including
	// mints (zero sender) and burns (zero recipient).
	EventTypeTransfer = "token.transfer"
	// EventTypeApproval is emitted when an allowance changes.
	EventTypeApproval = "token.approval"
)

func createdEvent(meta *Metadata) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: map[string]string{
			"token":  events.FormatAddress(meta.Address),
			"name":   meta.Name,
			"symbol": meta.Symbol,
			"minter": events.FormatAddress(meta.Minter),
		},
	}
}

func transferEvent(token, from, to common.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"token":  events.FormatAddress(token),
			"from":   events.FormatAddress(from),
			"to":     events.FormatAddress(to),
			"amount": events.FormatAmount(amount),
		},
	}
}

func approvalEvent(token, owner, spender common.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"token":   events.FormatAddress(token),
			"owner":   events.FormatAddress(owner),
			"spender": events.FormatAddress(spender),
			"amount":  events.FormatAmount(amount),
		},
	}
}
