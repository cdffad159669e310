package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/types"
	"github.com/propsproject/props-protocol-sub000/crypto"
)

// FormatAmount renders an amount attribute, treating nil as zero.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// FormatAddress renders an address attribute in bech32 form.
func FormatAddress(addr common.Address) string {
	return crypto.FormatAddress(addr)
}

// FormatTime renders a unix timestamp attribute.
func FormatTime(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}

type envelope struct {
	evt *types.Event
}

func (e envelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e envelope) Event() *types.Event { return e.evt }

// Wrap converts a raw event payload into the emitter-friendly envelope.
func Wrap(evt *types.Event) Event { return envelope{evt: evt} }
