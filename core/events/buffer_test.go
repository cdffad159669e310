package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/core/types"
)

type bareEvent string

func (b bareEvent) EventType() string { return string(b) }

func TestBufferDrainAndReset(t *testing.T) {
	buf := &Buffer{}
	source := &types.Event{Type: "rewardpool.staked", Attributes: map[string]string{"amount": FormatAmount(big.NewInt(5))}}
	buf.Emit(Wrap(source))
	buf.Emit(bareEvent("protocol.paused"))
	require.Equal(t, 2, buf.Len())

	source.Attributes["amount"] = "999"
	drained := buf.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "5", drained[0].Attributes["amount"])
	require.Equal(t, "protocol.paused", drained[1].Type)
	require.Zero(t, buf.Len())

	buf.Emit(bareEvent("protocol.unpaused"))
	buf.Reset()
	require.Empty(t, buf.Drain())
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "0", FormatAmount(nil))
	require.Equal(t, "42", FormatTime(42))
	require.Contains(t, FormatAddress(common.Address{1}), "props1")
}
