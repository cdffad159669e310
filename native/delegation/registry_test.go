package delegation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/state"
	"github.com/propsproject/props-protocol-sub000/storage"
)

var (
	alice = common.HexToAddress("0x3000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x3000000000000000000000000000000000000002")
	carol = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func newTestRegistry() (*Registry, *events.Buffer) {
	reg := NewRegistry()
	reg.SetState(state.NewManager(state.NewOverlay(storage.NewMemDB())))
	buf := &events.Buffer{}
	reg.SetEmitter(buf)
	return reg, buf
}

func TestDelegateOverwrites(t *testing.T) {
	reg, buf := newTestRegistry()

	_, ok, err := reg.DelegateOf(alice)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, reg.Delegate(alice, bob))
	require.NoError(t, reg.Delegate(alice, carol))
	to, ok, err := reg.DelegateOf(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, carol, to)

	isBob, err := reg.IsDelegate(alice, bob)
	require.NoError(t, err)
	require.False(t, isBob)

	drained := buf.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, EventTypeDelegated, drained[1].Type)
	require.Equal(t, events.FormatAddress(bob), drained[1].Attributes["previous"])
}

func TestDelegateClears(t *testing.T) {
	for _, target := range []common.Address{{}, alice} {
		reg, _ := newTestRegistry()
		require.NoError(t, reg.Delegate(alice, bob))
		require.NoError(t, reg.Delegate(alice, target))
		_, ok, err := reg.DelegateOf(alice)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestDelegationIsNotTransitive(t *testing.T) {
	reg, _ := newTestRegistry()
	require.NoError(t, reg.Delegate(alice, bob))
	require.NoError(t, reg.Delegate(bob, carol))
	require.NoError(t, reg.Delegate(carol, alice))

	isCarol, err := reg.IsDelegate(alice, carol)
	require.NoError(t, err)
	require.False(t, isCarol)
}
