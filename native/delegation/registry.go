package delegation

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

// EventTypeDelegated is emitted whenever a delegator's edge changes.
const EventTypeDelegated = "protocol.delegated"

var errNilState = errors.New("delegation: state not configured")

var edgePrefix = []byte("delegation/edge/")

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Registry stores at most one delegatee per delegator. Delegation is not
// transitive: a delegatee's own delegate gains nothing over the delegator.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the registry.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetEmitter configures the event emitter used by the registry.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Delegate replaces delegator's edge with to. The zero address or the
// delegator itself clears the edge.
func (r *Registry) Delegate(delegator, to common.Address) error {
	if r.state == nil {
		return errNilState
	}
	previous, _, err := r.DelegateOf(delegator)
	if err != nil {
		return err
	}
	if to == (common.Address{}) || to == delegator {
		to = common.Address{}
		if err := r.state.KVDelete(edgeKey(delegator)); err != nil {
			return err
		}
	} else if err := r.state.KVPut(edgeKey(delegator), to); err != nil {
		return err
	}
	r.emitter.Emit(events.Wrap(&types.Event{
		Type: EventTypeDelegated,
		Attributes: map[string]string{
			"delegator": events.FormatAddress(delegator),
			"previous":  events.FormatAddress(previous),
			"delegatee": events.FormatAddress(to),
		},
	}))
	return nil
}

// DelegateOf returns the current delegatee of delegator.
func (r *Registry) DelegateOf(delegator common.Address) (common.Address, bool, error) {
	if r.state == nil {
		return common.Address{}, false, errNilState
	}
	var to common.Address
	ok, err := r.state.KVGet(edgeKey(delegator), &to)
	if err != nil || !ok {
		return common.Address{}, false, err
	}
	return to, true, nil
}

// IsDelegate reports whether candidate currently acts for delegator.
func (r *Registry) IsDelegate(delegator, candidate common.Address) (bool, error) {
	to, ok, err := r.DelegateOf(delegator)
	if err != nil || !ok {
		return false, err
	}
	return to == candidate, nil
}

func edgeKey(delegator common.Address) []byte {
	return append(append([]byte(nil), edgePrefix...), delegator.Bytes()...)
}
