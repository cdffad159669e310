package appfactory

import (
	"strconv"

	"github.com/propsproject/props-protocol-sub000/core/events"
	"github.com/propsproject/props-protocol-sub000/core/types"
)

// EventTypeAppDeployed is emitted once an app token and pool exist and the
// app is registered with the orchestrator.
const EventTypeAppDeployed = "appfactory.app.deployed"

func deployedEvent(d *Deployment, name, symbol string) *types.Event {
	return &types.Event{
		Type: EventTypeAppDeployed,
		Attributes: map[string]string{
			"app":      events.FormatAddress(d.App),
			"pool":     events.FormatAddress(d.Pool),
			"owner":    events.FormatAddress(d.Owner),
			"name":     name,
			"symbol":   symbol,
			"sequence": strconv.FormatUint(d.Sequence, 10),
		},
	}
}
