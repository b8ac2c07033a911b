package app

import (
	"context"

	"github.com/Vaxity1/Aether/internal/eventbus"
	logx "github.com/Vaxity1/Aether/pkg/logx"
)

// busFeed relays log feed entries onto the event bus. Publish is
// non-blocking, so Emit never stalls the logging worker.
type busFeed struct {
	bus eventbus.Bus
}

func (f busFeed) Emit(_ context.Context, e logx.Entry) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(eventbus.Event{Type: eventbus.TypeLogEntry, Time: e.Time, Data: e})
}
