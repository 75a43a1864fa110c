// Package feed serves subscriber viewers over socket.io.
//
// Every socket gets a session. The session's Connector is an actor that
// emits telemetry events on the socket in order; the aggregator and chain
// units only ever Push to it, so a slow viewer never stalls them. A viewer
// watches one chain at a time: subscribing again cancels the previous
// subscription, and the old chain unit drops it on its next broadcast.
package feed

import (
	"context"
	"sync/atomic"

	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

// Emitter writes one event to a viewer.
type Emitter func(event string, payload any)

// Connector is a telemetry.Subscriber backed by its own goroutine.
type Connector struct {
	addr *actor.Addr[telemetry.Event]
}

// NewConnector starts a connector that hands every pushed event to emit.
func NewConnector(ctx context.Context, emit Emitter) *Connector {
	addr := actor.Start(ctx, "feed", func(_ context.Context, _ *actor.Addr[telemetry.Event], ev telemetry.Event) {
		emit(string(ev.Kind), ev.Payload)
	})
	return &Connector{addr: addr}
}

// Push queues ev for emission. It reports false once the connector closed.
func (c *Connector) Push(ev telemetry.Event) bool {
	return c.addr.Send(ev)
}

// Close stops the connector; queued events are discarded.
func (c *Connector) Close() {
	c.addr.Stop()
}

// subscription is the Subscriber a chain unit holds for one viewer. It goes
// dead when cancelled even though the connector lives on.
type subscription struct {
	feed      *Connector
	cancelled atomic.Bool
}

func (s *subscription) Push(ev telemetry.Event) bool {
	if s.cancelled.Load() {
		return false
	}
	return s.feed.Push(ev)
}
