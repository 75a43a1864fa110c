package aggregator

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/chain"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

const waitFor = 2 * time.Second

// safeBuffer is a thread-safe buffer for capturing log output in tests.
type safeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// delivery is one message received by a fake unit.
type delivery struct {
	unit *chain.Addr
	msg  chain.Message
}

// fakeUnits is a Spawner that starts recording units instead of real chains.
type fakeUnits struct {
	mu      sync.Mutex
	started []*chain.Addr
	names   []string
	inbox   chan delivery
}

func newFakeUnits() *fakeUnits {
	return &fakeUnits{inbox: make(chan delivery, 64)}
}

func (f *fakeUnits) spawn(ctx context.Context, _ chain.Parent, name string) *chain.Addr {
	unit := actor.Start(ctx, "fake-"+name, func(_ context.Context, self *chain.Addr, msg chain.Message) {
		f.inbox <- delivery{unit: self, msg: msg}
	})
	f.mu.Lock()
	f.started = append(f.started, unit)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return unit
}

func (f *fakeUnits) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeUnits) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-f.inbox:
		return d
	case <-time.After(waitFor):
		t.Fatal("no message reached a unit")
		return delivery{}
	}
}

// noParent satisfies chain.Parent for synchronous tests where units never
// report back.
type noParent struct{}

func (noParent) DropChain(string, *chain.Addr)                             {}
func (noParent) AddNode(telemetry.NodeDetails, string, telemetry.NodeConn) {}
func (noParent) Subscribe(string, telemetry.Subscriber)                    {}

// newTestAggregator builds an aggregator wired to fake units with its log
// output captured.
func newTestAggregator(t *testing.T) (*Aggregator, *fakeUnits, *metrics.Hub, *safeBuffer) {
	t.Helper()
	units := newFakeUnits()
	m := metrics.New()
	agg := New(Options{Spawner: units.spawn, Metrics: m})
	logs := &safeBuffer{}
	agg.logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		for _, u := range units.started {
			u.Stop()
		}
	})
	return agg, units, m, logs
}

// fakeConn is a producer callback that records its initialization.
type fakeConn struct {
	name  string
	ready chan telemetry.ChainRef
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name, ready: make(chan telemetry.ChainRef, 1)}
}

func (c *fakeConn) Initialize(_ telemetry.NodeID, ref telemetry.ChainRef) {
	c.ready <- ref
}

func (c *fakeConn) Removed(telemetry.NodeID) {}

func (c *fakeConn) ref(t *testing.T) telemetry.ChainRef {
	t.Helper()
	select {
	case r := <-c.ready:
		return r
	case <-time.After(waitFor):
		t.Fatalf("node %s was never initialized", c.name)
		return nil
	}
}

// fakeFeed records events and can be closed.
type fakeFeed struct {
	mu     sync.Mutex
	events []telemetry.Event
	closed bool
}

func (f *fakeFeed) Push(ev telemetry.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeFeed) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeFeed) chains(kind telemetry.Kind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events {
		if ev.Kind == kind {
			out = append(out, ev.Payload.(telemetry.ChainPayload).Chain)
		}
	}
	return out
}
