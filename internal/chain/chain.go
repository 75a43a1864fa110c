package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/densemap"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

// DefaultEmptyGrace is how long a unit with subscribers but no nodes waits
// for a node before retiring.
const DefaultEmptyGrace = 30 * time.Second

// Options tunes a chain unit. The zero value disables stale pruning and uses
// the wall clock.
type Options struct {
	Clock         clock.Clock
	StaleAfter    time.Duration
	PruneInterval time.Duration
	// EmptyGrace bounds the life of a unit that only ever saw subscribers.
	// Zero means DefaultEmptyGrace.
	EmptyGrace time.Duration
	Metrics    *metrics.Hub
}

type nodeEntry struct {
	details  telemetry.NodeDetails
	stats    *telemetry.NodeStats
	conn     telemetry.NodeConn
	lastSeen time.Time
}

type unit struct {
	name   string
	parent Parent
	opts   Options
	logger *slog.Logger

	nodes *densemap.DenseMap[*nodeEntry]
	feeds *densemap.DenseMap[telemetry.Subscriber]
	best  telemetry.BlockPayload
}

// Start spawns the unit for name. parent receives DropChain once the unit
// has no nodes left.
func Start(ctx context.Context, parent Parent, name string, opts Options) *Addr {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.EmptyGrace <= 0 {
		opts.EmptyGrace = DefaultEmptyGrace
	}
	ctx = ctxlog.With(ctx, "chain", name)
	u := &unit{
		name:   name,
		parent: parent,
		opts:   opts,
		logger: ctxlog.FromContext(ctx),
		nodes:  densemap.New[*nodeEntry](),
		feeds:  densemap.New[telemetry.Subscriber](),
	}

	addr := actor.Start(ctx, "chain", u.handle)
	var ticker *clock.Ticker
	if opts.StaleAfter > 0 && opts.PruneInterval > 0 {
		ticker = opts.Clock.Ticker(opts.PruneInterval)
	}
	go u.watch(addr, ticker)
	return addr
}

// watch feeds prune ticks to the unit until it stops. A unit stopped from
// outside still holds its nodes, so they are taken off the gauge here.
func (u *unit) watch(addr *Addr, ticker *clock.Ticker) {
	var ticks <-chan time.Time
	if ticker != nil {
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-ticks:
			addr.Send(prune{})
		case <-addr.Done():
			if n := u.nodes.Len(); n > 0 {
				u.opts.Metrics.NodesConnected.Sub(float64(n))
			}
			return
		}
	}
}

func (u *unit) handle(_ context.Context, self *Addr, msg Message) {
	switch m := msg.(type) {
	case AddNode:
		u.addNode(self, m)
	case UpdateNode:
		u.updateNode(m)
	case RemoveNode:
		u.removeNode(self, m)
	case Subscribe:
		u.subscribe(self, m.Feed)
	case prune:
		u.prune(self)
	case emptyCheck:
		u.retireIfEmpty(self)
	}
}

func (u *unit) addNode(self *Addr, m AddNode) {
	entry := &nodeEntry{
		details:  m.Details,
		conn:     m.Conn,
		lastSeen: u.opts.Clock.Now(),
	}
	id := telemetry.NodeID(u.nodes.Add(entry))
	u.opts.Metrics.NodesConnected.Inc()
	u.logger.Debug("Node added.", "nodeID", id, "name", m.Details.Name)

	m.Conn.Initialize(id, nodeRef{unit: self, id: id, conn: m.Conn})
	u.broadcast(telemetry.Event{
		Kind:    telemetry.KindAddedNode,
		Payload: telemetry.NodePayload{ID: id, Details: &entry.details},
	})
}

// lookup returns the entry for id if it still belongs to conn. Slot IDs are
// recycled, so a late message from a removed node must not touch the node
// that took its slot.
func (u *unit) lookup(id telemetry.NodeID, conn telemetry.NodeConn) (*nodeEntry, bool) {
	entry, ok := u.nodes.Get(densemap.ID(id))
	if !ok || entry.conn != conn {
		return nil, false
	}
	return entry, true
}

func (u *unit) updateNode(m UpdateNode) {
	entry, ok := u.lookup(m.ID, m.Conn)
	if !ok {
		return
	}
	stats := m.Stats
	entry.stats = &stats
	entry.lastSeen = u.opts.Clock.Now()

	u.broadcast(telemetry.Event{
		Kind:    telemetry.KindNodeStats,
		Payload: telemetry.NodePayload{ID: m.ID, Stats: &stats},
	})
	if stats.BestHeight > u.best.Height {
		u.best = telemetry.BlockPayload{Height: stats.BestHeight, Hash: stats.BestHash}
		u.broadcast(telemetry.Event{Kind: telemetry.KindBestBlock, Payload: u.best})
	}
}

func (u *unit) removeNode(self *Addr, m RemoveNode) {
	if _, ok := u.lookup(m.ID, m.Conn); !ok {
		return
	}
	u.drop(m.ID)
	u.retireIfEmpty(self)
}

func (u *unit) drop(id telemetry.NodeID) {
	u.nodes.Remove(densemap.ID(id))
	u.opts.Metrics.NodesConnected.Dec()
	u.logger.Debug("Node removed.", "nodeID", id)
	u.broadcast(telemetry.Event{
		Kind:    telemetry.KindRemovedNode,
		Payload: telemetry.NodePayload{ID: id},
	})
}

func (u *unit) subscribe(self *Addr, feed telemetry.Subscriber) {
	if u.nodes.Len() == 0 {
		u.opts.Clock.AfterFunc(u.opts.EmptyGrace, func() { self.Send(emptyCheck{}) })
	}
	if !feed.Push(telemetry.Event{Kind: telemetry.KindSubscribed, Payload: telemetry.ChainPayload{Chain: u.name}}) {
		return
	}
	for id, entry := range u.nodes.All() {
		feed.Push(telemetry.Event{
			Kind:    telemetry.KindAddedNode,
			Payload: telemetry.NodePayload{ID: telemetry.NodeID(id), Details: &entry.details, Stats: entry.stats},
		})
	}
	if u.best.Height > 0 {
		feed.Push(telemetry.Event{Kind: telemetry.KindBestBlock, Payload: u.best})
	}
	u.feeds.Add(feed)
}

func (u *unit) prune(self *Addr) {
	cutoff := u.opts.Clock.Now().Add(-u.opts.StaleAfter)
	for id, entry := range u.nodes.All() {
		if entry.lastSeen.Before(cutoff) {
			u.logger.Info("Pruning stale node.", "nodeID", id, "name", entry.details.Name, "lastSeen", entry.lastSeen)
			u.opts.Metrics.NodesPruned.Inc()
			u.drop(telemetry.NodeID(id))
			entry.conn.Removed(telemetry.NodeID(id))
		}
	}
	u.retireIfEmpty(self)
}

func (u *unit) broadcast(ev telemetry.Event) {
	for id, feed := range u.feeds.All() {
		if !feed.Push(ev) {
			u.feeds.Remove(id)
		}
	}
}

// retireIfEmpty stops the unit once it has no nodes. The mailbox is closed
// before the parent is told, so the parent's liveness check already fails
// when DropChain arrives.
func (u *unit) retireIfEmpty(self *Addr) {
	if u.nodes.Len() > 0 {
		return
	}
	pending := self.Stop()
	u.logger.Debug("Chain unit empty, retiring.", "pending", len(pending))
	u.broadcast(telemetry.Event{Kind: telemetry.KindRemovedChain, Payload: telemetry.ChainPayload{Chain: u.name}})
	u.parent.DropChain(u.name, self)

	for _, msg := range pending {
		switch m := msg.(type) {
		case AddNode:
			u.parent.AddNode(m.Details, u.name, m.Conn)
		case Subscribe:
			u.parent.Subscribe(u.name, m.Feed)
		}
	}
}
