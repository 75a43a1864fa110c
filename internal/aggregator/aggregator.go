package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/specialistvlad/telemetryhub/internal/actor"
	"github.com/specialistvlad/telemetryhub/internal/chain"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/densemap"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
)

// Spawner starts a chain unit for name that reports to parent.
type Spawner func(ctx context.Context, parent chain.Parent, name string) *chain.Addr

// Options configures an Aggregator.
type Options struct {
	// Spawner overrides how units are started. Defaults to chain.Start with
	// the Chain options.
	Spawner Spawner
	Chain   chain.Options
	Metrics *metrics.Hub
}

// Aggregator is the registry state. It is only touched from its actor
// goroutine once started.
type Aggregator struct {
	spawn   Spawner
	metrics *metrics.Hub
	logger  *slog.Logger

	chains map[string]*chain.Addr
	// announced holds the chains admin feeds have been told about: those
	// that received a node. Units created by a subscription stay unlisted.
	announced map[string]struct{}
	feeds     *densemap.DenseMap[telemetry.Subscriber]
}

// New creates an aggregator that is not running yet.
func New(opts Options) *Aggregator {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Chain.Metrics == nil {
		opts.Chain.Metrics = opts.Metrics
	}
	spawn := opts.Spawner
	if spawn == nil {
		chainOpts := opts.Chain
		spawn = func(ctx context.Context, parent chain.Parent, name string) *chain.Addr {
			return chain.Start(ctx, parent, name, chainOpts)
		}
	}
	return &Aggregator{
		spawn:     spawn,
		metrics:   opts.Metrics,
		logger:    slog.Default(),
		chains:    make(map[string]*chain.Addr),
		announced: make(map[string]struct{}),
		feeds:     densemap.New[telemetry.Subscriber](),
	}
}

// Start runs the aggregator in its own goroutine. Chain units inherit ctx.
func (a *Aggregator) Start(ctx context.Context) Handle {
	unitCtx := ctxlog.With(ctx, "component", "chain")
	ctx = ctxlog.With(ctx, "component", "aggregator")
	a.logger = ctxlog.FromContext(ctx)
	return Handle{addr: actor.Start(ctx, "aggregator", func(_ context.Context, self *actor.Addr[Message], msg Message) {
		a.handle(unitCtx, self, msg)
	})}
}

// handle processes one message. ctx is the context units are started with.
func (a *Aggregator) handle(ctx context.Context, self *actor.Addr[Message], msg Message) {
	parent := Handle{addr: self}
	switch m := msg.(type) {
	case AddNode:
		a.forward(ctx, parent, m.Chain, chain.AddNode{Details: m.Details, Conn: m.Conn})
	case DropChain:
		a.dropChain(m.Chain, m.Unit)
	case Subscribe:
		a.forward(ctx, parent, m.Chain, chain.Subscribe{Feed: m.Feed})
	case Connect:
		m.Reply <- a.connect(m.Feed)
	case Disconnect:
		a.disconnect(m.ID, m.Feed)
	case chainsQuery:
		m.reply <- a.liveChains()
	case shutdown:
		for name, unit := range a.chains {
			unit.Stop()
			delete(a.chains, name)
		}
		a.metrics.ChainsActive.Set(0)
		self.Stop()
	}
}

// lazyChain returns the live unit for name, starting one if the entry is
// missing or its unit has terminated. A live entry is returned untouched.
func (a *Aggregator) lazyChain(ctx context.Context, parent chain.Parent, name string) *chain.Addr {
	current, known := a.chains[name]
	if known && current.Connected() {
		return current
	}

	unit := a.spawn(ctx, parent, name)
	a.chains[name] = unit
	a.metrics.ChainsCreated.Inc()
	a.metrics.ChainsActive.Set(float64(len(a.chains)))

	if known {
		a.metrics.ChainsReplaced.Inc()
		a.logger.Debug("Replaced terminated chain unit.", "chain", name)
		return unit
	}
	a.logger.Debug("Started chain unit.", "chain", name)
	return unit
}

// announce lists name for admin feeds once a node has been routed to it. A
// replaced unit keeps the listing, so the swap is invisible to viewers.
func (a *Aggregator) announce(name string) {
	if _, ok := a.announced[name]; ok {
		return
	}
	a.announced[name] = struct{}{}
	a.broadcast(telemetry.Event{Kind: telemetry.KindAddedChain, Payload: telemetry.ChainPayload{Chain: name}})
}

// forward delivers msg to the chain's unit. A unit can retire between the
// liveness check and the send, in which case the send fails and the lookup
// is repeated once against the replacement.
func (a *Aggregator) forward(ctx context.Context, parent chain.Parent, name string, msg chain.Message) {
	for range 2 {
		if a.lazyChain(ctx, parent, name).Send(msg) {
			if _, ok := msg.(chain.AddNode); ok {
				a.announce(name)
			}
			return
		}
	}
	a.logger.Warn("Chain unit rejected message.", "chain", name)
}

// dropChain removes the entry for name only while it still designates unit.
func (a *Aggregator) dropChain(name string, unit *chain.Addr) {
	current, ok := a.chains[name]
	if !ok || current != unit {
		a.metrics.StaleDrops.Inc()
		return
	}

	delete(a.chains, name)
	a.metrics.ChainsDropped.Inc()
	a.metrics.ChainsActive.Set(float64(len(a.chains)))
	a.logger.Info("Dropped chain from the aggregator.", "chain", name)
	if _, ok := a.announced[name]; ok {
		delete(a.announced, name)
		a.broadcast(telemetry.Event{Kind: telemetry.KindRemovedChain, Payload: telemetry.ChainPayload{Chain: name}})
	}
}

func (a *Aggregator) connect(feed telemetry.Subscriber) densemap.ID {
	for _, c := range a.liveChains() {
		feed.Push(telemetry.Event{Kind: telemetry.KindAddedChain, Payload: telemetry.ChainPayload{Chain: c.Name}})
	}
	id := a.feeds.Add(feed)
	a.metrics.FeedsConnected.Set(float64(a.feeds.Len()))
	a.logger.Debug("Feed connected.", "feedID", id)
	return id
}

func (a *Aggregator) disconnect(id densemap.ID, feed telemetry.Subscriber) {
	if current, ok := a.feeds.Get(id); !ok || current != feed {
		return
	}
	a.feeds.Remove(id)
	a.metrics.FeedsConnected.Set(float64(a.feeds.Len()))
	a.logger.Debug("Feed disconnected.", "feedID", id)
}

func (a *Aggregator) broadcast(ev telemetry.Event) {
	for id, feed := range a.feeds.All() {
		if !feed.Push(ev) {
			a.feeds.Remove(id)
		}
	}
	a.metrics.FeedsConnected.Set(float64(a.feeds.Len()))
}

func (a *Aggregator) liveChains() []ChainSummary {
	out := make([]ChainSummary, 0, len(a.chains))
	for name, unit := range a.chains {
		if _, ok := a.announced[name]; ok && unit.Connected() {
			out = append(out, ChainSummary{Name: name})
		}
	}
	slices.SortFunc(out, func(x, y ChainSummary) int {
		return strings.Compare(x.Name, y.Name)
	})
	return out
}
