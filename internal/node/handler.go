package node

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
	"golang.org/x/time/rate"
)

// Registrar receives node registrations. aggregator.Handle implements it.
type Registrar interface {
	AddNode(details telemetry.NodeDetails, chain string, conn telemetry.NodeConn)
}

// Config limits what a single producer connection may send.
type Config struct {
	RatePerSec      float64
	Burst           int
	MaxMessageBytes int64
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
}

// Handler upgrades producer requests to WebSocket and serves them.
type Handler struct {
	ctx      context.Context
	agg      Registrar
	cfg      Config
	metrics  *metrics.Hub
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*connection]struct{}
	closed bool
}

// NewHandler creates the ingest handler. ctx supplies the logger.
func NewHandler(ctx context.Context, agg Registrar, cfg Config, m *metrics.Hub) *Handler {
	return &Handler{
		ctx:     ctx,
		agg:     agg,
		cfg:     cfg,
		metrics: m,
		conns:   make(map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// Producers are not browsers; any origin may submit.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(h.ctx)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("Producer upgrade failed.", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	limit := rate.Limit(h.cfg.RatePerSec)
	if h.cfg.RatePerSec <= 0 {
		limit = rate.Inf
	}
	c := &connection{
		id:      uuid.NewString(),
		ws:      ws,
		agg:     h.agg,
		cfg:     h.cfg,
		metrics: h.metrics,
		limiter: rate.NewLimiter(limit, h.cfg.Burst),
	}
	c.logger = logger.With("conn", c.id, "remote_addr", r.RemoteAddr)
	if !h.track(c) {
		ws.Close()
		return
	}
	defer h.untrack(c)
	c.serve()
}

// Close closes every producer socket and refuses new ones. Each closed
// node is removed from its chain as its read loop exits.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
	ctxlog.FromContext(h.ctx).Debug("Ingest handler closed.", "connections", len(conns))
}

func (h *Handler) track(c *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Handler) untrack(c *connection) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// connection is one producer socket. It is also the node's
// telemetry.NodeConn.
type connection struct {
	id      string
	ws      *websocket.Conn
	agg     Registrar
	cfg     Config
	metrics *metrics.Hub
	limiter *rate.Limiter
	logger  *slog.Logger

	mu           sync.Mutex
	ref          telemetry.ChainRef
	unregistered bool
	closed       bool
}

// Initialize is called by the chain unit once the node has an ID. If the
// socket is already gone the node is removed straight away.
func (c *connection) Initialize(id telemetry.NodeID, ref telemetry.ChainRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		ref.Remove()
		return
	}
	c.ref = ref
	c.logger.Debug("Node initialized.", "nodeID", id)
}

// Removed is called by the chain unit when it drops the node without being
// asked to. The socket is closed so the producer reconnects and registers
// again.
func (c *connection) Removed(id telemetry.NodeID) {
	c.mu.Lock()
	c.ref = nil
	c.unregistered = true
	c.mu.Unlock()

	c.logger.Info("Node dropped by its chain, closing producer.", "nodeID", id)
	c.ws.Close()
}

// chainRef returns the node's ChainRef, or reports that the chain has
// dropped the node.
func (c *connection) chainRef() (telemetry.ChainRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref, c.unregistered
}

func (c *connection) shutdown() {
	c.mu.Lock()
	c.closed = true
	ref := c.ref
	c.mu.Unlock()

	if ref != nil {
		ref.Remove()
	}
	c.ws.Close()
}

func (c *connection) serve() {
	defer c.shutdown()
	c.logger.Debug("Producer connected.")
	defer c.logger.Debug("Producer disconnected.")

	if c.cfg.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	}

	registered := false
	for {
		if c.cfg.IdleTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Producer read failed.", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.drop("rate_limited")
			continue
		}
		r, err := decodeReport(data)
		if err != nil {
			c.logger.Debug("Discarding malformed report.", "error", err)
			c.drop("malformed")
			continue
		}

		switch {
		case r.Details != nil:
			if registered {
				c.drop("duplicate")
				continue
			}
			registered = true
			c.logger.Info("Node connected.", "chain", r.Chain, "name", r.Details.Name)
			c.agg.AddNode(*r.Details, r.Chain, c)
		case r.Stats != nil:
			ref, unregistered := c.chainRef()
			if unregistered {
				c.drop("unregistered")
				continue
			}
			if ref == nil {
				c.drop("not_initialized")
				continue
			}
			if !ref.Update(*r.Stats) {
				c.logger.Info("Chain unit is gone, closing producer.")
				c.drop("unregistered")
				return
			}
		default:
			c.drop("unknown")
			continue
		}
		c.metrics.ReportsReceived.Inc()
	}
}

func (c *connection) drop(reason string) {
	c.metrics.ReportsDropped.WithLabelValues(reason).Inc()
}
