package feed

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/densemap"
	"github.com/specialistvlad/telemetryhub/internal/telemetry"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

// socket.io event names understood from viewers.
const (
	eventConnection = "connection"
	eventSubscribe  = "subscribe"
	eventDisconnect = "disconnect"
)

// Aggregator is the part of aggregator.Handle a feed needs.
type Aggregator interface {
	Connect(ctx context.Context, feed telemetry.Subscriber) (densemap.ID, error)
	Disconnect(id densemap.ID, feed telemetry.Subscriber)
	Subscribe(chain string, feed telemetry.Subscriber)
}

// Server accepts viewer sockets.
type Server struct {
	ctx context.Context
	agg Aggregator
	io  *socket.Server
}

// NewServer creates the socket.io server mounted at path. ctx bounds every
// session.
func NewServer(ctx context.Context, agg Aggregator, path string) *Server {
	opts := socket.DefaultServerOptions()
	opts.SetPath(strings.TrimSuffix(path, "/"))
	opts.SetServeClient(false)
	// Viewers are browser dashboards served from elsewhere.
	opts.SetCors(&types.Cors{Origin: "*"})

	s := &Server{
		ctx: ctxlog.With(ctx, "component", "feed"),
		agg: agg,
		io:  socket.NewServer(nil, opts),
	}
	s.io.On(eventConnection, func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.attach(client)
	})
	return s
}

// Handler serves the socket.io endpoint.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Close disconnects every viewer.
func (s *Server) Close() {
	s.io.Close(nil)
}

func (s *Server) attach(client *socket.Socket) {
	sess, err := s.open(func(event string, payload any) {
		client.Emit(event, payload)
	})
	if err != nil {
		ctxlog.FromContext(s.ctx).Warn("Rejecting viewer.", "sid", client.Id(), "error", err)
		client.Disconnect(true)
		return
	}
	sess.logger.Debug("Viewer connected.", "sid", client.Id())

	client.On(eventSubscribe, func(args ...any) {
		if len(args) == 0 {
			return
		}
		name, ok := args[0].(string)
		if !ok {
			return
		}
		sess.subscribe(name)
	})
	client.On(eventDisconnect, func(...any) {
		sess.close()
	})
}

// open creates a session that writes through emit and registers it for the
// chain list.
func (s *Server) open(emit Emitter) (*session, error) {
	sess := &session{
		agg:    s.agg,
		logger: ctxlog.FromContext(s.ctx).With("session", uuid.NewString()),
		feed:   NewConnector(s.ctx, emit),
	}
	id, err := s.agg.Connect(s.ctx, sess.feed)
	if err != nil {
		sess.feed.Close()
		return nil, err
	}
	sess.adminID = id
	return sess, nil
}

// session is one viewer.
type session struct {
	agg     Aggregator
	logger  *slog.Logger
	feed    *Connector
	adminID densemap.ID

	mu      sync.Mutex
	current *subscription
	closed  bool
}

func (s *session) subscribe(chain string) {
	if chain == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.current != nil {
		s.current.cancelled.Store(true)
	}
	sub := &subscription{feed: s.feed}
	s.current = sub
	s.mu.Unlock()

	s.logger.Debug("Viewer subscribed.", "chain", chain)
	s.agg.Subscribe(chain, sub)
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.current != nil {
		s.current.cancelled.Store(true)
	}
	s.mu.Unlock()

	s.agg.Disconnect(s.adminID, s.feed)
	s.feed.Close()
	s.logger.Debug("Viewer disconnected.")
}
