package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/specialistvlad/telemetryhub/internal/aggregator"
	"github.com/specialistvlad/telemetryhub/internal/chain"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
	"github.com/specialistvlad/telemetryhub/internal/feed"
	"github.com/specialistvlad/telemetryhub/internal/metrics"
	"github.com/specialistvlad/telemetryhub/internal/node"
)

// hub is one running set of components behind the HTTP server.
type hub struct {
	ctx     context.Context
	cfg     *Config
	agg     aggregator.Handle
	ingest  *node.Handler
	feeds   *feed.Server
	metrics *metrics.Hub
}

func (a *App) start(ctx context.Context) *hub {
	logger := ctxlog.FromContext(ctx)

	agg := aggregator.New(aggregator.Options{
		Chain: chain.Options{
			Clock:         a.clock,
			StaleAfter:    a.config.StaleAfter,
			PruneInterval: a.config.PruneInterval,
			EmptyGrace:    a.config.EmptyGrace,
		},
		Metrics: a.metrics,
	}).Start(ctx)
	logger.Debug("Aggregator started.")

	ingest := node.NewHandler(ctxlog.With(ctx, "component", "ingest"), agg, node.Config{
		RatePerSec:      a.config.RatePerSec,
		Burst:           a.config.Burst,
		MaxMessageBytes: a.config.MaxMessageBytes,
		IdleTimeout:     a.config.IdleTimeout,
	}, a.metrics)

	return &hub{
		ctx:     ctx,
		cfg:     a.config,
		agg:     agg,
		ingest:  ingest,
		feeds:   feed.NewServer(ctx, agg, a.config.FeedPath),
		metrics: a.metrics,
	}
}

func (h *hub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(h.cfg.IngestPath, h.ingest)
	mux.Handle(h.cfg.FeedPath, h.feeds.Handler())
	mux.HandleFunc("GET /health", h.healthHandler)
	mux.Handle("GET /metrics", h.metrics.Handler())
	return mux
}

// close stops the components in dependency order: producers and viewers
// first, then the aggregator, which stops every chain unit.
func (h *hub) close(ctx context.Context) error {
	logger := ctxlog.FromContext(h.ctx)

	h.ingest.Close()
	h.feeds.Close()
	h.agg.Stop()

	select {
	case <-h.agg.Done():
		logger.Debug("Aggregator stopped.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("aggregator did not stop: %w", ctx.Err())
	}
}
