// Package metrics holds the Prometheus collectors exported by the hub.
//
// Every Hub owns its own prometheus.Registry so that several hubs (one per
// test, typically) can coexist in a process without duplicate registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telemetryhub"

// Hub is the set of collectors shared by the aggregator, chain units, ingest
// and feeds.
type Hub struct {
	registry *prometheus.Registry

	ChainsCreated   prometheus.Counter
	ChainsReplaced  prometheus.Counter
	ChainsDropped   prometheus.Counter
	StaleDrops      prometheus.Counter
	ChainsActive    prometheus.Gauge
	NodesConnected  prometheus.Gauge
	NodesPruned     prometheus.Counter
	FeedsConnected  prometheus.Gauge
	ReportsReceived prometheus.Counter
	ReportsDropped  *prometheus.CounterVec
}

// New creates a Hub with all collectors registered, plus the Go runtime and
// process collectors.
func New() *Hub {
	h := &Hub{
		registry: prometheus.NewRegistry(),
		ChainsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_created_total",
			Help:      "Chain units started by the aggregator.",
		}),
		ChainsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_replaced_total",
			Help:      "Chain units started because the stored unit had terminated.",
		}),
		ChainsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_dropped_total",
			Help:      "Chain entries removed after their unit reported empty.",
		}),
		StaleDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chains_stale_drops_total",
			Help:      "Drop notices ignored because a newer unit owned the chain.",
		}),
		ChainsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chains_active",
			Help:      "Chain entries currently held by the aggregator.",
		}),
		NodesConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_connected",
			Help:      "Nodes currently registered across all chain units.",
		}),
		NodesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_pruned_total",
			Help:      "Nodes removed for not reporting within the stale window.",
		}),
		FeedsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feeds_connected",
			Help:      "Subscriber feeds connected to the aggregator.",
		}),
		ReportsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_received_total",
			Help:      "Telemetry messages accepted from producers.",
		}),
		ReportsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_dropped_total",
			Help:      "Telemetry messages discarded by ingest, by reason.",
		}, []string{"reason"}),
	}

	h.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		h.ChainsCreated,
		h.ChainsReplaced,
		h.ChainsDropped,
		h.StaleDrops,
		h.ChainsActive,
		h.NodesConnected,
		h.NodesPruned,
		h.FeedsConnected,
		h.ReportsReceived,
		h.ReportsDropped,
	)
	return h
}

// Handler serves the registry in the Prometheus exposition format.
func (h *Hub) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}
