package app

import (
	"encoding/json"
	"net/http"

	"github.com/specialistvlad/telemetryhub/internal/aggregator"
	"github.com/specialistvlad/telemetryhub/internal/ctxlog"
)

type healthResponse struct {
	Status string                    `json:"status"`
	Chains []aggregator.ChainSummary `json:"chains"`
}

// healthHandler reports the chains the aggregator currently holds.
func (h *hub) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(h.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)

	chains, err := h.agg.Chains(r.Context())
	if err != nil {
		logger.Warn("Health check failed.", "error", err)
		http.Error(w, "aggregator unavailable", http.StatusServiceUnavailable)
		return
	}
	if chains == nil {
		chains = []aggregator.ChainSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Chains: chains}); err != nil {
		logger.Debug("Failed to write health response.", "error", err)
	}
}
