package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/capitalize-ai/tixagent/internal/session"
)

// Connectivity reports whether an optional dependency is reachable.
type Connectivity interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store session.Store
	// nats is nil when the journal is disabled.
	nats Connectivity
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store session.Store, nats Connectivity) *HealthHandler {
	return &HealthHandler{
		store: store,
		nats:  nats,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "session store unreachable",
		})
		return
	}

	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
