// Package httphandler exposes the daemon's small operational HTTP surface.
package httphandler

import (
	"log/slog"
	"net/http"

	"github.com/openvitals/vitalsync/internal/application"
)

// Handler serves the health endpoint.
type Handler struct {
	sync   *application.SyncService
	logger *slog.Logger
}

// NewHandler creates a Handler over the sync service.
func NewHandler(sync *application.SyncService, logger *slog.Logger) *Handler {
	return &Handler{sync: sync, logger: logger}
}

// RegisterRoutes registers the operational routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth reports the last sync cycle's outcome. It returns 200 as long
// as the daemon is up; a stale or failed sync is visible in the body, not the
// status code, since the next tick is the retry mechanism.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status())
}
