package handlers

import (
	"net/http"

	"github.com/eshaffer321/recon-monitor/internal/api/dto"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
}

// NewHealthHandler creates a new health handler. A nil repo skips the
// database probe.
func NewHealthHandler(repo storage.Repository) *HealthHandler {
	return &HealthHandler{Base: NewBase(repo)}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	if h.repo == nil {
		h.WriteJSON(w, http.StatusOK, response)
		return
	}

	if _, err := h.repo.ListRuns(storage.RunFilters{Limit: 1}); err != nil {
		response.Status = "degraded"
		response.Database = "unavailable"
		h.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Database = "ok"
	h.WriteJSON(w, http.StatusOK, response)
}
