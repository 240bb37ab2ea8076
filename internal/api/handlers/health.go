package handlers

import (
	"net/http"
	"time"

	"github.com/anaeng/aura/pkg/store"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	store *store.Store
}

func NewHealthHandler(s *store.Store) *HealthHandler {
	return &HealthHandler{store: s}
}

// HealthResponse is the body of a health check reply.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Check handles GET /api/healthcheck/. The database round trip is the only
// dependency worth probing: everything else degrades per-request.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
			Error:     err.Error(),
		})
		return
	}
	WriteJSONOK(w, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}
