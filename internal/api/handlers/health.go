package handlers

import (
	"net/http"

	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
)

// HealthHandler answers liveness probes. It reports static process health
// and does not touch the database.
type HealthHandler struct {
	*Base
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{Base: &Base{}}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, dto.NewHealthResponse())
}
