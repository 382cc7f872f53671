package handlers

import (
	"net/http"

	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
)

// StatsHandler handles stats-related HTTP requests.
type StatsHandler struct {
	*Base
	service *matching.Service
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(service *matching.Service) *StatsHandler {
	return &StatsHandler{
		Base:    &Base{},
		service: service,
	}
}

// Get handles GET /api/stats - returns the aggregate matching view.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToStatsResponse(stats))
}
