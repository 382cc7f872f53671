package handlers

import (
	"net/http"

	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
)

// AliasesHandler handles vendor alias HTTP requests.
type AliasesHandler struct {
	*Base
	service *matching.Service
}

// NewAliasesHandler creates a new aliases handler.
func NewAliasesHandler(service *matching.Service) *AliasesHandler {
	return &AliasesHandler{
		Base:    &Base{},
		service: service,
	}
}

// List handles GET /api/aliases - returns a user's learned vendor aliases.
func (h *AliasesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	aliases, err := h.service.ListAliases(r.Context(), userID)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToAliasListResponse(aliases))
}
