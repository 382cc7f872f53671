package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
)

// MatchesHandler handles matching-related HTTP requests.
type MatchesHandler struct {
	*Base
	service *matching.Service
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(service *matching.Service) *MatchesHandler {
	return &MatchesHandler{
		Base:    &Base{},
		service: service,
	}
}

// AutoMatch handles POST /api/match/auto - runs a batch auto-match.
func (h *MatchesHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.AutoMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.UserID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	summary, err := h.service.RunAutoMatch(r.Context(), req.UserID, req.ReceiptIDs)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToAutoMatchResponse(summary))
}

// GetCandidates handles GET /api/receipts/{id}/candidates - ranked
// candidates for manual review.
func (h *MatchesHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	receiptID := chi.URLParam(r, "id")
	if receiptID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("receipt ID is required"))
		return
	}
	limit := ParseIntParam(r, "limit", 0)

	candidates, err := h.service.GetCandidates(r.Context(), receiptID, limit)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToCandidateListResponse(receiptID, candidates))
}

// CreateManual handles POST /api/match/manual - pairs a receipt with a
// candidate directly.
func (h *MatchesHandler) CreateManual(w http.ResponseWriter, r *http.Request) {
	var req dto.ManualMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.UserID == "" || req.ReceiptID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id and receipt_id are required"))
		return
	}

	match, err := h.service.CreateManualMatch(r.Context(), req.UserID, req.ReceiptID, req.TransactionID, req.GroupID, req.Coding)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, dto.ToMatchResponse(match))
}

// Confirm handles POST /api/match/{id}/confirm.
func (h *MatchesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	var req dto.ConfirmMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.UserID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	match, err := h.service.ConfirmMatch(r.Context(), matchID, req.Version, req.UserID, req.Coding)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToMatchResponse(match))
}

// Reject handles POST /api/match/{id}/reject.
func (h *MatchesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	var req dto.RejectMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	if req.UserID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	match, err := h.service.RejectMatch(r.Context(), matchID, req.Version, req.UserID)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToMatchResponse(match))
}

// Unmatch handles POST /api/match/{id}/unmatch - reverses a confirmed
// match.
func (h *MatchesHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	var req dto.UnmatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	result, err := h.service.Unmatch(r.Context(), matchID, req.Version)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.UnmatchResponse{
		Match:   dto.ToMatchResponse(result.Match),
		Warning: result.Warning,
	})
}

// Get handles GET /api/match/{id} - fetch a single match, typically for
// refresh-and-retry after a version conflict.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")

	match, err := h.service.GetMatch(r.Context(), matchID)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ToMatchResponse(match))
}
