package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cachewarming/receipt-match-backend/internal/api/dto"
)

// Base provides shared functionality for all handlers.
type Base struct{}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service error to its HTTP representation.
func (b *Base) WriteServiceError(w http.ResponseWriter, err error) {
	status, apiErr := dto.FromError(err)
	b.WriteError(w, status, apiErr)
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
