package dto

import "github.com/cachewarming/receipt-match-backend/internal/domain/vendor"

// AutoMatchRequest starts a batch auto-match run. ReceiptIDs narrows the
// run to specific receipts; empty means all unmatched receipts.
type AutoMatchRequest struct {
	UserID     string   `json:"user_id"`
	ReceiptIDs []string `json:"receipt_ids,omitempty"`
}

// ManualMatchRequest pairs a receipt with a candidate directly. Exactly one
// of TransactionID and GroupID must be set.
type ManualMatchRequest struct {
	UserID        string         `json:"user_id"`
	ReceiptID     string         `json:"receipt_id"`
	TransactionID *string        `json:"transaction_id,omitempty"`
	GroupID       *string        `json:"group_id,omitempty"`
	Coding        *vendor.Coding `json:"coding,omitempty"`
}

// ConfirmMatchRequest confirms a proposed match. Version is the match
// version the client last observed.
type ConfirmMatchRequest struct {
	UserID  string         `json:"user_id"`
	Version int64          `json:"version"`
	Coding  *vendor.Coding `json:"coding,omitempty"`
}

// RejectMatchRequest rejects a proposed match.
type RejectMatchRequest struct {
	UserID  string `json:"user_id"`
	Version int64  `json:"version"`
}

// UnmatchRequest reverses a confirmed match.
type UnmatchRequest struct {
	Version int64 `json:"version"`
}
