package storage

import "time"

// EntityStatus is the match lifecycle status carried by receipts,
// transactions and transaction groups.
type EntityStatus string

const (
	StatusUnmatched EntityStatus = "unmatched"
	StatusProposed  EntityStatus = "proposed"
	StatusMatched   EntityStatus = "matched"
)

// MatchStatus is the lifecycle status of a Match record.
//
// Proposed matches transition to confirmed or rejected; both are terminal
// and retained for audit. A confirmed match that the user later unwinds
// moves to unmatched, which is also terminal.
type MatchStatus string

const (
	MatchProposed  MatchStatus = "proposed"
	MatchConfirmed MatchStatus = "confirmed"
	MatchRejected  MatchStatus = "rejected"
	MatchUnmatched MatchStatus = "unmatched"
)

// Receipt is a scanned receipt with extracted fields. The engine reads
// receipts and flips their match status; extraction itself happens upstream.
type Receipt struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	Amount               float64      `json:"amount"`
	Date                 time.Time    `json:"date"`
	Vendor               string       `json:"vendor"`
	Extracted            bool         `json:"extracted"`
	Status               EntityStatus `json:"status"`
	MatchedTransactionID *string      `json:"matched_transaction_id,omitempty"`
	MatchedGroupID       *string      `json:"matched_group_id,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

// Transaction is an imported financial transaction. A non-nil GroupID means
// the transaction is absorbed into a group and is excluded from individual
// candidacy.
type Transaction struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Amount           float64      `json:"amount"`
	Date             time.Time    `json:"date"`
	Description      string       `json:"description"`
	GroupID          *string      `json:"group_id,omitempty"`
	Status           EntityStatus `json:"status"`
	MatchedReceiptID *string      `json:"matched_receipt_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// TransactionGroup is a user-created aggregation of transactions that is
// matched as a single unit (e.g. "TWILIO (3 charges)").
type TransactionGroup struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Name             string       `json:"name"`
	CombinedAmount   float64      `json:"combined_amount"`
	DisplayDate      time.Time    `json:"display_date"`
	Status           EntityStatus `json:"status"`
	MatchedReceiptID *string      `json:"matched_receipt_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Match links one receipt to exactly one of transaction or group.
// Exactly one of TransactionID/GroupID is non-nil (schema-enforced).
type Match struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	ReceiptID     string      `json:"receipt_id"`
	TransactionID *string     `json:"transaction_id,omitempty"`
	GroupID       *string     `json:"group_id,omitempty"`
	Status        MatchStatus `json:"status"`
	Score         int         `json:"score"`
	AmountScore   int         `json:"amount_score"`
	DateScore     int         `json:"date_score"`
	VendorScore   int         `json:"vendor_score"`
	Reason        string      `json:"reason"`
	AliasID       *int64      `json:"alias_id,omitempty"`
	Manual        bool        `json:"manual"`
	CreatedAt     time.Time   `json:"created_at"`
	ConfirmedAt   *time.Time  `json:"confirmed_at,omitempty"`
	ConfirmedBy   *string     `json:"confirmed_by,omitempty"`
	UnmatchedAt   *time.Time  `json:"unmatched_at,omitempty"`

	// Version is the optimistic concurrency stamp. Mutating operations
	// require the version the caller last observed.
	Version int64 `json:"version"`
}

// TargetID returns the candidate side of the match regardless of type.
func (m *Match) TargetID() string {
	if m.TransactionID != nil {
		return *m.TransactionID
	}
	if m.GroupID != nil {
		return *m.GroupID
	}
	return ""
}

// IsGroupMatch reports whether the match targets a transaction group.
func (m *Match) IsGroupMatch() bool {
	return m.GroupID != nil
}

// VendorAlias is a learned mapping from a normalized vendor pattern to a
// canonical vendor identity plus default coding.
type VendorAlias struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	Pattern       string    `json:"pattern"`
	CanonicalName string    `json:"canonical_name"`
	GLCode        string    `json:"gl_code,omitempty"`
	Department    string    `json:"department,omitempty"`
	MatchCount    int       `json:"match_count"`
	LastMatchedAt time.Time `json:"last_matched_at"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
}

// MatchStats is the aggregate view for a user's matching progress.
type MatchStats struct {
	MatchedCount            int     `json:"matched_count"`
	ProposedCount           int     `json:"proposed_count"`
	UnmatchedReceiptCount   int     `json:"unmatched_receipt_count"`
	UnmatchedCandidateCount int     `json:"unmatched_candidate_count"`
	AutoMatchRate           float64 `json:"auto_match_rate"`
	AverageConfidence       float64 `json:"average_confidence"`
}
