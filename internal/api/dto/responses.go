package dto

import (
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// MatchResponse represents a match in API responses.
type MatchResponse struct {
	ID            string  `json:"id"`
	ReceiptID     string  `json:"receipt_id"`
	TransactionID *string `json:"transaction_id,omitempty"`
	GroupID       *string `json:"group_id,omitempty"`
	Status        string  `json:"status"`
	Score         int     `json:"score"`
	AmountScore   int     `json:"amount_score"`
	DateScore     int     `json:"date_score"`
	VendorScore   int     `json:"vendor_score"`
	Reason        string  `json:"reason"`
	Manual        bool    `json:"manual"`
	Version       int64   `json:"version"`
	CreatedAt     string  `json:"created_at"`
	ConfirmedAt   string  `json:"confirmed_at,omitempty"`
	ConfirmedBy   string  `json:"confirmed_by,omitempty"`
	UnmatchedAt   string  `json:"unmatched_at,omitempty"`
}

// ToMatchResponse converts a storage match to its API representation.
func ToMatchResponse(m *storage.Match) MatchResponse {
	resp := MatchResponse{
		ID:            m.ID,
		ReceiptID:     m.ReceiptID,
		TransactionID: m.TransactionID,
		GroupID:       m.GroupID,
		Status:        string(m.Status),
		Score:         m.Score,
		AmountScore:   m.AmountScore,
		DateScore:     m.DateScore,
		VendorScore:   m.VendorScore,
		Reason:        m.Reason,
		Manual:        m.Manual,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.ConfirmedAt != nil {
		resp.ConfirmedAt = m.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if m.ConfirmedBy != nil {
		resp.ConfirmedBy = *m.ConfirmedBy
	}
	if m.UnmatchedAt != nil {
		resp.UnmatchedAt = m.UnmatchedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// UnmatchResponse is returned when a confirmed match is reversed. Warning
// is set when the group total drifted while the match was live.
type UnmatchResponse struct {
	Match   MatchResponse `json:"match"`
	Warning string        `json:"warning,omitempty"`
}

// AutoMatchResponse summarizes one auto-match run.
type AutoMatchResponse struct {
	Processed    int `json:"processed"`
	Proposed     int `json:"proposed"`
	Ambiguous    int `json:"ambiguous"`
	Skipped      int `json:"skipped"`
	GroupMatches int `json:"group_match_count"`
}

// ToAutoMatchResponse converts a run summary to its API representation.
func ToAutoMatchResponse(s *matching.Summary) AutoMatchResponse {
	return AutoMatchResponse{
		Processed:    s.Processed,
		Proposed:     s.Proposed,
		Ambiguous:    s.Ambiguous,
		Skipped:      s.Skipped,
		GroupMatches: s.GroupMatches,
	}
}

// CandidateResponse is one ranked candidate for manual review.
type CandidateResponse struct {
	CandidateType string `json:"candidate_type"`
	CandidateID   string `json:"candidate_id"`
	Score         int    `json:"score"`
	AmountScore   int    `json:"amount_score"`
	DateScore     int    `json:"date_score"`
	VendorScore   int    `json:"vendor_score"`
	Reason        string `json:"reason"`
}

// CandidateListResponse is returned when listing candidates for a receipt.
type CandidateListResponse struct {
	ReceiptID  string              `json:"receipt_id"`
	Candidates []CandidateResponse `json:"candidates"`
	Count      int                 `json:"count"`
}

// ToCandidateListResponse converts ranked candidates to their API
// representation.
func ToCandidateListResponse(receiptID string, ranked []matching.RankedCandidate) CandidateListResponse {
	out := CandidateListResponse{
		ReceiptID:  receiptID,
		Candidates: make([]CandidateResponse, 0, len(ranked)),
		Count:      len(ranked),
	}
	for _, c := range ranked {
		out.Candidates = append(out.Candidates, CandidateResponse{
			CandidateType: string(c.CandidateType),
			CandidateID:   c.CandidateID,
			Score:         c.Score,
			AmountScore:   c.AmountScore,
			DateScore:     c.DateScore,
			VendorScore:   c.VendorScore,
			Reason:        c.Reason,
		})
	}
	return out
}

// StatsResponse is the aggregate matching view for a user.
type StatsResponse struct {
	MatchedCount            int     `json:"matched_count"`
	ProposedCount           int     `json:"proposed_count"`
	UnmatchedReceiptCount   int     `json:"unmatched_receipt_count"`
	UnmatchedCandidateCount int     `json:"unmatched_candidate_count"`
	AutoMatchRate           float64 `json:"auto_match_rate"`
	AverageConfidence       float64 `json:"average_confidence"`
}

// ToStatsResponse converts storage stats to their API representation.
func ToStatsResponse(s *storage.MatchStats) StatsResponse {
	return StatsResponse{
		MatchedCount:            s.MatchedCount,
		ProposedCount:           s.ProposedCount,
		UnmatchedReceiptCount:   s.UnmatchedReceiptCount,
		UnmatchedCandidateCount: s.UnmatchedCandidateCount,
		AutoMatchRate:           s.AutoMatchRate,
		AverageConfidence:       s.AverageConfidence,
	}
}

// AliasResponse represents a learned vendor alias.
type AliasResponse struct {
	ID            int64   `json:"id"`
	Pattern       string  `json:"pattern"`
	CanonicalName string  `json:"canonical_name"`
	GLCode        string  `json:"gl_code,omitempty"`
	Department    string  `json:"department,omitempty"`
	MatchCount    int     `json:"match_count"`
	LastMatchedAt string  `json:"last_matched_at"`
	Confidence    float64 `json:"confidence"`
}

// AliasListResponse is returned when listing a user's aliases.
type AliasListResponse struct {
	Aliases []AliasResponse `json:"aliases"`
	Count   int             `json:"count"`
}

// ToAliasListResponse converts aliases to their API representation.
func ToAliasListResponse(aliases []*storage.VendorAlias) AliasListResponse {
	out := AliasListResponse{
		Aliases: make([]AliasResponse, 0, len(aliases)),
		Count:   len(aliases),
	}
	for _, a := range aliases {
		out.Aliases = append(out.Aliases, AliasResponse{
			ID:            a.ID,
			Pattern:       a.Pattern,
			CanonicalName: a.CanonicalName,
			GLCode:        a.GLCode,
			Department:    a.Department,
			MatchCount:    a.MatchCount,
			LastMatchedAt: a.LastMatchedAt.UTC().Format(time.RFC3339),
			Confidence:    a.Confidence,
		})
	}
	return out
}
