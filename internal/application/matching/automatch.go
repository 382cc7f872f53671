package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cachewarming/receipt-match-backend/internal/domain/scoring"
	"github.com/cachewarming/receipt-match-backend/internal/domain/vendor"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// Summary is the aggregate outcome of one auto-match run.
type Summary struct {
	Processed    int `json:"processed"`
	Proposed     int `json:"proposed"`
	Ambiguous    int `json:"ambiguous"`
	Skipped      int `json:"skipped"`
	GroupMatches int `json:"group_match_count"`
}

// scoredCandidate pairs a candidate with its score for ranking
type scoredCandidate struct {
	candidate scoring.Candidate
	result    scoring.Result
}

// RunAutoMatch scores every unmatched receipt for the user against the
// eligible candidate pool and creates proposed matches for unambiguous
// winners at or above the score threshold.
//
// Each receipt's proposal is an atomic unit; a failure on one receipt is
// counted as skipped and the batch continues. Candidates proposed earlier
// in the run are not offered to later receipts.
func (s *Service) RunAutoMatch(ctx context.Context, userID string, receiptIDs []string) (*Summary, error) {
	started := time.Now()
	summary := &Summary{}

	receipts, err := s.repo.ListUnmatchedReceipts(userID, receiptIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipts: %w", err)
	}
	if len(receipts) == 0 {
		s.logger.Info("auto-match run: no unmatched receipts", "user_id", userID)
		return summary, nil
	}

	// Outer window spans all receipts plus the per-receipt tolerance
	from, to := receipts[0].Date, receipts[0].Date
	for _, r := range receipts[1:] {
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	window := time.Duration(s.cfg.DateWindowDays) * 24 * time.Hour
	candidates, err := s.fetchCandidates(ctx, userID, from.Add(-window), to.Add(window))
	if err != nil {
		return nil, err
	}

	aliases, err := s.repo.ListAliases(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aliases: %w", err)
	}
	engine := scoring.NewEngine(vendor.NewSnapshot(aliases))

	s.logger.Info("auto-match run started",
		"user_id", userID,
		"receipts", len(receipts),
		"candidates", len(candidates),
		"aliases", len(aliases),
	)

	// Candidates proposed during this run are withheld from later receipts
	usedCandidates := make(map[string]bool)

	for _, receipt := range receipts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		proposed, err := s.proposeForReceipt(engine, receipt, candidates, usedCandidates, summary)
		if err != nil {
			summary.Skipped++
			s.logger.Warn("receipt skipped", "receipt_id", receipt.ID, "error", err)
			continue
		}
		if proposed != nil {
			summary.Proposed++
			if proposed.IsGroupMatch() {
				summary.GroupMatches++
			}
			usedCandidates[proposed.TargetID()] = true
		}
	}

	s.logger.Info("auto-match run finished",
		"user_id", userID,
		"processed", summary.Processed,
		"proposed", summary.Proposed,
		"ambiguous", summary.Ambiguous,
		"skipped", summary.Skipped,
		"group_matches", summary.GroupMatches,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return summary, nil
}

// proposeForReceipt scores all available candidates for one receipt and
// creates a proposed match when exactly one candidate clearly wins.
// Returns nil with no error when nothing qualifies.
func (s *Service) proposeForReceipt(
	engine *scoring.Engine,
	receipt *storage.Receipt,
	candidates []scoring.Candidate,
	usedCandidates map[string]bool,
	summary *Summary,
) (*storage.Match, error) {
	available := make([]scoring.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !usedCandidates[c.CandidateID()] {
			available = append(available, c)
		}
	}

	scored := scoreAll(engine, receipt, available)
	if len(scored) == 0 {
		return nil, nil
	}

	best := scored[0]
	if best.result.Total < s.cfg.ScoreThreshold {
		return nil, nil
	}

	// Two close contenders means neither is trustworthy: flag for manual
	// review instead of guessing
	if len(scored) > 1 && best.result.Total-scored[1].result.Total <= s.cfg.AmbiguityWindow {
		summary.Ambiguous++
		s.logger.Debug("ambiguous receipt",
			"receipt_id", receipt.ID,
			"top_score", best.result.Total,
			"runner_up", scored[1].result.Total,
		)
		return nil, nil
	}

	match := &storage.Match{
		ID:          uuid.NewString(),
		UserID:      receipt.UserID,
		ReceiptID:   receipt.ID,
		Status:      storage.MatchProposed,
		Score:       best.result.Total,
		AmountScore: best.result.AmountScore,
		DateScore:   best.result.DateScore,
		VendorScore: best.result.VendorScore,
		Reason:      best.result.Reason,
	}
	id := best.candidate.CandidateID()
	if best.candidate.CandidateType() == scoring.TypeGroup {
		match.GroupID = &id
	} else {
		match.TransactionID = &id
	}
	if best.result.Alias != nil {
		match.AliasID = &best.result.Alias.ID
	}

	if err := s.repo.CreateMatch(match); err != nil {
		return nil, err
	}
	return match, nil
}

// scoreAll scores a receipt against every candidate and returns the
// results sorted best-first. Ties rank deterministically by candidate ID.
func scoreAll(engine *scoring.Engine, receipt *storage.Receipt, candidates []scoring.Candidate) []scoredCandidate {
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		result := engine.Score(receipt, c)
		if result.Total <= 0 {
			continue
		}
		scored = append(scored, scoredCandidate{candidate: c, result: result})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].result.Total != scored[j].result.Total {
			return scored[i].result.Total > scored[j].result.Total
		}
		return scored[i].candidate.CandidateID() < scored[j].candidate.CandidateID()
	})
	return scored
}
