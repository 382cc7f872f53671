// Package matching orchestrates the receipt-to-transaction matching
// workflow: batch auto-matching, candidate ranking for manual review,
// confirm/reject/manual-match/unmatch operations and the deletion
// cascades.
//
// All mutating operations are first-writer-wins: the caller supplies the
// match version it last observed and a mismatch surfaces as
// storage.ErrConflict with no partial writes. The one-confirmed-per-side
// invariant is enforced by the repository, so racing confirms cannot
// produce a double match even when both pass the service-level state
// check.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cachewarming/receipt-match-backend/internal/domain/scoring"
	"github.com/cachewarming/receipt-match-backend/internal/domain/vendor"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// Service is the matching engine's orchestration layer.
type Service struct {
	repo    storage.Repository
	learner *vendor.Learner
	logger  *slog.Logger
	cfg     config.MatchingConfig
}

// NewService creates a matching service
func NewService(repo storage.Repository, cfg config.MatchingConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		learner: vendor.NewLearner(repo),
		logger:  logger,
		cfg:     cfg,
	}
}

// RankedCandidate is one row of the manual-review candidate list.
type RankedCandidate struct {
	CandidateType scoring.CandidateType `json:"candidate_type"`
	CandidateID   string                `json:"candidate_id"`
	Score         int                   `json:"score"`
	AmountScore   int                   `json:"amount_score"`
	DateScore     int                   `json:"date_score"`
	VendorScore   int                   `json:"vendor_score"`
	Reason        string                `json:"reason"`
}

// GetCandidates returns up to limit eligible candidates for a receipt,
// ranked by score. Same eligibility rules as auto-match; creates nothing.
func (s *Service) GetCandidates(ctx context.Context, receiptID string, limit int) ([]RankedCandidate, error) {
	receipt, err := s.repo.GetReceipt(receiptID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.CandidateLimit
	}

	window := time.Duration(s.cfg.DateWindowDays) * 24 * time.Hour
	candidates, err := s.fetchCandidates(ctx, receipt.UserID, receipt.Date.Add(-window), receipt.Date.Add(window))
	if err != nil {
		return nil, err
	}

	aliases, err := s.repo.ListAliases(receipt.UserID)
	if err != nil {
		return nil, err
	}
	engine := scoring.NewEngine(vendor.NewSnapshot(aliases))

	scored := scoreAll(engine, receipt, candidates)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	ranked := make([]RankedCandidate, 0, len(scored))
	for _, sc := range scored {
		ranked = append(ranked, RankedCandidate{
			CandidateType: sc.candidate.CandidateType(),
			CandidateID:   sc.candidate.CandidateID(),
			Score:         sc.result.Total,
			AmountScore:   sc.result.AmountScore,
			DateScore:     sc.result.DateScore,
			VendorScore:   sc.result.VendorScore,
			Reason:        sc.result.Reason,
		})
	}
	return ranked, nil
}

// ConfirmMatch confirms a proposed match. On success both sides are marked
// matched and cross-linked, and the vendor alias table learns from the
// candidate's description. A version mismatch yields storage.ErrConflict.
func (s *Service) ConfirmMatch(ctx context.Context, matchID string, version int64, userID string, coding *vendor.Coding) (*storage.Match, error) {
	m, err := s.repo.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("match %s: %w", matchID, storage.ErrNotFound)
	}

	confirmed, err := s.repo.ConfirmMatch(matchID, version, userID)
	if err != nil {
		return nil, err
	}

	s.learnFromMatch(confirmed, coding)

	s.logger.Info("match confirmed",
		"match_id", matchID,
		"receipt_id", confirmed.ReceiptID,
		"target_id", confirmed.TargetID(),
		"score", confirmed.Score,
	)
	return confirmed, nil
}

// RejectMatch rejects a proposed match and releases both sides. The match
// row is kept; a later auto-match run may re-propose the same pairing.
func (s *Service) RejectMatch(ctx context.Context, matchID string, version int64, userID string) (*storage.Match, error) {
	m, err := s.repo.GetMatch(matchID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, fmt.Errorf("match %s: %w", matchID, storage.ErrNotFound)
	}

	rejected, err := s.repo.RejectMatch(matchID, version, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match rejected", "match_id", matchID, "receipt_id", rejected.ReceiptID)
	return rejected, nil
}

// CreateManualMatch pairs a receipt directly with a transaction or group,
// skipping the proposal step. Exactly one of transactionID/groupID must be
// set. Both sides must currently be unmatched.
func (s *Service) CreateManualMatch(ctx context.Context, userID, receiptID string, transactionID, groupID *string, coding *vendor.Coding) (*storage.Match, error) {
	if (transactionID == nil) == (groupID == nil) {
		return nil, fmt.Errorf("%w: exactly one of transaction_id and group_id must be set", storage.ErrValidation)
	}

	receipt, err := s.repo.GetReceipt(receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.UserID != userID {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, storage.ErrNotFound)
	}
	if receipt.Status != storage.StatusUnmatched {
		return nil, fmt.Errorf("%w: receipt %s is %s", storage.ErrInvalidState, receiptID, receipt.Status)
	}

	var candidate scoring.Candidate
	var description string
	if transactionID != nil {
		tx, err := s.repo.GetTransaction(*transactionID)
		if err != nil {
			return nil, err
		}
		if tx.UserID != userID {
			return nil, fmt.Errorf("transaction %s: %w", *transactionID, storage.ErrNotFound)
		}
		if tx.Status != storage.StatusUnmatched {
			return nil, fmt.Errorf("%w: transaction %s is %s", storage.ErrInvalidState, *transactionID, tx.Status)
		}
		if tx.GroupID != nil {
			return nil, fmt.Errorf("%w: transaction %s belongs to a group", storage.ErrValidation, *transactionID)
		}
		candidate = scoring.TransactionCandidate{Tx: tx}
		description = tx.Description
	} else {
		g, err := s.repo.GetGroup(*groupID)
		if err != nil {
			return nil, err
		}
		if g.UserID != userID {
			return nil, fmt.Errorf("group %s: %w", *groupID, storage.ErrNotFound)
		}
		if g.Status != storage.StatusUnmatched {
			return nil, fmt.Errorf("%w: group %s is %s", storage.ErrInvalidState, *groupID, g.Status)
		}
		candidate = scoring.GroupCandidate{Group: g}
		description = scoring.StripGroupSuffix(g.Name)
	}

	// Score the pairing so the record carries an explainable breakdown
	// even for manual matches
	aliases, err := s.repo.ListAliases(userID)
	if err != nil {
		return nil, err
	}
	result := scoring.NewEngine(vendor.NewSnapshot(aliases)).Score(receipt, candidate)

	now := time.Now().UTC()
	match := &storage.Match{
		ID:            uuid.NewString(),
		UserID:        userID,
		ReceiptID:     receiptID,
		TransactionID: transactionID,
		GroupID:       groupID,
		Status:        storage.MatchConfirmed,
		Score:         result.Total,
		AmountScore:   result.AmountScore,
		DateScore:     result.DateScore,
		VendorScore:   result.VendorScore,
		Reason:        "manual match: " + result.Reason,
		Manual:        true,
		CreatedAt:     now,
		ConfirmedAt:   &now,
		ConfirmedBy:   &userID,
	}
	if result.Alias != nil {
		match.AliasID = &result.Alias.ID
	}

	if err := s.repo.CreateMatch(match); err != nil {
		return nil, err
	}

	s.learn(userID, description, coding)

	s.logger.Info("manual match created",
		"match_id", match.ID,
		"receipt_id", receiptID,
		"target_id", match.TargetID(),
	)
	return match, nil
}

// UnmatchResult is the outcome of an Unmatch call. Warning is set when the
// group's combined amount has drifted from the receipt amount since the
// match was confirmed.
type UnmatchResult struct {
	Match   *storage.Match
	Warning string
}

// Unmatch reverses a confirmed match: both sides return to unmatched and
// the match row transitions to the unmatched terminal status, retained for
// audit.
func (s *Service) Unmatch(ctx context.Context, matchID string, version int64) (*UnmatchResult, error) {
	m, err := s.repo.GetMatch(matchID)
	if err != nil {
		return nil, err
	}

	var warning string
	if m.GroupID != nil {
		group, gerr := s.repo.GetGroup(*m.GroupID)
		receipt, rerr := s.repo.GetReceipt(m.ReceiptID)
		if gerr == nil && rerr == nil {
			// Compare magnitudes so refund groups, whose total carries the
			// opposite sign of the receipt, are not flagged as drifted.
			drift := math.Abs(math.Abs(group.CombinedAmount) - math.Abs(receipt.Amount))
			if drift > scoring.AmountTolerance {
				warning = fmt.Sprintf(
					"group total %.2f has drifted %.2f from receipt amount %.2f",
					group.CombinedAmount, drift, receipt.Amount)
			}
		}
	}

	unmatched, err := s.repo.Unmatch(matchID, version)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match unwound", "match_id", matchID, "receipt_id", unmatched.ReceiptID, "warning", warning != "")
	return &UnmatchResult{Match: unmatched, Warning: warning}, nil
}

// GetMatch returns a match by ID, for refresh-and-retry after a conflict
func (s *Service) GetMatch(ctx context.Context, matchID string) (*storage.Match, error) {
	return s.repo.GetMatch(matchID)
}

// Stats returns the aggregate matching view for a user
func (s *Service) Stats(ctx context.Context, userID string) (*storage.MatchStats, error) {
	return s.repo.GetMatchStats(userID)
}

// ListAliases returns a user's learned vendor aliases
func (s *Service) ListAliases(ctx context.Context, userID string) ([]*storage.VendorAlias, error) {
	return s.repo.ListAliases(userID)
}

// HandleGroupDeleted cascades a group deletion: any live match is voided,
// the matched receipt returns to unmatched and the member transactions
// become individually eligible again.
func (s *Service) HandleGroupDeleted(ctx context.Context, groupID string) error {
	if _, err := s.repo.GetGroup(groupID); err != nil {
		return err
	}
	if err := s.repo.ReleaseGroup(groupID); err != nil {
		return err
	}
	s.logger.Info("group deleted, matches released", "group_id", groupID)
	return nil
}

// HandleReceiptDeleted cascades a receipt deletion: any live match is
// voided and the candidate side is released, so no transaction or group is
// left stuck in proposed/matched with no backing receipt.
func (s *Service) HandleReceiptDeleted(ctx context.Context, receiptID string) error {
	if _, err := s.repo.GetReceipt(receiptID); err != nil {
		return err
	}
	if err := s.repo.ReleaseReceipt(receiptID); err != nil {
		return err
	}
	s.logger.Info("receipt deleted, matches released", "receipt_id", receiptID)
	return nil
}

// learnFromMatch feeds the alias table from a confirmed match. Learning
// failures are logged, not propagated: the confirm is already committed.
func (s *Service) learnFromMatch(m *storage.Match, coding *vendor.Coding) {
	var description string
	if m.TransactionID != nil {
		tx, err := s.repo.GetTransaction(*m.TransactionID)
		if err != nil {
			s.logger.Warn("alias learning skipped", "match_id", m.ID, "error", err)
			return
		}
		description = tx.Description
	} else {
		g, err := s.repo.GetGroup(*m.GroupID)
		if err != nil {
			s.logger.Warn("alias learning skipped", "match_id", m.ID, "error", err)
			return
		}
		description = scoring.StripGroupSuffix(g.Name)
	}
	s.learn(m.UserID, description, coding)
}

// learn runs alias learning and downgrades failures to warnings
func (s *Service) learn(userID, description string, coding *vendor.Coding) {
	if _, err := s.learner.Learn(userID, description, coding); err != nil {
		if !errors.Is(err, storage.ErrValidation) {
			s.logger.Warn("alias learning failed", "user_id", userID, "error", err)
		}
	}
}

// fetchCandidates loads unmatched transactions and groups concurrently and
// returns them as one tagged candidate list
func (s *Service) fetchCandidates(ctx context.Context, userID string, from, to time.Time) ([]scoring.Candidate, error) {
	var (
		wg       sync.WaitGroup
		txs      []*storage.Transaction
		groups   []*storage.TransactionGroup
		txErr    error
		groupErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		txs, txErr = s.repo.ListUnmatchedTransactions(userID, from, to)
	}()
	go func() {
		defer wg.Done()
		groups, groupErr = s.repo.ListUnmatchedGroups(userID, from, to)
	}()
	wg.Wait()

	if txErr != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", txErr)
	}
	if groupErr != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", groupErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]scoring.Candidate, 0, len(txs)+len(groups))
	for _, tx := range txs {
		candidates = append(candidates, scoring.TransactionCandidate{Tx: tx})
	}
	for _, g := range groups {
		candidates = append(candidates, scoring.GroupCandidate{Group: g})
	}
	return candidates, nil
}
