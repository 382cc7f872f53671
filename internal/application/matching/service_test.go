package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachewarming/receipt-match-backend/internal/domain/vendor"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/config"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

const testUser = "user1"

func testConfig() config.MatchingConfig {
	return config.MatchingConfig{
		ScoreThreshold:  70,
		AmbiguityWindow: 5,
		DateWindowDays:  7,
		CandidateLimit:  10,
	}
}

func newTestService(t *testing.T) (*Service, *storage.MockRepository) {
	t.Helper()
	repo := storage.NewMockRepository()
	return NewService(repo, testConfig(), nil), repo
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedReceipt(t *testing.T, repo *storage.MockRepository, id string, amount float64, d time.Time, vendorText string) {
	t.Helper()
	require.NoError(t, repo.SaveReceipt(&storage.Receipt{
		ID:        id,
		UserID:    testUser,
		Amount:    amount,
		Date:      d,
		Vendor:    vendorText,
		Extracted: true,
	}))
}

func seedTransaction(t *testing.T, repo *storage.MockRepository, id string, amount float64, d time.Time, description string) {
	t.Helper()
	require.NoError(t, repo.SaveTransaction(&storage.Transaction{
		ID:          id,
		UserID:      testUser,
		Amount:      amount,
		Date:        d,
		Description: description,
	}))
}

func seedGroup(t *testing.T, repo *storage.MockRepository, id string, amount float64, d time.Time, name string) {
	t.Helper()
	require.NoError(t, repo.SaveGroup(&storage.TransactionGroup{
		ID:             id,
		UserID:         testUser,
		Name:           name,
		CombinedAmount: amount,
		DisplayDate:    d,
	}))
}

func seedAlias(t *testing.T, repo *storage.MockRepository, pattern, canonical string) {
	t.Helper()
	require.NoError(t, repo.CreateAlias(&storage.VendorAlias{
		UserID:        testUser,
		Pattern:       pattern,
		CanonicalName: canonical,
		MatchCount:    2,
		LastMatchedAt: time.Now(),
		Confidence:    1.0,
	}))
}

func TestRunAutoMatch_ProposesStrongMatch(t *testing.T) {
	svc, repo := newTestService(t)
	seedAlias(t, repo, "DELTA AIR", "Delta Airlines")
	seedReceipt(t, repo, "r1", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedTransaction(t, repo, "tx1", 425.00, date(2025, 1, 10), "DELTA AIR 0061234567890")
	seedTransaction(t, repo, "tx2", 9.99, date(2025, 1, 2), "COFFEE SHOP")

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Proposed)
	assert.Equal(t, 0, summary.Ambiguous)
	assert.Equal(t, 0, summary.Skipped)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, storage.MatchProposed, m.Status)
	assert.Equal(t, 100, m.Score)
	require.NotNil(t, m.TransactionID)
	assert.Equal(t, "tx1", *m.TransactionID)
	assert.Nil(t, m.GroupID)
	assert.False(t, m.Manual)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProposed, receipt.Status)
	tx, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusProposed, tx.Status)
}

func TestRunAutoMatch_ThresholdEnforced(t *testing.T) {
	svc, repo := newTestService(t)
	// Amount near (20) + same day (35) = 55, below threshold
	seedReceipt(t, repo, "r1", 100.00, date(2025, 1, 10), "SOMETHING")
	seedTransaction(t, repo, "tx1", 100.50, date(2025, 1, 10), "UNRELATED VENDOR")

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Proposed)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunAutoMatch_AmbiguitySuppressesBoth(t *testing.T) {
	svc, repo := newTestService(t)
	// Two identical transactions: both score 75 (amount 40 + date 35)
	seedReceipt(t, repo, "r1", 100.00, date(2025, 1, 10), "")
	seedTransaction(t, repo, "tx1", 100.00, date(2025, 1, 10), "VENDOR A")
	seedTransaction(t, repo, "tx2", 100.00, date(2025, 1, 10), "VENDOR B")

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Proposed)
	assert.Equal(t, 1, summary.Ambiguous)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunAutoMatch_GroupPreferredOverMembers(t *testing.T) {
	svc, repo := newTestService(t)
	seedAlias(t, repo, "TWILIO", "Twilio")
	seedReceipt(t, repo, "r1", 50.00, date(2025, 2, 1), "TWILIO")
	seedGroup(t, repo, "g1", 50.00, date(2025, 2, 1), "TWILIO (3 charges)")

	// Member transactions carry the group ID, so they are not candidates
	gid := "g1"
	for _, tx := range []struct {
		id     string
		amount float64
	}{{"tx1", 20.00}, {"tx2", 20.00}, {"tx3", 10.00}} {
		require.NoError(t, repo.SaveTransaction(&storage.Transaction{
			ID:          tx.id,
			UserID:      testUser,
			Amount:      tx.amount,
			Date:        date(2025, 2, 1),
			Description: "TWILIO 8005551234",
			GroupID:     &gid,
		}))
	}

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Proposed)
	assert.Equal(t, 1, summary.GroupMatches)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].GroupID)
	assert.Equal(t, "g1", *matches[0].GroupID)
	assert.Nil(t, matches[0].TransactionID)
	assert.GreaterOrEqual(t, matches[0].Score, 95)
}

func TestRunAutoMatch_CandidateNotReusedWithinRun(t *testing.T) {
	svc, repo := newTestService(t)
	seedAlias(t, repo, "DELTA AIR", "Delta Airlines")
	seedReceipt(t, repo, "r1", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedReceipt(t, repo, "r2", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedTransaction(t, repo, "tx1", 425.00, date(2025, 1, 10), "DELTA AIR 006123")

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	// Only one receipt can claim the single candidate
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Proposed)
}

func TestRunAutoMatch_SkipsFailingReceipt(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedTransaction(t, repo, "tx1", 425.00, date(2025, 1, 10), "DELTA AIR 006123")
	repo.CreateMatchErr = storage.ErrIntegrity

	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Proposed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunAutoMatch_ReceiptFilter(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 100.00, date(2025, 1, 10), "")
	seedReceipt(t, repo, "r2", 200.00, date(2025, 1, 10), "")
	seedTransaction(t, repo, "tx1", 100.00, date(2025, 1, 10), "")
	seedTransaction(t, repo, "tx2", 200.00, date(2025, 1, 10), "")

	summary, err := svc.RunAutoMatch(context.Background(), testUser, []string{"r1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
}

func TestGetCandidates_RankedAndLimited(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 100.00, date(2025, 1, 10), "HAMPTON INN")
	seedTransaction(t, repo, "tx-exact", 100.00, date(2025, 1, 10), "HAMPTON INN RALEIGH")
	seedTransaction(t, repo, "tx-near", 100.50, date(2025, 1, 11), "HAMPTON INN RALEIGH")
	seedTransaction(t, repo, "tx-far", 500.00, date(2025, 1, 16), "SOMETHING ELSE")

	candidates, err := svc.GetCandidates(context.Background(), "r1", 2)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "tx-exact", candidates[0].CandidateID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)

	// No records are created by candidate listing
	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestGetCandidates_ExcludesGroupedTransactions(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 100.00, date(2025, 1, 10), "")
	gid := "g1"
	require.NoError(t, repo.SaveTransaction(&storage.Transaction{
		ID:      "tx-grouped",
		UserID:  testUser,
		Amount:  100.00,
		Date:    date(2025, 1, 10),
		GroupID: &gid,
	}))

	candidates, err := svc.GetCandidates(context.Background(), "r1", 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestGetCandidates_UnknownReceipt(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetCandidates(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func proposeOne(t *testing.T, svc *Service, repo *storage.MockRepository) *storage.Match {
	t.Helper()
	seedAlias(t, repo, "DELTA AIR", "Delta Airlines")
	seedReceipt(t, repo, "r1", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedTransaction(t, repo, "tx1", 425.00, date(2025, 1, 10), "DELTA AIR 0061234567890")

	_, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestConfirmMatch_HappyPath(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	confirmed, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser,
		&vendor.Coding{GLCode: "7000", Department: "Travel"})
	require.NoError(t, err)

	assert.Equal(t, storage.MatchConfirmed, confirmed.Status)
	assert.Equal(t, proposed.Version+1, confirmed.Version)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, testUser, *confirmed.ConfirmedBy)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMatched, receipt.Status)
	require.NotNil(t, receipt.MatchedTransactionID)
	assert.Equal(t, "tx1", *receipt.MatchedTransactionID)

	tx, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMatched, tx.Status)
	require.NotNil(t, tx.MatchedReceiptID)
	assert.Equal(t, "r1", *tx.MatchedReceiptID)

	// Coding overrides were learned into the alias
	alias, err := repo.GetAliasByPattern(testUser, "DELTA AIR")
	require.NoError(t, err)
	assert.Equal(t, "7000", alias.GLCode)
	assert.Equal(t, "Travel", alias.Department)
	assert.Equal(t, 3, alias.MatchCount)
}

func TestConfirmMatch_StaleVersionConflicts(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	_, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	require.NoError(t, err)

	// Second confirm with the stale version fails; it is no longer proposed
	_, err = svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidState)
}

func TestConfirmMatch_ConcurrentConfirms(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent confirm must win")

	final, err := repo.GetMatch(proposed.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.MatchConfirmed, final.Status)
}

func TestConfirmMatch_WrongUser(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	_, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, "intruder", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRejectMatch_ReleasesBothSides(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	rejected, err := svc.RejectMatch(context.Background(), proposed.ID, proposed.Version, testUser)
	require.NoError(t, err)
	assert.Equal(t, storage.MatchRejected, rejected.Status)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, receipt.Status)
	tx, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, tx.Status)
}

func TestRejectMatch_KeepsSidesClaimedElsewhere(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 425.00, date(2025, 1, 10), "DELTA AIR")
	seedTransaction(t, repo, "tx1", 425.00, date(2025, 1, 10), "DELTA AIR 0061234567890")
	seedTransaction(t, repo, "tx2", 425.00, date(2025, 1, 10), "DELTA AIRLINES")
	tx1, tx2 := "tx1", "tx2"
	m1 := &storage.Match{ID: "m1", UserID: testUser, ReceiptID: "r1", TransactionID: &tx1, Score: 95, Status: storage.MatchProposed}
	m2 := &storage.Match{ID: "m2", UserID: testUser, ReceiptID: "r1", TransactionID: &tx2, Score: 90, Status: storage.MatchProposed}
	require.NoError(t, repo.CreateMatch(m1))
	require.NoError(t, repo.CreateMatch(m2))

	// Confirm one proposal, then reject the now-stale other. The rejection
	// must not unwind the state the confirmation established.
	_, err := svc.ConfirmMatch(context.Background(), "m1", m1.Version, testUser, nil)
	require.NoError(t, err)
	_, err = svc.RejectMatch(context.Background(), "m2", m2.Version, testUser)
	require.NoError(t, err)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMatched, receipt.Status)
	require.NotNil(t, receipt.MatchedTransactionID)
	assert.Equal(t, "tx1", *receipt.MatchedTransactionID)

	kept, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMatched, kept.Status)
	freed, err := repo.GetTransaction("tx2")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, freed.Status)
}

func TestRejectThenRerun_ReProposesSameCandidate(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	_, err := svc.RejectMatch(context.Background(), proposed.ID, proposed.Version, testUser)
	require.NoError(t, err)

	// Rejection is not permanent suppression
	summary, err := svc.RunAutoMatch(context.Background(), testUser, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Proposed)

	matches, err := repo.ListMatchesByReceipt("r1")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCreateManualMatch_Transaction(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 80.00, date(2025, 3, 1), "GODADDY")
	seedTransaction(t, repo, "tx1", 80.00, date(2025, 3, 2), "GODADDY.COM*REN123456")

	txID := "tx1"
	match, err := svc.CreateManualMatch(context.Background(), testUser, "r1", &txID, nil,
		&vendor.Coding{GLCode: "6200"})
	require.NoError(t, err)

	assert.Equal(t, storage.MatchConfirmed, match.Status)
	assert.True(t, match.Manual)
	require.NotNil(t, match.ConfirmedBy)
	assert.Equal(t, testUser, *match.ConfirmedBy)

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusMatched, receipt.Status)

	// Manual matches still feed alias learning
	alias, err := repo.GetAliasByPattern(testUser, "GODADDY COM")
	require.NoError(t, err)
	assert.Equal(t, "6200", alias.GLCode)
}

func TestCreateManualMatch_ValidatesXOR(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 80.00, date(2025, 3, 1), "")
	txID, gID := "tx1", "g1"

	_, err := svc.CreateManualMatch(context.Background(), testUser, "r1", nil, nil, nil)
	assert.ErrorIs(t, err, storage.ErrValidation)

	_, err = svc.CreateManualMatch(context.Background(), testUser, "r1", &txID, &gID, nil)
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestCreateManualMatch_AlreadyMatched(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)
	_, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	require.NoError(t, err)

	seedReceipt(t, repo, "r2", 425.00, date(2025, 1, 10), "DELTA AIR")
	txID := "tx1"
	_, err = svc.CreateManualMatch(context.Background(), testUser, "r2", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidState)
}

func TestCreateManualMatch_RejectsProposedSides(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)
	require.Equal(t, storage.MatchProposed, proposed.Status)

	// Both the receipt and the transaction sit in a live proposal. Manual
	// matching over either side would strand the proposal, so it must be
	// resolved first.
	seedTransaction(t, repo, "tx9", 425.00, date(2025, 1, 10), "DELTA AIRLINES")
	txID := "tx9"
	_, err := svc.CreateManualMatch(context.Background(), testUser, "r1", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	seedReceipt(t, repo, "r9", 425.00, date(2025, 1, 10), "DELTA AIR")
	txID = "tx1"
	_, err = svc.CreateManualMatch(context.Background(), testUser, "r9", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidState)
}

func TestCreateManualMatch_MissingSides(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 80.00, date(2025, 3, 1), "")
	txID := "missing"

	_, err := svc.CreateManualMatch(context.Background(), testUser, "r1", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.CreateManualMatch(context.Background(), testUser, "missing-receipt", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateManualMatch_RejectsGroupedTransaction(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 80.00, date(2025, 3, 1), "")
	gid := "g1"
	require.NoError(t, repo.SaveTransaction(&storage.Transaction{
		ID:      "tx1",
		UserID:  testUser,
		Amount:  80.00,
		Date:    date(2025, 3, 1),
		GroupID: &gid,
	}))

	txID := "tx1"
	_, err := svc.CreateManualMatch(context.Background(), testUser, "r1", &txID, nil, nil)
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestUnmatch_ReleasesAndRetains(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)
	confirmed, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	require.NoError(t, err)

	result, err := svc.Unmatch(context.Background(), confirmed.ID, confirmed.Version)
	require.NoError(t, err)
	assert.Equal(t, storage.MatchUnmatched, result.Match.Status)
	assert.NotNil(t, result.Match.UnmatchedAt)
	assert.Empty(t, result.Warning)

	// Both sides are free again; the match row is retained for audit
	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, receipt.Status)
	kept, err := repo.GetMatch(confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.MatchUnmatched, kept.Status)
}

func TestUnmatch_RequiresConfirmed(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)

	_, err := svc.Unmatch(context.Background(), proposed.ID, proposed.Version)
	assert.ErrorIs(t, err, storage.ErrInvalidState)
}

func TestUnmatch_WarnsOnGroupDrift(t *testing.T) {
	svc, repo := newTestService(t)
	seedAlias(t, repo, "TWILIO", "Twilio")
	seedReceipt(t, repo, "r1", 50.00, date(2025, 2, 1), "TWILIO")
	seedGroup(t, repo, "g1", 50.00, date(2025, 2, 1), "TWILIO (3 charges)")

	gID := "g1"
	match, err := svc.CreateManualMatch(context.Background(), testUser, "r1", nil, &gID, nil)
	require.NoError(t, err)

	// Group total drifts after the match was confirmed
	g, err := repo.GetGroup("g1")
	require.NoError(t, err)
	g.CombinedAmount = 65.00
	require.NoError(t, repo.SaveGroup(g))

	result, err := svc.Unmatch(context.Background(), match.ID, match.Version)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	assert.Contains(t, result.Warning, "drifted")
}

func TestUnmatch_NoDriftWarningForRefundGroup(t *testing.T) {
	svc, repo := newTestService(t)
	seedAlias(t, repo, "TWILIO", "Twilio")
	seedReceipt(t, repo, "r1", 50.00, date(2025, 2, 1), "TWILIO")
	// Refund groups carry the opposite sign of the receipt total
	seedGroup(t, repo, "g1", -50.00, date(2025, 2, 1), "TWILIO (3 charges)")

	gID := "g1"
	match, err := svc.CreateManualMatch(context.Background(), testUser, "r1", nil, &gID, nil)
	require.NoError(t, err)

	result, err := svc.Unmatch(context.Background(), match.ID, match.Version)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
}

func TestHandleGroupDeleted_CascadesToReceipt(t *testing.T) {
	svc, repo := newTestService(t)
	seedReceipt(t, repo, "r1", 50.00, date(2025, 2, 1), "TWILIO")
	seedGroup(t, repo, "g1", 50.00, date(2025, 2, 1), "TWILIO (3 charges)")
	gid := "g1"
	require.NoError(t, repo.SaveTransaction(&storage.Transaction{
		ID: "tx1", UserID: testUser, Amount: 50.00, Date: date(2025, 2, 1), GroupID: &gid,
	}))

	gID := "g1"
	_, err := svc.CreateManualMatch(context.Background(), testUser, "r1", nil, &gID, nil)
	require.NoError(t, err)

	require.NoError(t, svc.HandleGroupDeleted(context.Background(), "g1"))

	receipt, err := repo.GetReceipt("r1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, receipt.Status)
	assert.Nil(t, receipt.MatchedGroupID)

	// Member transaction is individually eligible again
	tx, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Nil(t, tx.GroupID)
}

func TestHandleReceiptDeleted_FreesCandidate(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)
	_, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	require.NoError(t, err)

	require.NoError(t, svc.HandleReceiptDeleted(context.Background(), "r1"))

	tx, err := repo.GetTransaction("tx1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusUnmatched, tx.Status)
	assert.Nil(t, tx.MatchedReceiptID)
}

func TestStats(t *testing.T) {
	svc, repo := newTestService(t)
	proposed := proposeOne(t, svc, repo)
	_, err := svc.ConfirmMatch(context.Background(), proposed.ID, proposed.Version, testUser, nil)
	require.NoError(t, err)

	seedReceipt(t, repo, "r2", 10.00, date(2025, 1, 5), "")
	seedTransaction(t, repo, "tx2", 99.00, date(2025, 1, 5), "")

	stats, err := svc.Stats(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MatchedCount)
	assert.Equal(t, 1, stats.UnmatchedReceiptCount)
	assert.Equal(t, 1, stats.UnmatchedCandidateCount)
	assert.Equal(t, 1.0, stats.AutoMatchRate)
	assert.Equal(t, 100.0, stats.AverageConfidence)
}
