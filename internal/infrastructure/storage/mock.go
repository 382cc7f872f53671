package storage

import (
	"fmt"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// All operations are guarded by one mutex so concurrency tests exercise the
// same first-writer-wins semantics as the SQLite implementation.
type MockRepository struct {
	mu           sync.Mutex
	receipts     map[string]*Receipt
	transactions map[string]*Transaction
	groups       map[string]*TransactionGroup
	matches      map[string]*Match
	aliases      map[int64]*VendorAlias
	nextAliasID  int64

	// Hooks for test assertions
	CreateMatchCalled bool
	LastCreatedMatch  *Match
	LearnedPatterns   []string

	// Error injection for testing error paths
	CreateMatchErr      error
	ListReceiptsErr     error
	ListTxErr           error
	ListGroupsErr       error
	UpdateAliasErr      error
	UpdateConfidenceErr error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		receipts:     make(map[string]*Receipt),
		transactions: make(map[string]*Transaction),
		groups:       make(map[string]*TransactionGroup),
		matches:      make(map[string]*Match),
		aliases:      make(map[int64]*VendorAlias),
		nextAliasID:  1,
	}
}

// Close does nothing for mock
func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) SaveReceipt(r *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status == "" {
		r.Status = StatusUnmatched
	}
	cp := *r
	m.receipts[r.ID] = &cp
	return nil
}

func (m *MockRepository) GetReceipt(id string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MockRepository) ListUnmatchedReceipts(userID string, ids []string) ([]*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListReceiptsErr != nil {
		return nil, m.ListReceiptsErr
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*Receipt
	for _, r := range m.receipts {
		if r.UserID != userID || r.Status != StatusUnmatched || !r.Extracted {
			continue
		}
		if len(ids) > 0 && !wanted[r.ID] {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockRepository) SaveTransaction(t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Status == "" {
		t.Status = StatusUnmatched
	}
	cp := *t
	m.transactions[t.ID] = &cp
	return nil
}

func (m *MockRepository) GetTransaction(id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *MockRepository) ListUnmatchedTransactions(userID string, from, to time.Time) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListTxErr != nil {
		return nil, m.ListTxErr
	}
	var out []*Transaction
	for _, t := range m.transactions {
		if t.UserID != userID || t.Status != StatusUnmatched || t.GroupID != nil {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockRepository) SaveGroup(g *TransactionGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.Status == "" {
		g.Status = StatusUnmatched
	}
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *MockRepository) GetGroup(id string) (*TransactionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (m *MockRepository) ListUnmatchedGroups(userID string, from, to time.Time) ([]*TransactionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListGroupsErr != nil {
		return nil, m.ListGroupsErr
	}
	var out []*TransactionGroup
	for _, g := range m.groups {
		if g.UserID != userID || g.Status != StatusUnmatched {
			continue
		}
		if g.DisplayDate.Before(from) || g.DisplayDate.After(to) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockRepository) GetMatch(id string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	cp := *mt
	return &cp, nil
}

func (m *MockRepository) ListMatchesByReceipt(receiptID string) ([]*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Match
	for _, mt := range m.matches {
		if mt.ReceiptID == receiptID {
			cp := *mt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) CreateMatch(mt *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateMatchCalled = true
	if m.CreateMatchErr != nil {
		return m.CreateMatchErr
	}
	if (mt.TransactionID == nil) == (mt.GroupID == nil) {
		return fmt.Errorf("%w: match must reference exactly one candidate", ErrValidation)
	}
	if mt.Status == MatchConfirmed {
		if err := m.checkConfirmedUnique(mt); err != nil {
			return err
		}
	}
	if mt.Version == 0 {
		mt.Version = 1
	}
	if mt.CreatedAt.IsZero() {
		mt.CreatedAt = time.Now().UTC()
	}
	cp := *mt
	m.matches[mt.ID] = &cp
	m.LastCreatedMatch = &cp

	r := m.receipts[mt.ReceiptID]
	switch mt.Status {
	case MatchProposed:
		if r != nil {
			r.Status = StatusProposed
		}
		m.setCandidate(mt, StatusProposed, nil)
	case MatchConfirmed:
		if r != nil {
			r.Status = StatusMatched
			r.MatchedTransactionID = mt.TransactionID
			r.MatchedGroupID = mt.GroupID
		}
		rid := mt.ReceiptID
		m.setCandidate(mt, StatusMatched, &rid)
	}
	return nil
}

// checkConfirmedUnique mirrors the SQLite partial unique indexes
func (m *MockRepository) checkConfirmedUnique(mt *Match) error {
	for _, other := range m.matches {
		if other.ID == mt.ID || other.Status != MatchConfirmed {
			continue
		}
		if other.ReceiptID == mt.ReceiptID {
			return fmt.Errorf("%w: receipt %s already confirmed", ErrIntegrity, mt.ReceiptID)
		}
		if mt.TransactionID != nil && other.TransactionID != nil && *other.TransactionID == *mt.TransactionID {
			return fmt.Errorf("%w: transaction %s already confirmed", ErrIntegrity, *mt.TransactionID)
		}
		if mt.GroupID != nil && other.GroupID != nil && *other.GroupID == *mt.GroupID {
			return fmt.Errorf("%w: group %s already confirmed", ErrIntegrity, *mt.GroupID)
		}
	}
	return nil
}

func (m *MockRepository) setCandidate(mt *Match, status EntityStatus, receiptID *string) {
	if mt.TransactionID != nil {
		if t := m.transactions[*mt.TransactionID]; t != nil {
			t.Status = status
			t.MatchedReceiptID = receiptID
		}
	} else if mt.GroupID != nil {
		if g := m.groups[*mt.GroupID]; g != nil {
			g.Status = status
			g.MatchedReceiptID = receiptID
		}
	}
}

// releaseSides returns both sides of a voided match to unmatched, but only
// when they are still in the state the match put them in. A side claimed by
// another match in the meantime is left alone.
func (m *MockRepository) releaseSides(mt *Match, sideStatus EntityStatus) {
	if r := m.receipts[mt.ReceiptID]; r != nil && r.Status == sideStatus {
		r.Status = StatusUnmatched
		r.MatchedTransactionID = nil
		r.MatchedGroupID = nil
	}
	if mt.TransactionID != nil {
		if t := m.transactions[*mt.TransactionID]; t != nil && t.Status == sideStatus {
			t.Status = StatusUnmatched
			t.MatchedReceiptID = nil
		}
	} else if mt.GroupID != nil {
		if g := m.groups[*mt.GroupID]; g != nil && g.Status == sideStatus {
			g.Status = StatusUnmatched
			g.MatchedReceiptID = nil
		}
	}
}

func (m *MockRepository) ConfirmMatch(id string, version int64, userID string) (*Match, error) {
	return m.transition(id, version, MatchProposed, MatchConfirmed, userID)
}

func (m *MockRepository) RejectMatch(id string, version int64, userID string) (*Match, error) {
	return m.transition(id, version, MatchProposed, MatchRejected, userID)
}

func (m *MockRepository) Unmatch(id string, version int64) (*Match, error) {
	return m.transition(id, version, MatchConfirmed, MatchUnmatched, "")
}

func (m *MockRepository) transition(id string, version int64, from, to MatchStatus, userID string) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if mt.Status != from {
		return nil, fmt.Errorf("%w: match is %s, expected %s", ErrInvalidState, mt.Status, from)
	}
	if mt.Version != version {
		return nil, fmt.Errorf("match %s version %d: %w", id, version, ErrConflict)
	}
	if to == MatchConfirmed {
		probe := *mt
		probe.Status = MatchConfirmed
		if err := m.checkConfirmedUnique(&probe); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	mt.Status = to
	mt.Version++
	switch to {
	case MatchConfirmed:
		mt.ConfirmedAt = &now
		mt.ConfirmedBy = &userID
	case MatchRejected:
		mt.ConfirmedAt = &now
		mt.ConfirmedBy = &userID
	case MatchUnmatched:
		mt.UnmatchedAt = &now
	}

	r := m.receipts[mt.ReceiptID]
	switch to {
	case MatchConfirmed:
		if r != nil {
			r.Status = StatusMatched
			r.MatchedTransactionID = mt.TransactionID
			r.MatchedGroupID = mt.GroupID
		}
		rid := mt.ReceiptID
		m.setCandidate(mt, StatusMatched, &rid)
	case MatchRejected, MatchUnmatched:
		m.releaseSides(mt, sideStatusFor(from))
	}

	cp := *mt
	return &cp, nil
}

func (m *MockRepository) ReleaseReceipt(receiptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, mt := range m.matches {
		if mt.ReceiptID != receiptID {
			continue
		}
		if mt.Status == MatchProposed || mt.Status == MatchConfirmed {
			held := sideStatusFor(mt.Status)
			mt.Status = MatchUnmatched
			mt.UnmatchedAt = &now
			mt.Version++
			m.releaseSides(mt, held)
		}
	}
	delete(m.receipts, receiptID)
	return nil
}

func (m *MockRepository) ReleaseGroup(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, mt := range m.matches {
		if mt.GroupID == nil || *mt.GroupID != groupID {
			continue
		}
		if mt.Status == MatchProposed || mt.Status == MatchConfirmed {
			held := sideStatusFor(mt.Status)
			mt.Status = MatchUnmatched
			mt.UnmatchedAt = &now
			mt.Version++
			m.releaseSides(mt, held)
		}
	}
	for _, t := range m.transactions {
		if t.GroupID != nil && *t.GroupID == groupID {
			t.GroupID = nil
		}
	}
	delete(m.groups, groupID)
	return nil
}

func (m *MockRepository) ListAliases(userID string) ([]*VendorAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*VendorAlias
	for _, a := range m.aliases {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) GetAliasByPattern(userID, pattern string) (*VendorAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.aliases {
		if a.UserID == userID && a.Pattern == pattern {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("alias %q: %w", pattern, ErrNotFound)
}

func (m *MockRepository) CreateAlias(a *VendorAlias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.aliases {
		if existing.UserID == a.UserID && existing.Pattern == a.Pattern {
			return fmt.Errorf("%w: alias %q exists", ErrIntegrity, a.Pattern)
		}
	}
	a.ID = m.nextAliasID
	m.nextAliasID++
	m.LearnedPatterns = append(m.LearnedPatterns, a.Pattern)
	cp := *a
	m.aliases[a.ID] = &cp
	return nil
}

func (m *MockRepository) UpdateAlias(a *VendorAlias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateAliasErr != nil {
		return m.UpdateAliasErr
	}
	if _, ok := m.aliases[a.ID]; !ok {
		return fmt.Errorf("alias %d: %w", a.ID, ErrNotFound)
	}
	cp := *a
	m.aliases[a.ID] = &cp
	return nil
}

func (m *MockRepository) ListStaleAliases(lastMatchedBefore time.Time, confidenceAbove float64) ([]*VendorAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*VendorAlias
	for _, a := range m.aliases {
		if a.LastMatchedAt.Before(lastMatchedBefore) && a.Confidence > confidenceAbove {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) UpdateAliasConfidence(id int64, confidence float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateConfidenceErr != nil {
		return m.UpdateConfidenceErr
	}
	a, ok := m.aliases[id]
	if !ok {
		return fmt.Errorf("alias %d: %w", id, ErrNotFound)
	}
	a.Confidence = confidence
	return nil
}

func (m *MockRepository) GetMatchStats(userID string) (*MatchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &MatchStats{}
	for _, r := range m.receipts {
		if r.UserID != userID {
			continue
		}
		switch r.Status {
		case StatusMatched:
			stats.MatchedCount++
		case StatusProposed:
			stats.ProposedCount++
		case StatusUnmatched:
			stats.UnmatchedReceiptCount++
		}
	}
	for _, t := range m.transactions {
		if t.UserID == userID && t.Status == StatusUnmatched && t.GroupID == nil {
			stats.UnmatchedCandidateCount++
		}
	}
	for _, g := range m.groups {
		if g.UserID == userID && g.Status == StatusUnmatched {
			stats.UnmatchedCandidateCount++
		}
	}
	var confirmed, auto, scoreSum int
	for _, mt := range m.matches {
		if mt.UserID == userID && mt.Status == MatchConfirmed {
			confirmed++
			scoreSum += mt.Score
			if !mt.Manual {
				auto++
			}
		}
	}
	if confirmed > 0 {
		stats.AutoMatchRate = float64(auto) / float64(confirmed)
		stats.AverageConfidence = float64(scoreSum) / float64(confirmed)
	}
	return stats, nil
}
