package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for the matching engine.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// translateErr maps SQLite constraint violations onto the integrity
// sentinel so callers can detect them without knowing the driver.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return err
}

// --- Receipts ---

// SaveReceipt inserts or replaces a receipt
func (s *Storage) SaveReceipt(r *Receipt) error {
	if r.Status == "" {
		r.Status = StatusUnmatched
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO receipts
	(id, user_id, amount, date, vendor, extracted, status,
	 matched_transaction_id, matched_group_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Amount, r.Date, r.Vendor, r.Extracted, r.Status,
		r.MatchedTransactionID, r.MatchedGroupID, r.CreatedAt)
	return translateErr(err)
}

// GetReceipt retrieves a receipt by ID
func (s *Storage) GetReceipt(id string) (*Receipt, error) {
	r := &Receipt{}
	err := s.db.QueryRow(`
	SELECT id, user_id, amount, date, vendor, extracted, status,
	       matched_transaction_id, matched_group_id, created_at
	FROM receipts WHERE id = ?`, id).Scan(
		&r.ID, &r.UserID, &r.Amount, &r.Date, &r.Vendor, &r.Extracted,
		&r.Status, &r.MatchedTransactionID, &r.MatchedGroupID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListUnmatchedReceipts returns unmatched extracted receipts for a user,
// optionally restricted to the given IDs
func (s *Storage) ListUnmatchedReceipts(userID string, ids []string) ([]*Receipt, error) {
	query := `
	SELECT id, user_id, amount, date, vendor, extracted, status,
	       matched_transaction_id, matched_group_id, created_at
	FROM receipts
	WHERE user_id = ? AND status = ? AND extracted = 1`
	args := []interface{}{userID, StatusUnmatched}

	if len(ids) > 0 {
		query += " AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY date"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*Receipt
	for rows.Next() {
		r := &Receipt{}
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Amount, &r.Date, &r.Vendor, &r.Extracted,
			&r.Status, &r.MatchedTransactionID, &r.MatchedGroupID, &r.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// --- Transactions ---

// SaveTransaction inserts or replaces a transaction
func (s *Storage) SaveTransaction(t *Transaction) error {
	if t.Status == "" {
		t.Status = StatusUnmatched
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO transactions
	(id, user_id, amount, date, description, group_id, status,
	 matched_receipt_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount, t.Date, t.Description, t.GroupID,
		t.Status, t.MatchedReceiptID, t.CreatedAt)
	return translateErr(err)
}

// GetTransaction retrieves a transaction by ID
func (s *Storage) GetTransaction(id string) (*Transaction, error) {
	t := &Transaction{}
	err := s.db.QueryRow(`
	SELECT id, user_id, amount, date, description, group_id, status,
	       matched_receipt_id, created_at
	FROM transactions WHERE id = ?`, id).Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Date, &t.Description, &t.GroupID,
		&t.Status, &t.MatchedReceiptID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListUnmatchedTransactions returns unmatched, ungrouped transactions in
// the date window. Grouped transactions are never individual candidates.
func (s *Storage) ListUnmatchedTransactions(userID string, from, to time.Time) ([]*Transaction, error) {
	rows, err := s.db.Query(`
	SELECT id, user_id, amount, date, description, group_id, status,
	       matched_receipt_id, created_at
	FROM transactions
	WHERE user_id = ? AND status = ? AND group_id IS NULL
	  AND date >= ? AND date <= ?
	ORDER BY date`, userID, StatusUnmatched, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Amount, &t.Date, &t.Description, &t.GroupID,
			&t.Status, &t.MatchedReceiptID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// --- Transaction groups ---

// SaveGroup inserts or replaces a transaction group
func (s *Storage) SaveGroup(g *TransactionGroup) error {
	if g.Status == "" {
		g.Status = StatusUnmatched
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO transaction_groups
	(id, user_id, name, combined_amount, display_date, status,
	 matched_receipt_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.CombinedAmount, g.DisplayDate, g.Status,
		g.MatchedReceiptID, g.CreatedAt)
	return translateErr(err)
}

// GetGroup retrieves a transaction group by ID
func (s *Storage) GetGroup(id string) (*TransactionGroup, error) {
	g := &TransactionGroup{}
	err := s.db.QueryRow(`
	SELECT id, user_id, name, combined_amount, display_date, status,
	       matched_receipt_id, created_at
	FROM transaction_groups WHERE id = ?`, id).Scan(
		&g.ID, &g.UserID, &g.Name, &g.CombinedAmount, &g.DisplayDate,
		&g.Status, &g.MatchedReceiptID, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListUnmatchedGroups returns unmatched groups in the date window
func (s *Storage) ListUnmatchedGroups(userID string, from, to time.Time) ([]*TransactionGroup, error) {
	rows, err := s.db.Query(`
	SELECT id, user_id, name, combined_amount, display_date, status,
	       matched_receipt_id, created_at
	FROM transaction_groups
	WHERE user_id = ? AND status = ?
	  AND display_date >= ? AND display_date <= ?
	ORDER BY display_date`, userID, StatusUnmatched, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*TransactionGroup
	for rows.Next() {
		g := &TransactionGroup{}
		if err := rows.Scan(
			&g.ID, &g.UserID, &g.Name, &g.CombinedAmount, &g.DisplayDate,
			&g.Status, &g.MatchedReceiptID, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// --- Matches ---

const matchColumns = `id, user_id, receipt_id, transaction_id, group_id, status,
	score, amount_score, date_score, vendor_score, reason, alias_id, manual,
	created_at, confirmed_at, confirmed_by, unmatched_at, version`

func scanMatch(row interface{ Scan(...interface{}) error }) (*Match, error) {
	m := &Match{}
	err := row.Scan(
		&m.ID, &m.UserID, &m.ReceiptID, &m.TransactionID, &m.GroupID,
		&m.Status, &m.Score, &m.AmountScore, &m.DateScore, &m.VendorScore,
		&m.Reason, &m.AliasID, &m.Manual, &m.CreatedAt, &m.ConfirmedAt,
		&m.ConfirmedBy, &m.UnmatchedAt, &m.Version)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMatch retrieves a match by ID
func (s *Storage) GetMatch(id string) (*Match, error) {
	m, err := scanMatch(s.db.QueryRow(
		"SELECT "+matchColumns+" FROM matches WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMatchesByReceipt returns all matches for a receipt, newest first
func (s *Storage) ListMatchesByReceipt(receiptID string) ([]*Match, error) {
	rows, err := s.db.Query(
		"SELECT "+matchColumns+" FROM matches WHERE receipt_id = ? ORDER BY created_at DESC", receiptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CreateMatch inserts a match and flips both sides' statuses atomically.
// A proposed match marks both sides proposed; a confirmed match (manual)
// marks both sides matched and cross-links them.
func (s *Storage) CreateMatch(m *Match) error {
	if m.TransactionID == nil && m.GroupID == nil {
		return fmt.Errorf("%w: match must reference a transaction or a group", ErrValidation)
	}
	if m.TransactionID != nil && m.GroupID != nil {
		return fmt.Errorf("%w: match cannot reference both a transaction and a group", ErrValidation)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Version == 0 {
		m.Version = 1
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
	INSERT INTO matches
	(id, user_id, receipt_id, transaction_id, group_id, status,
	 score, amount_score, date_score, vendor_score, reason, alias_id, manual,
	 created_at, confirmed_at, confirmed_by, unmatched_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.ReceiptID, m.TransactionID, m.GroupID, m.Status,
		m.Score, m.AmountScore, m.DateScore, m.VendorScore, m.Reason,
		m.AliasID, m.Manual, m.CreatedAt, m.ConfirmedAt, m.ConfirmedBy,
		m.UnmatchedAt, m.Version)
	if err != nil {
		return translateErr(err)
	}

	switch m.Status {
	case MatchProposed:
		if _, err := tx.Exec(
			"UPDATE receipts SET status = ? WHERE id = ?",
			StatusProposed, m.ReceiptID); err != nil {
			return err
		}
		if err := setCandidateStatus(tx, m, StatusProposed, nil); err != nil {
			return err
		}
	case MatchConfirmed:
		if _, err := tx.Exec(
			"UPDATE receipts SET status = ?, matched_transaction_id = ?, matched_group_id = ? WHERE id = ?",
			StatusMatched, m.TransactionID, m.GroupID, m.ReceiptID); err != nil {
			return err
		}
		if err := setCandidateStatus(tx, m, StatusMatched, &m.ReceiptID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: cannot create match in status %s", ErrValidation, m.Status)
	}

	return tx.Commit()
}

// setCandidateStatus updates the candidate side of a match
func setCandidateStatus(tx *sql.Tx, m *Match, status EntityStatus, receiptID *string) error {
	var err error
	if m.TransactionID != nil {
		_, err = tx.Exec(
			"UPDATE transactions SET status = ?, matched_receipt_id = ? WHERE id = ?",
			status, receiptID, *m.TransactionID)
	} else {
		_, err = tx.Exec(
			"UPDATE transaction_groups SET status = ?, matched_receipt_id = ? WHERE id = ?",
			status, receiptID, *m.GroupID)
	}
	return err
}

// releaseSides returns both sides of a voided match to unmatched, but only
// when they are still in the state the match put them in. A side that was
// meanwhile claimed by another match (a receipt confirmed through a second
// proposal, a candidate confirmed elsewhere) must not be downgraded.
func releaseSides(tx *sql.Tx, m *Match, sideStatus EntityStatus) error {
	if _, err := tx.Exec(
		"UPDATE receipts SET status = ?, matched_transaction_id = NULL, matched_group_id = NULL WHERE id = ? AND status = ?",
		StatusUnmatched, m.ReceiptID, sideStatus); err != nil {
		return err
	}
	var err error
	if m.TransactionID != nil {
		_, err = tx.Exec(
			"UPDATE transactions SET status = ?, matched_receipt_id = NULL WHERE id = ? AND status = ?",
			StatusUnmatched, *m.TransactionID, sideStatus)
	} else {
		_, err = tx.Exec(
			"UPDATE transaction_groups SET status = ?, matched_receipt_id = NULL WHERE id = ? AND status = ?",
			StatusUnmatched, *m.GroupID, sideStatus)
	}
	return err
}

// sideStatusFor maps a live match status to the entity status it holds its
// sides in.
func sideStatusFor(s MatchStatus) EntityStatus {
	if s == MatchConfirmed {
		return StatusMatched
	}
	return StatusProposed
}

// ConfirmMatch transitions a proposed match to confirmed using the version
// stamp for optimistic concurrency
func (s *Storage) ConfirmMatch(id string, version int64, userID string) (*Match, error) {
	return s.transition(id, version, MatchProposed, MatchConfirmed, userID)
}

// RejectMatch transitions a proposed match to rejected and releases both
// sides back to unmatched
func (s *Storage) RejectMatch(id string, version int64, userID string) (*Match, error) {
	return s.transition(id, version, MatchProposed, MatchRejected, userID)
}

// Unmatch transitions a confirmed match to the unmatched terminal status
// and releases both sides. The match row is retained for audit.
func (s *Storage) Unmatch(id string, version int64) (*Match, error) {
	return s.transition(id, version, MatchConfirmed, MatchUnmatched, "")
}

// transition performs a compare-and-swap state change on a match and the
// corresponding status flips on the receipt and candidate, in one
// transaction. A version mismatch yields ErrConflict with no mutation.
func (s *Storage) transition(id string, version int64, fromStatus, toStatus MatchStatus, userID string) (*Match, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMatch(tx.QueryRow(
		"SELECT "+matchColumns+" FROM matches WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if m.Status != fromStatus {
		return nil, fmt.Errorf("%w: match is %s, expected %s", ErrInvalidState, m.Status, fromStatus)
	}

	now := time.Now().UTC()
	var res sql.Result
	switch toStatus {
	case MatchConfirmed:
		res, err = tx.Exec(`
		UPDATE matches SET status = ?, confirmed_at = ?, confirmed_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = ?`,
			toStatus, now, userID, id, version, fromStatus)
	case MatchRejected:
		res, err = tx.Exec(`
		UPDATE matches SET status = ?, confirmed_at = ?, confirmed_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = ?`,
			toStatus, now, userID, id, version, fromStatus)
	case MatchUnmatched:
		res, err = tx.Exec(`
		UPDATE matches SET status = ?, unmatched_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = ?`,
			toStatus, now, id, version, fromStatus)
	default:
		return nil, fmt.Errorf("%w: unsupported transition to %s", ErrValidation, toStatus)
	}
	if err != nil {
		return nil, translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("match %s version %d: %w", id, version, ErrConflict)
	}

	// Flip the receipt and candidate to match the new state
	switch toStatus {
	case MatchConfirmed:
		if _, err := tx.Exec(
			"UPDATE receipts SET status = ?, matched_transaction_id = ?, matched_group_id = ? WHERE id = ?",
			StatusMatched, m.TransactionID, m.GroupID, m.ReceiptID); err != nil {
			return nil, err
		}
		if err := setCandidateStatus(tx, m, StatusMatched, &m.ReceiptID); err != nil {
			return nil, err
		}
	case MatchRejected, MatchUnmatched:
		if err := releaseSides(tx, m, sideStatusFor(fromStatus)); err != nil {
			return nil, err
		}
	}

	updated, err := scanMatch(tx.QueryRow(
		"SELECT "+matchColumns+" FROM matches WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateErr(err)
	}
	return updated, nil
}

// ReleaseReceipt voids any live match for a deleted receipt, frees the
// candidate side and removes the receipt row. Terminal match rows stay.
func (s *Storage) ReleaseReceipt(receiptID string) error {
	return s.release("receipt_id", receiptID)
}

// ReleaseGroup voids any live match for a deleted group, returns the
// matched receipt to unmatched, frees the member transactions and removes
// the group row.
func (s *Storage) ReleaseGroup(groupID string) error {
	return s.release("group_id", groupID)
}

// release voids live matches found by the given column, releases their
// sides and finishes the entity-specific teardown.
func (s *Storage) release(column, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(
		"SELECT "+matchColumns+" FROM matches WHERE "+column+" = ? AND status IN (?, ?)",
		id, MatchProposed, MatchConfirmed)
	if err != nil {
		return err
	}
	var live []*Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return err
		}
		live = append(live, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, m := range live {
		if _, err := tx.Exec(
			"UPDATE matches SET status = ?, unmatched_at = ?, version = version + 1 WHERE id = ?",
			MatchUnmatched, now, m.ID); err != nil {
			return err
		}
		if err := releaseSides(tx, m, sideStatusFor(m.Status)); err != nil {
			return err
		}
	}

	switch column {
	case "receipt_id":
		if _, err := tx.Exec("DELETE FROM receipts WHERE id = ?", id); err != nil {
			return err
		}
	case "group_id":
		if _, err := tx.Exec(
			"UPDATE transactions SET group_id = NULL WHERE group_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM transaction_groups WHERE id = ?", id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// --- Vendor aliases ---

const aliasColumns = `id, user_id, pattern, canonical_name, gl_code, department,
	match_count, last_matched_at, confidence, created_at`

func scanAlias(row interface{ Scan(...interface{}) error }) (*VendorAlias, error) {
	a := &VendorAlias{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.Pattern, &a.CanonicalName, &a.GLCode,
		&a.Department, &a.MatchCount, &a.LastMatchedAt, &a.Confidence, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAliases returns all aliases for a user
func (s *Storage) ListAliases(userID string) ([]*VendorAlias, error) {
	rows, err := s.db.Query(
		"SELECT "+aliasColumns+" FROM vendor_aliases WHERE user_id = ? ORDER BY pattern", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []*VendorAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// GetAliasByPattern retrieves an alias by its exact pattern
func (s *Storage) GetAliasByPattern(userID, pattern string) (*VendorAlias, error) {
	a, err := scanAlias(s.db.QueryRow(
		"SELECT "+aliasColumns+" FROM vendor_aliases WHERE user_id = ? AND pattern = ?",
		userID, pattern))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alias %q: %w", pattern, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAlias inserts a new alias and backfills its generated ID
func (s *Storage) CreateAlias(a *VendorAlias) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
	INSERT INTO vendor_aliases
	(user_id, pattern, canonical_name, gl_code, department,
	 match_count, last_matched_at, confidence, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Pattern, a.CanonicalName, a.GLCode, a.Department,
		a.MatchCount, a.LastMatchedAt, a.Confidence, a.CreatedAt)
	if err != nil {
		return translateErr(err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// UpdateAlias updates an existing alias's learned fields
func (s *Storage) UpdateAlias(a *VendorAlias) error {
	res, err := s.db.Exec(`
	UPDATE vendor_aliases
	SET canonical_name = ?, gl_code = ?, department = ?,
	    match_count = ?, last_matched_at = ?, confidence = ?
	WHERE id = ?`,
		a.CanonicalName, a.GLCode, a.Department,
		a.MatchCount, a.LastMatchedAt, a.Confidence, a.ID)
	if err != nil {
		return translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("alias %d: %w", a.ID, ErrNotFound)
	}
	return nil
}

// ListStaleAliases returns aliases last matched before the cutoff with
// confidence above the floor
func (s *Storage) ListStaleAliases(lastMatchedBefore time.Time, confidenceAbove float64) ([]*VendorAlias, error) {
	rows, err := s.db.Query(
		"SELECT "+aliasColumns+" FROM vendor_aliases WHERE last_matched_at < ? AND confidence > ?",
		lastMatchedBefore, confidenceAbove)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []*VendorAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// UpdateAliasConfidence sets an alias's confidence value
func (s *Storage) UpdateAliasConfidence(id int64, confidence float64) error {
	res, err := s.db.Exec(
		"UPDATE vendor_aliases SET confidence = ? WHERE id = ?", confidence, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("alias %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Stats ---

// GetMatchStats returns the aggregate matching view for a user
func (s *Storage) GetMatchStats(userID string) (*MatchStats, error) {
	stats := &MatchStats{}

	err := s.db.QueryRow(`
	SELECT
		SUM(CASE WHEN status = 'matched' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'proposed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'unmatched' THEN 1 ELSE 0 END)
	FROM receipts WHERE user_id = ?`, userID).Scan(
		&nullInt{&stats.MatchedCount},
		&nullInt{&stats.ProposedCount},
		&nullInt{&stats.UnmatchedReceiptCount})
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(`
	SELECT
		(SELECT COUNT(*) FROM transactions
		 WHERE user_id = ? AND status = 'unmatched' AND group_id IS NULL) +
		(SELECT COUNT(*) FROM transaction_groups
		 WHERE user_id = ? AND status = 'unmatched')`,
		userID, userID).Scan(&stats.UnmatchedCandidateCount)
	if err != nil {
		return nil, err
	}

	var confirmed, auto int
	var avgScore sql.NullFloat64
	err = s.db.QueryRow(`
	SELECT COUNT(*), SUM(CASE WHEN manual = 0 THEN 1 ELSE 0 END), AVG(score)
	FROM matches WHERE user_id = ? AND status = 'confirmed'`, userID).Scan(
		&confirmed, &nullInt{&auto}, &avgScore)
	if err != nil {
		return nil, err
	}
	if confirmed > 0 {
		stats.AutoMatchRate = float64(auto) / float64(confirmed)
	}
	if avgScore.Valid {
		stats.AverageConfidence = avgScore.Float64
	}

	return stats, nil
}

// nullInt scans a nullable integer aggregate into an int, treating NULL as 0
type nullInt struct{ v *int }

func (n *nullInt) Scan(src interface{}) error {
	if src == nil {
		*n.v = 0
		return nil
	}
	switch t := src.(type) {
	case int64:
		*n.v = int(t)
	case float64:
		*n.v = int(t)
	default:
		return fmt.Errorf("unsupported aggregate type %T", src)
	}
	return nil
}
