package storage

import "time"

// Repository defines the persistence surface of the matching engine: read
// access to candidates, write access to matches and status flips, and the
// vendor alias table. Implemented by Storage (SQLite) and MockRepository
// (in-memory, for tests).
type Repository interface {
	Close() error

	// Receipts
	SaveReceipt(r *Receipt) error
	GetReceipt(id string) (*Receipt, error)
	// ListUnmatchedReceipts returns unmatched receipts with valid extracted
	// data for a user, optionally restricted to the given IDs.
	ListUnmatchedReceipts(userID string, ids []string) ([]*Receipt, error)

	// Transactions
	SaveTransaction(t *Transaction) error
	GetTransaction(id string) (*Transaction, error)
	// ListUnmatchedTransactions returns unmatched, ungrouped transactions
	// in the [from, to] date window.
	ListUnmatchedTransactions(userID string, from, to time.Time) ([]*Transaction, error)

	// Transaction groups
	SaveGroup(g *TransactionGroup) error
	GetGroup(id string) (*TransactionGroup, error)
	ListUnmatchedGroups(userID string, from, to time.Time) ([]*TransactionGroup, error)

	// Matches
	GetMatch(id string) (*Match, error)
	ListMatchesByReceipt(receiptID string) ([]*Match, error)
	// CreateMatch inserts a match and flips both sides' statuses in one
	// transaction. The match status decides the flip: MatchProposed marks
	// both sides proposed; MatchConfirmed (manual match) marks both sides
	// matched and cross-links them.
	CreateMatch(m *Match) error
	// ConfirmMatch transitions a proposed match to confirmed, stamps
	// time/user, marks both sides matched and cross-links them. The version
	// must equal the caller's last observed value or ErrConflict is
	// returned with no mutation.
	ConfirmMatch(id string, version int64, userID string) (*Match, error)
	// RejectMatch transitions a proposed match to rejected and releases
	// both sides back to unmatched.
	RejectMatch(id string, version int64, userID string) (*Match, error)
	// Unmatch transitions a confirmed match to the unmatched terminal
	// status and releases both sides.
	Unmatch(id string, version int64) (*Match, error)

	// ReleaseReceipt voids any live match for a deleted receipt and frees
	// the candidate side. ReleaseGroup does the same for a deleted group.
	ReleaseReceipt(receiptID string) error
	ReleaseGroup(groupID string) error

	// Vendor aliases
	ListAliases(userID string) ([]*VendorAlias, error)
	GetAliasByPattern(userID, pattern string) (*VendorAlias, error)
	CreateAlias(a *VendorAlias) error
	UpdateAlias(a *VendorAlias) error
	// ListStaleAliases returns aliases last matched before the cutoff with
	// confidence above the floor.
	ListStaleAliases(lastMatchedBefore time.Time, confidenceAbove float64) ([]*VendorAlias, error)
	UpdateAliasConfidence(id int64, confidence float64) error

	// Stats
	GetMatchStats(userID string) (*MatchStats, error)
}
