// Package scoring computes weighted match confidence between a receipt and
// a candidate (an individual transaction or a transaction group).
package scoring

import (
	"regexp"
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// CandidateType tags the concrete candidate kind.
type CandidateType string

const (
	TypeTransaction CandidateType = "transaction"
	TypeGroup       CandidateType = "group"
)

// Candidate is the capability surface the engine needs from anything it
// scores. Transactions and groups both satisfy it, so scoring and the
// matching service never branch on the concrete type.
type Candidate interface {
	CandidateID() string
	CandidateType() CandidateType
	Amount() float64
	Date() time.Time
	VendorKey() string
}

// TransactionCandidate adapts a storage.Transaction.
type TransactionCandidate struct {
	Tx *storage.Transaction
}

func (c TransactionCandidate) CandidateID() string          { return c.Tx.ID }
func (c TransactionCandidate) CandidateType() CandidateType { return TypeTransaction }
func (c TransactionCandidate) Amount() float64              { return c.Tx.Amount }
func (c TransactionCandidate) Date() time.Time              { return c.Tx.Date }
func (c TransactionCandidate) VendorKey() string            { return c.Tx.Description }

// GroupCandidate adapts a storage.TransactionGroup. The vendor key is the
// group name with the "(N charges)" suffix stripped.
type GroupCandidate struct {
	Group *storage.TransactionGroup
}

func (c GroupCandidate) CandidateID() string          { return c.Group.ID }
func (c GroupCandidate) CandidateType() CandidateType { return TypeGroup }
func (c GroupCandidate) Amount() float64              { return c.Group.CombinedAmount }
func (c GroupCandidate) Date() time.Time              { return c.Group.DisplayDate }
func (c GroupCandidate) VendorKey() string            { return StripGroupSuffix(c.Group.Name) }

var groupSuffixRe = regexp.MustCompile(`\s*\(\d+\s+charges?\)\s*$`)

// StripGroupSuffix removes a trailing "(N charges)"-style label from a
// group name, leaving the vendor part.
func StripGroupSuffix(name string) string {
	return groupSuffixRe.ReplaceAllString(name, "")
}
