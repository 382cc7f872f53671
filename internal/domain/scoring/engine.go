package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cachewarming/receipt-match-backend/internal/domain/textmatch"
	"github.com/cachewarming/receipt-match-backend/internal/domain/vendor"
	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// Score weights and bands. Amount dominates, date second, vendor third.
const (
	amountExactPoints = 40
	amountNearPoints  = 20
	amountExactTol    = 0.10
	amountNearTol     = 1.00

	dateSameDayPoints  = 35
	dateOneDayPoints   = 30
	dateThreeDayPoints = 25
	dateSevenDayPoints = 10

	vendorExactPoints = 25
	vendorFuzzyPoints = 15
)

// MaxScore is the highest possible total.
const MaxScore = amountExactPoints + dateSameDayPoints + vendorExactPoints

// AmountTolerance is the exact-match band, exported for the unmatch drift
// check.
const AmountTolerance = amountExactTol

// Result is an explainable score breakdown for one (receipt, candidate)
// pair.
type Result struct {
	Total       int
	AmountScore int
	DateScore   int
	VendorScore int
	Reason      string
	// Alias is the vendor alias that contributed to the vendor score, if
	// any.
	Alias *storage.VendorAlias
}

// Engine scores receipt/candidate pairs against an alias snapshot.
// Scoring is deterministic: the same inputs always yield the same result.
type Engine struct {
	aliases *vendor.Snapshot
}

// NewEngine creates a scoring engine over the given alias snapshot. A nil
// snapshot disables alias hits but fuzzy vendor comparison still applies.
func NewEngine(aliases *vendor.Snapshot) *Engine {
	if aliases == nil {
		aliases = vendor.NewSnapshot(nil)
	}
	return &Engine{aliases: aliases}
}

// Score computes the weighted confidence for a receipt against one
// candidate.
func (e *Engine) Score(receipt *storage.Receipt, candidate Candidate) Result {
	var reasons []string

	amountScore := scoreAmount(receipt.Amount, candidate.Amount())
	switch amountScore {
	case amountExactPoints:
		reasons = append(reasons, "amount exact")
	case amountNearPoints:
		reasons = append(reasons, "amount near")
	}

	dateScore, dayDiff := scoreDate(receipt.Date, candidate.Date())
	if dateScore > 0 {
		if dayDiff == 0 {
			reasons = append(reasons, "same day")
		} else {
			reasons = append(reasons, fmt.Sprintf("%d day(s) apart", dayDiff))
		}
	}

	vendorScore, alias := e.scoreVendor(receipt.Vendor, candidate.VendorKey())
	if alias != nil {
		if vendorScore == vendorExactPoints {
			reasons = append(reasons, fmt.Sprintf("vendor alias %q", alias.CanonicalName))
		} else {
			reasons = append(reasons, fmt.Sprintf("vendor similar to %q", alias.CanonicalName))
		}
	} else if vendorScore > 0 {
		reasons = append(reasons, "vendor text similar")
	}

	total := amountScore + dateScore + vendorScore
	reason := "no significant factors"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, ", ")
	}

	return Result{
		Total:       total,
		AmountScore: amountScore,
		DateScore:   dateScore,
		VendorScore: vendorScore,
		Reason:      reason,
		Alias:       alias,
	}
}

// scoreAmount compares absolute values so refunds and credits match their
// positive receipt amounts.
func scoreAmount(receiptAmount, candidateAmount float64) int {
	diff := math.Abs(math.Abs(receiptAmount) - math.Abs(candidateAmount))
	switch {
	case diff <= amountExactTol:
		return amountExactPoints
	case diff <= amountNearTol:
		return amountNearPoints
	default:
		return 0
	}
}

// scoreDate bands by calendar-day distance
func scoreDate(receiptDate, candidateDate time.Time) (int, int) {
	days := calendarDaysApart(receiptDate, candidateDate)
	switch {
	case days == 0:
		return dateSameDayPoints, days
	case days == 1:
		return dateOneDayPoints, days
	case days <= 3:
		return dateThreeDayPoints, days
	case days <= 7:
		return dateSevenDayPoints, days
	default:
		return 0, days
	}
}

// calendarDaysApart counts whole calendar days between two dates,
// ignoring time-of-day
func calendarDaysApart(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// scoreVendor resolves the receipt vendor against the alias snapshot and
// falls back to direct fuzzy comparison between the two vendor strings.
func (e *Engine) scoreVendor(receiptVendor, candidateVendor string) (int, *storage.VendorAlias) {
	if receiptVendor == "" || candidateVendor == "" {
		return 0, nil
	}

	// An alias hit on the candidate's description confirms vendor identity
	// when the receipt's vendor resolves to the same alias
	candidateHit := e.aliases.Lookup(candidateVendor)
	receiptHit := e.aliases.Lookup(receiptVendor)
	if candidateHit != nil && receiptHit != nil && candidateHit.Alias.ID == receiptHit.Alias.ID {
		if candidateHit.Exact && receiptHit.Exact {
			return vendorExactPoints, candidateHit.Alias
		}
		return vendorFuzzyPoints, candidateHit.Alias
	}

	if textmatch.Similarity(receiptVendor, candidateVendor) >= vendor.FuzzyThreshold {
		return vendorFuzzyPoints, nil
	}

	return 0, nil
}
