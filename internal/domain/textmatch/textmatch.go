// Package textmatch computes normalized similarity between vendor strings.
//
// Scores are in [0, 1]. The comparison is pure: no state, no I/O, identical
// inputs always produce identical scores.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Similarity returns a score in [0, 1] for how alike two vendor strings
// are. Exact matches after normalization score 1.0; a prefix or substring
// relationship scores at least 0.8; otherwise the score is edit distance
// normalized by the longer string.
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)

	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	score := 0.0
	if strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na) {
		score = 0.85
	} else if strings.Contains(na, nb) || strings.Contains(nb, na) {
		score = 0.80
	}

	dist := levenshtein.ComputeDistance(na, nb)
	longer := len([]rune(na))
	if l := len([]rune(nb)); l > longer {
		longer = l
	}
	editScore := 1.0 - float64(dist)/float64(longer)
	if editScore > score {
		score = editScore
	}

	return score
}

// Normalize uppercases, collapses runs of non-alphanumeric characters to a
// single space and trims the result.
func Normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
