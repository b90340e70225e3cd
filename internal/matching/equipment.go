// Package matching resolves free-text equipment names against the catalog.
package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Scores are kept in tenths so that sums compare exactly.
const (
	nameContainsExtracted  = 8
	extractedContainsName  = 7
	descriptionContains    = 5
	nameWordOverlap        = 3
	descriptionWordOverlap = 2
	lengthSimilarity       = 1

	// MinScore is exclusive: a candidate must score strictly above it.
	MinScore = 3

	minWordLength  = 3
	maxLengthDelta = 5
)

type Item struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rate        decimal.Decimal `json:"rate"`
}

type Match struct {
	Item  Item
	Score float64
	Exact bool
}

// FindClosestEquipment returns the catalog entry that best matches extracted, or nil.
func FindClosestEquipment(extracted string, catalog []Item) *Item {
	m, ok := BestMatch(extracted, catalog)
	if !ok {
		return nil
	}
	item := m.Item
	return &item
}

// BestMatch is FindClosestEquipment with the winning score attached.
// An exact case-insensitive name match wins outright. Otherwise the first entry
// with the highest score above MinScore wins.
func BestMatch(extracted string, catalog []Item) (Match, bool) {
	ext := normalize(extracted)
	if ext == "" {
		return Match{}, false
	}

	for _, item := range catalog {
		if normalize(item.Name) == ext {
			return Match{Item: item, Score: 1, Exact: true}, true
		}
	}

	var (
		best      Match
		bestScore int
		found     bool
	)
	for _, item := range catalog {
		s := scoreTenths(ext, item)
		if s > bestScore && s > MinScore {
			best = Match{Item: item, Score: float64(s) / 10}
			bestScore = s
			found = true
		}
	}
	return best, found
}

// Score reports the heuristic score of one catalog entry against extracted.
func Score(extracted string, item Item) float64 {
	ext := normalize(extracted)
	if ext == "" {
		return 0
	}
	return float64(scoreTenths(ext, item)) / 10
}

func scoreTenths(ext string, item Item) int {
	name := normalize(item.Name)
	desc := normalize(item.Description)
	score := 0

	if strings.Contains(name, ext) {
		score += nameContainsExtracted
	} else if strings.Contains(ext, name) {
		score += extractedContainsName
	}

	if strings.Contains(desc, ext) {
		score += descriptionContains
	}

	nameWords := strings.Fields(name)
	descWords := strings.Fields(desc)
	for _, w := range strings.Fields(ext) {
		if utf8.RuneCountInString(w) < minWordLength {
			continue
		}
		if overlaps(w, nameWords) {
			score += nameWordOverlap
		}
		if overlaps(w, descWords) {
			score += descriptionWordOverlap
		}
	}

	if abs(utf8.RuneCountInString(name)-utf8.RuneCountInString(ext)) < maxLengthDelta {
		score += lengthSimilarity
	}

	return score
}

func overlaps(word string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(c, word) || strings.Contains(word, c) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
