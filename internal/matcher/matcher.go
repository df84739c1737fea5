// Package matcher scores noisy street names against the street names known
// within a ZIP code and picks the best plausible match.
package matcher

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/oceanstate-routing/pinpoint/internal/models"
)

// DefaultThreshold is the minimum similarity for a street match to count.
const DefaultThreshold = 0.80

// roadExpansions is deliberately conservative: only well-known street
// abbreviations, applied before scoring so "Gazza Rd" and "gazza road"
// compare equal.
var roadExpansions = map[string]string{
	"ave": "avenue", "av": "avenue", "blvd": "boulevard", "cir": "circle",
	"ct": "court", "ctr": "center", "cv": "cove", "dr": "drive",
	"expy": "expressway", "expwy": "expressway", "hwy": "highway",
	"ln": "lane", "pkwy": "parkway", "pl": "place", "rd": "road",
	"sq": "square", "st": "street", "ter": "terrace", "trl": "trail",
}

var roadNonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// ExpandRoad canonicalizes a street name for matching: lowercase, strip
// punctuation, expand known abbreviations.
func ExpandRoad(text string) string {
	if text == "" {
		return ""
	}
	cleaned := roadNonAlnumRe.ReplaceAllString(strings.ToLower(text), " ")
	tokens := strings.Fields(cleaned)
	for i, t := range tokens {
		if full, ok := roadExpansions[t]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, " ")
}

// Matcher finds the best-scoring candidate street above a similarity floor.
type Matcher struct {
	threshold float64
}

// New creates a Matcher. A non-positive threshold falls back to the default.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// BestMatch scores every candidate against the raw street name and returns
// the winner if it clears the threshold, plus the full scored list ordered
// by (score desc, shorter candidate, lexical) so results are deterministic.
// Returns a nil winner when nothing is plausible.
func (m *Matcher) BestMatch(rawStreet string, candidates []string) (*models.StreetCandidate, []models.StreetCandidate) {
	target := ExpandRoad(rawStreet)
	if target == "" || len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]models.StreetCandidate, 0, len(candidates))
	for _, cand := range candidates {
		scored = append(scored, models.StreetCandidate{
			Name:  cand,
			Score: Score(target, ExpandRoad(cand)),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if len(scored[i].Name) != len(scored[j].Name) {
			return len(scored[i].Name) < len(scored[j].Name)
		}
		return scored[i].Name < scored[j].Name
	})

	if scored[0].Score < m.threshold {
		return nil, scored
	}
	best := scored[0]
	return &best, scored
}

// Score compares two canonicalized street names and returns a similarity in
// [0,1]. Three views are taken and the best wins: token-sorted comparison
// (word order noise), windowed partial comparison (extra leading/trailing
// words), and a discounted joined comparison ("Oak Lawn" vs "Oaklawn").
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	sTok := levenshtein.Similarity(sortTokens(a), sortTokens(b), nil)
	sPart := partialSimilarity(a, b)
	sJoin := 0.9 * levenshtein.Similarity(joinTokens(a), joinTokens(b), nil)

	best := sTok
	if sPart > best {
		best = sPart
	}
	if sJoin > best {
		best = sJoin
	}
	return best
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func joinTokens(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// partialSimilarity slides the shorter token sequence over the longer one
// and keeps the best window score.
func partialSimilarity(a, b string) float64 {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	short, long := at, bt
	if len(bt) < len(at) {
		short, long = bt, at
	}
	if len(short) == 0 {
		return 0
	}
	if len(short) == len(long) {
		return levenshtein.Similarity(strings.Join(short, " "), strings.Join(long, " "), nil)
	}
	best := 0.0
	window := len(short)
	for i := 0; i+window <= len(long); i++ {
		s := levenshtein.Similarity(strings.Join(short, " "), strings.Join(long[i:i+window], " "), nil)
		if s > best {
			best = s
		}
	}
	return best
}
