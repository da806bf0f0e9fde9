// Package fuzzy implements token-set similarity matching between line-item
// descriptions across documents, with an exact-key override for part
// numbers.
package fuzzy

import (
	"regexp"
	"strings"
)

// AcceptanceThreshold is the minimum score (of 100) for two line items to
// be considered a link across documents.
const AcceptanceThreshold = 70.0

// FullDescriptionThreshold is the description-score floor a full_match
// triple requires.
const FullDescriptionThreshold = 85.0

var punctuation = regexp.MustCompile(`[^\w\s]`)

// tokenize lower-cases, strips punctuation, and splits on whitespace.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, " ")
	fields := strings.Fields(s)
	return fields
}

// multiset is a counted set of tokens, letting the similarity score be
// sensitive to repeated words the way a plain set would not (two
// descriptions that repeat a word N times each should not out-score two
// that share it once).
type multiset map[string]int

func toMultiset(tokens []string) multiset {
	m := make(multiset, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func (m multiset) size() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// intersectionSize returns the multiplicity-aware intersection count
// between two multisets: for each token, min(count in a, count in b).
func intersectionSize(a, b multiset) int {
	n := 0
	for tok, ca := range a {
		if cb, ok := b[tok]; ok {
			if cb < ca {
				n += cb
			} else {
				n += ca
			}
		}
	}
	return n
}

// Match computes a token-set similarity score in [0,100] between two
// descriptions. It is equivalent to a token-set ratio: the overlap between
// the two token multisets relative to the overlap plus the smaller
// multiset, scaled to a percentage, so a description whose tokens are all
// contained in the other scores 100. Description content is the only
// signal considered here;
// callers apply the part-number override separately (see MatchItems).
func Match(aDesc, bDesc string) float64 {
	aTokens := toMultiset(tokenize(aDesc))
	bTokens := toMultiset(tokenize(bDesc))
	if aTokens.size() == 0 && bTokens.size() == 0 {
		return 100
	}
	if aTokens.size() == 0 || bTokens.size() == 0 {
		return 0
	}
	overlap := intersectionSize(aTokens, bTokens)
	// Token-set-ratio combination: the best of comparing the intersection
	// with each side, 2 * overlap / (overlap + min(|A|, |B|)), which
	// yields 100 for identical multisets and for a subset.
	smaller := aTokens.size()
	if bTokens.size() < smaller {
		smaller = bTokens.size()
	}
	score := 200.0 * float64(overlap) / float64(overlap+smaller)
	if score > 100 {
		score = 100
	}
	return score
}

// Item is the minimal shape MatchItems needs from a line item: enough to
// compute a description score and apply the part-number override, without
// this package depending on internal/pipeline's richer LineItem type.
type Item struct {
	Description string
	PartNumber  string
}

// MatchItems scores two items, applying the part-number override: if both
// sides carry a non-empty part number and they compare equal
// case-insensitively, the score is 100 regardless of description.
func MatchItems(a, b Item) float64 {
	if a.PartNumber != "" && b.PartNumber != "" &&
		strings.EqualFold(a.PartNumber, b.PartNumber) {
		return 100
	}
	return Match(a.Description, b.Description)
}

// BestMatch finds, among candidates, the index of the best-scoring match
// for target, with ties broken by preferring the earlier candidate index.
// Returns ok=false if no candidate
// reaches minScore.
func BestMatch(target Item, candidates []Item, minScore float64) (index int, score float64, ok bool) {
	index = -1
	for i, c := range candidates {
		s := MatchItems(target, c)
		if s < minScore {
			continue
		}
		if s > score {
			score = s
			index = i
		}
	}
	return index, score, index >= 0
}
