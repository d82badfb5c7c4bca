package filter

import "math"

// minMatchFloor returns min(ceil(N/3), 3) for N user-supplied custom terms.
func minMatchFloor(n int) int {
	floor := int(math.Ceil(float64(n) / 3))
	if floor > 3 {
		return 3
	}
	return floor
}

// stageH applies the min-match floor for user-supplied custom terms: the
// bid must match at least minMatchFloor(len(terms)) of them, or contain an
// exact multi-word phrase match of any single term (a strong-signal
// override). Returns (matchedTerms, passes).
func stageH(normalized string, terms []string) ([]string, bool) {
	if len(terms) == 0 {
		return nil, true
	}

	var matched []string
	for _, term := range terms {
		if ContainsWord(normalized, term) {
			matched = append(matched, term)
			if len(Words(NormalizeText(term))) > 1 {
				return matched, true // exact multi-word phrase override
			}
		}
	}

	return matched, len(matched) >= minMatchFloor(len(terms))
}
