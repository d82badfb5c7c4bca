package filter

import "github.com/sells-group/procsearch/internal/model"

// keywordMatch is the outcome of Stages B-D on a single bid's normalized
// objeto text.
type keywordMatch struct {
	Excluded       bool
	MatchedTerms   []string // canonical keywords that counted toward density
	Occurrences    int
	WordCount      int
	Density        float64
}

// stageB runs the exclusion check and context-confirmed keyword match.
func stageB(normalized string, sector model.Sector) keywordMatch {
	words := Words(normalized)
	m := keywordMatch{WordCount: len(words)}

	for exclusion := range sector.Exclusions {
		if ContainsWord(normalized, exclusion) {
			m.Excluded = true
			return m
		}
	}

	for keyword := range sector.Keywords {
		occ := countOccurrences(words, keyword)
		if occ == 0 {
			continue
		}
		if confirmers, generic := sector.ContextRequiredKeywords[keyword]; generic {
			if !anyConfirmed(normalized, confirmers) {
				continue
			}
		}
		m.MatchedTerms = append(m.MatchedTerms, keyword)
		m.Occurrences += occ
	}

	if m.WordCount > 0 {
		m.Density = float64(m.Occurrences) / float64(m.WordCount)
	}
	return m
}

// stageC applies the sector's co-occurrence rejection rules against the
// normalized text. A rule fires when its trigger and a negative context both
// appear and no positive signal rescues it.
func stageC(normalized string, rules []model.CoOccurrenceRule) bool {
	for _, rule := range rules {
		if !ContainsWord(normalized, rule.Trigger) {
			continue
		}
		negativeHit := false
		for _, neg := range rule.NegativeContexts {
			if ContainsWord(normalized, neg) {
				negativeHit = true
				break
			}
		}
		if !negativeHit {
			continue
		}
		positiveHit := false
		for _, pos := range rule.PositiveSignals {
			if ContainsWord(normalized, pos) {
				positiveHit = true
				break
			}
		}
		if !positiveHit {
			return true
		}
	}
	return false
}

// densityVerdict is the Stage D classification of a match's density.
type densityVerdict int

const (
	densityReject densityVerdict = iota
	densityGray
	densityAccept
)

// stageD classifies density against the sector-independent high/low bounds.
func stageD(density, low, high float64) densityVerdict {
	switch {
	case density > high:
		return densityAccept
	case density < low:
		return densityReject
	default:
		return densityGray
	}
}

func countOccurrences(words []string, term string) int {
	termWords := Words(NormalizeText(term))
	if len(termWords) == 0 || len(words) < len(termWords) {
		return 0
	}
	count := 0
	for i := 0; i+len(termWords) <= len(words); i++ {
		match := true
		for j, tw := range termWords {
			if words[i+j] != tw {
				match = false
				break
			}
		}
		if match {
			count++
		}
	}
	return count
}

func anyConfirmed(normalized string, confirmers map[string]struct{}) bool {
	for c := range confirmers {
		if ContainsWord(normalized, c) {
			return true
		}
	}
	return false
}
