package filter

import "github.com/sells-group/procsearch/internal/model"

// proximityWindow bounds how many words may separate a keyword and its
// confirming term for Stage G's proximity rescue.
const proximityWindow = 6

// stageG re-scores a bid that Stage D's density check rejected, using the
// sector's synonym dictionary: a synonym of a matched (or near-miss) keyword counts
// toward density, and a keyword within proximityWindow words of a
// confirming term counts even without an exact phrase match. Returns the
// recomputed density.
func stageG(normalized string, m keywordMatch, sector model.Sector) float64 {
	words := Words(normalized)
	if len(words) == 0 {
		return m.Density
	}

	extra := 0
	for canonical, synonyms := range sector.Synonyms {
		if containsKeyword(m.MatchedTerms, canonical) {
			continue // already counted in Stage B
		}
		for _, syn := range synonyms {
			if ContainsWord(normalized, syn) {
				extra += countOccurrences(words, syn)
				break
			}
		}
	}

	for keyword := range sector.Keywords {
		confirmers, generic := sector.ContextRequiredKeywords[keyword]
		if !generic || containsKeyword(m.MatchedTerms, keyword) {
			continue
		}
		if !keywordPresent(words, keyword) {
			continue
		}
		if withinProximity(words, keyword, confirmers) {
			extra += countOccurrences(words, keyword)
		}
	}

	if extra == 0 {
		return m.Density
	}
	return float64(m.Occurrences+extra) / float64(len(words))
}

func containsKeyword(matched []string, keyword string) bool {
	for _, k := range matched {
		if k == keyword {
			return true
		}
	}
	return false
}

func keywordPresent(words []string, keyword string) bool {
	return countOccurrences(words, keyword) > 0
}

// withinProximity reports whether any confirming term appears within
// proximityWindow words of any occurrence of keyword.
func withinProximity(words []string, keyword string, confirmers map[string]struct{}) bool {
	keywordWords := Words(NormalizeText(keyword))
	if len(keywordWords) == 0 {
		return false
	}
	for i := 0; i+len(keywordWords) <= len(words); i++ {
		match := true
		for j, kw := range keywordWords {
			if words[i+j] != kw {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		lo := i - proximityWindow
		if lo < 0 {
			lo = 0
		}
		hi := i + len(keywordWords) + proximityWindow
		if hi > len(words) {
			hi = len(words)
		}
		window := words[lo:hi]
		for confirmer := range confirmers {
			confirmerWords := Words(NormalizeText(confirmer))
			if len(confirmerWords) == 0 {
				continue
			}
			for k := 0; k+len(confirmerWords) <= len(window); k++ {
				ok := true
				for l, cw := range confirmerWords {
					if window[k+l] != cw {
						ok = false
						break
					}
				}
				if ok {
					return true
				}
			}
		}
	}
	return false
}
