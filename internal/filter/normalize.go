// Package filter implements the Stage A-I filter engine (§4.5): it takes the
// consolidated, deduplicated procurement list and narrows it down to the
// bids that actually belong to the requesting sector, keeping a
// rejection-reason histogram as it goes.
package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText lowercases, strips accents (NFD decompose + drop combining
// marks), replaces punctuation with spaces, and collapses whitespace — the
// exact pipeline Stage B requires before keyword matching.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark from the NFD decomposition — drop it.
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastWasSpace = false
		default:
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Words splits already-normalized text on whitespace.
func Words(normalized string) []string {
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// ContainsWord reports whether term appears in normalized text as a
// whole word (word-boundary match, not substring). term may itself be a
// multi-word phrase, in which case it is matched as a contiguous run of
// words.
func ContainsWord(normalized, term string) bool {
	term = NormalizeText(term)
	if term == "" {
		return false
	}
	words := Words(normalized)
	termWords := Words(term)
	if len(termWords) == 0 || len(words) < len(termWords) {
		return false
	}
	for i := 0; i+len(termWords) <= len(words); i++ {
		match := true
		for j, tw := range termWords {
			if words[i+j] != tw {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
