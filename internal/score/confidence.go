package score

import "github.com/sells-group/procsearch/internal/model"

// ClassificationSource identifies which filter stage ultimately accepted a
// bid, driving its confidence tier (§4.6).
type ClassificationSource string

const (
	SourceExactKeyword     ClassificationSource = "exact_keyword"
	SourceLLMStandard      ClassificationSource = "llm_standard"
	SourceLLMConservative  ClassificationSource = "llm_conservative"
	SourceLegacy           ClassificationSource = "legacy"
)

// DeriveConfidence maps a classification source to its confidence tier.
// Legacy/missing sources get no confidence tier at all (zero value).
func DeriveConfidence(src ClassificationSource) model.Confidence {
	switch src {
	case SourceExactKeyword:
		return model.ConfidenceHigh
	case SourceLLMStandard:
		return model.ConfidenceMedium
	case SourceLLMConservative:
		return model.ConfidenceLow
	default:
		return ""
	}
}

// confidenceRank orders tiers for sorting: high first, then medium, low,
// and finally bids with no tier at all.
func confidenceRank(c model.Confidence) int {
	switch c {
	case model.ConfidenceHigh:
		return 0
	case model.ConfidenceMedium:
		return 1
	case model.ConfidenceLow:
		return 2
	default:
		return 3
	}
}
