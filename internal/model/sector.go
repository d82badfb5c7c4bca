package model

// CoOccurrenceRule rejects a bid when a trigger word appears alongside a
// negative context and no positive signal rescues it (Stage C, §4.5).
type CoOccurrenceRule struct {
	Trigger          string
	NegativeContexts []string
	PositiveSignals  []string
}

// ValueRange is an inclusive [min, max] band; Max <= 0 means unbounded.
type ValueRange struct {
	Min float64
	Max float64
}

// Sector is the configured business vertical a search targets (§3).
type Sector struct {
	ID       string
	Name     string
	Keywords map[string]struct{}

	Exclusions map[string]struct{}

	// ContextRequiredKeywords maps a generic keyword to the set of
	// confirming terms that must co-occur for a match to count.
	ContextRequiredKeywords map[string]map[string]struct{}

	CoOccurrenceRules []CoOccurrenceRule

	MaxContractValue float64
	IdealValueRange  ValueRange

	// Synonyms maps a canonical term to its accepted synonyms, used by
	// Stage G proximity/synonym rescue.
	Synonyms map[string][]string
}
