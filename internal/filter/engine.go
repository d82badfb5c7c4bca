package filter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/model"
)

// Reset zeroes the per-search fetch counter while keeping the item cache —
// called once at the start of each search so the budget applies per search,
// not cumulatively across the process lifetime.
func (b *ItemInspectionBudget) Reset() {
	b.mu.Lock()
	b.used = 0
	b.mu.Unlock()
}

// Result is everything Stage A-I produces for one search.
type Result struct {
	Accepted []model.UnifiedProcurement
	Stats    model.FilterStats
	Relaxed  bool

	// MatchedTerms maps each accepted record's dedup_key to the sector
	// keywords that earned it a match, for the score/display stage's
	// LicitacaoView.MatchedTerms.
	MatchedTerms map[string][]string
}

// Engine runs the full Stage A-I pipeline over a consolidated procurement
// list. It is safe to reuse across searches; ItemBudget's per-search counter
// is reset at the start of each Run.
type Engine struct {
	Cfg         config.FilterConfig
	Arbiter     Arbiter // may be nil to skip Stage E entirely
	ItemBudget  *ItemInspectionBudget // may be nil to skip Stage F
	Tracker     *RejectionTracker
	Features    config.FeatureFlags
}

// NewEngine builds an Engine. arbiter and itemBudget may be nil.
func NewEngine(cfg config.FilterConfig, features config.FeatureFlags, arbiter Arbiter, itemBudget *ItemInspectionBudget, tracker *RejectionTracker) *Engine {
	if tracker == nil {
		tracker = NewRejectionTracker(200)
	}
	return &Engine{Cfg: cfg, Arbiter: arbiter, ItemBudget: itemBudget, Tracker: tracker, Features: features}
}

// Run filters records against sector and req, applying Stage I relaxation
// if the first pass accepts nothing.
func (e *Engine) Run(ctx context.Context, records []model.UnifiedProcurement, sector model.Sector, req model.SearchRequest) Result {
	if e.ItemBudget != nil {
		e.ItemBudget.Reset()
	}

	result := e.runPass(ctx, records, sector, req, false)
	if len(result.Accepted) == 0 && len(records) > 0 {
		relaxed := e.runPass(ctx, records, relax(sector), req, true)
		relaxed.Relaxed = true
		return relaxed
	}
	return result
}

func (e *Engine) runPass(ctx context.Context, records []model.UnifiedProcurement, sector model.Sector, req model.SearchRequest, isRelaxedPass bool) Result {
	result := Result{
		Stats:        model.FilterStats{Extra: make(map[string]int)},
		MatchedTerms: make(map[string][]string),
	}
	now := time.Now()

	for _, rec := range records {
		accepted, reason, terms := e.evaluate(ctx, rec, sector, req, now)
		if !accepted {
			bumpStats(&result.Stats, reason)
			e.Tracker.Record(RecentRejection{
				SectorID: sector.ID,
				DedupKey: rec.DedupKey,
				Objeto:   rec.Objeto,
				Reason:   reason,
				At:       now,
			})
			zap.L().Info("filter: rejected bid",
				zap.String("sector_id", sector.ID),
				zap.String("dedup_key", rec.DedupKey),
				zap.String("reason", string(reason)),
				zap.Bool("relaxed_pass", isRelaxedPass),
			)
			continue
		}
		result.Accepted = append(result.Accepted, rec)
		result.MatchedTerms[rec.DedupKey] = terms
	}
	return result
}

// evaluate runs a single bid through Stages A-H in order.
func (e *Engine) evaluate(ctx context.Context, rec model.UnifiedProcurement, sector model.Sector, req model.SearchRequest, now time.Time) (bool, RejectReason, []string) {
	if reason, ok := stageA(rec, req, sector, now); !ok {
		return false, reason, nil
	}

	normalized := NormalizeText(rec.Objeto)
	match := stageB(normalized, sector)
	if match.Excluded {
		return false, ReasonKeywordExcluded, nil
	}

	if stageC(normalized, sector.CoOccurrenceRules) {
		return false, ReasonCoOccurrence, nil
	}

	densityHigh := e.Cfg.DensityHigh
	if densityHigh <= 0 {
		densityHigh = 0.05
	}
	densityLow := e.Cfg.DensityLow

	switch stageD(match.Density, densityLow, densityHigh) {
	case densityAccept:
		return e.stageHGate(normalized, req, match.MatchedTerms)
	case densityReject:
		if rescued, ok := e.stageGRescue(normalized, match, sector, densityLow, densityHigh); ok {
			if !rescued {
				return false, ReasonDensityLow, nil
			}
			return e.stageHGate(normalized, req, match.MatchedTerms)
		}
		return false, ReasonDensityLow, nil
	default:
		// Gray zone: Stage E arbiter, then Stage F item inspection as a
		// second opinion when the arbiter rejects or is unavailable.
		if e.Arbiter != nil {
			sim, err := e.Arbiter.Classify(ctx, sector.ID, normalized)
			if err != nil {
				zap.L().Warn("filter: arbiter unavailable, conservative reject",
					zap.String("sector_id", sector.ID), zap.Error(err))
				sim = false
			}
			if sim {
				return e.stageHGate(normalized, req, match.MatchedTerms)
			}
		}

		if e.ItemBudget != nil {
			if matched, ok := e.ItemBudget.Inspect(ctx, rec, sector); ok && matched {
				return e.stageHGate(normalized, req, match.MatchedTerms)
			}
		}

		if e.Arbiter != nil {
			return false, ReasonArbiterNao, nil
		}
		return false, ReasonItemInspection, nil
	}
}

// stageGRescue re-scores a density-rejected bid via synonyms/proximity and
// re-classifies the recomputed density.
func (e *Engine) stageGRescue(normalized string, match keywordMatch, sector model.Sector, low, high float64) (bool, bool) {
	if len(sector.Synonyms) == 0 && len(sector.ContextRequiredKeywords) == 0 {
		return false, false
	}
	recomputed := stageG(normalized, match, sector)
	if recomputed == match.Density {
		return false, false
	}
	// A rescue pass that still lands in the gray zone is treated as a
	// conservative accept — it already survived Stage C and the exclusion
	// check, and Stage G only runs when nothing else could place it.
	return stageD(recomputed, low, high) != densityReject, true
}

func (e *Engine) stageHGate(normalized string, req model.SearchRequest, matchedTerms []string) (bool, RejectReason, []string) {
	if _, ok := stageH(normalized, req.CustomTerms); !ok {
		return false, ReasonMinMatch, nil
	}
	return true, "", matchedTerms
}

// relax returns a copy of sector with its exclusion set cleared, for Stage
// I's relaxation fallback.
func relax(sector model.Sector) model.Sector {
	relaxed := sector
	relaxed.Exclusions = nil
	return relaxed
}
