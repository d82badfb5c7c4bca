// Package consolidate fans a single search request out across every
// enabled source adapter, deduplicates the combined result set, and
// reports per-source health. It owns no HTTP or cache concerns of its
// own — it only orchestrates adapters that already satisfy the
// adapter.Adapter contract.
package consolidate

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/model"
)

// AdapterStatus is the per-source outcome reported in ConsolidationResult.
type AdapterStatus string

const (
	AdapterSuccess   AdapterStatus = "success"
	AdapterFailed    AdapterStatus = "failed"
	AdapterDegraded  AdapterStatus = "degraded"
	AdapterTruncated AdapterStatus = "truncated"
	AdapterSkipped   AdapterStatus = "skipped"
)

// SourceOutcome is one adapter's contribution to a consolidation run.
type SourceOutcome struct {
	Source   string
	Status   AdapterStatus
	Err      error
	Count    int
	Duration time.Duration
}

// ConsolidationResult is the output of Service.Run (§4.3).
type ConsolidationResult struct {
	Records       []model.UnifiedProcurement
	SourceOutcome map[string]SourceOutcome
	TotalDuration time.Duration
	SucceededUFs  []string
	FailedUFs     []string
}

// Request is the input to Service.Run.
type Request struct {
	Params   adapter.FetchParams
	Enabled  []adapter.Adapter
	Fallback adapter.Adapter // optional, invoked only if every enabled adapter fails
}

// HealthProbeTimeout bounds each adapter's health_check call (§4.3).
const HealthProbeTimeout = 5 * time.Second

// Service orchestrates concurrent fetch across adapters and deduplicates
// the combined stream.
type Service struct {
	// PerAdapterTimeout bounds how long a single adapter's Fetch may run
	// before the service gives up draining it. Zero means no bound beyond
	// ctx itself.
	PerAdapterTimeout time.Duration
}

// New creates a consolidation service. Adapters passed to Run must
// already have passed adapter.Validate at startup (§4.3: "verifies each
// adapter exposes the required contract methods at construction time").
func New() *Service {
	return &Service{}
}

// Run executes one full consolidation cycle: health-probe, fan out,
// dedup, and summarize (§4.3 steps 1-5).
func (s *Service) Run(ctx context.Context, req Request) (ConsolidationResult, error) {
	started := time.Now()
	outcomes := make(map[string]SourceOutcome, len(req.Enabled))
	var outcomesMu sync.Mutex

	surviving := s.probeHealth(ctx, req.Enabled, outcomes, &outcomesMu)

	all := s.fetchAll(ctx, surviving, req.Params, outcomes, &outcomesMu)

	if len(all) == 0 && req.Fallback != nil {
		zap.L().Warn("consolidate: all primary adapters failed, invoking fallback")
		fallbackRecords := s.fetchOne(ctx, req.Fallback, req.Params, outcomes, &outcomesMu)
		all = append(all, fallbackRecords...)
	}

	deduped := dedupe(all)

	succeededUFs, failedUFs := summarizeUFs(req.Params.UFs, outcomes)

	result := ConsolidationResult{
		Records:       deduped,
		SourceOutcome: outcomes,
		TotalDuration: time.Since(started),
		SucceededUFs:  succeededUFs,
		FailedUFs:     failedUFs,
	}
	return result, nil
}

// probeHealth checks each enabled adapter within HealthProbeTimeout and
// returns the ones that are not UNAVAILABLE. Skipped adapters are
// remembered in outcomes (§4.3 step 1).
func (s *Service) probeHealth(ctx context.Context, adapters []adapter.Adapter, outcomes map[string]SourceOutcome, mu *sync.Mutex) []adapter.Adapter {
	surviving := make([]adapter.Adapter, 0, len(adapters))
	var survivingMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			name := a.Metadata().Code
			hctx, cancel := context.WithTimeout(gctx, HealthProbeTimeout)
			defer cancel()

			status, err := a.HealthCheck(hctx)
			if err != nil || status == model.SourceUnavailable {
				mu.Lock()
				outcomes[name] = SourceOutcome{Source: name, Status: AdapterSkipped, Err: err}
				mu.Unlock()
				zap.L().Warn("consolidate: adapter unavailable, skipping", zap.String("source", name))
				return nil
			}

			survivingMu.Lock()
			surviving = append(surviving, a)
			survivingMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // probes never return errors; failures are recorded per-adapter

	return surviving
}

// fetchAll drains every surviving adapter's stream concurrently. Failure
// or timeout in one adapter does not cancel the others (§4.3 step 2):
// the goroutines are joined with a sync.WaitGroup rather than an
// errgroup, so no adapter's error cancels a context the others share.
func (s *Service) fetchAll(ctx context.Context, adapters []adapter.Adapter, params adapter.FetchParams, outcomes map[string]SourceOutcome, mu *sync.Mutex) []model.UnifiedProcurement {
	var all []model.UnifiedProcurement
	var allMu sync.Mutex
	var wg sync.WaitGroup

	for _, a := range adapters {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			records := s.fetchOne(ctx, a, params, outcomes, mu)
			allMu.Lock()
			all = append(all, records...)
			allMu.Unlock()
		}()
	}
	wg.Wait()
	return all
}

// fetchOne drains a single adapter's stream and records its outcome.
func (s *Service) fetchOne(ctx context.Context, a adapter.Adapter, params adapter.FetchParams, outcomes map[string]SourceOutcome, mu *sync.Mutex) []model.UnifiedProcurement {
	name := a.Metadata().Code
	started := time.Now()

	fetchCtx := ctx
	var cancel context.CancelFunc
	if s.PerAdapterTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, s.PerAdapterTimeout)
		defer cancel()
	}

	stream, err := a.Fetch(fetchCtx, params)
	if err != nil {
		mu.Lock()
		outcomes[name] = SourceOutcome{Source: name, Status: AdapterFailed, Err: err, Duration: time.Since(started)}
		mu.Unlock()
		return nil
	}

	priority := a.Metadata().Priority
	var records []model.UnifiedProcurement
	truncated := false
	var lastErr error

	for item := range stream {
		if item.WasTruncated {
			truncated = true
			continue
		}
		if item.Err != nil {
			lastErr = item.Err
			continue
		}
		rec := item.Record
		rec.SourcePriority = priority
		records = append(records, rec)
	}

	status := AdapterSuccess
	switch {
	case lastErr != nil && len(records) == 0:
		status = AdapterFailed
	case truncated:
		status = AdapterTruncated
	case lastErr != nil:
		status = AdapterDegraded
	}

	mu.Lock()
	outcomes[name] = SourceOutcome{Source: name, Status: status, Err: lastErr, Count: len(records), Duration: time.Since(started)}
	mu.Unlock()

	return records
}

// dedupe collapses records sharing a DedupKey, keeping the one from the
// source whose adapter priority is numerically lower, merging non-empty
// fields from the discarded record into the kept one (§4.3 step 4). When
// priority is equal across both records, the one with the later
// DataPublicacao wins (§9(a)).
func dedupe(records []model.UnifiedProcurement) []model.UnifiedProcurement {
	kept := make(map[string]model.UnifiedProcurement, len(records))
	order := make([]string, 0, len(records))

	for _, rec := range records {
		cur, ok := kept[rec.DedupKey]
		if !ok {
			kept[rec.DedupKey] = rec
			order = append(order, rec.DedupKey)
			continue
		}
		if shouldReplace(cur, rec) {
			kept[rec.DedupKey] = mergeFields(rec, cur)
		} else {
			kept[rec.DedupKey] = mergeFields(cur, rec)
		}
	}

	out := make([]model.UnifiedProcurement, 0, len(order))
	for _, key := range order {
		out = append(out, kept[key])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataPublicacao.Before(out[j].DataPublicacao) })
	return out
}

// shouldReplace reports whether candidate should replace current as the
// kept record for a shared dedup key: source priority first (lower wins),
// falling back to freshness only when priorities tie (§4.3 step 4).
func shouldReplace(current, candidate model.UnifiedProcurement) bool {
	if current.SourcePriority != candidate.SourcePriority {
		return candidate.SourcePriority < current.SourcePriority
	}
	if current.DataPublicacao.Equal(candidate.DataPublicacao) {
		return false
	}
	return candidate.DataPublicacao.After(current.DataPublicacao)
}

// mergeFields fills empty fields on keep from discard, never overwriting
// a non-empty field (§4.3 step 4: "merge non-empty fields from the
// discarded record into the kept one").
func mergeFields(keep, discard model.UnifiedProcurement) model.UnifiedProcurement {
	if keep.Municipio == "" {
		keep.Municipio = discard.Municipio
	}
	if keep.ModalidadeName == "" {
		keep.ModalidadeName = discard.ModalidadeName
	}
	if keep.ValorHomologado == nil {
		keep.ValorHomologado = discard.ValorHomologado
	}
	if len(keep.Items) == 0 {
		keep.Items = discard.Items
	}
	if keep.LinkPortal == "" {
		keep.LinkPortal = discard.LinkPortal
	}
	return keep
}

// summarizeUFs splits the requested UFs into succeeded/failed based on
// whether at least one surviving adapter reported success.
func summarizeUFs(requested []string, outcomes map[string]SourceOutcome) (succeeded, failed []string) {
	anySuccess := false
	for _, o := range outcomes {
		if o.Status == AdapterSuccess || o.Status == AdapterTruncated || o.Status == AdapterDegraded {
			anySuccess = true
			break
		}
	}
	if anySuccess || len(requested) == 0 {
		return requested, nil
	}
	return nil, requested
}
