// Package pipeline orchestrates one search request end to end: validating
// the request, consolidating results across every enabled source adapter,
// running them through the filter and scoring engines, generating an
// executive summary, and persisting the response — while driving a
// searchstate.StateMachine and searchstate.Tracker so a client can watch
// the search progress live.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/cache"
	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/consolidate"
	"github.com/sells-group/procsearch/internal/filter"
	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/score"
	"github.com/sells-group/procsearch/internal/searchstate"
)

// abertasWindow is the canned lookback used when ModoBusca is "abertas"
// instead of an explicit date range.
const abertasWindow = 15 * 24 * time.Hour

// SectorProvider resolves a sector's keyword/exclusion configuration by
// ID. Implementations typically read from a config-seeded registry or a
// database table an administrator maintains.
type SectorProvider interface {
	GetSector(ctx context.Context, setorID string) (model.Sector, error)
}

// SummaryGenerator produces the executive-summary block of the response
// envelope from the accepted, scored results. Used when no JobCoordinator
// is configured, so a deployment without a job queue still gets a summary,
// synchronously, on the request goroutine.
type SummaryGenerator interface {
	GenerateSummary(ctx context.Context, sectorName string, accepted []model.LicitacaoView, stats model.FilterStats) (model.Resumo, error)
}

// JobCoordinator is the stage-6 collaborator per §4.8/§4.9: it dispatches
// the executive-summary and report-generation jobs (enqueued or inline,
// the dispatcher's own concern) and lets the pipeline make a best-effort
// synchronous check for a result before responding. When the queue is
// unavailable, jobqueue's Dispatcher runs both jobs inline before
// returning from Dispatch*, so the immediately-following Get* calls
// already find a result; when the queue is available, Get* reports
// not-ready and the route returns a pending marker, per spec.
type JobCoordinator interface {
	DispatchSummary(ctx context.Context, searchID, sectorName string, accepted []model.LicitacaoView, stats model.FilterStats)
	DispatchReport(ctx context.Context, searchID string, licitacoes []model.LicitacaoView)
	GetSummary(ctx context.Context, searchID string) (model.Resumo, bool, error)
	GetReport(ctx context.Context, searchID string) (downloadURL string, ready bool, err error)
}

// ResultStore persists the final response envelope for later retrieval by
// GET /search-results/{search_id}.
type ResultStore interface {
	SaveSearchResult(ctx context.Context, searchID string, resp model.SearchResponse) error
}

// QuotaChecker enforces a per-user daily search quota. Optional: a nil
// QuotaChecker means quota is not enforced (e.g. in a worker or admin
// context).
type QuotaChecker interface {
	CheckAndConsume(ctx context.Context, userID string) (used, remaining int, err error)
}

// Sources bundles the adapters a search fans out across.
type Sources struct {
	Enabled  []adapter.Adapter
	Fallback adapter.Adapter
}

// SearchPipeline wires together every collaborator a search touches.
// Quota, Jobs, Cache, and ResultStore may be nil; the other fields are
// required.
type SearchPipeline struct {
	Cfg          *config.Config
	Sectors      SectorProvider
	Consolidator *consolidate.Service
	FilterEngine *filter.Engine
	Cache        *cache.Cascade
	Summarizer   SummaryGenerator
	Jobs         JobCoordinator // optional; nil falls back to a direct Summarizer call
	ResultStore  ResultStore
	Quota        QuotaChecker
}

// Run executes the full pipeline for one search, driving sm and tracker as
// it progresses. sm and tracker are expected to already be registered with
// a searchstate.Registry by the HTTP boundary before Run is called, so a
// client streaming GET /search-progress/{search_id} never races the
// search's own first transition.
func (p *SearchPipeline) Run(ctx context.Context, req model.SearchRequest, sources Sources, sm *searchstate.StateMachine, tracker *searchstate.Tracker) (*model.SearchResponse, error) {
	log := zap.L().With(zap.String("search_id", req.SearchID), zap.String("setor_id", req.SetorID))

	sector, params, quotaUsed, quotaRemaining, err := p.validate(ctx, req, sm, tracker, log)
	if err != nil {
		return nil, err
	}

	consolidation, cached := p.fromCache(ctx, req, sm, tracker, log)
	if !cached {
		consolidation, err = p.execute(ctx, params, sources, sm, tracker, log)
		if err != nil {
			return nil, err
		}
	}

	filtered, err := p.filterStage(ctx, consolidation.Records, sector, req, sm, tracker, log)
	if err != nil {
		return nil, err
	}

	views := p.enrich(consolidation, filtered, sector, req, sm, tracker, log)

	generated, err := p.generate(ctx, req, sector, views, filtered.Stats, sm, tracker, log)
	if err != nil {
		return nil, err
	}

	resp := p.assembleResponse(req, consolidation, filtered, views, generated)
	resp.QuotaUsed = quotaUsed
	resp.QuotaRemaining = quotaRemaining
	if cached {
		resp.Cached = true
		resp.ResponseState = model.ResponseCached
	}

	if err := p.persist(ctx, req, resp, consolidation.Records, cached, sm, tracker, log); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (p *SearchPipeline) validate(ctx context.Context, req model.SearchRequest, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) (model.Sector, adapter.FetchParams, int, int, error) {
	p.push(tracker, "validating", 5, "validando parametros da busca")

	if err := sm.Transition(model.StateValidating, "validate", nil); err != nil {
		return model.Sector{}, adapter.FetchParams{}, 0, 0, p.fail(ctx, sm, tracker, log, err)
	}

	sector, err := p.Sectors.GetSector(ctx, req.SetorID)
	if err != nil {
		return model.Sector{}, adapter.FetchParams{}, 0, 0, p.fail(ctx, sm, tracker, log, eris.Wrapf(err, "unknown sector %q", req.SetorID))
	}

	start, end, err := dateWindow(req)
	if err != nil {
		return model.Sector{}, adapter.FetchParams{}, 0, 0, p.fail(ctx, sm, tracker, log, err)
	}

	var quotaUsed, quotaRemaining int
	if p.Quota != nil {
		used, remaining, quotaErr := p.Quota.CheckAndConsume(ctx, req.UserID)
		if quotaErr != nil {
			return model.Sector{}, adapter.FetchParams{}, 0, 0, p.fail(ctx, sm, tracker, log, quotaErr)
		}
		if remaining < 0 {
			return model.Sector{}, adapter.FetchParams{}, 0, 0, p.fail(ctx, sm, tracker, log, eris.New("daily search quota exceeded"))
		}
		quotaUsed, quotaRemaining = used, remaining
	}

	params := adapter.FetchParams{
		DataInicial: start,
		DataFinal:   end,
		UFs:         req.UFs,
		Modalities:  req.Modalidades,
	}
	return sector, params, quotaUsed, quotaRemaining, nil
}

// fromCache reports whether a fresh or still-authoritative-degraded cache
// entry covers this request's canonical params hash. A hit only replaces
// the fetch stage (§4.4 caches raw consolidated records, not the scored
// response) — filtering, scoring, and summary generation still run fresh
// every time so they always reflect the sector's current configuration.
func (p *SearchPipeline) fromCache(ctx context.Context, req model.SearchRequest, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) (consolidate.ConsolidationResult, bool) {
	if p.Cache == nil {
		return consolidate.ConsolidationResult{}, false
	}
	hash := cache.ParamsHash(req)
	entry, status := p.Cache.Get(ctx, hash)
	if entry == nil || status == model.CacheExpired {
		return consolidate.ConsolidationResult{}, false
	}

	if err := sm.Transition(model.StateFetching, "cache_hit", map[string]any{"tier": string(entry.Tier)}); err != nil {
		log.Error("pipeline: cache hit but FETCHING transition rejected", zap.Error(err))
		return consolidate.ConsolidationResult{}, false
	}
	p.push(tracker, "fetching", 40, "resultado bruto servido do cache")

	return consolidate.ConsolidationResult{Records: entry.Row.Results}, true
}

func (p *SearchPipeline) execute(ctx context.Context, params adapter.FetchParams, sources Sources, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) (consolidate.ConsolidationResult, error) {
	if err := sm.Transition(model.StateFetching, "execute", nil); err != nil {
		return consolidate.ConsolidationResult{}, p.fail(ctx, sm, tracker, log, err)
	}
	p.push(tracker, "fetching", 20, fmt.Sprintf("consultando %d fontes", len(sources.Enabled)))

	result, err := p.Consolidator.Run(ctx, consolidate.Request{
		Params:   params,
		Enabled:  sources.Enabled,
		Fallback: sources.Fallback,
	})
	if err != nil {
		return consolidate.ConsolidationResult{}, p.fail(ctx, sm, tracker, log, err)
	}

	if len(result.Records) == 0 && len(result.FailedUFs) > 0 {
		return consolidate.ConsolidationResult{}, p.fail(ctx, sm, tracker, log, eris.New("every source failed to return results"))
	}

	p.push(tracker, "fetching", 40, fmt.Sprintf("%d registros brutos recebidos", len(result.Records)))
	return result, nil
}

func (p *SearchPipeline) filterStage(ctx context.Context, records []model.UnifiedProcurement, sector model.Sector, req model.SearchRequest, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) (filter.Result, error) {
	if err := sm.Transition(model.StateFiltering, "filter", nil); err != nil {
		return filter.Result{}, p.fail(ctx, sm, tracker, log, err)
	}
	p.push(tracker, "filtering", 55, "aplicando filtros de setor")

	result := p.FilterEngine.Run(ctx, records, sector, req)
	if result.Relaxed {
		log.Info("pipeline: filter relaxation fallback applied", zap.Int("accepted", len(result.Accepted)))
	}
	p.push(tracker, "filtering", 65, fmt.Sprintf("%d licitacoes aprovadas", len(result.Accepted)))
	return result, nil
}

func (p *SearchPipeline) enrich(consolidation consolidate.ConsolidationResult, filtered filter.Result, sector model.Sector, req model.SearchRequest, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) []model.LicitacaoView {
	if err := sm.Transition(model.StateEnriching, "enrich", nil); err != nil {
		log.Error("pipeline: enrich transition rejected, continuing with partial state", zap.Error(err))
	}
	p.push(tracker, "enriching", 75, "calculando relevancia e viabilidade")

	now := time.Now()
	totalTerms := len(sector.Keywords) + len(req.CustomTerms)
	views := make([]model.LicitacaoView, 0, len(filtered.Accepted))
	for _, rec := range filtered.Accepted {
		matched := filtered.MatchedTerms[rec.DedupKey]
		phraseMatches := countPhraseMatches(matched)
		relevance := score.Relevance(len(matched), totalTerms, phraseMatches)
		_, band := score.Viability(rec, req, sector, p.Cfg.Score, now)

		view := model.LicitacaoView{
			PNCPID:           rec.DedupKey,
			Objeto:           rec.Objeto,
			Orgao:            rec.Orgao,
			UF:               rec.UF,
			Valor:            rec.ValorEstimado,
			Link:             rec.LinkPortal,
			DataPublicacao:   rec.DataPublicacao,
			DataAbertura:     rec.DataAbertura,
			DataEncerramento: rec.DataEncerramento,
			DiasRestantes:    daysRemaining(rec.DataEncerramento, now),
			Urgencia:         urgencyLabel(rec.DataEncerramento, now),
			RelevanceScore:   relevance,
			MatchedTerms:     matched,
			Confidence:       score.DeriveConfidence(classificationSource(rec, matched)),
			ViabilityBand:    band,
		}
		views = append(views, view)
	}

	score.SortLicitacoes(views)
	return views
}

// generatedSummary bundles stage 6's output: the executive summary plus,
// when the report is already available, its signed download URL.
type generatedSummary struct {
	Resumo      model.Resumo
	DownloadURL *string
	Pending     bool // true when the job queue took the work off-request-path
}

func (p *SearchPipeline) generate(ctx context.Context, req model.SearchRequest, sector model.Sector, views []model.LicitacaoView, stats model.FilterStats, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) (generatedSummary, error) {
	if err := sm.Transition(model.StateGenerating, "generate", nil); err != nil {
		return generatedSummary{}, p.fail(ctx, sm, tracker, log, err)
	}
	p.push(tracker, "generating", 85, "gerando resumo executivo")

	if p.Jobs != nil {
		return p.generateViaJobs(ctx, req.SearchID, sector, views, stats, tracker), nil
	}

	resumo, err := p.Summarizer.GenerateSummary(ctx, sector.Name, views, stats)
	if err != nil {
		log.Warn("pipeline: summary generation failed, returning results without a narrative summary", zap.Error(err))
		resumo = fallbackResumo(views)
	}
	return generatedSummary{Resumo: resumo}, nil
}

// generateViaJobs dispatches both background jobs then makes a best-effort
// synchronous check for each result (§4.8 step 6). When the job queue is
// unavailable, jobqueue's Dispatcher runs the work inline before its
// Dispatch* call returns, so the Get* calls below already find a result
// and the caller sees the exact same synchronous behavior it always did.
// When the queue is available, the jobs haven't run yet; the response
// carries a pending marker and the SSE stream later emits llm_ready /
// excel_ready once the worker publishes its result.
func (p *SearchPipeline) generateViaJobs(ctx context.Context, searchID string, sector model.Sector, views []model.LicitacaoView, stats model.FilterStats, tracker *searchstate.Tracker) generatedSummary {
	p.Jobs.DispatchSummary(ctx, searchID, sector.Name, views, stats)
	p.Jobs.DispatchReport(ctx, searchID, views)

	out := generatedSummary{}
	resumo, ready, err := p.Jobs.GetSummary(ctx, searchID)
	switch {
	case err != nil:
		zap.L().Warn("pipeline: checking dispatched summary failed", zap.Error(err))
		out.Resumo = fallbackResumo(views)
	case ready:
		out.Resumo = resumo
	default:
		out.Resumo = pendingResumo(views)
		out.Pending = true
	}

	downloadURL, urlReady, err := p.Jobs.GetReport(ctx, searchID)
	if err != nil {
		zap.L().Warn("pipeline: checking dispatched report failed", zap.Error(err))
	} else if urlReady {
		out.DownloadURL = &downloadURL
	} else {
		out.Pending = true
	}

	if out.Pending {
		p.push(tracker, "generating", 90, "resumo e relatorio em processamento em segundo plano")
	}

	return out
}

// pendingResumo is a placeholder summary for a response whose real
// narrative is still generating off the request path; the client re-reads
// GET /search-results once the SSE stream reports llm_ready.
func pendingResumo(views []model.LicitacaoView) model.Resumo {
	r := fallbackResumo(views)
	r.ResumoExecutivo = "resumo executivo em processamento; consulte novamente em instantes."
	return r
}

func (p *SearchPipeline) persist(ctx context.Context, req model.SearchRequest, resp model.SearchResponse, rawRecords []model.UnifiedProcurement, servedFromCache bool, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger) error {
	if err := sm.Transition(model.StatePersisting, "persist", nil); err != nil {
		return p.fail(ctx, sm, tracker, log, err)
	}
	p.push(tracker, "persisting", 95, "salvando resultado")

	if p.ResultStore != nil {
		if err := p.ResultStore.SaveSearchResult(ctx, req.SearchID, resp); err != nil {
			return p.fail(ctx, sm, tracker, log, eris.Wrap(err, "persist search result"))
		}
	}
	if p.Cache != nil && !servedFromCache {
		now := time.Now()
		row := model.CacheRow{
			ParamsHash:    cache.ParamsHash(req),
			UserID:        req.UserID,
			Results:       rawRecords,
			SearchParams:  req,
			FetchedAt:     now,
			LastSuccessAt: now,
			Coverage:      map[string]any{"succeeded_ufs": resp.SucceededUFs, "failed_ufs": resp.FailedUFs},
		}
		if err := p.Cache.Put(ctx, row); err != nil {
			log.Warn("pipeline: failed to write cache entry", zap.Error(err))
		}
	}

	if err := sm.Transition(model.StateCompleted, "complete", nil); err != nil {
		return p.fail(ctx, sm, tracker, log, err)
	}
	p.push(tracker, "complete", 100, "busca concluida")
	return nil
}

func (p *SearchPipeline) assembleResponse(req model.SearchRequest, consolidation consolidate.ConsolidationResult, filtered filter.Result, views []model.LicitacaoView, generated generatedSummary) model.SearchResponse {
	state := model.ResponseLive
	var guidance string
	if len(consolidation.FailedUFs) > 0 {
		state = model.ResponseDegraded
		guidance = "algumas fontes nao responderam; os resultados podem estar incompletos"
	}
	if len(views) == 0 && len(consolidation.FailedUFs) > 0 {
		state = model.ResponseEmptyFailure
	}

	return model.SearchResponse{
		Resumo:              generated.Resumo,
		Licitacoes:          views,
		ExcelAvailable:      generated.DownloadURL != nil,
		DownloadURL:         generated.DownloadURL,
		TotalRaw:            len(consolidation.Records),
		TotalFiltrado:       len(views),
		FilterStats:         filtered.Stats,
		ResponseState:       state,
		IsPartial:           len(consolidation.FailedUFs) > 0,
		FailedUFs:           consolidation.FailedUFs,
		SucceededUFs:        consolidation.SucceededUFs,
		DegradationGuidance: guidance,
		SearchID:            req.SearchID,
	}
}

// fail transitions the machine to FAILED, pushes a terminal error frame,
// and wraps err for the caller. It tolerates the machine already being
// terminal (e.g. a concurrent cancellation already failed it).
func (p *SearchPipeline) fail(ctx context.Context, sm *searchstate.StateMachine, tracker *searchstate.Tracker, log *zap.Logger, err error) error {
	if transErr := sm.Transition(model.StateFailed, "failed", map[string]any{"error": err.Error()}); transErr != nil {
		log.Error("pipeline: search failed and could not record FAILED transition", zap.Error(transErr))
	}
	tracker.Push(ctx, model.ProgressEvent{Stage: "error", Progress: -1, Message: err.Error(), Timestamp: time.Now()})
	log.Error("pipeline: search failed", zap.Error(err))
	return err
}

func (p *SearchPipeline) push(tracker *searchstate.Tracker, stage string, progress int, message string) {
	tracker.Push(context.Background(), model.ProgressEvent{
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func dateWindow(req model.SearchRequest) (time.Time, time.Time, error) {
	if req.ModoBusca == model.ModoBuscaAbertas {
		end := time.Now()
		return end.Add(-abertasWindow), end, nil
	}
	start, err := time.Parse("2006-01-02", req.DataInicial)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid data_inicial %q", req.DataInicial)
	}
	end, err := time.Parse("2006-01-02", req.DataFinal)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "invalid data_final %q", req.DataFinal)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.New("data_final must not precede data_inicial")
	}
	return start, end, nil
}

func daysRemaining(deadline, now time.Time) int {
	if deadline.IsZero() {
		return 0
	}
	d := deadline.Sub(now)
	days := int(d.Hours() / 24)
	if d > 0 && days == 0 {
		return 1
	}
	return days
}

func urgencyLabel(deadline, now time.Time) string {
	days := daysRemaining(deadline, now)
	switch {
	case deadline.IsZero():
		return ""
	case days < 0:
		return "encerrada"
	case days <= 2:
		return "urgente"
	case days <= 5:
		return "atencao"
	default:
		return "normal"
	}
}

func countPhraseMatches(matched []string) int {
	count := 0
	for _, m := range matched {
		if hasSpace(m) {
			count++
		}
	}
	return count
}

func hasSpace(s string) bool {
	for _, r := range s {
		if r == ' ' {
			return true
		}
	}
	return false
}

// classificationSource infers which filter stage ultimately accepted a
// record, which in turn drives its confidence tier (§4.6). Exact keyword
// matches (no synonym/arbiter involvement) are high confidence; anything
// carried by MatchedTerms with no phrase match and a thin term list falls
// back to medium so it still sorts behind clearer hits.
func classificationSource(rec model.UnifiedProcurement, matched []string) score.ClassificationSource {
	if len(matched) == 0 {
		return score.SourceLLMConservative
	}
	for _, m := range matched {
		if hasSpace(m) {
			return score.SourceExactKeyword
		}
	}
	if len(matched) >= 2 {
		return score.SourceExactKeyword
	}
	return score.SourceLLMStandard
}

func fallbackResumo(views []model.LicitacaoView) model.Resumo {
	var total float64
	destaques := make([]string, 0, 3)
	for i, v := range views {
		total += v.Valor
		if i < 3 {
			destaques = append(destaques, v.Objeto)
		}
	}
	return model.Resumo{
		ResumoExecutivo:    fmt.Sprintf("%d oportunidades encontradas, valor total estimado de R$ %s.", len(views), strconv.FormatFloat(total, 'f', 2, 64)),
		TotalOportunidades: len(views),
		ValorTotal:         total,
		Destaques:          destaques,
	}
}
