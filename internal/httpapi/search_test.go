package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/adapter"
	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/consolidate"
	"github.com/sells-group/procsearch/internal/filter"
	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/pipeline"
	"github.com/sells-group/procsearch/internal/searchstate"
)

type fakeAdapter struct {
	records []model.UnifiedProcurement
}

func (f *fakeAdapter) Metadata() model.SourceMetadata {
	return model.SourceMetadata{Name: "pncp", Code: "pncp", Priority: 1}
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) (model.SourceStatus, error) {
	return model.SourceAvailable, nil
}
func (f *fakeAdapter) Fetch(ctx context.Context, params adapter.FetchParams) (<-chan adapter.ProcurementOrErr, error) {
	out := make(chan adapter.ProcurementOrErr, len(f.records))
	for _, r := range f.records {
		out <- adapter.ProcurementOrErr{Record: r}
	}
	close(out)
	return out, nil
}
func (f *fakeAdapter) Normalize(raw map[string]any) (model.UnifiedProcurement, error) {
	return model.UnifiedProcurement{}, nil
}
func (f *fakeAdapter) Close() error { return nil }

type fakeSectors struct{ sector model.Sector }

func (f *fakeSectors) GetSector(ctx context.Context, setorID string) (model.Sector, error) {
	return f.sector, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) GenerateSummary(ctx context.Context, sectorName string, accepted []model.LicitacaoView, stats model.FilterStats) (model.Resumo, error) {
	return model.Resumo{ResumoExecutivo: "resumo de teste", TotalOportunidades: len(accepted)}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sector := model.Sector{
		ID:   "ti",
		Name: "Tecnologia da Informacao",
		Keywords: map[string]struct{}{
			"software": {},
		},
	}
	p := &pipeline.SearchPipeline{
		Cfg:          &config.Config{Server: config.ServerConfig{Port: 0, MaxSSEConnsPerUser: 2}},
		Sectors:      &fakeSectors{sector: sector},
		Consolidator: consolidate.New(),
		FilterEngine: filter.NewEngine(config.FilterConfig{DensityHigh: 0.05, DensityLow: 0.01}, config.FeatureFlags{}, nil, nil, nil),
		Summarizer:   fakeSummarizer{},
	}
	registry := searchstate.NewRegistry(time.Minute, nil, 16)

	srv := New(p.Cfg, p, registry, nil, nil, func() pipeline.Sources {
		return pipeline.Sources{Enabled: []adapter.Adapter{&fakeAdapter{records: []model.UnifiedProcurement{
			{
				DedupKey:         "k1",
				Objeto:           "aquisicao de licencas de software de gestao",
				Orgao:            "Prefeitura de Recife",
				UF:               "PE",
				ValorEstimado:    100000,
				DataPublicacao:   time.Now().Add(-24 * time.Hour),
				DataEncerramento: time.Now().Add(10 * 24 * time.Hour),
			},
		}}}
	})
	return srv
}

func TestHandleSearch_HappyPathReturnsLiveResponse(t *testing.T) {
	srv := newTestServer(t)

	body := `{"setor_id":"ti","ufs":["PE"],"data_inicial":"` + time.Now().Add(-48*time.Hour).Format("2006-01-02") + `","data_final":"` + time.Now().Format("2006-01-02") + `","search_id":"search-1"}`
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.ResponseLive, resp.ResponseState)
	assert.Len(t, resp.Licitacoes, 1)
}

func TestHandleSearch_MissingSetorIDReturns400(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_InvalidJSONReturns400(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(`not json`))
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearchResults_UnknownSearchIDReturns503WithoutStore(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/search-results/does-not-exist", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealthReady_ReportsReadyFlagAndUptime(t *testing.T) {
	srv := newTestServer(t)
	srv.SetReady(true)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body readyBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 0.0)
}

func TestHandleFilterStats_RequiresAdminHeader(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/filter-stats", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/admin/filter-stats", nil)
	req2.Header.Set("X-Is-Admin", "true")
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestHandleSearchProgress_StreamsUntilTerminalEvent(t *testing.T) {
	srv := newTestServer(t)
	sm, tracker := srv.Registry.Register("search-sse")
	_ = sm
	tracker.Push(context.Background(), model.ProgressEvent{Stage: "fetching", Progress: 20, Timestamp: time.Now()})
	tracker.Push(context.Background(), model.ProgressEvent{Stage: "complete", Progress: 100, Timestamp: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/search-progress/search-sse", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, `"stage":"fetching"`)
	assert.Contains(t, body, `"stage":"complete"`)
}

func TestHandleHealthCache_NoCacheConfiguredReturnsEmptyBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/cache", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body cacheHealthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Tiers)
}
