package jobqueue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/pkg/anthropic"
)

type fakeObjectStore struct {
	url string
	err error
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body []byte) (string, error) {
	return f.url, f.err
}

func newTestWorker(t *testing.T) (*Worker, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return &Worker{
		Queue:   NewQueue(client),
		Results: NewResultStore(client, 0),
		Redis:   client,
		Summaries: &AnthropicSummaryGenerator{
			Client: &fakeAnthropicClient{response: &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{{Text: "resumo"}},
			}},
			Model: "claude-haiku-4-5-20251001",
		},
		Reports: ReportGenerator{},
		Objects: &fakeObjectStore{url: "https://example.test/reports/search-1.xlsx"},
	}, client
}

func TestWorker_RunSummaryPersistsResult(t *testing.T) {
	w, _ := newTestWorker(t)

	w.RunSummary(context.Background(), "search-1", SummaryPayload{SectorName: "TI", Accepted: []model.LicitacaoView{{Objeto: "x", Valor: 10}}})

	result, ok, err := w.Results.GetSummary(context.Background(), "search-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, result.Err)

	var resumo model.Resumo
	require.NoError(t, json.Unmarshal(result.Resumo, &resumo))
	assert.Equal(t, "resumo", resumo.ResumoExecutivo)
}

func TestWorker_RunReportUploadsAndPersistsURL(t *testing.T) {
	w, _ := newTestWorker(t)

	w.RunReport(context.Background(), "search-2", ReportPayload{Licitacoes: []model.LicitacaoView{{Objeto: "x"}}})

	result, ok, err := w.Results.GetReport(context.Background(), "search-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.test/reports/search-1.xlsx", result.DownloadURL)
}

func TestWorker_RunReportWithoutObjectStoreRecordsError(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Objects = nil

	w.RunReport(context.Background(), "search-3", ReportPayload{Licitacoes: nil})

	result, ok, err := w.Results.GetReport(context.Background(), "search-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, result.Err)
}
