package jobqueue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/model"
)

func TestCoordinator_InlinePathResolvesSynchronously(t *testing.T) {
	w, _ := newTestWorker(t)
	c := &Coordinator{
		Dispatcher: &Dispatcher{Queue: NewQueue(nil), Inline: w},
		Results:    w.Results,
	}

	c.DispatchSummary(context.Background(), "search-1", "TI", []model.LicitacaoView{{Objeto: "x", Valor: 10}}, model.FilterStats{})
	c.DispatchReport(context.Background(), "search-1", []model.LicitacaoView{{Objeto: "x"}})

	resumo, ready, err := c.GetSummary(context.Background(), "search-1")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, "resumo", resumo.ResumoExecutivo)

	url, ready, err := c.GetReport(context.Background(), "search-1")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.NotEmpty(t, url)
}

func TestCoordinator_QueuedPathReportsNotReady(t *testing.T) {
	q, _ := newTestQueue(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	results := NewResultStore(client, 0)

	c := &Coordinator{
		Dispatcher: &Dispatcher{Queue: q, Inline: &fakeInlineRunner{}},
		Results:    results,
	}

	c.DispatchSummary(context.Background(), "search-2", "TI", nil, model.FilterStats{})

	_, ready, err := c.GetSummary(context.Background(), "search-2")
	require.NoError(t, err)
	assert.False(t, ready)
}
