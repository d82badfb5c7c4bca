package jobqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInlineRunner struct {
	summaryCalls int
	reportCalls  int
}

func (f *fakeInlineRunner) RunSummary(ctx context.Context, searchID string, payload SummaryPayload) {
	f.summaryCalls++
}
func (f *fakeInlineRunner) RunReport(ctx context.Context, searchID string, payload ReportPayload) {
	f.reportCalls++
}

func TestDispatcher_RunsInlineWhenQueueUnavailable(t *testing.T) {
	inline := &fakeInlineRunner{}
	d := &Dispatcher{Queue: NewQueue(nil), Inline: inline}

	d.DispatchSummary(context.Background(), "search-1", SummaryPayload{SectorName: "TI"})
	d.DispatchReport(context.Background(), "search-1", ReportPayload{})

	assert.Equal(t, 1, inline.summaryCalls)
	assert.Equal(t, 1, inline.reportCalls)
}

func TestDispatcher_EnqueuesWhenQueueAvailable(t *testing.T) {
	q, _ := newTestQueue(t)
	inline := &fakeInlineRunner{}
	d := &Dispatcher{Queue: q, Inline: inline}

	d.DispatchSummary(context.Background(), "search-2", SummaryPayload{SectorName: "TI"})

	job, err := q.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobSummary, job.Type)
	assert.Equal(t, "search-2", job.SearchID)
	assert.Equal(t, 0, inline.summaryCalls)
}
