package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueue(client), mr
}

func TestQueue_IsAvailable(t *testing.T) {
	q, mr := newTestQueue(t)
	assert.True(t, q.IsAvailable(context.Background()))

	mr.Close()
	assert.False(t, q.IsAvailable(context.Background()))
}

func TestQueue_NilClientIsNeverAvailable(t *testing.T) {
	q := NewQueue(nil)
	assert.False(t, q.IsAvailable(context.Background()))

	err := q.Enqueue(context.Background(), Job{Type: JobSummary, SearchID: "x"})
	assert.Error(t, err)
}

func TestQueue_EnqueueThenDequeueRoundTrips(t *testing.T) {
	q, _ := newTestQueue(t)
	job := Job{Type: JobReport, SearchID: "search-1", Payload: []byte(`{"a":1}`), EnqueuedAt: time.Now()}

	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Type, got.Type)
	assert.Equal(t, job.SearchID, got.SearchID)
	assert.JSONEq(t, string(job.Payload), string(got.Payload))
}

func TestQueue_DequeueTimesOutOnEmptyList(t *testing.T) {
	q, _ := newTestQueue(t)
	got, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}
