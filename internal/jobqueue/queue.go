// Package jobqueue dispatches the two off-request-path jobs a completed
// search schedules — the LLM executive summary and the xlsx report bytes —
// onto a Redis-list-backed queue, with an inline fallback when Redis (or
// the worker fleet behind it) is unavailable (§4.9). Correctness never
// depends on the queue: only latency does.
package jobqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// JobType names one of the two background jobs.
type JobType string

const (
	JobSummary JobType = "llm_summary"
	JobReport  JobType = "report_generation"
)

// listKey is the Redis list every worker BRPOPs from.
const listKey = "jobqueue:tasks"

// availabilityProbeTimeout bounds how long Dispatch waits on a PING before
// concluding the queue is unavailable and falling back to inline execution.
const availabilityProbeTimeout = 500 * time.Millisecond

// Job is the wire envelope pushed onto the Redis list. Payload is the
// job-specific argument, deferred to json.RawMessage so Queue itself never
// needs to know about SummaryPayload/ReportPayload.
type Job struct {
	Type       JobType         `json:"type"`
	SearchID   string          `json:"search_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a thin Redis-list wrapper. A nil *redis.Client makes every
// operation behave as if the queue were unavailable, so callers can build a
// Queue unconditionally and let IsAvailable steer them to the inline path.
type Queue struct {
	client *redis.Client
}

// NewQueue builds a Queue. client may be nil for deployments with no Redis.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// IsAvailable reports whether the queue can currently accept and serve jobs
// (§4.9's is_queue_available). A nil client, a PING timeout, or any PING
// error all count as unavailable.
func (q *Queue) IsAvailable(ctx context.Context) bool {
	if q.client == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()
	return q.client.Ping(pctx).Err() == nil
}

// Enqueue pushes job onto the list for a worker to pick up.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if q.client == nil {
		return eris.New("jobqueue: no redis client configured")
	}
	body, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "jobqueue: marshal job")
	}
	if err := q.client.LPush(ctx, listKey, body).Err(); err != nil {
		return eris.Wrap(err, "jobqueue: lpush")
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, FIFO (BRPOP against a
// list that is LPUSHed onto).
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if q.client == nil {
		return nil, eris.New("jobqueue: no redis client configured")
	}
	res, err := q.client.BRPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "jobqueue: brpop")
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, eris.New("jobqueue: unexpected brpop reply shape")
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, eris.Wrap(err, "jobqueue: unmarshal job")
	}
	return &job, nil
}
