package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// resultKind names which of a search's two background results a key holds.
type resultKind string

const (
	resultSummary resultKind = "summary"
	resultReport  resultKind = "report"
)

// ResultStore persists job results under result:<search_id>:<kind> with a
// 1h TTL (§4.9) and lets the HTTP layer look them up by search_id after the
// route has already returned.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultStore builds a ResultStore. ttl defaults to 1h when <= 0.
func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultStore{client: client, ttl: ttl}
}

func resultKey(searchID string, kind resultKind) string {
	return fmt.Sprintf("result:%s:%s", searchID, kind)
}

// SummaryResult is what GetSummary returns once the LLM summary job completes.
type SummaryResult struct {
	Resumo json.RawMessage `json:"resumo"`
	Err    string          `json:"error,omitempty"`
}

// ReportResult is what GetReport returns once the report job completes.
type ReportResult struct {
	DownloadURL string `json:"download_url,omitempty"`
	Err         string `json:"error,omitempty"`
}

func (s *ResultStore) putJSON(ctx context.Context, key string, v any) error {
	if s.client == nil {
		return eris.New("jobqueue: no redis client configured for result store")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "jobqueue: marshal result")
	}
	return eris.Wrap(s.client.Set(ctx, key, body, s.ttl).Err(), "jobqueue: set result")
}

// PutSummary records a completed (or failed) summary job result.
func (s *ResultStore) PutSummary(ctx context.Context, searchID string, result SummaryResult) error {
	return s.putJSON(ctx, resultKey(searchID, resultSummary), result)
}

// PutReport records a completed (or failed) report job result.
func (s *ResultStore) PutReport(ctx context.Context, searchID string, result ReportResult) error {
	return s.putJSON(ctx, resultKey(searchID, resultReport), result)
}

// GetSummary returns the recorded summary job result, if any, and whether
// it was found.
func (s *ResultStore) GetSummary(ctx context.Context, searchID string) (SummaryResult, bool, error) {
	var out SummaryResult
	ok, err := s.getJSON(ctx, resultKey(searchID, resultSummary), &out)
	return out, ok, err
}

// GetReport returns the recorded report job result, if any, and whether it
// was found.
func (s *ResultStore) GetReport(ctx context.Context, searchID string) (ReportResult, bool, error) {
	var out ReportResult
	ok, err := s.getJSON(ctx, resultKey(searchID, resultReport), &out)
	return out, ok, err
}

func (s *ResultStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	if s.client == nil {
		return false, eris.New("jobqueue: no redis client configured for result store")
	}
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "jobqueue: get result")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, eris.Wrap(err, "jobqueue: unmarshal result")
	}
	return true, nil
}
