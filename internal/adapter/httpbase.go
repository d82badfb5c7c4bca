package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/resilience"
)

// HTTPClientOptions configures the shared HTTP plumbing used by every
// concrete adapter. Grounded on the teacher's fetcher.HTTPOptions, widened
// with the resilience primitives a source integration needs (§4.1, §4.2).
type HTTPClientOptions struct {
	UserAgent string
	Breaker   *resilience.DistributedBreaker
	Limiter   *resilience.RateLimiter
	Timeout   *resilience.AdaptiveTimeout
	Retry     resilience.RetryConfig
}

// HTTPClient is the shared request plumbing every concrete adapter
// composes: circuit breaker + adaptive rate limit + adaptive timeout +
// retry-on-transient, matching the teacher's HTTPFetcher.doWithRetry shape
// but generalized to decode JSON into a raw map for Normalize instead of
// returning an io.ReadCloser.
type HTTPClient struct {
	client *http.Client
	opts   HTTPClientOptions
	source string
}

// NewHTTPClient creates the shared client for one named source.
func NewHTTPClient(source string, opts HTTPClientOptions) *HTTPClient {
	if opts.UserAgent == "" {
		opts.UserAgent = "procsearch/1.0"
	}
	return &HTTPClient{
		client: &http.Client{},
		opts:   opts,
		source: source,
	}
}

// GetJSON performs a rate-limited, circuit-breaker-guarded, retried GET
// and decodes the JSON body into a map. It translates the response into
// the §4.1 error taxonomy so callers (and the consolidation service) can
// branch on retryability without inspecting HTTP status codes directly.
func (c *HTTPClient) GetJSON(ctx context.Context, url string) (map[string]any, error) {
	if c.opts.Breaker != nil && !c.opts.Breaker.CanExecute() {
		return nil, &APIError{Source: c.source, Status: http.StatusServiceUnavailable, Body: "circuit open"}
	}
	if c.opts.Limiter != nil && !c.opts.Limiter.Allow(ctx, "source:"+c.source, 1) {
		return nil, &RateLimitError{Source: c.source}
	}

	timeout := 30 * time.Second
	if c.opts.Timeout != nil {
		timeout = c.opts.Timeout.Timeout()
	}

	result, err := resilience.DoVal(ctx, c.opts.Retry, func(ctx context.Context) (map[string]any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		started := time.Now()
		body, status, err := c.doGet(reqCtx, url)
		if err != nil {
			if reqCtx.Err() != nil {
				return nil, &TimeoutError{Source: c.source, Cause: err}
			}
			return nil, eris.Wrap(err, "http get")
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, &AuthError{Source: c.source, Detail: string(body)}
		case status == http.StatusTooManyRequests:
			return nil, &RateLimitError{Source: c.source}
		case status >= 300:
			return nil, &APIError{Source: c.source, Status: status, Body: string(body)}
		}

		if c.opts.Timeout != nil {
			c.opts.Timeout.Observe(time.Since(started))
		}

		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &ParseError{Source: c.source, Field: "<body>", Value: err.Error()}
		}
		return parsed, nil
	})

	if c.opts.Breaker != nil {
		if err != nil {
			c.opts.Breaker.RecordFailure(ctx)
		} else {
			c.opts.Breaker.RecordSuccess(ctx)
		}
	}
	return result, err
}

func (c *HTTPClient) doGet(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "read body")
	}
	return body, resp.StatusCode, nil
}

// HealthCheck performs a cheap GET against url and classifies the outcome
// into a SourceStatus, bounded by a 5s timeout regardless of the adapter's
// adaptive timeout (§4.1: "must return within 5s; never raises").
func (c *HTTPClient) HealthCheck(ctx context.Context, url string) (model.SourceStatus, error) {
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, code, getErr := c.doGet(hctx, url)
	if getErr != nil {
		zap.L().Warn("adapter health check failed", zap.String("source", c.source), zap.Error(getErr))
		return model.SourceUnavailable, nil
	}
	if code >= 500 {
		return model.SourceDegraded, nil
	}
	return model.SourceAvailable, nil
}
