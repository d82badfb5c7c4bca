package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucketScript implements an atomic token-bucket check-and-decrement:
// refill based on elapsed time, then allow iff at least one token remains.
var tokenBucketScript = redis.NewScript(`
local key = ARGV[1]
local capacity = tonumber(ARGV[2])
local refill_per_sec = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[4])

local raw = redis.call("GET", key)
local tokens = capacity
local last_ms = now_ms

if raw then
	local rec = cjson.decode(raw)
	tokens = rec.tokens
	last_ms = rec.last_ms
end

local elapsed_sec = (now_ms - last_ms) / 1000.0
if elapsed_sec > 0 then
	tokens = math.min(capacity, tokens + elapsed_sec * refill_per_sec)
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("SET", key, cjson.encode({tokens = tokens, last_ms = now_ms}), "EX", 120)
return allowed
`)

// RateLimiter is a distributed, per-user/per-source token bucket
// (N requests / 60s). On Redis error it fails open — allows the request
// and logs a warning — since an outage in the limiter must never create an
// outage in the main flow (§4.2).
type RateLimiter struct {
	client   *redis.Client
	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// NewRateLimiter wraps an optional Redis client. client may be nil, in
// which case every call uses the in-process fallback.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client:   client,
		fallback: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request identified by key may proceed, given a
// budget of n requests per 60 seconds.
func (l *RateLimiter) Allow(ctx context.Context, key string, n int) bool {
	if l.client == nil {
		return l.allowLocal(key, n)
	}

	refillPerSec := float64(n) / 60.0
	res, err := tokenBucketScript.Run(ctx, l.client, nil, key, n, refillPerSec, time.Now().UnixMilli()).Result()
	if err != nil {
		zap.L().Warn("resilience: rate limiter store unreachable, failing open",
			zap.String("key", key), zap.Error(err))
		return true
	}
	allowed, ok := res.(int64)
	if !ok {
		return true
	}
	return allowed == 1
}

func (l *RateLimiter) allowLocal(key string, n int) bool {
	l.mu.Lock()
	lim, ok := l.fallback[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
		l.fallback[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
