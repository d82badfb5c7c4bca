package resilience

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// circuitRecord is the shape persisted under key "cb:<name>" so that every
// process replica observes the same trips (§3 CircuitBreakerState, §4.2).
type circuitRecord struct {
	Failures       int       `json:"failures"`
	Threshold      int       `json:"threshold"`
	DegradedUntil  int64     `json:"degraded_until_epoch_ms"`
	LastFailureTS  int64     `json:"last_failure_ts"`
	CooldownSec    int       `json:"cooldown_sec"`
}

// recordScript atomically updates the circuit record and returns the
// resulting state as a 3-tuple [failures, degraded_until_ms, cooldown_sec].
// Run as a single Lua script so concurrent replicas never race the
// read-modify-write.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local success = ARGV[1] == "1"
local threshold = tonumber(ARGV[2])
local cooldown_sec = tonumber(ARGV[3])
local max_cooldown_sec = tonumber(ARGV[4])
local now_ms = tonumber(ARGV[5])

local raw = redis.call("GET", key)
local failures = 0
local degraded_until = 0
local cur_cooldown = cooldown_sec

if raw then
	local rec = cjson.decode(raw)
	failures = rec.failures
	degraded_until = rec.degraded_until_epoch_ms
	cur_cooldown = rec.cooldown_sec
end

if success then
	failures = 0
	degraded_until = 0
	cur_cooldown = cooldown_sec
else
	failures = failures + 1
	if failures >= threshold then
		-- exponential doubling of cooldown on repeated trips, capped.
		if degraded_until > now_ms then
			cur_cooldown = math.min(cur_cooldown * 2, max_cooldown_sec)
		else
			cur_cooldown = cooldown_sec
		end
		degraded_until = now_ms + (cur_cooldown * 1000)
	end
end

local rec = {failures = failures, threshold = threshold, degraded_until_epoch_ms = degraded_until, last_failure_ts = now_ms, cooldown_sec = cur_cooldown}
redis.call("SET", key, cjson.encode(rec), "EX", 86400)
return {failures, degraded_until, cur_cooldown}
`)

// CircuitStore is the shared persistence contract for distributed circuit
// breaker state. RedisCircuitStore implements it; a DistributedBreaker
// given a nil store keeps its state in-process only.
type CircuitStore interface {
	// RecordAndLoad atomically applies a success/failure outcome and
	// returns the resulting (failures, degradedUntil, cooldown).
	RecordAndLoad(ctx context.Context, name string, success bool, threshold int, cooldown, maxCooldown time.Duration) (failures int, degradedUntil time.Time, nextCooldown time.Duration, err error)
}

// RedisCircuitStore backs circuit-breaker state with Redis so multiple
// process replicas observe the same trips (§4.2).
type RedisCircuitStore struct {
	client *redis.Client
}

// NewRedisCircuitStore wraps an existing Redis client.
func NewRedisCircuitStore(client *redis.Client) *RedisCircuitStore {
	return &RedisCircuitStore{client: client}
}

func (s *RedisCircuitStore) RecordAndLoad(ctx context.Context, name string, success bool, threshold int, cooldown, maxCooldown time.Duration) (int, time.Time, time.Duration, error) {
	key := "cb:" + name
	successArg := "0"
	if success {
		successArg = "1"
	}
	res, err := recordScript.Run(ctx, s.client, []string{key},
		successArg, threshold, int(cooldown.Seconds()), int(maxCooldown.Seconds()), time.Now().UnixMilli()).Result()
	if err != nil {
		return 0, time.Time{}, 0, err
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		return 0, time.Time{}, 0, errBadScriptResult
	}
	failures := toInt64(vals[0])
	degradedMs := toInt64(vals[1])
	cooldownSec := toInt64(vals[2])

	var degradedUntil time.Time
	if degradedMs > 0 {
		degradedUntil = time.UnixMilli(degradedMs)
	}
	return int(failures), degradedUntil, time.Duration(cooldownSec) * time.Second, nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	}
	return 0
}

// DistributedBreaker wraps the in-process CircuitBreaker, mirroring its
// decisions through a CircuitStore when available and falling back to
// pure in-process state on store failure. Logging honors the ≤5-line
// operational budget per trip→cooldown→recovery cycle: exactly one
// WARNING on trip, one INFO on recovery, nothing on intermediate failures.
type DistributedBreaker struct {
	name        string
	local       *CircuitBreaker
	store       CircuitStore
	threshold   int
	cooldown    time.Duration
	maxCooldown time.Duration
	wasOpen     bool
}

// NewDistributedBreaker creates a breaker for the named service. store may
// be nil, in which case the breaker behaves exactly like the local
// CircuitBreaker.
func NewDistributedBreaker(name string, cfg CircuitBreakerConfig, maxCooldown time.Duration, store CircuitStore) *DistributedBreaker {
	return &DistributedBreaker{
		name:        name,
		local:       NewCircuitBreaker(cfg),
		store:       store,
		threshold:   cfg.FailureThreshold,
		cooldown:    cfg.ResetTimeout,
		maxCooldown: maxCooldown,
		wasOpen:     false,
	}
}

// CanExecute reports whether a call is currently allowed.
func (d *DistributedBreaker) CanExecute() bool {
	return d.local.State() != CircuitOpen
}

// RecordFailure reports a failed call and, when the shared store is
// reachable, synchronizes the trip decision across replicas.
func (d *DistributedBreaker) RecordFailure(ctx context.Context) {
	d.local.recordResult(errSentinelFailure)
	d.sync(ctx, false)
}

// RecordSuccess reports a successful call.
func (d *DistributedBreaker) RecordSuccess(ctx context.Context) {
	d.local.recordResult(nil)
	d.sync(ctx, true)
}

func (d *DistributedBreaker) sync(ctx context.Context, success bool) {
	if d.store == nil {
		d.logTransitionIfNeeded()
		return
	}
	failures, degradedUntil, _, err := d.store.RecordAndLoad(ctx, d.name, success, d.threshold, d.cooldown, d.maxCooldown)
	if err != nil {
		zap.L().Warn("resilience: circuit store unreachable, using local state",
			zap.String("service", d.name), zap.Error(err))
		d.logTransitionIfNeeded()
		return
	}
	if !degradedUntil.IsZero() && degradedUntil.After(time.Now()) {
		d.local.mu.Lock()
		d.local.state = CircuitOpen
		d.local.consecutiveFailures = failures
		d.local.lastFailureTime = time.Now()
		d.local.mu.Unlock()
	} else if success {
		d.local.Reset()
	}
	d.logTransitionIfNeeded()
}

// logTransitionIfNeeded emits exactly one WARNING on trip and one INFO on
// recovery — never on intermediate failures (anti-chatter invariant, §4.2).
func (d *DistributedBreaker) logTransitionIfNeeded() {
	open := d.local.State() == CircuitOpen
	if open && !d.wasOpen {
		zap.L().Warn("circuit breaker tripped", zap.String("service", d.name))
	} else if !open && d.wasOpen {
		zap.L().Info("circuit breaker recovered", zap.String("service", d.name))
	}
	d.wasOpen = open
}
