package searchstate

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
)

type entry struct {
	sm        *StateMachine
	tracker   *Tracker
	expiresAt time.Time
}

// Registry is the process-local set of in-flight searches. Each entry is
// removed once its state machine reaches a terminal state or its TTL
// elapses, whichever comes first. The TTL should be set at least as long
// as the longest external fetch timeout in the pipeline so a slow source
// can't outlive its own tracker.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	ttl       time.Duration
	redis     *redis.Client
	queueSize int
	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewRegistry builds a registry. redisClient may be nil for a
// single-replica deployment.
func NewRegistry(ttl time.Duration, redisClient *redis.Client, queueSize int) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		entries:   make(map[string]*entry),
		ttl:       ttl,
		redis:     redisClient,
		queueSize: queueSize,
		sweepStop: make(chan struct{}),
	}
}

// Register creates a fresh state machine and tracker for searchID.
func (r *Registry) Register(searchID string) (*StateMachine, *Tracker) {
	sm := NewStateMachine(searchID)
	tr := NewTracker(searchID, r.redis, r.queueSize)

	r.mu.Lock()
	r.entries[searchID] = &entry{sm: sm, tracker: tr, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return sm, tr
}

// Get returns the state machine and tracker registered for searchID, if
// any, refreshing its expiry on access.
func (r *Registry) Get(searchID string) (*StateMachine, *Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[searchID]
	if !ok {
		return nil, nil, false
	}
	e.expiresAt = time.Now().Add(r.ttl)
	return e.sm, e.tracker, true
}

// Remove drops a search's bookkeeping, typically called once its state
// machine reaches a terminal state.
func (r *Registry) Remove(searchID string) {
	r.mu.Lock()
	e, ok := r.entries[searchID]
	delete(r.entries, searchID)
	r.mu.Unlock()
	if ok {
		e.tracker.Close()
	}
}

// WaitForTracker polls the registry for searchID to appear, emitting a
// heartbeat via onHeartbeat at least every HeartbeatInterval in the
// meantime. It returns once the tracker is registered, ctx is done, or
// timeout elapses.
func (r *Registry) WaitForTracker(ctx context.Context, searchID string, timeout time.Duration, onHeartbeat func(model.ProgressEvent)) (*StateMachine, *Tracker, bool) {
	deadline := time.Now().Add(timeout)
	pollTicker := time.NewTicker(200 * time.Millisecond)
	defer pollTicker.Stop()
	heartbeatTicker := time.NewTicker(HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		if sm, tr, ok := r.Get(searchID); ok {
			return sm, tr, true
		}
		if time.Now().After(deadline) {
			return nil, nil, false
		}
		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-heartbeatTicker.C:
			if onHeartbeat != nil {
				onHeartbeat(Heartbeat("waiting"))
			}
		case <-pollTicker.C:
		}
	}
}

// StartSweeper launches a background goroutine that evicts expired or
// terminal entries every interval, until the returned func is called.
func (r *Registry) StartSweeper(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-r.sweepStop:
				return
			case <-ticker.C:
				r.sweepExpired()
			}
		}
	}()
	return func() {
		r.sweepOnce.Do(func() { close(r.sweepStop) })
	}
}

func (r *Registry) sweepExpired() {
	now := time.Now()
	var toClose []*Tracker

	r.mu.Lock()
	for id, e := range r.entries {
		if e.sm.Current().IsTerminal() || now.After(e.expiresAt) {
			toClose = append(toClose, e.tracker)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, tr := range toClose {
		tr.Close()
	}
	if len(toClose) > 0 {
		zap.L().Debug("searchstate: swept expired or terminal searches", zap.Int("count", len(toClose)))
	}
}
