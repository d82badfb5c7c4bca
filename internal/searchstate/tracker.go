package searchstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
)

// HeartbeatInterval is the maximum gap between frames on a progress stream,
// including while a client is waiting for a tracker that hasn't registered
// yet.
const HeartbeatInterval = 15 * time.Second

func redisChannelName(searchID string) string {
	return "progress:" + searchID
}

// Heartbeat builds a keep-alive frame that carries no new information.
func Heartbeat(stage string) model.ProgressEvent {
	return model.ProgressEvent{Stage: stage, Progress: -1, Message: "heartbeat", Timestamp: time.Now()}
}

// PublishEvent publishes ev to searchID's progress channel directly,
// without a live Tracker. This is how a worker process in a different
// fleet than the one that ran the search reports a background job's
// completion (§4.9's llm_ready/excel_ready events): it never holds the
// Tracker the HTTP replica created, only the search_id and a Redis client.
func PublishEvent(ctx context.Context, client *redis.Client, searchID string, ev model.ProgressEvent) error {
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return client.Publish(ctx, redisChannelName(searchID), payload).Err()
}

// Tracker fans a single search's progress events out to whoever is
// streaming its results. Events are always pushed onto a bounded local
// channel so a same-process reader never blocks the pipeline; when a Redis
// client is configured they are also published on a per-search pub/sub
// channel so a different replica than the one running the search can
// still serve the SSE stream.
type Tracker struct {
	searchID string
	redis    *redis.Client
	mu       sync.Mutex
	local    chan model.ProgressEvent
	done     chan struct{}
	closed   bool
}

// NewTracker allocates a tracker with a bounded local queue of queueSize
// events. redisClient may be nil, in which case only same-process readers
// can observe events.
func NewTracker(searchID string, redisClient *redis.Client, queueSize int) *Tracker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Tracker{
		searchID: searchID,
		redis:    redisClient,
		local:    make(chan model.ProgressEvent, queueSize),
		done:     make(chan struct{}),
	}
}

// Push enqueues an event. If the local queue is saturated the oldest
// pending frame is dropped to make room; a client connected to the stream
// should treat a gap in progress numbers as an indication it missed
// frames, not as an error.
func (t *Tracker) Push(ctx context.Context, ev model.ProgressEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	select {
	case t.local <- ev:
	default:
		select {
		case <-t.local:
		default:
		}
		select {
		case t.local <- ev:
		default:
			zap.L().Warn("searchstate: progress queue saturated, dropping frame",
				zap.String("search_id", t.searchID), zap.String("stage", ev.Stage))
		}
	}

	if t.redis == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		zap.L().Warn("searchstate: failed to marshal progress event", zap.Error(err))
		return
	}
	if err := t.redis.Publish(ctx, redisChannelName(t.searchID), payload).Err(); err != nil {
		zap.L().Warn("searchstate: failed to publish progress event",
			zap.String("search_id", t.searchID), zap.Error(err))
	}
}

// Events returns the channel a same-process reader should select on. When
// Redis is configured, Subscribe should be preferred by readers running on
// a different replica than the one driving the search.
func (t *Tracker) Events() <-chan model.ProgressEvent {
	return t.local
}

// Subscribe opens a Redis pub/sub subscription for this search's progress
// channel and returns a channel of decoded events plus a cancel func. It is
// the cross-replica counterpart to Events. Returns ok=false when no Redis
// client is configured, in which case the caller should fall back to
// Events instead.
func (t *Tracker) Subscribe(ctx context.Context) (<-chan model.ProgressEvent, func(), bool) {
	if t.redis == nil {
		return nil, func() {}, false
	}
	sub := t.redis.Subscribe(ctx, redisChannelName(t.searchID))
	out := make(chan model.ProgressEvent, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					zap.L().Warn("searchstate: failed to decode progress event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { _ = sub.Close() }, true
}

// Close marks the tracker closed; further pushes are dropped. Close does
// not close the Events channel, since a reader may still be draining it.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
}
