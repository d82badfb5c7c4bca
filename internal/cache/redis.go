package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

const redisKeyPrefix = "cache:"

var (
	hotTTL  = 6 * time.Hour
	warmTTL = 2 * time.Hour
	coldTTL = 30 * time.Minute
)

// RedisTier is the central KV tier of the cascade.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier wraps an existing Redis client.
func NewRedisTier(client *redis.Client) *RedisTier {
	return &RedisTier{client: client}
}

func (t *RedisTier) Name() TierName { return TierRedis }

func (t *RedisTier) Get(ctx context.Context, paramsHash string) (*model.CacheRow, error) {
	raw, err := t.client.Get(ctx, redisKeyPrefix+paramsHash).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "redis cache: get")
	}
	var row model.CacheRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, eris.Wrap(err, "redis cache: unmarshal")
	}
	return &row, nil
}

func (t *RedisTier) Put(ctx context.Context, row model.CacheRow) error {
	b, err := json.Marshal(row)
	if err != nil {
		return eris.Wrap(err, "redis cache: marshal")
	}
	return t.client.Set(ctx, redisKeyPrefix+row.ParamsHash, b, ttlForPriority(row.Priority)).Err()
}

func (t *RedisTier) Health(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// ttlForPriority implements the priority-keyed TTL from §4.4's write
// cascade: "KV store with TTL keyed to priority (hot > warm > cold)".
func ttlForPriority(p model.CachePriority) time.Duration {
	switch p {
	case model.PriorityHot:
		return hotTTL
	case model.PriorityWarm:
		return warmTTL
	default:
		return coldTTL
	}
}
