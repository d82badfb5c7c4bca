package filter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/pkg/anthropic"
)

// Arbiter answers the Stage E gray-zone question: does this bid genuinely
// belong to the sector? Implementations may call out to an LLM; Classify
// must be conservative (false) when it cannot reach a confident verdict.
type Arbiter interface {
	Classify(ctx context.Context, sectorID, normalizedObjeto string) (bool, error)
}

const arbiterAnswerTTL = 24 * time.Hour

// CachedArbiter wraps an Arbiter with a 24h answer cache keyed by
// (sector_id, normalized_objeto_hash), backed by Redis so the cache is
// shared across replicas. Falls back to calling through uncached when Redis
// is unavailable.
type CachedArbiter struct {
	inner  Arbiter
	client *redis.Client
}

// NewCachedArbiter builds a CachedArbiter. client may be nil, in which case
// every call passes through to inner uncached.
func NewCachedArbiter(inner Arbiter, client *redis.Client) *CachedArbiter {
	return &CachedArbiter{inner: inner, client: client}
}

func (c *CachedArbiter) Classify(ctx context.Context, sectorID, normalizedObjeto string) (bool, error) {
	key := c.cacheKey(sectorID, normalizedObjeto)
	if c.client != nil {
		if val, err := c.client.Get(ctx, key).Result(); err == nil {
			return val == "SIM", nil
		}
	}

	sim, err := c.inner.Classify(ctx, sectorID, normalizedObjeto)
	if err != nil {
		return false, err
	}

	if c.client != nil {
		answer := "NAO"
		if sim {
			answer = "SIM"
		}
		if setErr := c.client.Set(ctx, key, answer, arbiterAnswerTTL).Err(); setErr != nil {
			zap.L().Warn("filter: arbiter cache write failed", zap.Error(setErr))
		}
	}
	return sim, nil
}

func (c *CachedArbiter) cacheKey(sectorID, normalizedObjeto string) string {
	h := sha256.Sum256([]byte(normalizedObjeto))
	return fmt.Sprintf("arbiter:%s:%s", sectorID, hex.EncodeToString(h[:]))
}

const arbiterSystemPrompt = `You are a procurement bid classifier. Given the sector name and the normalized description (objeto) of a government procurement notice, answer with exactly one word: SIM if the notice genuinely belongs to that sector, NAO if it does not. Do not explain your answer.`

// AnthropicArbiter classifies gray-zone bids by asking a cheap Anthropic
// model a single SIM/NAO question.
type AnthropicArbiter struct {
	Client    anthropic.Client
	Model     string
	SectorMap map[string]string // sector_id -> human-readable sector name
}

func (a *AnthropicArbiter) Classify(ctx context.Context, sectorID, normalizedObjeto string) (bool, error) {
	sectorName := a.SectorMap[sectorID]
	if sectorName == "" {
		sectorName = sectorID
	}

	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.Model,
		MaxTokens: 8,
		System:    anthropic.BuildCachedSystemBlocks(arbiterSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("Sector: %s\nObjeto: %s", sectorName, normalizedObjeto)},
		},
	})
	if err != nil {
		return false, eris.Wrap(err, "filter: arbiter classify")
	}
	if len(resp.Content) == 0 {
		return false, eris.New("filter: arbiter returned no content")
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Content[0].Text))
	return strings.HasPrefix(answer, "SIM"), nil
}
