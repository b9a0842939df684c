package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bytefinance/backend/internal/models"
)

// HoldingsCache holds derived holdings between ledger changes. It is never
// read to validate a command.
//
// Entries are stamped with the user's cache generation. Get returns the
// current generation on a miss; the caller must read the ledger after that and
// pass the same generation to Set. Invalidate bumps the generation, so a fold
// computed before an invalidation can never be served after it.
type HoldingsCache interface {
	Get(ctx context.Context, userID string) (holdings []models.Holding, gen int64, ok bool)
	Set(ctx context.Context, userID string, gen int64, holdings []models.Holding)
	Invalidate(ctx context.Context, userID string) error
}

type RedisHoldingsCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisHoldingsCache(client *redis.Client, ttl time.Duration) *RedisHoldingsCache {
	return &RedisHoldingsCache{redis: client, ttl: ttl}
}

type cachedHoldings struct {
	Gen      int64            `json:"gen"`
	Holdings []models.Holding `json:"holdings"`
}

func holdingsKey(userID string) string {
	return fmt.Sprintf("holdings:%s", userID)
}

func holdingsGenKey(userID string) string {
	return fmt.Sprintf("holdings:gen:%s", userID)
}

// Get treats every redis failure as a miss. A negative generation tells Set
// not to write.
func (c *RedisHoldingsCache) Get(ctx context.Context, userID string) ([]models.Holding, int64, bool) {
	vals, err := c.redis.MGet(ctx, holdingsKey(userID), holdingsGenKey(userID)).Result()
	if err != nil || len(vals) != 2 {
		return nil, -1, false
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, -1, false
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var entry cachedHoldings
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Gen != gen {
		return nil, gen, false
	}
	return entry.Holdings, gen, true
}

func (c *RedisHoldingsCache) Set(ctx context.Context, userID string, gen int64, holdings []models.Holding) {
	if gen < 0 {
		return
	}
	data, err := json.Marshal(cachedHoldings{Gen: gen, Holdings: holdings})
	if err != nil {
		return
	}
	c.redis.Set(ctx, holdingsKey(userID), data, c.ttl)
}

// Invalidate bumps the generation first; the delete only frees memory.
func (c *RedisHoldingsCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.redis.Incr(ctx, holdingsGenKey(userID)).Err(); err != nil {
		return err
	}
	return c.redis.Del(ctx, holdingsKey(userID)).Err()
}
