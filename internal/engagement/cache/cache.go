// Package cache memoizes computed recommendations in Redis. The engine is
// pure, so a recommendation is valid exactly as long as its inputs hash to
// the same key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"engagement_backend/internal/engagement/domain"
)

type RecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *RecommendationCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RecommendationCache{client: client, ttl: ttl}
}

// InputHash derives the cache key from the engine version and the full
// evaluation input. Any input change produces a new key, so stale entries
// are never served for changed state.
func InputHash(version string, inputs any) (string, error) {
	payload, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("marshal cache inputs: %w", err)
	}
	sum := sha256.Sum256(append([]byte(version+"|"), payload...))
	return hex.EncodeToString(sum[:]), nil
}

func valueKey(leadID uuid.UUID, hash string) string {
	return fmt.Sprintf("nba:%s:%s", leadID, hash)
}

func indexKey(leadID uuid.UUID) string {
	return fmt.Sprintf("nba:lead:%s", leadID)
}

// Get returns the cached recommendation, or nil on a miss.
func (c *RecommendationCache) Get(ctx context.Context, leadID uuid.UUID, hash string) (*domain.NextBestAction, error) {
	raw, err := c.client.Get(ctx, valueKey(leadID, hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var action domain.NextBestAction
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &action, nil
}

// Set stores the recommendation and a per-lead index entry used for
// event-driven invalidation.
func (c *RecommendationCache) Set(ctx context.Context, leadID uuid.UUID, hash string, action domain.NextBestAction) error {
	raw, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, valueKey(leadID, hash), raw, c.ttl)
	pipe.Set(ctx, indexKey(leadID), valueKey(leadID, hash), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the lead's cached recommendation, if any.
func (c *RecommendationCache) Invalidate(ctx context.Context, leadID uuid.UUID) error {
	current, err := c.client.Get(ctx, indexKey(leadID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	keys := []string{indexKey(leadID)}
	if current != "" {
		keys = append(keys, current)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
