package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/internal/domain"
)

const analysisKeyPrefix = "analysis"

// AnalysisCache is a read-through cache of stored analyses. Entries carry
// their version, so a stale entry can only cause a conflict on save, never
// a lost update.
type AnalysisCache interface {
	Get(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, bool, error)
	Set(ctx context.Context, stored *domain.StoredAnalysis) error
	Invalidate(ctx context.Context, userID, analysisID string) error
}

type redisAnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopAnalysisCache struct{}

// NewAnalysisCache returns a Redis-backed cache, or a noop cache when
// client is nil.
func NewAnalysisCache(client *redis.Client, cfg config.CacheConfig) AnalysisCache {
	if client == nil {
		return &noopAnalysisCache{}
	}
	return &redisAnalysisCache{
		client: client,
		ttl:    ttlFromSeconds(cfg.AnalysisTTLSeconds, defaultCacheTTL),
	}
}

func NewNoopAnalysisCache() AnalysisCache {
	return &noopAnalysisCache{}
}

func analysisKey(userID, analysisID string) string {
	return fmt.Sprintf("%s:%s:%s", analysisKeyPrefix, userID, analysisID)
}

func (c *redisAnalysisCache) Get(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, bool, error) {
	payload, err := c.client.Get(ctx, analysisKey(userID, analysisID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var stored domain.StoredAnalysis
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, false, fmt.Errorf("decode analysis cache: %w", err)
	}
	if stored.Analysis == nil {
		return nil, false, nil
	}
	return &stored, true, nil
}

func (c *redisAnalysisCache) Set(ctx context.Context, stored *domain.StoredAnalysis) error {
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode analysis cache: %w", err)
	}
	key := analysisKey(stored.Analysis.UserID, stored.Analysis.ID)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisAnalysisCache) Invalidate(ctx context.Context, userID, analysisID string) error {
	return c.client.Del(ctx, analysisKey(userID, analysisID)).Err()
}

func (n *noopAnalysisCache) Get(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, bool, error) {
	return nil, false, nil
}

func (n *noopAnalysisCache) Set(ctx context.Context, stored *domain.StoredAnalysis) error {
	return nil
}

func (n *noopAnalysisCache) Invalidate(ctx context.Context, userID, analysisID string) error {
	return nil
}
