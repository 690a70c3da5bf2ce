package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastAlertKeyPrefix = "last_alert"

// LastAlertStore remembers, per user and product, the date of the latest
// alert that was already notified, so the same alert is never sent twice.
type LastAlertStore interface {
	Get(ctx context.Context, userID, productCode string) (string, bool, error)
	Set(ctx context.Context, userID, productCode, alertDate string) error
}

type redisLastAlertStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLastAlertStore keeps one hash per user. A zero ttl never expires.
func NewRedisLastAlertStore(client *redis.Client, ttl time.Duration) LastAlertStore {
	return &redisLastAlertStore{client: client, ttl: ttl}
}

func lastAlertKey(userID string) string {
	return fmt.Sprintf("%s:%s", lastAlertKeyPrefix, userID)
}

func (s *redisLastAlertStore) Get(ctx context.Context, userID, productCode string) (string, bool, error) {
	date, err := s.client.HGet(ctx, lastAlertKey(userID), productCode).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget failed: %w", err)
	}
	return date, true, nil
}

func (s *redisLastAlertStore) Set(ctx context.Context, userID, productCode, alertDate string) error {
	key := lastAlertKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, productCode, alertDate)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

type memoryLastAlertStore struct {
	mu    sync.RWMutex
	dates map[string]string
}

func NewMemoryLastAlertStore() LastAlertStore {
	return &memoryLastAlertStore{dates: make(map[string]string)}
}

func (s *memoryLastAlertStore) Get(_ context.Context, userID, productCode string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	date, ok := s.dates[userID+"\x00"+productCode]
	return date, ok, nil
}

func (s *memoryLastAlertStore) Set(_ context.Context, userID, productCode, alertDate string) error {
	s.mu.Lock()
	s.dates[userID+"\x00"+productCode] = alertDate
	s.mu.Unlock()
	return nil
}
