package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"registrar/internal/event/models"
)

// RedisStore shares idempotency results between instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, eventID, key string) (*models.StoredResult, bool, error) {
	raw, err := s.client.Get(ctx, scopedKey(eventID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotency key: %w", err)
	}
	var result models.StoredResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode idempotency result: %w", err)
	}
	return &result, true, nil
}

// Put stores result with SET NX so the first result wins.
func (s *RedisStore) Put(ctx context.Context, eventID, key string, result models.StoredResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotency result: %w", err)
	}
	if err := s.client.SetNX(ctx, scopedKey(eventID, key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}
