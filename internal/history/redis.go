package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"monitoring-service/internal/models"
)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps history in Redis so several evaluator instances share it.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "history"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) valueKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s:value", s.prefix, key.PatientID, key.Indicator)
}

func (s *RedisStore) alertKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s:alert", s.prefix, key.PatientID, key.Indicator)
}

func (s *RedisStore) LastValue(ctx context.Context, key Key) (float64, bool, error) {
	raw, err := s.client.Get(ctx, s.valueKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get last value %s: %w", key, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse last value %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetLastValue(ctx context.Context, key Key, value float64, ttl time.Duration) error {
	raw := strconv.FormatFloat(value, 'g', -1, 64)
	if err := s.client.Set(ctx, s.valueKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set last value %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) LastAlert(ctx context.Context, key Key) (models.LastAlertState, bool, error) {
	raw, err := s.client.Get(ctx, s.alertKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.LastAlertState{}, false, nil
	}
	if err != nil {
		return models.LastAlertState{}, false, fmt.Errorf("get last alert %s: %w", key, err)
	}
	var state models.LastAlertState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.LastAlertState{}, false, fmt.Errorf("decode last alert %s: %w", key, err)
	}
	return state, true, nil
}

func (s *RedisStore) SetLastAlert(ctx context.Context, key Key, state models.LastAlertState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode last alert %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.alertKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set last alert %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
