package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nullwave/polystep/internal/config"
	"github.com/nullwave/polystep/pkg/api"
)

// RedisStore stores one hash per trace at "<prefix>state:<traceId>", with
// fields keyed by the state key. Optional per-trace TTL is refreshed on
// every Set
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    int64 // seconds; 0 disables expiry
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a state store against a redis-compatible
// endpoint (also satisfied by miniredis in tests)
func NewRedisStore(cfg config.StateStoreConfig) (*RedisStore, error) {
	if cfg.Host == "" {
		return nil, errors.New("statestore: remote adapter requires a host")
	}
	addr := cfg.Host
	if cfg.Port != 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client: client,
		prefix: "polystep:",
		ttl:    int64(cfg.TTL.Seconds()),
	}, nil
}

func (s *RedisStore) key(traceID api.TraceID) string {
	return s.prefix + "state:" + string(traceID)
}

func (s *RedisStore) Get(ctx context.Context, traceID api.TraceID, key string) (json.RawMessage, error) {
	val, err := s.client.HGet(ctx, s.key(traceID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: redis hget: %w", err)
	}
	return json.RawMessage(val), nil
}

func (s *RedisStore) Set(ctx context.Context, traceID api.TraceID, key string, value json.RawMessage) error {
	redisKey := s.key(traceID)
	if err := s.client.HSet(ctx, redisKey, key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("statestore: redis hset: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, redisKey, secondsToDuration(s.ttl)).Err(); err != nil {
			return fmt.Errorf("statestore: redis expire: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, traceID api.TraceID, key string) error {
	if err := s.client.HDel(ctx, s.key(traceID), key).Err(); err != nil {
		return fmt.Errorf("statestore: redis hdel: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, traceID api.TraceID) error {
	if err := s.client.Del(ctx, s.key(traceID)).Err(); err != nil {
		return fmt.Errorf("statestore: redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) GetGroup(ctx context.Context, traceID api.TraceID) ([]json.RawMessage, error) {
	all, err := s.client.HGetAll(ctx, s.key(traceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("statestore: redis hgetall: %w", err)
	}
	values := make([]json.RawMessage, 0, len(all))
	for _, v := range all {
		values = append(values, json.RawMessage(v))
	}
	return values, nil
}

func secondsToDuration(secs int64) time.Duration {
	return time.Duration(secs) * time.Second
}
