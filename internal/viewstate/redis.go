package viewstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "floorplan:viewstate"

// RedisStore persists view states as JSON strings in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps entries forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key Key) string {
	return redisKeyPrefix + ":" + key.Scope + ":" + key.BuildingID + ":" + strconv.Itoa(key.Level)
}

// Load returns the saved view state for key.
func (s *RedisStore) Load(ctx context.Context, key Key) (ViewState, bool, error) {
	if err := key.validate(); err != nil {
		return ViewState{}, false, err
	}

	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ViewState{}, false, nil
		}
		return ViewState{}, false, fmt.Errorf("reading view state: %w", err)
	}

	var vs ViewState
	if err := json.Unmarshal(raw, &vs); err != nil {
		return ViewState{}, false, fmt.Errorf("decoding view state: %w", err)
	}
	return vs, true, nil
}

// Save stores vs under key.
func (s *RedisStore) Save(ctx context.Context, key Key, vs ViewState) error {
	if err := key.validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encoding view state: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing view state: %w", err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
