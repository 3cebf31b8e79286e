package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"

	"github.com/i474232898/weather-odds/internal/weather"
)

const redisKeyPrefix = "weather_odds:result:"

// RedisClient is the subset of redis commands the store needs. *redis.Client
// satisfies it.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore keeps results as JSON values that expire after ttl.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(queryID string) string { return redisKeyPrefix + queryID }

// Save writes result once; SETNX refuses an existing key.
func (s *RedisStore) Save(ctx context.Context, result *weather.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	ok, err := s.client.SetNX(ctx, redisKey(result.QueryID), payload, s.ttl).Result()
	if err != nil {
		return eris.Wrapf(err, "redis setnx %s", result.QueryID)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExists, result.QueryID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, queryID string) (*weather.Result, error) {
	raw, err := s.client.Get(ctx, redisKey(queryID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, queryID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis get %s", queryID)
	}
	var res weather.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, eris.Wrapf(err, "decode result %s", queryID)
	}
	return &res, nil
}

// Prune is a no-op: redis expires keys itself.
func (s *RedisStore) Prune(context.Context) (int, error) { return 0, nil }
