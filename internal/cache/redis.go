package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turphai/boomwatch/internal/apperrors"
)

// envelope is stored as the Redis value so Get can recover writtenAt even
// though Redis itself expires the key — GetStale needs writtenAt to enforce
// the hard stale ceiling once the TTL has already lapsed and the key is
// about to (or has) disappeared from Redis's own expiry.
type envelope struct {
	Value     []byte    `json:"value"`
	WrittenAt time.Time `json:"written_at"`
	TTL       time.Duration `json:"ttl"`
}

// RedisCache is the deployed-environment Cache Store binding, backed by
// github.com/redis/go-redis/v9. Stale reads are served from a second,
// long-TTL shadow key so GetStale can still answer after the primary key
// has expired out of Redis.
type RedisCache struct {
	client       *redis.Client
	staleCeiling time.Duration
	now          func() time.Time
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:       client,
		staleCeiling: DefaultStaleCeiling,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func shadowKey(key string) string { return "stale:" + key }

func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Value: value, WrittenAt: c.now(), TTL: ttl}
	b, err := json.Marshal(env)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindCache, "rediscache", "marshal entry")
	}
	if err := c.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.KindCache, "rediscache", "put")
	}
	if err := c.client.Set(ctx, shadowKey(key), b, c.staleCeiling).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.KindCache, "rediscache", "put shadow")
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, apperrors.Wrap(err, apperrors.KindCache, "rediscache", "get")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, false, apperrors.Wrap(err, apperrors.KindCache, "rediscache", "unmarshal entry")
	}
	return env.Value, c.now().Sub(env.WrittenAt), true, nil
}

func (c *RedisCache) GetStale(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, shadowKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.KindCache, "rediscache", "get stale")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.KindCache, "rediscache", "unmarshal stale entry")
	}
	if c.now().After(env.WrittenAt.Add(c.staleCeiling)) {
		return nil, false, nil
	}
	return env.Value, true, nil
}
