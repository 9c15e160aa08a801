package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client), mr
}

func TestRedisCachePutGet(t *testing.T) {
	c, _ := newTestRedisCache(t)
	now := time.Now().UTC()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, _, hit, err := c.Get(ctx, "k")
	if err != nil || !hit || string(v) != "v" {
		t.Fatalf("expected hit v=%q, got hit=%v err=%v v=%q", "v", hit, err, v)
	}
}

func TestRedisCacheMissOnUnknownKey(t *testing.T) {
	c, _ := newTestRedisCache(t)
	_, _, hit, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestRedisCacheStaleServedAfterPrimaryExpiry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	now := time.Now().UTC()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Put(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Second)
	_, _, hit, _ := c.Get(ctx, "k")
	if hit {
		t.Fatalf("expected primary key to expire")
	}

	v, hit, err := c.GetStale(ctx, "k")
	if err != nil || !hit || string(v) != "v" {
		t.Fatalf("expected stale hit, got hit=%v err=%v v=%q", hit, err, v)
	}
}
