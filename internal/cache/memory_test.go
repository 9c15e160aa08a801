package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now().UTC()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Put(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(30 * time.Second)
	v, age, hit, err := c.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if string(v) != "v" || age != 30*time.Second {
		t.Fatalf("got v=%q age=%v", v, age)
	}
}

func TestMemoryCacheExpiresAfterTTL(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now().UTC()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("v"), time.Minute)
	now = now.Add(2 * time.Minute)
	_, _, hit, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryCacheGetStaleIgnoresTTLButCapsAtHardBound(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now().UTC()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Put(ctx, "k", []byte("v"), time.Minute)

	now = now.Add(24 * time.Hour)
	v, hit, err := c.GetStale(ctx, "k")
	if err != nil || !hit || string(v) != "v" {
		t.Fatalf("expected stale hit within hard bound, got hit=%v err=%v", hit, err)
	}

	now = now.Add(8 * 24 * time.Hour)
	_, hit, err = c.GetStale(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatalf("expected miss past the hard stale bound")
	}
}

func TestMemoryCacheLastWriterWinsOnWrittenAt(t *testing.T) {
	c := NewMemoryCache()
	base := time.Now().UTC()
	ctx := context.Background()

	c.now = func() time.Time { return base.Add(time.Second) }
	_ = c.Put(ctx, "k", []byte("newer"), time.Minute)

	c.now = func() time.Time { return base }
	_ = c.Put(ctx, "k", []byte("older"), time.Minute)

	c.now = func() time.Time { return base.Add(time.Second) }
	v, _, hit, _ := c.Get(ctx, "k")
	if !hit || string(v) != "newer" {
		t.Fatalf("expected last-writer-wins by writtenAt to keep %q, got %q", "newer", v)
	}
}
