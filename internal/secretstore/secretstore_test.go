package secretstore

import (
	"context"
	"testing"
	"time"
)

type fakeBackend struct {
	calls int
	value string
	err   error
}

func (f *fakeBackend) Fetch(context.Context, string) (string, error) {
	f.calls++
	return f.value, f.err
}

func TestGetCachesWithinTTL(t *testing.T) {
	backend := &fakeBackend{value: "sk-live-123"}
	store := New(backend)
	now := time.Now().UTC()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	v1, err := store.Get(ctx, "SEC_API_KEY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v1 != "sk-live-123" {
		t.Fatalf("got %q", v1)
	}

	v2, err := store.Get(ctx, "SEC_API_KEY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v2 != v1 || backend.calls != 1 {
		t.Fatalf("expected cached read, backend called %d times", backend.calls)
	}
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	backend := &fakeBackend{value: "sk-live-123"}
	store := New(backend)
	now := time.Now().UTC()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := store.Get(ctx, "SEC_API_KEY"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(11 * time.Minute)
	if _, err := store.Get(ctx, "SEC_API_KEY"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("expected refetch after TTL, backend called %d times", backend.calls)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	backend := &fakeBackend{value: "v1"}
	store := New(backend)
	ctx := context.Background()

	if _, err := store.Get(ctx, "K"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Invalidate("K")
	backend.value = "v2"
	v, err := store.Get(ctx, "K")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "v2" || backend.calls != 2 {
		t.Fatalf("expected invalidate to force refetch, got value=%q calls=%d", v, backend.calls)
	}
}
