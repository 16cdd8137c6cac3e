package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/careerpath/internal/storage"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	store := storage.Scope(c, "scope-1")

	if err := store.Set(ctx, storage.TokenKey, "a.b.c"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := store.Get(ctx, storage.TokenKey); got != "a.b.c" {
		t.Fatalf("Get = %q", got)
	}
	if ttl := mr.TTL(scopeKey("scope-1")); ttl != ScopeTTL {
		t.Fatalf("scope TTL = %v", ttl)
	}
	if err := store.Remove(ctx, storage.TokenKey); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got, _ := store.Get(ctx, storage.TokenKey); got != "" {
		t.Fatalf("Get after remove = %q", got)
	}
	if err := store.Remove(ctx, storage.TokenKey); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestRedisSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(t)

	changes, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := c.Set(ctx, "s", storage.ProfileKey, `{"email":"a@b.c"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case ch := <-changes:
		if ch.Scope != "s" || ch.Key != storage.ProfileKey || ch.Removed {
			t.Fatalf("unexpected change %+v", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("change not delivered")
	}
}

func TestRedisBadURL(t *testing.T) {
	if _, err := New(context.Background(), "://nope"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer c.Close()

	if err := c.Set(context.Background(), "x", storage.LanguageKey, "hi"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.FlushScope(context.Background(), "x"); err != nil {
		t.Fatalf("FlushScope: %v", err)
	}
	if mr.Exists(scopeKey("x")) {
		t.Fatalf("scope still present")
	}
}
