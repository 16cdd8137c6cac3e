package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/careerpath/internal/config"
	"github.com/careerpath/internal/storage"
)

func TestOpenBackendMemory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}
	b, stop, err := OpenBackend(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("OpenBackend: %v", err)
	}
	defer stop()
	if err := b.Set(context.Background(), "s", storage.TokenKey, "a.b.c"); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestOpenBackendRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreRedis, RedisURL: "redis://" + mr.Addr()}}
	b, stop, err := OpenBackend(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("OpenBackend: %v", err)
	}
	defer stop()
	ctx := context.Background()
	_ = b.Set(ctx, "s", storage.LanguageKey, "de")
	if v, _ := b.Get(ctx, "s", storage.LanguageKey); v != "de" {
		t.Fatalf("Get = %q", v)
	}
}

func TestOpenBackendUnknownDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}
	if _, _, err := OpenBackend(context.Background(), cfg, false); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}
