package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Capacity:           100,
		NumShards:          2,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 10000 {
		t.Errorf("expected Capacity to be 10000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 256 {
		t.Errorf("expected NumShards to be 256, got %d", cfg.NumShards)
	}
	if cfg.TTL != 5*time.Minute {
		t.Errorf("expected TTL to be 5 minutes, got %v", cfg.TTL)
	}
	if cfg.EarlyRefresh != nil {
		t.Error("expected early refresh to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantField: "Capacity"},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, wantField: "NumShards"},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, wantField: "TTL"},
		{name: "eviction too high", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantField: "EvictionPercentage"},
		{
			name: "negative early refresh",
			mutate: func(c *Config) {
				c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: -time.Second}
			},
			wantField: "EarlyRefresh",
		},
		{
			name: "inverted early refresh window",
			mutate: func(c *Config) {
				c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: 20 * time.Second, MaxAsyncRefreshTime: 10 * time.Second}
			},
			wantField: "EarlyRefresh.MaxAsyncRefreshTime",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, cfgErr.Field)
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	cfg := testConfig()
	if n := len(cfg.ToSturdycOptions()); n != 0 {
		t.Errorf("expected no options for minimal config, got %d", n)
	}

	cfg.MissingRecordStorage = true
	cfg.EvictionInterval = time.Minute
	cfg.EarlyRefresh = &EarlyRefreshConfig{
		MinAsyncRefreshTime: 10 * time.Second,
		MaxAsyncRefreshTime: 20 * time.Second,
		SyncRefreshTime:     30 * time.Second,
		RetryBaseDelay:      100 * time.Millisecond,
	}
	if n := len(cfg.ToSturdycOptions()); n != 3 {
		t.Errorf("expected 3 options, got %d", n)
	}
}

func TestNewSturdycService_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 0

	service, err := NewSturdycService(cfg)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if service != nil {
		t.Error("expected nil service on error")
	}
	if err.Error() != "config error in field Capacity: must be greater than 0" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestSturdycService_GetOrFetch(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		calls := 0
		fetch := func(ctx context.Context) (string, error) {
			calls++
			return "tables", nil
		}

		for i := 0; i < 2; i++ {
			got, err := service.GetOrFetch(ctx, "tables::list", fetch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "tables" {
				t.Errorf("expected tables, got %v", got)
			}
		}
		if calls != 1 {
			t.Errorf("expected a single fetch, got %d", calls)
		}
	})

	t.Run("fetch error", func(t *testing.T) {
		_, err := service.GetOrFetch(ctx, "error-key", func(ctx context.Context) (any, error) {
			return nil, errors.New("fetch failed")
		})
		if err == nil {
			t.Error("expected error but got none")
		}
	})

	t.Run("invalid fetch functions", func(t *testing.T) {
		invalid := []any{
			nil,
			"not-a-function",
			func() (any, error) { return nil, nil },
			func(ctx context.Context, extra string) (any, error) { return nil, nil },
			func(s string) (any, error) { return nil, nil },
			func(ctx context.Context) (any, string) { return nil, "" },
		}
		for i, fn := range invalid {
			_, err := service.GetOrFetch(ctx, "invalid", fn)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != "fetchFn" {
				t.Errorf("case %d: expected fetchFn ConfigError, got %v", i, err)
			}
		}
	})
}

func TestSturdycService_SetGetExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	service.WithClock(clock.Now)
	ctx := context.Background()

	if err := service.Set(ctx, "orders_master::abc", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := service.Get(ctx, "orders_master::abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.([]byte)) != "payload" {
		t.Errorf("unexpected value %v", got)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := service.Get(ctx, "orders_master::abc"); !ok {
		t.Error("expected entry to still be fresh before its TTL")
	}

	clock.Advance(time.Second)
	if _, ok, _ := service.Get(ctx, "orders_master::abc"); ok {
		t.Error("expected entry to expire at its TTL")
	}
}

func TestSturdycService_SetClampsTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	service, _ := NewSturdycService(testConfig())
	service.WithClock(clock.Now)
	ctx := context.Background()

	_ = service.Set(ctx, "k", "v", time.Hour)
	clock.Advance(5*time.Minute + time.Second)
	if _, ok, _ := service.Get(ctx, "k"); ok {
		t.Error("expected TTL above the shard TTL to be clamped")
	}
}

func TestSturdycService_DeleteByPrefix(t *testing.T) {
	service, _ := NewSturdycService(testConfig())
	ctx := context.Background()

	_ = service.Set(ctx, "orders_master::a", 1, time.Minute)
	_ = service.Set(ctx, "orders_master::b", 2, time.Minute)
	_ = service.Set(ctx, "filter_counts::admin::c", 3, time.Minute)

	removed, err := service.DeleteByPrefix(ctx, "orders_master::")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	removed, _ = service.DeleteByPrefix(ctx, "orders_master::")
	if removed != 0 {
		t.Errorf("expected second purge to remove nothing, got %d", removed)
	}

	if _, ok, _ := service.Get(ctx, "filter_counts::admin::c"); !ok {
		t.Error("expected other namespaces to survive the purge")
	}

	if err := service.Delete(ctx, "filter_counts::admin::c"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if service.Size() != 0 {
		t.Errorf("expected empty cache, got %d entries", service.Size())
	}
}
