package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-orders-master/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
//
// TTL is both the default lifetime for read-through entries and the ceiling for
// per-entry TTLs passed to Set; longer TTLs are clamped.
type Config struct {
	Capacity             int                 `envconfig:"CAPACITY" default:"10000"`
	NumShards            int                 `envconfig:"SHARDS" default:"256"`
	TTL                  time.Duration       `envconfig:"TTL" default:"5m"`
	EvictionPercentage   int                 `envconfig:"EVICTION_PERCENTAGE" default:"10"`
	EarlyRefresh         *EarlyRefreshConfig `ignored:"true"`
	MissingRecordStorage bool                `envconfig:"MISSING_RECORD_STORAGE" default:"false"`
	EvictionInterval     time.Duration       `envconfig:"EVICTION_INTERVAL"`
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig sizes the store for the dashboard: the base TTL equals the
// longest response TTL so no tier outlives the underlying shard eviction.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
	)
}

// NewCacheService constructs the default cache service implementation using the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	return cacheinfra.NewSturdycService(cfg.Internal())
}

// Internal converts the public configuration into the adapter configuration.
func (c Config) Internal() cacheinfra.Config {
	out := cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
	if c.EarlyRefresh != nil {
		out.EarlyRefresh = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: c.EarlyRefresh.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: c.EarlyRefresh.MaxAsyncRefreshTime,
			SyncRefreshTime:     c.EarlyRefresh.SyncRefreshTime,
			RetryBaseDelay:      c.EarlyRefresh.RetryBaseDelay,
		}
	}
	return out
}
