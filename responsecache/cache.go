// Package responsecache caches serialized dashboard responses under content-addressed keys.
package responsecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-orders-master/cache"
)

// Namespaces of the dashboard caches.
const (
	NamespaceOrders       = "orders_master"
	NamespaceFilterCounts = "filter_counts"
)

// ComputeFn produces a payload on a miss.
type ComputeFn[T any] func(ctx context.Context) (T, error)

// Cache stores serialized responses under content-addressed keys with a
// per-entry TTL. Store failures degrade to a miss; concurrent misses on the
// same key both compute and the last write wins.
type Cache struct {
	store      cache.CacheService
	serializer cache.KeySerializer
	policy     TTLPolicy
	logger     logrus.FieldLogger
	stats      *xsync.MapOf[string, *counters]
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy overrides the TTL policy.
func WithPolicy(p TTLPolicy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger.WithField("component", "responsecache")
		}
	}
}

// WithKeySerializer replaces the serializer used to build digests.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(c *Cache) {
		if s != nil {
			c.serializer = s
		}
	}
}

// New wraps store.
func New(store cache.CacheService, opts ...Option) *Cache {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Cache{
		store:      store,
		serializer: cache.NewDefaultKeySerializer(),
		policy:     DefaultTTLPolicy(),
		logger:     discard.WithField("component", "responsecache"),
		stats:      xsync.NewMapOf[string, *counters](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the active TTL policy.
func (c *Cache) Policy() TTLPolicy { return c.policy }

// Key returns namespace::digest, where the digest covers the canonical form
// of params. Types implementing cache.Canonicalizer control their own form.
func (c *Cache) Key(namespace string, params ...any) string {
	return namespace + cache.KeySeparator + cache.DigestKey(c.serializer, namespace, params...)
}

// ScopedNamespace appends a scope segment, such as a role scope, to namespace.
func ScopedNamespace(namespace, scope string) string {
	if scope == "" {
		return namespace
	}
	return namespace + cache.KeySeparator + scope
}

// FetchRaw returns the payload stored under key, or computes, stores and
// returns a fresh one. hit reports whether the payload came from the store.
func (c *Cache) FetchRaw(ctx context.Context, key string, ttl time.Duration, compute ComputeFn[[]byte]) (payload []byte, hit bool, err error) {
	stats := c.counters(key)

	cached, ok, err := cache.Get[[]byte](ctx, c.store, key)
	switch {
	case err != nil:
		stats.degraded.Inc()
		c.logger.WithError(err).WithField("key", key).Warn("response cache read failed, computing live")
	case ok:
		stats.hits.Inc()
		c.logger.WithField("key", key).Debug("response cache hit")
		return cached, true, nil
	}
	stats.misses.Inc()

	payload, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := c.store.Set(ctx, key, payload, ttl); err != nil {
		stats.degraded.Inc()
		c.logger.WithError(err).WithField("key", key).Warn("response cache write failed")
	} else {
		c.logger.WithFields(logrus.Fields{"key": key, "ttl": ttl, "bytes": len(payload)}).Debug("response cached")
	}
	return payload, false, nil
}

// Fetch is the typed form of FetchRaw. Values are stored as msgpack with
// sorted map keys so equal values serialize to equal bytes.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute ComputeFn[T]) (T, bool, error) {
	var out T
	payload, hit, err := c.FetchRaw(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return Marshal(v)
	})
	if err != nil {
		return out, false, err
	}
	if err := msgpack.Unmarshal(payload, &out); err != nil {
		if !hit {
			return out, false, fmt.Errorf("decode response payload: %w", err)
		}
		// Entry written by an incompatible version: replace it.
		c.logger.WithError(err).WithField("key", key).Warn("dropping undecodable cache entry")
		_ = c.store.Delete(ctx, key)
		v, err := compute(ctx)
		if err != nil {
			return out, false, err
		}
		if fresh, err := Marshal(v); err == nil {
			_ = c.store.Set(ctx, key, fresh, ttl)
		}
		return v, false, nil
	}
	return out, hit, nil
}

// Marshal encodes v the way Fetch stores it.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode response payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Purge deletes every entry of namespace, scoped namespaces included.
// Purging an empty namespace is a no-op and safe to repeat.
func (c *Cache) Purge(ctx context.Context, namespace string) (int, error) {
	return c.PurgePrefix(ctx, namespace+cache.KeySeparator)
}

// PurgePrefix deletes every entry whose key starts with prefix.
func (c *Cache) PurgePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, goerrors.New("responsecache: refusing to purge with an empty prefix", goerrors.CategoryBadInput)
	}
	n, err := c.store.DeleteByPrefix(ctx, prefix)
	if err != nil {
		c.logger.WithError(err).WithField("prefix", prefix).Warn("response cache purge failed")
		return n, err
	}
	c.counters(prefix).purged.Add(int64(n))
	c.logger.WithFields(logrus.Fields{"prefix": prefix, "removed": n}).Info("response cache purged")
	return n, nil
}

// Stats is a snapshot of one namespace's counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Degraded int64 `json:"degraded"`
	Purged   int64 `json:"purged"`
}

type counters struct {
	hits, misses, degraded, purged *xsync.Counter
}

func (c *Cache) counters(key string) *counters {
	ns, _, _ := strings.Cut(key, cache.KeySeparator)
	v, _ := c.stats.LoadOrCompute(ns, func() *counters {
		return &counters{
			hits:     xsync.NewCounter(),
			misses:   xsync.NewCounter(),
			degraded: xsync.NewCounter(),
			purged:   xsync.NewCounter(),
		}
	})
	return v
}

// Stats returns the counters of every namespace seen so far.
func (c *Cache) Stats() map[string]Stats {
	out := make(map[string]Stats, c.stats.Size())
	c.stats.Range(func(ns string, v *counters) bool {
		out[ns] = Stats{
			Hits:     v.hits.Value(),
			Misses:   v.misses.Value(),
			Degraded: v.degraded.Value(),
			Purged:   v.purged.Value(),
		}
		return true
	})
	return out
}
