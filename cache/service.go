package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidResultType is returned by GetOrFetch when the cached value cannot be
// asserted to the requested type.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// ErrUnavailable signals that the backing store could not serve the request.
// Callers that treat caching as an optimization map it to a miss.
var ErrUnavailable = errors.New("cache: store unavailable")

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService is the shared key/value store used by the repository decorator
// (read-through via GetOrFetch) and by the response cache (explicit Get/Set with
// per-entry TTL). Implementations must be safe for concurrent use.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix removes every key starting with prefix and reports how many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	result, err := service.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}

// Get is the typed counterpart of CacheService.Get. A value of the wrong type
// is reported as a miss together with ErrInvalidResultType.
func Get[T any](ctx context.Context, service CacheService, key string) (T, bool, error) {
	var zero T
	result, ok, err := service.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, false, ErrInvalidResultType
	}
	return typed, true, nil
}
