// Package cache provides the cache contracts shared by the order dashboard.
//
// # Overview
//
//   - CacheService: the shared key/value store. It supports read-through
//     (GetOrFetch) for repository decorators and explicit Get/Set with a
//     per-entry TTL for the response cache.
//   - KeySerializer: builds stable keys from a method name and arguments.
//   - Digest: turns a serialized key into a fixed-width content address.
//
// # Key Serialization Strategy
//
// The default serializer walks values with reflection:
//
//   - Basic types: direct string representation
//   - Slices/arrays: element order is preserved
//   - Maps: pairs sorted by key
//   - Structs: exported fields as name:value pairs
//   - time.Time: RFC 3339 in UTC
//   - Canonicalizer: the value's own CanonicalKey
//
// Function values serialize by code pointer. Closures created from the same
// literal share that pointer whatever they capture, so never pass criteria
// closures whose captured values matter for the key.
//
// # Degradation
//
// Stores may fail with ErrUnavailable. The response cache treats that as a miss
// and computes live results.
package cache
