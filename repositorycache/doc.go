// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// The dashboard reads slow-changing reference data, dining tables in
// particular, on every search. CachedRepository wraps a base repository,
// serves Get, GetByID, GetByIdentifier, List and Count through a
// cache.CacheService and passes every other call through unchanged.
//
// # Keys
//
// Keys are "<namespace>::<method>::<serialized args>". The namespace defaults
// to the snake_case record type name (DiningTable -> dining_table) and can be
// set with WithNamespace.
//
//	tables := repositorycache.New(base, cacheService, cache.NewDefaultKeySerializer(),
//		repositorycache.WithInvalidationHook(func(ctx context.Context, ns string) {
//			dashboard.InvalidateAggregateCache(ctx)
//		}),
//	)
//
// # Invalidation
//
// Every read registers its key in an in-process registry, together with any
// tags attached through WithCacheTags. Successful writes delete keys by prefix:
//
//   - Create, CreateMany, GetOrCreate: List and Count results
//   - Update, Upsert, Delete: the record's GetByID and GetByIdentifier entries
//     plus all List, Count and Get results
//   - DeleteMany, DeleteWhere: the whole namespace
//
// Hooks registered with WithInvalidationHook run after each write. Failed
// writes invalidate nothing. Transaction reads (*Tx) bypass the cache.
//
// Criteria closures serialize by code pointer, so reads that vary only by
// captured values share a key. Pass explicit arguments instead.
package repositorycache
