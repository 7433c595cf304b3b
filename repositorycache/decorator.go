package repositorycache

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-orders-master/cache"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// InvalidationHook is notified after a write invalidated the cached reads of a
// namespace. Services that derive data from the repository use it to drop
// their own caches.
type InvalidationHook func(ctx context.Context, namespace string)

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	logger    logrus.FieldLogger
	hooks     []InvalidationHook
}

// WithNamespace overrides the key namespace, which defaults to the snake_case
// name of the record type.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns = toSnake(ns); ns != "" {
			o.namespace = ns
		}
	}
}

// WithLogger sets the logger used to report cache failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInvalidationHook registers a hook that runs after every write.
func WithInvalidationHook(hook InvalidationHook) Option {
	return func(o *options) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// CachedRepository decorates a base repository with caching. Reads outside a
// transaction go through the cache; writes pass through and then invalidate
// the affected keys. Every method not overridden here is the base method.
type CachedRepository[T any] struct {
	repository.Repository[T]

	base          repository.Repository[T]
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
	logger        logrus.FieldLogger
	hooks         []InvalidationHook

	// keys tracks live cache keys and the tags they were read under.
	keys *xsync.MapOf[string, []string]
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{
		namespace: typeNamespace[T](),
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &CachedRepository[T]{
		Repository:    base,
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     o.namespace,
		logger:        o.logger.WithField("namespace", o.namespace),
		hooks:         o.hooks,
		keys:          xsync.NewMapOf[string, []string](),
	}
}

// Namespace returns the key prefix shared by every entry of this repository.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("Get", criteria)
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("GetByID", id, criteria)
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key := c.key("List", criteria)
	c.trackKey(ctx, key)
	res, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key := c.key("Count", criteria)
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	key := c.key("GetByIdentifier", identifier, criteria)
	c.trackKey(ctx, key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create creates a new record.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.InvalidateAll(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// InvalidateAll drops every cached read of this repository and notifies the hooks.
func (c *CachedRepository[T]) InvalidateAll(ctx context.Context) int {
	removed := c.invalidateByPrefix(ctx, c.namespace+cache.KeySeparator)
	c.notify(ctx)
	return removed
}

// InvalidateTags drops the cached reads registered under any of tags.
func (c *CachedRepository[T]) InvalidateTags(ctx context.Context, tags ...string) int {
	if len(tags) == 0 {
		return 0
	}
	wanted := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		wanted[tag] = struct{}{}
	}

	var keys []string
	c.keys.Range(func(key string, keyTags []string) bool {
		for _, tag := range keyTags {
			if _, ok := wanted[tag]; ok {
				keys = append(keys, key)
				break
			}
		}
		return true
	})

	return c.deleteKeys(ctx, keys)
}

// TrackedKeys reports how many cache keys the registry currently holds.
func (c *CachedRepository[T]) TrackedKeys() int {
	return c.keys.Size()
}

func (c *CachedRepository[T]) key(method string, args ...any) string {
	return c.namespace + cache.KeySeparator + c.keySerializer.SerializeKey(method, args...)
}

// trackKey registers a cache key, with any tags carried by ctx.
func (c *CachedRepository[T]) trackKey(ctx context.Context, key string) {
	tags := cacheTagsFromContext(ctx)
	c.keys.Compute(key, func(old []string, loaded bool) ([]string, bool) {
		return dedupeStrings(append(old, tags...)), false
	})
}

// invalidateByPrefix removes all tracked keys that start with the given prefix
func (c *CachedRepository[T]) invalidateByPrefix(ctx context.Context, prefix string) int {
	var keys []string
	c.keys.Range(func(key string, _ []string) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return c.deleteKeys(ctx, keys)
}

func (c *CachedRepository[T]) deleteKeys(ctx context.Context, keys []string) int {
	removed := 0
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("cache delete failed")
			continue
		}
		c.keys.Delete(key)
		removed++
	}
	return removed
}

func (c *CachedRepository[T]) notify(ctx context.Context) {
	for _, hook := range c.hooks {
		hook(ctx, c.namespace)
	}
}

// invalidateAfterCreate drops List and Count results, which new records change.
func (c *CachedRepository[T]) invalidateAfterCreate(ctx context.Context) {
	c.invalidateByPrefix(ctx, c.key("List"))
	c.invalidateByPrefix(ctx, c.key("Count"))
	c.notify(ctx)
}

// invalidateRecord drops the by-id and by-identifier reads of record plus all
// query results.
func (c *CachedRepository[T]) invalidateRecord(ctx context.Context, record T) {
	c.invalidateRecordKeys(ctx, record)
	c.invalidateQueries(ctx)
	c.notify(ctx)
}

func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, records []T) {
	for _, record := range records {
		c.invalidateRecordKeys(ctx, record)
	}
	c.invalidateQueries(ctx)
	c.notify(ctx)
}

func (c *CachedRepository[T]) invalidateRecordKeys(ctx context.Context, record T) {
	if id, err := extractID(record); err == nil {
		c.invalidateByPrefix(ctx, c.key("GetByID", id)+cache.KeySeparator)
	} else {
		c.logger.WithError(err).Debug("skipping by-id invalidation")
	}
	if identifier, err := c.extractIdentifier(record); err == nil {
		c.invalidateByPrefix(ctx, c.key("GetByIdentifier", identifier)+cache.KeySeparator)
	}
}

func (c *CachedRepository[T]) invalidateQueries(ctx context.Context) {
	c.invalidateByPrefix(ctx, c.key("List"))
	c.invalidateByPrefix(ctx, c.key("Count"))
	c.invalidateByPrefix(ctx, c.key("Get")+cache.KeySeparator)
}

// extractID reads the ID field of record.
func extractID(record any) (string, error) {
	v := indirect(reflect.ValueOf(record))
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record %T is not a struct", record)
	}
	for _, fieldName := range []string{"ID", "Id"} {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface()), nil
		}
	}
	return "", fmt.Errorf("no ID field found in record")
}

// extractIdentifier reads the field backing the repository identifier column,
// matched by snake_case name.
func (c *CachedRepository[T]) extractIdentifier(record T) (string, error) {
	column := c.identifierColumn()
	if column == "" {
		return "", fmt.Errorf("repository has no identifier column")
	}

	v := indirect(reflect.ValueOf(record))
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record is not a struct")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || toSnake(field.Name) != column {
			continue
		}
		return fmt.Sprintf("%v", v.Field(i).Interface()), nil
	}
	return "", fmt.Errorf("no field for identifier column %q", column)
}

func (c *CachedRepository[T]) identifierColumn() (column string) {
	defer func() {
		if recover() != nil {
			column = ""
		}
	}()
	handlers := c.base.Handlers()
	if handlers.GetIdentifier == nil {
		return ""
	}
	return toSnake(handlers.GetIdentifier())
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// typeNamespace names the cache namespace after T, e.g. *DiningTable -> dining_table.
func typeNamespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if ns := toSnake(name); ns != "" {
		return ns
	}
	return "records"
}
