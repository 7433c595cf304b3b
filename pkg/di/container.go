// Package di wires the order dashboard from configuration.
package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-orders-master/cache"
	"github.com/goliatone/go-orders-master/dashboard"
	"github.com/goliatone/go-orders-master/events"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/httpapi"
	"github.com/goliatone/go-orders-master/internal/config"
	"github.com/goliatone/go-orders-master/internal/logging"
	"github.com/goliatone/go-orders-master/orderstore"
	"github.com/goliatone/go-orders-master/repositorycache"
	"github.com/goliatone/go-orders-master/responsecache"
)

// Text codes of container failures.
const (
	ErrCodeDriver    = "ORDERS_DB_DRIVER"
	ErrCodeTransport = "ORDERS_TRANSPORT"
)

// Container wires the Orders Master pipeline. It owns the shared cache
// store, the database handle and the optional event transports.
type Container struct {
	config        config.Config
	logger        logrus.FieldLogger
	db            *bun.DB
	layout        orderstore.Layout
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer

	adapter   *orderstore.Adapter
	tables    *repositorycache.CachedRepository[*orderstore.DiningTable]
	compiler  *filter.Compiler
	responses *responsecache.Cache
	service   *dashboard.Service
	api       *httpapi.Handler

	events      *events.Handler
	broadcaster *events.AMQPBroadcaster
	subscriber  *events.NATSSubscriber
}

// NewContainer opens the configured database and wires every component.
// A nil logger is built from the log section of cfg.
func NewContainer(cfg config.Config, logger logrus.FieldLogger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := OpenDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	c, err := NewContainerWithDB(db, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults wires the default configuration.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(config.Default(), nil)
}

// NewContainerWithDB wires every component over an open database.
func NewContainerWithDB(db *bun.DB, cfg config.Config, logger logrus.FieldLogger) (*Container, error) {
	if logger == nil {
		logger = logging.New(cfg.Log.Level, cfg.Log.Format)
	}
	layout, err := orderstore.LayoutByName(cfg.Layout)
	if err != nil {
		return nil, err
	}
	cacheService, err := cache.NewCacheService(cfg.Cache)
	if err != nil {
		return nil, err
	}

	c := &Container{
		config:        cfg,
		logger:        logger,
		db:            db,
		layout:        layout,
		cacheService:  cacheService,
		keySerializer: cache.NewDefaultKeySerializer(),
	}

	c.adapter = orderstore.NewAdapter(db, layout, logger)
	c.tables = NewCachedRepository(c, orderstore.NewTableRepository(db),
		repositorycache.WithInvalidationHook(c.onTablesChanged))
	c.compiler = filter.NewCompiler(db, layout, orderstore.NewTableIndex(c.tables), logger)
	c.responses = responsecache.New(cacheService,
		responsecache.WithPolicy(cfg.TTL),
		responsecache.WithLogger(logger),
		responsecache.WithKeySerializer(c.keySerializer),
	)
	materializer := dashboard.NewMaterializer(c.adapter,
		dashboard.WithWorkers(cfg.Workers),
		dashboard.WithMaterializerLogger(logger),
	)
	c.service = dashboard.NewService(c.compiler, materializer, c.responses, logger)
	c.api = httpapi.NewHandler(c.service, c.responses, logger)
	c.events = events.NewHandler(c.service, events.WithLogger(logger))
	return c, nil
}

// onTablesChanged drops dashboard data derived from dining tables.
func (c *Container) onTablesChanged(ctx context.Context, namespace string) {
	removed, err := c.service.InvalidateAll(ctx)
	entry := c.logger.WithFields(logrus.Fields{"namespace": namespace, "removed": removed})
	if err != nil {
		entry.WithError(err).Warn("dashboard invalidation after table write failed")
		return
	}
	entry.Debug("dashboard invalidated after table write")
}

// OpenDB opens the configured driver and pairs it with its bun dialect.
func OpenDB(cfg config.DBConfig) (*bun.DB, error) {
	var d schema.Dialect
	switch cfg.Driver {
	case config.DriverSQLite:
		d = sqlitedialect.New()
	case config.DriverPostgres, config.DriverPgx:
		d = pgdialect.New()
	case config.DriverMySQL:
		d = mysqldialect.New()
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", cfg.Driver), goerrors.CategoryValidation).
			WithTextCode(ErrCodeDriver)
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return bun.NewDB(sqldb, d), nil
}

// NewCachedRepository wraps base with the container's cache store, key
// serializer and logger.
//
// Methods cannot take type parameters, so this is a package-level function.
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	opts = append([]repositorycache.Option{repositorycache.WithLogger(c.logger)}, opts...)
	return repositorycache.New(base, c.cacheService, c.keySerializer, opts...)
}

// CreateSchema creates the tables of the configured layout.
func (c *Container) CreateSchema(ctx context.Context) error {
	return orderstore.CreateSchema(ctx, c.db, c.layout)
}

// Start connects the configured event transports. The AMQP broadcaster is
// dialed first so the subscriber never handles an event without it.
func (c *Container) Start(ctx context.Context) error {
	if c.config.AMQP.URL != "" {
		b, err := events.DialAMQP(c.config.AMQP.URL, c.config.AMQP.Exchange)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "amqp broadcaster unavailable").
				WithTextCode(ErrCodeTransport)
		}
		c.broadcaster = b
		c.events = events.NewHandler(c.service, events.WithBroadcaster(b), events.WithLogger(c.logger))
	}

	if c.config.NATS.URL != "" {
		sub := events.NewNATSSubscriber(events.NATSConfig{
			URL:     c.config.NATS.URL,
			Subject: c.config.NATS.Subject,
			Queue:   c.config.NATS.Queue,
		}, c.events, c.logger)
		if err := sub.Start(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, "nats subscriber unavailable").
				WithTextCode(ErrCodeTransport)
		}
		c.subscriber = sub
	}
	return nil
}

// Close stops the transports and closes the database.
func (c *Container) Close() error {
	var errs []error
	if c.subscriber != nil {
		errs = append(errs, c.subscriber.Close())
		c.subscriber = nil
	}
	if c.broadcaster != nil {
		errs = append(errs, c.broadcaster.Close())
		c.broadcaster = nil
	}
	errs = append(errs, c.db.Close())
	return errors.Join(errs...)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the root logger.
func (c *Container) Logger() logrus.FieldLogger { return c.logger }

// DB returns the database handle.
func (c *Container) DB() *bun.DB { return c.db }

// CacheService returns the shared cache store.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// KeySerializer returns the shared key serializer.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Adapter returns the order store adapter.
func (c *Container) Adapter() *orderstore.Adapter { return c.adapter }

// Tables returns the cached dining table repository. Writes through it
// invalidate the dashboard caches.
func (c *Container) Tables() *repositorycache.CachedRepository[*orderstore.DiningTable] {
	return c.tables
}

// Compiler returns the filter compiler.
func (c *Container) Compiler() *filter.Compiler { return c.compiler }

// Responses returns the response cache.
func (c *Container) Responses() *responsecache.Cache { return c.responses }

// Service returns the dashboard service.
func (c *Container) Service() *dashboard.Service { return c.service }

// API returns the HTTP handler.
func (c *Container) API() *httpapi.Handler { return c.api }

// Events returns the mutation event handler.
func (c *Container) Events() *events.Handler { return c.events }
