// Package config loads the service configuration from ORDERS_* environment
// variables.
package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/goliatone/go-orders-master/cache"
	"github.com/goliatone/go-orders-master/orderstore"
	"github.com/goliatone/go-orders-master/responsecache"
)

// Prefix is the environment variable prefix.
const Prefix = "ORDERS"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
)

// Config is the full service configuration.
type Config struct {
	DB      DBConfig                `envconfig:"DB"`
	Layout  string                  `envconfig:"LAYOUT" default:"orders_table"`
	Cache   cache.Config            `envconfig:"CACHE"`
	TTL     responsecache.TTLPolicy `envconfig:"TTL"`
	Workers int                     `envconfig:"WORKERS" default:"4"`
	HTTP    HTTPConfig              `envconfig:"HTTP"`
	NATS    NATSConfig              `envconfig:"NATS"`
	AMQP    AMQPConfig              `envconfig:"AMQP"`
	Log     LogConfig               `envconfig:"LOG"`
}

// DBConfig selects the order store.
type DBConfig struct {
	Driver          string        `envconfig:"DRIVER" default:"sqlite3"`
	DSN             string        `envconfig:"DSN" default:"file:orders.db?cache=shared"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// NATSConfig locates the inbound event stream. An empty URL disables it.
type NATSConfig struct {
	URL     string `envconfig:"URL"`
	Subject string `envconfig:"SUBJECT" default:"orders.events"`
	Queue   string `envconfig:"QUEUE"`
}

// AMQPConfig locates the invalidation broadcast. An empty URL disables it.
type AMQPConfig struct {
	URL      string `envconfig:"URL"`
	Exchange string `envconfig:"EXCHANGE" default:"orders.invalidations"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		DB: DBConfig{
			Driver:          DriverSQLite,
			DSN:             "file:orders.db?cache=shared",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Layout:  orderstore.LayoutOrdersTable,
		Cache:   cache.DefaultConfig(),
		TTL:     responsecache.DefaultTTLPolicy(),
		Workers: 4,
		HTTP:    HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		NATS:    NATSConfig{Subject: "orders.events"},
		AMQP:    AMQPConfig{Exchange: "orders.invalidations"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "cannot read configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DB),
		validation.Field(&c.Layout, validation.Required, validation.In(orderstore.LayoutLegacy, orderstore.LayoutOrdersTable)),
		validation.Field(&c.Cache),
		validation.Field(&c.TTL, validation.By(ttlWithin(c.Cache.TTL))),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.HTTP),
		validation.Field(&c.Log),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

// Validate checks the database section.
func (c DBConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres, DriverPgx, DriverMySQL)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
	)
}

// Validate checks the listener section.
func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// Validate checks the logging section.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("trace", "debug", "info", "warn", "warning", "error", "fatal", "panic")),
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

// ttlWithin checks the response TTLs against the cache store lifetime,
// which caps every entry it holds.
func ttlWithin(ceiling time.Duration) validation.RuleFunc {
	return func(value any) error {
		p, _ := value.(responsecache.TTLPolicy)
		rules := func() []validation.Rule {
			r := []validation.Rule{validation.Required, validation.Min(time.Second)}
			if ceiling > 0 {
				r = append(r, validation.Max(ceiling).Error("must be no greater than the cache TTL ("+ceiling.String()+")"))
			}
			return r
		}
		return validation.ValidateStruct(&p,
			validation.Field(&p.Search, rules()...),
			validation.Field(&p.Completed, rules()...),
			validation.Field(&p.Active, rules()...),
			validation.Field(&p.Ready, rules()...),
			validation.Field(&p.Default, rules()...),
		)
	}
}
