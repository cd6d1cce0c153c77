package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/kickzhub/storefront/internal/domain/order"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the complete application configuration, loadable from
// environment variables (KICKZ_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Orders    OrdersConfig
	Notify    NotifyConfig
	Revenue   RevenueConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the database backend.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage driver: postgres or sqlite"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KICKZ_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SQLitePath  string `default:"storefront.db" usage:"SQLite database file" flag:"sqlite-path"`
}

// OrdersConfig tunes the checkout workflow.
type OrdersConfig struct {
	TotalPolicy     string `default:"verify" usage:"Order total policy: trust, verify or compute"`
	RestockOnCancel bool   `default:"false" usage:"Return reserved stock when an order is cancelled"`
	InitialStatus   string `default:"pending" usage:"Status of new orders when the request omits one"`
}

// NotifyConfig controls order confirmation delivery.
type NotifyConfig struct {
	Workers     int           `default:"2" usage:"Notification workers"`
	QueueSize   int           `default:"256" usage:"Pending notification capacity; overflow is dropped"`
	SendTimeout time.Duration `default:"10s" usage:"Timeout of one delivery attempt"`
	SMTP        SMTPConfig
	Kafka       KafkaConfig
}

// SMTPConfig enables email confirmations when Host is set.
type SMTPConfig struct {
	Host     string `usage:"SMTP host; empty disables email"`
	Port     int    `default:"587"`
	Username string
	Password string
	From     string `default:"orders@kickzhub.local"`
	TLS      string `default:"mandatory" usage:"mandatory, opportunistic or none"`
}

// KafkaConfig enables order.created events when Brokers is set.
type KafkaConfig struct {
	Brokers      []string      `usage:"Kafka brokers; empty disables events"`
	Topic        string        `default:"orders"`
	WriteTimeout time.Duration `default:"5s"`
}

// RevenueConfig sets the calendar used for revenue buckets.
type RevenueConfig struct {
	Timezone string `default:"UTC" usage:"IANA time zone of revenue days and months"`
}

// RateLimitConfig controls the per-client token bucket on write requests.
type RateLimitConfig struct {
	PerSecond float64       `default:"5" usage:"Sustained write requests per second per client; 0 disables"`
	Burst     int           `default:"20" usage:"Write request burst per client"`
	IdleTTL   time.Duration `default:"10m" usage:"Forget clients idle for this long"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
	MaxAge  int      `default:"86400" usage:"Preflight cache duration in seconds"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KICKZ",
		Files:     []string{"config.yaml", "/etc/kickz/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KICKZ_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set KICKZ_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch order.TotalPolicy(c.Orders.TotalPolicy) {
	case order.TotalTrust, order.TotalVerify, order.TotalCompute:
	default:
		return errors.Errorf("unknown total policy %q", c.Orders.TotalPolicy)
	}
	if _, err := order.ParseStatus(c.Orders.InitialStatus); err != nil {
		return errors.Wrap(err, "initial status")
	}
	if _, err := c.Revenue.Location(); err != nil {
		return err
	}
	if c.Notify.Workers < 1 {
		return errors.New("notify workers must be positive")
	}
	return nil
}

// Location resolves Timezone.
func (c RevenueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "revenue timezone %q", c.Timezone)
	}
	return loc, nil
}
