package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr: "0.0.0.0:8080",
		Storage: StorageConfig{
			Driver:      "Postgres",
			DatabaseURL: "postgres://localhost/storefront",
		},
		Orders: OrdersConfig{
			TotalPolicy:   "verify",
			InitialStatus: "pending",
		},
		Notify:  NotifyConfig{Workers: 2, QueueSize: 16},
		Revenue: RevenueConfig{Timezone: "UTC"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{"Valid", func(*Config) {}, ""},
		{"SQLite", func(c *Config) {
			c.Storage = StorageConfig{Driver: DriverSQLite, SQLitePath: "x.db"}
		}, ""},
		{"NoDatabaseURL", func(c *Config) { c.Storage.DatabaseURL = "" }, "database URL is required"},
		{"NoSQLitePath", func(c *Config) {
			c.Storage = StorageConfig{Driver: DriverSQLite}
		}, "sqlite path is required"},
		{"UnknownDriver", func(c *Config) { c.Storage.Driver = "mysql" }, `unknown storage driver "mysql"`},
		{"UnknownPolicy", func(c *Config) { c.Orders.TotalPolicy = "guess" }, `unknown total policy "guess"`},
		{"EmptyInitialStatus", func(c *Config) { c.Orders.InitialStatus = " " }, "initial status"},
		{"BadTimezone", func(c *Config) { c.Revenue.Timezone = "Mars/Olympus" }, "revenue timezone"},
		{"NoWorkers", func(c *Config) { c.Notify.Workers = 0 }, "notify workers must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateLowercasesDriver(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
}

func TestRevenueConfig_Location(t *testing.T) {
	loc, err := RevenueConfig{Timezone: "Europe/Berlin"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	at := time.Date(2025, 3, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-04-01", at.In(loc).Format("2006-01-02"))
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:7000", Storage: StorageConfig{DatabaseURL: "postgres://explicit/db"}}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestNewSenders(t *testing.T) {
	senders, closers, err := newSenders(NotifyConfig{})
	require.NoError(t, err)
	assert.Empty(t, senders)
	assert.Empty(t, closers)

	senders, closers, err = newSenders(NotifyConfig{
		SMTP:  SMTPConfig{Host: "smtp.example.com", Port: 587, From: "orders@example.com", TLS: "mandatory"},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "orders"},
	})
	require.NoError(t, err)
	require.Len(t, senders, 2)
	assert.Equal(t, "email", senders[0].Name())
	assert.Equal(t, "kafka", senders[1].Name())
	require.Len(t, closers, 1)
	require.NoError(t, closers[0].Close())

	_, _, err = newSenders(NotifyConfig{SMTP: SMTPConfig{Host: "smtp.example.com", TLS: "sometimes"}})
	require.Error(t, err)
}

func TestOpenBackend_SQLite(t *testing.T) {
	b, err := OpenBackend(t.Context(), StorageConfig{
		Driver:     DriverSQLite,
		SQLitePath: t.TempDir() + "/storefront.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Ping(t.Context()))
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
