package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig tunes the transaction coordinator and its background jobs.
type LedgerConfig struct {
	DefaultCurrency   string
	StoreBackend      string // "postgres" or "memory"
	SweepSchedule     string
	PendingTimeout    time.Duration
	HoldingsCacheTTL  time.Duration
	PaymentRequestTTL time.Duration
	SellLockTTL       time.Duration
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

type Config struct {
	Ledger LedgerConfig
	Server ServerConfig
	Log    LogConfig
}

var envBindings = map[string]string{
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"redis.host":                 "REDIS_HOST",
	"redis.port":                 "REDIS_PORT",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"ledger.default_currency":    "LEDGER_DEFAULT_CURRENCY",
	"ledger.store_backend":       "LEDGER_STORE_BACKEND",
	"ledger.sweep_schedule":      "LEDGER_SWEEP_SCHEDULE",
	"ledger.pending_timeout":     "LEDGER_PENDING_TIMEOUT",
	"ledger.holdings_cache_ttl":  "LEDGER_HOLDINGS_CACHE_TTL",
	"ledger.payment_request_ttl": "LEDGER_PAYMENT_REQUEST_TTL",
	"ledger.sell_lock_ttl":       "LEDGER_SELL_LOCK_TTL",
	"server.port":                "PORT",
	"server.allowed_origins":     "SERVER_ALLOWED_ORIGINS",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	defaultTo(v, "ledger.default_currency", "ZAR")
	defaultTo(v, "ledger.store_backend", "postgres")
	defaultTo(v, "ledger.sweep_schedule", "@every 1m")
	defaultTo(v, "ledger.pending_timeout", 5*time.Minute)
	defaultTo(v, "ledger.holdings_cache_ttl", 10*time.Minute)
	defaultTo(v, "ledger.payment_request_ttl", 15*time.Minute)
	defaultTo(v, "ledger.sell_lock_ttl", 10*time.Second)

	defaultTo(v, "server.port", "8080")
	defaultTo(v, "server.read_timeout", 15*time.Second)
	defaultTo(v, "server.write_timeout", 15*time.Second)
	defaultTo(v, "server.shutdown_timeout", 30*time.Second)
	defaultTo(v, "server.allowed_origins", []string{"https://*", "http://*"})

	defaultTo(v, "log.level", "info")
	defaultTo(v, "log.format", "json")
}

func defaultTo(v *viper.Viper, key string, value interface{}) {
	if !v.IsSet(key) {
		v.SetDefault(key, value)
	}
}

// Init points v at an optional .env file and binds environment overrides.
// A read failure is returned, but env bindings and defaults still apply.
func Init(v *viper.Viper, file string) error {
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		// dotenv files are keyed by the variable name, not the dotted key
		for key, env := range envBindings {
			name := strings.ToLower(env)
			if _, fromEnv := os.LookupEnv(env); !fromEnv && v.InConfig(name) {
				v.Set(key, v.Get(name))
			}
		}
	}
	setDefaults(v)
	if err != nil {
		return fmt.Errorf("config file %s not loaded: %w", file, err)
	}
	return nil
}

// Load reads the typed configuration out of v.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Ledger: LedgerConfig{
			DefaultCurrency:   strings.ToUpper(v.GetString("ledger.default_currency")),
			StoreBackend:      strings.ToLower(v.GetString("ledger.store_backend")),
			SweepSchedule:     v.GetString("ledger.sweep_schedule"),
			PendingTimeout:    v.GetDuration("ledger.pending_timeout"),
			HoldingsCacheTTL:  v.GetDuration("ledger.holdings_cache_ttl"),
			PaymentRequestTTL: v.GetDuration("ledger.payment_request_ttl"),
			SellLockTTL:       v.GetDuration("ledger.sell_lock_ttl"),
		},
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	switch cfg.Ledger.StoreBackend {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown ledger.store_backend %q", cfg.Ledger.StoreBackend)
	}
	if cfg.Ledger.PendingTimeout <= 0 {
		return nil, fmt.Errorf("ledger.pending_timeout must be positive")
	}
	return cfg, nil
}
