// README: Config loader; env vars parsed into typed sections for HTTP, stores, Firebase, payments and order timing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

type OrderConfig struct {
	Store                 string        `env:"ORDER_STORE" envDefault:"firestore"`
	PaymentTimeoutMinutes int           `env:"ORDER_PAYMENT_TIMEOUT_MINUTES"`
	SweepInterval         time.Duration `env:"ORDER_SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize        int           `env:"ORDER_SWEEP_BATCH_SIZE" envDefault:"100"`
	SubscriptionFallback  time.Duration `env:"ORDER_SUBSCRIPTION_FALLBACK" envDefault:"5s"`
	PlatformFeePercent    int64         `env:"ORDER_PLATFORM_FEE_PERCENT" envDefault:"10"`
	Currency              string        `env:"ORDER_CURRENCY" envDefault:"BRL"`
}

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTP     struct {
		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	}
	DB struct {
		DSN string `env:"DB_DSN"`
	}
	Redis struct {
		Addr string `env:"REDIS_ADDR"`
	}
	Firebase struct {
		ProjectID       string `env:"FIREBASE_PROJECT_ID"`
		CredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
		DatabaseURL     string `env:"FIREBASE_DATABASE_URL"`
	}
	Directory struct {
		// File seeds the in-memory directory when ORDER_STORE=memory.
		File     string        `env:"DIRECTORY_FILE"`
		CacheTTL time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"10m"`
	}
	Payment struct {
		AccessToken     string `env:"MERCADOPAGO_ACCESS_TOKEN"`
		Mock            bool   `env:"PAYMENT_GATEWAY_MOCK"`
		NotificationURL string `env:"PAYMENT_NOTIFICATION_URL"`
		WebhookToken    string `env:"PAYMENT_WEBHOOK_TOKEN"`
	}
	Order OrderConfig
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("config: APP_ENV %q is not one of development, test, production", c.Env)
	}
	switch c.Order.Store {
	case StoreFirestore, StoreMemory:
	default:
		return fmt.Errorf("config: ORDER_STORE %q is not one of firestore, memory", c.Order.Store)
	}
	if c.Order.Store == StoreMemory && c.Env == EnvProduction {
		return fmt.Errorf("config: ORDER_STORE=memory is not allowed in production")
	}
	if c.Order.PaymentTimeoutMinutes < 0 {
		return fmt.Errorf("config: ORDER_PAYMENT_TIMEOUT_MINUTES must not be negative")
	}
	if c.Order.SweepBatchSize <= 0 {
		return fmt.Errorf("config: ORDER_SWEEP_BATCH_SIZE must be positive")
	}
	if c.Order.PlatformFeePercent < 0 || c.Order.PlatformFeePercent > 100 {
		return fmt.Errorf("config: ORDER_PLATFORM_FEE_PERCENT must be within 0..100")
	}
	return nil
}

// PaymentTimeout is the window a client has to pay after creating an order.
// Unset, it is short outside production so the sweep can be exercised locally.
func (c Config) PaymentTimeout() time.Duration {
	if c.Order.PaymentTimeoutMinutes > 0 {
		return time.Duration(c.Order.PaymentTimeoutMinutes) * time.Minute
	}
	if c.Env == EnvProduction {
		return 24 * time.Hour
	}
	return 15 * time.Minute
}

func (c Config) FirebaseEnabled() bool {
	return c.Firebase.ProjectID != ""
}
