// Package config resolves process configuration from the environment once at
// startup. Adapters receive plain values and never read the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/palmera/payments/internal/core"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port         int
	DatabaseURL  string
	RabbitMQURL  string
	PaymentStore string

	Providers       []core.Provider
	CallbackURL     string
	ReferencePrefix string
	NodeID          int64
	GatewayTimeout  time.Duration

	Flutterwave FlutterwaveConfig
	Paystack    PaystackConfig

	ReconcileInterval time.Duration
	StaleAfter        time.Duration

	NotifyURL    string
	NotifySecret string

	LogLevel  slog.Level
	LogFormat string
}

type FlutterwaveConfig struct {
	SecretKey   string
	PublicKey   string
	WebhookHash string
	BaseURL     string
}

type PaystackConfig struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	BaseURL       string
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	intVar := func(key string, def int64) int64 {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		raw := env(key, "")
		if raw == "" {
			return def
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return def
		}
		return v
	}

	cfg := &Config{
		Port:         int(intVar("PORT", 8080)),
		DatabaseURL:  env("DATABASE_URL", ""),
		RabbitMQURL:  env("RABBITMQ_URL", ""),
		PaymentStore: strings.ToLower(env("PAYMENT_STORE", StorePostgres)),

		CallbackURL:     env("PAYMENT_CALLBACK_URL", ""),
		ReferencePrefix: env("REFERENCE_PREFIX", "palmera"),
		NodeID:          intVar("NODE_ID", 1),
		GatewayTimeout:  durationVar("GATEWAY_TIMEOUT", 20*time.Second),

		Flutterwave: FlutterwaveConfig{
			SecretKey:   env("FLUTTERWAVE_SECRET_KEY", ""),
			PublicKey:   env("FLUTTERWAVE_PUBLIC_KEY", ""),
			WebhookHash: env("FLUTTERWAVE_WEBHOOK_HASH", ""),
			BaseURL:     env("FLUTTERWAVE_BASE_URL", ""),
		},
		Paystack: PaystackConfig{
			SecretKey:     env("PAYSTACK_SECRET_KEY", ""),
			PublicKey:     env("PAYSTACK_PUBLIC_KEY", ""),
			WebhookSecret: env("PAYSTACK_WEBHOOK_SECRET", ""),
			BaseURL:       env("PAYSTACK_BASE_URL", ""),
		},

		ReconcileInterval: durationVar("RECONCILE_INTERVAL", time.Minute),
		StaleAfter:        durationVar("RECONCILE_STALE_AFTER", 2*time.Minute),

		NotifyURL:    env("NOTIFY_URL", ""),
		NotifySecret: env("NOTIFY_SECRET", ""),

		LogFormat: strings.ToLower(env("LOG_FORMAT", "json")),
	}

	for _, name := range strings.Split(env("PAYMENT_PROVIDERS", "flutterwave,paystack"), ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			cfg.Providers = append(cfg.Providers, core.Provider(name))
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Enabled reports whether p is listed in PAYMENT_PROVIDERS.
func (c *Config) Enabled(p core.Provider) bool {
	for _, name := range c.Providers {
		if name == p {
			return true
		}
	}
	return false
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.PaymentStore {
	case StorePostgres:
		require("DATABASE_URL", c.DatabaseURL)
	case StoreMemory:
	default:
		return fmt.Errorf("PAYMENT_STORE: unknown store %q", c.PaymentStore)
	}

	if len(c.Providers) == 0 {
		missing = append(missing, "PAYMENT_PROVIDERS")
	}
	for _, p := range c.Providers {
		switch p {
		case core.ProviderFlutterwave:
			require("FLUTTERWAVE_SECRET_KEY", c.Flutterwave.SecretKey)
			require("FLUTTERWAVE_PUBLIC_KEY", c.Flutterwave.PublicKey)
			require("FLUTTERWAVE_WEBHOOK_HASH", c.Flutterwave.WebhookHash)
		case core.ProviderPaystack:
			require("PAYSTACK_SECRET_KEY", c.Paystack.SecretKey)
			require("PAYSTACK_PUBLIC_KEY", c.Paystack.PublicKey)
			require("PAYSTACK_WEBHOOK_SECRET", c.Paystack.WebhookSecret)
		default:
			return fmt.Errorf("PAYMENT_PROVIDERS: %w: %s", core.ErrUnknownProvider, p)
		}
	}
	if len(c.Providers) > 0 {
		require("PAYMENT_CALLBACK_URL", c.CallbackURL)
	}
	if c.NotifyURL != "" {
		require("NOTIFY_SECRET", c.NotifySecret)
	}

	if len(missing) > 0 {
		return &core.ConfigurationError{Component: "config", Missing: missing}
	}
	return nil
}

// Logger builds the process-wide structured logger.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
