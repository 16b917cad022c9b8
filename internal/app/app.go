// Package app wires configuration into the adapters and services shared by
// the api and worker binaries.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/palmera/payments/internal/adapter/secondary/database"
	"github.com/palmera/payments/internal/adapter/secondary/gateway/flutterwave"
	"github.com/palmera/payments/internal/adapter/secondary/gateway/paystack"
	"github.com/palmera/payments/internal/adapter/secondary/memory"
	"github.com/palmera/payments/internal/adapter/secondary/messaging"
	"github.com/palmera/payments/internal/config"
	"github.com/palmera/payments/internal/constant/model/db"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/reference"
	"github.com/palmera/payments/internal/core/service"
	"github.com/palmera/payments/internal/port/output"
)

// App holds the long-lived components of a process
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Repo      output.PaymentRepository
	Messaging output.PaymentMessaging
	// RabbitMQ is nil when RABBITMQ_URL is unset
	RabbitMQ *messaging.RabbitMQClient
	Service  *service.PaymentServiceImpl

	closers []func() error
}

// New connects storage and messaging and builds the payment service
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	refs, err := reference.NewGenerator(cfg.ReferencePrefix, cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create reference generator: %w", err)
	}

	providers, err := NewProviders(cfg, refs, &http.Client{Timeout: cfg.GatewayTimeout})
	if err != nil {
		return nil, err
	}

	switch cfg.PaymentStore {
	case config.StoreMemory:
		logger.Warn("using in-memory payment store; records are lost on restart")
		a.Repo = memory.NewPaymentRepository()
	default:
		dbConn, err := db.NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, dbConn.Close)
		a.Repo = database.NewGormPaymentRepository(dbConn.DB)
	}

	if cfg.RabbitMQURL != "" {
		client, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.RabbitMQ = client
		a.Messaging = client
	} else {
		logger.Warn("RABBITMQ_URL not set; payment events will only be logged")
		a.Messaging = messaging.NewLogPublisher(logger)
	}

	a.Service = service.NewPaymentService(providers, a.Repo, a.Messaging, refs, service.WithLogger(logger))
	return a, nil
}

// NewProviders builds an adapter for every enabled provider
func NewProviders(cfg *config.Config, refs *reference.Generator, httpClient *http.Client) (*service.ProviderRegistry, error) {
	registry := service.NewProviderRegistry()

	if cfg.Enabled(core.ProviderFlutterwave) {
		fw, err := flutterwave.New(flutterwave.Config{
			SecretKey:   cfg.Flutterwave.SecretKey,
			PublicKey:   cfg.Flutterwave.PublicKey,
			WebhookHash: cfg.Flutterwave.WebhookHash,
			CallbackURL: cfg.CallbackURL,
			BaseURL:     cfg.Flutterwave.BaseURL,
		}, refs, httpClient)
		if err != nil {
			return nil, err
		}
		registry.Register(fw)
	}

	if cfg.Enabled(core.ProviderPaystack) {
		ps, err := paystack.New(paystack.Config{
			SecretKey:     cfg.Paystack.SecretKey,
			PublicKey:     cfg.Paystack.PublicKey,
			WebhookSecret: cfg.Paystack.WebhookSecret,
			CallbackURL:   cfg.CallbackURL,
			BaseURL:       cfg.Paystack.BaseURL,
		}, refs, httpClient)
		if err != nil {
			return nil, err
		}
		registry.Register(ps)
	}

	if len(registry.Names()) == 0 {
		return nil, errors.New("no payment providers enabled")
	}
	return registry, nil
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
