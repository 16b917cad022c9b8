package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/palmera/payments/internal/adapter/secondary/notify"
	"github.com/palmera/payments/internal/app"
	"github.com/palmera/payments/internal/config"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/service"
	"github.com/palmera/payments/internal/port/output"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger().With("process", "worker")
	slog.SetDefault(logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notifier output.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotifyURL != "" {
		notifier, err = notify.NewHTTPNotifier(cfg.NotifyURL, cfg.NotifySecret, 10*time.Second, logger)
		if err != nil {
			logger.Error("failed to create notifier", "error", err)
			os.Exit(1)
		}
	}

	// Start consuming payment events
	if application.RabbitMQ != nil {
		err = application.RabbitMQ.ConsumePaymentEvents(ctx, func(ctx context.Context, event core.PaymentEvent) error {
			return notifier.Notify(ctx, event)
		})
		if err != nil {
			logger.Error("failed to start consuming events", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("RABBITMQ_URL not set; only reconciliation will run")
	}

	// Reconcile payments whose webhook never arrived
	processor := service.NewPaymentProcessor(application.Service, application.Repo, service.ProcessorConfig{
		Interval:   cfg.ReconcileInterval,
		StaleAfter: cfg.StaleAfter,
	})

	logger.Info("payment worker started, press CTRL+C to exit")
	processor.Run(ctx)

	logger.Info("shutting down worker")
}
