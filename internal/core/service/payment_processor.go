package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

const (
	DefaultReconcileInterval = time.Minute
	DefaultStaleAfter        = 2 * time.Minute
	DefaultReconcileBatch    = 100
)

// PaymentProcessor reconciles payments whose webhook never arrived. It polls
// the gateway for every stale INITIATED or PENDING payment and expires
// checkouts the customer abandoned.
type PaymentProcessor struct {
	service     *PaymentServiceImpl
	paymentRepo output.PaymentRepository
	interval    time.Duration
	staleAfter  time.Duration
	batch       int
	logger      *slog.Logger
}

// ProcessorConfig tunes the reconciliation loop. Zero values use defaults.
type ProcessorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Batch      int
}

// NewPaymentProcessor creates a new payment processor
func NewPaymentProcessor(svc *PaymentServiceImpl, paymentRepo output.PaymentRepository, cfg ProcessorConfig) *PaymentProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReconcileInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultReconcileBatch
	}
	return &PaymentProcessor{
		service:     svc,
		paymentRepo: paymentRepo,
		interval:    cfg.Interval,
		staleAfter:  cfg.StaleAfter,
		batch:       cfg.Batch,
		logger:      svc.logger.With("component", "reconciler"),
	}
}

// Run reconciles on every tick until ctx is cancelled.
func (p *PaymentProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("reconciliation worker started", "interval", p.interval, "stale_after", p.staleAfter)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := p.ReconcileOnce(ctx); err != nil {
				p.logger.Error("reconciliation failed", "error", err)
			}
		}
	}
}

// ReconcileResult counts what one pass did.
type ReconcileResult struct {
	Checked int
	Updated int
	Expired int
	Errors  int
}

// ReconcileOnce runs a single pass over stale payments.
func (p *PaymentProcessor) ReconcileOnce(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	now := p.service.now()
	stale, err := p.paymentRepo.FindStale(ctx, now.Add(-p.staleAfter), p.batch)
	if err != nil {
		return res, fmt.Errorf("failed to load stale payments: %w", err)
	}
	if len(stale) == 0 {
		return res, nil
	}
	p.logger.Info("found stale payments", "count", len(stale))

	for i := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		before := stale[i].Status

		payment, err := p.processPayment(ctx, &stale[i], now)
		if err != nil {
			res.Errors++
			p.logger.Warn("failed to reconcile payment", "reference", stale[i].Reference, "error", err)
			continue
		}
		switch {
		case payment.Status == before:
		case payment.Status == core.PaymentStatusFailed && before == core.PaymentStatusInitiated && !payment.ExpiresAt.After(now):
			res.Expired++
		default:
			res.Updated++
		}
	}

	p.logger.Info("reconciliation pass complete",
		"checked", res.Checked, "updated", res.Updated, "expired", res.Expired, "errors", res.Errors)
	return res, nil
}

// processPayment polls the gateway for one payment and, if it is still an
// unpaid INITIATED checkout past its expiry, fails it.
func (p *PaymentProcessor) processPayment(ctx context.Context, stale *core.Payment, now time.Time) (*core.Payment, error) {
	payment, _, err := p.service.reconcile(ctx, stale.Reference)
	if err != nil {
		return nil, err
	}
	if payment.Status != core.PaymentStatusInitiated || payment.ExpiresAt.IsZero() || payment.ExpiresAt.After(now) {
		return payment, nil
	}

	expired, _, err := p.service.applyTransition(ctx, payment.Reference, core.PaymentStatusFailed, "", nil, nil)
	if errors.Is(err, core.ErrInvalidTransition) {
		// A webhook won the race.
		return p.paymentRepo.GetByReference(ctx, payment.Reference)
	}
	if err != nil {
		return nil, err
	}
	p.logger.Info("expired abandoned checkout", "reference", payment.Reference, "expires_at", payment.ExpiresAt)
	return expired, nil
}
