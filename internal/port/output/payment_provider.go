package output

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/webhook"
)

// PaymentProvider is implemented by every gateway adapter. Adapters hold only
// immutable configuration and are safe for concurrent use.
type PaymentProvider interface {
	Name() core.Provider

	// InitiatePayment opens a checkout. Declines come back as
	// Success=false; only transport faults are returned as errors.
	InitiatePayment(ctx context.Context, req core.PaymentRequest) (*core.PaymentResponse, error)

	// VerifyPayment asks the gateway for the current status of reference.
	VerifyPayment(ctx context.Context, reference string) (*core.PaymentVerification, error)

	// RefundPayment refunds a captured transaction. The caller must have
	// checked the amount against the captured amount beforehand.
	RefundPayment(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error)

	// WebhookScheme describes how this gateway signs callbacks.
	WebhookScheme() webhook.Scheme

	// ParseWebhook decodes an already verified callback body.
	ParseWebhook(body []byte) (*core.WebhookEvent, error)
}

// MobileMoneyCharger is implemented by adapters that charge wallets directly.
type MobileMoneyCharger interface {
	ChargeMobileMoney(ctx context.Context, req core.MobileMoneyRequest) (*core.PaymentResponse, error)
	MobileMoneyNetworks(ctx context.Context, country string) ([]core.MobileNetwork, error)
}

// ExchangeRateQuoter is implemented by adapters exposing FX quotes.
type ExchangeRateQuoter interface {
	ExchangeRate(ctx context.Context, from, to core.Currency, amount decimal.Decimal) (*core.ExchangeRate, error)
}
