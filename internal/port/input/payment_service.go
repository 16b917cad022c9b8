package input

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/core"
)

// PaymentService is an input port (primary port) for payment operations
// Primary adapters (HTTP handlers) will use this
type PaymentService interface {
	// InitiatePayment opens a checkout with the requested provider and
	// records the attempt as INITIATED
	InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error)

	// GetPayment retrieves a payment by ID
	GetPayment(ctx context.Context, id uuid.UUID) (*PaymentResponse, error)

	// VerifyPayment polls the gateway and reconciles the stored status
	VerifyPayment(ctx context.Context, reference string) (*PaymentResponse, error)

	// RefundPayment refunds all or part of a confirmed payment
	RefundPayment(ctx context.Context, req RefundPaymentRequest) (*RefundResponse, error)

	// ListRefunds lists refunds issued against a payment
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]RefundResponse, error)

	// HandleWebhook authenticates and applies a gateway callback
	HandleWebhook(ctx context.Context, provider core.Provider, body []byte, headers map[string][]string) error

	// MobileMoneyNetworks lists the wallets a provider can charge in country
	MobileMoneyNetworks(ctx context.Context, provider core.Provider, country string) ([]core.MobileNetwork, error)

	// ExchangeRate quotes an FX conversion through the provider
	ExchangeRate(ctx context.Context, provider core.Provider, from, to core.Currency, amount decimal.Decimal) (*core.ExchangeRate, error)
}

// InitiatePaymentRequest represents the request to start a payment attempt
type InitiatePaymentRequest struct {
	BookingID   string
	Amount      decimal.Decimal
	Currency    core.Currency
	Provider    core.Provider
	Method      core.Method
	Reference   string
	Customer    core.Customer
	Network     string
	Country     string
	RedirectURL string
	Metadata    map[string]string
}

// InitiatePaymentResponse carries the stored attempt and how the customer
// completes it
type InitiatePaymentResponse struct {
	Payment      PaymentResponse
	RedirectURL  string
	QRCode       string
	Instructions string
}

// PaymentResponse represents the response for a payment
type PaymentResponse struct {
	ID           uuid.UUID
	BookingID    string
	Reference    string
	Amount       decimal.Decimal
	Currency     core.Currency
	Status       core.PaymentStatus
	Method       core.Method
	Provider     core.Provider
	ProviderID   string
	ExpiresAt    time.Time
	SupersededBy *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefundPaymentRequest asks for a refund; a nil Amount refunds the full
// remaining balance
type RefundPaymentRequest struct {
	PaymentID uuid.UUID
	Amount    *decimal.Decimal
	Reason    string
}

// RefundResponse represents a refund record
type RefundResponse struct {
	ID               uuid.UUID
	PaymentID        uuid.UUID
	Amount           decimal.Decimal
	Currency         core.Currency
	Reason           string
	Status           core.RefundStatus
	ProviderRefundID string
	CreatedAt        time.Time
}

// NewPaymentResponse converts a domain payment into its port representation
func NewPaymentResponse(p *core.Payment) PaymentResponse {
	return PaymentResponse{
		ID:           p.ID,
		BookingID:    p.BookingID,
		Reference:    p.Reference,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		Method:       p.Method,
		Provider:     p.Provider,
		ProviderID:   p.ProviderID,
		ExpiresAt:    p.ExpiresAt,
		SupersededBy: p.SupersededBy,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// NewRefundResponse converts a domain refund into its port representation
func NewRefundResponse(r *core.Refund) RefundResponse {
	return RefundResponse{
		ID:               r.ID,
		PaymentID:        r.PaymentID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Reason:           r.Reason,
		Status:           r.Status,
		ProviderRefundID: r.ProviderRefundID,
		CreatedAt:        r.CreatedAt,
	}
}
