package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the gateway-side state of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusProcessed RefundStatus = "PROCESSED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Refund is a refund issued against a CONFIRMED payment.
type Refund struct {
	ID               uuid.UUID
	PaymentID        uuid.UUID
	Amount           decimal.Decimal
	Currency         Currency
	Reason           string
	Status           RefundStatus
	ProviderRefundID string
	CreatedAt        time.Time
}

// Counts reports whether the refund consumes refundable balance.
func (r *Refund) Counts() bool {
	return r.Status != RefundStatusFailed
}

// RefundableBalance returns how much of p may still be refunded given the
// refunds already recorded against it.
func RefundableBalance(p *Payment, refunds []Refund) decimal.Decimal {
	remaining := p.Amount
	for i := range refunds {
		if refunds[i].Counts() {
			remaining = remaining.Sub(refunds[i].Amount)
		}
	}
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}
