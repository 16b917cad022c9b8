package output

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/palmera/payments/internal/core"
)

// RefundValidator checks a refund against the locked payment and the refunds
// already recorded for it.
type RefundValidator func(payment *core.Payment, existing []core.Refund) error

// PaymentRepository is an output port (secondary port) for payment data access
// Secondary adapters (database implementations) will implement this
type PaymentRepository interface {
	// Create creates a new payment
	Create(ctx context.Context, payment *core.Payment) error

	// GetByID retrieves a payment by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*core.Payment, error)

	// GetByReference retrieves a payment by its gateway transaction reference
	GetByReference(ctx context.Context, reference string) (*core.Payment, error)

	// ReferenceExists checks if a reference already exists
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// ListByBooking returns every attempt recorded for a booking, oldest first
	ListByBooking(ctx context.Context, bookingID string) ([]core.Payment, error)

	// Supersede links the booking's earlier non-terminal attempts to newID.
	// Ids come from core.NewID, so "earlier" is id order.
	Supersede(ctx context.Context, bookingID string, newID uuid.UUID) (int64, error)

	// Transition moves the payment identified by reference to next while
	// holding an exclusive lock on it, so concurrent webhooks and polls for
	// the same reference apply one after another. changed is false when the
	// payment already had status next.
	Transition(ctx context.Context, reference string, next core.PaymentStatus, providerID string, providerData []byte) (payment *core.Payment, changed bool, err error)

	// FindStale returns INITIATED or PENDING payments last updated before
	// the given time
	FindStale(ctx context.Context, before time.Time, limit int) ([]core.Payment, error)

	// CreateRefund inserts refund after validate accepts it; validation and
	// insert happen under the payment's lock
	CreateRefund(ctx context.Context, refund *core.Refund, validate RefundValidator) error

	// UpdateRefund records the gateway outcome of a refund
	UpdateRefund(ctx context.Context, id uuid.UUID, status core.RefundStatus, providerRefundID string) error

	// ListRefunds returns the refunds recorded against a payment
	ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]core.Refund, error)
}
