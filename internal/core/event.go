package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a notification emitted after a state change.
type EventType string

const (
	EventPaymentInitiated EventType = "payment.initiated"
	EventPaymentPending   EventType = "payment.pending"
	EventPaymentConfirmed EventType = "payment.confirmed"
	EventPaymentFailed    EventType = "payment.failed"
	EventRefundCreated    EventType = "refund.created"
	EventPayoutCompleted  EventType = "payout.completed"
	EventPayoutFailed     EventType = "payout.failed"
)

// PaymentEvent is what the booking and notification collaborators receive.
// It is emitted only when a record actually changed.
type PaymentEvent struct {
	Type       EventType     `json:"type"`
	PaymentID  uuid.UUID     `json:"payment_id,omitempty"`
	RefundID   uuid.UUID     `json:"refund_id,omitempty"`
	BookingID  string        `json:"booking_id,omitempty"`
	Reference  string        `json:"reference"`
	Provider   Provider      `json:"provider"`
	Status     PaymentStatus `json:"status,omitempty"`
	Amount     string        `json:"amount"`
	Currency   Currency      `json:"currency"`
	Superseded bool          `json:"superseded,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// StatusEventType maps a payment status to its notification type.
func StatusEventType(s PaymentStatus) EventType {
	switch s {
	case PaymentStatusPending:
		return EventPaymentPending
	case PaymentStatusConfirmed:
		return EventPaymentConfirmed
	case PaymentStatusFailed:
		return EventPaymentFailed
	}
	return EventPaymentInitiated
}

// NewPaymentEvent builds the notification for p's current status.
func NewPaymentEvent(p *Payment, now time.Time) PaymentEvent {
	return PaymentEvent{
		Type:       StatusEventType(p.Status),
		PaymentID:  p.ID,
		BookingID:  p.BookingID,
		Reference:  p.Reference,
		Provider:   p.Provider,
		Status:     p.Status,
		Amount:     p.Amount.String(),
		Currency:   p.Currency,
		Superseded: p.IsSuperseded(),
		Timestamp:  now,
	}
}
