package core

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Valid reports whether s is one of the four canonical statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Re-applying the current status is allowed and is a no-op.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PaymentStatusInitiated:
		return next == PaymentStatusPending || next == PaymentStatusConfirmed || next == PaymentStatusFailed
	case PaymentStatusPending:
		return next == PaymentStatusConfirmed || next == PaymentStatusFailed
	}
	return false
}

// Provider names a payment gateway.
type Provider string

const (
	ProviderFlutterwave Provider = "flutterwave"
	ProviderPaystack    Provider = "paystack"
)

// Method is the payment method requested by the customer.
type Method string

const (
	MethodCheckout    Method = "checkout"
	MethodCard        Method = "card"
	MethodMobileMoney Method = "mobile_money"
)

// Payment represents a payment domain entity. Records are never deleted;
// refunds are tracked as separate Refund records.
type Payment struct {
	ID           uuid.UUID
	BookingID    string
	Reference    string
	Amount       decimal.Decimal
	Currency     Currency
	Status       PaymentStatus
	Method       Method
	Provider     Provider
	ProviderID   string
	ProviderData []byte
	ExpiresAt    time.Time
	SupersededBy *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewID returns a time-ordered (version 7) identifier, so an attempt created
// later always sorts after an earlier one.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// CreatedBefore reports whether id was issued before other.
func CreatedBefore(id, other uuid.UUID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Money returns the captured amount as a Money value.
func (p *Payment) Money() Money {
	return Money{Amount: p.Amount, Currency: p.Currency}
}

// IsPending checks if payment is waiting for a final gateway status
func (p *Payment) IsPending() bool {
	return p.Status == PaymentStatusInitiated || p.Status == PaymentStatusPending
}

// IsTerminal checks if payment is in a terminal state
func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// IsSuperseded reports whether a later attempt replaced this one.
func (p *Payment) IsSuperseded() bool {
	return p.SupersededBy != nil
}

// Transition applies next to the payment.
//
// It returns changed=false without error when next equals the current status,
// so redelivered webhooks and repeated polls are harmless. A move the state
// machine forbids returns ErrInvalidTransition and leaves p untouched.
func (p *Payment) Transition(next PaymentStatus, providerID string, providerData []byte, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, &TransitionError{From: p.Status, To: next}
	}
	if !p.Status.CanTransitionTo(next) {
		return false, &TransitionError{From: p.Status, To: next}
	}
	if p.Status == next {
		return false, nil
	}
	p.Status = next
	if providerID != "" {
		p.ProviderID = providerID
	}
	if len(providerData) > 0 {
		p.ProviderData = providerData
	}
	p.UpdatedAt = now
	return true, nil
}
