package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentExpiry is how long a checkout stays payable after initiation.
const PaymentExpiry = 30 * time.Minute

// Customer identifies the payer to the gateway.
type Customer struct {
	Email string
	Phone string
	Name  string
}

// PaymentRequest is handed to an adapter once and not modified afterwards.
// Reference is the idempotency key for this attempt; adapters generate one
// when it is empty.
type PaymentRequest struct {
	Amount      Money
	Reference   string
	Customer    Customer
	Metadata    map[string]string
	RedirectURL string
}

// MobileMoneyRequest charges a mobile-money wallet directly.
type MobileMoneyRequest struct {
	PaymentRequest
	Network string
	Country string
}

// PaymentResponse is produced once per initiate call. Exactly one of
// RedirectURL, QRCode and Instructions carries the completion channel.
type PaymentResponse struct {
	Success           bool
	Reference         string
	ProviderReference string
	Amount            Money
	Status            PaymentStatus
	RedirectURL       string
	QRCode            string
	Instructions      string
	ExpiresAt         time.Time
	Raw               []byte
	Error             string
}

// PaymentVerification is a gateway's current view of a payment.
type PaymentVerification struct {
	Success           bool
	Reference         string
	Status            PaymentStatus
	Amount            Money
	ProviderReference string
	Raw               []byte
	Error             string
}

// RefundRequest asks a gateway to refund a captured transaction.
// A nil Amount means a full refund.
type RefundRequest struct {
	Reference         string
	ProviderReference string
	Amount            *Money
	Reason            string
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	Success  bool
	RefundID string
	Status   RefundStatus
	Error    string
}

// EventKind is the normalized meaning of a gateway webhook.
type EventKind string

const (
	EventChargeSucceeded   EventKind = "charge.succeeded"
	EventChargePending     EventKind = "charge.pending"
	EventChargeFailed      EventKind = "charge.failed"
	EventTransferSucceeded EventKind = "transfer.succeeded"
	EventTransferFailed    EventKind = "transfer.failed"
	EventUnknown           EventKind = "unknown"
)

// WebhookEvent is a verified gateway callback in provider-neutral form.
type WebhookEvent struct {
	Provider          Provider
	Name              string
	Kind              EventKind
	Reference         string
	ProviderReference string
	Amount            Money
	Raw               []byte
}

// MobileNetwork is a mobile-money operator a gateway can charge.
type MobileNetwork struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}

// ExchangeRate is a one-off FX quote. Consecutive quotes are not guaranteed
// to be consistent with each other.
type ExchangeRate struct {
	Source      Money           `json:"source"`
	Destination Money           `json:"destination"`
	Rate        decimal.Decimal `json:"rate"`
}
