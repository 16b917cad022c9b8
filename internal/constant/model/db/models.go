package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusProcessed RefundStatus = "PROCESSED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Payment represents a payment attempt in the database
type Payment struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	BookingID    string          `gorm:"type:varchar(64);not null;index" json:"booking_id"`
	Reference    string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"reference"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency     string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status       PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Method       string          `gorm:"type:varchar(20);not null" json:"method"`
	Provider     string          `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderID   string          `gorm:"type:varchar(128)" json:"provider_id"`
	ProviderData datatypes.JSON  `gorm:"type:jsonb" json:"provider_data,omitempty"`
	ExpiresAt    time.Time       `gorm:"not null" json:"expires_at"`
	SupersededBy *uuid.UUID      `gorm:"type:uuid" json:"superseded_by,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"updated_at"`

	Refunds []Refund `gorm:"foreignKey:PaymentID" json:"-"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return nil
}

// Refund represents a refund issued against a payment
type Refund struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	PaymentID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"payment_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	Reason           string          `gorm:"type:varchar(255)" json:"reason"`
	Status           RefundStatus    `gorm:"type:varchar(20);not null" json:"status"`
	ProviderRefundID string          `gorm:"type:varchar(128)" json:"provider_refund_id"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Refund) TableName() string {
	return "refunds"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.Must(uuid.NewV7())
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	return nil
}
