package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/palmera/payments/internal/constant/model/db"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

// GormPaymentRepository is a secondary adapter that implements PaymentRepository output port
type GormPaymentRepository struct {
	gormDB *gorm.DB
	now    func() time.Time
}

// NewGormPaymentRepository creates a new GORM payment repository
func NewGormPaymentRepository(gormDB *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{gormDB: gormDB, now: time.Now}
}

var _ output.PaymentRepository = (*GormPaymentRepository)(nil)

// toCore converts db.Payment to core.Payment
func toCore(p *db.Payment) *core.Payment {
	return &core.Payment{
		ID:           p.ID,
		BookingID:    p.BookingID,
		Reference:    p.Reference,
		Amount:       p.Amount,
		Currency:     core.Currency(p.Currency),
		Status:       core.PaymentStatus(p.Status),
		Method:       core.Method(p.Method),
		Provider:     core.Provider(p.Provider),
		ProviderID:   p.ProviderID,
		ProviderData: []byte(p.ProviderData),
		ExpiresAt:    p.ExpiresAt,
		SupersededBy: p.SupersededBy,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// fromCore converts core.Payment to db.Payment
func fromCore(p *core.Payment) *db.Payment {
	return &db.Payment{
		ID:           p.ID,
		BookingID:    p.BookingID,
		Reference:    p.Reference,
		Amount:       p.Amount,
		Currency:     string(p.Currency),
		Status:       db.PaymentStatus(p.Status),
		Method:       string(p.Method),
		Provider:     string(p.Provider),
		ProviderID:   p.ProviderID,
		ProviderData: jsonColumn(p.ProviderData),
		ExpiresAt:    p.ExpiresAt,
		SupersededBy: p.SupersededBy,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func refundToCore(r *db.Refund) core.Refund {
	return core.Refund{
		ID:               r.ID,
		PaymentID:        r.PaymentID,
		Amount:           r.Amount,
		Currency:         core.Currency(r.Currency),
		Reason:           r.Reason,
		Status:           core.RefundStatus(r.Status),
		ProviderRefundID: r.ProviderRefundID,
		CreatedAt:        r.CreatedAt,
	}
}

func refundFromCore(r *core.Refund) *db.Refund {
	return &db.Refund{
		ID:               r.ID,
		PaymentID:        r.PaymentID,
		Amount:           r.Amount,
		Currency:         string(r.Currency),
		Reason:           r.Reason,
		Status:           db.RefundStatus(r.Status),
		ProviderRefundID: r.ProviderRefundID,
		CreatedAt:        r.CreatedAt,
	}
}

// jsonColumn keeps only well-formed JSON; gateway bodies that are not JSON
// are dropped rather than failing the write.
func jsonColumn(raw []byte) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

// Create creates a new payment
func (r *GormPaymentRepository) Create(ctx context.Context, payment *core.Payment) error {
	dbPayment := fromCore(payment)
	if err := r.gormDB.WithContext(ctx).Create(dbPayment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return core.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	// Update core entity with values set by GORM hooks
	payment.ID = dbPayment.ID
	payment.CreatedAt = dbPayment.CreatedAt
	payment.UpdatedAt = dbPayment.UpdatedAt
	return nil
}

// GetByID retrieves a payment by its ID
func (r *GormPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*core.Payment, error) {
	var dbPayment db.Payment
	if err := r.gormDB.WithContext(ctx).Where("id = ?", id).First(&dbPayment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return toCore(&dbPayment), nil
}

// GetByReference retrieves a payment by its transaction reference
func (r *GormPaymentRepository) GetByReference(ctx context.Context, reference string) (*core.Payment, error) {
	var dbPayment db.Payment
	if err := r.gormDB.WithContext(ctx).Where("reference = ?", reference).First(&dbPayment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, reference)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return toCore(&dbPayment), nil
}

// ReferenceExists checks if a reference already exists
func (r *GormPaymentRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	if err := r.gormDB.WithContext(ctx).Model(&db.Payment{}).
		Where("reference = ?", reference).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return count > 0, nil
}

// ListByBooking returns every attempt recorded for a booking, oldest first
func (r *GormPaymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]core.Payment, error) {
	var rows []db.Payment
	if err := r.gormDB.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	out := make([]core.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, *toCore(&rows[i]))
	}
	return out, nil
}

// Supersede links the booking's earlier open attempts to newID.
// Ids are time-ordered, so two interleaved initiations never supersede each
// other: only the later one survives.
func (r *GormPaymentRepository) Supersede(ctx context.Context, bookingID string, newID uuid.UUID) (int64, error) {
	res := r.gormDB.WithContext(ctx).Model(&db.Payment{}).
		Where("booking_id = ? AND id < ? AND superseded_by IS NULL", bookingID, newID).
		Where("status IN ?", []db.PaymentStatus{db.PaymentStatusInitiated, db.PaymentStatusPending}).
		Updates(map[string]any{
			"superseded_by": newID,
			"updated_at":    r.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to supersede payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Transition atomically moves a payment to next.
// Uses SELECT FOR UPDATE so concurrent webhooks and polls apply in turn.
func (r *GormPaymentRepository) Transition(ctx context.Context, reference string, next core.PaymentStatus, providerID string, providerData []byte) (*core.Payment, bool, error) {
	var (
		payment *core.Payment
		changed bool
	)
	err := r.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dbPayment db.Payment

		// Lock the row using SELECT FOR UPDATE
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("reference = ?", reference).
			First(&dbPayment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", core.ErrPaymentNotFound, reference)
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		payment = toCore(&dbPayment)
		var err error
		changed, err = payment.Transition(next, providerID, providerData, r.now())
		if err != nil || !changed {
			return err
		}

		if err := tx.Model(&dbPayment).Updates(map[string]any{
			"status":        db.PaymentStatus(payment.Status),
			"provider_id":   payment.ProviderID,
			"provider_data": jsonColumn(payment.ProviderData),
			"updated_at":    payment.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payment, changed, nil
}

// FindStale returns open payments not updated since before, oldest first
func (r *GormPaymentRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]core.Payment, error) {
	var rows []db.Payment
	if err := r.gormDB.WithContext(ctx).
		Where("status IN ?", []db.PaymentStatus{db.PaymentStatusInitiated, db.PaymentStatusPending}).
		Where("updated_at < ?", before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale payments: %w", err)
	}
	out := make([]core.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, *toCore(&rows[i]))
	}
	return out, nil
}

// CreateRefund locks the payment, runs validate against it and the existing
// refunds, and inserts refund only if validate accepts it.
func (r *GormPaymentRepository) CreateRefund(ctx context.Context, refund *core.Refund, validate output.RefundValidator) error {
	return r.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dbPayment db.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", refund.PaymentID).
			First(&dbPayment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrPaymentNotFound
			}
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		var rows []db.Refund
		if err := tx.Where("payment_id = ?", refund.PaymentID).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load refunds: %w", err)
		}
		existing := make([]core.Refund, 0, len(rows))
		for i := range rows {
			existing = append(existing, refundToCore(&rows[i]))
		}

		if err := validate(toCore(&dbPayment), existing); err != nil {
			return err
		}

		dbRefund := refundFromCore(refund)
		if err := tx.Create(dbRefund).Error; err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}
		refund.ID = dbRefund.ID
		refund.CreatedAt = dbRefund.CreatedAt
		return nil
	})
}

// UpdateRefund records the gateway outcome of a refund
func (r *GormPaymentRepository) UpdateRefund(ctx context.Context, id uuid.UUID, status core.RefundStatus, providerRefundID string) error {
	updates := map[string]any{
		"status":     db.RefundStatus(status),
		"updated_at": r.now(),
	}
	if providerRefundID != "" {
		updates["provider_refund_id"] = providerRefundID
	}
	res := r.gormDB.WithContext(ctx).Model(&db.Refund{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update refund: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrRefundNotFound
	}
	return nil
}

// ListRefunds returns the refunds recorded against a payment, oldest first
func (r *GormPaymentRepository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]core.Refund, error) {
	var rows []db.Refund
	if err := r.gormDB.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	out := make([]core.Refund, 0, len(rows))
	for i := range rows {
		out = append(out, refundToCore(&rows[i]))
	}
	return out, nil
}
