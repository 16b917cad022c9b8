// Package memory holds a process-local PaymentRepository for local runs and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

// PaymentRepository implements output.PaymentRepository in memory.
// Transitions and refund creation for one payment hold that payment's lock.
type PaymentRepository struct {
	mu          sync.RWMutex
	payments    map[uuid.UUID]*core.Payment
	byReference map[string]uuid.UUID
	refunds     map[uuid.UUID][]*core.Refund

	locks sync.Map // payment ID -> *sync.Mutex
	now   func() time.Time
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments:    make(map[uuid.UUID]*core.Payment),
		byReference: make(map[string]uuid.UUID),
		refunds:     make(map[uuid.UUID][]*core.Refund),
		now:         time.Now,
	}
}

var _ output.PaymentRepository = (*PaymentRepository)(nil)

func (r *PaymentRepository) lock(id uuid.UUID) func() {
	m, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func clonePayment(p *core.Payment) *core.Payment {
	cp := *p
	if p.ProviderData != nil {
		cp.ProviderData = append([]byte(nil), p.ProviderData...)
	}
	if p.SupersededBy != nil {
		id := *p.SupersededBy
		cp.SupersededBy = &id
	}
	return &cp
}

func (r *PaymentRepository) Create(ctx context.Context, payment *core.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byReference[payment.Reference]; ok {
		return core.ErrDuplicateReference
	}
	if payment.ID == uuid.Nil {
		payment.ID = core.NewID()
	}
	now := r.now()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = now
	}
	r.payments[payment.ID] = clonePayment(payment)
	r.byReference[payment.Reference] = payment.ID
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*core.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, core.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*core.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, reference)
	}
	return clonePayment(r.payments[id]), nil
}

func (r *PaymentRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byReference[reference]
	return ok, nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]core.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Payment
	for _, p := range r.payments {
		if p.BookingID == bookingID {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PaymentRepository) Supersede(ctx context.Context, bookingID string, newID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := r.now()
	for id, p := range r.payments {
		if p.BookingID != bookingID || !core.CreatedBefore(id, newID) || p.SupersededBy != nil || !p.IsPending() {
			continue
		}
		superseder := newID
		p.SupersededBy = &superseder
		p.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *PaymentRepository) Transition(ctx context.Context, reference string, next core.PaymentStatus, providerID string, providerData []byte) (*core.Payment, bool, error) {
	r.mu.RLock()
	id, ok := r.byReference[reference]
	r.mu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, reference)
	}

	unlock := r.lock(id)
	defer unlock()

	r.mu.RLock()
	working := clonePayment(r.payments[id])
	r.mu.RUnlock()

	changed, err := working.Transition(next, providerID, providerData, r.now())
	if err != nil {
		return nil, false, err
	}
	if changed {
		r.mu.Lock()
		// Supersede may have run while the lock was released.
		working.SupersededBy = r.payments[id].SupersededBy
		r.payments[id] = clonePayment(working)
		r.mu.Unlock()
	}
	return working, changed, nil
}

func (r *PaymentRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]core.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Payment
	for _, p := range r.payments {
		if p.IsPending() && p.UpdatedAt.Before(before) {
			out = append(out, *clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PaymentRepository) CreateRefund(ctx context.Context, refund *core.Refund, validate output.RefundValidator) error {
	r.mu.RLock()
	_, ok := r.payments[refund.PaymentID]
	r.mu.RUnlock()
	if !ok {
		return core.ErrPaymentNotFound
	}

	unlock := r.lock(refund.PaymentID)
	defer unlock()

	r.mu.RLock()
	payment := clonePayment(r.payments[refund.PaymentID])
	existing := make([]core.Refund, 0, len(r.refunds[refund.PaymentID]))
	for _, rf := range r.refunds[refund.PaymentID] {
		existing = append(existing, *rf)
	}
	r.mu.RUnlock()

	if err := validate(payment, existing); err != nil {
		return err
	}

	if refund.ID == uuid.Nil {
		refund.ID = core.NewID()
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = r.now()
	}
	stored := *refund

	r.mu.Lock()
	r.refunds[refund.PaymentID] = append(r.refunds[refund.PaymentID], &stored)
	r.mu.Unlock()
	return nil
}

func (r *PaymentRepository) UpdateRefund(ctx context.Context, id uuid.UUID, status core.RefundStatus, providerRefundID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, list := range r.refunds {
		for _, rf := range list {
			if rf.ID != id {
				continue
			}
			rf.Status = status
			if providerRefundID != "" {
				rf.ProviderRefundID = providerRefundID
			}
			return nil
		}
	}
	return core.ErrRefundNotFound
}

func (r *PaymentRepository) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]core.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Refund, 0, len(r.refunds[paymentID]))
	for _, rf := range r.refunds[paymentID] {
		out = append(out, *rf)
	}
	return out, nil
}
