package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentStatusInitiated, PaymentStatusPending, true},
		{PaymentStatusInitiated, PaymentStatusConfirmed, true},
		{PaymentStatusInitiated, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusConfirmed, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusInitiated, false},
		{PaymentStatusConfirmed, PaymentStatusFailed, false},
		{PaymentStatusConfirmed, PaymentStatusPending, false},
		{PaymentStatusFailed, PaymentStatusConfirmed, false},
		{PaymentStatusFailed, PaymentStatusInitiated, false},
		{PaymentStatusConfirmed, PaymentStatusConfirmed, true},
		{PaymentStatusFailed, PaymentStatusFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func newTestPayment(status PaymentStatus) *Payment {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Payment{
		ID:        uuid.New(),
		BookingID: "bk_1",
		Reference: "palmera_1_abc",
		Amount:    decimal.NewFromInt(5000),
		Currency:  CurrencyXOF,
		Status:    status,
		Provider:  ProviderPaystack,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestPayment_Transition(t *testing.T) {
	now := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)

	t.Run("applies allowed move", func(t *testing.T) {
		p := newTestPayment(PaymentStatusInitiated)
		changed, err := p.Transition(PaymentStatusConfirmed, "9001", []byte(`{"ok":true}`), now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, PaymentStatusConfirmed, p.Status)
		assert.Equal(t, "9001", p.ProviderID)
		assert.Equal(t, now, p.UpdatedAt)
		assert.JSONEq(t, `{"ok":true}`, string(p.ProviderData))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		p := newTestPayment(PaymentStatusConfirmed)
		p.ProviderID = "orig"
		before := *p
		changed, err := p.Transition(PaymentStatusConfirmed, "other", []byte(`{}`), now)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, before, *p)
	})

	t.Run("terminal state rejects change", func(t *testing.T) {
		p := newTestPayment(PaymentStatusConfirmed)
		before := *p
		changed, err := p.Transition(PaymentStatusFailed, "", nil, now)
		require.Error(t, err)
		assert.False(t, changed)
		assert.True(t, errors.Is(err, ErrInvalidTransition))

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, PaymentStatusConfirmed, te.From)
		assert.Equal(t, PaymentStatusFailed, te.To)
		assert.Equal(t, before, *p)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		p := newTestPayment(PaymentStatusInitiated)
		_, err := p.Transition(PaymentStatus("REFUNDED"), "", nil, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PaymentStatusInitiated, p.Status)
	})

	t.Run("keeps provider id when none supplied", func(t *testing.T) {
		p := newTestPayment(PaymentStatusPending)
		p.ProviderID = "42"
		_, err := p.Transition(PaymentStatusFailed, "", nil, now)
		require.NoError(t, err)
		assert.Equal(t, "42", p.ProviderID)
	})
}

func TestNewID_IsOrdered(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		next := NewID()
		require.True(t, CreatedBefore(prev, next))
		require.False(t, CreatedBefore(next, prev))
		prev = next
	}
	assert.False(t, CreatedBefore(prev, prev))
}

func TestPayment_Helpers(t *testing.T) {
	p := newTestPayment(PaymentStatusPending)
	assert.True(t, p.IsPending())
	assert.False(t, p.IsTerminal())
	assert.False(t, p.IsSuperseded())
	assert.Equal(t, MustMoney(5000, CurrencyXOF), p.Money())

	next := uuid.New()
	p.SupersededBy = &next
	assert.True(t, p.IsSuperseded())
}

func TestRefundableBalance(t *testing.T) {
	p := newTestPayment(PaymentStatusConfirmed)
	refunds := []Refund{
		{Amount: decimal.NewFromInt(1000), Status: RefundStatusProcessed},
		{Amount: decimal.NewFromInt(500), Status: RefundStatusPending},
		{Amount: decimal.NewFromInt(2000), Status: RefundStatusFailed},
	}
	assert.True(t, decimal.NewFromInt(3500).Equal(RefundableBalance(p, refunds)))
	assert.True(t, p.Amount.Equal(RefundableBalance(p, nil)))

	over := []Refund{{Amount: decimal.NewFromInt(6000), Status: RefundStatusProcessed}}
	assert.True(t, RefundableBalance(p, over).IsZero())
}

func TestNewPaymentEvent(t *testing.T) {
	now := time.Now()
	p := newTestPayment(PaymentStatusConfirmed)
	next := uuid.New()
	p.SupersededBy = &next

	ev := NewPaymentEvent(p, now)
	assert.Equal(t, EventPaymentConfirmed, ev.Type)
	assert.Equal(t, p.ID, ev.PaymentID)
	assert.Equal(t, "5000", ev.Amount)
	assert.Equal(t, CurrencyXOF, ev.Currency)
	assert.True(t, ev.Superseded)
	assert.Equal(t, EventPaymentInitiated, StatusEventType(PaymentStatusInitiated))
	assert.Equal(t, EventPaymentFailed, StatusEventType(PaymentStatusFailed))
}

func TestIsRetryable(t *testing.T) {
	transport := &TransportError{Provider: ProviderPaystack, Op: "verify", Err: errors.New("timeout")}
	assert.True(t, IsRetryable(transport))
	assert.True(t, IsRetryable(errors.Join(errors.New("wrapped"), transport)))
	assert.False(t, IsRetryable(&GatewayDeclineError{Provider: ProviderPaystack, Message: "no"}))
	assert.False(t, IsRetryable(ErrPaymentNotFound))
}
