package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palmera/payments/internal/core"
)

func newPayment(bookingID, ref string, at time.Time) *core.Payment {
	return &core.Payment{
		BookingID: bookingID,
		Reference: ref,
		Amount:    decimal.NewFromInt(5000),
		Currency:  core.CurrencyXOF,
		Status:    core.PaymentStatusInitiated,
		Provider:  core.ProviderFlutterwave,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	p := newPayment("bk_1", "palmera_1_a", time.Now())
	require.NoError(t, repo.Create(ctx, p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.ErrorIs(t, repo.Create(ctx, newPayment("bk_2", "palmera_1_a", time.Now())), core.ErrDuplicateReference)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.Status = core.PaymentStatusFailed

	again, err := repo.GetByReference(ctx, "palmera_1_a")
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusInitiated, again.Status, "reads return copies")

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrPaymentNotFound)
	_, err = repo.GetByReference(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrPaymentNotFound)
}

func TestPaymentRepository_ConcurrentTransitionsApplyOnce(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newPayment("bk_1", "palmera_1_a", time.Now())))

	var (
		wg      sync.WaitGroup
		changed atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Transition(ctx, "palmera_1_a", core.PaymentStatusConfirmed, "", nil)
			assert.NoError(t, err)
			if ok {
				changed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), changed.Load())

	_, _, err := repo.Transition(ctx, "palmera_1_a", core.PaymentStatusPending, "", nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestPaymentRepository_SupersedeAndFindStale(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return at.Add(time.Hour) }

	first := newPayment("bk_1", "palmera_1_a", at)
	require.NoError(t, repo.Create(ctx, first))
	other := newPayment("bk_2", "palmera_1_b", at.Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, other))
	second := newPayment("bk_1", "palmera_1_c", at.Add(time.Second))
	require.NoError(t, repo.Create(ctx, second))

	stale, err := repo.FindStale(ctx, at.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 3)
	assert.Equal(t, "palmera_1_b", stale[0].Reference)

	n, err := repo.Supersede(ctx, "bk_1", second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	attempts, err := repo.ListByBooking(ctx, "bk_1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	require.NotNil(t, attempts[0].SupersededBy)
	assert.Equal(t, second.ID, *attempts[0].SupersededBy)

	// Supersede touched the first attempt, so it is no longer stale.
	stale, err = repo.FindStale(ctx, at.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "palmera_1_b", stale[0].Reference)
	assert.Equal(t, "palmera_1_c", stale[1].Reference)
}

func TestPaymentRepository_InterleavedSupersedeKeepsLatest(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := newPayment("bk_1", "palmera_1_a", at)
	require.NoError(t, repo.Create(ctx, a))
	b := newPayment("bk_1", "palmera_1_b", at)
	require.NoError(t, repo.Create(ctx, b))

	n, err := repo.Supersede(ctx, "bk_1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = repo.Supersede(ctx, "bk_1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gotA, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, gotA.SupersededBy)
	assert.Equal(t, b.ID, *gotA.SupersededBy)

	gotB, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gotB.SupersededBy)
}

func TestPaymentRepository_Refunds(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	p := newPayment("bk_1", "palmera_1_a", time.Now())
	require.NoError(t, repo.Create(ctx, p))

	amount := decimal.NewFromInt(2000)
	validate := func(payment *core.Payment, existing []core.Refund) error {
		if amount.GreaterThan(core.RefundableBalance(payment, existing)) {
			return &core.InvalidRefundError{Reason: "exceeds balance"}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refund := &core.Refund{PaymentID: p.ID, Amount: amount, Currency: core.CurrencyXOF, Status: core.RefundStatusPending}
			if repo.CreateRefund(ctx, refund, validate) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), accepted.Load())

	refunds, err := repo.ListRefunds(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 2)

	require.NoError(t, repo.UpdateRefund(ctx, refunds[0].ID, core.RefundStatusFailed, ""))
	assert.ErrorIs(t, repo.UpdateRefund(ctx, uuid.New(), core.RefundStatusFailed, ""), core.ErrRefundNotFound)
	assert.ErrorIs(t, repo.CreateRefund(ctx, &core.Refund{PaymentID: uuid.New()}, validate), core.ErrPaymentNotFound)

	refund := &core.Refund{PaymentID: p.ID, Amount: amount, Currency: core.CurrencyXOF, Status: core.RefundStatusPending}
	assert.NoError(t, repo.CreateRefund(ctx, refund, validate), "a failed refund releases its amount")
}
