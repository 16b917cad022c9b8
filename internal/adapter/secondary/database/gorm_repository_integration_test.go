//go:build integration

package database

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/palmera/payments/internal/constant/model/db"
	"github.com/palmera/payments/internal/core"
)

func newPostgresRepository(t *testing.T) *GormPaymentRepository {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("payments"),
		postgres.WithUsername("palmera"),
		postgres.WithPassword("palmera"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.NewDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewGormPaymentRepository(conn.DB)
}

func TestPostgres_DuplicateReference(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newPayment("bk_1", "palmera_1_dup", at)))
	err := repo.Create(ctx, newPayment("bk_2", "palmera_1_dup", at))
	assert.ErrorIs(t, err, core.ErrDuplicateReference)
}

func TestPostgres_ConcurrentConfirmationsApplyOnce(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayment("bk_1", "palmera_1_race", time.Now().UTC())))

	var (
		wg      sync.WaitGroup
		changed atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Transition(ctx, "palmera_1_race", core.PaymentStatusConfirmed, "", nil)
			assert.NoError(t, err)
			if ok {
				changed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), changed.Load())
}

func TestPostgres_ConcurrentRefundsRespectBalance(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()

	p := newPayment("bk_1", "palmera_1_refund", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, p))
	_, _, err := repo.Transition(ctx, p.Reference, core.PaymentStatusConfirmed, "", nil)
	require.NoError(t, err)

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
	for i := 0; i < 5; i++ {
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
	assert.Len(t, refunds, 2)
}
