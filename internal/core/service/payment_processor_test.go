package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palmera/payments/internal/core"
)

func TestReconcileOnce(t *testing.T) {
	p := newMockProvider(core.ProviderPaystack)
	expectInitiate(p)
	f := newFixture(t, p)
	ctx := context.Background()

	abandoned, err := f.svc.InitiatePayment(ctx, checkoutRequest("bk_abandoned"))
	require.NoError(t, err)
	paid, err := f.svc.InitiatePayment(ctx, checkoutRequest("bk_paid"))
	require.NoError(t, err)
	broken, err := f.svc.InitiatePayment(ctx, checkoutRequest("bk_broken"))
	require.NoError(t, err)

	p.On("VerifyPayment", mock.Anything, abandoned.Payment.Reference).
		Return(&core.PaymentVerification{Success: false, Error: "Transaction reference not found"}, nil)
	p.On("VerifyPayment", mock.Anything, paid.Payment.Reference).
		Return(&core.PaymentVerification{
			Success: true,
			Status:  core.PaymentStatusConfirmed,
			Amount:  core.MustMoney(5000, core.CurrencyXOF),
		}, nil)
	p.On("VerifyPayment", mock.Anything, broken.Payment.Reference).
		Return(nil, errors.New("decode verify response"))

	proc := NewPaymentProcessor(f.svc, f.repo, ProcessorConfig{})

	res, err := proc.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{}, res, "fresh payments are not stale yet")

	f.clock.Advance(time.Hour)
	res, err = proc.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Checked: 3, Updated: 1, Expired: 1, Errors: 1}, res)

	got, err := f.repo.GetByReference(ctx, abandoned.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusFailed, got.Status)

	got, err = f.repo.GetByReference(ctx, paid.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusConfirmed, got.Status)

	got, err = f.repo.GetByReference(ctx, broken.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusInitiated, got.Status)

	assert.ElementsMatch(t, []core.EventType{
		core.EventPaymentInitiated, core.EventPaymentInitiated, core.EventPaymentInitiated,
		core.EventPaymentFailed, core.EventPaymentConfirmed,
	}, f.pub.Types())
}

func TestReconcileOnce_PendingIsNotExpired(t *testing.T) {
	p := newMockProvider(core.ProviderPaystack)
	expectInitiate(p)
	f := newFixture(t, p)
	ctx := context.Background()

	resp, err := f.svc.InitiatePayment(ctx, checkoutRequest("bk_1"))
	require.NoError(t, err)
	ref := resp.Payment.Reference

	p.On("VerifyPayment", mock.Anything, ref).
		Return(&core.PaymentVerification{Success: true, Status: core.PaymentStatusPending}, nil)

	f.clock.Advance(time.Hour)
	proc := NewPaymentProcessor(f.svc, f.repo, ProcessorConfig{Batch: 10})
	res, err := proc.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Expired)

	got, err := f.repo.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentStatusPending, got.Status)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	proc := NewPaymentProcessor(f.svc, f.repo, ProcessorConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}
