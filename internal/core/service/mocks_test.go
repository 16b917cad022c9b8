package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palmera/payments/internal/adapter/secondary/memory"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/reference"
	"github.com/palmera/payments/internal/core/webhook"
	"github.com/palmera/payments/internal/port/output"
)

const testWebhookKey = "whsec_test"

// mockProvider is a testify mock of a gateway that also charges mobile money
type mockProvider struct {
	mock.Mock
	name core.Provider
}

func newMockProvider(name core.Provider) *mockProvider {
	return &mockProvider{name: name}
}

func (m *mockProvider) Name() core.Provider { return m.name }

func (m *mockProvider) InitiatePayment(ctx context.Context, req core.PaymentRequest) (*core.PaymentResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, core.PaymentRequest) *core.PaymentResponse); ok {
		return fn(ctx, req), args.Error(1)
	}
	resp, _ := args.Get(0).(*core.PaymentResponse)
	return resp, args.Error(1)
}

func (m *mockProvider) VerifyPayment(ctx context.Context, ref string) (*core.PaymentVerification, error) {
	args := m.Called(ctx, ref)
	v, _ := args.Get(0).(*core.PaymentVerification)
	return v, args.Error(1)
}

func (m *mockProvider) RefundPayment(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*core.RefundResult)
	return res, args.Error(1)
}

func (m *mockProvider) ChargeMobileMoney(ctx context.Context, req core.MobileMoneyRequest) (*core.PaymentResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, core.MobileMoneyRequest) *core.PaymentResponse); ok {
		return fn(ctx, req), args.Error(1)
	}
	resp, _ := args.Get(0).(*core.PaymentResponse)
	return resp, args.Error(1)
}

func (m *mockProvider) MobileMoneyNetworks(ctx context.Context, country string) ([]core.MobileNetwork, error) {
	args := m.Called(ctx, country)
	networks, _ := args.Get(0).([]core.MobileNetwork)
	return networks, args.Error(1)
}

func (m *mockProvider) WebhookScheme() webhook.Scheme {
	return webhook.HMACScheme{Header: "x-test-signature", Algorithm: webhook.SHA256, Key: testWebhookKey}
}

func (m *mockProvider) ParseWebhook(body []byte) (*core.WebhookEvent, error) {
	args := m.Called(body)
	ev, _ := args.Get(0).(*core.WebhookEvent)
	return ev, args.Error(1)
}

// checkoutOnly hides the mobile-money methods of the wrapped provider
type checkoutOnly struct {
	output.PaymentProvider
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.PaymentEvent
}

func (p *recordingPublisher) PublishPaymentEvent(ctx context.Context, event core.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []core.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) Last() core.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *PaymentServiceImpl
	repo  *memory.PaymentRepository
	pub   *recordingPublisher
	clock *testClock
}

func newFixture(t *testing.T, providers ...output.PaymentProvider) *fixture {
	t.Helper()
	refs, err := reference.NewGenerator("palmera", 3)
	require.NoError(t, err)

	f := &fixture{
		repo:  memory.NewPaymentRepository(),
		pub:   &recordingPublisher{},
		clock: &testClock{now: time.Now().UTC().Truncate(time.Second)},
	}
	f.svc = NewPaymentService(NewProviderRegistry(providers...), f.repo, f.pub, refs,
		WithClock(f.clock.Now),
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
		}),
	)
	return f
}

func signed(t *testing.T, body []byte) map[string][]string {
	t.Helper()
	sig, err := webhook.Sign(webhook.HMACScheme{Algorithm: webhook.SHA256, Key: testWebhookKey}, body)
	require.NoError(t, err)
	return map[string][]string{"X-Test-Signature": {sig}}
}
