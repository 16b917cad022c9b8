package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/reference"
	"github.com/palmera/payments/internal/core/webhook"
	"github.com/palmera/payments/internal/port/input"
	"github.com/palmera/payments/internal/port/output"
)

// PaymentServiceImpl implements the PaymentService input port
type PaymentServiceImpl struct {
	providers   *ProviderRegistry
	paymentRepo output.PaymentRepository
	paymentMsg  output.PaymentMessaging
	refs        *reference.Generator
	logger      *slog.Logger
	newBackOff  func() backoff.BackOff
	now         func() time.Time
}

// Option customizes a PaymentServiceImpl
type Option func(*PaymentServiceImpl)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *PaymentServiceImpl) { s.logger = l }
}

// WithBackOff sets the retry policy used for gateway transport failures
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *PaymentServiceImpl) { s.newBackOff = f }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *PaymentServiceImpl) { s.now = now }
}

// DefaultBackOff retries a transport failure three times with jittered
// exponential delays, giving up after 15 seconds overall.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 4 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	providers *ProviderRegistry,
	paymentRepo output.PaymentRepository,
	paymentMsg output.PaymentMessaging,
	refs *reference.Generator,
	opts ...Option,
) *PaymentServiceImpl {
	s := &PaymentServiceImpl{
		providers:   providers,
		paymentRepo: paymentRepo,
		paymentMsg:  paymentMsg,
		refs:        refs,
		logger:      slog.Default(),
		newBackOff:  DefaultBackOff,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ input.PaymentService = (*PaymentServiceImpl)(nil)

// InitiatePayment opens a checkout and records the attempt as INITIATED.
// A retry after a transport failure must pass the same Reference so the
// gateway can deduplicate the charge.
func (s *PaymentServiceImpl) InitiatePayment(ctx context.Context, req input.InitiatePaymentRequest) (*input.InitiatePaymentResponse, error) {
	money, err := validateInitiate(&req)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	attempts, err := s.paymentRepo.ListByBooking(ctx, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking payments: %w", err)
	}
	for i := range attempts {
		if attempts[i].Status == core.PaymentStatusConfirmed {
			return nil, fmt.Errorf("%w: booking %s", core.ErrBookingAlreadyPaid, req.BookingID)
		}
	}

	if req.Reference == "" {
		if req.Method == core.MethodMobileMoney {
			req.Reference = s.refs.Mobile()
		} else {
			req.Reference = s.refs.Charge()
		}
	}
	exists, err := s.paymentRepo.ReferenceExists(ctx, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to validate reference: %w", err)
	}
	if exists {
		return nil, core.ErrDuplicateReference
	}

	gatewayReq := core.PaymentRequest{
		Amount:      money,
		Reference:   req.Reference,
		Customer:    req.Customer,
		Metadata:    withBooking(req.Metadata, req.BookingID),
		RedirectURL: req.RedirectURL,
	}

	var resp *core.PaymentResponse
	switch req.Method {
	case core.MethodMobileMoney:
		charger, ok := provider.(output.MobileMoneyCharger)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not charge mobile money", core.ErrUnsupportedMethod, req.Provider)
		}
		mmReq := core.MobileMoneyRequest{PaymentRequest: gatewayReq, Network: req.Network, Country: req.Country}
		err = s.withRetry(ctx, func() error {
			var callErr error
			resp, callErr = charger.ChargeMobileMoney(ctx, mmReq)
			return callErr
		})
	default:
		err = s.withRetry(ctx, func() error {
			var callErr error
			resp, callErr = provider.InitiatePayment(ctx, gatewayReq)
			return callErr
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initiate payment: %w", err)
	}
	if !resp.Success {
		s.logger.Warn("payment declined",
			"provider", req.Provider, "reference", req.Reference, "booking_id", req.BookingID, "error", resp.Error)
		return nil, &core.GatewayDeclineError{Provider: req.Provider, Message: resp.Error}
	}
	if !resp.Amount.IsZero() && !resp.Amount.Equal(money) {
		s.logger.Warn("gateway echoed a different amount",
			"provider", req.Provider, "reference", resp.Reference, "requested", money.String(), "echoed", resp.Amount.String())
	}

	now := s.now()
	expiresAt := resp.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(core.PaymentExpiry)
	}
	payment := &core.Payment{
		ID:           core.NewID(),
		BookingID:    req.BookingID,
		Reference:    resp.Reference,
		Amount:       money.Amount,
		Currency:     money.Currency,
		Status:       core.PaymentStatusInitiated,
		Method:       req.Method,
		Provider:     req.Provider,
		ProviderID:   resp.ProviderReference,
		ProviderData: resp.Raw,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	superseded, err := s.paymentRepo.Supersede(ctx, req.BookingID, payment.ID)
	if err != nil {
		s.logger.Error("failed to supersede earlier attempts", "booking_id", req.BookingID, "error", err)
	} else if superseded > 0 {
		s.logger.Info("superseded earlier attempts", "booking_id", req.BookingID, "count", superseded, "payment_id", payment.ID)
	}

	s.publish(ctx, core.NewPaymentEvent(payment, now))

	if resp.Status == core.PaymentStatusPending {
		updated, _, err := s.applyTransition(ctx, payment.Reference, core.PaymentStatusPending, resp.ProviderReference, nil, nil)
		if err != nil {
			s.logger.Error("failed to mark payment pending", "reference", payment.Reference, "error", err)
		} else {
			payment = updated
		}
	}

	s.logger.Info("payment initiated",
		"payment_id", payment.ID, "reference", payment.Reference, "provider", payment.Provider,
		"amount", money.String(), "expires_at", payment.ExpiresAt)

	return &input.InitiatePaymentResponse{
		Payment:      input.NewPaymentResponse(payment),
		RedirectURL:  resp.RedirectURL,
		QRCode:       resp.QRCode,
		Instructions: resp.Instructions,
	}, nil
}

// GetPayment retrieves a payment by ID
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*input.PaymentResponse, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	resp := input.NewPaymentResponse(payment)
	return &resp, nil
}

// VerifyPayment polls the gateway for reference and funnels the result
// through the same transition as webhooks.
func (s *PaymentServiceImpl) VerifyPayment(ctx context.Context, ref string) (*input.PaymentResponse, error) {
	payment, _, err := s.reconcile(ctx, ref)
	if err != nil {
		return nil, err
	}
	resp := input.NewPaymentResponse(payment)
	return &resp, nil
}

// reconcile returns the stored payment after applying the gateway's view,
// along with that view.
func (s *PaymentServiceImpl) reconcile(ctx context.Context, ref string) (*core.Payment, *core.PaymentVerification, error) {
	payment, err := s.paymentRepo.GetByReference(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payment: %w", err)
	}
	provider, err := s.providers.Get(payment.Provider)
	if err != nil {
		return nil, nil, err
	}

	var v *core.PaymentVerification
	err = s.withRetry(ctx, func() error {
		var callErr error
		v, callErr = provider.VerifyPayment(ctx, ref)
		return callErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !v.Success {
		s.logger.Info("gateway has no settled status yet", "reference", ref, "provider", payment.Provider, "error", v.Error)
		return payment, v, nil
	}
	if v.Status == payment.Status || v.Status == core.PaymentStatusInitiated {
		return payment, v, nil
	}

	updated, _, err := s.applyTransition(ctx, ref, v.Status, v.ProviderReference, v.Raw, &v.Amount)
	switch {
	case err == nil:
		return updated, v, nil
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrAmountMismatch):
		s.logger.Warn("ignoring gateway status", "reference", ref, "status", v.Status, "error", err)
		return payment, v, nil
	}
	return nil, nil, err
}

// RefundPayment validates the request against the captured amount before any
// gateway call, then asks the gateway to refund.
func (s *PaymentServiceImpl) RefundPayment(ctx context.Context, req input.RefundPaymentRequest) (*input.RefundResponse, error) {
	payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	provider, err := s.providers.Get(payment.Provider)
	if err != nil {
		return nil, err
	}

	refund := &core.Refund{
		ID:        core.NewID(),
		PaymentID: payment.ID,
		Currency:  payment.Currency,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    core.RefundStatusPending,
		CreatedAt: s.now(),
	}
	fullRefund := false
	validate := func(locked *core.Payment, existing []core.Refund) error {
		if locked.Status != core.PaymentStatusConfirmed {
			return &core.InvalidRefundError{Reason: fmt.Sprintf("payment is %s, not CONFIRMED", locked.Status)}
		}
		remaining := core.RefundableBalance(locked, existing)
		amount := remaining
		if req.Amount != nil {
			amount = *req.Amount
		}
		switch {
		case !amount.IsPositive():
			return &core.InvalidRefundError{Reason: "refund amount must be greater than zero"}
		case !(core.Money{Amount: amount, Currency: locked.Currency}).FitsMinorUnits():
			return &core.InvalidRefundError{Reason: fmt.Sprintf("%s allows at most %d decimal places", locked.Currency, locked.Currency.MinorUnitExponent())}
		case amount.GreaterThan(locked.Amount):
			return &core.InvalidRefundError{Reason: fmt.Sprintf("refund %s exceeds captured amount %s", amount, locked.Amount)}
		case amount.GreaterThan(remaining):
			return &core.InvalidRefundError{Reason: fmt.Sprintf("refund %s exceeds refundable balance %s", amount, remaining)}
		}
		refund.Amount = amount
		fullRefund = amount.Equal(locked.Amount)
		return nil
	}
	if err := s.paymentRepo.CreateRefund(ctx, refund, validate); err != nil {
		return nil, err
	}

	gatewayReq := core.RefundRequest{
		Reference:         payment.Reference,
		ProviderReference: payment.ProviderID,
		Reason:            refund.Reason,
	}
	if !fullRefund {
		gatewayReq.Amount = &core.Money{Amount: refund.Amount, Currency: refund.Currency}
	}

	var result *core.RefundResult
	err = s.withRetry(ctx, func() error {
		var callErr error
		result, callErr = provider.RefundPayment(ctx, gatewayReq)
		return callErr
	})
	if err != nil {
		// The outcome is unknown; the refund stays PENDING so its amount
		// remains reserved.
		return nil, fmt.Errorf("failed to refund payment: %w", err)
	}

	if !result.Success {
		if uerr := s.paymentRepo.UpdateRefund(ctx, refund.ID, core.RefundStatusFailed, ""); uerr != nil {
			s.logger.Error("failed to record declined refund", "refund_id", refund.ID, "error", uerr)
		}
		return nil, &core.GatewayDeclineError{Provider: payment.Provider, Message: result.Error}
	}

	refund.Status = result.Status
	refund.ProviderRefundID = result.RefundID
	if err := s.paymentRepo.UpdateRefund(ctx, refund.ID, refund.Status, refund.ProviderRefundID); err != nil {
		return nil, fmt.Errorf("failed to update refund: %w", err)
	}

	s.publish(ctx, core.PaymentEvent{
		Type:      core.EventRefundCreated,
		PaymentID: payment.ID,
		RefundID:  refund.ID,
		BookingID: payment.BookingID,
		Reference: payment.Reference,
		Provider:  payment.Provider,
		Status:    payment.Status,
		Amount:    refund.Amount.String(),
		Currency:  refund.Currency,
		Timestamp: s.now(),
	})

	s.logger.Info("refund issued",
		"payment_id", payment.ID, "refund_id", refund.ID, "amount", refund.Amount.String(), "provider_refund_id", refund.ProviderRefundID)

	resp := input.NewRefundResponse(refund)
	return &resp, nil
}

// ListRefunds lists refunds issued against a payment
func (s *PaymentServiceImpl) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]input.RefundResponse, error) {
	if _, err := s.paymentRepo.GetByID(ctx, paymentID); err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	refunds, err := s.paymentRepo.ListRefunds(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	out := make([]input.RefundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, input.NewRefundResponse(&refunds[i]))
	}
	return out, nil
}

// HandleWebhook authenticates a gateway callback and applies it. The
// signature is checked before anything in the body is looked at.
// Unparseable bodies, unknown events, unknown references and forbidden
// transitions are logged and acknowledged; only storage failures are returned
// so the gateway redelivers.
func (s *PaymentServiceImpl) HandleWebhook(ctx context.Context, name core.Provider, body []byte, headers map[string][]string) error {
	provider, err := s.providers.Get(name)
	if err != nil {
		return err
	}
	if err := webhook.Verify(provider.WebhookScheme(), body, headers); err != nil {
		s.logger.Warn("rejected webhook", "provider", name, "error", err)
		return err
	}

	event, err := provider.ParseWebhook(body)
	if err != nil {
		// Redelivering the same bytes cannot succeed.
		s.logger.Error("unparseable webhook", "provider", name, "error", err)
		return nil
	}
	log := s.logger.With("provider", name, "event", event.Name, "reference", event.Reference)

	var next core.PaymentStatus
	switch event.Kind {
	case core.EventChargeSucceeded:
		next = core.PaymentStatusConfirmed
	case core.EventChargePending:
		next = core.PaymentStatusPending
	case core.EventChargeFailed:
		next = core.PaymentStatusFailed
	case core.EventTransferSucceeded, core.EventTransferFailed:
		log.Info("payout event received")
		eventType := core.EventPayoutCompleted
		if event.Kind == core.EventTransferFailed {
			eventType = core.EventPayoutFailed
		}
		s.publish(ctx, core.PaymentEvent{
			Type:      eventType,
			Reference: event.Reference,
			Provider:  name,
			Amount:    event.Amount.Amount.String(),
			Currency:  event.Amount.Currency,
			Timestamp: s.now(),
		})
		return nil
	default:
		log.Info("ignoring unhandled webhook event")
		return nil
	}

	var observed *core.Money
	if next == core.PaymentStatusConfirmed {
		observed = &event.Amount
	}
	payment, changed, err := s.applyTransition(ctx, event.Reference, next, event.ProviderReference, event.Raw, observed)
	switch {
	case err == nil:
		log.Info("webhook applied", "payment_id", payment.ID, "status", payment.Status, "changed", changed)
		return nil
	case errors.Is(err, core.ErrPaymentNotFound):
		log.Warn("webhook for unknown payment")
		return nil
	case errors.Is(err, core.ErrInvalidTransition):
		log.Warn("webhook transition refused", "error", err)
		return nil
	case errors.Is(err, core.ErrAmountMismatch):
		log.Error("webhook amount mismatch", "error", err)
		return nil
	}
	return err
}

// MobileMoneyNetworks lists the wallets a provider can charge in country
func (s *PaymentServiceImpl) MobileMoneyNetworks(ctx context.Context, name core.Provider, country string) ([]core.MobileNetwork, error) {
	provider, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}
	charger, ok := provider.(output.MobileMoneyCharger)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not charge mobile money", core.ErrUnsupportedMethod, name)
	}
	return charger.MobileMoneyNetworks(ctx, country)
}

// ExchangeRate quotes an FX conversion through the provider
func (s *PaymentServiceImpl) ExchangeRate(ctx context.Context, name core.Provider, from, to core.Currency, amount decimal.Decimal) (*core.ExchangeRate, error) {
	provider, err := s.providers.Get(name)
	if err != nil {
		return nil, err
	}
	quoter, ok := provider.(output.ExchangeRateQuoter)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not quote exchange rates", core.ErrUnsupportedMethod, name)
	}
	return quoter.ExchangeRate(ctx, from, to, amount)
}

// applyTransition is the only path that changes a payment's status. Both
// webhooks and polls go through it. A notification is published only when the
// stored status actually changed.
func (s *PaymentServiceImpl) applyTransition(ctx context.Context, ref string, next core.PaymentStatus, providerID string, raw []byte, observed *core.Money) (*core.Payment, bool, error) {
	if next == core.PaymentStatusConfirmed && observed != nil && !observed.IsZero() {
		current, err := s.paymentRepo.GetByReference(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		expected := current.Money()
		if observed.Currency != expected.Currency || observed.Amount.LessThan(expected.Amount) {
			return nil, false, fmt.Errorf("%w: expected %s, gateway reported %s", core.ErrAmountMismatch, expected, observed)
		}
	}

	payment, changed, err := s.paymentRepo.Transition(ctx, ref, next, providerID, raw)
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.publish(ctx, core.NewPaymentEvent(payment, s.now()))
	}
	return payment, changed, nil
}

func (s *PaymentServiceImpl) publish(ctx context.Context, event core.PaymentEvent) {
	if s.paymentMsg == nil {
		return
	}
	if err := s.paymentMsg.PublishPaymentEvent(ctx, event); err != nil {
		// The record is already committed; the event can be rebuilt from it.
		s.logger.Error("failed to publish payment event", "type", event.Type, "reference", event.Reference, "error", err)
	}
}

// withRetry retries fn while it fails with a transport error.
func (s *PaymentServiceImpl) withRetry(ctx context.Context, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !core.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.newBackOff(), ctx))
}

func validateInitiate(req *input.InitiatePaymentRequest) (core.Money, error) {
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reference = strings.TrimSpace(req.Reference)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)

	if req.BookingID == "" {
		return core.Money{}, fmt.Errorf("%w: booking id is required", core.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return core.Money{}, fmt.Errorf("%w: amount must be greater than zero", core.ErrInvalidRequest)
	}
	money, err := core.NewMoney(req.Amount, string(req.Currency))
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	if !money.FitsMinorUnits() {
		return core.Money{}, fmt.Errorf("%w: %s allows at most %d decimal places",
			core.ErrInvalidRequest, money.Currency, money.Currency.MinorUnitExponent())
	}
	if req.Customer.Email == "" {
		return core.Money{}, fmt.Errorf("%w: customer email is required", core.ErrInvalidRequest)
	}
	if req.Method == "" {
		req.Method = core.MethodCheckout
	}
	switch req.Method {
	case core.MethodCheckout, core.MethodCard:
	case core.MethodMobileMoney:
		if strings.TrimSpace(req.Customer.Phone) == "" {
			return core.Money{}, fmt.Errorf("%w: customer phone is required for mobile money", core.ErrInvalidRequest)
		}
	default:
		return core.Money{}, fmt.Errorf("%w: %s", core.ErrUnsupportedMethod, req.Method)
	}
	return money, nil
}

func withBooking(metadata map[string]string, bookingID string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["booking_id"] = bookingID
	return out
}
