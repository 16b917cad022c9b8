// Package paystack adapts the Paystack REST API to the PaymentProvider port.
//
// Paystack takes amounts in the currency's hundredth (kobo for NGN) and
// currency codes in lower case; both are converted here and nowhere else.
package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/palmera/payments/internal/adapter/secondary/gateway"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/reference"
)

const (
	DefaultBaseURL = "https://api.paystack.co"

	// SignatureHeader carries hex(HMAC-SHA512(webhook secret, body)).
	SignatureHeader = "x-paystack-signature"

	unitFactor = 100
)

// Config is resolved once at startup and passed in.
type Config struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	CallbackURL   string
	BaseURL       string
}

// Adapter implements output.PaymentProvider and output.MobileMoneyCharger.
type Adapter struct {
	cfg    Config
	client *gateway.Client
	refs   *reference.Generator
	now    func() time.Time
}

// New validates cfg and builds the adapter. httpClient may be nil.
func New(cfg Config, refs *reference.Generator, httpClient *http.Client) (*Adapter, error) {
	missing := gateway.MissingSettings(
		"PAYSTACK_SECRET_KEY", cfg.SecretKey,
		"PAYSTACK_PUBLIC_KEY", cfg.PublicKey,
		"PAYSTACK_WEBHOOK_SECRET", cfg.WebhookSecret,
		"PAYMENT_CALLBACK_URL", cfg.CallbackURL,
	)
	if refs == nil {
		missing = append(missing, "reference generator")
	}
	if len(missing) > 0 {
		return nil, &core.ConfigurationError{Component: "paystack", Missing: missing}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{
		cfg:    cfg,
		client: gateway.NewClient(core.ProviderPaystack, cfg.BaseURL, cfg.SecretKey, httpClient),
		refs:   refs,
		now:    time.Now,
	}, nil
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderPaystack
}

// InitiatePayment opens a hosted checkout via /transaction/initialize.
func (a *Adapter) InitiatePayment(ctx context.Context, req core.PaymentRequest) (*core.PaymentResponse, error) {
	ref := req.Reference
	if ref == "" {
		ref = a.refs.Charge()
	}
	callback := req.RedirectURL
	if callback == "" {
		callback = a.cfg.CallbackURL
	}

	body := initializeRequest{
		Email:       req.Customer.Email,
		Amount:      req.Amount.MinorUnits(unitFactor),
		Currency:    req.Amount.Currency.Lower(),
		Reference:   ref,
		CallbackURL: callback,
		Metadata:    req.Metadata,
	}

	var env envelope
	resp, err := a.client.Do(ctx, "initialize", http.MethodPost, "/transaction/initialize", nil, body, &env)
	if err != nil {
		return nil, err
	}

	out := &core.PaymentResponse{
		Reference: ref,
		Amount:    req.Amount,
		Status:    core.PaymentStatusInitiated,
		Raw:       resp.Body,
	}
	if !resp.OK() || !env.Status {
		out.Error = a.decline(env.Message).Message
		return out, nil
	}

	var data initializeData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderPaystack, Op: "initialize", StatusCode: resp.StatusCode, Err: err}
	}
	if data.Reference != "" {
		out.Reference = data.Reference
	}
	if data.Amount > 0 {
		currency := req.Amount.Currency
		if data.Currency != "" {
			currency = core.Currency(strings.ToUpper(data.Currency))
		}
		out.Amount = core.FromMinorUnits(data.Amount, unitFactor, currency)
	}
	out.Success = true
	out.RedirectURL = data.AuthorizationURL
	out.ExpiresAt = a.now().Add(core.PaymentExpiry)
	return out, nil
}

// VerifyPayment reads /transaction/verify/{reference}.
func (a *Adapter) VerifyPayment(ctx context.Context, ref string) (*core.PaymentVerification, error) {
	var env envelope
	resp, err := a.client.Do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, nil, &env)
	if err != nil {
		return nil, err
	}

	out := &core.PaymentVerification{
		Reference: ref,
		Status:    core.PaymentStatusInitiated,
		Raw:       resp.Body,
	}
	if !resp.OK() || !env.Status {
		out.Error = a.decline(env.Message).Message
		return out, nil
	}

	var data transactionData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderPaystack, Op: "verify", StatusCode: resp.StatusCode, Err: err}
	}
	out.Success = true
	out.Status = MapStatus(data.Status)
	out.Amount = core.FromMinorUnits(data.Amount, unitFactor, core.Currency(strings.ToUpper(data.Currency)))
	if data.ID != 0 {
		out.ProviderReference = strconv.FormatInt(data.ID, 10)
	}
	if out.Status == core.PaymentStatusFailed && data.GatewayResponse != "" {
		out.Error = data.GatewayResponse
	}
	return out, nil
}

// RefundPayment posts to /refund. Paystack accepts either the transaction id
// or our reference.
func (a *Adapter) RefundPayment(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error) {
	transaction := req.ProviderReference
	if transaction == "" {
		transaction = req.Reference
	}
	body := refundRequest{
		Transaction:  transaction,
		MerchantNote: req.Reason,
	}
	if req.Amount != nil {
		body.Amount = req.Amount.MinorUnits(unitFactor)
	}

	var env envelope
	resp, err := a.client.Do(ctx, "refund", http.MethodPost, "/refund", nil, body, &env)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || !env.Status {
		return &core.RefundResult{Status: core.RefundStatusFailed, Error: a.decline(env.Message).Message}, nil
	}

	var data refundData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderPaystack, Op: "refund", StatusCode: resp.StatusCode, Err: err}
	}
	return &core.RefundResult{
		Success:  true,
		RefundID: strconv.FormatInt(data.ID, 10),
		Status:   mapRefundStatus(data.Status),
	}, nil
}

// MapStatus maps Paystack's transaction status vocabulary onto the canonical
// states. "abandoned" is what Paystack reports for a checkout the customer
// has not completed yet.
func MapStatus(status string) core.PaymentStatus {
	switch strings.ToLower(status) {
	case "success":
		return core.PaymentStatusConfirmed
	case "failed", "reversed":
		return core.PaymentStatusFailed
	case "abandoned", "":
		return core.PaymentStatusInitiated
	}
	// pending, ongoing, processing, queued, send_otp, send_pin, pay_offline...
	return core.PaymentStatusPending
}

func mapRefundStatus(status string) core.RefundStatus {
	switch strings.ToLower(status) {
	case "processed":
		return core.RefundStatusProcessed
	case "failed":
		return core.RefundStatusFailed
	}
	return core.RefundStatusPending
}

func (a *Adapter) decline(message string) *core.GatewayDeclineError {
	if message == "" {
		message = "request rejected"
	}
	return &core.GatewayDeclineError{Provider: core.ProviderPaystack, Message: message}
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("response has no data")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	return nil
}
