// Package flutterwave adapts the Flutterwave v3 REST API to the
// PaymentProvider port. Flutterwave takes amounts in major units and the
// currency code as given.
package flutterwave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/adapter/secondary/gateway"
	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/reference"
)

const (
	DefaultBaseURL = "https://api.flutterwave.com/v3"

	// HashHeader carries the secret hash configured on the dashboard.
	HashHeader = "verif-hash"

	checkoutTitle = "Palmera"
)

// Config is resolved once at startup and passed in.
type Config struct {
	SecretKey   string
	PublicKey   string
	WebhookHash string
	CallbackURL string
	BaseURL     string
}

// Adapter implements output.PaymentProvider, output.MobileMoneyCharger and
// output.ExchangeRateQuoter.
type Adapter struct {
	cfg    Config
	client *gateway.Client
	refs   *reference.Generator
	now    func() time.Time
}

// New validates cfg and builds the adapter. httpClient may be nil.
func New(cfg Config, refs *reference.Generator, httpClient *http.Client) (*Adapter, error) {
	missing := gateway.MissingSettings(
		"FLUTTERWAVE_SECRET_KEY", cfg.SecretKey,
		"FLUTTERWAVE_PUBLIC_KEY", cfg.PublicKey,
		"FLUTTERWAVE_WEBHOOK_HASH", cfg.WebhookHash,
		"PAYMENT_CALLBACK_URL", cfg.CallbackURL,
	)
	if refs == nil {
		missing = append(missing, "reference generator")
	}
	if len(missing) > 0 {
		return nil, &core.ConfigurationError{Component: "flutterwave", Missing: missing}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{
		cfg:    cfg,
		client: gateway.NewClient(core.ProviderFlutterwave, cfg.BaseURL, cfg.SecretKey, httpClient),
		refs:   refs,
		now:    time.Now,
	}, nil
}

func (a *Adapter) Name() core.Provider {
	return core.ProviderFlutterwave
}

// InitiatePayment creates a Flutterwave Standard checkout link.
func (a *Adapter) InitiatePayment(ctx context.Context, req core.PaymentRequest) (*core.PaymentResponse, error) {
	ref := req.Reference
	if ref == "" {
		ref = a.refs.Charge()
	}
	redirect := req.RedirectURL
	if redirect == "" {
		redirect = a.cfg.CallbackURL
	}

	body := paymentRequest{
		TxRef:       ref,
		Amount:      json.Number(req.Amount.Amount.String()),
		Currency:    string(req.Amount.Currency),
		RedirectURL: redirect,
		Customer: customer{
			Email:       req.Customer.Email,
			PhoneNumber: req.Customer.Phone,
			Name:        req.Customer.Name,
		},
		Meta:           req.Metadata,
		Customizations: customizations{Title: checkoutTitle},
	}

	var env envelope
	resp, err := a.client.Do(ctx, "initiate", http.MethodPost, "/payments", nil, body, &env)
	if err != nil {
		return nil, err
	}

	out := &core.PaymentResponse{
		Reference: ref,
		Amount:    req.Amount,
		Status:    core.PaymentStatusInitiated,
		Raw:       resp.Body,
	}
	if !resp.OK() || env.Status != "success" {
		out.Error = a.decline(env.Message).Message
		return out, nil
	}

	var data paymentData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "initiate", StatusCode: resp.StatusCode, Err: err}
	}
	out.Success = true
	out.RedirectURL = data.Link
	out.ExpiresAt = a.now().Add(core.PaymentExpiry)
	return out, nil
}

// VerifyPayment looks the transaction up by our tx_ref.
func (a *Adapter) VerifyPayment(ctx context.Context, ref string) (*core.PaymentVerification, error) {
	query := url.Values{}
	query.Set("tx_ref", ref)

	var env envelope
	resp, err := a.client.Do(ctx, "verify", http.MethodGet, "/transactions/verify_by_reference", query, nil, &env)
	if err != nil {
		return nil, err
	}

	out := &core.PaymentVerification{
		Reference: ref,
		Status:    core.PaymentStatusInitiated,
		Raw:       resp.Body,
	}
	if !resp.OK() || env.Status != "success" {
		out.Error = a.decline(env.Message).Message
		return out, nil
	}

	var data transactionData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "verify", StatusCode: resp.StatusCode, Err: err}
	}
	amount, err := parseAmount(data.Amount)
	if err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "verify", StatusCode: resp.StatusCode, Err: err}
	}
	out.Success = true
	out.Status = MapStatus(data.Status)
	out.Amount = core.Money{Amount: amount, Currency: core.Currency(strings.ToUpper(data.Currency))}
	if data.ID != 0 {
		out.ProviderReference = strconv.FormatInt(data.ID, 10)
	}
	if out.Status == core.PaymentStatusFailed && data.ProcessorReason != "" {
		out.Error = data.ProcessorReason
	}
	return out, nil
}

// RefundPayment refunds by Flutterwave transaction id. When the caller only
// knows our reference the id is looked up first.
func (a *Adapter) RefundPayment(ctx context.Context, req core.RefundRequest) (*core.RefundResult, error) {
	id := req.ProviderReference
	if id == "" {
		v, err := a.VerifyPayment(ctx, req.Reference)
		if err != nil {
			return nil, err
		}
		if v.ProviderReference == "" {
			return &core.RefundResult{Status: core.RefundStatusFailed, Error: a.decline("transaction not found").Message}, nil
		}
		id = v.ProviderReference
	}

	body := refundRequest{Comments: req.Reason}
	if req.Amount != nil {
		body.Amount = json.Number(req.Amount.Amount.String())
	}

	var env envelope
	resp, err := a.client.Do(ctx, "refund", http.MethodPost, "/transactions/"+url.PathEscape(id)+"/refund", nil, body, &env)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || env.Status != "success" {
		return &core.RefundResult{Status: core.RefundStatusFailed, Error: a.decline(env.Message).Message}, nil
	}

	var data refundData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "refund", StatusCode: resp.StatusCode, Err: err}
	}
	return &core.RefundResult{
		Success:  true,
		RefundID: strconv.FormatInt(data.ID, 10),
		Status:   mapRefundStatus(data.Status),
	}, nil
}

// MapStatus maps Flutterwave's transaction status onto the canonical states.
func MapStatus(status string) core.PaymentStatus {
	switch strings.ToLower(status) {
	case "successful":
		return core.PaymentStatusConfirmed
	case "failed", "cancelled":
		return core.PaymentStatusFailed
	case "pending":
		return core.PaymentStatusPending
	}
	return core.PaymentStatusInitiated
}

func mapRefundStatus(status string) core.RefundStatus {
	switch strings.ToLower(status) {
	case "completed", "successful":
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
	return &core.GatewayDeclineError{Provider: core.ProviderFlutterwave, Message: message}
}

func parseAmount(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed amount %q: %w", n, err)
	}
	return d, nil
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
