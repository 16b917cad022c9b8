// Package notify delivers consumed payment events to downstream
// collaborators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/webhook"
	"github.com/palmera/payments/internal/port/output"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)) on forwarded events.
const SignatureHeader = "X-Palmera-Signature"

// LogNotifier only records events. It is used when no downstream URL is set.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

var _ output.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, event core.PaymentEvent) error {
	n.logger.InfoContext(ctx, "payment event",
		"type", event.Type,
		"reference", event.Reference,
		"booking_id", event.BookingID,
		"status", event.Status,
		"amount", event.Amount,
		"currency", event.Currency,
		"superseded", event.Superseded,
	)
	return nil
}

// HTTPNotifier POSTs each event as signed JSON to a booking service endpoint.
type HTTPNotifier struct {
	url    string
	scheme webhook.HMACScheme
	client *http.Client
	logger *slog.Logger
}

func NewHTTPNotifier(url, secret string, timeout time.Duration, logger *slog.Logger) (*HTTPNotifier, error) {
	if url == "" || secret == "" {
		return nil, &core.ConfigurationError{Component: "notifier", Missing: missingSettings(url, secret)}
	}
	return &HTTPNotifier{
		url:    url,
		scheme: webhook.HMACScheme{Header: SignatureHeader, Algorithm: webhook.SHA256, Key: secret},
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

var _ output.Notifier = (*HTTPNotifier)(nil)

func (n *HTTPNotifier) Notify(ctx context.Context, event core.PaymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	sig, err := webhook.Sign(n.scheme, body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("event delivery rejected with status %d", resp.StatusCode)
	}
	n.logger.DebugContext(ctx, "event delivered", "type", event.Type, "reference", event.Reference)
	return nil
}

func missingSettings(url, secret string) []string {
	var missing []string
	if url == "" {
		missing = append(missing, "NOTIFY_URL")
	}
	if secret == "" {
		missing = append(missing, "NOTIFY_SECRET")
	}
	return missing
}
