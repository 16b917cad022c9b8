package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/webhook"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewHTTPNotifier_RequiresURLAndSecret(t *testing.T) {
	_, err := NewHTTPNotifier("", "", time.Second, discard())
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"NOTIFY_URL", "NOTIFY_SECRET"}, cfgErr.Missing)
}

func TestHTTPNotifier_SignsEvents(t *testing.T) {
	const secret = "bookings-secret"
	var (
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, secret, time.Second, discard())
	require.NoError(t, err)

	event := core.PaymentEvent{
		Type:      core.EventPaymentConfirmed,
		BookingID: "bk_1",
		Reference: "palmera_1_a",
		Provider:  core.ProviderFlutterwave,
		Status:    core.PaymentStatusConfirmed,
		Amount:    "5000",
		Currency:  core.CurrencyXOF,
	}
	require.NoError(t, n.Notify(context.Background(), event))

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	scheme := webhook.HMACScheme{Header: SignatureHeader, Algorithm: webhook.SHA256, Key: secret}
	assert.NoError(t, webhook.Verify(scheme, gotBody, gotHeader))

	var decoded core.PaymentEvent
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, event.Reference, decoded.Reference)
	assert.Equal(t, event.Type, decoded.Type)
}

func TestHTTPNotifier_RejectedDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, "s", time.Second, discard())
	require.NoError(t, err)
	assert.ErrorContains(t, n.Notify(context.Background(), core.PaymentEvent{Type: core.EventPaymentFailed}), "503")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(discard()).Notify(context.Background(), core.PaymentEvent{Type: core.EventPaymentInitiated}))
}
