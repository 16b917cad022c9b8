package flutterwave

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/webhook"
)

// WebhookScheme returns the shared-secret scheme Flutterwave uses: the
// verif-hash header must equal the secret hash set on the dashboard.
func (a *Adapter) WebhookScheme() webhook.Scheme {
	return webhook.SharedSecretScheme{
		Header: HashHeader,
		Secret: a.cfg.WebhookHash,
	}
}

// ParseWebhook decodes a verified Flutterwave callback. charge.completed is
// sent for both outcomes, so the data status decides which one it is.
func (a *Adapter) ParseWebhook(body []byte) (*core.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("flutterwave webhook: %w", err)
	}
	amount, err := parseAmount(payload.Data.Amount)
	if err != nil {
		return nil, fmt.Errorf("flutterwave webhook: %w", err)
	}

	event := &core.WebhookEvent{
		Provider:  core.ProviderFlutterwave,
		Name:      payload.Event,
		Kind:      core.EventUnknown,
		Reference: payload.Data.TxRef,
		Amount:    core.Money{Amount: amount, Currency: core.Currency(strings.ToUpper(payload.Data.Currency))},
		Raw:       body,
	}
	if payload.Data.ID != 0 {
		event.ProviderReference = strconv.FormatInt(payload.Data.ID, 10)
	}

	status := MapStatus(payload.Data.Status)
	switch payload.Event {
	case "charge.completed":
		switch status {
		case core.PaymentStatusConfirmed:
			event.Kind = core.EventChargeSucceeded
		case core.PaymentStatusPending:
			event.Kind = core.EventChargePending
		case core.PaymentStatusFailed:
			event.Kind = core.EventChargeFailed
		}
	case "charge.failed":
		event.Kind = core.EventChargeFailed
	case "transfer.completed":
		event.Reference = payload.Data.Reference
		if status == core.PaymentStatusConfirmed {
			event.Kind = core.EventTransferSucceeded
		} else {
			event.Kind = core.EventTransferFailed
		}
	}
	return event, nil
}
