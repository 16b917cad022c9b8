package paystack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/core/webhook"
)

// WebhookScheme returns the HMAC-SHA512 scheme Paystack signs callbacks with.
func (a *Adapter) WebhookScheme() webhook.Scheme {
	return webhook.HMACScheme{
		Header:    SignatureHeader,
		Algorithm: webhook.SHA512,
		Key:       a.cfg.WebhookSecret,
	}
}

// ParseWebhook decodes a verified Paystack callback.
func (a *Adapter) ParseWebhook(body []byte) (*core.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("paystack webhook: %w", err)
	}

	event := &core.WebhookEvent{
		Provider:  core.ProviderPaystack,
		Name:      payload.Event,
		Kind:      core.EventUnknown,
		Reference: payload.Data.Reference,
		Amount:    core.FromMinorUnits(payload.Data.Amount, unitFactor, core.Currency(strings.ToUpper(payload.Data.Currency))),
		Raw:       body,
	}
	if payload.Data.ID != 0 {
		event.ProviderReference = strconv.FormatInt(payload.Data.ID, 10)
	}

	switch payload.Event {
	case "charge.success":
		event.Kind = core.EventChargeSucceeded
	case "charge.failed":
		event.Kind = core.EventChargeFailed
	case "transfer.success":
		event.Kind = core.EventTransferSucceeded
	case "transfer.failed", "transfer.reversed":
		event.Kind = core.EventTransferFailed
	}
	return event, nil
}
