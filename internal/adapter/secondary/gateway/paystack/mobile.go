package paystack

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/palmera/payments/internal/core"
)

// ChargeMobileMoney charges a wallet through /charge. The customer usually
// has to approve the debit on their phone, so a successful call leaves the
// payment PENDING with instructions to relay.
func (a *Adapter) ChargeMobileMoney(ctx context.Context, req core.MobileMoneyRequest) (*core.PaymentResponse, error) {
	ref := req.Reference
	if ref == "" {
		ref = a.refs.Mobile()
	}
	body := chargeRequest{
		Email:     req.Customer.Email,
		Amount:    req.Amount.MinorUnits(unitFactor),
		Currency:  req.Amount.Currency.Lower(),
		Reference: ref,
		MobileMoney: mobileMoney{
			Phone:    req.Customer.Phone,
			Provider: req.Network,
		},
		Metadata: req.Metadata,
	}

	var env envelope
	resp, err := a.client.Do(ctx, "charge", http.MethodPost, "/charge", nil, body, &env)
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

	var data transactionData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderPaystack, Op: "charge", StatusCode: resp.StatusCode, Err: err}
	}
	out.Status = MapStatus(data.Status)
	if out.Status == core.PaymentStatusFailed {
		out.Error = a.decline(data.GatewayResponse).Message
		return out, nil
	}
	if data.Reference != "" {
		out.Reference = data.Reference
	}
	if data.ID != 0 {
		out.ProviderReference = strconv.FormatInt(data.ID, 10)
	}
	out.Success = true
	out.Instructions = data.DisplayText
	if out.Instructions == "" {
		out.Instructions = env.Message
	}
	out.ExpiresAt = a.now().Add(core.PaymentExpiry)
	return out, nil
}

// MobileMoneyNetworks lists the mobile-money providers Paystack supports in
// country. Not cached.
func (a *Adapter) MobileMoneyNetworks(ctx context.Context, country string) ([]core.MobileNetwork, error) {
	query := url.Values{}
	query.Set("type", "mobile_money")
	query.Set("country", strings.ToLower(country))

	var env envelope
	resp, err := a.client.Do(ctx, "networks", http.MethodGet, "/bank", query, nil, &env)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || !env.Status {
		return nil, a.decline(env.Message)
	}

	var banks []bank
	if err := decodeData(env.Data, &banks); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderPaystack, Op: "networks", StatusCode: resp.StatusCode, Err: err}
	}
	networks := make([]core.MobileNetwork, 0, len(banks))
	for _, b := range banks {
		networks = append(networks, core.MobileNetwork{Code: b.Code, Name: b.Name, Country: b.Country})
	}
	return networks, nil
}
