package flutterwave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/palmera/payments/internal/core"
)

// chargeTypes maps a currency to Flutterwave's mobile-money charge type.
var chargeTypes = map[core.Currency]string{
	"XOF": "mobile_money_franco",
	"XAF": "mobile_money_franco",
	"GHS": "mobile_money_ghana",
	"UGX": "mobile_money_uganda",
	"RWF": "mobile_money_rwanda",
	"ZMW": "mobile_money_zambia",
	"KES": "mpesa",
}

// ChargeMobileMoney starts a direct mobile-money debit. The customer approves
// it on their phone or through the returned redirect, so the payment stays
// PENDING until a webhook or poll settles it.
func (a *Adapter) ChargeMobileMoney(ctx context.Context, req core.MobileMoneyRequest) (*core.PaymentResponse, error) {
	chargeType, ok := chargeTypes[req.Amount.Currency]
	if !ok {
		return &core.PaymentResponse{
			Reference: req.Reference,
			Amount:    req.Amount,
			Status:    core.PaymentStatusInitiated,
			Error:     a.decline("mobile money not available for " + string(req.Amount.Currency)).Message,
		}, nil
	}

	ref := req.Reference
	if ref == "" {
		ref = a.refs.Mobile()
	}
	body := mobileMoneyRequest{
		TxRef:       ref,
		Amount:      json.Number(req.Amount.Amount.String()),
		Currency:    string(req.Amount.Currency),
		Email:       req.Customer.Email,
		PhoneNumber: req.Customer.Phone,
		FullName:    req.Customer.Name,
		Network:     req.Network,
		Country:     req.Country,
		Meta:        req.Metadata,
	}
	query := url.Values{}
	query.Set("type", chargeType)

	var env envelope
	resp, err := a.client.Do(ctx, "charge", http.MethodPost, "/charges", query, body, &env)
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

	var data transactionData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := decodeData(env.Data, &data); err != nil {
			return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "charge", StatusCode: resp.StatusCode, Err: err}
		}
	}
	if data.ID != 0 {
		out.ProviderReference = strconv.FormatInt(data.ID, 10)
	}

	out.Success = true
	out.Status = core.PaymentStatusPending
	if data.Status != "" {
		out.Status = MapStatus(data.Status)
	}
	switch {
	case env.Meta != nil && env.Meta.Authorization.Redirect != "":
		out.RedirectURL = env.Meta.Authorization.Redirect
	case env.Meta != nil && env.Meta.Authorization.Note != "":
		out.Instructions = env.Meta.Authorization.Note
	default:
		out.Instructions = env.Message
	}
	out.ExpiresAt = a.now().Add(core.PaymentExpiry)
	return out, nil
}

// MobileMoneyNetworks lists the operators Flutterwave can debit in country.
// Every call goes to the network.
func (a *Adapter) MobileMoneyNetworks(ctx context.Context, country string) ([]core.MobileNetwork, error) {
	country = strings.ToUpper(country)

	var env envelope
	resp, err := a.client.Do(ctx, "networks", http.MethodGet, "/mobile-networks/"+url.PathEscape(country), nil, nil, &env)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || env.Status != "success" {
		return nil, a.decline(env.Message)
	}

	var list []network
	if err := decodeData(env.Data, &list); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "networks", StatusCode: resp.StatusCode, Err: err}
	}
	networks := make([]core.MobileNetwork, 0, len(list))
	for _, n := range list {
		networks = append(networks, core.MobileNetwork{Code: n.Code, Name: n.Name, Country: country})
	}
	return networks, nil
}

// ExchangeRate quotes converting amount of from into to. Quotes are not
// cached and two consecutive calls may disagree.
func (a *Adapter) ExchangeRate(ctx context.Context, from, to core.Currency, amount decimal.Decimal) (*core.ExchangeRate, error) {
	query := url.Values{}
	query.Set("amount", amount.String())
	query.Set("source_currency", string(from))
	query.Set("destination_currency", string(to))

	var env envelope
	resp, err := a.client.Do(ctx, "rates", http.MethodGet, "/transfers/rates", query, nil, &env)
	if err != nil {
		return nil, err
	}
	if !resp.OK() || env.Status != "success" {
		return nil, a.decline(env.Message)
	}

	var data rateData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "rates", StatusCode: resp.StatusCode, Err: err}
	}
	rate, err := parseAmount(data.Rate)
	if err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "rates", StatusCode: resp.StatusCode, Err: err}
	}
	src, err := parseAmount(data.Source.Amount)
	if err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "rates", StatusCode: resp.StatusCode, Err: err}
	}
	dst, err := parseAmount(data.Destination.Amount)
	if err != nil {
		return nil, &core.TransportError{Provider: core.ProviderFlutterwave, Op: "rates", StatusCode: resp.StatusCode, Err: err}
	}
	return &core.ExchangeRate{
		Source:      core.Money{Amount: src, Currency: core.Currency(strings.ToUpper(data.Source.Currency))},
		Destination: core.Money{Amount: dst, Currency: core.Currency(strings.ToUpper(data.Destination.Currency))},
		Rate:        rate,
	}, nil
}
