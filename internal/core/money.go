package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is a 3-letter ISO 4217 code, always upper-case inside the core.
type Currency string

const (
	CurrencyXOF Currency = "XOF"
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// ParseCurrency normalizes a currency code received from a caller or a gateway.
func ParseCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency code %q", code)
		}
	}
	return Currency(code), nil
}

// MinorUnitExponent is the number of decimal places the currency allows.
func (c Currency) MinorUnitExponent() int32 {
	switch c {
	case CurrencyXOF:
		return 0
	default:
		return 2
	}
}

// Lower returns the lower-case form some gateways expect on the wire.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

// Money is an amount in canonical major units.
//
// Amounts are converted to a gateway's unit only at the adapter boundary
// (see MinorUnits / FromMinorUnits) and never stored in minor units.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// NewMoney validates and builds a Money value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	c, err := ParseCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("amount must not be negative")
	}
	return Money{Amount: amount, Currency: c}, nil
}

// MustMoney is NewMoney for literals known to be valid.
func MustMoney(amount int64, currency Currency) Money {
	return Money{Amount: decimal.NewFromInt(amount), Currency: currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// FitsMinorUnits reports whether the amount has no digits below the
// currency's smallest unit. Gateways round anything finer, so such an amount
// could never be settled exactly.
func (m Money) FitsMinorUnits() bool {
	exp := m.Currency.MinorUnitExponent()
	return m.Amount.Equal(m.Amount.Truncate(exp))
}

// MinorUnits converts the amount to the integer count of a gateway's smallest
// unit, e.g. factor 100 for Paystack's kobo-style amounts. Fractions below the
// smallest unit are rounded half-up.
func (m Money) MinorUnits(factor int64) int64 {
	return m.Amount.Mul(decimal.NewFromInt(factor)).Round(0).IntPart()
}

// FromMinorUnits converts a gateway amount back to canonical major units.
func FromMinorUnits(units int64, factor int64, currency Currency) Money {
	return Money{
		Amount:   decimal.NewFromInt(units).Div(decimal.NewFromInt(factor)),
		Currency: currency,
	}
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub subtracts o from m; both must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// GreaterThan compares amounts; currencies are assumed equal.
func (m Money) GreaterThan(o Money) bool {
	return m.Amount.GreaterThan(o.Amount)
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.String() + " " + string(m.Currency)
}
