// Package currency converts foreign amounts to Chilean pesos using the
// Banco Central de Chile daily series.
package currency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrRateUnavailable     = errors.New("exchange rate unavailable")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
)

type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Series string `json:"-"`
}

var supported = []Currency{
	{Code: "USD", Name: "Dólar Estadounidense", Series: "F073.TCO.PRE.Z.D"},
	{Code: "EUR", Name: "Euro", Series: "F073.TCO.EUR.Z.D"},
	{Code: "UF", Name: "Unidad de Fomento", Series: "F073.UF.PRE.Z.D"},
	{Code: "UTM", Name: "Unidad Tributaria Mensual", Series: "F073.UTM.PRE.Z.D"},
}

// Currencies lists the convertible currencies.
func Currencies() []Currency {
	out := make([]Currency, len(supported))
	copy(out, supported)
	return out
}

// Lookup resolves a currency code, ignoring case and surrounding spaces.
func Lookup(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range supported {
		if c.Code == code {
			return c, nil
		}
	}
	return Currency{}, ErrUnsupportedCurrency
}

// Rate is one observation of a series: pesos per unit of the currency.
type Rate struct {
	Value decimal.Decimal `json:"value"`
	// Date is the observation date published by the source.
	Date time.Time `json:"date"`
}

// RateSource fetches the latest valid rate for a currency.
type RateSource interface {
	LatestRate(ctx context.Context, c Currency) (*Rate, error)
}

// RateCache holds the latest rate per currency code.
type RateCache interface {
	Get(ctx context.Context, code string) (*Rate, bool, error)
	Set(ctx context.Context, code string, rate *Rate) error
}
