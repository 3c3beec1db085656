package currency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/safar/go-storefront/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Converter struct {
	source  RateSource
	cache   RateCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewConverter(source RateSource, cache RateCache, m *metrics.Metrics, logger *zap.Logger) *Converter {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Converter{source: source, cache: cache, metrics: m, logger: logger}
}

type Conversion struct {
	AmountCLP      decimal.Decimal
	Rate           decimal.Decimal
	Currency       string
	OriginalAmount decimal.Decimal
	Date           string
}

// MarshalJSON renders amounts as JSON numbers.
func (c Conversion) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AmountCLP      json.Number `json:"amount_clp"`
		Rate           json.Number `json:"rate"`
		Currency       string      `json:"currency"`
		OriginalAmount json.Number `json:"original_amount"`
		Date           string      `json:"date"`
	}{
		AmountCLP:      json.Number(c.AmountCLP.StringFixed(2)),
		Rate:           json.Number(c.Rate.String()),
		Currency:       c.Currency,
		OriginalAmount: json.Number(c.OriginalAmount.String()),
		Date:           c.Date,
	})
}

// Convert returns amount expressed in pesos, rounded to two decimals.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, code string) (*Conversion, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	cur, err := Lookup(code)
	if err != nil {
		return nil, err
	}

	rate, err := c.rate(ctx, cur)
	if err != nil {
		return nil, err
	}

	return &Conversion{
		AmountCLP:      amount.Mul(rate.Value).Round(2),
		Rate:           rate.Value,
		Currency:       cur.Code,
		OriginalAmount: amount,
		Date:           rate.Date.Format("2006-01-02"),
	}, nil
}

func (c *Converter) rate(ctx context.Context, cur Currency) (*Rate, error) {
	cached, ok, err := c.cache.Get(ctx, cur.Code)
	if err != nil {
		c.logger.Warn("Rate cache read failed", zap.String("currency", cur.Code), zap.Error(err))
	}
	if ok {
		c.metrics.RateLookup(cur.Code, "cache")
		return cached, nil
	}

	rate, err := c.source.LatestRate(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("fetch %s rate: %w", cur.Code, err)
	}
	c.metrics.RateLookup(cur.Code, "upstream")

	if err := c.cache.Set(ctx, cur.Code, rate); err != nil {
		c.logger.Warn("Rate cache write failed", zap.String("currency", cur.Code), zap.Error(err))
	}

	c.logger.Info("Exchange rate fetched",
		zap.String("currency", cur.Code),
		zap.String("rate", rate.Value.String()),
		zap.Time("date", rate.Date))

	return rate, nil
}
