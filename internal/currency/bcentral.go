package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BancoCentralOptions struct {
	BaseURL      string
	User         string
	Password     string
	LookbackDays int
	Timeout      time.Duration
}

// BancoCentralClient reads series from the SieteRestWS GetSeries endpoint.
type BancoCentralClient struct {
	opts   BancoCentralOptions
	http   *http.Client
	tracer trace.Tracer
	logger *zap.Logger
	now    func() time.Time
}

func NewBancoCentralClient(opts BancoCentralOptions, logger *zap.Logger) *BancoCentralClient {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &BancoCentralClient{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		tracer: otel.Tracer("github.com/safar/go-storefront/internal/currency"),
		logger: logger,
		now:    time.Now,
	}
}

var _ RateSource = (*BancoCentralClient)(nil)

type seriesResponse struct {
	Codigo      int    `json:"Codigo"`
	Descripcion string `json:"Descripcion"`
	Series      struct {
		SeriesID string        `json:"seriesId"`
		Obs      []observation `json:"Obs"`
	} `json:"Series"`
}

type observation struct {
	IndexDateString string `json:"indexDateString"`
	Value           string `json:"value"`
	StatusCode      string `json:"statusCode"`
}

// LatestRate returns the most recent observation flagged OK within the
// lookback window ending today.
func (c *BancoCentralClient) LatestRate(ctx context.Context, cur Currency) (rate *Rate, err error) {
	ctx, span := c.tracer.Start(ctx, "bcentral.GetSeries", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("currency.code", cur.Code),
		attribute.String("currency.series", cur.Series),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	end := c.now()
	start := end.AddDate(0, 0, -c.opts.LookbackDays)

	params := url.Values{}
	params.Set("user", c.opts.User)
	params.Set("pass", c.opts.Password)
	params.Set("function", "GetSeries")
	params.Set("timeseries", cur.Series)
	params.Set("firstdate", start.Format("2006-01-02"))
	params.Set("lastdate", end.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrRateUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRateUnavailable, err)
	}

	var data seriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRateUnavailable, err)
	}
	if data.Codigo != 0 {
		return nil, fmt.Errorf("%w: upstream error %d: %s", ErrRateUnavailable, data.Codigo, data.Descripcion)
	}

	rate, err = latestValid(data.Series.Obs)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Series fetched",
		zap.String("series", cur.Series),
		zap.Int("observations", len(data.Series.Obs)))

	return rate, nil
}

func latestValid(obs []observation) (*Rate, error) {
	for i := len(obs) - 1; i >= 0; i-- {
		o := obs[i]
		if o.StatusCode != "OK" {
			continue
		}
		value, err := decimal.NewFromString(o.Value)
		if err != nil {
			continue
		}
		date, err := time.Parse("02-01-2006", o.IndexDateString)
		if err != nil {
			continue
		}
		return &Rate{Value: value, Date: date}, nil
	}
	return nil, fmt.Errorf("%w: no valid observation in range", ErrRateUnavailable)
}
