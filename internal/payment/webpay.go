package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const webpayTransactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

type WebpayOptions struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
	// Timeout bounds each call; zero leaves it to the caller's context.
	Timeout time.Duration
}

// WebpayClient talks to the Transbank Webpay Plus REST API.
type WebpayClient struct {
	opts    WebpayOptions
	http    *http.Client
	tracer  trace.Tracer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewWebpayClient(opts WebpayOptions, m *metrics.Metrics, logger *zap.Logger) *WebpayClient {
	return &WebpayClient{
		opts: opts,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		tracer:  otel.Tracer("github.com/safar/go-storefront/internal/payment"),
		metrics: m,
		logger:  logger,
	}
}

var _ Gateway = (*WebpayClient)(nil)

func (c *WebpayClient) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	const op = "create"

	if req.Amount <= 0 {
		return nil, &Error{Op: op, Message: "amount must be positive"}
	}

	body := map[string]any{
		"buy_order":  req.BuyOrder,
		"session_id": req.SessionID,
		"amount":     req.Amount,
		"return_url": req.ReturnURL,
	}

	raw, err := c.do(ctx, op, http.MethodPost, webpayTransactionsPath, body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token   string `json:"token"`
		TokenWS string `json:"token_ws"`
		URL     string `json:"url"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: op, Message: "malformed response", Err: err}
	}

	token := resp.Token
	if token == "" {
		token = resp.TokenWS
	}
	if token == "" || resp.URL == "" {
		return nil, &Error{Op: op, Message: "response missing token or url"}
	}

	c.logger.Info("Webpay transaction created",
		zap.String("buy_order", req.BuyOrder),
		zap.Int64("amount", req.Amount))

	return &CreateResult{Token: token, RedirectURL: resp.URL}, nil
}

func (c *WebpayClient) Commit(ctx context.Context, token string) (*Confirmation, error) {
	return c.confirmation(ctx, "commit", http.MethodPut, token)
}

func (c *WebpayClient) Status(ctx context.Context, token string) (*Confirmation, error) {
	return c.confirmation(ctx, "status", http.MethodGet, token)
}

func (c *WebpayClient) Refund(ctx context.Context, token string, amount decimal.Decimal) (*RefundResult, error) {
	const op = "refund"

	if token == "" {
		return nil, &Error{Op: op, Message: "missing token"}
	}
	if !amount.IsPositive() {
		return nil, &Error{Op: op, Message: "amount must be positive"}
	}

	path := webpayTransactionsPath + "/" + url.PathEscape(token) + "/refunds"
	raw, err := c.do(ctx, op, http.MethodPost, path, map[string]any{"amount": amount.IntPart()})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Type              string              `json:"type"`
		ResponseCode      *flexInt            `json:"response_code"`
		AuthorizationCode string              `json:"authorization_code"`
		AuthorizationDate *time.Time          `json:"authorization_date"`
		NullifiedAmount   decimal.NullDecimal `json:"nullified_amount"`
		Balance           decimal.NullDecimal `json:"balance"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: op, Message: "malformed response", Err: err}
	}
	if resp.Type == "" {
		return nil, &Error{Op: op, Message: "response missing type"}
	}

	result := &RefundResult{
		Type:              resp.Type,
		AuthorizationCode: resp.AuthorizationCode,
		AuthorizationDate: resp.AuthorizationDate,
		NullifiedAmount:   resp.NullifiedAmount,
		Balance:           resp.Balance,
		Raw:               raw,
	}
	if resp.ResponseCode != nil {
		code := int(*resp.ResponseCode)
		result.ResponseCode = &code
	}

	return result, nil
}

// confirmationPayload is the commit/status body. Numeric fields are decoded
// leniently so numbers and numeric strings normalize to the same value.
type confirmationPayload struct {
	VCI                string          `json:"vci"`
	Amount             decimal.Decimal `json:"amount"`
	Status             string          `json:"status"`
	BuyOrder           string          `json:"buy_order"`
	SessionID          string          `json:"session_id"`
	CardDetail         *cardDetail     `json:"card_detail"`
	AccountingDate     string          `json:"accounting_date"`
	TransactionDate    string          `json:"transaction_date"`
	AuthorizationCode  string          `json:"authorization_code"`
	PaymentTypeCode    string          `json:"payment_type_code"`
	ResponseCode       *flexInt        `json:"response_code"`
	InstallmentsNumber *flexInt        `json:"installments_number"`
}

type cardDetail struct {
	CardNumber string `json:"card_number"`
}

func (c *WebpayClient) confirmation(ctx context.Context, op, method, token string) (*Confirmation, error) {
	if token == "" {
		return nil, &Error{Op: op, Message: "missing token"}
	}

	raw, err := c.do(ctx, op, method, webpayTransactionsPath+"/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}

	return parseConfirmation(op, raw)
}

func parseConfirmation(op string, raw []byte) (*Confirmation, error) {
	var p confirmationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &Error{Op: op, Message: "malformed response", Err: err}
	}
	if p.ResponseCode == nil {
		return nil, &Error{Op: op, Message: "response missing response_code"}
	}

	conf := &Confirmation{
		ResponseCode:      int(*p.ResponseCode),
		Amount:            p.Amount,
		Status:            p.Status,
		BuyOrder:          p.BuyOrder,
		SessionID:         p.SessionID,
		AuthorizationCode: p.AuthorizationCode,
		PaymentTypeCode:   p.PaymentTypeCode,
		AccountingDate:    p.AccountingDate,
		VCI:               p.VCI,
		Raw:               json.RawMessage(raw),
	}
	if p.InstallmentsNumber != nil {
		conf.InstallmentsNumber = int(*p.InstallmentsNumber)
	}
	if p.CardDetail != nil {
		conf.CardLast4 = lastDigits(p.CardDetail.CardNumber, 4)
	}
	if p.TransactionDate != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.TransactionDate); err == nil {
			conf.TransactionDate = ts
		}
	}

	return conf, nil
}

func (c *WebpayClient) do(ctx context.Context, op, method, path string, body any) (raw []byte, err error) {
	start := time.Now()
	defer func() { c.metrics.GatewayCall(op, start, err) }()

	ctx, span := c.tracer.Start(ctx, "webpay."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Op: op, Message: "encode request", Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Tbk-Api-Key-Id", c.opts.CommerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", endpoint),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var providerErr struct {
			ErrorMessage string `json:"error_message"`
		}
		_ = json.Unmarshal(raw, &providerErr)
		msg := providerErr.ErrorMessage
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	return raw, nil
}

// flexInt accepts 0, -1 and "0" alike.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return errors.New("empty integer")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse integer %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

func lastDigits(s string, n int) string {
	var digits []rune
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}
