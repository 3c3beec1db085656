// Package payment hides the card-payment provider behind a small port. The
// checkout workflow only sees the normalized result types defined here.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the provider-agnostic payment port.
type Gateway interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Commit(ctx context.Context, token string) (*Confirmation, error)
	Status(ctx context.Context, token string) (*Confirmation, error)
	Refund(ctx context.Context, token string, amount decimal.Decimal) (*RefundResult, error)
}

type CreateRequest struct {
	// Amount in whole currency units; the provider does not accept fractions.
	Amount    int64
	BuyOrder  string
	SessionID string
	ReturnURL string
}

type CreateResult struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// ResponseCodeApproved is the provider's "authorized" sentinel.
const ResponseCodeApproved = 0

// Confirmation is the normalized answer to a commit or status query.
type Confirmation struct {
	ResponseCode       int             `json:"response_code"`
	Amount             decimal.Decimal `json:"amount"`
	Status             string          `json:"status"`
	BuyOrder           string          `json:"buy_order"`
	SessionID          string          `json:"session_id"`
	AuthorizationCode  string          `json:"authorization_code,omitempty"`
	PaymentTypeCode    string          `json:"payment_type_code,omitempty"`
	InstallmentsNumber int             `json:"installments_number"`
	CardLast4          string          `json:"card_last4,omitempty"`
	AccountingDate     string          `json:"accounting_date,omitempty"`
	TransactionDate    time.Time       `json:"transaction_date"`
	VCI                string          `json:"vci,omitempty"`
	// Raw is the provider payload as received, kept for the audit record.
	Raw json.RawMessage `json:"-"`
}

func (c *Confirmation) Approved() bool {
	return c.ResponseCode == ResponseCodeApproved
}

// MaskedCard renders the stored card reference; only the last four digits
// are ever kept.
func (c *Confirmation) MaskedCard() string {
	if c.CardLast4 == "" {
		return ""
	}
	return "****" + c.CardLast4
}

type RefundResult struct {
	Type              string              `json:"type"`
	ResponseCode      *int                `json:"response_code,omitempty"`
	AuthorizationCode string              `json:"authorization_code,omitempty"`
	NullifiedAmount   decimal.NullDecimal `json:"nullified_amount"`
	Balance           decimal.NullDecimal `json:"balance"`
	AuthorizationDate *time.Time          `json:"authorization_date,omitempty"`
	Raw               json.RawMessage     `json:"-"`
}

// Error is the single error type surfaced by gateway adapters, covering
// transport failures, provider rejections and malformed responses.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := "payment gateway " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func IsGatewayError(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr)
}
