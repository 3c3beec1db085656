// Package checkout turns a user's cart into an order and drives the payment
// round trip with the gateway: start, return/confirmation, status and refund.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/notify"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingToken    = errors.New("missing payment token")
	ErrNotRefundable   = errors.New("order has no completed payment to refund")
	ErrInvalidAmount   = errors.New("refund amount must be positive and not exceed the paid amount")
	ErrNoPaymentRecord = errors.New("order has no payment transaction")
)

// Return outcomes, carried to the confirmation page as its status parameter.
const (
	ReturnSuccess   = "success"
	ReturnError     = "error"
	ReturnCancelled = "cancelled"
)

type Options struct {
	// ReturnURL is the absolute callback the gateway sends the shopper back to.
	ReturnURL      string
	BuyOrderPrefix string
}

type Service struct {
	db      *sql.DB
	gateway payment.Gateway
	sink    notify.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

func NewService(db *sql.DB, gateway payment.Gateway, sink notify.Sink, m *metrics.Metrics, logger *zap.Logger, opts Options) *Service {
	return &Service{
		db:      db,
		gateway: gateway,
		sink:    sink,
		metrics: m,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// BuyOrder derives the merchant-side order reference sent to the gateway.
func BuyOrder(prefix string, orderID int64) string {
	return prefix + strconv.FormatInt(orderID, 10)
}

type StartResult struct {
	OrderID     int64           `json:"order_id"`
	BuyOrder    string          `json:"buy_order"`
	Amount      decimal.Decimal `json:"amount"`
	Token       string          `json:"token"`
	RedirectURL string          `json:"redirect_url"`
}

// Start snapshots the cart into a pending order and opens a transaction at
// the gateway. The order, its lines, the payment record and the cart
// deletion commit together only after the gateway accepted the transaction;
// any failure rolls the attempt back and leaves the cart untouched.
func (s *Service) Start(ctx context.Context, userID int64) (*StartResult, error) {
	result, err := s.start(ctx, userID)
	if err != nil {
		s.metrics.CheckoutStarted(startFailureLabel(err))
		return nil, err
	}
	s.metrics.CheckoutStarted("ok")

	s.logger.Info("Checkout started",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", result.OrderID),
		zap.String("buy_order", result.BuyOrder),
		zap.String("amount", result.Amount.String()))

	return result, nil
}

func (s *Service) start(ctx context.Context, userID int64) (*StartResult, error) {
	if userID <= 0 {
		return nil, store.ErrUnauthenticated
	}

	var result *StartResult
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		items, err := store.LockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		lines, total := store.PriceCart(items)

		order, err := store.CreateOrder(ctx, tx, userID, lines, total)
		if err != nil {
			return err
		}

		buyOrder := BuyOrder(s.opts.BuyOrderPrefix, order.ID)
		txn, err := store.CreateTransaction(ctx, tx, order.ID, buyOrder, strconv.FormatInt(userID, 10), total)
		if err != nil {
			return err
		}

		created, err := s.gateway.Create(ctx, payment.CreateRequest{
			Amount:    total.Round(0).IntPart(),
			BuyOrder:  buyOrder,
			SessionID: txn.SessionID,
			ReturnURL: s.opts.ReturnURL,
		})
		if err != nil {
			return err
		}

		if err := store.SetTransactionToken(ctx, tx, txn.ID, created.Token); err != nil {
			return err
		}

		if _, err := store.ClearCart(ctx, tx, userID); err != nil {
			return err
		}

		result = &StartResult{
			OrderID:     order.ID,
			BuyOrder:    buyOrder,
			Amount:      total,
			Token:       created.Token,
			RedirectURL: created.RedirectURL,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func startFailureLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, store.ErrUnauthenticated):
		return "unauthenticated"
	case payment.IsGatewayError(err):
		return "gateway_error"
	default:
		return "error"
	}
}

// ReturnParams are the callback parameters the gateway posts back.
type ReturnParams struct {
	TokenWS string
	// TBKToken and TBKBuyOrder are only sent when the shopper aborted the
	// payment or the payment form timed out.
	TBKToken    string
	TBKBuyOrder string
}

func (p ReturnParams) aborted() bool {
	return p.TBKToken != "" || (p.TokenWS == "" && p.TBKBuyOrder != "")
}

type ReturnOutcome struct {
	Status  string
	OrderID int64
	// Err is set when Status is ReturnError and the cause is known.
	Err error
}

// Return resolves the gateway callback into a final order state. It never
// fails outright: every path maps to an outcome for the confirmation page.
func (s *Service) Return(ctx context.Context, p ReturnParams) ReturnOutcome {
	var out ReturnOutcome
	switch {
	case p.aborted():
		out = s.cancel(ctx, p)
	case p.TokenWS == "":
		out = ReturnOutcome{Status: ReturnError, Err: ErrMissingToken}
	default:
		out = s.confirm(ctx, p.TokenWS)
	}

	s.metrics.PaymentReturned(out.Status)
	if out.Err != nil {
		s.logger.Error("Payment return failed",
			zap.Int64("order_id", out.OrderID),
			zap.Error(out.Err))
	} else {
		s.logger.Info("Payment return processed",
			zap.Int64("order_id", out.OrderID),
			zap.String("status", out.Status))
	}

	return out
}

func (s *Service) cancel(ctx context.Context, p ReturnParams) ReturnOutcome {
	out := ReturnOutcome{Status: ReturnCancelled}

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		txn, err := findAborted(ctx, tx, p)
		if errors.Is(err, database.ErrTransactionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if txn.OrderID != nil {
			out.OrderID = *txn.OrderID
		}
		if txn.IsTerminal() {
			return nil
		}

		if err := store.SetTransactionStatus(ctx, tx, txn.ID, models.TransactionStatusCancelled); err != nil {
			return err
		}
		if txn.OrderID != nil {
			return store.SetOrderStatus(ctx, tx, *txn.OrderID, models.OrderStatusCancelled)
		}
		return nil
	})
	if err != nil {
		out.Err = fmt.Errorf("cancel payment: %w", err)
	}

	return out
}

func findAborted(ctx context.Context, tx *sql.Tx, p ReturnParams) (*models.Transaction, error) {
	for _, token := range []string{p.TokenWS, p.TBKToken} {
		if token == "" {
			continue
		}
		txn, err := store.GetTransactionByToken(ctx, tx, token, true)
		if !errors.Is(err, database.ErrTransactionNotFound) {
			return txn, err
		}
	}
	if p.TBKBuyOrder != "" {
		return store.GetTransactionByBuyOrder(ctx, tx, p.TBKBuyOrder, true)
	}
	return nil, database.ErrTransactionNotFound
}

func (s *Service) confirm(ctx context.Context, token string) ReturnOutcome {
	out := ReturnOutcome{Status: ReturnError}
	var approved bool

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		txn, err := store.GetTransactionByToken(ctx, tx, token, true)
		if err != nil {
			return err
		}
		if txn.OrderID != nil {
			out.OrderID = *txn.OrderID
		}

		// A repeated callback replays the recorded outcome.
		if txn.IsTerminal() {
			out.Status = outcomeFor(txn.Status)
			return nil
		}

		conf, err := s.gateway.Commit(ctx, token)
		if err != nil {
			return err
		}

		status := models.TransactionStatusFailed
		if conf.Approved() {
			status = models.TransactionStatusCompleted
		}

		audit, err := loadAudit(txn.Detail)
		if err != nil {
			return err
		}
		audit.Commit = &CommitEntry{
			RecordedAt:   s.now().UTC(),
			Confirmation: conf,
			Provider:     validJSON(conf.Raw),
		}
		detail, err := audit.encode()
		if err != nil {
			return err
		}

		err = store.ApplyTransactionResult(ctx, tx, txn.ID, store.TransactionResult{
			Status:             status,
			ResponseCode:       conf.ResponseCode,
			Amount:             confirmedAmount(conf, txn),
			TransactionDate:    transactionDate(conf, s.now()),
			AuthorizationCode:  conf.AuthorizationCode,
			PaymentTypeCode:    conf.PaymentTypeCode,
			InstallmentsNumber: conf.InstallmentsNumber,
			CardNumber:         conf.MaskedCard(),
			Detail:             detail,
		})
		if err != nil {
			return err
		}

		if txn.OrderID != nil {
			if err := store.SetOrderStatus(ctx, tx, *txn.OrderID, models.OrderStatusFor(status)); err != nil {
				return err
			}
		}

		approved = conf.Approved()
		out.Status = outcomeFor(status)
		return nil
	})
	if err != nil {
		return ReturnOutcome{Status: ReturnError, OrderID: out.OrderID, Err: fmt.Errorf("confirm payment: %w", err)}
	}

	if approved && out.OrderID != 0 {
		s.notifyConfirmed(ctx, out.OrderID)
	}

	return out
}

func outcomeFor(transactionStatus string) string {
	switch transactionStatus {
	case models.TransactionStatusCompleted:
		return ReturnSuccess
	case models.TransactionStatusCancelled:
		return ReturnCancelled
	default:
		return ReturnError
	}
}

// confirmedAmount keeps the locally recorded amount when the provider
// omits it.
func confirmedAmount(conf *payment.Confirmation, txn *models.Transaction) decimal.Decimal {
	if conf.Amount.IsZero() {
		return txn.Amount
	}
	return conf.Amount
}

func transactionDate(conf *payment.Confirmation, now time.Time) time.Time {
	if conf.TransactionDate.IsZero() {
		return now.UTC()
	}
	return conf.TransactionDate
}

// notifyConfirmed sends the receipt. Failures are logged and counted only;
// the payment outcome is already committed.
func (s *Service) notifyConfirmed(ctx context.Context, orderID int64) {
	err := s.sendConfirmation(ctx, orderID)
	s.metrics.Notification(err)
	if err != nil {
		s.logger.Warn("Order confirmation not sent",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}
}

func (s *Service) sendConfirmation(ctx context.Context, orderID int64) error {
	if s.sink == nil {
		return nil
	}

	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order.UserID == nil {
		return fmt.Errorf("order %d has no owner", orderID)
	}

	user, err := store.GetUser(ctx, s.db, *order.UserID)
	if err != nil {
		return err
	}

	return s.sink.OrderConfirmed(ctx, order, user.Email)
}

// PaymentStatus asks the gateway for the live state of the order's latest
// payment attempt.
func (s *Service) PaymentStatus(ctx context.Context, userID, orderID int64) (*payment.Confirmation, error) {
	order, err := store.GetOrderForUser(ctx, s.db, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Transaction == nil || order.Transaction.TokenWS == nil {
		return nil, ErrNoPaymentRecord
	}

	return s.gateway.Status(ctx, *order.Transaction.TokenWS)
}

// Refund reverses all or part of a completed payment. A zero amount refunds
// whatever is still unrefunded. A refund that leaves no balance cancels the
// order.
func (s *Service) Refund(ctx context.Context, orderID int64, amount decimal.Decimal) (*payment.RefundResult, error) {
	var result *payment.RefundResult

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		txn, err := store.GetTransactionByOrder(ctx, tx, orderID)
		if errors.Is(err, database.ErrTransactionNotFound) {
			if _, err := store.GetOrder(ctx, tx, orderID); err != nil {
				return err
			}
			return ErrNoPaymentRecord
		}
		if err != nil {
			return err
		}

		// Re-read under lock; GetTransactionByOrder does not lock.
		txn, err = store.GetTransactionByBuyOrder(ctx, tx, txn.BuyOrder, true)
		if err != nil {
			return err
		}
		if txn.Status != models.TransactionStatusCompleted || txn.TokenWS == nil {
			return ErrNotRefundable
		}

		audit, err := loadAudit(txn.Detail)
		if err != nil {
			return err
		}

		remaining := txn.Amount.Sub(audit.refunded())
		if !remaining.IsPositive() {
			return ErrNotRefundable
		}
		if amount.IsZero() {
			amount = remaining
		}
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return ErrInvalidAmount
		}

		result, err = s.gateway.Refund(ctx, *txn.TokenWS, amount)
		if err != nil {
			return err
		}

		if err := s.recordRefund(ctx, tx, txn, audit, amount, result); err != nil {
			s.logger.Error("Refund accepted by gateway but not recorded",
				zap.Int64("order_id", orderID),
				zap.String("buy_order", txn.BuyOrder),
				zap.String("amount", amount.String()),
				zap.String("type", result.Type),
				zap.String("authorization_code", result.AuthorizationCode),
				zap.ByteString("provider", result.Raw),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment refunded",
		zap.Int64("order_id", orderID),
		zap.String("type", result.Type),
		zap.String("amount", amount.String()))

	return result, nil
}

func (s *Service) recordRefund(ctx context.Context, tx *sql.Tx, txn *models.Transaction, audit *AuditRecord, amount decimal.Decimal, result *payment.RefundResult) error {
	audit.Refunds = append(audit.Refunds, RefundEntry{
		RecordedAt: s.now().UTC(),
		Amount:     amount,
		Result:     result,
		Provider:   validJSON(result.Raw),
	})
	detail, err := audit.encode()
	if err != nil {
		return err
	}
	if err := store.SetTransactionDetail(ctx, tx, txn.ID, detail); err != nil {
		return err
	}

	if !fullyRefunded(result, txn.Amount.Sub(audit.refunded())) {
		return nil
	}
	if err := store.SetTransactionStatus(ctx, tx, txn.ID, models.TransactionStatusCancelled); err != nil {
		return err
	}
	if txn.OrderID == nil {
		return nil
	}
	return store.SetOrderStatus(ctx, tx, *txn.OrderID, models.OrderStatusCancelled)
}

// fullyRefunded trusts the provider's balance when it reports one and falls
// back to the locally tracked remainder otherwise.
func fullyRefunded(r *payment.RefundResult, remaining decimal.Decimal) bool {
	if !refundApproved(r) {
		return false
	}
	if r.Balance.Valid {
		return r.Balance.Decimal.IsZero()
	}
	return !remaining.IsPositive()
}

func refundApproved(r *payment.RefundResult) bool {
	return r.ResponseCode == nil || *r.ResponseCode == payment.ResponseCodeApproved
}
