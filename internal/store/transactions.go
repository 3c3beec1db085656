package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, order_id, buy_order, token_ws, session_id, amount, status,
	transaction_date, authorization_code, payment_type_code, response_code,
	installments_number, card_number, detail, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }, t *models.Transaction) error {
	var (
		orderID           sql.NullInt64
		token             sql.NullString
		transactionDate   sql.NullTime
		authorizationCode sql.NullString
		paymentTypeCode   sql.NullString
		responseCode      sql.NullInt64
		installments      sql.NullInt64
		cardNumber        sql.NullString
		detail            []byte
	)

	err := row.Scan(
		&t.ID,
		&orderID,
		&t.BuyOrder,
		&token,
		&t.SessionID,
		&t.Amount,
		&t.Status,
		&transactionDate,
		&authorizationCode,
		&paymentTypeCode,
		&responseCode,
		&installments,
		&cardNumber,
		&detail,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return err
	}

	t.OrderID = nullInt64Ptr(orderID)
	t.TokenWS = nullStringPtr(token)
	t.AuthorizationCode = nullStringPtr(authorizationCode)
	t.PaymentTypeCode = nullStringPtr(paymentTypeCode)
	t.CardNumber = nullStringPtr(cardNumber)
	t.ResponseCode = nullIntPtr(responseCode)
	t.InstallmentsNumber = nullIntPtr(installments)
	t.TransactionDate = nil
	if transactionDate.Valid {
		d := transactionDate.Time
		t.TransactionDate = &d
	}
	t.Detail = detail

	return nil
}

// CreateTransaction records a new payment attempt in the initiated state.
func CreateTransaction(ctx context.Context, db database.Querier, orderID int64, buyOrder, sessionID string, amount decimal.Decimal) (*models.Transaction, error) {
	t := &models.Transaction{}

	err := scanTransaction(db.QueryRowContext(ctx,
		`INSERT INTO payment_transactions (order_id, buy_order, session_id, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING `+transactionColumns,
		orderID, buyOrder, sessionID, amount, models.TransactionStatusInitiated), t)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	return t, nil
}

// SetTransactionToken stores the gateway session token and moves the
// transaction to pending, awaiting the shopper's return.
func SetTransactionToken(ctx context.Context, db database.Querier, id int64, token string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET token_ws = $1, status = $2, updated_at = NOW()
		 WHERE id = $3`,
		token, models.TransactionStatusPending, id)
	if err != nil {
		return fmt.Errorf("set transaction token: %w", err)
	}
	return expectOneRow(result, database.ErrTransactionNotFound)
}

func GetTransactionByToken(ctx context.Context, db database.Querier, token string, forUpdate bool) (*models.Transaction, error) {
	return getTransaction(ctx, db, "token_ws = $1", token, forUpdate)
}

func GetTransactionByBuyOrder(ctx context.Context, db database.Querier, buyOrder string, forUpdate bool) (*models.Transaction, error) {
	return getTransaction(ctx, db, "buy_order = $1", buyOrder, forUpdate)
}

// GetTransactionByOrder returns the most recent payment attempt of an order.
func GetTransactionByOrder(ctx context.Context, db database.Querier, orderID int64) (*models.Transaction, error) {
	return getTransaction(ctx, db, "order_id = $1 ORDER BY id DESC LIMIT 1", orderID, false)
}

func getTransaction(ctx context.Context, db database.Querier, where string, arg any, forUpdate bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t := &models.Transaction{}
	if err := scanTransaction(db.QueryRowContext(ctx, query, arg), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return t, nil
}

// TransactionResult carries the fields written once the gateway has
// answered a commit.
type TransactionResult struct {
	Status             string
	ResponseCode       int
	Amount             decimal.Decimal
	TransactionDate    time.Time
	AuthorizationCode  string
	PaymentTypeCode    string
	InstallmentsNumber int
	CardNumber         string
	Detail             []byte
}

func ApplyTransactionResult(ctx context.Context, db database.Querier, id int64, r TransactionResult) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payment_transactions
		 SET status = $1, response_code = $2, amount = $3, transaction_date = $4,
		     authorization_code = NULLIF($5, ''), payment_type_code = NULLIF($6, ''),
		     installments_number = $7, card_number = NULLIF($8, ''), detail = $9,
		     updated_at = NOW()
		 WHERE id = $10`,
		r.Status, r.ResponseCode, r.Amount, r.TransactionDate,
		r.AuthorizationCode, r.PaymentTypeCode, r.InstallmentsNumber, r.CardNumber,
		nullJSON(r.Detail), id)
	if err != nil {
		return fmt.Errorf("apply transaction result: %w", err)
	}
	return expectOneRow(result, database.ErrTransactionNotFound)
}

func SetTransactionStatus(ctx context.Context, db database.Querier, id int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payment_transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("set transaction status: %w", err)
	}
	return expectOneRow(result, database.ErrTransactionNotFound)
}

func SetTransactionDetail(ctx context.Context, db database.Querier, id int64, detail []byte) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payment_transactions SET detail = $1, updated_at = NOW() WHERE id = $2`,
		nullJSON(detail), id)
	if err != nil {
		return fmt.Errorf("set transaction detail: %w", err)
	}
	return expectOneRow(result, database.ErrTransactionNotFound)
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// nullJSON lets lib/pq send the document as text so postgres casts it to jsonb.
func nullJSON(doc []byte) sql.NullString {
	if len(doc) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(doc), Valid: true}
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
