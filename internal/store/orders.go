package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// OrderLine is one priced line of an order about to be created.
type OrderLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// PriceCart freezes each cart line at the product's effective price and
// returns the lines with their exact decimal total.
func PriceCart(items []models.CartItem) ([]OrderLine, decimal.Decimal) {
	lines := make([]OrderLine, 0, len(items))
	total := decimal.Zero

	for _, item := range items {
		unit := item.Product.EffectivePrice()
		lines = append(lines, OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unit,
		})
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return lines, total
}

// CreateOrder inserts a pending order and its lines. Callers run it inside
// the transaction that also records the payment attempt.
func CreateOrder(ctx context.Context, tx *sql.Tx, userID int64, lines []OrderLine, total decimal.Decimal) (*models.Order, error) {
	order := &models.Order{UserID: &userID}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 RETURNING id, status, total_amount, created_at, updated_at`,
		userID, total, models.OrderStatusPending).Scan(
		&order.ID,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	for _, line := range lines {
		productID := line.ProductID
		item := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   &productID,
			Quantity:    line.Quantity,
			PriceAtTime: line.UnitPrice,
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_time, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 RETURNING id, created_at`,
			order.ID, line.ProductID, line.Quantity, line.UnitPrice).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	return order, nil
}

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	var userID sql.NullInt64
	if err := row.Scan(
		&order.ID,
		&userID,
		&order.Status,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return err
	}
	order.UserID = nil
	if userID.Valid {
		id := userID.Int64
		order.UserID = &id
	}
	return nil
}

const orderColumns = `id, user_id, status, total_amount, created_at, updated_at`

// GetOrder loads an order with its lines and latest payment transaction.
func GetOrder(ctx context.Context, db database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := listOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	txn, err := GetTransactionByOrder(ctx, db, id)
	switch {
	case err == nil:
		order.Transaction = txn
	case errors.Is(err, database.ErrTransactionNotFound):
	default:
		return nil, err
	}

	return order, nil
}

// GetOrderForUser is GetOrder restricted to orders owned by userID; other
// users' orders are reported as not found.
func GetOrderForUser(ctx context.Context, db database.Querier, userID, id int64) (*models.Order, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	order, err := GetOrder(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func listOrderItems(ctx context.Context, db database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price_at_time, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var productID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&productID,
			&item.Quantity,
			&item.PriceAtTime,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if productID.Valid {
			id := productID.Int64
			item.ProductID = &id
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, db database.Querier, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func SetOrderStatus(ctx context.Context, db database.Querier, orderID int64, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}
