package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

const cartItemColumns = `c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at`

func cartItemDest(item *models.CartItem) []any {
	return []any{&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt}
}

// AddToCart adds quantity units of a product to the user's cart, accumulating
// onto an existing line. The resulting line quantity may not exceed the
// product's stock at the time of the call.
func AddToCart(ctx context.Context, db *sql.DB, userID, productID int64, quantity int) (*models.CartItem, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var item *models.CartItem

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product := &models.Product{}
		scan := newProductScan(product)

		err := tx.QueryRowContext(ctx,
			`SELECT `+productColumns("")+` FROM products WHERE id = $1 FOR UPDATE`,
			productID).Scan(scan.dest()...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product %d: %w", productID, err)
		}
		scan.finish()

		var existing int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`,
			userID, productID).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get cart line: %w", err)
		}

		if existing+quantity > product.Stock {
			return database.ErrInsufficientStock
		}

		item = &models.CartItem{Product: product}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items AS c (user_id, product_id, quantity, created_at, updated_at)
			 VALUES ($1, $2, $3, NOW(), NOW())
			 ON CONFLICT (user_id, product_id)
			 DO UPDATE SET quantity = c.quantity + EXCLUDED.quantity, updated_at = NOW()
			 RETURNING `+cartItemColumns,
			userID, productID, quantity).Scan(cartItemDest(item)...)
		if err != nil {
			return fmt.Errorf("upsert cart line: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateCartItem sets the quantity of one of the user's cart lines. A
// quantity of zero or less removes the line and returns a nil item.
func UpdateCartItem(ctx context.Context, db *sql.DB, userID, itemID int64, quantity int) (*models.CartItem, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var item *models.CartItem

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		item = &models.CartItem{Product: &models.Product{}}
		scan := newProductScan(item.Product)

		dest := append(cartItemDest(item), scan.dest()...)
		err := tx.QueryRowContext(ctx,
			`SELECT `+cartItemColumns+`, `+productColumns("p")+`
			 FROM cart_items c
			 JOIN products p ON p.id = c.product_id
			 WHERE c.id = $1 AND c.user_id = $2
			 FOR UPDATE OF c`,
			itemID, userID).Scan(dest...)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrCartItemNotFound
			}
			return fmt.Errorf("lock cart line: %w", err)
		}
		scan.finish()

		if quantity <= 0 {
			item = nil
			_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
			if err != nil {
				return fmt.Errorf("delete cart line: %w", err)
			}
			return nil
		}

		if quantity > item.Product.Stock {
			return database.ErrInsufficientStock
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE cart_items SET quantity = $1, updated_at = NOW()
			 WHERE id = $2
			 RETURNING updated_at`,
			quantity, itemID).Scan(&item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update cart line: %w", err)
		}
		item.Quantity = quantity

		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func RemoveCartItem(ctx context.Context, db database.Querier, userID, itemID int64) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

// ClearCart deletes every cart line of the user and reports how many were removed.
func ClearCart(ctx context.Context, db database.Querier, userID int64) (int64, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return removed, nil
}

func ListCart(ctx context.Context, db database.Querier, userID int64) ([]models.CartItem, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return listCart(ctx, db, userID, false)
}

// LockCart returns the user's cart lines with their products and holds row
// locks on the cart lines until tx ends, so concurrent checkouts of the same
// cart serialize.
func LockCart(ctx context.Context, tx *sql.Tx, userID int64) ([]models.CartItem, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return listCart(ctx, tx, userID, true)
}

func listCart(ctx context.Context, db database.Querier, userID int64, lock bool) ([]models.CartItem, error) {
	query := `
		SELECT ` + cartItemColumns + `, ` + productColumns("p") + `
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`
	if lock {
		query += ` FOR UPDATE OF c`
	}

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		item := models.CartItem{Product: &models.Product{}}
		scan := newProductScan(item.Product)
		if err := rows.Scan(append(cartItemDest(&item), scan.dest()...)...); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		scan.finish()
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}
