package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

var ErrOptimisticLockFailed = errors.New("product was modified concurrently")

type ProductInput struct {
	Name           string
	Description    string
	Image          string
	Price          decimal.Decimal
	IsFeatured     bool
	IsPromotion    bool
	PromotionPrice decimal.NullDecimal
	Stock          int
	CategoryID     *int64
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("product name is required")
	}
	if in.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if in.PromotionPrice.Valid && in.PromotionPrice.Decimal.IsNegative() {
		return errors.New("promotion price must not be negative")
	}
	if in.Stock < 0 {
		return errors.New("stock must not be negative")
	}
	return nil
}

// ValidationError marks input rejected before reaching the database.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func productColumns(alias string) string {
	cols := []string{"id", "name", "description", "image", "price", "is_featured", "is_promotion",
		"promotion_price", "stock", "category_id", "created_at", "updated_at", "version"}
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// productScan collects the scan destinations for productColumns and copies
// nullable columns back into the model once the row has been read.
type productScan struct {
	product    *models.Product
	categoryID sql.NullInt64
}

func newProductScan(p *models.Product) *productScan {
	return &productScan{product: p}
}

func (s *productScan) dest() []any {
	p := s.product
	return []any{
		&p.ID, &p.Name, &p.Description, &p.Image, &p.Price, &p.IsFeatured, &p.IsPromotion,
		&p.PromotionPrice, &p.Stock, &s.categoryID, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	}
}

func (s *productScan) finish() {
	s.product.CategoryID = nil
	if s.categoryID.Valid {
		id := s.categoryID.Int64
		s.product.CategoryID = &id
	}
}

func CreateProduct(ctx context.Context, db database.Querier, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	product := &models.Product{}
	scan := newProductScan(product)

	query := `
		INSERT INTO products (name, description, image, price, is_featured, is_promotion,
		                      promotion_price, stock, category_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
		RETURNING ` + productColumns("")

	err := db.QueryRowContext(ctx, query,
		in.Name, in.Description, in.Image, in.Price, in.IsFeatured, in.IsPromotion,
		in.PromotionPrice, in.Stock, nullableID(in.CategoryID),
	).Scan(scan.dest()...)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	scan.finish()

	return product, nil
}

func GetProduct(ctx context.Context, db database.Querier, id int64) (*models.Product, error) {
	product := &models.Product{}
	scan := newProductScan(product)

	query := `SELECT ` + productColumns("") + ` FROM products WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(scan.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	scan.finish()

	return product, nil
}

// UpdateProduct replaces every editable column. When expectedVersion is
// non-zero the update only applies if the stored version still matches.
func UpdateProduct(ctx context.Context, db database.Querier, id int64, in ProductInput, expectedVersion int) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	product := &models.Product{}
	scan := newProductScan(product)

	query := `
		UPDATE products
		SET name = $1, description = $2, image = $3, price = $4, is_featured = $5,
		    is_promotion = $6, promotion_price = $7, stock = $8, category_id = $9,
		    version = version + 1, updated_at = NOW()
		WHERE id = $10 AND ($11 = 0 OR version = $11)
		RETURNING ` + productColumns("")

	err := db.QueryRowContext(ctx, query,
		in.Name, in.Description, in.Image, in.Price, in.IsFeatured, in.IsPromotion,
		in.PromotionPrice, in.Stock, nullableID(in.CategoryID), id, expectedVersion,
	).Scan(scan.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := GetProduct(ctx, db, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrOptimisticLockFailed
		}
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	scan.finish()

	return product, nil
}

// UpdateStockOptimistic sets the stock level if nobody changed the product
// since version was read.
func UpdateStockOptimistic(ctx context.Context, db database.Querier, productID int64, newStock int, version int) error {
	if newStock < 0 {
		return &ValidationError{Err: errors.New("stock must not be negative")}
	}

	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET stock = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND version = $3`,
		newStock, productID, version)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := GetProduct(ctx, db, productID); err != nil {
			return err
		}
		return ErrOptimisticLockFailed
	}

	return nil
}

// DeleteProduct removes a product. Order lines keep their frozen price with a
// null product reference; cart rows for it are dropped.
func DeleteProduct(ctx context.Context, db database.Querier, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

type ProductFilter struct {
	CategoryID   *int64
	FeaturedOnly bool
	PromoOnly    bool
}

func (f ProductFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.FeaturedOnly {
		conds = append(conds, "is_featured")
	}
	if f.PromoOnly {
		conds = append(conds, "is_promotion")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func ListProducts(ctx context.Context, db database.Querier, filter ProductFilter, page, pageSize int) (*OffsetPage[models.Product], error) {
	where, args := filter.where()

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM products%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, productColumns(""), where, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		scan := newProductScan(&product)
		if err := rows.Scan(scan.dest()...); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		scan.finish()
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
