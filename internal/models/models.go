package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Image          string              `json:"image,omitempty"`
	Price          decimal.Decimal     `json:"price"`
	IsFeatured     bool                `json:"is_featured"`
	IsPromotion    bool                `json:"is_promotion"`
	PromotionPrice decimal.NullDecimal `json:"promotion_price"`
	Stock          int                 `json:"stock"`
	CategoryID     *int64              `json:"category_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Version        int                 `json:"version"`
}

// EffectivePrice is the unit price actually charged: the promotion price when
// the promotion flag is set and a promotion price exists, the base price otherwise.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.IsPromotion && p.PromotionPrice.Valid {
		return p.PromotionPrice.Decimal
	}
	return p.Price
}

type CartItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Product   *Product  `json:"product,omitempty"`
}

// Subtotal is quantity times the product's current effective price.
func (c *CartItem) Subtotal() decimal.Decimal {
	if c.Product == nil {
		return decimal.Zero
	}
	return c.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type Order struct {
	ID          int64           `json:"id"`
	UserID      *int64          `json:"user_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `json:"items,omitempty"`
	Transaction *Transaction    `json:"transaction,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   *int64          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Transaction is the local record of one payment attempt at the gateway.
type Transaction struct {
	ID                 int64           `json:"id"`
	OrderID            *int64          `json:"order_id"`
	BuyOrder           string          `json:"buy_order"`
	TokenWS            *string         `json:"token_ws,omitempty"`
	SessionID          string          `json:"session_id"`
	Amount             decimal.Decimal `json:"amount"`
	Status             string          `json:"status"`
	TransactionDate    *time.Time      `json:"transaction_date,omitempty"`
	AuthorizationCode  *string         `json:"authorization_code,omitempty"`
	PaymentTypeCode    *string         `json:"payment_type_code,omitempty"`
	ResponseCode       *int            `json:"response_code,omitempty"`
	InstallmentsNumber *int            `json:"installments_number,omitempty"`
	CardNumber         *string         `json:"card_number,omitempty"`
	Detail             json.RawMessage `json:"detail,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

const (
	TransactionStatusInitiated = "initiated"
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusCancelled = "cancelled"
)

// OrderStatusFor mirrors a transaction status onto the owning order.
func OrderStatusFor(transactionStatus string) string {
	switch transactionStatus {
	case TransactionStatusCompleted:
		return OrderStatusCompleted
	case TransactionStatusFailed:
		return OrderStatusFailed
	case TransactionStatusCancelled:
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}
