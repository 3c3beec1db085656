package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/dbtest"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

func placeOrder(t *testing.T, ctx context.Context, db *sql.DB, userID int64) *models.Order {
	t.Helper()

	var order *models.Order
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		items, err := LockCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		lines, total := PriceCart(items)
		order, err = CreateOrder(ctx, tx, userID, lines, total)
		return err
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}
	return order
}

func TestPriceCart(t *testing.T) {
	items := []models.CartItem{
		{ProductID: 1, Quantity: 2, Product: &models.Product{Price: decimal.RequireFromString("1990.50")}},
		{ProductID: 2, Quantity: 1, Product: &models.Product{
			Price:          decimal.NewFromInt(5000),
			IsPromotion:    true,
			PromotionPrice: decimal.NewNullDecimal(decimal.NewFromInt(4000)),
		}},
	}

	lines, total := PriceCart(items)

	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !lines[1].UnitPrice.Equal(decimal.NewFromInt(4000)) {
		t.Errorf("Expected promotion price to be frozen, got %s", lines[1].UnitPrice)
	}
	if !total.Equal(decimal.RequireFromString("7981")) {
		t.Errorf("Expected total 7981, got %s", total)
	}
}

func TestPriceAtTimeIsFrozen(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, db, "buyer", "buyer@example.com", "hash")
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	product, err := CreateProduct(ctx, db, ProductInput{Name: "Taladro", Price: decimal.NewFromInt(100), Stock: 10})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if _, err := AddToCart(ctx, db, user.ID, product.ID, 3); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}

	order := placeOrder(t, ctx, db, user.ID)
	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected pending order, got %s", order.Status)
	}

	_, err = UpdateProduct(ctx, db, product.ID, ProductInput{Name: "Taladro", Price: decimal.NewFromInt(200), Stock: 10}, 0)
	if err != nil {
		t.Fatalf("Reprice product: %v", err)
	}

	loaded, err := GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if len(loaded.Items) != 1 {
		t.Fatalf("Expected 1 order line, got %d", len(loaded.Items))
	}
	if !loaded.Items[0].PriceAtTime.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected price_at_time 100, got %s", loaded.Items[0].PriceAtTime)
	}
	if !loaded.TotalAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected total 300, got %s", loaded.TotalAmount)
	}
	if loaded.Transaction != nil {
		t.Errorf("Expected no transaction yet, got %+v", loaded.Transaction)
	}

	if err := DeleteProduct(ctx, db, product.ID); err != nil {
		t.Fatalf("Delete product: %v", err)
	}

	history, err := GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order after delete: %v", err)
	}
	if len(history.Items) != 1 {
		t.Fatalf("Expected order line to be kept, got %d lines", len(history.Items))
	}
	if history.Items[0].ProductID != nil {
		t.Errorf("Expected null product reference, got %d", *history.Items[0].ProductID)
	}
	if !history.Items[0].PriceAtTime.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected frozen price to survive delete, got %s", history.Items[0].PriceAtTime)
	}

	cart, err := ListCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("List cart: %v", err)
	}
	if len(cart) != 0 {
		t.Errorf("Expected cart rows of deleted product to be dropped, got %d", len(cart))
	}
}

func TestGetOrderForUser(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, ctx, db, 5)

	if _, err := AddToCart(ctx, db, user.ID, product.ID, 1); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}
	order := placeOrder(t, ctx, db, user.ID)

	other, err := CreateUser(ctx, db, "neighbour", "neighbour@example.com", "hash")
	if err != nil {
		t.Fatalf("Create other user: %v", err)
	}

	if _, err := GetOrderForUser(ctx, db, user.ID, order.ID); err != nil {
		t.Errorf("Owner should see order: %v", err)
	}
	if _, err := GetOrderForUser(ctx, db, other.ID, order.ID); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound for other user, got %v", err)
	}
	if _, err := GetOrder(ctx, db, 9999); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, ctx, db, 100)

	for i := 0; i < 15; i++ {
		if _, err := AddToCart(ctx, db, user.ID, product.ID, 1); err != nil {
			t.Fatalf("Add to cart %d: %v", i, err)
		}
		placeOrder(t, ctx, db, user.ID)
		if _, err := ClearCart(ctx, db, user.ID); err != nil {
			t.Fatalf("Clear cart %d: %v", i, err)
		}
	}

	page1, err := ListOrdersCursor(ctx, db, user.ID, "", 10)
	if err != nil {
		t.Fatalf("First page: %v", err)
	}
	if len(page1.Items) != 10 {
		t.Errorf("Expected 10 items, got %d", len(page1.Items))
	}
	if !page1.HasMore || page1.NextCursor == "" {
		t.Fatal("Expected a next cursor")
	}

	page2, err := ListOrdersCursor(ctx, db, user.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("Second page: %v", err)
	}
	if len(page2.Items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(page2.Items))
	}
	if page2.HasMore {
		t.Error("Expected no more pages")
	}

	seen := make(map[int64]bool)
	for _, o := range append(page1.Items, page2.Items...) {
		if seen[o.ID] {
			t.Errorf("Order %d returned twice", o.ID)
		}
		seen[o.ID] = true
	}

	if _, err := ListOrdersCursor(ctx, db, user.ID, "not-a-cursor", 10); err == nil {
		t.Error("Expected malformed cursor to fail")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	ctx := context.Background()
	user, product := seedUserAndProduct(t, ctx, db, 5)

	if _, err := AddToCart(ctx, db, user.ID, product.ID, 2); err != nil {
		t.Fatalf("Add to cart: %v", err)
	}
	order := placeOrder(t, ctx, db, user.ID)

	txn, err := CreateTransaction(ctx, db, order.ID, "OC-1", "42", order.TotalAmount)
	if err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	if txn.Status != models.TransactionStatusInitiated || txn.TokenWS != nil {
		t.Errorf("Unexpected new transaction: %+v", txn)
	}

	if err := SetTransactionToken(ctx, db, txn.ID, "tok-1"); err != nil {
		t.Fatalf("Set token: %v", err)
	}

	byToken, err := GetTransactionByToken(ctx, db, "tok-1", false)
	if err != nil {
		t.Fatalf("Get by token: %v", err)
	}
	if byToken.Status != models.TransactionStatusPending {
		t.Errorf("Expected pending, got %s", byToken.Status)
	}

	paidAt := time.Date(2024, 5, 22, 16, 41, 21, 0, time.UTC)
	err = ApplyTransactionResult(ctx, db, txn.ID, TransactionResult{
		Status:            models.TransactionStatusCompleted,
		ResponseCode:      0,
		Amount:            order.TotalAmount,
		TransactionDate:   paidAt,
		AuthorizationCode: "1213",
		PaymentTypeCode:   "VN",
		CardNumber:        "****6623",
		Detail:            []byte(`{"schema":"x"}`),
	})
	if err != nil {
		t.Fatalf("Apply result: %v", err)
	}

	byOrder, err := GetTransactionByBuyOrder(ctx, db, "OC-1", false)
	if err != nil {
		t.Fatalf("Get by buy order: %v", err)
	}
	if !byOrder.IsTerminal() {
		t.Errorf("Expected terminal transaction, got %s", byOrder.Status)
	}
	if byOrder.CardNumber == nil || *byOrder.CardNumber != "****6623" {
		t.Errorf("Expected masked card, got %v", byOrder.CardNumber)
	}
	if byOrder.TransactionDate == nil || !byOrder.TransactionDate.Equal(paidAt) {
		t.Errorf("Expected transaction date %v, got %v", paidAt, byOrder.TransactionDate)
	}

	if _, err := GetTransactionByToken(ctx, db, "missing", false); !errors.Is(err, database.ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
	if err := SetTransactionStatus(ctx, db, 9999, models.TransactionStatusFailed); !errors.Is(err, database.ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
}
