package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// OrderConfirmedEvent is published for downstream mailers and fulfilment.
type OrderConfirmedEvent struct {
	EventID     string               `json:"event_id"`
	OrderID     int64                `json:"order_id"`
	Email       string               `json:"email"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	BuyOrder    string               `json:"buy_order,omitempty"`
	Items       []OrderConfirmedLine `json:"items"`
	Timestamp   time.Time            `json:"timestamp"`
}

type OrderConfirmedLine struct {
	ProductID   *int64          `json:"product_id"`
	Quantity    int             `json:"quantity"`
	PriceAtTime decimal.Decimal `json:"price_at_time"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}
}

func (s *KafkaSink) OrderConfirmed(ctx context.Context, order *models.Order, email string) error {
	event := OrderConfirmedEvent{
		EventID:     uuid.NewString(),
		OrderID:     order.ID,
		Email:       email,
		TotalAmount: order.TotalAmount,
		Items:       make([]OrderConfirmedLine, 0, len(order.Items)),
		Timestamp:   time.Now().UTC(),
	}
	if order.Transaction != nil {
		event.BuyOrder = order.Transaction.BuyOrder
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderConfirmedLine{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime,
		})
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order confirmed event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order confirmed event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
