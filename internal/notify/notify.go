// Package notify delivers order confirmation notices once a payment is
// confirmed. Delivery is best-effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/models"
	"go.uber.org/zap"
)

type Sink interface {
	OrderConfirmed(ctx context.Context, order *models.Order, email string) error
}

// LogSink only records the notice in the application log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) OrderConfirmed(ctx context.Context, order *models.Order, email string) error {
	s.logger.Info("Order confirmation",
		zap.Int64("order_id", order.ID),
		zap.String("email", email),
		zap.String("total_amount", order.TotalAmount.StringFixed(0)))
	return nil
}

// receipt renders the plain-text payment receipt.
func receipt(order *models.Order, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Comprobante de pago - pedido #%d\n\n", order.ID)
	fmt.Fprintf(&b, "Fecha: %s\n", order.UpdatedAt.Format("2006-01-02 15:04"))
	if order.Transaction != nil {
		fmt.Fprintf(&b, "Orden de compra: %s\n", order.Transaction.BuyOrder)
		if order.Transaction.AuthorizationCode != nil {
			fmt.Fprintf(&b, "Código de autorización: %s\n", *order.Transaction.AuthorizationCode)
		}
		if order.Transaction.CardNumber != nil {
			fmt.Fprintf(&b, "Tarjeta: %s\n", *order.Transaction.CardNumber)
		}
	}
	b.WriteString("\n")

	for _, item := range order.Items {
		product := "producto eliminado"
		if item.ProductID != nil {
			product = fmt.Sprintf("producto #%d", *item.ProductID)
		}
		fmt.Fprintf(&b, "%3d x %-20s $%s\n", item.Quantity, product, item.Subtotal().StringFixed(0))
	}

	fmt.Fprintf(&b, "\nTotal: $%s\n", order.TotalAmount.StringFixed(0))
	fmt.Fprintf(&b, "\n© %d Ferremas\n", now.Year())

	return b.String()
}

// Options selects and configures the sink built by New.
type Options struct {
	Driver       string
	SMTP         SMTPOptions
	KafkaBrokers []string
	KafkaTopic   string
}

// New builds the sink named by opts.Driver: "smtp", "kafka" or "log".
func New(opts Options, logger *zap.Logger) (Sink, error) {
	switch opts.Driver {
	case "smtp":
		return NewSMTPSink(opts.SMTP), nil
	case "kafka":
		if len(opts.KafkaBrokers) == 0 {
			return nil, errors.New("kafka notify driver requires brokers")
		}
		return NewKafkaSink(opts.KafkaBrokers, opts.KafkaTopic), nil
	case "log", "":
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", opts.Driver)
	}
}
