package notify

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/models"
)

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSink mails a plain-text receipt to the buyer.
type SMTPSink struct {
	opts     SMTPOptions
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSMTPSink(opts SMTPOptions) *SMTPSink {
	return &SMTPSink{opts: opts, sendMail: smtp.SendMail, now: time.Now}
}

func (s *SMTPSink) OrderConfirmed(ctx context.Context, order *models.Order, email string) error {
	if email == "" {
		return fmt.Errorf("send receipt for order %d: no recipient", order.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	to, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("send receipt for order %d: invalid recipient: %w", order.ID, err)
	}
	from, err := mail.ParseAddress(s.sender())
	if err != nil {
		return fmt.Errorf("send receipt for order %d: invalid sender: %w", order.ID, err)
	}

	var auth smtp.Auth
	if s.opts.Username != "" {
		auth = smtp.PlainAuth("", s.opts.Username, s.opts.Password, s.opts.Host)
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	if err := s.sendMail(addr, auth, from.Address, []string{to.Address}, s.message(order, from, to)); err != nil {
		return fmt.Errorf("send receipt for order %d: %w", order.ID, err)
	}
	return nil
}

// sender falls back to the SMTP login when no explicit From is configured.
func (s *SMTPSink) sender() string {
	if s.opts.From != "" {
		return s.opts.From
	}
	return s.opts.Username
}

func (s *SMTPSink) message(order *models.Order, from, to *mail.Address) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: Comprobante de Pago - Ferremas\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(receipt(order, s.now()), "\n", "\r\n"))
	return []byte(b.String())
}
