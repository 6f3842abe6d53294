package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

const (
	fromName   = "Storefront"
	maxRetries = 3
)

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends notices over SMTP.
type Mailer struct {
	dialer  dialer
	from    string
	backoff time.Duration
	logger  *zap.SugaredLogger
}

func NewMailer(host string, port int, username, password, from string, logger *zap.SugaredLogger) *Mailer {
	d := mail.NewDialer(host, port, username, password)
	d.Timeout = 5 * time.Second
	return &Mailer{dialer: d, from: from, backoff: time.Second, logger: logging.OrNop(logger)}
}

func (m *Mailer) Send(ctx context.Context, n domain.OrderNotice) error {
	if n.Email == "" {
		return errors.New("notice has no recipient")
	}
	content, err := render(n)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetAddressHeader("From", m.from, fromName)
	msg.SetAddressHeader("To", n.Email, n.Name)
	msg.SetHeader("Subject", content.Subject)
	msg.SetBody("text/plain", content.Plain)
	msg.AddAlternative("text/html", content.HTML)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if lastErr = m.dialer.DialAndSend(msg); lastErr == nil {
			return nil
		}
		m.logger.Warnw("mailer: send failed", "attempt", attempt, "to", n.Email, "err", lastErr)
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("send email after %d attempts: %w", maxRetries, lastErr)
}
