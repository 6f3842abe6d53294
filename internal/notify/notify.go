// Package notify delivers order-placed notices with settlement instructions.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

const orderPlacedTemplate = "order_placed.tmpl"

//go:embed "templates"
var templatesFS embed.FS

// Sender delivers one notice. Callers bound the context; delivery failures never fail checkout.
type Sender interface {
	Send(ctx context.Context, notice domain.OrderNotice) error
}

// FormatAmount renders minor units with grouping, e.g. "IDR 21,000.00".
func FormatAmount(currency string, cents int64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s %.2f", currency, float64(cents)/100)
}

type noticeView struct {
	Name             string
	OrderNumber      string
	PaymentReference string
	Amount           string
	BankName         string
	AccountNumber    string
	AccountHolder    string
	DueAt            string
}

func viewOf(n domain.OrderNotice) noticeView {
	name := n.Name
	if name == "" {
		name = "there"
	}
	in := n.Instructions
	return noticeView{
		Name:             name,
		OrderNumber:      in.OrderNumber,
		PaymentReference: in.PaymentReference,
		Amount:           FormatAmount(in.Currency, in.AmountCents),
		BankName:         in.Destination.BankName,
		AccountNumber:    in.Destination.AccountNumber,
		AccountHolder:    in.Destination.AccountHolder,
		DueAt:            in.DueAt.UTC().Format(time.RFC1123),
	}
}

type rendered struct {
	Subject string
	Plain   string
	HTML    string
}

func render(n domain.OrderNotice) (rendered, error) {
	view := viewOf(n)

	plain, err := texttemplate.ParseFS(templatesFS, "templates/"+orderPlacedTemplate)
	if err != nil {
		return rendered{}, fmt.Errorf("parse template: %w", err)
	}
	var subject, body bytes.Buffer
	if err := plain.ExecuteTemplate(&subject, "subject", view); err != nil {
		return rendered{}, err
	}
	if err := plain.ExecuteTemplate(&body, "plainBody", view); err != nil {
		return rendered{}, err
	}

	html, err := template.ParseFS(templatesFS, "templates/"+orderPlacedTemplate)
	if err != nil {
		return rendered{}, fmt.Errorf("parse template: %w", err)
	}
	var htmlBody bytes.Buffer
	if err := html.ExecuteTemplate(&htmlBody, "htmlBody", view); err != nil {
		return rendered{}, err
	}

	return rendered{Subject: subject.String(), Plain: body.String(), HTML: htmlBody.String()}, nil
}

// LogSender writes notices to the log. It is the default when no transport is configured.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logging.OrNop(logger)}
}

func (s *LogSender) Send(_ context.Context, n domain.OrderNotice) error {
	in := n.Instructions
	s.logger.Infow("order placed",
		"order_number", in.OrderNumber,
		"payment_reference", in.PaymentReference,
		"amount", FormatAmount(in.Currency, in.AmountCents),
		"owner", n.Owner.Key(),
		"email", n.Email,
	)
	return nil
}
