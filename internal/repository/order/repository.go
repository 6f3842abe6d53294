package order

import (
	"context"
	"time"

	"storefront-checkout/internal/domain"
)

// CreateTripleInput is everything needed to write a checkout session, order and invoice.
type CreateTripleInput struct {
	ProjectID        string
	Owner            domain.Identity
	OrderNumber      string
	PaymentReference string
	Quote            domain.Quote
	Shipping         domain.Address
	Billing          *domain.Address
	ContactEmail     string
	ExpiresAt        time.Time
}

// Triple is the checkout session, order and invoice written together.
type Triple struct {
	Checkout domain.CheckoutSession
	Order    domain.Order
	Invoice  domain.Invoice
}

// Repository stores checkout sessions, orders and invoices.
type Repository interface {
	// FindLatestOpen returns the newest PENDING or FAILED order whose payment is UNPAID or FAILED.
	FindLatestOpen(ctx context.Context, projectID string, owner domain.Identity) (*domain.Order, error)
	GetByNumber(ctx context.Context, projectID, orderNumber string) (*domain.Order, error)
	// CreateTriple writes all three rows atomically. ErrConflict means another open order exists.
	CreateTriple(ctx context.Context, in CreateTripleInput) (*Triple, error)
	GetCheckoutByOrder(ctx context.Context, orderID string) (*domain.CheckoutSession, error)
	CreateCheckoutForOrder(ctx context.Context, order domain.Order, in CreateTripleInput) (*domain.CheckoutSession, error)
	GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error)
	CreateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error)
	// CancelTriple is idempotent; it reports whether the order itself changed state.
	CancelTriple(ctx context.Context, orderID string, checkoutStatus domain.CheckoutStatus) (bool, error)
	DeleteOrphanCheckouts(ctx context.Context, projectID string, owner domain.Identity) (int64, error)
	FailRecentOpen(ctx context.Context, projectID string, owner domain.Identity, since time.Time) (int64, error)
	ListExpiredOpen(ctx context.Context, projectID string, cutoff time.Time, limit int) ([]domain.Order, error)
	MarkPaid(ctx context.Context, orderID string) error
}
