package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"storefront-checkout/internal/domain"
	orderrepo "storefront-checkout/internal/repository/order"
)

// memoryOrders mirrors the Postgres repository, including the one-open-order-per-owner index.
type memoryOrders struct {
	mu        sync.Mutex
	now       func() time.Time
	orders    []*domain.Order
	checkouts []*domain.CheckoutSession
	invoices  map[string]*domain.Invoice

	createCalls  int
	findCalls    int
	createErr    error
	beforeCreate func()
}

func newMemoryOrders(now func() time.Time) *memoryOrders {
	return &memoryOrders{now: now, invoices: map[string]*domain.Invoice{}}
}

func isOpen(o *domain.Order) bool {
	return (o.Status == domain.OrderPending || o.Status == domain.OrderFailed) &&
		(o.PaymentStatus == domain.PaymentUnpaid || o.PaymentStatus == domain.PaymentFailed)
}

func (m *memoryOrders) FindLatestOpen(_ context.Context, projectID string, owner domain.Identity) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	var found []*domain.Order
	for _, o := range m.orders {
		if o.ProjectID == projectID && o.Owner == owner && isOpen(o) {
			found = append(found, o)
		}
	}
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.After(found[j].CreatedAt) })
	cp := *found[0]
	return &cp, nil
}

func (m *memoryOrders) GetByNumber(_ context.Context, projectID, number string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProjectID == projectID && o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryOrders) CreateTriple(_ context.Context, in orderrepo.CreateTripleInput) (*orderrepo.Triple, error) {
	if m.beforeCreate != nil {
		hook := m.beforeCreate
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, o := range m.orders {
		if o.ProjectID == in.ProjectID && o.Owner == in.Owner && o.Status == domain.OrderPending &&
			(o.PaymentStatus == domain.PaymentUnpaid || o.PaymentStatus == domain.PaymentFailed) {
			return nil, domain.ErrConflict
		}
	}
	return m.insertLocked(in, m.now()), nil
}

func (m *memoryOrders) insertLocked(in orderrepo.CreateTripleInput, at time.Time) *orderrepo.Triple {
	checkoutID := uuid.NewString()
	order := &domain.Order{
		ID:                uuid.NewString(),
		ProjectID:         in.ProjectID,
		Owner:             in.Owner,
		CheckoutSessionID: &checkoutID,
		OrderNumber:       in.OrderNumber,
		Status:            domain.OrderPending,
		PaymentStatus:     domain.PaymentUnpaid,
		Currency:          in.Quote.Currency,
		SubtotalCents:     in.Quote.SubtotalCents,
		ShippingFeeCents:  in.Quote.ShippingFeeCents,
		DiscountCents:     in.Quote.DiscountCents,
		TotalCents:        in.Quote.TotalCents,
		WeightGrams:       in.Quote.WeightGrams,
		PaymentReference:  in.PaymentReference,
		ContactEmail:      in.ContactEmail,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
	checkout := &domain.CheckoutSession{
		ID:            checkoutID,
		ProjectID:     in.ProjectID,
		Owner:         in.Owner,
		OrderID:       &order.ID,
		Status:        domain.CheckoutCompleted,
		PaymentStatus: domain.PaymentUnpaid,
		Quote:         in.Quote,
		Shipping:      in.Shipping,
		Billing:       in.Billing,
		ExpiresAt:     in.ExpiresAt,
		CreatedAt:     at,
	}
	invoice := &domain.Invoice{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		Status:           domain.InvoiceSent,
		Currency:         order.Currency,
		TotalCents:       order.TotalCents,
		PaymentReference: order.PaymentReference,
		CreatedAt:        at,
	}
	m.orders = append(m.orders, order)
	m.checkouts = append(m.checkouts, checkout)
	m.invoices[order.ID] = invoice
	return &orderrepo.Triple{Checkout: *checkout, Order: *order, Invoice: *invoice}
}

// seed stores a complete triple created at the given time.
func (m *memoryOrders) seed(projectID string, owner domain.Identity, number string, at time.Time) *orderrepo.Triple {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(orderrepo.CreateTripleInput{
		ProjectID:        projectID,
		Owner:            owner,
		OrderNumber:      number,
		PaymentReference: "PAY-" + number,
		Quote:            domain.Quote{Currency: "IDR", SubtotalCents: 700, TotalCents: 700},
		ExpiresAt:        at.Add(DefaultOrderTTL),
	}, at)
}

func (m *memoryOrders) GetCheckoutByOrder(_ context.Context, orderID string) (*domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.checkouts {
		if c.OrderID != nil && *c.OrderID == orderID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryOrders) CreateCheckoutForOrder(_ context.Context, order domain.Order, in orderrepo.CreateTripleInput) (*domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &domain.CheckoutSession{
		ID:            uuid.NewString(),
		ProjectID:     order.ProjectID,
		Owner:         order.Owner,
		OrderID:       &order.ID,
		Status:        domain.CheckoutCompleted,
		PaymentStatus: domain.PaymentUnpaid,
		Quote:         in.Quote,
		Shipping:      in.Shipping,
		ExpiresAt:     in.ExpiresAt,
		CreatedAt:     m.now(),
	}
	m.checkouts = append(m.checkouts, c)
	cp := *c
	return &cp, nil
}

func (m *memoryOrders) GetInvoiceByOrder(_ context.Context, orderID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memoryOrders) CreateInvoice(_ context.Context, order domain.Order) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[order.ID]; ok {
		return nil, domain.ErrAlreadyExists
	}
	inv := &domain.Invoice{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		Status:           domain.InvoiceSent,
		Currency:         order.Currency,
		TotalCents:       order.TotalCents,
		PaymentReference: order.PaymentReference,
		CreatedAt:        m.now(),
	}
	m.invoices[order.ID] = inv
	cp := *inv
	return &cp, nil
}

func (m *memoryOrders) CancelTriple(_ context.Context, orderID string, status domain.CheckoutStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, o := range m.orders {
		if o.ID == orderID && (o.Status == domain.OrderPending || o.Status == domain.OrderFailed) {
			o.Status = domain.OrderCancelled
			changed = true
		}
	}
	for _, c := range m.checkouts {
		if c.OrderID != nil && *c.OrderID == orderID &&
			(c.Status == domain.CheckoutPending || c.Status == domain.CheckoutCompleted) {
			c.Status = status
		}
	}
	if inv, ok := m.invoices[orderID]; ok && inv.Status == domain.InvoiceSent {
		inv.Status = domain.InvoiceCancelled
	}
	return changed, nil
}

func (m *memoryOrders) DeleteOrphanCheckouts(_ context.Context, projectID string, owner domain.Identity) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.CheckoutSession
	var n int64
	for _, c := range m.checkouts {
		if c.ProjectID == projectID && c.Owner == owner && c.OrderID == nil {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.checkouts = kept
	return n, nil
}

func (m *memoryOrders) FailRecentOpen(_ context.Context, projectID string, owner domain.Identity, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if o.ProjectID == projectID && o.Owner == owner && o.Status == domain.OrderPending &&
			o.PaymentStatus == domain.PaymentUnpaid && !o.CreatedAt.Before(since) {
			o.Status = domain.OrderFailed
			o.PaymentStatus = domain.PaymentFailed
			n++
		}
	}
	return n, nil
}

func (m *memoryOrders) ListExpiredOpen(context.Context, string, time.Time, int) ([]domain.Order, error) {
	return nil, nil
}

func (m *memoryOrders) MarkPaid(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			if !o.AwaitingPayment() {
				return domain.ErrConflict
			}
			o.Status = domain.OrderConfirmed
			o.PaymentStatus = domain.PaymentPaid
			m.invoices[orderID].Status = domain.InvoicePaid
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memoryOrders) openCount(owner domain.Identity) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if o.Owner == owner && o.AwaitingPayment() {
			n++
		}
	}
	return n
}

func (m *memoryOrders) order(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return *o
		}
	}
	panic(fmt.Sprintf("order %s not stored", id))
}
