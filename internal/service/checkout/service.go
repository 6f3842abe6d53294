// Package checkout turns a cart snapshot into exactly one payable order per owner.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/notify"
	orderrepo "storefront-checkout/internal/repository/order"
)

const (
	DefaultOrderTTL = 24 * time.Hour
	notifyTimeout   = 5 * time.Second
)

// Decision is the branch the duplicate-prevention check picked for a submission.
type Decision string

const (
	DecisionCreate         Decision = "create"
	DecisionResurface      Decision = "resurface"
	DecisionReplaceExpired Decision = "replace_expired"
	DecisionReplaceFailed  Decision = "replace_failed"
)

// Decide maps the owner's latest open order onto a branch. Every combination is covered:
// no order, pending within ttl, pending past ttl, failed.
func Decide(open *domain.Order, now time.Time, ttl time.Duration) Decision {
	switch {
	case open == nil:
		return DecisionCreate
	case open.Status == domain.OrderPending && !open.Expired(now, ttl):
		return DecisionResurface
	case open.Status == domain.OrderPending:
		return DecisionReplaceExpired
	default:
		return DecisionReplaceFailed
	}
}

type quoter interface {
	Quote(ctx context.Context, projectID string, cart *domain.Cart, shipping domain.Address) (domain.Quote, error)
}

type sweeper interface {
	CancelTriple(ctx context.Context, orderID string, reason domain.CheckoutStatus) (bool, error)
	DeleteOrphans(ctx context.Context, projectID string, owner domain.Identity) (int64, error)
	CleanupAfterFailure(ctx context.Context, projectID string, owner domain.Identity) error
}

type numberSource interface {
	OrderNumber(ownerKey string) string
	PaymentReference() (string, error)
}

type contactLookup interface {
	GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error)
}

// Settings are the static parts of every order.
type Settings struct {
	OrderTTL    time.Duration
	Destination domain.SettlementDestination
}

type SubmitInput struct {
	Shipping     domain.Address
	Billing      *domain.Address
	ContactEmail string
}

// Result is what the shopper needs to pay: the order, its checkout and invoice, and where to send money.
type Result struct {
	Decision     Decision                      `json:"decision,omitempty"`
	Checkout     *domain.CheckoutSession       `json:"checkout,omitempty"`
	Order        domain.Order                  `json:"order"`
	Invoice      *domain.Invoice               `json:"invoice,omitempty"`
	Instructions domain.SettlementInstructions `json:"settlement"`
}

type Service struct {
	orders   orderrepo.Repository
	pricer   quoter
	sweeper  sweeper
	numbers  numberSource
	notifier notify.Sender
	contacts contactLookup
	settings Settings
	now      func() time.Time
	logger   *zap.SugaredLogger

	// notices tracks in-flight confirmation sends.
	notices sync.WaitGroup
}

func New(
	orders orderrepo.Repository,
	pricer quoter,
	sweeper sweeper,
	numbers numberSource,
	notifier notify.Sender,
	contacts contactLookup,
	settings Settings,
	logger *zap.SugaredLogger,
) *Service {
	if settings.OrderTTL <= 0 {
		settings.OrderTTL = DefaultOrderTTL
	}
	logger = logging.OrNop(logger)
	if notifier == nil {
		notifier = notify.NewLogSender(logger)
	}
	return &Service{
		orders:   orders,
		pricer:   pricer,
		sweeper:  sweeper,
		numbers:  numbers,
		notifier: notifier,
		contacts: contacts,
		settings: settings,
		now:      time.Now,
		logger:   logger,
	}
}

// Quote prices the cart without writing anything.
func (s *Service) Quote(ctx context.Context, projectID string, cart *domain.Cart, shipping domain.Address) (domain.Quote, error) {
	return s.pricer.Quote(ctx, projectID, cart, shipping)
}

// Submit validates and prices the cart, then either returns the owner's current order or
// replaces a stale one and creates a new checkout, order and invoice. Resubmitting an
// unchanged cart within the TTL returns the same order.
func (s *Service) Submit(ctx context.Context, projectID string, owner domain.Identity, cart *domain.Cart, in SubmitInput) (*Result, error) {
	if !owner.Valid() {
		return nil, errors.New("checkout: owner identity is required")
	}
	quote, err := s.pricer.Quote(ctx, projectID, cart, in.Shipping)
	if err != nil {
		return nil, err
	}
	if in.Billing != nil && in.Billing.City == "" {
		return nil, domain.NewValidationError(domain.InvalidAddress, "billing address needs a city")
	}

	email, name := s.contact(ctx, projectID, owner, in)
	create := orderrepo.CreateTripleInput{
		ProjectID:    projectID,
		Owner:        owner,
		Quote:        quote,
		Shipping:     in.Shipping,
		Billing:      in.Billing,
		ContactEmail: email,
	}

	res, err := s.evaluate(ctx, create, name)
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent submission won the open-order slot; the second pass resurfaces it.
		s.logger.Infow("checkout: open order conflict, re-evaluating", "project_id", projectID, "owner", owner.Key())
		res, err = s.evaluate(ctx, create, name)
	}
	return res, err
}

func (s *Service) evaluate(ctx context.Context, in orderrepo.CreateTripleInput, name string) (*Result, error) {
	open, err := s.orders.FindLatestOpen(ctx, in.ProjectID, in.Owner)
	if errors.Is(err, domain.ErrNotFound) {
		open, err = nil, nil
	}
	if err != nil {
		return nil, domain.Transient("checkout.lookup", err)
	}

	decision := Decide(open, s.now(), s.settings.OrderTTL)
	switch decision {
	case DecisionCreate:
		return s.create(ctx, in, name, decision)
	case DecisionResurface:
		return s.resurface(ctx, *open, in)
	case DecisionReplaceExpired, DecisionReplaceFailed:
		reason := domain.CheckoutExpired
		if decision == DecisionReplaceFailed {
			reason = domain.CheckoutAbandoned
		}
		if _, err := s.sweeper.CancelTriple(ctx, open.ID, reason); err != nil {
			return nil, err
		}
		if _, err := s.sweeper.DeleteOrphans(ctx, in.ProjectID, in.Owner); err != nil {
			s.logger.Warnw("checkout: orphan sweep failed", "project_id", in.ProjectID, "owner", in.Owner.Key(), "err", err)
		}
		s.logger.Infow("checkout: replaced open order", "project_id", in.ProjectID, "order_number", open.OrderNumber, "decision", decision)
		return s.create(ctx, in, name, decision)
	}
	return nil, fmt.Errorf("checkout: unhandled decision %q", decision)
}

func (s *Service) create(ctx context.Context, in orderrepo.CreateTripleInput, name string, decision Decision) (*Result, error) {
	ref, err := s.numbers.PaymentReference()
	if err != nil {
		return nil, err
	}
	in.OrderNumber = s.numbers.OrderNumber(in.Owner.Key())
	in.PaymentReference = ref
	in.ExpiresAt = s.now().Add(s.settings.OrderTTL)

	triple, err := s.orders.CreateTriple(ctx, in)
	if errors.Is(err, domain.ErrConflict) {
		return nil, err
	}
	if err != nil {
		if cleanupErr := s.sweeper.CleanupAfterFailure(ctx, in.ProjectID, in.Owner); cleanupErr != nil {
			s.logger.Errorw("checkout: cleanup after failed create", "project_id", in.ProjectID, "owner", in.Owner.Key(), "err", cleanupErr)
		}
		s.logger.Errorw("checkout: create failed", "project_id", in.ProjectID, "owner", in.Owner.Key(), "err", err)
		return nil, &domain.CheckoutFailed{Err: domain.Transient("checkout.create", err)}
	}

	res := &Result{
		Decision:     decision,
		Checkout:     &triple.Checkout,
		Order:        triple.Order,
		Invoice:      &triple.Invoice,
		Instructions: s.instructions(triple.Order),
	}
	s.send(ctx, domain.OrderNotice{
		ProjectID:    in.ProjectID,
		Owner:        in.Owner,
		Email:        in.ContactEmail,
		Name:         name,
		Order:        triple.Order,
		Instructions: res.Instructions,
	})
	return res, nil
}

// resurface returns the pending order, recreating a checkout session or invoice lost to an
// earlier partial failure.
func (s *Service) resurface(ctx context.Context, order domain.Order, in orderrepo.CreateTripleInput) (*Result, error) {
	checkout, err := s.orders.GetCheckoutByOrder(ctx, order.ID)
	if errors.Is(err, domain.ErrNotFound) {
		in.Quote = quoteOf(order)
		in.OrderNumber = order.OrderNumber
		in.PaymentReference = order.PaymentReference
		in.ExpiresAt = order.CreatedAt.Add(s.settings.OrderTTL)
		checkout, err = s.orders.CreateCheckoutForOrder(ctx, order, in)
		if err == nil {
			s.logger.Warnw("checkout: recreated missing checkout session", "order_number", order.OrderNumber)
		}
	}
	if err != nil {
		return nil, domain.Transient("checkout.resurface", err)
	}

	invoice, err := s.orders.GetInvoiceByOrder(ctx, order.ID)
	if errors.Is(err, domain.ErrNotFound) {
		invoice, err = s.orders.CreateInvoice(ctx, order)
		if errors.Is(err, domain.ErrAlreadyExists) {
			invoice, err = s.orders.GetInvoiceByOrder(ctx, order.ID)
		} else if err == nil {
			s.logger.Warnw("checkout: recreated missing invoice", "order_number", order.OrderNumber)
		}
	}
	if err != nil {
		return nil, domain.Transient("checkout.resurface", err)
	}

	return &Result{
		Decision:     DecisionResurface,
		Checkout:     checkout,
		Order:        order,
		Invoice:      invoice,
		Instructions: s.instructions(order),
	}, nil
}

// Current returns the owner's payable order within the TTL, or ErrNotFound.
func (s *Service) Current(ctx context.Context, projectID string, owner domain.Identity) (*Result, error) {
	open, err := s.orders.FindLatestOpen(ctx, projectID, owner)
	if err != nil {
		return nil, domain.Transient("checkout.current", err)
	}
	if Decide(open, s.now(), s.settings.OrderTTL) != DecisionResurface {
		return nil, domain.ErrNotFound
	}
	res := &Result{Order: *open, Instructions: s.instructions(*open)}
	if c, err := s.orders.GetCheckoutByOrder(ctx, open.ID); err == nil {
		res.Checkout = c
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Transient("checkout.current", err)
	}
	if inv, err := s.orders.GetInvoiceByOrder(ctx, open.ID); err == nil {
		res.Invoice = inv
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Transient("checkout.current", err)
	}
	return res, nil
}

// ConfirmPayment records a received bank transfer against the order.
func (s *Service) ConfirmPayment(ctx context.Context, projectID, orderNumber string) (*domain.Order, error) {
	order, err := s.orders.GetByNumber(ctx, projectID, orderNumber)
	if err != nil {
		return nil, domain.Transient("checkout.confirm", err)
	}
	if err := s.orders.MarkPaid(ctx, order.ID); err != nil {
		return nil, domain.Transient("checkout.confirm", err)
	}
	s.logger.Infow("checkout: payment confirmed", "project_id", projectID, "order_number", orderNumber)
	return s.orders.GetByNumber(ctx, projectID, orderNumber)
}

func (s *Service) instructions(o domain.Order) domain.SettlementInstructions {
	return domain.SettlementInstructions{
		OrderNumber:      o.OrderNumber,
		PaymentReference: o.PaymentReference,
		AmountCents:      o.TotalCents,
		Currency:         o.Currency,
		Destination:      s.settings.Destination,
		DueAt:            o.CreatedAt.Add(s.settings.OrderTTL),
	}
}

// contact picks the address for the confirmation message: explicit input, then the
// shipping address, then the account's email.
func (s *Service) contact(ctx context.Context, projectID string, owner domain.Identity, in SubmitInput) (string, string) {
	email := in.ContactEmail
	if email == "" {
		email = in.Shipping.Email
	}
	name := in.Shipping.FirstName
	if owner.IsAnonymous() || s.contacts == nil {
		return email, name
	}
	cust, err := s.contacts.GetByID(ctx, projectID, owner.AccountID)
	if err != nil {
		s.logger.Warnw("checkout: contact lookup failed", "project_id", projectID, "owner", owner.Key(), "err", err)
		return email, name
	}
	if email == "" {
		email = cust.Email
	}
	return email, cust.DisplayName()
}

// send delivers the notice in the background; the order is already committed and a slow
// or failing sender never delays the response.
func (s *Service) send(ctx context.Context, notice domain.OrderNotice) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	s.notices.Add(1)
	go func() {
		defer s.notices.Done()
		defer cancel()
		if err := s.notifier.Send(ctx, notice); err != nil {
			s.logger.Warnw("checkout: order notification failed", "order_number", notice.Order.OrderNumber, "err", err)
		}
	}()
}

// Wait blocks until every notification started so far has finished.
func (s *Service) Wait() {
	s.notices.Wait()
}

func quoteOf(o domain.Order) domain.Quote {
	return domain.Quote{
		Currency:         o.Currency,
		SubtotalCents:    o.SubtotalCents,
		ShippingFeeCents: o.ShippingFeeCents,
		DiscountCents:    o.DiscountCents,
		TotalCents:       o.TotalCents,
		WeightGrams:      o.WeightGrams,
	}
}
