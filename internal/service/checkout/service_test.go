package checkout

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/service/reconcile"
)

const project = "proj"

type stubProducts struct {
	mu       sync.Mutex
	products map[string]domain.Product
	err      error
	calls    int
}

func (s *stubProducts) GetByID(_ context.Context, _ string, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

type recordingSender struct {
	mu      sync.Mutex
	notices []domain.OrderNotice
	err     error
}

func (r *recordingSender) Send(_ context.Context, n domain.OrderNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

type stubContacts struct{}

func (stubContacts) GetByID(_ context.Context, _ string, id string) (*domain.Customer, error) {
	return &domain.Customer{ID: id, Email: "ana@example.com", FirstName: "Ana"}, nil
}

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

type fixture struct {
	svc      *Service
	orders   *memoryOrders
	products *stubProducts
	sender   *recordingSender
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		sender: &recordingSender{},
		products: &stubProducts{products: map[string]domain.Product{
			"p1": {ID: "p1", Key: "coffee", Name: "Coffee", WeightGrams: 250, PriceCents: int64p(800),
				Tiers: []domain.PriceTier{{Key: "wholesale", Name: "Wholesale", MinQuantity: 10, PriceCents: 600}}},
			"tea":        {ID: "tea", Key: "tea", Name: "Tea", WeightGrams: 250, PriceCents: int64p(500)},
			"weightless": {ID: "weightless", Key: "gift-card", Name: "Gift card", PriceCents: int64p(1000)},
			"unpriced":   {ID: "unpriced", Key: "sample", Name: "Sample", WeightGrams: 100},
		}},
	}
	now := func() time.Time { return f.clock }
	f.orders = newMemoryOrders(now)

	sf := config.DefaultStorefront()
	sf.Shipping.CityRatesPerKg = map[string]int64{"bandung": 15000}

	numbers, err := NewNumbers("order-secret", "ref-salt")
	if err != nil {
		t.Fatalf("NewNumbers: %v", err)
	}
	sweeper := reconcile.New(f.orders, nil)
	f.svc = New(f.orders, NewPricer(f.products, sf, 4), sweeper, numbers, f.sender, stubContacts{},
		Settings{OrderTTL: 24 * time.Hour, Destination: domain.SettlementDestination{BankName: "BCA", AccountNumber: "123", AccountHolder: "Shop"}}, nil)
	f.svc.now = now
	return f
}

// sent waits for background notifications and returns what was delivered.
func (f *fixture) sent() []domain.OrderNotice {
	f.svc.Wait()
	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	return append([]domain.OrderNotice(nil), f.sender.notices...)
}

func fixedCart(owner domain.Identity, qty int, price int64) *domain.Cart {
	c := &domain.Cart{ID: "c1", ProjectID: project, Owner: owner, Currency: "IDR"}
	c.AddLine(domain.CartLine{ID: "l1", ProductID: "tea", Quantity: qty, FixedPriceCents: int64p(price)})
	return c
}

var jakarta = SubmitInput{Shipping: domain.Address{FirstName: "Ana", StreetName: "Jl. Sudirman 1", City: "Jakarta", Email: "ana@example.com"}}

func TestSubmit_CreatesOrderAndResubmitReturnsSameOrder(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-a")
	cart := fixedCart(owner, 2, 500)
	if cart.SubtotalCents != 1000 {
		t.Fatalf("expected cart subtotal 1000, got %d", cart.SubtotalCents)
	}

	first, err := f.svc.Submit(context.Background(), project, owner, cart, jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Decision != DecisionCreate {
		t.Fatalf("expected create, got %s", first.Decision)
	}
	// 500g bills as the 1kg minimum at the default rate.
	if first.Order.SubtotalCents != 1000 || first.Order.ShippingFeeCents != 20000 || first.Order.TotalCents != 21000 {
		t.Fatalf("unexpected totals %+v", first.Order)
	}
	if first.Checkout.Status != domain.CheckoutCompleted || first.Invoice.Status != domain.InvoiceSent {
		t.Fatalf("unexpected triple states: checkout=%s invoice=%s", first.Checkout.Status, first.Invoice.Status)
	}
	if first.Instructions.AmountCents != 21000 || first.Instructions.Destination.BankName != "BCA" {
		t.Fatalf("unexpected instructions %+v", first.Instructions)
	}
	if len(f.sent()) != 1 || f.sent()[0].Email != "ana@example.com" {
		t.Fatalf("expected one notice to the shopper, got %+v", f.sent())
	}

	second, err := f.svc.Submit(context.Background(), project, owner, cart, jakarta)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.Decision != DecisionResurface || second.Order.ID != first.Order.ID {
		t.Fatalf("expected the same order resurfaced, got %s %s", second.Decision, second.Order.ID)
	}
	if second.Instructions.PaymentReference != first.Instructions.PaymentReference {
		t.Fatal("resurfaced order must keep its payment reference")
	}
	if f.orders.createCalls != 1 || f.orders.openCount(owner) != 1 {
		t.Fatalf("expected a single order, creates=%d open=%d", f.orders.createCalls, f.orders.openCount(owner))
	}
	if len(f.sent()) != 1 {
		t.Fatal("resurfacing must not notify again")
	}
}

func TestSubmit_ReplacesExpiredOrder(t *testing.T) {
	f := newFixture(t)
	owner := domain.Authenticated("acct-u")
	stale := f.orders.seed(project, owner, "ORD-OLD1-0001", f.clock.Add(-30*time.Hour))

	res, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Decision != DecisionReplaceExpired {
		t.Fatalf("expected replace_expired, got %s", res.Decision)
	}
	if res.Order.ID == stale.Order.ID || res.Order.PaymentReference == stale.Order.PaymentReference {
		t.Fatal("expected a fresh order with a new payment reference")
	}
	if got := f.orders.order(stale.Order.ID).Status; got != domain.OrderCancelled {
		t.Fatalf("expected stale order cancelled, got %s", got)
	}
	checkout, _ := f.orders.GetCheckoutByOrder(context.Background(), stale.Order.ID)
	invoice, _ := f.orders.GetInvoiceByOrder(context.Background(), stale.Order.ID)
	if checkout.Status != domain.CheckoutExpired || invoice.Status != domain.InvoiceCancelled {
		t.Fatalf("expected cascade, checkout=%s invoice=%s", checkout.Status, invoice.Status)
	}
	if f.orders.openCount(owner) != 1 {
		t.Fatalf("expected exactly one open order, got %d", f.orders.openCount(owner))
	}
	if len(f.sent()) != 1 || f.sent()[0].Name != "Ana" {
		t.Fatalf("expected account contact on notice, got %+v", f.sent())
	}
}

func TestSubmit_ReplacesFailedOrder(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-f")
	failed := f.orders.seed(project, owner, "ORD-FAIL-0001", f.clock.Add(-time.Minute))
	if _, err := f.orders.FailRecentOpen(context.Background(), project, owner, f.clock.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Decision != DecisionReplaceFailed || res.Order.ID == failed.Order.ID {
		t.Fatalf("expected replacement, got %s %s", res.Decision, res.Order.ID)
	}
	checkout, _ := f.orders.GetCheckoutByOrder(context.Background(), failed.Order.ID)
	if checkout.Status != domain.CheckoutAbandoned {
		t.Fatalf("expected abandoned checkout, got %s", checkout.Status)
	}
}

func TestSubmit_BothPricesRejectedBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-b")
	cart := &domain.Cart{Owner: owner, Currency: "IDR", Lines: []domain.CartLine{
		{ID: "l1", ProductID: "p1", Quantity: 1, FixedPriceCents: int64p(500), TierKey: strp("wholesale")},
	}}

	_, err := f.svc.Submit(context.Background(), project, owner, cart, jakarta)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Code != domain.UnresolvablePrice {
		t.Fatalf("expected UnresolvablePrice, got %v", err)
	}
	if f.orders.findCalls != 0 || f.orders.createCalls != 0 || f.products.calls != 0 {
		t.Fatalf("expected no storage access, find=%d create=%d products=%d", f.orders.findCalls, f.orders.createCalls, f.products.calls)
	}
}

func TestSubmit_TamperedFixedPriceRejected(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-t")
	cart := &domain.Cart{Owner: owner, Currency: "IDR"}
	cart.AddLine(domain.CartLine{ID: "l1", ProductID: "p1", Quantity: 10, FixedPriceCents: int64p(1)})

	_, err := f.svc.Submit(context.Background(), project, owner, cart, jakarta)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Code != domain.UnresolvablePrice {
		t.Fatalf("expected UnresolvablePrice, got %v", err)
	}
	if f.orders.createCalls != 0 || f.orders.openCount(owner) != 0 {
		t.Fatal("no order may be created from a client-chosen price")
	}

	cart.Lines[0].FixedPriceCents = int64p(800)
	res, err := f.svc.Submit(context.Background(), project, owner, cart, jakarta)
	if err != nil {
		t.Fatalf("Submit with catalog price: %v", err)
	}
	if res.Order.SubtotalCents != 8000 {
		t.Fatalf("subtotal %d, want 8000", res.Order.SubtotalCents)
	}
}

func TestQuote_AddressReasonNamesField(t *testing.T) {
	f := newFixture(t)
	addr := domain.Address{City: "Jakarta", Email: "not-an-email"}
	_, err := f.svc.Quote(context.Background(), project, fixedCart(domain.Anonymous("g"), 1, 500), addr)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Code != domain.InvalidAddress {
		t.Fatalf("expected InvalidAddress, got %v", err)
	}
	if !strings.Contains(ve.Reason, "Email") || strings.Contains(ve.Reason, "city") {
		t.Fatalf("reason should name the email field, got %q", ve.Reason)
	}
}

func TestSubmit_ValidationErrors(t *testing.T) {
	owner := domain.Anonymous("guest-v")
	tests := []struct {
		name string
		cart *domain.Cart
		in   SubmitInput
		code domain.ValidationCode
	}{
		{name: "empty cart", cart: &domain.Cart{Owner: owner}, in: jakarta, code: domain.InvalidCart},
		{name: "missing city", cart: fixedCart(owner, 1, 500), in: SubmitInput{Shipping: domain.Address{StreetName: "Jl. Braga"}}, code: domain.InvalidAddress},
		{name: "blank city", cart: fixedCart(owner, 1, 500), in: SubmitInput{Shipping: domain.Address{City: "   "}}, code: domain.InvalidAddress},
		{name: "missing billing city", cart: fixedCart(owner, 1, 500), in: SubmitInput{Shipping: jakarta.Shipping, Billing: &domain.Address{}}, code: domain.InvalidAddress},
		{name: "weightless product", cart: &domain.Cart{Owner: owner, Lines: []domain.CartLine{{ID: "l", ProductID: "weightless", Quantity: 1}}}, in: jakarta, code: domain.InvalidCart},
		{name: "unknown product", cart: &domain.Cart{Owner: owner, Lines: []domain.CartLine{{ID: "l", ProductID: "gone", Quantity: 1}}}, in: jakarta, code: domain.InvalidCart},
		{name: "unknown tier", cart: &domain.Cart{Owner: owner, Lines: []domain.CartLine{{ID: "l", ProductID: "p1", Quantity: 1, TierKey: strp("retail")}}}, in: jakarta, code: domain.UnresolvablePrice},
		{name: "fixed price without catalog price", cart: &domain.Cart{Owner: owner, Lines: []domain.CartLine{{ID: "l", ProductID: "unpriced", Quantity: 1, FixedPriceCents: int64p(100)}}}, in: jakarta, code: domain.UnresolvablePrice},
		{name: "no price at all", cart: &domain.Cart{Owner: owner, Lines: []domain.CartLine{{ID: "l", ProductID: "unpriced", Quantity: 1}}}, in: jakarta, code: domain.UnresolvablePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), project, owner, tt.cart, tt.in)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if f.orders.createCalls != 0 {
				t.Fatal("validation failure must not write")
			}
		})
	}
}

func TestSubmit_ConflictReevaluatesToWinningOrder(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-c")
	var winner string
	f.orders.beforeCreate = func() {
		winner = f.orders.seed(project, owner, "ORD-WIN1-0001", f.clock).Order.ID
	}

	res, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Decision != DecisionResurface || res.Order.ID != winner {
		t.Fatalf("expected the concurrent winner, got %s %s", res.Decision, res.Order.ID)
	}
	if f.orders.openCount(owner) != 1 {
		t.Fatalf("expected one open order, got %d", f.orders.openCount(owner))
	}
}

func TestSubmit_CreateFailureRunsCleanup(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-x")
	f.orders.createErr = errors.New("connection reset")
	f.orders.beforeCreate = func() {
		f.orders.mu.Lock()
		f.orders.checkouts = append(f.orders.checkouts, &domain.CheckoutSession{ID: "orphan", ProjectID: project, Owner: owner})
		f.orders.mu.Unlock()
	}

	_, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
	var cf *domain.CheckoutFailed
	if !errors.As(err, &cf) {
		t.Fatalf("expected CheckoutFailed, got %v", err)
	}
	var te *domain.TransientStorageError
	if !errors.As(err, &te) {
		t.Fatal("expected the storage error to stay visible")
	}
	if len(f.orders.checkouts) != 0 {
		t.Fatalf("expected orphan checkout removed, got %d", len(f.orders.checkouts))
	}
	if len(f.sent()) != 0 {
		t.Fatal("failed checkout must not notify")
	}
}

func TestSubmit_NotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	owner := domain.Anonymous("guest-n")

	if _, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.sent()) != 1 {
		t.Fatal("expected one attempted notice")
	}
}

type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(_ context.Context, _ domain.OrderNotice) error {
	close(b.started)
	<-b.release
	return nil
}

func TestSubmit_NotificationDoesNotDelayResponse(t *testing.T) {
	f := newFixture(t)
	slow := &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
	f.svc.notifier = slow
	owner := domain.Anonymous("guest-s")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit waited for the notification")
	}

	<-slow.started
	close(slow.release)
	f.svc.Wait()
}

func TestSubmit_ResurfaceRecreatesMissingInvoice(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-r")
	existing := f.orders.seed(project, owner, "ORD-PART-0001", f.clock.Add(-time.Hour))
	delete(f.orders.invoices, existing.Order.ID)

	res, err := f.svc.Submit(context.Background(), project, owner, fixedCart(owner, 1, 500), jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Order.ID != existing.Order.ID || res.Invoice == nil || res.Invoice.Status != domain.InvoiceSent {
		t.Fatalf("expected invoice recreated for the existing order, got %+v", res)
	}
	if res.Invoice.TotalCents != existing.Order.TotalCents {
		t.Fatalf("invoice total %d, want %d", res.Invoice.TotalCents, existing.Order.TotalCents)
	}
}

func TestQuote_TierPriceAndFreeShipping(t *testing.T) {
	f := newFixture(t)
	sf := config.DefaultStorefront()
	sf.Shipping.FreeShippingThresholdCents = 5000
	sf.Shipping.CityRatesPerKg = map[string]int64{"bandung": 15000}
	pricer := NewPricer(f.products, sf, 0)

	cart := &domain.Cart{Currency: "IDR", Lines: []domain.CartLine{
		{ID: "l1", ProductID: "p1", Quantity: 10, TierKey: strp("wholesale")},
	}}
	q, err := pricer.Quote(context.Background(), project, cart, domain.Address{City: "Bandung"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.SubtotalCents != 6000 || q.Lines[0].PriceSource != "tier:wholesale" {
		t.Fatalf("unexpected quote %+v", q)
	}
	// 2.5kg rounds up to 3kg at the Bandung rate, waived above the threshold.
	if q.WeightGrams != 2500 || q.ShippingFeeCents != 45000 || q.DiscountCents != 45000 || q.TotalCents != 6000 {
		t.Fatalf("unexpected shipping %+v", q)
	}
}

func TestQuote_ProductPriceFallback(t *testing.T) {
	f := newFixture(t)
	cart := &domain.Cart{Lines: []domain.CartLine{{ID: "l1", ProductID: "p1", Quantity: 3}}}
	q, err := f.svc.Quote(context.Background(), project, cart, jakarta.Shipping)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.SubtotalCents != 2400 || q.Lines[0].PriceSource != "product" || q.Currency != "IDR" {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestQuote_CatalogOutageIsTransient(t *testing.T) {
	f := newFixture(t)
	f.products.err = errors.New("connection refused")
	_, err := f.svc.Quote(context.Background(), project, fixedCart(domain.Anonymous("g"), 1, 500), jakarta.Shipping)
	var te *domain.TransientStorageError
	if !errors.As(err, &te) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestShippingFee(t *testing.T) {
	rates := config.Shipping{DefaultRatePerKg: 10000, MinBillableGrams: 1000, CityRatesPerKg: map[string]int64{"surabaya": 12000}}
	tests := []struct {
		grams int
		city  string
		want  int64
	}{
		{grams: 200, city: "Jakarta", want: 10000},
		{grams: 1000, city: "Jakarta", want: 10000},
		{grams: 1001, city: "Jakarta", want: 20000},
		{grams: 1500, city: " Surabaya ", want: 24000},
	}
	for _, tt := range tests {
		if got := ShippingFee(rates, tt.grams, tt.city); got != tt.want {
			t.Errorf("ShippingFee(%d, %q) = %d, want %d", tt.grams, tt.city, got, tt.want)
		}
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour
	pending := func(age time.Duration) *domain.Order {
		return &domain.Order{Status: domain.OrderPending, PaymentStatus: domain.PaymentUnpaid, CreatedAt: now.Add(-age)}
	}
	tests := []struct {
		name  string
		order *domain.Order
		want  Decision
	}{
		{name: "none", order: nil, want: DecisionCreate},
		{name: "fresh", order: pending(time.Hour), want: DecisionResurface},
		{name: "exactly ttl", order: pending(ttl), want: DecisionReplaceExpired},
		{name: "expired", order: pending(30 * time.Hour), want: DecisionReplaceExpired},
		{name: "failed", order: &domain.Order{Status: domain.OrderFailed, PaymentStatus: domain.PaymentFailed, CreatedAt: now}, want: DecisionReplaceFailed},
	}
	for _, tt := range tests {
		if got := Decide(tt.order, now, ttl); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestCurrentAndConfirmPayment(t *testing.T) {
	f := newFixture(t)
	owner := domain.Anonymous("guest-p")
	ctx := context.Background()

	if _, err := f.svc.Current(ctx, project, owner); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found before checkout, got %v", err)
	}
	created, err := f.svc.Submit(ctx, project, owner, fixedCart(owner, 1, 500), jakarta)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	current, err := f.svc.Current(ctx, project, owner)
	if err != nil || current.Order.ID != created.Order.ID || current.Invoice == nil {
		t.Fatalf("Current: %+v %v", current, err)
	}
	if !current.Instructions.DueAt.Equal(created.Order.CreatedAt.Add(24 * time.Hour)) {
		t.Fatalf("unexpected due date %v", current.Instructions.DueAt)
	}

	paid, err := f.svc.ConfirmPayment(ctx, project, created.Order.OrderNumber)
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if paid.Status != domain.OrderConfirmed || paid.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("unexpected order after payment %+v", paid)
	}
	if _, err := f.svc.ConfirmPayment(ctx, project, created.Order.OrderNumber); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second confirmation, got %v", err)
	}
	if _, err := f.svc.Current(ctx, project, owner); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("paid order is no longer current, got %v", err)
	}

	f.clock = f.clock.Add(48 * time.Hour)
	if _, err := f.svc.Submit(ctx, project, owner, fixedCart(owner, 1, 500), jakarta); err != nil {
		t.Fatalf("Submit after payment: %v", err)
	}
	f.clock = f.clock.Add(25 * time.Hour)
	if _, err := f.svc.Current(ctx, project, owner); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired order is not current, got %v", err)
	}
}

func TestNumbers(t *testing.T) {
	n, err := NewNumbers("secret", "salt")
	if err != nil {
		t.Fatalf("NewNumbers: %v", err)
	}
	pattern := regexp.MustCompile(`^ORD-[A-Z2-7]{4}-[0-9A-F]{4}$`)
	if num := n.OrderNumber("anonymous:abc"); !pattern.MatchString(num) {
		t.Fatalf("unexpected order number %q", num)
	}
	a, err := n.PaymentReference()
	if err != nil {
		t.Fatalf("PaymentReference: %v", err)
	}
	b, _ := n.PaymentReference()
	if a == b || len(a) < len("PAY-")+10 {
		t.Fatalf("expected distinct references, got %q %q", a, b)
	}
}
