package domain

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderFailed     OrderStatus = "FAILED"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type CheckoutStatus string

const (
	CheckoutPending      CheckoutStatus = "PENDING"
	CheckoutCompleted    CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed CheckoutStatus = "FAILED"
	CheckoutExpired      CheckoutStatus = "EXPIRED"
	CheckoutAbandoned    CheckoutStatus = "ABANDONED"
)

type InvoiceStatus string

const (
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

type Address struct {
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	StreetName string `json:"streetName,omitempty"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

// QuoteLine is one priced line; PriceSource records which rule resolved the unit price.
type QuoteLine struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	TotalCents     int64  `json:"totalCents"`
	WeightGrams    int    `json:"weightGrams"`
	PriceSource    string `json:"priceSource"`
}

type Quote struct {
	Currency         string      `json:"currency"`
	Lines            []QuoteLine `json:"lines"`
	SubtotalCents    int64       `json:"subtotalCents"`
	ShippingFeeCents int64       `json:"shippingFeeCents"`
	DiscountCents    int64       `json:"discountCents"`
	TotalCents       int64       `json:"totalCents"`
	WeightGrams      int         `json:"weightGrams"`
}

type CheckoutSession struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"-"`
	Owner         Identity       `json:"owner"`
	OrderID       *string        `json:"orderId,omitempty"`
	Status        CheckoutStatus `json:"status"`
	PaymentStatus PaymentStatus  `json:"paymentStatus"`
	Quote         Quote          `json:"quote"`
	Shipping      Address        `json:"shippingAddress"`
	Billing       *Address       `json:"billingAddress,omitempty"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type Order struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"-"`
	Owner             Identity      `json:"owner"`
	CheckoutSessionID *string       `json:"checkoutSessionId,omitempty"`
	OrderNumber       string        `json:"orderNumber"`
	Status            OrderStatus   `json:"status"`
	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	Currency          string        `json:"currency"`
	SubtotalCents     int64         `json:"subtotalCents"`
	ShippingFeeCents  int64         `json:"shippingFeeCents"`
	DiscountCents     int64         `json:"discountCents"`
	TotalCents        int64         `json:"totalCents"`
	WeightGrams       int           `json:"weightGrams"`
	PaymentReference  string        `json:"paymentReference"`
	ContactEmail      string        `json:"contactEmail,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// AwaitingPayment matches the storage constraint: PENDING with an unpaid or failed payment.
func (o Order) AwaitingPayment() bool {
	return o.Status == OrderPending && (o.PaymentStatus == PaymentUnpaid || o.PaymentStatus == PaymentFailed)
}

// Expired reports whether the order has aged past ttl at now.
func (o Order) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(o.CreatedAt.Add(ttl))
}

type Invoice struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"orderId"`
	Status           InvoiceStatus `json:"status"`
	Currency         string        `json:"currency"`
	TotalCents       int64         `json:"totalCents"`
	PaymentReference string        `json:"paymentReference"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// SettlementDestination is where the shopper wires the money.
type SettlementDestination struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	AccountHolder string `json:"accountHolder"`
}

type SettlementInstructions struct {
	OrderNumber      string                `json:"orderNumber"`
	PaymentReference string                `json:"paymentReference"`
	AmountCents      int64                 `json:"amountCents"`
	Currency         string                `json:"currency"`
	Destination      SettlementDestination `json:"destination"`
	DueAt            time.Time             `json:"dueAt"`
}

// OrderNotice is the payload handed to notification senders.
type OrderNotice struct {
	ProjectID    string
	Owner        Identity
	Email        string
	Name         string
	Order        Order
	Instructions SettlementInstructions
}
