package domain

import "time"

const (
	CartStateActive = "active"
	CartStateMerged = "merged"
)

type Cart struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"-"`
	Owner         Identity   `json:"owner"`
	Currency      string     `json:"currency"`
	State         string     `json:"state"`
	Lines         []CartLine `json:"lineItems"`
	SubtotalCents int64      `json:"subtotalCents"`
	ItemCount     int        `json:"itemCount"`
	LocalOnly     bool       `json:"localOnly,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// CartLine carries exactly one price selection: a fixed unit price or a tier of the product.
type CartLine struct {
	ID              string    `json:"id"`
	CartID          string    `json:"cartId,omitempty"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName,omitempty"`
	Quantity        int       `json:"quantity"`
	FixedPriceCents *int64    `json:"fixedPriceCents,omitempty"`
	TierKey         *string   `json:"tierKey,omitempty"`
	TierPriceCents  *int64    `json:"tierPriceCents,omitempty"`
	AddedAt         time.Time `json:"addedAt"`
}

// VariantKey identifies the price variant; lines coalesce on (ProductID, VariantKey).
func (l CartLine) VariantKey() string {
	if l.TierKey != nil {
		return "tier:" + *l.TierKey
	}
	return "fixed"
}

// ValidatePrice enforces the exactly-one price selection.
func (l CartLine) ValidatePrice() error {
	hasFixed := l.FixedPriceCents != nil
	hasTier := l.TierKey != nil && *l.TierKey != ""
	switch {
	case hasFixed && hasTier:
		return NewValidationError(UnresolvablePrice, "line %s sets both a fixed price and a tier", l.ProductID)
	case !hasFixed && !hasTier:
		return NewValidationError(UnresolvablePrice, "line %s has no price selection", l.ProductID)
	case hasFixed && *l.FixedPriceCents < 0:
		return NewValidationError(UnresolvablePrice, "line %s has a negative price", l.ProductID)
	}
	return nil
}

// UnitPriceCents is the price snapshot recorded when the line was written.
func (l CartLine) UnitPriceCents() int64 {
	if l.FixedPriceCents != nil {
		return *l.FixedPriceCents
	}
	if l.TierPriceCents != nil {
		return *l.TierPriceCents
	}
	return 0
}

func (l CartLine) TotalCents() int64 {
	return l.UnitPriceCents() * int64(l.Quantity)
}

// Recompute derives subtotal and item count from the line list.
func (c *Cart) Recompute() {
	var subtotal int64
	count := 0
	for _, l := range c.Lines {
		subtotal += l.TotalCents()
		count += l.Quantity
	}
	c.SubtotalCents = subtotal
	c.ItemCount = count
}

// AddLine coalesces into an existing (product, variant) line or appends.
func (c *Cart) AddLine(line CartLine) {
	defer c.Recompute()
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID && c.Lines[i].VariantKey() == line.VariantKey() {
			c.Lines[i].Quantity += line.Quantity
			return
		}
	}
	c.Lines = append(c.Lines, line)
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (c *Cart) SetQuantity(lineID string, quantity int) error {
	if quantity <= 0 {
		return c.RemoveLine(lineID)
	}
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines[i].Quantity = quantity
			c.Recompute()
			return nil
		}
	}
	return ErrNotFound
}

func (c *Cart) RemoveLine(lineID string) error {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.Recompute()
			return nil
		}
	}
	return ErrNotFound
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.Recompute()
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
