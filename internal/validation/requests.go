package validation

import "storefront-checkout/internal/domain"

type SignupRequest struct {
	Email           string          `json:"email" validate:"required,email,max=255"`
	Password        string          `json:"password" validate:"required,min=8,max=72"`
	FirstName       string          `json:"firstName" validate:"max=100"`
	LastName        string          `json:"lastName" validate:"max=100"`
	DefaultShipping *domain.Address `json:"defaultShippingAddress,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AddLineRequest selects at most one price: the catalog unit price the shopper saw, or a product tier.
type AddLineRequest struct {
	ProductID       string  `json:"productId" validate:"required"`
	Quantity        int     `json:"quantity" validate:"required,min=1"`
	FixedPriceCents *int64  `json:"fixedPriceCents,omitempty" validate:"omitempty,min=0"`
	TierKey         *string `json:"tierKey,omitempty"`
}

type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

type CheckoutRequest struct {
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress,omitempty"`
	ContactEmail    string          `json:"contactEmail,omitempty" validate:"omitempty,email"`
}
