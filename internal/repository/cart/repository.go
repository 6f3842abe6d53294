package cart

import (
	"context"

	"storefront-checkout/internal/domain"
)

type MergeOutcome string

const (
	// MergeNoGuestCart means the anonymous token owns no active cart.
	MergeNoGuestCart MergeOutcome = "no_guest_cart"
	// MergeReassigned means the account had no cart and took over the guest cart.
	MergeReassigned MergeOutcome = "reassigned"
	// MergeCoalesced means guest lines were folded into the account cart.
	MergeCoalesced MergeOutcome = "coalesced"
)

type MergeResult struct {
	Outcome MergeOutcome
	// Cart is the account's active cart after the merge, nil when it has none.
	Cart *domain.Cart
}

// Repository persists carts keyed by their owning identity.
type Repository interface {
	GetActive(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error)
	GetOrCreateActive(ctx context.Context, projectID string, owner domain.Identity, currency string) (*domain.Cart, error)
	AddLine(ctx context.Context, cartID string, line domain.CartLine) error
	SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, cartID, lineID string) error
	Clear(ctx context.Context, cartID string) error
	// ReplaceLines atomically swaps all lines of the cart.
	ReplaceLines(ctx context.Context, cartID string, lines []domain.CartLine) error
	MergeAnonymous(ctx context.Context, projectID, anonymousToken, customerID string) (MergeResult, error)
}
