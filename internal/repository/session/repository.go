package session

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Repository is the identity store: one row per browsing session.
type Repository interface {
	Get(ctx context.Context, projectID, id string) (*domain.Session, error)
	Create(ctx context.Context, s domain.Session) (*domain.Session, error)
	// ResetAnonymous installs a fresh guest token and drops the account (sign-out).
	ResetAnonymous(ctx context.Context, projectID, id, anonymousToken string) (*domain.Session, error)
	// AttachAccount switches the session to the account and leaves any guest token in place.
	AttachAccount(ctx context.Context, projectID, id, customerID string) (*domain.Session, error)
	// CompleteMerge attaches the account and clears the guest token only while it still
	// equals anonymousToken. It reports false when the token had already changed.
	CompleteMerge(ctx context.Context, projectID, id, customerID, anonymousToken string) (bool, error)
}
