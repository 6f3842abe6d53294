package domain

import "time"

// IdentityKind tags which side of the Identity union is populated.
type IdentityKind string

const (
	IdentityAnonymous     IdentityKind = "anonymous"
	IdentityAuthenticated IdentityKind = "authenticated"
)

// Identity is the owner of a cart or order: an anonymous token or an account id, never both.
type Identity struct {
	Kind      IdentityKind `json:"type"`
	Token     string       `json:"token,omitempty"`
	AccountID string       `json:"accountId,omitempty"`
}

func Anonymous(token string) Identity {
	return Identity{Kind: IdentityAnonymous, Token: token}
}

func Authenticated(accountID string) Identity {
	return Identity{Kind: IdentityAuthenticated, AccountID: accountID}
}

func (i Identity) IsAnonymous() bool {
	return i.Kind == IdentityAnonymous
}

// OwnerID is the identifier persisted alongside the owner kind.
func (i Identity) OwnerID() string {
	if i.Kind == IdentityAuthenticated {
		return i.AccountID
	}
	return i.Token
}

// Key is a stable string form, e.g. "anonymous:3f2a..." or "authenticated:9b1c...".
func (i Identity) Key() string {
	return string(i.Kind) + ":" + i.OwnerID()
}

// Valid reports whether exactly the field matching Kind is set.
func (i Identity) Valid() bool {
	switch i.Kind {
	case IdentityAnonymous:
		return i.Token != "" && i.AccountID == ""
	case IdentityAuthenticated:
		return i.AccountID != "" && i.Token == ""
	default:
		return false
	}
}

// Session is one browsing context in the identity store.
// AnonymousToken survives a failed merge so the merge can be retried.
type Session struct {
	ID             string
	ProjectID      string
	AnonymousToken *string
	CustomerID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Owner returns the identity that currently owns cart operations for the session.
func (s Session) Owner() (Identity, bool) {
	if s.CustomerID != nil && *s.CustomerID != "" {
		return Authenticated(*s.CustomerID), true
	}
	if s.AnonymousToken != nil && *s.AnonymousToken != "" {
		return Anonymous(*s.AnonymousToken), true
	}
	return Identity{}, false
}

// PendingMerge reports a session that switched to an account but still holds a guest token.
func (s Session) PendingMerge() bool {
	return s.CustomerID != nil && s.AnonymousToken != nil && *s.AnonymousToken != ""
}
