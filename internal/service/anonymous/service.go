// Package anonymous mints guest identities and the signed session handles that carry them.
package anonymous

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

const defaultHandleTTL = 30 * 24 * time.Hour

// Handle is a freshly minted guest session.
type Handle struct {
	Value          string
	SessionID      string
	AnonymousToken string
	ExpiresAt      time.Time
}

type Service struct {
	tokens    *tokenManager
	handleTTL time.Duration
	now       func() time.Time
}

func New(secret string) *Service {
	return &Service{
		tokens:    newTokenManager(secret),
		handleTTL: defaultHandleTTL,
		now:       time.Now,
	}
}

// Issue mints a new session id, its signed handle and a guest token.
func (s *Service) Issue(_ context.Context, projectID string) (Handle, error) {
	now := s.now()
	sessionID := uuid.NewString()
	value, err := s.tokens.Issue(projectID, sessionID, now, s.handleTTL)
	if err != nil {
		return Handle{}, err
	}
	return Handle{
		Value:          value,
		SessionID:      sessionID,
		AnonymousToken: s.NewAnonymousToken(),
		ExpiresAt:      now.Add(s.handleTTL),
	}, nil
}

// NewAnonymousToken returns a fresh guest identifier, e.g. after sign-out.
func (s *Service) NewAnonymousToken() string {
	return uuid.NewString()
}

// SessionID verifies a handle for projectID and returns the session it names.
func (s *Service) SessionID(_ context.Context, projectID, handle string) (string, error) {
	if handle == "" {
		return "", ErrInvalidToken
	}
	claims, err := s.tokens.Validate(handle, s.now())
	if err != nil || claims.ProjectID != projectID || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
