package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	custrepo "storefront-checkout/internal/repository/customer"
	tokenrepo "storefront-checkout/internal/repository/token"
)

var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the provided token could not be validated.
	ErrInvalidToken = errors.New("invalid token")
)

// Service handles customer signup, login and bearer token lookups.
type Service struct {
	repo        custrepo.Repository
	tokens      *tokenManager
	accessTTL   time.Duration
	refreshTTL  time.Duration
	passwordMin int
	logger      *zap.SugaredLogger
}

func New(repo custrepo.Repository, tokens tokenrepo.Repository, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:        repo,
		tokens:      newTokenManager(tokens),
		accessTTL:   48 * time.Hour,
		refreshTTL:  30 * 24 * time.Hour,
		passwordMin: 8,
		logger:      logging.OrNop(logger),
	}
}

type SignupInput struct {
	Email           string
	Password        string
	FirstName       string
	LastName        string
	DefaultShipping *domain.Address
}

// Tokens is the pair issued on login.
type Tokens struct {
	Access  string
	Refresh string
}

// Signup registers a new customer within the given project.
func (s *Service) Signup(ctx context.Context, projectID string, in SignupInput) (*domain.Customer, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, errors.New("email required")
	}
	password := strings.TrimSpace(in.Password)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.Create(ctx, domain.Customer{
		ProjectID:       projectID,
		Email:           email,
		PasswordHash:    string(hashed),
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		DefaultShipping: in.DefaultShipping,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("customer signed up", "project_id", projectID, "customer_id", c.ID)
	return c, nil
}

// Login validates credentials and returns issued tokens plus the customer.
func (s *Service) Login(ctx context.Context, projectID, email, password string) (*domain.Customer, Tokens, error) {
	password = strings.TrimSpace(password)
	c, err := s.repo.GetByEmail(ctx, projectID, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, Tokens{}, ErrInvalidCredentials
		}
		return nil, Tokens{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, Tokens{}, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, "access", s.accessTTL)
	if err != nil {
		return nil, Tokens{}, err
	}
	refresh, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, "refresh", s.refreshTTL)
	if err != nil {
		return nil, Tokens{}, err
	}
	return c, Tokens{Access: access, Refresh: refresh}, nil
}

// LookupByToken returns the customer bound to a valid access token.
func (s *Service) LookupByToken(ctx context.Context, projectID, token string) (*domain.Customer, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok || meta.ProjectID != projectID {
		return nil, ErrInvalidToken
	}
	c, err := s.repo.GetByID(ctx, projectID, meta.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return c, nil
}

// GetByID loads a customer for contact details on orders.
func (s *Service) GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error) {
	return s.repo.GetByID(ctx, projectID, id)
}

// Logout revokes an access token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, token); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// PruneTokens removes expired tokens.
func (s *Service) PruneTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.tokens.repo.DeleteExpired(ctx, now)
}

// AccessTTLSeconds exposes the access token lifetime in seconds.
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

func validatePassword(p string, min int) error {
	trimmed := strings.TrimSpace(p)
	if len(trimmed) < min {
		return fmt.Errorf("password must be at least %d characters", min)
	}
	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return errors.New("password must contain at least 1 uppercase letter, 1 lowercase letter, and 1 number")
	}
	return nil
}
