// Package identity decides which owner a request acts for and moves a guest cart
// to the account exactly once when the shopper signs in.
package identity

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	cartrepo "storefront-checkout/internal/repository/cart"
	sessionrepo "storefront-checkout/internal/repository/session"
	"storefront-checkout/internal/service/anonymous"
)

type handleIssuer interface {
	Issue(ctx context.Context, projectID string) (anonymous.Handle, error)
	SessionID(ctx context.Context, projectID, handle string) (string, error)
	NewAnonymousToken() string
}

type cartMerger interface {
	MergeAnonymous(ctx context.Context, projectID, anonymousToken, accountID string) (cartrepo.MergeResult, error)
}

type MergeOutcome string

const (
	MergeMerged      MergeOutcome = "merged"
	MergeNoGuestCart MergeOutcome = "no_guest_cart"
	// MergeNoop means there was no guest token left to merge.
	MergeNoop MergeOutcome = "noop"
	// MergeInFlight means the same transition is already being merged.
	MergeInFlight MergeOutcome = "in_flight"
	MergeFailed   MergeOutcome = "failed"
)

// Request carries what the transport knows about the caller.
type Request struct {
	ProjectID     string
	SessionHandle string
	// AccountID is set when the caller presented a valid customer token.
	AccountID string
}

type Resolution struct {
	Identity      domain.Identity
	SessionHandle string
	// Minted is true when a new guest session was created for this request.
	Minted bool
	// PendingMerge reports a guest token still waiting to be merged into the account.
	PendingMerge bool
}

type MergeResult struct {
	Outcome  MergeOutcome
	Identity domain.Identity
	// Cart is the account cart after a confirmed merge.
	Cart *domain.Cart
}

type Service struct {
	sessions sessionrepo.Repository
	handles  handleIssuer
	carts    cartMerger
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(sessions sessionrepo.Repository, handles handleIssuer, carts cartMerger, logger *zap.SugaredLogger) *Service {
	return &Service{
		sessions: sessions,
		handles:  handles,
		carts:    carts,
		logger:   logging.OrNop(logger),
		inflight: make(map[string]struct{}),
	}
}

// ResolveOwner picks the owner for a request: a present account wins, then the
// session's guest token, and otherwise a new guest session is minted and stored.
func (s *Service) ResolveOwner(ctx context.Context, req Request) (Resolution, error) {
	sess, err := s.lookupSession(ctx, req.ProjectID, req.SessionHandle)
	if err != nil {
		return Resolution{}, err
	}

	if req.AccountID != "" {
		res := Resolution{Identity: domain.Authenticated(req.AccountID)}
		if sess != nil {
			res.SessionHandle = req.SessionHandle
			res.PendingMerge = sess.AnonymousToken != nil && *sess.AnonymousToken != "" &&
				(sess.CustomerID == nil || *sess.CustomerID == req.AccountID)
		}
		return res, nil
	}

	if sess != nil {
		if sess.AnonymousToken != nil && *sess.AnonymousToken != "" {
			return Resolution{Identity: domain.Anonymous(*sess.AnonymousToken), SessionHandle: req.SessionHandle}, nil
		}
		// The session belonged to an account whose credentials are gone; continue as a new guest.
		updated, err := s.sessions.ResetAnonymous(ctx, req.ProjectID, sess.ID, s.handles.NewAnonymousToken())
		if err != nil {
			return Resolution{}, domain.Transient("identity.resolve", err)
		}
		return Resolution{Identity: domain.Anonymous(*updated.AnonymousToken), SessionHandle: req.SessionHandle}, nil
	}

	return s.mint(ctx, req.ProjectID)
}

// MergeOnLogin moves the session's guest cart into the account. The guest token is captured
// before any write and cleared only after the merge is confirmed; on failure the session still
// switches to the account but keeps the token so the merge can be retried.
func (s *Service) MergeOnLogin(ctx context.Context, projectID, sessionHandle, accountID string) (MergeResult, error) {
	account := domain.Authenticated(accountID)
	if accountID == "" {
		return MergeResult{}, errors.New("identity: account id required")
	}

	sess, err := s.lookupSession(ctx, projectID, sessionHandle)
	if err != nil {
		return MergeResult{}, err
	}
	if sess == nil {
		return MergeResult{Outcome: MergeNoop, Identity: account}, nil
	}

	key := projectID + "|" + sess.ID + "|" + accountID
	if !s.begin(key) {
		s.logger.Debugw("identity: merge already in flight", "project_id", projectID, "session_id", sess.ID)
		return MergeResult{Outcome: MergeInFlight, Identity: account}, nil
	}
	defer s.end(key)

	// Re-read under the guard; a merge that finished a moment ago has cleared the token.
	sess, err = s.sessions.Get(ctx, projectID, sess.ID)
	if err != nil {
		return MergeResult{}, domain.Transient("identity.merge", err)
	}
	var token string
	if sess.AnonymousToken != nil {
		token = *sess.AnonymousToken
	}
	if token == "" {
		if sess.CustomerID == nil || *sess.CustomerID != accountID {
			if _, err := s.sessions.AttachAccount(ctx, projectID, sess.ID, accountID); err != nil {
				return MergeResult{}, domain.Transient("identity.merge", err)
			}
		}
		return MergeResult{Outcome: MergeNoop, Identity: account}, nil
	}

	merged, err := s.carts.MergeAnonymous(ctx, projectID, token, accountID)
	if err != nil {
		s.logger.Warnw("identity: guest cart merge failed", "project_id", projectID, "session_id", sess.ID, "customer_id", accountID, "err", err)
		if _, attachErr := s.sessions.AttachAccount(ctx, projectID, sess.ID, accountID); attachErr != nil {
			s.logger.Errorw("identity: attach account after failed merge", "session_id", sess.ID, "err", attachErr)
		}
		return MergeResult{Outcome: MergeFailed, Identity: account}, &domain.MergeFailure{AnonymousToken: token, Err: err}
	}

	cleared, err := s.sessions.CompleteMerge(ctx, projectID, sess.ID, accountID, token)
	if err != nil {
		// The carts moved but the token is still set; a retry finds no guest cart and clears it.
		return MergeResult{Outcome: MergeFailed, Identity: account}, &domain.MergeFailure{AnonymousToken: token, Err: err}
	}
	if !cleared {
		s.logger.Warnw("identity: guest token changed during merge", "project_id", projectID, "session_id", sess.ID)
	}

	outcome := MergeMerged
	if merged.Outcome == cartrepo.MergeNoGuestCart {
		outcome = MergeNoGuestCart
	}
	s.logger.Infow("identity: merged guest cart", "project_id", projectID, "session_id", sess.ID, "customer_id", accountID, "outcome", outcome)
	return MergeResult{Outcome: outcome, Identity: account, Cart: merged.Cart}, nil
}

// SignOut gives the session a fresh guest token, or mints a new session when there is none.
func (s *Service) SignOut(ctx context.Context, projectID, sessionHandle string) (Resolution, error) {
	sess, err := s.lookupSession(ctx, projectID, sessionHandle)
	if err != nil {
		return Resolution{}, err
	}
	if sess == nil {
		return s.mint(ctx, projectID)
	}
	updated, err := s.sessions.ResetAnonymous(ctx, projectID, sess.ID, s.handles.NewAnonymousToken())
	if err != nil {
		return Resolution{}, domain.Transient("identity.sign_out", err)
	}
	return Resolution{Identity: domain.Anonymous(*updated.AnonymousToken), SessionHandle: sessionHandle}, nil
}

func (s *Service) mint(ctx context.Context, projectID string) (Resolution, error) {
	h, err := s.handles.Issue(ctx, projectID)
	if err != nil {
		return Resolution{}, err
	}
	token := h.AnonymousToken
	if _, err := s.sessions.Create(ctx, domain.Session{ID: h.SessionID, ProjectID: projectID, AnonymousToken: &token}); err != nil {
		return Resolution{}, domain.Transient("identity.mint", err)
	}
	s.logger.Debugw("identity: minted guest session", "project_id", projectID, "session_id", h.SessionID)
	return Resolution{Identity: domain.Anonymous(token), SessionHandle: h.Value, Minted: true}, nil
}

// lookupSession returns nil for a missing, forged or expired handle.
func (s *Service) lookupSession(ctx context.Context, projectID, handle string) (*domain.Session, error) {
	if handle == "" {
		return nil, nil
	}
	id, err := s.handles.SessionID(ctx, projectID, handle)
	if err != nil {
		return nil, nil
	}
	sess, err := s.sessions.Get(ctx, projectID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("identity.session", err)
	}
	return sess, nil
}

func (s *Service) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) end(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}
