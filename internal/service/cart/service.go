// Package cart owns the cart aggregate: every mutation takes the resolved owner
// explicitly, writes through to Postgres and mirrors into the local cart cache.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"storefront-checkout/internal/cartcache"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	cartrepo "storefront-checkout/internal/repository/cart"
)

type productLookup interface {
	GetByID(ctx context.Context, projectID, id string) (*domain.Product, error)
}

// Cache is the local resilience copy of carts.
type Cache interface {
	Load(ctx context.Context, key string) (*domain.Cart, error)
	Save(ctx context.Context, key string, cart *domain.Cart) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	repo     cartrepo.Repository
	products productLookup
	cache    Cache
	currency string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func New(repo cartrepo.Repository, products productLookup, cache Cache, currency string, logger *zap.SugaredLogger) *Service {
	if cache == nil {
		cache = nopCache{}
	}
	return &Service{
		repo:     repo,
		products: products,
		cache:    cache,
		currency: currency,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// AddLineInput selects a price: a fixed unit price that must equal the catalog price, a product tier,
// or neither to use the product price.
type AddLineInput struct {
	ProductID       string
	Quantity        int
	FixedPriceCents *int64
	TierKey         *string
}

// Get returns the owner's active cart, or an empty cart when none exists yet.
func (s *Service) Get(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, errors.New("cart: invalid owner")
	}
	if owner.IsAnonymous() {
		synced, err := s.syncLocal(ctx, projectID, owner)
		if err != nil {
			s.logger.Warnw("cart: local lines not replayed, serving local copy", "project_id", projectID, "owner", owner.Key(), "err", err)
			return s.loadLocal(ctx, projectID, owner, "cart.get")
		}
		if synced != nil {
			return synced, nil
		}
	}

	cart, err := s.repo.GetActive(ctx, projectID, owner)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return s.emptyCart(projectID, owner), nil
	case owner.IsAnonymous():
		s.logger.Warnw("cart: read failed, serving local copy", "project_id", projectID, "owner", owner.Key(), "err", err)
		return s.loadLocal(ctx, projectID, owner, "cart.get")
	default:
		return nil, domain.Transient("cart.get", err)
	}
	s.mirror(ctx, projectID, owner, cart)
	return cart, nil
}

func (s *Service) AddLine(ctx context.Context, projectID string, owner domain.Identity, in AddLineInput) (*domain.Cart, error) {
	if in.Quantity <= 0 {
		return nil, domain.NewValidationError(domain.InvalidLine, "quantity must be positive")
	}
	if in.FixedPriceCents != nil && in.TierKey != nil && *in.TierKey != "" {
		return nil, domain.NewValidationError(domain.UnresolvablePrice, "line %s sets both a fixed price and a tier", in.ProductID)
	}

	product, err := s.products.GetByID(ctx, projectID, in.ProductID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.NewValidationError(domain.InvalidLine, "unknown product %s", in.ProductID)
	case owner.IsAnonymous() && in.FixedPriceCents != nil:
		// The catalog is unreachable; the price is checked against it again on replay and at checkout.
		line := domain.CartLine{ID: uuid.NewString(), ProductID: in.ProductID, Quantity: in.Quantity, FixedPriceCents: in.FixedPriceCents, AddedAt: s.now()}
		if err := line.ValidatePrice(); err != nil {
			return nil, err
		}
		s.logger.Warnw("cart: catalog unavailable, adding line locally", "project_id", projectID, "owner", owner.Key(), "err", err)
		return s.mutateLocal(ctx, projectID, owner, "cart.add_line", func(c *domain.Cart) error {
			c.AddLine(line)
			return nil
		})
	default:
		return nil, domain.Transient("cart.add_line", err)
	}

	line, err := s.buildLine(product, in)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, projectID, owner, "cart.add_line", true,
		func(cartID string) error { return s.repo.AddLine(ctx, cartID, line) },
		func(c *domain.Cart) error {
			c.AddLine(line)
			return nil
		},
	)
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, projectID string, owner domain.Identity, lineID string, quantity int) (*domain.Cart, error) {
	if quantity < 0 {
		return nil, domain.NewValidationError(domain.InvalidLine, "quantity must not be negative")
	}
	return s.mutate(ctx, projectID, owner, "cart.set_quantity", false,
		func(cartID string) error { return s.repo.SetLineQuantity(ctx, cartID, lineID, quantity) },
		func(c *domain.Cart) error { return c.SetQuantity(lineID, quantity) },
	)
}

func (s *Service) RemoveLine(ctx context.Context, projectID string, owner domain.Identity, lineID string) (*domain.Cart, error) {
	return s.mutate(ctx, projectID, owner, "cart.remove_line", false,
		func(cartID string) error { return s.repo.RemoveLine(ctx, cartID, lineID) },
		func(c *domain.Cart) error { return c.RemoveLine(lineID) },
	)
}

func (s *Service) Clear(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error) {
	cart, err := s.mutate(ctx, projectID, owner, "cart.clear", false,
		func(cartID string) error { return s.repo.Clear(ctx, cartID) },
		func(c *domain.Cart) error {
			c.Clear()
			return nil
		},
	)
	if errors.Is(err, domain.ErrNotFound) {
		return s.emptyCart(projectID, owner), nil
	}
	return cart, err
}

// MergeAnonymous folds the guest cart into the account cart and moves the cache entry with it.
func (s *Service) MergeAnonymous(ctx context.Context, projectID, anonymousToken, accountID string) (cartrepo.MergeResult, error) {
	res, err := s.repo.MergeAnonymous(ctx, projectID, anonymousToken, accountID)
	if err != nil {
		return cartrepo.MergeResult{}, domain.Transient("cart.merge", err)
	}
	if err := s.cache.Delete(ctx, cartcache.Key(projectID, domain.Anonymous(anonymousToken))); err != nil {
		s.logger.Warnw("cart: drop guest cache entry", "project_id", projectID, "err", err)
	}
	if res.Cart != nil {
		s.mirror(ctx, projectID, domain.Authenticated(accountID), res.Cart)
	}
	return res, nil
}

// mutate applies a durable change and re-reads the cart so totals come from the stored lines.
// Anonymous owners fall back to the local cache when storage fails; authenticated owners get the error.
func (s *Service) mutate(
	ctx context.Context,
	projectID string,
	owner domain.Identity,
	op string,
	create bool,
	durable func(cartID string) error,
	local func(*domain.Cart) error,
) (*domain.Cart, error) {
	if !owner.Valid() {
		return nil, errors.New("cart: invalid owner")
	}

	if owner.IsAnonymous() {
		if _, err := s.syncLocal(ctx, projectID, owner); err != nil {
			s.logger.Warnw("cart: local lines not replayed, mutating local copy", "op", op, "project_id", projectID, "owner", owner.Key(), "err", err)
			return s.mutateLocal(ctx, projectID, owner, op, local)
		}
	}

	cart, err := s.writeDurable(ctx, projectID, owner, create, durable)
	if err == nil {
		s.mirror(ctx, projectID, owner, cart)
		return cart, nil
	}
	if !isStorageFailure(err) {
		return nil, err
	}
	if !owner.IsAnonymous() {
		return nil, domain.Transient(op, err)
	}

	s.logger.Warnw("cart: durable write failed, mutating local copy", "op", op, "project_id", projectID, "owner", owner.Key(), "err", err)
	return s.mutateLocal(ctx, projectID, owner, op, local)
}

func (s *Service) writeDurable(ctx context.Context, projectID string, owner domain.Identity, create bool, durable func(cartID string) error) (*domain.Cart, error) {
	var (
		cart *domain.Cart
		err  error
	)
	if create {
		cart, err = s.repo.GetOrCreateActive(ctx, projectID, owner, s.currency)
	} else {
		cart, err = s.repo.GetActive(ctx, projectID, owner)
	}
	if err != nil {
		return nil, err
	}
	if err := durable(cart.ID); err != nil {
		return nil, err
	}
	return s.repo.GetActive(ctx, projectID, owner)
}

func (s *Service) mutateLocal(ctx context.Context, projectID string, owner domain.Identity, op string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	key := cartcache.Key(projectID, owner)
	cart, err := s.cache.Load(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		cart = s.emptyCart(projectID, owner)
	default:
		return nil, domain.Transient(op, err)
	}

	if err := fn(cart); err != nil {
		return nil, err
	}
	cart.ProjectID = projectID
	cart.LocalOnly = true
	cart.UpdatedAt = s.now()
	cart.Recompute()

	if err := s.cache.Save(ctx, key, cart); err != nil {
		return nil, domain.Transient(op, err)
	}
	return cart, nil
}

func (s *Service) loadLocal(ctx context.Context, projectID string, owner domain.Identity, op string) (*domain.Cart, error) {
	cart, err := s.cache.Load(ctx, cartcache.Key(projectID, owner))
	switch {
	case err == nil:
		cart.ProjectID = projectID
		cart.LocalOnly = true
		cart.Recompute()
		return cart, nil
	case errors.Is(err, domain.ErrNotFound):
		empty := s.emptyCart(projectID, owner)
		empty.LocalOnly = true
		return empty, nil
	default:
		return nil, domain.Transient(op, err)
	}
}

// syncLocal replays a local-only cart into storage. The local copy replaces the stored lines
// in one transaction and stays authoritative until that commits. It returns the stored cart
// after a replay, or nil when nothing was pending.
func (s *Service) syncLocal(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error) {
	key := cartcache.Key(projectID, owner)
	local, err := s.cache.Load(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !local.LocalOnly {
		return nil, nil
	}

	lines, err := s.revalidate(ctx, projectID, owner, local.Lines)
	if err != nil {
		return nil, err
	}
	target, err := s.repo.GetOrCreateActive(ctx, projectID, owner, s.currency)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceLines(ctx, target.ID, lines); err != nil {
		return nil, err
	}
	synced, err := s.repo.GetActive(ctx, projectID, owner)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, key, synced); err != nil {
		s.logger.Warnw("cart: store replayed cart locally", "project_id", projectID, "owner", owner.Key(), "err", err)
	}
	s.logger.Infow("cart: replayed local cart", "project_id", projectID, "owner", owner.Key(), "cart_id", synced.ID, "lines", len(lines))
	return synced, nil
}

// revalidate re-prices local lines from the catalog. Lines whose product or price selection
// no longer exists are dropped; any other lookup failure aborts the replay.
func (s *Service) revalidate(ctx context.Context, projectID string, owner domain.Identity, lines []domain.CartLine) ([]domain.CartLine, error) {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		product, err := s.products.GetByID(ctx, projectID, line.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warnw("cart: dropping local line for removed product", "project_id", projectID, "owner", owner.Key(), "product_id", line.ProductID)
			continue
		}
		if err != nil {
			return nil, err
		}

		line.ProductName = product.Name
		switch {
		case line.TierKey != nil && *line.TierKey != "":
			tier, ok := product.Tier(*line.TierKey)
			if !ok {
				s.logger.Warnw("cart: dropping local line for removed tier", "project_id", projectID, "product_id", line.ProductID, "tier", *line.TierKey)
				continue
			}
			price := tier.PriceCents
			line.TierPriceCents = &price
		case product.PriceCents != nil:
			price := *product.PriceCents
			line.FixedPriceCents = &price
		default:
			s.logger.Warnw("cart: dropping local line without catalog price", "project_id", projectID, "product_id", line.ProductID)
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// mirror copies a stored cart into the cache. A local-only entry is never overwritten;
// only a committed replay replaces it.
func (s *Service) mirror(ctx context.Context, projectID string, owner domain.Identity, cart *domain.Cart) {
	key := cartcache.Key(projectID, owner)
	if existing, err := s.cache.Load(ctx, key); err == nil && existing.LocalOnly {
		s.logger.Debugw("cart: keeping local-only cache entry", "project_id", projectID, "owner", owner.Key())
		return
	}
	if err := s.cache.Save(ctx, key, cart); err != nil {
		s.logger.Warnw("cart: mirror to local cache", "project_id", projectID, "owner", owner.Key(), "err", err)
	}
}

func (s *Service) emptyCart(projectID string, owner domain.Identity) *domain.Cart {
	now := s.now()
	return &domain.Cart{
		ProjectID: projectID,
		Owner:     owner,
		Currency:  s.currency,
		State:     domain.CartStateActive,
		Lines:     []domain.CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// buildLine resolves the price selection against the product at write time.
func (s *Service) buildLine(product *domain.Product, in AddLineInput) (domain.CartLine, error) {
	line := domain.CartLine{
		ID:          uuid.NewString(),
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    in.Quantity,
		AddedAt:     s.now(),
	}
	switch {
	case in.TierKey != nil && *in.TierKey != "":
		tier, ok := product.Tier(*in.TierKey)
		if !ok {
			return domain.CartLine{}, domain.NewValidationError(domain.UnresolvablePrice, "product %s has no tier %q", product.ID, *in.TierKey)
		}
		key, price := tier.Key, tier.PriceCents
		line.TierKey = &key
		line.TierPriceCents = &price
	case in.FixedPriceCents != nil:
		if product.PriceCents == nil {
			return domain.CartLine{}, domain.NewValidationError(domain.UnresolvablePrice, "product %s has no catalog price; select a tier", product.ID)
		}
		if *in.FixedPriceCents != *product.PriceCents {
			return domain.CartLine{}, domain.NewValidationError(domain.UnresolvablePrice,
				"price %d does not match catalog price %d for product %s", *in.FixedPriceCents, *product.PriceCents, product.ID)
		}
		price := *product.PriceCents
		line.FixedPriceCents = &price
	case product.PriceCents != nil:
		price := *product.PriceCents
		line.FixedPriceCents = &price
	default:
		return domain.CartLine{}, domain.NewValidationError(domain.UnresolvablePrice, "product %s has no price", product.ID)
	}
	if err := line.ValidatePrice(); err != nil {
		return domain.CartLine{}, err
	}
	return line, nil
}

// isStorageFailure separates backend failures from domain outcomes that must reach the caller as-is.
func isStorageFailure(err error) bool {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyExists) {
		return false
	}
	var ve *domain.ValidationError
	return !errors.As(err, &ve)
}

type nopCache struct{}

func (nopCache) Load(context.Context, string) (*domain.Cart, error) { return nil, domain.ErrNotFound }
func (nopCache) Save(context.Context, string, *domain.Cart) error   { return nil }
func (nopCache) Delete(context.Context, string) error               { return nil }
