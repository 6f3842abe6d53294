package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.SugaredLogger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

const cartColumns = `id::text, project_id::text, customer_id::text, anonymous_token, currency, state, created_at, updated_at`

// ownerColumn picks the ownership column; values are never interpolated.
func ownerColumn(owner domain.Identity) (string, error) {
	switch owner.Kind {
	case domain.IdentityAuthenticated:
		return "customer_id", nil
	case domain.IdentityAnonymous:
		return "anonymous_token", nil
	}
	return "", fmt.Errorf("cart repo: invalid owner kind %q", owner.Kind)
}

func (r *postgresRepo) GetActive(ctx context.Context, projectID string, owner domain.Identity) (*domain.Cart, error) {
	col, err := ownerColumn(owner)
	if err != nil {
		return nil, err
	}
	return r.fetchCart(ctx, `
SELECT `+cartColumns+`
FROM carts
WHERE project_id = $1 AND `+col+` = $2 AND state = 'active'
`, projectID, owner.OwnerID())
}

// GetOrCreateActive returns the owner's active cart, creating it when absent.
// A concurrent creator wins via the partial unique index and the loser re-reads its row.
func (r *postgresRepo) GetOrCreateActive(ctx context.Context, projectID string, owner domain.Identity, currency string) (*domain.Cart, error) {
	const maxAttempts = 2

	var customerID, anonymousToken *string
	id := owner.OwnerID()
	if owner.IsAnonymous() {
		anonymousToken = &id
	} else {
		customerID = &id
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cart, err := r.GetActive(ctx, projectID, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}

		var cartID string
		err = r.pool.QueryRow(ctx, `
INSERT INTO carts (project_id, customer_id, anonymous_token, currency, state)
VALUES ($1, $2, $3, $4, 'active')
RETURNING id::text
`, projectID, customerID, anonymousToken, currency).Scan(&cartID)
		if err == nil {
			r.logger.Debugw("cart repo: created cart", "project_id", projectID, "owner", owner.Key(), "cart_id", cartID)
			return r.GetActive(ctx, projectID, owner)
		}
		if _, ok := db.UniqueViolation(err); !ok {
			return nil, err
		}
	}
	return nil, fmt.Errorf("cart repo: could not create cart for %s", owner.Key())
}

func (r *postgresRepo) AddLine(ctx context.Context, cartID string, line domain.CartLine) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertLine(ctx, tx, cartID, line); err != nil {
			return err
		}
		return touchCart(ctx, tx, cartID)
	})
}

// ReplaceLines swaps the cart's lines for lines in one transaction; on error the stored lines are untouched.
func (r *postgresRepo) ReplaceLines(ctx context.Context, cartID string, lines []domain.CartLine) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
			return err
		}
		for _, line := range lines {
			if err := insertLine(ctx, tx, cartID, line); err != nil {
				return fmt.Errorf("replace line %s: %w", line.ID, err)
			}
		}
		return touchCart(ctx, tx, cartID)
	})
}

func insertLine(ctx context.Context, tx pgx.Tx, cartID string, line domain.CartLine) error {
	_, err := tx.Exec(ctx, `
INSERT INTO cart_lines (id, cart_id, product_id, product_name, quantity, fixed_price_cents, tier_key, tier_price_cents, variant_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (cart_id, product_id, variant_key) DO UPDATE
SET quantity = cart_lines.quantity + EXCLUDED.quantity,
    fixed_price_cents = EXCLUDED.fixed_price_cents,
    tier_price_cents = EXCLUDED.tier_price_cents,
    product_name = EXCLUDED.product_name
`, line.ID, cartID, line.ProductID, line.ProductName, line.Quantity,
		line.FixedPriceCents, line.TierKey, line.TierPriceCents, line.VariantKey())
	return err
}

func (r *postgresRepo) SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error {
	if quantity <= 0 {
		return r.RemoveLine(ctx, cartID, lineID)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $1
WHERE id = $2 AND cart_id = $3
`, quantity, lineID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return touchCart(ctx, tx, cartID)
	})
}

func (r *postgresRepo) RemoveLine(ctx context.Context, cartID, lineID string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND cart_id = $2`, lineID, cartID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return touchCart(ctx, tx, cartID)
	})
}

func (r *postgresRepo) Clear(ctx context.Context, cartID string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
			return err
		}
		return touchCart(ctx, tx, cartID)
	})
}

// MergeAnonymous folds the guest cart into the account cart in one transaction.
// Re-running it after success finds no active guest cart and reports MergeNoGuestCart.
func (r *postgresRepo) MergeAnonymous(ctx context.Context, projectID, anonymousToken, customerID string) (MergeResult, error) {
	var outcome MergeOutcome
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var guestCartID string
		err := tx.QueryRow(ctx, `
SELECT id::text
FROM carts
WHERE project_id = $1 AND anonymous_token = $2 AND state = 'active'
FOR UPDATE
`, projectID, anonymousToken).Scan(&guestCartID)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome = MergeNoGuestCart
			return nil
		}
		if err != nil {
			return err
		}

		var accountCartID string
		err = tx.QueryRow(ctx, `
SELECT id::text
FROM carts
WHERE project_id = $1 AND customer_id = $2 AND state = 'active'
FOR UPDATE
`, projectID, customerID).Scan(&accountCartID)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := tx.Exec(ctx, `
UPDATE carts
SET customer_id = $1,
    anonymous_token = NULL,
    updated_at = now()
WHERE id = $2
`, customerID, guestCartID); err != nil {
				return err
			}
			outcome = MergeReassigned
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO cart_lines (id, cart_id, product_id, product_name, quantity, fixed_price_cents, tier_key, tier_price_cents, variant_key, created_at)
SELECT gen_random_uuid(), $1, product_id, product_name, quantity, fixed_price_cents, tier_key, tier_price_cents, variant_key, created_at
FROM cart_lines
WHERE cart_id = $2
ON CONFLICT (cart_id, product_id, variant_key) DO UPDATE
SET quantity = cart_lines.quantity + EXCLUDED.quantity
`, accountCartID, guestCartID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, guestCartID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE carts SET state = 'merged', updated_at = now() WHERE id = $1`, guestCartID); err != nil {
			return err
		}
		outcome = MergeCoalesced
		return touchCart(ctx, tx, accountCartID)
	})
	if err != nil {
		r.logger.Warnw("cart repo: merge", "project_id", projectID, "customer_id", customerID, "err", err)
		return MergeResult{}, err
	}

	res := MergeResult{Outcome: outcome}
	cart, err := r.GetActive(ctx, projectID, domain.Authenticated(customerID))
	switch {
	case err == nil:
		res.Cart = cart
	case !errors.Is(err, domain.ErrNotFound):
		return MergeResult{}, err
	}
	r.logger.Infow("cart repo: merged guest cart", "project_id", projectID, "customer_id", customerID, "outcome", outcome)
	return res, nil
}

func (r *postgresRepo) fetchCart(ctx context.Context, cartQuery string, args ...interface{}) (*domain.Cart, error) {
	var cart domain.Cart
	var customerID, anonymousToken *string
	err := r.pool.QueryRow(ctx, cartQuery, args...).Scan(
		&cart.ID,
		&cart.ProjectID,
		&customerID,
		&anonymousToken,
		&cart.Currency,
		&cart.State,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	switch {
	case customerID != nil:
		cart.Owner = domain.Authenticated(*customerID)
	case anonymousToken != nil:
		cart.Owner = domain.Anonymous(*anonymousToken)
	}

	rows, err := r.pool.Query(ctx, `
SELECT id::text, cart_id::text, product_id::text, product_name, quantity, fixed_price_cents, tier_key, tier_price_cents, created_at
FROM cart_lines
WHERE cart_id = $1
ORDER BY created_at ASC, id ASC
`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.ProductID,
			&line.ProductName,
			&line.Quantity,
			&line.FixedPriceCents,
			&line.TierKey,
			&line.TierPriceCents,
			&line.AddedAt,
		); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cart.Recompute()
	return &cart, nil
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	cmd, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
