package product

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

const productColumns = `id::text, project_id::text, key, sku, name, COALESCE(description, ''), price_cents, currency, weight_grams, attributes, created_at`

func (r *postgresRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+productColumns+`
FROM products
WHERE project_id = $1
ORDER BY created_at DESC
`, projectID)
	if err != nil {
		r.logger.Warnw("product repo: list", "project_id", projectID, "err", err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		tiers, err := r.tiers(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Tiers = tiers
	}
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
SELECT `+productColumns+`
FROM products
WHERE project_id = $1 AND id = $2
`, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Warnw("product repo: get", "project_id", projectID, "product_id", id, "err", err)
		return nil, err
	}
	p.Tiers, err = r.tiers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert writes the product keyed by (project, key) and replaces its tiers.
func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	attrs := product.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	var out *domain.Product
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO products (project_id, key, sku, name, description, price_cents, currency, weight_grams, attributes)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, COALESCE($9, '{}'::jsonb))
ON CONFLICT (project_id, key) DO UPDATE SET
    sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    weight_grams = EXCLUDED.weight_grams,
    attributes = EXCLUDED.attributes
RETURNING `+productColumns,
			product.ProjectID, product.Key, product.SKU, product.Name, product.Description,
			product.PriceCents, product.Currency, product.WeightGrams, attrs)
		p, err := scanProduct(row)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", product.Key, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM product_price_tiers WHERE product_id = $1`, p.ID); err != nil {
			return err
		}
		for _, t := range product.Tiers {
			if _, err := tx.Exec(ctx, `
INSERT INTO product_price_tiers (product_id, key, name, min_quantity, price_cents)
VALUES ($1, $2, $3, $4, $5)
`, p.ID, t.Key, t.Name, t.MinQuantity, t.PriceCents); err != nil {
				return fmt.Errorf("insert tier %s: %w", t.Key, err)
			}
		}
		p.Tiers = product.Tiers
		out = p
		return nil
	})
	if err != nil {
		r.logger.Warnw("product repo: upsert", "project_id", product.ProjectID, "key", product.Key, "err", err)
		return nil, err
	}
	r.logger.Debugw("product repo: upserted", "project_id", out.ProjectID, "key", out.Key, "product_id", out.ID)
	return out, nil
}

func (r *postgresRepo) tiers(ctx context.Context, productID string) ([]domain.PriceTier, error) {
	rows, err := r.pool.Query(ctx, `
SELECT key, name, min_quantity, price_cents
FROM product_price_tiers
WHERE product_id = $1
ORDER BY min_quantity ASC, key ASC
`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PriceTier
	for rows.Next() {
		var t domain.PriceTier
		if err := rows.Scan(&t.Key, &t.Name, &t.MinQuantity, &t.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Key, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.WeightGrams, &p.Attributes, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
