package customer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

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

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.SugaredLogger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

const customerColumns = `id::text, project_id::text, email, password_hash, first_name, last_name, default_shipping, created_at`

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	var shipping []byte
	if c.DefaultShipping != nil {
		var err error
		if shipping, err = json.Marshal(c.DefaultShipping); err != nil {
			return nil, err
		}
	}
	out, err := r.scanCustomer(r.pool.QueryRow(ctx, `
INSERT INTO customers (project_id, email, password_hash, first_name, last_name, default_shipping)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+customerColumns,
		c.ProjectID, strings.ToLower(c.Email), c.PasswordHash, c.FirstName, c.LastName, shipping))
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error) {
	return r.scanCustomer(r.pool.QueryRow(ctx, `
SELECT `+customerColumns+`
FROM customers
WHERE project_id = $1 AND lower(email) = lower($2)
LIMIT 1
`, projectID, email))
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error) {
	return r.scanCustomer(r.pool.QueryRow(ctx, `
SELECT `+customerColumns+`
FROM customers
WHERE project_id = $1 AND id = $2
LIMIT 1
`, projectID, id))
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var shipping []byte
	err := row.Scan(&c.ID, &c.ProjectID, &c.Email, &c.PasswordHash, &c.FirstName, &c.LastName, &shipping, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(shipping) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(shipping, &addr); err != nil {
			r.logger.Warnw("customer repo: decode shipping address", "customer_id", c.ID, "err", err)
			return nil, err
		}
		c.DefaultShipping = &addr
	}
	return &c, nil
}
