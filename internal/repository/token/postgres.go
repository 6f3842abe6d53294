package token

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Create(ctx context.Context, token Token) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO tokens (token, project_id, customer_id, kind, expires_at)
VALUES ($1, $2, $3, $4, $5)
`, token.Token, token.ProjectID, token.CustomerID, token.Kind, token.ExpiresAt)
	if _, ok := db.UniqueViolation(err); ok {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *postgresRepo) Get(ctx context.Context, token string) (*Token, error) {
	var out Token
	err := r.pool.QueryRow(ctx, `
SELECT token, project_id::text, customer_id::text, kind, expires_at, created_at
FROM tokens
WHERE token = $1
`, token).Scan(&out.Token, &out.ProjectID, &out.CustomerID, &out.Kind, &out.ExpiresAt, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *postgresRepo) Delete(ctx context.Context, token string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
