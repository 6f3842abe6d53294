package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
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

const sessionColumns = `id::text, project_id::text, anonymous_token, customer_id::text, created_at, updated_at`

func (r *postgresRepo) Get(ctx context.Context, projectID, id string) (*domain.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM identity_sessions
WHERE project_id = $1 AND id = $2
`, projectID, id))
}

func (r *postgresRepo) Create(ctx context.Context, s domain.Session) (*domain.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
INSERT INTO identity_sessions (id, project_id, anonymous_token, customer_id)
VALUES ($1, $2, $3, $4)
RETURNING `+sessionColumns,
		s.ID, s.ProjectID, s.AnonymousToken, s.CustomerID))
}

func (r *postgresRepo) ResetAnonymous(ctx context.Context, projectID, id, anonymousToken string) (*domain.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
UPDATE identity_sessions
SET anonymous_token = $3,
    customer_id = NULL,
    updated_at = now()
WHERE project_id = $1 AND id = $2
RETURNING `+sessionColumns,
		projectID, id, anonymousToken))
}

func (r *postgresRepo) AttachAccount(ctx context.Context, projectID, id, customerID string) (*domain.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
UPDATE identity_sessions
SET customer_id = $3,
    updated_at = now()
WHERE project_id = $1 AND id = $2
RETURNING `+sessionColumns,
		projectID, id, customerID))
}

func (r *postgresRepo) CompleteMerge(ctx context.Context, projectID, id, customerID, anonymousToken string) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE identity_sessions
SET customer_id = $3,
    anonymous_token = NULL,
    updated_at = now()
WHERE project_id = $1 AND id = $2 AND anonymous_token = $4
`, projectID, id, customerID, anonymousToken)
	if err != nil {
		r.logger.Warnw("session repo: complete merge", "session_id", id, "err", err)
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.ProjectID, &s.AnonymousToken, &s.CustomerID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
