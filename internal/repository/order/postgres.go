package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"storefront-checkout/internal/db"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

const openOrderIndex = "orders_one_open_per_owner"

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.SugaredLogger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger)}
}

const orderColumns = `id::text, project_id::text, owner_kind, owner_id, checkout_session_id::text, order_number, status,
       payment_status, currency, subtotal_cents, shipping_fee_cents, discount_cents, total_cents, weight_grams,
       payment_reference, contact_email, created_at, updated_at`

const checkoutColumns = `id::text, project_id::text, owner_kind, owner_id, order_id::text, status, payment_status,
       snapshot, shipping_address, billing_address, expires_at, created_at`

const invoiceColumns = `id::text, order_id::text, status, currency, total_cents, payment_reference, created_at`

func (r *postgresRepo) FindLatestOpen(ctx context.Context, projectID string, owner domain.Identity) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE project_id = $1 AND owner_kind = $2 AND owner_id = $3
  AND status IN ('PENDING', 'FAILED')
  AND payment_status IN ('UNPAID', 'FAILED')
ORDER BY created_at DESC
LIMIT 1
`, projectID, string(owner.Kind), owner.OwnerID()))
}

func (r *postgresRepo) GetByNumber(ctx context.Context, projectID, orderNumber string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE project_id = $1 AND order_number = $2
`, projectID, orderNumber))
}

func (r *postgresRepo) CreateTriple(ctx context.Context, in CreateTripleInput) (*Triple, error) {
	snapshot, shipping, billing, err := encodeCheckout(in)
	if err != nil {
		return nil, err
	}

	var out Triple
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		checkout, err := scanCheckout(tx.QueryRow(ctx, `
INSERT INTO checkout_sessions (project_id, owner_kind, owner_id, status, payment_status, snapshot, shipping_address, billing_address, expires_at)
VALUES ($1, $2, $3, 'COMPLETED', 'UNPAID', $4, $5, $6, $7)
RETURNING `+checkoutColumns,
			in.ProjectID, string(in.Owner.Kind), in.Owner.OwnerID(), snapshot, shipping, billing, in.ExpiresAt))
		if err != nil {
			return fmt.Errorf("insert checkout session: %w", err)
		}

		q := in.Quote
		order, err := scanOrder(tx.QueryRow(ctx, `
INSERT INTO orders (project_id, owner_kind, owner_id, checkout_session_id, order_number, status, payment_status,
                    currency, subtotal_cents, shipping_fee_cents, discount_cents, total_cents, weight_grams,
                    payment_reference, contact_email)
VALUES ($1, $2, $3, $4, $5, 'PENDING', 'UNPAID', $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+orderColumns,
			in.ProjectID, string(in.Owner.Kind), in.Owner.OwnerID(), checkout.ID, in.OrderNumber,
			q.Currency, q.SubtotalCents, q.ShippingFeeCents, q.DiscountCents, q.TotalCents, q.WeightGrams,
			in.PaymentReference, in.ContactEmail))
		if err != nil {
			if name, ok := db.UniqueViolation(err); ok {
				if name == openOrderIndex {
					return domain.ErrConflict
				}
				return fmt.Errorf("insert order: %w", domain.ErrAlreadyExists)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE checkout_sessions SET order_id = $1 WHERE id = $2`, order.ID, checkout.ID); err != nil {
			return fmt.Errorf("link checkout session: %w", err)
		}
		checkout.OrderID = &order.ID

		invoice, err := insertInvoice(ctx, tx, *order)
		if err != nil {
			return err
		}

		out = Triple{Checkout: *checkout, Order: *order, Invoice: *invoice}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			r.logger.Warnw("order repo: create triple", "project_id", in.ProjectID, "owner", in.Owner.Key(), "err", err)
		}
		return nil, err
	}
	r.logger.Infow("order repo: created order", "project_id", in.ProjectID, "owner", in.Owner.Key(),
		"order_id", out.Order.ID, "order_number", out.Order.OrderNumber)
	return &out, nil
}

func (r *postgresRepo) GetCheckoutByOrder(ctx context.Context, orderID string) (*domain.CheckoutSession, error) {
	return scanCheckout(r.pool.QueryRow(ctx, `
SELECT `+checkoutColumns+`
FROM checkout_sessions
WHERE order_id = $1
`, orderID))
}

// CreateCheckoutForOrder restores a missing checkout session and links it to the order.
func (r *postgresRepo) CreateCheckoutForOrder(ctx context.Context, order domain.Order, in CreateTripleInput) (*domain.CheckoutSession, error) {
	snapshot, shipping, billing, err := encodeCheckout(in)
	if err != nil {
		return nil, err
	}
	var out *domain.CheckoutSession
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		checkout, err := scanCheckout(tx.QueryRow(ctx, `
INSERT INTO checkout_sessions (project_id, owner_kind, owner_id, order_id, status, payment_status, snapshot, shipping_address, billing_address, expires_at)
VALUES ($1, $2, $3, $4, 'COMPLETED', $5, $6, $7, $8, $9)
RETURNING `+checkoutColumns,
			order.ProjectID, string(order.Owner.Kind), order.Owner.OwnerID(), order.ID, string(order.PaymentStatus),
			snapshot, shipping, billing, in.ExpiresAt))
		if err != nil {
			if _, ok := db.UniqueViolation(err); ok {
				return domain.ErrAlreadyExists
			}
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE orders SET checkout_session_id = $1, updated_at = now() WHERE id = $2`, checkout.ID, order.ID); err != nil {
			return err
		}
		out = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE order_id = $1
`, orderID))
}

func (r *postgresRepo) CreateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := insertInvoice(ctx, tx, order)
		out = inv
		return err
	})
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return out, nil
}

func (r *postgresRepo) CancelTriple(ctx context.Context, orderID string, checkoutStatus domain.CheckoutStatus) (bool, error) {
	var changed bool
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE orders
SET status = 'CANCELLED',
    updated_at = now()
WHERE id = $1 AND status IN ('PENDING', 'FAILED')
`, orderID)
		if err != nil {
			return err
		}
		changed = cmd.RowsAffected() == 1

		// Cascades run even when the order was already cancelled, repairing partial cancels.
		if _, err := tx.Exec(ctx, `
UPDATE checkout_sessions
SET status = $2
WHERE order_id = $1 AND status IN ('PENDING', 'COMPLETED')
`, orderID, string(checkoutStatus)); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE invoices
SET status = 'CANCELLED',
    updated_at = now()
WHERE order_id = $1 AND status = 'SENT'
`, orderID)
		return err
	})
	return changed, err
}

func (r *postgresRepo) DeleteOrphanCheckouts(ctx context.Context, projectID string, owner domain.Identity) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `
DELETE FROM checkout_sessions cs
WHERE cs.project_id = $1 AND cs.owner_kind = $2 AND cs.owner_id = $3
  AND cs.order_id IS NULL
  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.checkout_session_id = cs.id)
`, projectID, string(owner.Kind), owner.OwnerID())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresRepo) FailRecentOpen(ctx context.Context, projectID string, owner domain.Identity, since time.Time) (int64, error) {
	var failed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
UPDATE orders
SET status = 'FAILED',
    payment_status = 'FAILED',
    updated_at = now()
WHERE project_id = $1 AND owner_kind = $2 AND owner_id = $3
  AND status = 'PENDING' AND payment_status = 'UNPAID'
  AND created_at >= $4
RETURNING id::text
`, projectID, string(owner.Kind), owner.OwnerID(), since)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		failed = int64(len(ids))
		if len(ids) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
UPDATE checkout_sessions
SET status = 'FAILED', payment_status = 'FAILED'
WHERE order_id = ANY($1::uuid[]) AND status IN ('PENDING', 'COMPLETED')
`, ids)
		return err
	})
	return failed, err
}

func (r *postgresRepo) ListExpiredOpen(ctx context.Context, projectID string, cutoff time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE project_id = $1
  AND status = 'PENDING' AND payment_status IN ('UNPAID', 'FAILED')
  AND created_at <= $2
ORDER BY created_at ASC
LIMIT $3
`, projectID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *postgresRepo) MarkPaid(ctx context.Context, orderID string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE orders
SET status = 'CONFIRMED',
    payment_status = 'PAID',
    updated_at = now()
WHERE id = $1 AND status = 'PENDING' AND payment_status IN ('UNPAID', 'FAILED')
`, orderID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return domain.ErrConflict
		}
		if _, err := tx.Exec(ctx, `UPDATE checkout_sessions SET payment_status = 'PAID' WHERE order_id = $1`, orderID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE invoices SET status = 'PAID', updated_at = now() WHERE order_id = $1 AND status = 'SENT'`, orderID)
		return err
	})
}

func insertInvoice(ctx context.Context, tx pgx.Tx, order domain.Order) (*domain.Invoice, error) {
	inv, err := scanInvoice(tx.QueryRow(ctx, `
INSERT INTO invoices (order_id, status, currency, total_cents, payment_reference)
VALUES ($1, 'SENT', $2, $3, $4)
RETURNING `+invoiceColumns,
		order.ID, order.Currency, order.TotalCents, order.PaymentReference))
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

func encodeCheckout(in CreateTripleInput) (snapshot, shipping, billing []byte, err error) {
	if snapshot, err = json.Marshal(in.Quote); err != nil {
		return nil, nil, nil, err
	}
	if shipping, err = json.Marshal(in.Shipping); err != nil {
		return nil, nil, nil, err
	}
	if in.Billing != nil {
		if billing, err = json.Marshal(in.Billing); err != nil {
			return nil, nil, nil, err
		}
	}
	return snapshot, shipping, billing, nil
}

func identityFrom(kind, id string) (domain.Identity, error) {
	switch domain.IdentityKind(kind) {
	case domain.IdentityAnonymous:
		return domain.Anonymous(id), nil
	case domain.IdentityAuthenticated:
		return domain.Authenticated(id), nil
	}
	return domain.Identity{}, fmt.Errorf("unknown owner kind %q", kind)
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var ownerKind, ownerID, status, payment string
	err := row.Scan(
		&o.ID, &o.ProjectID, &ownerKind, &ownerID, &o.CheckoutSessionID, &o.OrderNumber, &status,
		&payment, &o.Currency, &o.SubtotalCents, &o.ShippingFeeCents, &o.DiscountCents, &o.TotalCents, &o.WeightGrams,
		&o.PaymentReference, &o.ContactEmail, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if o.Owner, err = identityFrom(ownerKind, ownerID); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(payment)
	return &o, nil
}

func scanCheckout(row pgx.Row) (*domain.CheckoutSession, error) {
	var c domain.CheckoutSession
	var ownerKind, ownerID, status, payment string
	var snapshot, shipping, billing []byte
	err := row.Scan(&c.ID, &c.ProjectID, &ownerKind, &ownerID, &c.OrderID, &status, &payment,
		&snapshot, &shipping, &billing, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if c.Owner, err = identityFrom(ownerKind, ownerID); err != nil {
		return nil, err
	}
	c.Status = domain.CheckoutStatus(status)
	c.PaymentStatus = domain.PaymentStatus(payment)
	if err := json.Unmarshal(snapshot, &c.Quote); err != nil {
		return nil, fmt.Errorf("decode checkout snapshot: %w", err)
	}
	if err := json.Unmarshal(shipping, &c.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(billing) > 0 {
		var addr domain.Address
		if err := json.Unmarshal(billing, &addr); err != nil {
			return nil, fmt.Errorf("decode billing address: %w", err)
		}
		c.Billing = &addr
	}
	return &c, nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.OrderID, &status, &inv.Currency, &inv.TotalCents, &inv.PaymentReference, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	inv.Status = domain.InvoiceStatus(status)
	return &inv, nil
}
