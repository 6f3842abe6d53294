// Package reconcile repairs partially written checkouts and expires stale orders.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	orderrepo "storefront-checkout/internal/repository/order"
)

const (
	// FailureWindow bounds how far back CleanupAfterFailure looks for half-created orders.
	FailureWindow = 10 * time.Minute
	expireBatch   = 100
)

type Sweeper struct {
	orders orderrepo.Repository
	window time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

func New(orders orderrepo.Repository, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		orders: orders,
		window: FailureWindow,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}
}

// CancelTriple moves an order, its checkout session and its invoice to their terminal
// cancelled states together. Calling it again on a cancelled triple changes nothing.
func (s *Sweeper) CancelTriple(ctx context.Context, orderID string, reason domain.CheckoutStatus) (bool, error) {
	changed, err := s.orders.CancelTriple(ctx, orderID, reason)
	if err != nil {
		return false, domain.Transient("reconcile.cancel", err)
	}
	if changed {
		s.logger.Infow("reconcile: cancelled order", "order_id", orderID, "reason", reason)
	}
	return changed, nil
}

// DeleteOrphans removes checkout sessions that never got an order.
func (s *Sweeper) DeleteOrphans(ctx context.Context, projectID string, owner domain.Identity) (int64, error) {
	n, err := s.orders.DeleteOrphanCheckouts(ctx, projectID, owner)
	if err != nil {
		return 0, domain.Transient("reconcile.orphans", err)
	}
	if n > 0 {
		s.logger.Infow("reconcile: deleted orphan checkouts", "project_id", projectID, "owner", owner.Key(), "count", n)
	}
	return n, nil
}

// CleanupAfterFailure fails any order the owner opened within the failure window and then
// deletes orphaned checkout sessions. Both steps run even if the first one errors.
func (s *Sweeper) CleanupAfterFailure(ctx context.Context, projectID string, owner domain.Identity) error {
	var errs error
	failed, err := s.orders.FailRecentOpen(ctx, projectID, owner, s.now().Add(-s.window))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("fail recent orders: %w", err))
	} else if failed > 0 {
		s.logger.Warnw("reconcile: failed half-created orders", "project_id", projectID, "owner", owner.Key(), "count", failed)
	}
	if _, err := s.orders.DeleteOrphanCheckouts(ctx, projectID, owner); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("delete orphan checkouts: %w", err))
	}
	return errs
}

// ExpireReport summarises one ExpireStale run.
type ExpireReport struct {
	Scanned   int
	Cancelled int
	Errors    int
}

// ExpireStale cancels every PENDING order of the project older than ttl.
func (s *Sweeper) ExpireStale(ctx context.Context, projectID string, ttl time.Duration) (ExpireReport, error) {
	var (
		report ExpireReport
		errs   error
	)
	cutoff := s.now().Add(-ttl)
	for {
		batch, err := s.orders.ListExpiredOpen(ctx, projectID, cutoff, expireBatch)
		if err != nil {
			return report, multierr.Append(errs, domain.Transient("reconcile.expire", err))
		}
		progressed := false
		for _, o := range batch {
			report.Scanned++
			changed, err := s.orders.CancelTriple(ctx, o.ID, domain.CheckoutExpired)
			if err != nil {
				report.Errors++
				errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", o.OrderNumber, err))
				continue
			}
			if changed {
				report.Cancelled++
				progressed = true
			}
		}
		if len(batch) < expireBatch || !progressed {
			break
		}
	}
	s.logger.Infow("reconcile: expiry sweep finished", "project_id", projectID,
		"scanned", report.Scanned, "cancelled", report.Cancelled, "errors", report.Errors)
	return report, errs
}
