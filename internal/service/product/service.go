// Package product exposes the read-only catalog shoppers pick cart lines from.
package product

import (
	"context"

	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
	productrepo "storefront-checkout/internal/repository/product"
)

type Service struct {
	repo   productrepo.Repository
	logger *zap.SugaredLogger
}

func New(repo productrepo.Repository, logger *zap.SugaredLogger) *Service {
	return &Service{repo: repo, logger: logging.OrNop(logger)}
}

func (s *Service) List(ctx context.Context, projectID string) ([]domain.Product, error) {
	products, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, domain.Transient("product.list", err)
	}
	return products, nil
}

// Get returns a product with its declared price tiers.
func (s *Service) Get(ctx context.Context, projectID, id string) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, domain.Transient("product.get", err)
	}
	return p, nil
}
