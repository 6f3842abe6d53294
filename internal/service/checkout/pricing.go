package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/domain"
)

const defaultMaxLookups = 8

type productLookup interface {
	GetByID(ctx context.Context, projectID, id string) (*domain.Product, error)
}

// Pricer computes a quote from a cart snapshot. It never writes, and every unit price is
// re-resolved against the catalog.
type Pricer struct {
	products      productLookup
	validate      *validator.Validate
	currency      string
	shipping      config.Shipping
	maxConcurrent int
}

func NewPricer(products productLookup, storefront config.Storefront, maxConcurrent int) *Pricer {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxLookups
	}
	return &Pricer{
		products:      products,
		validate:      validator.New(),
		currency:      storefront.Currency,
		shipping:      storefront.Shipping,
		maxConcurrent: maxConcurrent,
	}
}

// Quote validates the cart and address and prices every line.
func (p *Pricer) Quote(ctx context.Context, projectID string, cart *domain.Cart, shipping domain.Address) (domain.Quote, error) {
	if cart == nil || cart.IsEmpty() {
		return domain.Quote{}, domain.NewValidationError(domain.InvalidCart, "cart is empty")
	}
	if err := p.checkAddress(shipping); err != nil {
		return domain.Quote{}, err
	}
	for _, l := range cart.Lines {
		if l.Quantity <= 0 {
			return domain.Quote{}, domain.NewValidationError(domain.InvalidCart, "line %s has quantity %d", l.ID, l.Quantity)
		}
		if l.FixedPriceCents != nil && l.TierKey != nil && *l.TierKey != "" {
			return domain.Quote{}, domain.NewValidationError(domain.UnresolvablePrice, "line %s sets both a fixed price and a tier", l.ID)
		}
	}

	lines := make([]domain.QuoteLine, len(cart.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for idx := range cart.Lines {
		idx := idx
		g.Go(func() error {
			line := cart.Lines[idx]
			product, err := p.products.GetByID(gctx, projectID, line.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewValidationError(domain.InvalidCart, "product %s is no longer available", line.ProductID)
			}
			if err != nil {
				return domain.Transient("checkout.quote", fmt.Errorf("product %s: %w", line.ProductID, err))
			}
			if product.WeightGrams <= 0 {
				return domain.NewValidationError(domain.InvalidCart, "product %s has no shipping weight", product.Key)
			}
			unit, source, err := resolvePrice(line, *product)
			if err != nil {
				return err
			}
			lines[idx] = domain.QuoteLine{
				ProductID:      product.ID,
				Name:           product.Name,
				Quantity:       line.Quantity,
				UnitPriceCents: unit,
				TotalCents:     unit * int64(line.Quantity),
				WeightGrams:    product.WeightGrams * line.Quantity,
				PriceSource:    source,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Quote{}, err
	}

	q := domain.Quote{Currency: cart.Currency, Lines: lines}
	if q.Currency == "" {
		q.Currency = p.currency
	}
	for _, l := range lines {
		q.SubtotalCents += l.TotalCents
		q.WeightGrams += l.WeightGrams
	}
	q.ShippingFeeCents = ShippingFee(p.shipping, q.WeightGrams, shipping.City)
	if p.shipping.FreeShippingThresholdCents > 0 && q.SubtotalCents >= p.shipping.FreeShippingThresholdCents {
		q.DiscountCents = q.ShippingFeeCents
	}
	q.TotalCents = q.SubtotalCents + q.ShippingFeeCents - q.DiscountCents
	return q, nil
}

// resolvePrice returns the catalog unit price for the line's selection. A fixed price is a
// snapshot of the product price and must still match it.
func resolvePrice(line domain.CartLine, product domain.Product) (int64, string, error) {
	switch {
	case line.FixedPriceCents != nil:
		if product.PriceCents == nil {
			return 0, "", domain.NewValidationError(domain.UnresolvablePrice, "product %s has no catalog price", product.Key)
		}
		if *line.FixedPriceCents != *product.PriceCents {
			return 0, "", domain.NewValidationError(domain.UnresolvablePrice,
				"line %s price %d does not match catalog price %d", line.ID, *line.FixedPriceCents, *product.PriceCents)
		}
		return *product.PriceCents, "fixed", nil
	case line.TierKey != nil && *line.TierKey != "":
		tier, ok := product.Tier(*line.TierKey)
		if !ok {
			return 0, "", domain.NewValidationError(domain.UnresolvablePrice, "product %s has no tier %q", product.Key, *line.TierKey)
		}
		return tier.PriceCents, "tier:" + tier.Key, nil
	case product.PriceCents != nil:
		return *product.PriceCents, "product", nil
	}
	return 0, "", domain.NewValidationError(domain.UnresolvablePrice, "product %s has no price", product.Key)
}

// checkAddress reports the first failing address field.
func (p *Pricer) checkAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.City) == "" {
		return domain.NewValidationError(domain.InvalidAddress, "shipping address needs a city")
	}
	err := p.validate.Struct(addr)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return domain.NewValidationError(domain.InvalidAddress, "shipping address field %s failed %q", fe.Field(), fe.Tag())
	}
	return domain.NewValidationError(domain.InvalidAddress, "shipping address: %v", err)
}

// ShippingFee bills whole kilograms, rounding up, at the city's rate or the default rate.
func ShippingFee(rates config.Shipping, weightGrams int, city string) int64 {
	billable := weightGrams
	if billable < rates.MinBillableGrams {
		billable = rates.MinBillableGrams
	}
	kilos := int64((billable + 999) / 1000)
	rate := rates.DefaultRatePerKg
	if r, ok := rates.CityRatesPerKg[strings.ToLower(strings.TrimSpace(city))]; ok {
		rate = r
	}
	return kilos * rate
}
