package domain

import "time"

// PriceTier is one of a product's declared price points, selected explicitly on a cart line.
type PriceTier struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	MinQuantity int    `json:"minQuantity"`
	PriceCents  int64  `json:"priceCents"`
}

type Product struct {
	ID          string                 `json:"id"`
	ProjectID   string                 `json:"-"`
	Key         string                 `json:"key"`
	SKU         string                 `json:"sku"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	PriceCents  *int64                 `json:"priceCents,omitempty"`
	Currency    string                 `json:"currency"`
	WeightGrams int                    `json:"weightGrams"`
	Tiers       []PriceTier            `json:"tiers,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Tier looks up a declared tier by key.
func (p Product) Tier(key string) (PriceTier, bool) {
	for _, t := range p.Tiers {
		if t.Key == key {
			return t, true
		}
	}
	return PriceTier{}, false
}
