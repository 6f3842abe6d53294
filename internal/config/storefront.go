package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storefront holds the static commercial settings of the shop.
type Storefront struct {
	Currency   string     `yaml:"currency"`
	Settlement Settlement `yaml:"settlement"`
	Shipping   Shipping   `yaml:"shipping"`
}

type Settlement struct {
	BankName      string `yaml:"bank_name"`
	AccountNumber string `yaml:"account_number"`
	AccountHolder string `yaml:"account_holder"`
}

// Shipping is a per-kilogram rate table keyed by lower-cased city name.
type Shipping struct {
	DefaultRatePerKg           int64            `yaml:"default_rate_per_kg"`
	MinBillableGrams           int              `yaml:"min_billable_grams"`
	CityRatesPerKg             map[string]int64 `yaml:"city_rates_per_kg"`
	FreeShippingThresholdCents int64            `yaml:"free_shipping_threshold_cents"`
}

// DefaultStorefront is used when no settings file is configured.
func DefaultStorefront() Storefront {
	return Storefront{
		Currency: "IDR",
		Settlement: Settlement{
			BankName:      "Bank Central Asia",
			AccountNumber: "0000000000",
			AccountHolder: "Storefront",
		},
		Shipping: Shipping{
			DefaultRatePerKg: 20000,
			MinBillableGrams: 1000,
			CityRatesPerKg:   map[string]int64{},
		},
	}
}

// LoadStorefront reads YAML settings from path, falling back to defaults for empty fields.
func LoadStorefront(path string) (Storefront, error) {
	sf := DefaultStorefront()
	if strings.TrimSpace(path) == "" {
		return sf, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Storefront{}, fmt.Errorf("read storefront settings: %w", err)
	}
	var parsed Storefront
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return Storefront{}, fmt.Errorf("parse storefront settings: %w", err)
	}
	return merge(sf, parsed), nil
}

func merge(base, over Storefront) Storefront {
	if over.Currency != "" {
		base.Currency = over.Currency
	}
	if over.Settlement.BankName != "" {
		base.Settlement = over.Settlement
	}
	if over.Shipping.DefaultRatePerKg > 0 {
		base.Shipping.DefaultRatePerKg = over.Shipping.DefaultRatePerKg
	}
	if over.Shipping.MinBillableGrams > 0 {
		base.Shipping.MinBillableGrams = over.Shipping.MinBillableGrams
	}
	if over.Shipping.FreeShippingThresholdCents > 0 {
		base.Shipping.FreeShippingThresholdCents = over.Shipping.FreeShippingThresholdCents
	}
	for city, rate := range over.Shipping.CityRatesPerKg {
		base.Shipping.CityRatesPerKg[strings.ToLower(strings.TrimSpace(city))] = rate
	}
	return base
}
