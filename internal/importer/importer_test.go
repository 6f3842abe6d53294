package importer

import (
	"context"
	"strings"
	"testing"

	"storefront-checkout/internal/domain"
)

type stubProductRepo struct {
	items []domain.Product
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.items = append(s.items, p)
	return &p, nil
}

const header = "key,sku,name,description,price_cents,currency,weight_grams,tier.key,tier.name,tier.min_quantity,tier.price_cents\n"

func TestCSVImporter_Run(t *testing.T) {
	csvData := header +
		"arabica,SKU-1,Arabica,Medium roast,8500000,idr,250,retail,Retail,1,8500000\n" +
		",,,,,,,wholesale,Wholesale,10,7200000\n" +
		"print,SKU-2,Custom Print,,,IDR,150,,,,\n"

	repo := &stubProductRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo, "project-123", nil)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 products, got count=%d saved=%d", count, len(repo.items))
	}

	arabica := repo.items[0]
	if arabica.ProjectID != "project-123" || arabica.Currency != "IDR" || arabica.WeightGrams != 250 {
		t.Fatalf("unexpected product %+v", arabica)
	}
	if arabica.PriceCents == nil || *arabica.PriceCents != 8500000 {
		t.Fatalf("unexpected price %v", arabica.PriceCents)
	}
	if len(arabica.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %+v", arabica.Tiers)
	}
	if tier, ok := arabica.Tier("wholesale"); !ok || tier.MinQuantity != 10 || tier.PriceCents != 7200000 {
		t.Fatalf("unexpected wholesale tier %+v", tier)
	}

	if repo.items[1].PriceCents != nil {
		t.Fatal("a product without price_cents has no catalog price")
	}
}

func TestCSVImporter_Rejects(t *testing.T) {
	tests := []struct {
		name string
		rows string
	}{
		{name: "missing weight", rows: "mug,SKU-3,Mug,,6500000,IDR,,,,,\n"},
		{name: "orphan tier", rows: ",,,,,,,bulk,Bulk,5,100\n"},
		{name: "duplicate tier", rows: "mug,SKU-3,Mug,,6500000,IDR,400,bulk,Bulk,5,100\n,,,,,,,bulk,Bulk,10,90\n"},
		{name: "bad price", rows: "mug,SKU-3,Mug,,abc,IDR,400,,,,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := NewCSVImporter(strings.NewReader(header+tt.rows), &stubProductRepo{}, "p", nil)
			if _, err := imp.Run(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
