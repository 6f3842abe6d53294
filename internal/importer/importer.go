// Package importer loads a storefront catalog from CSV.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog rows and upserts products. A row with a key starts a product;
// rows without a key add price tiers to the product above them.
//
//	key,sku,name,description,price_cents,currency,weight_grams,tier.key,tier.name,tier.min_quantity,tier.price_cents
type CSVImporter struct {
	reader      *csv.Reader
	productRepo ProductWriter
	projectID   string
	logger      *zap.SugaredLogger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, projectID string, logger *zap.SugaredLogger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:      csvr,
		productRepo: repo,
		projectID:   projectID,
		logger:      logging.OrNop(logger),
	}
}

// Run parses CSV rows and upserts products grouped by product key.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	var (
		current  *domain.Product
		imported int
		line     = 1
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", line, err)
		}

		row, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", line, err)
		}
		if row == nil {
			continue
		}

		if row.product != nil {
			if current != nil {
				if err := i.save(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			current = row.product
			current.ProjectID = i.projectID
		}
		if row.tier != nil {
			if current == nil {
				return imported, fmt.Errorf("row %d: tier %q has no product above it", line, row.tier.Key)
			}
			current.Tiers = append(current.Tiers, *row.tier)
		}
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, p *domain.Product) error {
	if p.Key == "" || p.Name == "" || p.SKU == "" || p.Currency == "" {
		return fmt.Errorf("invalid product row (missing required fields) for key %q", p.Key)
	}
	if p.WeightGrams <= 0 {
		return fmt.Errorf("product %q needs a positive weight", p.Key)
	}
	seen := make(map[string]struct{}, len(p.Tiers))
	for _, t := range p.Tiers {
		if _, dup := seen[t.Key]; dup {
			return fmt.Errorf("product %q declares tier %q twice", p.Key, t.Key)
		}
		seen[t.Key] = struct{}{}
	}

	if _, err := i.productRepo.Upsert(ctx, *p); err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Key, err)
	}
	i.logger.Debugw("imported product", "project_id", i.projectID, "key", p.Key, "tiers", len(p.Tiers))
	return nil
}

type parsedRow struct {
	product *domain.Product
	tier    *domain.PriceTier
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (*parsedRow, error) {
	var row parsedRow

	if key := pick(record, index, "key"); key != "" {
		p := &domain.Product{
			Key:         key,
			SKU:         pick(record, index, "sku"),
			Name:        pick(record, index, "name"),
			Description: pick(record, index, "description"),
			Currency:    strings.ToUpper(pick(record, index, "currency")),
			Attributes:  map[string]interface{}{},
		}
		if v := pick(record, index, "price_cents"); v != "" {
			cents, err := strconv.ParseInt(v, 10, 64)
			if err != nil || cents < 0 {
				return nil, fmt.Errorf("invalid price_cents %q", v)
			}
			p.PriceCents = &cents
		}
		weight, err := atoi(pick(record, index, "weight_grams"))
		if err != nil {
			return nil, fmt.Errorf("invalid weight_grams: %w", err)
		}
		p.WeightGrams = weight
		row.product = p
	}

	if tierKey := pick(record, index, "tier.key"); tierKey != "" {
		price, err := strconv.ParseInt(pick(record, index, "tier.price_cents"), 10, 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("tier %q: invalid tier.price_cents", tierKey)
		}
		minQty, err := atoi(pick(record, index, "tier.min_quantity"))
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid tier.min_quantity: %w", tierKey, err)
		}
		row.tier = &domain.PriceTier{
			Key:         tierKey,
			Name:        pick(record, index, "tier.name"),
			MinQuantity: minQty,
			PriceCents:  price,
		}
	}

	if row.product == nil && row.tier == nil {
		return nil, nil
	}
	return &row, nil
}

func atoi(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
