package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads catalog CSV exports and upserts products by slug.
//
// Expected header: id,slug,name,description,price,salePrice,inStock,image.
// Prices are decimal dollars. A row with only an image column continues the
// previous product.
type CSVImporter struct {
	reader *csv.Reader
	repo   ProductWriter
	logger *zap.Logger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	logger = logging.OrNop(logger)
	return &CSVImporter{
		reader: csvr,
		repo:   repo,
		logger: logger,
	}
}

type csvRow struct {
	line   int
	ID     string
	Slug   string
	Name   string
	Desc   string
	Price  string
	Sale   string
	Stock  string
	Images []string
}

// Run parses CSV rows and upserts one product per slug row.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["slug"]; !ok {
		return 0, errors.New("read headers: slug column required")
	}

	var (
		current  *csvRow
		imported int
		line     = 1
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line++

		row := parseRow(record, index)
		if row == nil {
			continue
		}
		row.line = line

		if row.Slug != "" {
			if current != nil {
				if err := i.save(ctx, current); err != nil {
					return imported, err
				}
				imported++
			}
			current = row
			continue
		}

		// Continuation rows (images) belong to the current product.
		if current != nil && len(row.Images) > 0 {
			current.Images = append(current.Images, row.Images...)
		}
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}

	i.logger.Info("catalog import finished", zap.Int("count", imported))
	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	p, err := row.product()
	if err != nil {
		return fmt.Errorf("line %d: %w", row.line, err)
	}
	if _, err := i.repo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Slug, err)
	}
	return nil
}

func (r *csvRow) product() (domain.Product, error) {
	if r.Name == "" || r.Price == "" {
		return domain.Product{}, fmt.Errorf("invalid product row (missing name or price) for slug %q", r.Slug)
	}
	if r.ID != "" {
		if _, err := uuid.Parse(r.ID); err != nil {
			return domain.Product{}, fmt.Errorf("invalid id for slug %q: %s", r.Slug, r.ID)
		}
	}
	price, err := parseDollars(r.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid price for slug %q: %w", r.Slug, err)
	}

	p := domain.Product{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Desc,
		Price:       price,
		InStock:     true,
		Images:      r.Images,
	}
	if r.Sale != "" {
		sale, err := parseDollars(r.Sale)
		if err != nil {
			return domain.Product{}, fmt.Errorf("invalid sale price for slug %q: %w", r.Slug, err)
		}
		if sale > 0 {
			p.SalePrice = &sale
		}
	}
	if r.Stock != "" {
		inStock, err := strconv.ParseBool(r.Stock)
		if err != nil {
			return domain.Product{}, fmt.Errorf("invalid inStock for slug %q: %s", r.Slug, r.Stock)
		}
		p.InStock = inStock
	}
	return p, nil
}

func parseDollars(raw string) (domain.Money, error) {
	v, err := strconv.ParseFloat(strings.TrimPrefix(raw, "$"), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, errors.New("must not be negative")
	}
	return domain.Dollars(v), nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	slug := pick(record, index, "slug")
	imageURL := pick(record, index, "image")

	if slug == "" && imageURL == "" {
		return nil
	}

	row := &csvRow{
		ID:    pick(record, index, "id"),
		Slug:  slug,
		Name:  pick(record, index, "name"),
		Desc:  pick(record, index, "description"),
		Price: pick(record, index, "price"),
		Sale:  pick(record, index, "salePrice"),
		Stock: pick(record, index, "inStock"),
	}
	if imageURL != "" {
		row.Images = []string{imageURL}
	}
	return row
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
