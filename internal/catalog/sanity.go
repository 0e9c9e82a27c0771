package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"storefront/internal/domain"
	"storefront/internal/logging"
)

const projection = `{
  "id": _id,
  "slug": slug.current,
  name,
  "description": coalesce(description, ""),
  price,
  salePrice,
  "inStock": coalesce(inStock, true),
  "images": images[].asset->url,
  _createdAt
}`

const (
	queryAll   = `*[_type == "product" && !(_id in path("drafts.**"))] | order(orderRank) ` + projection
	queryByIDs = `*[_type == "product" && _id in $ids && !(_id in path("drafts.**"))] ` + projection
	queryByID  = `*[_type == "product" && _id == $id][0] ` + projection
)

type SanityConfig struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	UseCDN     bool
	Timeout    time.Duration
	// BaseURL overrides the host derived from ProjectID.
	BaseURL string
}

// Sanity reads products through the Sanity HTTP query API.
type Sanity struct {
	client  *resty.Client
	dataset string
	logger  *zap.Logger
}

func NewSanity(cfg SanityConfig, logger *zap.Logger) (*Sanity, error) {
	if strings.TrimSpace(cfg.Dataset) == "" {
		return nil, errors.New("sanity dataset required")
	}
	base := cfg.BaseURL
	if base == "" {
		if strings.TrimSpace(cfg.ProjectID) == "" {
			return nil, errors.New("sanity project id required")
		}
		host := "api.sanity.io"
		if cfg.UseCDN {
			host = "apicdn.sanity.io"
		}
		base = fmt.Sprintf("https://%s.%s", cfg.ProjectID, host)
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2024-01-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger = logging.OrNop(logger)

	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")+"/v"+strings.TrimPrefix(version, "v")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Sanity{client: client, dataset: cfg.Dataset, logger: logger}, nil
}

type sanityProduct struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	SalePrice   *float64 `json:"salePrice"`
	InStock     bool     `json:"inStock"`
	Images      []string `json:"images"`
	CreatedAt   string   `json:"_createdAt"`
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

func (s *Sanity) List(ctx context.Context) ([]domain.Product, error) {
	var rows []sanityProduct
	if err := s.query(ctx, queryAll, nil, &rows); err != nil {
		return nil, err
	}
	return s.convertAll(rows)
}

func (s *Sanity) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var row *sanityProduct
	if err := s.query(ctx, queryByID, map[string]any{"id": id}, &row); err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	p, err := convert(*row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Sanity) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []sanityProduct
	if err := s.query(ctx, queryByIDs, map[string]any{"ids": ids}, &rows); err != nil {
		return nil, err
	}
	return s.convertAll(rows)
}

func (s *Sanity) query(ctx context.Context, groq string, params map[string]any, out any) error {
	req := s.client.R().
		SetContext(ctx).
		SetQueryParam("query", groq)
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode param %s: %w", name, err)
		}
		req.SetQueryParam("$"+name, string(encoded))
	}

	var body queryResponse
	resp, err := req.SetResult(&body).Get("/data/query/" + s.dataset)
	if err != nil {
		s.logger.Warn("sanity query failed", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}
	if resp.IsError() {
		s.logger.Warn("sanity query rejected", zap.Int("status", resp.StatusCode()), zap.String("body", truncate(resp.String(), 512)))
		return fmt.Errorf("%w: sanity returned %d", domain.ErrCatalogUnavailable, resp.StatusCode())
	}
	if len(body.Result) == 0 {
		return fmt.Errorf("%w: sanity response missing result", domain.ErrCatalogUnavailable)
	}
	if err := json.Unmarshal(body.Result, out); err != nil {
		return fmt.Errorf("%w: decode result: %v", domain.ErrCatalogUnavailable, err)
	}
	return nil
}

func (s *Sanity) convertAll(rows []sanityProduct) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := convert(row)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func convert(row sanityProduct) (domain.Product, error) {
	if row.ID == "" || row.Price == nil || *row.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: malformed product %q", domain.ErrCatalogUnavailable, row.ID)
	}
	p := domain.Product{
		ID:          row.ID,
		Slug:        row.Slug,
		Name:        row.Name,
		Description: row.Description,
		Price:       domain.Dollars(*row.Price),
		InStock:     row.InStock,
		Images:      row.Images,
	}
	if row.SalePrice != nil && *row.SalePrice > 0 {
		sale := domain.Dollars(*row.SalePrice)
		p.SalePrice = &sale
	}
	if row.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, row.CreatedAt); err == nil {
			p.CreatedAt = ts
		}
	}
	return p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
