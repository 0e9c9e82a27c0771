// Package catalog exposes read-only access to product records owned by an
// external source of truth (the local products table or the Sanity CMS).
package catalog

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

// Reader is the catalog contract used by the checkout core. Prices returned by
// a Reader are authoritative at the instant of the call.
type Reader interface {
	List(ctx context.Context) ([]domain.Product, error)
	// GetProductByID returns domain.ErrNotFound for unknown ids.
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	// GetProductsByIDs returns the products it can resolve; unknown ids are
	// simply absent from the result.
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// Guard wraps r so that every failure other than domain.ErrNotFound is
// reported as domain.ErrCatalogUnavailable.
func Guard(r Reader) Reader {
	if g, ok := r.(guarded); ok {
		return g
	}
	return guarded{r: r}
}

type guarded struct {
	r Reader
}

func (g guarded) List(ctx context.Context) ([]domain.Product, error) {
	products, err := g.r.List(ctx)
	return products, upstream(err)
}

func (g guarded) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := g.r.GetProductByID(ctx, id)
	return product, upstream(err)
}

func (g guarded) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	products, err := g.r.GetProductsByIDs(ctx, ids)
	return products, upstream(err)
}

func upstream(err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrCatalogUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
}

// FromRepository serves the catalog from the local products table.
func FromRepository(repo productrepo.Repository) Reader {
	return Guard(repoReader{repo: repo})
}

type repoReader struct {
	repo productrepo.Repository
}

func (r repoReader) List(ctx context.Context) ([]domain.Product, error) {
	return r.repo.List(ctx)
}

func (r repoReader) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.repo.GetByID(ctx, id)
}

func (r repoReader) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.repo.GetByIDs(ctx, ids)
}
