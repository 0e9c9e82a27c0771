package domain

import "time"

// Product is the catalog view the checkout core relies on. Records are owned
// by the catalog source and are read-only here.
type Product struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       Money     `json:"price"`
	SalePrice   *Money    `json:"salePrice,omitempty"`
	InStock     bool      `json:"inStock"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// EffectivePrice returns the sale price when present and positive, else the
// list price.
func (p Product) EffectivePrice() Money {
	if p.SalePrice != nil && *p.SalePrice > 0 {
		return *p.SalePrice
	}
	return p.Price
}
