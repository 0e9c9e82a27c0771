// Package pricing computes authoritative order totals from catalog prices.
package pricing

import "storefront/internal/domain"

const (
	DefaultTaxRateBPS            = 1000 // 10%
	DefaultFreeShippingThreshold = domain.Money(5000)
	DefaultFlatShipping          = domain.Money(1000)
)

// Line is one priced cart line. Prices must come from the catalog, never from
// the client.
type Line struct {
	CatalogPrice domain.Money
	SalePrice    *domain.Money
	Quantity     int
}

// UnitPrice is the sale price when present and positive, else the catalog price.
func (l Line) UnitPrice() domain.Money {
	if l.SalePrice != nil && *l.SalePrice > 0 {
		return *l.SalePrice
	}
	return l.CatalogPrice
}

type Totals struct {
	Subtotal domain.Money
	Tax      domain.Money
	Shipping domain.Money
	Total    domain.Money
}

// Calculator holds the fixed tax and shipping rules. The zero value is not
// useful; use New or Default.
type Calculator struct {
	TaxRateBPS            int64
	FreeShippingThreshold domain.Money
	FlatShipping          domain.Money
}

func New(taxRateBPS int64, freeShippingThreshold, flatShipping domain.Money) Calculator {
	return Calculator{
		TaxRateBPS:            taxRateBPS,
		FreeShippingThreshold: freeShippingThreshold,
		FlatShipping:          flatShipping,
	}
}

func Default() Calculator {
	return New(DefaultTaxRateBPS, DefaultFreeShippingThreshold, DefaultFlatShipping)
}

// ComputeTotals is pure: identical input always yields identical output and
// Total == Subtotal + Tax + Shipping.
func (c Calculator) ComputeTotals(lines []Line) Totals {
	var subtotal domain.Money
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		subtotal += l.UnitPrice() * domain.Money(l.Quantity)
	}

	tax := c.tax(subtotal)

	shipping := c.FlatShipping
	if subtotal > c.FreeShippingThreshold {
		shipping = 0
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal + tax + shipping,
	}
}

// tax rounds half up to the cent.
func (c Calculator) tax(subtotal domain.Money) domain.Money {
	if subtotal <= 0 || c.TaxRateBPS <= 0 {
		return 0
	}
	return domain.Money((int64(subtotal)*c.TaxRateBPS + 5000) / 10000)
}
