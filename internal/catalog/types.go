package catalog

import "context"

// MaxResults is the most products a lookup ever returns.
const MaxResults = 5

// Product is a read-only projection of a WooCommerce product.
type Product struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink,omitempty"`
	Price     string `json:"price,omitempty"`
}

// Finder searches the catalog by keyword.
type Finder interface {
	FindProducts(ctx context.Context, query string) ([]Product, error)
}

// Names returns product names in order, one per product, blanks included.
func Names(products []Product) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	return names
}
