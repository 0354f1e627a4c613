package retail

import (
	"fmt"
	"strings"
)

// CategoryAll selects every category in Filter. An empty selector means the same.
const CategoryAll = "all"

// Catalog is an immutable, ordered list of purchasable products.
type Catalog struct {
	products []Product
	byID     map[string]int
}

func NewCatalog(products []Product) (Catalog, error) {
	c := Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return Catalog{}, fmt.Errorf("catalog: product %q has empty id", p.Name)
		}
		if p.UnitPrice < 0 {
			return Catalog{}, fmt.Errorf("catalog: product %s has negative price %d", p.ID, p.UnitPrice)
		}
		if _, dup := c.byID[p.ID]; dup {
			return Catalog{}, fmt.Errorf("catalog: duplicate product id %s", p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func (c Catalog) Lookup(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

func (c Catalog) Len() int { return len(c.products) }

// Products returns a copy in catalog order.
func (c Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Categories lists distinct categories in first-seen order.
func (c Catalog) Categories() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, p := range c.products {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}

// Filter returns the products whose name contains term (case-insensitive) and whose
// category equals category, or any category for CategoryAll. Catalog order is kept.
func Filter(c Catalog, term, category string) []Product {
	needle := strings.ToLower(strings.TrimSpace(term))
	anyCategory := category == "" || category == CategoryAll

	out := []Product{}
	for _, p := range c.products {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		if !anyCategory && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	return out
}
