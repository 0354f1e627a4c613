package retail

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepo reads the product catalog from Postgres. The engine only ever reads it.
type CatalogRepo struct{ DB *pgxpool.Pool }

func (r *CatalogRepo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price_cents, category
                                FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var price int64
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Category); err != nil {
			return nil, err
		}
		p.UnitPrice = Money(price)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *CatalogRepo) ListRewards(ctx context.Context) ([]Reward, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, cost_points FROM rewards ORDER BY cost_points, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reward
	for rows.Next() {
		var rw Reward
		if err := rows.Scan(&rw.ID, &rw.Name, &rw.Cost); err != nil {
			return nil, err
		}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// LoadCatalog builds the immutable catalog from the database.
func (r *CatalogRepo) LoadCatalog(ctx context.Context) (Catalog, error) {
	ps, err := r.ListProducts(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("list products: %w", err)
	}
	return NewCatalog(ps)
}
