package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns every supplement, ordered by name. Tags live in a text[] column.
func (r *CatalogRepository) List(ctx context.Context) ([]domain.Entry, error) {
	const q = `
SELECT id, name, description, tags, price, in_stock
FROM supplements
ORDER BY name ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var tags pq.StringArray
		var price sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &tags, &price, &e.InStock); err != nil {
			return nil, err
		}
		e.Tags = []string(tags)
		if price.Valid {
			p := price.Float64
			e.Price = &p
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Seed upserts entries, used to load the built-in catalog into an empty table.
func (r *CatalogRepository) Seed(ctx context.Context, entries []domain.Entry) error {
	const q = `
INSERT INTO supplements (id, name, description, tags, price, in_stock)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, description=EXCLUDED.description, tags=EXCLUDED.tags,
  price=EXCLUDED.price, in_stock=EXCLUDED.in_stock;`
	for _, e := range entries {
		if _, err := r.db.ExecContext(ctx, q, e.ID, e.Name, e.Description, pq.Array(e.Tags), e.Price, e.InStock); err != nil {
			return fmt.Errorf("seed supplement %s: %w", e.ID, err)
		}
	}
	return nil
}
