package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns every supplement, ordered by name
func (r *CatalogRepository) List(ctx context.Context) ([]domain.Entry, error) {
	const q = `
SELECT id, name, description, tags_json, price, in_stock
FROM supplements
ORDER BY name ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]domain.Entry, error) {
	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var tags sql.NullString
		var price sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &tags, &price, &e.InStock); err != nil {
			return nil, err
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
				return nil, fmt.Errorf("supplement %s: bad tags: %w", e.ID, err)
			}
		}
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
INSERT INTO supplements (id, name, description, tags_json, price, in_stock)
VALUES (?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  name=VALUES(name), description=VALUES(description), tags_json=VALUES(tags_json),
  price=VALUES(price), in_stock=VALUES(in_stock);`
	for _, e := range entries {
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q, e.ID, e.Name, e.Description, string(tags), e.Price, e.InStock); err != nil {
			return fmt.Errorf("seed supplement %s: %w", e.ID, err)
		}
	}
	return nil
}
