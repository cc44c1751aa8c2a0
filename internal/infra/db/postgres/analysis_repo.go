package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts or updates an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO analyses
  (id, form_id, user_id, fingerprint, source, confidence, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  source=EXCLUDED.source,
  confidence=EXCLUDED.confidence,
  result_json=EXCLUDED.result_json;
`
	result := a.Payload
	if strings.TrimSpace(result) == "" {
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, stringOrDash(a.FormID), stringOrDash(a.UserID),
		a.Fingerprint, string(a.Source), a.Confidence, result, createdAt)
	return err
}

// Get returns one analysis by id
func (r *AnalysisRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	const q = `
SELECT id, form_id, user_id, fingerprint, source, confidence, result_json, created_at
FROM analyses
WHERE id=$1
LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, id)
	var a domain.Record
	var source string
	if err := row.Scan(&a.ID, &a.FormID, &a.UserID, &a.Fingerprint, &source, &a.Confidence, &a.Payload, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Source = domain.Source(source)
	return &a, nil
}

// Paginate returns a page of a user's analyses ordered by created_at desc
func (r *AnalysisRepository) Paginate(ctx context.Context, userID string, page, pageSize int) ([]*domain.Record, error) {
	offset, limit, ok := domain.PageWindow(page, pageSize)
	if !ok {
		return nil, nil
	}

	const q = `
SELECT id, form_id, user_id, fingerprint, source, confidence, result_json, created_at
FROM analyses
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var a domain.Record
		var source string
		if err := rows.Scan(&a.ID, &a.FormID, &a.UserID, &a.Fingerprint, &source, &a.Confidence, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Source = domain.Source(source)
		out = append(out, &a)
	}
	return out, rows.Err()
}
