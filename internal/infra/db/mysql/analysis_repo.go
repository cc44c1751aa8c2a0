package mysql

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

// Save inserts an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO analyses
  (id, form_id, user_id, fingerprint, source, confidence, result_json, created_at)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  source=VALUES(source), confidence=VALUES(confidence), result_json=VALUES(result_json);
`
	result := a.Payload
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
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

// Get returns one analysis by id, domain.ErrNotFound when missing
func (r *AnalysisRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	const q = `
SELECT id, form_id, user_id, fingerprint, source, confidence, result_json, created_at
FROM analyses
WHERE id=?
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
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
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
