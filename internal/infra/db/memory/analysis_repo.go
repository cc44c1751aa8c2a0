// Package memory is the process-local analysis repository used when no database
// is configured.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

// DefaultLimit caps how many records are kept; the oldest are dropped first.
const DefaultLimit = 10000

type AnalysisRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
	order   []string
	limit   int
}

func NewAnalysisRepository(limit int) *AnalysisRepository {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &AnalysisRepository{records: make(map[string]*domain.Record), limit: limit}
}

func (r *AnalysisRepository) Save(_ context.Context, rec *domain.Record) error {
	if rec == nil {
		return errors.New("nil record")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	if _, exists := r.records[rec.ID]; !exists {
		r.order = append(r.order, rec.ID)
	}
	r.records[rec.ID] = &cp
	if n := len(r.order) - r.limit; n > 0 {
		for _, id := range r.order[:n] {
			delete(r.records, id)
		}
		r.order = r.order[n:]
	}
	// reslicing keeps the evicted head reachable; copy once it dominates
	if cap(r.order) > 2*r.limit {
		r.order = append(make([]string, 0, r.limit+1), r.order...)
	}
	return nil
}

func (r *AnalysisRepository) Get(_ context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *AnalysisRepository) Paginate(_ context.Context, userID string, page, pageSize int) ([]*domain.Record, error) {
	offset, limit, ok := domain.PageWindow(page, pageSize)
	if !ok {
		return nil, nil
	}

	r.mu.RLock()
	var matched []*domain.Record
	for _, rec := range r.records {
		if rec.UserID == userID {
			cp := *rec
			matched = append(matched, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + min(limit, len(matched)-offset)
	return matched[offset:end], nil
}

// Len is the number of stored records.
func (r *AnalysisRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
