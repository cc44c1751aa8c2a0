package analysis

import (
	"context"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
)

// Adapter is the LLM-backed engine. Every failure is an *AdapterError.
type Adapter interface {
	Infer(ctx context.Context, answers intake.Answers, entries []catalog.Entry) (*Outcome, error)
	Explain(ctx context.Context, analysisID, supplementID string) (string, error)
	Configured() bool
}

// Fallback is the deterministic engine; it cannot fail.
type Fallback interface {
	Infer(answers intake.Answers, entries []catalog.Entry) *Outcome
}

// Cache maps fingerprints to finished results.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, r *Result) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Repository persists analyses for later lookup.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Paginate lists a user's analyses, newest first. page starts at 1.
	Paginate(ctx context.Context, userID string, page, pageSize int) ([]*Record, error)
}

// Archive keeps a copy of the full result document outside the database.
type Archive interface {
	Store(ctx context.Context, r *Result) (string, error)
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	CacheLookup(hit bool)
	Outcome(src Source)
	AdapterFailure(kind AdapterErrorKind)
}
