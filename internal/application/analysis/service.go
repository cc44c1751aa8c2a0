package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bryanwahyu/supplement-advisor/internal/application"
	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
)

var tracer = otel.Tracer("github.com/bryanwahyu/supplement-advisor/internal/application/analysis")

// MaxPageSize caps History page sizes.
const MaxPageSize = 100

const (
	degradedConfidence = 0.7
	explainUnavailable = "Объяснение недоступно."
	explainNoAI        = "Объяснение недоступно - AI не настроен."
)

// Service resolves a questionnaire into recommendations:
// cache -> LLM adapter -> rule fallback -> cache store -> best-effort persistence.
// Repo, Archive and Observer are optional. Service is safe for concurrent use.
type Service struct {
	Catalog  catalog.Provider
	AI       domain.Adapter
	Rules    domain.Fallback
	Cache    domain.Cache
	Repo     domain.Repository
	Archive  domain.Archive
	Observer domain.Observer
	Clock    application.Clock
	Logger   *zap.Logger
}

// Request is one questionnaire submission.
type Request struct {
	FormID  string
	UserID  string
	Answers intake.Answers
}

// Analyze never fails: any internal error or panic past the cache lookup turns
// into a degraded single-recommendation result.
func (s *Service) Analyze(ctx context.Context, req Request) (res *domain.Result) {
	start := s.now()
	ctx, span := tracer.Start(ctx, "analysis.Analyze", trace.WithAttributes(attribute.String("form_id", req.FormID)))
	defer span.End()

	key := intake.Fingerprint(req.Answers)
	if cached, ok := s.lookup(ctx, key); ok {
		s.log().Info("returning cached analysis",
			zap.String("form_id", req.FormID), zap.String("analysis_id", cached.ID))
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached
	}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			s.log().Error("analysis pipeline panicked", zap.String("form_id", req.FormID), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "degraded")
			res = s.degraded(req, key, start)
		}
	}()

	res, err := s.compute(ctx, req, key, start)
	if err != nil {
		s.log().Error("analysis failed", zap.String("form_id", req.FormID), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "degraded")
		return s.degraded(req, key, start)
	}
	span.SetAttributes(attribute.String("source", string(res.Source)))
	s.log().Info("analysis completed",
		zap.String("form_id", req.FormID),
		zap.String("analysis_id", res.ID),
		zap.String("source", string(res.Source)),
		zap.Int64("processing_ms", res.ProcessingTimeMS))
	return res
}

func (s *Service) compute(ctx context.Context, req Request, key string, start time.Time) (*domain.Result, error) {
	answers := req.Answers
	if answers == nil {
		answers = intake.Answers{}
	}
	if norm, err := intake.Normalize(answers); err != nil {
		s.log().Warn("form validation failed, using raw answers", zap.String("form_id", req.FormID), zap.Error(err))
	} else {
		answers = norm
	}

	entries, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	outcome := s.infer(ctx, answers, entries)
	if outcome == nil || len(outcome.Recommendations) == 0 {
		return nil, errors.New("engine produced no recommendations")
	}

	now := s.now()
	result := &domain.Result{
		ID:               fmt.Sprintf("analysis_%s_%d", req.FormID, now.UnixNano()),
		FormID:           req.FormID,
		UserID:           req.UserID,
		Fingerprint:      key,
		Source:           outcome.Source,
		Recommendations:  make(map[string]domain.Recommendation, len(outcome.Recommendations)),
		Text:             outcome.Text,
		Confidence:       domain.Clamp(outcome.Confidence),
		ProcessingTimeMS: now.Sub(start).Milliseconds(),
		CreatedAt:        now,
	}
	for id, r := range outcome.Recommendations {
		r.Confidence = domain.Clamp(r.Confidence)
		result.Recommendations[id] = r
	}

	if err := s.Cache.Put(ctx, key, result); err != nil {
		s.log().Warn("cache store failed", zap.String("fingerprint", key), zap.Error(err))
	}
	s.persist(ctx, result)
	if s.Observer != nil {
		s.Observer.Outcome(result.Source)
	}
	return result, nil
}

// infer runs exactly one engine: the adapter, or the rules when it fails.
func (s *Service) infer(ctx context.Context, answers intake.Answers, entries []catalog.Entry) *domain.Outcome {
	if s.AI != nil {
		ctx, span := tracer.Start(ctx, "analysis.ai")
		out, err := s.AI.Infer(ctx, answers, entries)
		span.End()
		if err == nil {
			return out
		}
		kind := domain.KindTransport
		var ae *domain.AdapterError
		if errors.As(err, &ae) {
			kind = ae.Kind
		}
		if kind == domain.KindNotConfigured {
			s.log().Debug("ai adapter not configured, using rules")
		} else {
			s.log().Warn("ai analysis failed, falling back to rules", zap.String("kind", string(kind)), zap.Error(err))
		}
		if s.Observer != nil {
			s.Observer.AdapterFailure(kind)
		}
	}
	return s.Rules.Infer(answers, entries)
}

func (s *Service) lookup(ctx context.Context, key string) (*domain.Result, bool) {
	cached, ok, err := s.Cache.Get(ctx, key)
	if err != nil {
		s.log().Warn("cache lookup failed", zap.String("fingerprint", key), zap.Error(err))
		ok = false
	}
	if s.Observer != nil {
		s.Observer.CacheLookup(ok)
	}
	return cached, ok
}

// persist is best effort; failures are logged and never retried.
func (s *Service) persist(ctx context.Context, r *domain.Result) {
	if s.Repo != nil {
		payload, err := json.Marshal(r)
		if err == nil {
			err = s.Repo.Save(ctx, &domain.Record{
				ID:          r.ID,
				FormID:      r.FormID,
				UserID:      r.UserID,
				Fingerprint: r.Fingerprint,
				Source:      r.Source,
				Confidence:  r.Confidence,
				Payload:     string(payload),
				CreatedAt:   r.CreatedAt,
			})
		}
		if err != nil {
			s.log().Error("failed to save analysis", zap.String("analysis_id", r.ID), zap.Error(err))
		}
	}
	if s.Archive != nil {
		if _, err := s.Archive.Store(ctx, r); err != nil {
			s.log().Error("failed to archive analysis", zap.String("analysis_id", r.ID), zap.Error(err))
		}
	}
}

func (s *Service) degraded(req Request, key string, start time.Time) *domain.Result {
	if s.Observer != nil {
		s.Observer.Outcome(domain.SourceDegraded)
	}
	now := s.now()
	r := Degraded(req.FormID, req.UserID, now)
	r.Fingerprint = key
	r.ProcessingTimeMS = now.Sub(start).Milliseconds()
	return r
}

// Degraded is the fixed low-confidence answer used when no analysis could run.
func Degraded(formID, userID string, at time.Time) *domain.Result {
	return &domain.Result{
		ID:     fmt.Sprintf("failed_%s_%d", formID, at.UnixNano()),
		FormID: formID,
		UserID: userID,
		Source: domain.SourceDegraded,
		Recommendations: map[string]domain.Recommendation{
			"fallback_001": {
				Name:       "Мультивитамины",
				Dose:       "1 капсула в день",
				Duration:   "1 месяц",
				Priority:   domain.PriorityMedium,
				Confidence: degradedConfidence,
				Reason:     "Базовая поддержка организма (fallback)",
			},
		},
		Text:       "К сожалению, произошла ошибка при анализе анкеты. Пожалуйста, обратитесь к специалисту.",
		Confidence: degradedConfidence,
		CreatedAt:  at,
	}
}

// Status reports a stored analysis as completed.
func (s *Service) Status(ctx context.Context, analysisID string) (*domain.Status, error) {
	if s.Repo == nil {
		return nil, domain.ErrNotFound
	}
	rec, err := s.Repo.Get(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	return &domain.Status{AnalysisID: rec.ID, Status: "completed", Progress: 100}, nil
}

// Explain asks the adapter why supplementID was part of analysisID. Adapter
// problems produce a fixed message rather than an error.
func (s *Service) Explain(ctx context.Context, analysisID, supplementID string) (string, error) {
	if s.Repo == nil {
		return "", domain.ErrNotFound
	}
	rec, err := s.Repo.Get(ctx, analysisID)
	if err != nil {
		return "", err
	}
	var stored domain.Result
	if err := json.Unmarshal([]byte(rec.Payload), &stored); err == nil {
		if _, ok := stored.Recommendations[supplementID]; !ok {
			return "", domain.ErrNotFound
		}
	}
	if s.AI == nil || !s.AI.Configured() {
		return explainNoAI, nil
	}
	text, err := s.AI.Explain(ctx, analysisID, supplementID)
	if err != nil {
		s.log().Error("failed to explain recommendation",
			zap.String("analysis_id", analysisID), zap.String("supplement_id", supplementID), zap.Error(err))
		return explainUnavailable, nil
	}
	return text, nil
}

// History pages through a user's stored analyses, newest first.
func (s *Service) History(ctx context.Context, userID string, page, pageSize int) ([]*domain.Record, error) {
	if s.Repo == nil {
		return nil, nil
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return s.Repo.Paginate(ctx, userID, page, pageSize)
}

// InvalidateCache drops one fingerprint.
func (s *Service) InvalidateCache(ctx context.Context, fingerprint string) error {
	return s.Cache.Delete(ctx, fingerprint)
}

// ClearCache drops every cached analysis.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.Cache.Clear(ctx)
}

// AIConfigured reports whether the LLM path is enabled.
func (s *Service) AIConfigured() bool {
	return s.AI != nil && s.AI.Configured()
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
