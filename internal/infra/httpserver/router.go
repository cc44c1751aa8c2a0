package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/supplement-advisor/internal/application/analysis"
	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/middleware"
)

const (
	serviceName    = "supplement-advisor"
	maxRequestBody = 1 << 20
	// largest page whose offset fits in an int at the maximum page size
	maxPage = math.MaxInt / appanalysis.MaxPageSize
)

// Version is reported by the info endpoints; set at build time.
var Version = "1.0.0"

// Options configures the HTTP surface around the analysis service.
type Options struct {
	Logger       *zap.Logger
	Metrics      *middleware.Metrics
	Checkers     map[string]middleware.HealthChecker
	CORSOrigins  []string
	AllowedHosts []string
	APIKeys      map[string]string
	RateLimitRPS float64
	RateBurst    int
	Debug        bool
}

type Router struct {
	svc    *appanalysis.Service
	logger *zap.Logger
	debug  bool
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{svc: svc, logger: logger, debug: opts.Debug}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(middleware.TrustedHosts(opts.AllowedHosts))
	mux.Use(middleware.Logging(logger))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.ProcessTimeHeader, "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	mux.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateBurst))
	mux.Use(chimw.Recoverer)

	mux.Get("/", r.handleInfo)
	mux.Get("/health", r.handleHealth)
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Checkers))
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	mux.Route("/api/v1", func(rt chi.Router) {
		rt.Get("/", r.handleAPIRoot)
		rt.Get("/health", r.handleAPIHealth)
		rt.Post("/analyze", r.handleAnalyze)
		rt.Get("/analyses", r.wrap(r.handleHistory))
		rt.Get("/analyses/{id}/status", r.wrap(r.handleStatus))
		rt.Get("/analyses/{id}/explain/{supplementID}", r.wrap(r.handleExplain))
		rt.Delete("/cache/{fingerprint}", r.wrap(r.handleInvalidate))
		rt.Delete("/cache", r.wrap(r.handleClear))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks errors caused by the caller's input.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var br badRequest
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.As(err, &br):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": br.Error()})
		default:
			r.logger.Error("request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
	}
}

// POST /api/v1/analyze
// Body: {"form_data": {...}, "user_id": "..."}
// Always answers 200 with a recommendation list.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("analyze handler panicked", zap.Any("panic", p))
			writeJSON(w, http.StatusOK, lastResort())
		}
	}()

	var body struct {
		FormData map[string]any `json:"form_data"`
		UserID   string         `json:"user_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody)).Decode(&body); err != nil {
		r.logger.Warn("undecodable analyze request", zap.Error(err))
		writeJSON(w, http.StatusOK, lastResort())
		return
	}

	userID := middleware.SanitizeString(body.UserID)
	if err := middleware.ValidateUserID(userID); err != nil {
		r.logger.Warn("dropping malformed user id", zap.Error(err))
		userID = ""
	}
	formID := "form_" + userID
	if userID == "" {
		formID = "form_" + uuid.NewString()
	}

	r.logger.Info("analysis requested",
		zap.String("user_id", userID),
		zap.Strings("fields", sortedKeys(body.FormData)))

	res := r.svc.Analyze(req.Context(), appanalysis.Request{
		FormID:  formID,
		UserID:  userID,
		Answers: body.FormData,
	})
	writeJSON(w, http.StatusOK, newAnalyzeResponse(res))
}

// GET /api/v1/analyses?user_id=&page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	userID := req.URL.Query().Get("user_id")
	if userID == "" {
		return badRequest{errors.New("user_id is required")}
	}
	if err := middleware.ValidateUserID(userID); err != nil {
		return badRequest{err}
	}
	page, err := queryInt(req, "page")
	if err != nil {
		return err
	}
	size, err := queryInt(req, "page_size")
	if err != nil {
		return err
	}
	if page > maxPage {
		return badRequest{fmt.Errorf("page must be at most %d", maxPage)}
	}

	list, err := r.svc.History(req.Context(), userID, page, size)
	if err != nil {
		return err
	}
	items := make([]historyItem, 0, len(list))
	for _, rec := range list {
		items = append(items, historyItem{
			AnalysisID: rec.ID,
			FormID:     rec.FormID,
			Source:     string(rec.Source),
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "items": items})
	return nil
}

// GET /api/v1/analyses/{id}/status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return badRequest{err}
	}
	st, err := r.svc.Status(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

// GET /api/v1/analyses/{id}/explain/{supplementID}
func (r *Router) handleExplain(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	supplementID := chi.URLParam(req, "supplementID")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateSupplementID(supplementID); err != nil {
		return badRequest{err}
	}
	text, err := r.svc.Explain(req.Context(), id, supplementID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"analysis_id":   id,
		"supplement_id": supplementID,
		"explanation":   text,
	})
	return nil
}

// DELETE /api/v1/cache/{fingerprint}
func (r *Router) handleInvalidate(w http.ResponseWriter, req *http.Request) error {
	fp := chi.URLParam(req, "fingerprint")
	if err := middleware.ValidateFingerprint(fp); err != nil {
		return badRequest{err}
	}
	if err := r.svc.InvalidateCache(req.Context(), fp); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "fingerprint": fp})
	return nil
}

// DELETE /api/v1/cache
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.svc.ClearCache(req.Context()); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	return nil
}

func (r *Router) handleInfo(w http.ResponseWriter, _ *http.Request) {
	var docs any
	if r.debug {
		docs = "/api/v1/"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Подбор БАДов по медицинской анкете",
		"status":  "running",
		"version": Version,
		"docs":    docs,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"service":       serviceName,
		"version":       Version,
		"debug":         r.debug,
		"ai_configured": r.svc.AIConfigured(),
	})
}

func (r *Router) handleAPIRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Supplement Advisor API v1"})
}

func (r *Router) handleAPIHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Supplement Advisor is running",
		"status":  "healthy",
	})
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(req *http.Request, name string) (int, error) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest{fmt.Errorf("%s must be an integer", name)}
	}
	return n, nil
}

func lastResort() analyzeResponse {
	return newAnalyzeResponse(appanalysis.Degraded("unknown", "", time.Now()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
