package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/supplement-advisor/internal/application/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/config"
	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/ai/rules"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/cache"
	infracatalog "github.com/bryanwahyu/supplement-advisor/internal/infra/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/db/memory"
	"github.com/bryanwahyu/supplement-advisor/internal/middleware"
)

type stubAI struct {
	configured bool
}

func (s stubAI) Infer(context.Context, intake.Answers, []catalog.Entry) (*domain.Outcome, error) {
	if !s.configured {
		return nil, domain.NewAdapterError(domain.KindNotConfigured, nil)
	}
	return &domain.Outcome{
		Source: domain.SourceAI,
		Recommendations: map[string]domain.Recommendation{
			"omega_3":    {Name: "Омега-3", Dose: "1000 мг", Priority: domain.PriorityMedium, Confidence: 0.8},
			"vitamin_d3": {Name: "Витамин D3", Dose: "2000 МЕ", Priority: domain.PriorityHigh, Confidence: 0.9},
		},
		Text:       "AI text",
		Confidence: 0.85,
	}, nil
}

func (s stubAI) Explain(context.Context, string, string) (string, error) {
	return "Потому что.", nil
}

func (s stubAI) Configured() bool { return s.configured }

type panickingCatalog struct{}

func (panickingCatalog) List(context.Context) ([]catalog.Entry, error) { panic("catalog exploded") }

func newTestService(ai domain.Adapter) *appanalysis.Service {
	return &appanalysis.Service{
		Catalog: infracatalog.NewStatic(nil),
		AI:      ai,
		Rules:   rules.New(),
		Cache:   cache.NewLRU(16, time.Hour),
		Repo:    memory.NewAnalysisRepository(0),
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAnalyze(t *testing.T, rec *httptest.ResponseRecorder) analyzeResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var out analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAnalyzeWithAI(t *testing.T) {
	h := NewRouter(newTestService(stubAI{configured: true}), Options{})

	rec := do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {"age": 35}, "user_id": "u1"}`)
	out := decodeAnalyze(t, rec)

	assert.True(t, out.Success)
	require.Len(t, out.Recommendations, 2)
	assert.Equal(t, "vitamin_d3", out.Recommendations[0].SupplementID)
	assert.Equal(t, "2000 МЕ", out.Recommendations[0].Dosage)
	assert.Equal(t, "omega_3", out.Recommendations[1].SupplementID)
	assert.Equal(t, 85, out.Analysis.HealthScore)
	assert.Equal(t, []string{"Анализ выполнен ИИ"}, out.Analysis.RiskFactors)
	assert.Equal(t, 2, out.Analysis.RecommendationsCount)
	assert.True(t, strings.HasPrefix(out.Analysis.AnalysisID, "analysis_form_u1_"))
	assert.NotEmpty(t, rec.Header().Get(middleware.ProcessTimeHeader))
}

func TestAnalyzeWithoutAIUsesRules(t *testing.T) {
	h := NewRouter(newTestService(stubAI{}), Options{})

	out := decodeAnalyze(t, do(t, h, http.MethodPost, "/api/v1/analyze",
		`{"form_data": {"symptoms": ["усталость"]}, "user_id": "u2"}`))

	assert.Equal(t, "rules", out.Analysis.Source)
	assert.Equal(t, 60, out.Analysis.HealthScore)
	assert.Equal(t, []string{"Анализ выполнен по правилам (ИИ недоступен)"}, out.Analysis.RiskFactors)
	ids := make([]string, 0, len(out.Recommendations))
	for _, r := range out.Recommendations {
		ids = append(ids, r.SupplementID)
	}
	assert.Contains(t, ids, "b_complex")
}

func TestAnalyzeBadBodyStillAnswers(t *testing.T) {
	h := NewRouter(newTestService(stubAI{}), Options{})

	out := decodeAnalyze(t, do(t, h, http.MethodPost, "/api/v1/analyze", `{not json`))

	assertFallback(t, out)
}

func TestAnalyzePanicStillAnswers(t *testing.T) {
	svc := newTestService(stubAI{configured: true})
	svc.Catalog = panickingCatalog{}
	h := NewRouter(svc, Options{})

	out := decodeAnalyze(t, do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {"age": 40}}`))

	assertFallback(t, out)
	assert.True(t, strings.HasPrefix(out.Analysis.AnalysisID, "failed_form_"))
}

func TestAnalyzeDropsMalformedUserID(t *testing.T) {
	h := NewRouter(newTestService(stubAI{configured: true}), Options{})

	out := decodeAnalyze(t, do(t, h, http.MethodPost, "/api/v1/analyze",
		`{"form_data": {}, "user_id": "bad user/id"}`))

	assert.NotContains(t, out.Analysis.AnalysisID, "bad user")
	assert.Equal(t, "ai", out.Analysis.Source)
}

func assertFallback(t *testing.T, out analyzeResponse) {
	t.Helper()
	assert.True(t, out.Success)
	require.Len(t, out.Recommendations, 1)
	r := out.Recommendations[0]
	assert.Equal(t, "fallback_001", r.SupplementID)
	assert.Equal(t, "Мультивитамины", r.Name)
	assert.Equal(t, "1 капсула в день", r.Dosage)
	assert.Equal(t, 70, out.Analysis.HealthScore)
	assert.Equal(t, []string{"Ошибка ИИ анализа"}, out.Analysis.RiskFactors)
	assert.Equal(t, "degraded", out.Analysis.Source)
}

func TestStatusExplainAndHistory(t *testing.T) {
	h := NewRouter(newTestService(stubAI{configured: true}), Options{})
	out := decodeAnalyze(t, do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {"age": 35}, "user_id": "u1"}`))
	id := out.Analysis.AnalysisID

	rec := do(t, h, http.MethodGet, "/api/v1/analyses/"+id+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"analysis_id":"`+id+`","status":"completed","progress":100}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/"+id+"/explain/vitamin_d3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Потому что.")

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/"+id+"/explain/zinc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/analyses/bad%20id/status", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/analyses?user_id=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Items []historyItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Items, 1)
	assert.Equal(t, id, hist.Items[0].AnalysisID)

	rec = do(t, h, http.MethodGet, "/api/v1/analyses", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRejectsBadPaging(t *testing.T) {
	h := NewRouter(newTestService(stubAI{configured: true}), Options{})

	for _, q := range []string{
		"page=9223372036854775807",
		"page=" + strconv.Itoa(maxPage+1),
		"page=abc",
		"page_size=1e3",
	} {
		rec := do(t, h, http.MethodGet, "/api/v1/analyses?user_id=u1&"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/analyses?user_id=u1&page="+strconv.Itoa(maxPage), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1","items":[]}`, rec.Body.String())
}

func TestAnalyzeAlwaysOKWithDefaultGuards(t *testing.T) {
	cfg := config.Default()
	h := NewRouter(newTestService(stubAI{}), Options{
		APIKeys:      cfg.Server.APIKeys,
		RateLimitRPS: cfg.Server.RateLimit.RPS,
		RateBurst:    cfg.Server.RateLimit.Burst,
		AllowedHosts: cfg.Server.AllowedHosts,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})

	for i := range 3 * cfg.Server.RateLimit.Burst {
		rec := do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {"age": 30}}`)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
}

func TestCacheEndpoints(t *testing.T) {
	h := NewRouter(newTestService(stubAI{configured: true}), Options{})
	fp := intake.Fingerprint(intake.Answers{"age": float64(35)})

	rec := do(t, h, http.MethodDelete, "/api/v1/cache/"+fp, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted"`)

	rec = do(t, h, http.MethodDelete, "/api/v1/cache/not-a-fingerprint", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"cleared"}`, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	h := NewRouter(newTestService(stubAI{}), Options{})

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, false, health["ai_configured"])

	rec = do(t, h, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running"`)

	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	h := NewRouter(newTestService(stubAI{}), Options{APIKeys: map[string]string{"web": "secret"}})

	rec := do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"form_data": {}}`))
	req.Header.Set("X-API-Key", "secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := middleware.NewMetrics(prometheus.NewRegistry())
	svc := newTestService(stubAI{})
	svc.Observer = m
	h := NewRouter(svc, Options{Metrics: m})

	do(t, h, http.MethodPost, "/api/v1/analyze", `{"form_data": {"age": 20}}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `supplement_advisor_analysis_results_total{source="rules"} 1`)
	assert.Contains(t, body, `supplement_advisor_analysis_ai_failures_total{kind="not_configured"} 1`)
	assert.Contains(t, body, `route="/api/v1/analyze"`)
}
