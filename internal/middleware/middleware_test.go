package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(ClientFromContext(r.Context())))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"web": "k-web", "bot": "k-bot"})(okHandler)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		code   int
		client string
	}{
		{"missing", "/api/v1/analyze", nil, http.StatusUnauthorized, ""},
		{"wrong", "/api/v1/analyze", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, ""},
		{"header key", "/api/v1/analyze", map[string]string{"X-API-Key": "k-web"}, http.StatusOK, "web"},
		{"bearer", "/api/v1/analyze", map[string]string{"Authorization": "Bearer k-bot"}, http.StatusOK, "bot"},
		{"probe", "/health", nil, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := serve(h, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.client, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler)
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrustedHosts(t *testing.T) {
	h := TrustedHosts([]string{"api.example.com", "*.internal.example.com"})(okHandler)

	for host, code := range map[string]int{
		"api.example.com":          http.StatusOK,
		"API.example.com:8000":     http.StatusOK,
		"svc.internal.example.com": http.StatusOK,
		"evil.com":                 http.StatusBadRequest,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		assert.Equal(t, code, serve(h, req).Code, host)
	}

	open := TrustedHosts([]string{"*"})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything"
	assert.Equal(t, http.StatusOK, serve(open, req).Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(okHandler)
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, req()).Code)
	assert.Equal(t, http.StatusOK, serve(h, req()).Code)
	rec := serve(h, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	other := req()
	other.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(h, other).Code)

	probe := httptest.NewRequest(http.MethodGet, "/health", nil)
	probe.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, http.StatusOK, serve(h, probe).Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, 0)(okHandler)
	for range 5 {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	}
}

func TestLoggingStampsProcessTime(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(ProcessTimeHeader))
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
}

func TestReadinessHandler(t *testing.T) {
	h := ReadinessHandler(map[string]HealthChecker{
		"ok":   CheckFunc(func(context.Context) error { return nil }),
		"down": CheckFunc(func(context.Context) error { return errors.New("refused") }),
	})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "unavailable", got.Status)
	assert.Equal(t, "healthy", got.Checks["ok"].Status)
	assert.Equal(t, CheckStatus{Status: "unhealthy", Message: "refused"}, got.Checks["down"])
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.Outcome(analysis.SourceRules)
	m.AdapterFailure(analysis.KindTimeout)

	h := m.Middleware(okHandler)
	serve(h, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	body := serve(m.Handler(), httptest.NewRequest(http.MethodGet, "/metrics", nil)).Body.String()
	for _, line := range []string{
		`supplement_advisor_analysis_cache_lookups_total{result="hit"} 1`,
		`supplement_advisor_analysis_cache_lookups_total{result="miss"} 2`,
		`supplement_advisor_analysis_results_total{source="rules"} 1`,
		`supplement_advisor_analysis_ai_failures_total{kind="timeout"} 1`,
		`supplement_advisor_http_requests_total{method="GET",route="unmatched",status="200"} 1`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateUserID(""))
	assert.NoError(t, ValidateUserID("user.1@mail-x"))
	assert.Error(t, ValidateUserID("has space"))
	assert.Error(t, ValidateUserID(strings.Repeat("a", 129)))

	assert.NoError(t, ValidateAnalysisID("analysis_form_u1_1700000000000000000"))
	assert.Error(t, ValidateAnalysisID("../etc"))

	assert.NoError(t, ValidateSupplementID("vitamin_d3"))
	assert.Error(t, ValidateSupplementID("vitamin d3"))

	assert.NoError(t, ValidateFingerprint(strings.Repeat("ab", 32)))
	assert.Error(t, ValidateFingerprint(strings.Repeat("AB", 32)))

	assert.Equal(t, "abc", SanitizeString("  a\x00b\x07c "))
}
