package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/catalog"
)

// fakeLLM answers chat completions with content, or with status and an error body.
func fakeLLM(t *testing.T, status int, content string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"insufficient_quota"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "deepseek-chat",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, Model: "deepseek-chat", MaxTokens: 1500, Temperature: 0.7, Timeout: 2 * time.Second})
}

func kindOf(t *testing.T, err error) analysis.AdapterErrorKind {
	t.Helper()
	var ae *analysis.AdapterError
	require.True(t, errors.As(err, &ae), "expected *AdapterError, got %T", err)
	return ae.Kind
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	assert.False(t, c.Configured())

	_, err := c.Infer(t.Context(), intake.Answers{}, nil)
	assert.Equal(t, analysis.KindNotConfigured, kindOf(t, err))

	_, err = c.Explain(t.Context(), "a", "b")
	assert.Equal(t, analysis.KindNotConfigured, kindOf(t, err))
}

func TestInferParsesRecommendations(t *testing.T) {
	content := "```json\n" + `{
		"recommendations": {
			"vitamin_d3": {"name": "Витамин D3", "dosage": "2000 МЕ", "duration": "2 месяца", "priority": "HIGH", "reason": "дефицит", "confidence": 0.9},
			"omega_3": {"dose": "1 г", "priority": "urgent", "confidence": 1.7}
		},
		"text": "Итог",
		"confidence": 0.8
	}` + "\n```"
	var seen openai.ChatCompletionRequest
	srv := fakeLLM(t, http.StatusOK, content, &seen)

	out, err := newTestClient(srv.URL).Infer(t.Context(), intake.Answers{intake.FieldAge: 40}, catalog.Default())
	require.NoError(t, err)

	assert.Equal(t, analysis.SourceAI, out.Source)
	assert.Equal(t, "Итог", out.Text)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)

	d3 := out.Recommendations["vitamin_d3"]
	assert.Equal(t, "Витамин D3", d3.Name)
	assert.Equal(t, "2000 МЕ", d3.Dose)
	assert.Equal(t, analysis.PriorityHigh, d3.Priority)
	assert.InDelta(t, 0.9, d3.Confidence, 1e-9)

	omega := out.Recommendations["omega_3"]
	assert.Equal(t, "omega_3", omega.Name)
	assert.Equal(t, "1 г", omega.Dose)
	assert.Equal(t, analysis.PriorityMedium, omega.Priority)
	assert.Equal(t, 1.0, omega.Confidence)

	assert.Equal(t, "deepseek-chat", seen.Model)
	assert.Equal(t, 1500, seen.MaxTokens)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, seen.ResponseFormat.Type)
	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[1].Content, "Витамин D3")
}

func TestInferDefaults(t *testing.T) {
	srv := fakeLLM(t, http.StatusOK, `{"recommendations": {"zinc": {"name": "Цинк"}}}`, nil)

	out, err := newTestClient(srv.URL).Infer(t.Context(), intake.Answers{}, nil)
	require.NoError(t, err)

	assert.Equal(t, defaultOverallConfidence, out.Confidence)
	assert.Equal(t, defaultItemConfidence, out.Recommendations["zinc"].Confidence)
	assert.Equal(t, "Рекомендации недоступны", out.Text)
}

func TestInferFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    analysis.AdapterErrorKind
	}{
		{"not json", http.StatusOK, "sorry, I cannot help", analysis.KindMalformed},
		{"no recommendations", http.StatusOK, `{"recommendations": {}, "text": "x"}`, analysis.KindMalformed},
		{"rate limited", http.StatusTooManyRequests, "", analysis.KindQuota},
		{"payment required", http.StatusPaymentRequired, "", analysis.KindQuota},
		{"server error", http.StatusInternalServerError, "", analysis.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeLLM(t, tt.status, tt.content, nil)
			_, err := newTestClient(srv.URL).Infer(t.Context(), intake.Answers{}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, kindOf(t, err))
			if tt.want == analysis.KindQuota {
				assert.ErrorIs(t, err, analysis.ErrQuotaExceeded)
			}
		})
	}
}

func TestInferTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Infer(t.Context(), intake.Answers{}, nil)
	assert.Equal(t, analysis.KindTimeout, kindOf(t, err))
}

func TestExplain(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := fakeLLM(t, http.StatusOK, "Потому что дефицит.", &seen)

	text, err := newTestClient(srv.URL).Explain(t.Context(), "analysis_1", "vitamin_d3")
	require.NoError(t, err)
	assert.Equal(t, "Потому что дефицит.", text)
	assert.Equal(t, explainMaxTokens, seen.MaxTokens)
	assert.InDelta(t, explainTemperature, seen.Temperature, 1e-6)
}

func TestReasoningModelsUseCompletionTokens(t *testing.T) {
	c := &Client{}
	req := openai.ChatCompletionRequest{Model: "o3-mini"}
	c.applyLimits(&req, 100, 0.5)
	assert.Equal(t, 100, req.MaxCompletionTokens)
	assert.Zero(t, req.MaxTokens)
	assert.Zero(t, req.Temperature)
}
