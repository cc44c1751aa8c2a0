package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
	"github.com/bryanwahyu/supplement-advisor/internal/infra/ai/prompt"
)

const (
	defaultModel       = "deepseek-chat"
	defaultMaxTokens   = 2000
	defaultTimeout     = 30 * time.Second
	explainMaxTokens   = 300
	explainTemperature = 0.3

	defaultItemConfidence    = 0.85
	defaultOverallConfidence = 0.7
)

// Config for the chat-completion endpoint. An empty APIKey disables the client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Client is the LLM-backed recommendation engine.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewClient(cfg Config) *Client {
	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return c
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: c.timeout}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

// Configured reports whether a credential was supplied.
func (c *Client) Configured() bool { return c.api != nil }

// Infer asks the model for recommendations. It never retries.
func (c *Client) Infer(ctx context.Context, answers intake.Answers, entries []catalog.Entry) (*analysis.Outcome, error) {
	if c.api == nil {
		return nil, analysis.NewAdapterError(analysis.KindNotConfigured, errors.New("no api key configured"))
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(answers, entries)},
		},
	}
	c.applyLimits(&req, c.maxTokens, c.temperature)

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	parsed, err := prompt.ParseResponse(content)
	if err != nil {
		return nil, analysis.NewAdapterError(analysis.KindMalformed, err)
	}
	return toOutcome(parsed)
}

// Explain asks the model why a supplement was part of an analysis.
func (c *Client) Explain(ctx context.Context, analysisID, supplementID string) (string, error) {
	if c.api == nil {
		return "", analysis.NewAdapterError(analysis.KindNotConfigured, errors.New("no api key configured"))
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetExplainSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetExplainUserPrompt(analysisID, supplementID)},
		},
	}
	c.applyLimits(&req, explainMaxTokens, explainTemperature)
	return c.complete(ctx, req)
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", analysis.NewAdapterError(analysis.KindMalformed, errors.New("model returned no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens and leave temperature unset
func (c *Client) applyLimits(req *openai.ChatCompletionRequest, maxTokens int, temperature float32) {
	m := req.Model
	if strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
		return
	}
	req.MaxTokens = maxTokens
	req.Temperature = temperature
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.NewAdapterError(analysis.KindTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return analysis.NewAdapterError(analysis.KindTimeout, err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status == http.StatusPaymentRequired {
		return analysis.NewAdapterError(analysis.KindQuota, fmt.Errorf("%w: %v", analysis.ErrQuotaExceeded, err))
	}
	return analysis.NewAdapterError(analysis.KindTransport, fmt.Errorf("failed to create chat completion: %w", err))
}

func toOutcome(r *prompt.Response) (*analysis.Outcome, error) {
	if len(r.Recommendations) == 0 {
		return nil, analysis.NewAdapterError(analysis.KindMalformed, errors.New("response has no recommendations"))
	}
	recs := make(map[string]analysis.Recommendation, len(r.Recommendations))
	for id, it := range r.Recommendations {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			name = id
		}
		dose := it.Dose
		if dose == "" {
			dose = it.Dosage
		}
		conf := defaultItemConfidence
		if it.Confidence != nil {
			conf = *it.Confidence
		}
		recs[id] = analysis.Recommendation{
			Name:       name,
			Dose:       dose,
			Duration:   it.Duration,
			Priority:   analysis.ParsePriority(strings.ToLower(strings.TrimSpace(it.Priority))),
			Confidence: analysis.Clamp(conf),
			Reason:     it.Reason,
		}
	}
	text := strings.TrimSpace(r.Text)
	if text == "" {
		text = "Рекомендации недоступны"
	}
	overall := defaultOverallConfidence
	if r.Confidence != nil {
		overall = *r.Confidence
	}
	return &analysis.Outcome{
		Source:          analysis.SourceAI,
		Recommendations: recs,
		Text:            text,
		Confidence:      analysis.Clamp(overall),
	}, nil
}
