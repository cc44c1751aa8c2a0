package analysis

import (
	"time"
)

// Priority of a single recommendation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free text onto a known priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// Rank orders priorities high -> low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

// Source tells which engine produced a result.
type Source string

const (
	SourceAI       Source = "ai"
	SourceRules    Source = "rules"
	SourceDegraded Source = "degraded"
)

// Recommendation is one suggested supplement.
type Recommendation struct {
	Name       string   `json:"name"`
	Dose       string   `json:"dose"`
	Duration   string   `json:"duration"`
	Priority   Priority `json:"priority"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// Outcome is what an engine hands back to the orchestrator.
type Outcome struct {
	Source          Source
	Recommendations map[string]Recommendation
	Text            string
	Confidence      float64
}

// Result is the immutable analysis returned to callers and cached by fingerprint.
type Result struct {
	ID               string                    `json:"analysis_id"`
	FormID           string                    `json:"form_id"`
	UserID           string                    `json:"user_id"`
	Fingerprint      string                    `json:"fingerprint"`
	Source           Source                    `json:"source"`
	Recommendations  map[string]Recommendation `json:"recommended_supplements"`
	Text             string                    `json:"recommendations_text"`
	Confidence       float64                   `json:"confidence"`
	ProcessingTimeMS int64                     `json:"processing_time_ms"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// Clone returns a deep copy so cached values are never shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Recommendations = make(map[string]Recommendation, len(r.Recommendations))
	for k, v := range r.Recommendations {
		c.Recommendations[k] = v
	}
	return &c
}

// Record is the persisted form of a Result.
type Record struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	UserID      string    `json:"user_id"`
	Fingerprint string    `json:"fingerprint"`
	Source      Source    `json:"source"`
	Confidence  float64   `json:"confidence"`
	Payload     string    `json:"payload"` // Result as JSON
	CreatedAt   time.Time `json:"created_at"`
}

// Status of a stored analysis
type Status struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
}

// Clamp keeps a confidence inside [0,1].
func Clamp(v float64) float64 {
	if v != v || v < 0 { // NaN
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
