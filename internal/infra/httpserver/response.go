package httpserver

import (
	"math"
	"sort"
	"time"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
)

type recommendationDTO struct {
	SupplementID string  `json:"supplement_id"`
	Name         string  `json:"name"`
	Reason       string  `json:"reason"`
	Dosage       string  `json:"dosage"`
	Duration     string  `json:"duration,omitempty"`
	Priority     string  `json:"priority,omitempty"`
	Confidence   float64 `json:"confidence"`
}

type analysisSummary struct {
	AnalysisID           string   `json:"analysis_id"`
	Source               string   `json:"source"`
	HealthScore          int      `json:"health_score"`
	RiskFactors          []string `json:"risk_factors"`
	RecommendationsCount int      `json:"recommendations_count"`
	Text                 string   `json:"recommendations_text,omitempty"`
}

type analyzeResponse struct {
	Success         bool                `json:"success"`
	Recommendations []recommendationDTO `json:"recommendations"`
	Analysis        analysisSummary     `json:"analysis"`
}

type historyItem struct {
	AnalysisID string    `json:"analysis_id"`
	FormID     string    `json:"form_id"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

var riskFactors = map[domain.Source]string{
	domain.SourceAI:       "Анализ выполнен ИИ",
	domain.SourceRules:    "Анализ выполнен по правилам (ИИ недоступен)",
	domain.SourceDegraded: "Ошибка ИИ анализа",
}

// newAnalyzeResponse flattens a result, highest priority first.
func newAnalyzeResponse(res *domain.Result) analyzeResponse {
	ids := make([]string, 0, len(res.Recommendations))
	for id := range res.Recommendations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := res.Recommendations[ids[i]].Priority.Rank(), res.Recommendations[ids[j]].Priority.Rank()
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})

	recs := make([]recommendationDTO, 0, len(ids))
	for _, id := range ids {
		r := res.Recommendations[id]
		recs = append(recs, recommendationDTO{
			SupplementID: id,
			Name:         r.Name,
			Reason:       r.Reason,
			Dosage:       r.Dose,
			Duration:     r.Duration,
			Priority:     string(r.Priority),
			Confidence:   r.Confidence,
		})
	}

	return analyzeResponse{
		Success:         true,
		Recommendations: recs,
		Analysis: analysisSummary{
			AnalysisID:           res.ID,
			Source:               string(res.Source),
			HealthScore:          healthScore(res.Confidence),
			RiskFactors:          []string{riskFactors[res.Source]},
			RecommendationsCount: len(recs),
			Text:                 res.Text,
		},
	}
}

// healthScore truncates confidence*100; the epsilon absorbs float error so 0.7 gives 70.
func healthScore(confidence float64) int {
	return int(math.Floor(confidence*100 + 1e-9))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
