// Package rules is the deterministic recommender used whenever the LLM path is
// unavailable. Every rule is independent and owns a fixed recommendation ID.
package rules

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/analysis"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
)

// Confidence reported for every rule-based outcome, regardless of matches.
const Confidence = 0.6

const (
	defaultAge      = 30
	seniorAge       = 50
	defaultDose     = "По инструкции"
	defaultDuration = "1-2 месяца"
)

// Disclaimer closes every rule-based text.
const Disclaimer = `ВАЖНО: Данные рекомендации носят информационный характер и не заменяют консультацию с врачом. ` +
	`Перед началом приема БАДов обязательно проконсультируйтесь со специалистом, особенно если у вас есть ` +
	`хронические заболевания или вы принимаете лекарства.`

var (
	fatigueTerms   = []string{"усталость", "упадок сил", "fatigue"}
	immunityTerms  = []string{"иммунитет", "immunity"}
	digestionTerms = []string{"пищеварение", "вздутие", "digestion"}
)

type basic struct {
	id, name, keyword string
	priority          analysis.Priority
	reason            string
}

var basics = []basic{
	{"vitamin_d3", "Витамин D3", "витамин d3", analysis.PriorityHigh, "Базовая поддержка иммунитета и костей"},
	{"omega_3", "Омега-3", "омега-3", analysis.PriorityMedium, "Поддержка сердечно-сосудистой системы"},
	{"magnesium", "Магний", "магний", analysis.PriorityMedium, "Снижение стресса и улучшение сна"},
}

// Engine implements analysis.Fallback.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Infer applies the rules in order. Rules never overwrite each other.
func (e *Engine) Infer(a intake.Answers, entries []catalog.Entry) *analysis.Outcome {
	recs := make(map[string]analysis.Recommendation)
	order := make([]string, 0, 8)

	add := func(id string, r analysis.Recommendation) {
		if _, exists := recs[id]; exists {
			return
		}
		recs[id] = r
		order = append(order, id)
	}

	age, ok := a.Int(intake.FieldAge)
	if !ok {
		age = defaultAge
	}
	symptoms := a.Strings(intake.FieldSymptoms)
	goals := a.Strings(intake.FieldGoals)

	// 1. basic support for everyone, limited to what the catalog carries
	for _, b := range basics {
		if inCatalog(entries, b.keyword) {
			add(b.id, analysis.Recommendation{
				Name:       b.name,
				Dose:       defaultDose,
				Duration:   defaultDuration,
				Priority:   b.priority,
				Confidence: 0.7,
				Reason:     b.reason,
			})
		}
	}

	// 2. fatigue
	if mentions(symptoms, fatigueTerms) {
		add("b_complex", analysis.Recommendation{
			Name:       "Витамины группы B",
			Dose:       "1 капсула утром",
			Duration:   "1 месяц",
			Priority:   analysis.PriorityHigh,
			Confidence: 0.8,
			Reason:     "Поддержка энергии при усталости",
		})
	}

	// 3. immunity goal
	if mentions(goals, immunityTerms) && inCatalog(entries, "цинк") {
		add("zinc", analysis.Recommendation{
			Name:       "Цинк",
			Dose:       "15 мг в день",
			Duration:   "1 месяц",
			Priority:   analysis.PriorityMedium,
			Confidence: 0.6,
			Reason:     "Поддержка иммунитета",
		})
	}

	// 4. age
	if age >= seniorAge && inCatalog(entries, "коэнзим") {
		add("coenzyme_q10", analysis.Recommendation{
			Name:       "Коэнзим Q10",
			Dose:       "100 мг в день",
			Duration:   "2 месяца",
			Priority:   analysis.PriorityLow,
			Confidence: 0.6,
			Reason:     "Энергетический обмен клеток после 50 лет",
		})
	}

	// 5. digestion
	if (mentions(goals, digestionTerms) || mentions(symptoms, digestionTerms)) && inCatalog(entries, "пробиотик") {
		add("probiotic", analysis.Recommendation{
			Name:       "Пробиотик",
			Dose:       "1 капсула в день",
			Duration:   "1 месяц",
			Priority:   analysis.PriorityMedium,
			Confidence: 0.6,
			Reason:     "Поддержка микрофлоры кишечника",
		})
	}

	// 6. never answer with nothing
	if len(recs) == 0 {
		add("general_support", analysis.Recommendation{
			Name:       "Мультивитамины",
			Dose:       "1 капсула в день",
			Duration:   "1 месяц",
			Priority:   analysis.PriorityLow,
			Confidence: 0.5,
			Reason:     "Базовая поддержка организма",
		})
	}

	names := make([]string, 0, len(order))
	for _, id := range order {
		names = append(names, recs[id].Name)
	}

	return &analysis.Outcome{
		Source:          analysis.SourceRules,
		Recommendations: recs,
		Text:            summary(names),
		Confidence:      Confidence,
	}
}

func summary(names []string) string {
	return fmt.Sprintf("На основе анализа вашей анкеты подобраны следующие БАДы: %s.\n\n"+
		"Рекомендации составлены с учетом ваших индивидуальных особенностей и целей. "+
		"Данные БАДы могут помочь восполнить недостаток важных витаминов и минералов.\n\n%s\n\n"+
		"Рекомендуется проконсультироваться с врачом через 1 месяц приема для оценки эффективности.",
		strings.Join(names, ", "), Disclaimer)
}

// inCatalog matches a rule keyword against catalog names, case-insensitively, in
// either direction so "Витамин D3 1000 МЕ" and "Витамин D3" both match.
func inCatalog(entries []catalog.Entry, keyword string) bool {
	kw := strings.ToLower(keyword)
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, kw) || strings.Contains(kw, name) {
			return true
		}
	}
	return false
}

func mentions(items, terms []string) bool {
	for _, it := range items {
		s := strings.ToLower(it)
		for _, t := range terms {
			if strings.Contains(s, t) {
				return true
			}
		}
	}
	return false
}
