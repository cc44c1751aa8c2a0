package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
	"github.com/bryanwahyu/supplement-advisor/internal/domain/intake"
)

// MaxCatalogEntries bounds how much of the catalog goes into one prompt.
const MaxCatalogEntries = 20

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `Ты - медицинский ИИ-консультант, специализирующийся на общих рекомендациях по здоровью.
Анализируй медицинские анкеты и давай общие рекомендации по БАДам, образу жизни и питанию.

Отвечай ОДНИМ валидным JSON объектом (без markdown, без комментариев, без code fences) по схеме:
{
  "recommendations": {
    "<id БАДа из каталога>": {
      "name": "<название>",
      "dosage": "<дозировка>",
      "duration": "<длительность приема>",
      "priority": "<high|medium|low>",
      "reason": "<причина рекомендации>",
      "confidence": 0.8
    }
  },
  "text": "<подробный текст с рекомендациями>",
  "confidence": 0.85
}

Требования:
- priority только в нижнем регистре: high, medium, low.
- confidence - число от 0 до 1.
- Никогда не ставь медицинские диагнозы. Всегда указывай, что нужна консультация врача.`
}

// GetUserPrompt builds the analysis request around the answers digest and catalog.
func GetUserPrompt(a intake.Answers, entries []catalog.Entry) string {
	var b strings.Builder
	b.WriteString("Анализируемые данные пользователя:\n")
	fmt.Fprintf(&b, "- Возраст: %s\n", scalar(a, intake.FieldAge, "не указан"))
	fmt.Fprintf(&b, "- Пол: %s\n", scalar(a, intake.FieldGender, "не указан"))
	fmt.Fprintf(&b, "- Вес: %s кг\n", scalar(a, intake.FieldWeight, "не указан"))
	fmt.Fprintf(&b, "- Рост: %s см\n", scalar(a, intake.FieldHeight, "не указан"))
	fmt.Fprintf(&b, "- Хронические заболевания: %s\n", list(a, intake.FieldChronicDiseases, "нет"))
	fmt.Fprintf(&b, "- Текущие лекарства: %s\n", list(a, intake.FieldCurrentMedications, "нет"))
	fmt.Fprintf(&b, "- Симптомы: %s\n", list(a, intake.FieldSymptoms, "нет"))
	fmt.Fprintf(&b, "- Цели: %s\n", list(a, intake.FieldGoals, "не указаны"))

	b.WriteString("\nДоступные БАДы:\n")
	for i, e := range entries {
		if i == MaxCatalogEntries {
			break
		}
		fmt.Fprintf(&b, "- ID: %s, Название: %s, Описание: %s, Теги: %s\n",
			e.ID, e.Name, e.Description, strings.Join(e.Tags, ", "))
	}

	b.WriteString(`
Задача:
1. Проанализируй данные пользователя
2. Выбери 3-5 наиболее подходящих БАДов из каталога
3. Для каждого БАДа укажи дозировку и длительность приема
4. Напиши подробный текст с рекомендациями (200-400 слов)
5. Обязательно упомяни необходимость консультации с врачом
`)
	return b.String()
}

// GetExplainSystemPrompt is used when a single recommendation needs explaining.
func GetExplainSystemPrompt() string {
	return "Объясни почему был рекомендован данный БАД на основе анализа. Будь конкретным и понятным."
}

// GetExplainUserPrompt asks for the reasoning behind one supplement of one analysis.
func GetExplainUserPrompt(analysisID, supplementID string) string {
	return fmt.Sprintf("Объясни рекомендацию БАДа %s для анализа %s", supplementID, analysisID)
}

func scalar(a intake.Answers, key, missing string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return missing
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return missing
	}
	return s
}

func list(a intake.Answers, key, missing string) string {
	items := a.Strings(key)
	if len(items) == 0 {
		return missing
	}
	return strings.Join(items, ", ")
}
