// Package catalog provides the built-in supplement list.
package catalog

import (
	"context"

	domain "github.com/bryanwahyu/supplement-advisor/internal/domain/catalog"
)

// Static serves a fixed in-memory catalog.
type Static struct {
	entries []domain.Entry
}

// NewStatic returns a provider over entries, or over Default() when entries is nil.
func NewStatic(entries []domain.Entry) *Static {
	if entries == nil {
		entries = Default()
	}
	return &Static{entries: entries}
}

// List returns a copy of the catalog.
func (s *Static) List(_ context.Context) ([]domain.Entry, error) {
	out := make([]domain.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Default is the catalog shipped with the service.
func Default() []domain.Entry {
	return []domain.Entry{
		{ID: "vitamin_d3", Name: "Витамин D3", Description: "Поддержка иммунной системы и костей", Tags: []string{"vitamins", "иммунитет", "кости"}, Price: price(890), InStock: true},
		{ID: "omega_3", Name: "Омега-3", Description: "Поддержка сердечно-сосудистой системы", Tags: []string{"fatty_acids", "сердце", "мозг"}, Price: price(1290), InStock: true},
		{ID: "magnesium", Name: "Магний", Description: "Улучшение качества сна и снятие стресса", Tags: []string{"minerals", "сон", "стресс"}, Price: price(750), InStock: true},
		{ID: "vitamin_b12", Name: "Витамин B12", Description: "Поддержка нервной системы и энергии", Tags: []string{"vitamins", "энергия"}, Price: price(640), InStock: true},
		{ID: "b_complex", Name: "Витамины группы B", Description: "Энергия и поддержка нервной системы", Tags: []string{"vitamins", "энергия", "усталость"}, Price: price(980), InStock: true},
		{ID: "zinc", Name: "Цинк", Description: "Поддержка иммунитета и заживления", Tags: []string{"minerals", "иммунитет"}, Price: price(520), InStock: true},
		{ID: "probiotic", Name: "Пробиотик Комплекс 50 млрд КОЕ", Description: "Поддержка микрофлоры кишечника", Tags: []string{"пищеварение", "иммунитет"}, Price: price(1890), InStock: true},
		{ID: "coenzyme_q10", Name: "Коэнзим Q10 Убихинол 100 мг", Description: "Энергетический обмен и поддержка сердца", Tags: []string{"антиоксидант", "сердце"}, Price: price(2190), InStock: true},
		{ID: "ashwagandha", Name: "Ашваганда Экстракт 500 мг", Description: "Адаптоген для снижения стресса", Tags: []string{"стресс", "сон"}, Price: price(1190), InStock: false},
	}
}

func price(v float64) *float64 { return &v }
