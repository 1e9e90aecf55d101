package pipeline

import (
	"strings"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// CategoryMatcher resolves free-text category labels against a fixed list of
// categories. It never touches storage.
type CategoryMatcher struct {
	byTitle map[string]int64
}

// NewCategoryMatcher indexes categories by normalized title. When two
// categories share a title the first one wins.
func NewCategoryMatcher(categories []domain.Category) *CategoryMatcher {
	m := &CategoryMatcher{byTitle: make(map[string]int64, len(categories))}
	for _, c := range categories {
		key := normalizeCategory(c.Title)
		if key == "" {
			continue
		}
		if _, exists := m.byTitle[key]; !exists {
			m.byTitle[key] = c.ID
		}
	}
	return m
}

// Resolve returns the matching category id, or nil when the label is empty
// or unknown.
func (m *CategoryMatcher) Resolve(label string) *int64 {
	key := normalizeCategory(label)
	if key == "" {
		return nil
	}
	id, ok := m.byTitle[key]
	if !ok {
		return nil
	}
	return &id
}

// ResolveCategory is a one-shot form of CategoryMatcher.Resolve.
func ResolveCategory(label string, categories []domain.Category) *int64 {
	return NewCategoryMatcher(categories).Resolve(label)
}

// normalizeCategory normalizes a category name for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
