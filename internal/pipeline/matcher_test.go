package pipeline

import (
	"testing"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

func TestCategoryMatcher_Resolve(t *testing.T) {
	categories := []domain.Category{
		{ID: 10, Title: "Groceries"},
		{ID: 11, Title: "Dining Out"},
		{ID: 12, Title: "groceries"}, // duplicate title, first wins
		{ID: 13, Title: "  "},
	}
	m := NewCategoryMatcher(categories)

	tests := []struct {
		name  string
		label string
		want  int64
		found bool
	}{
		{"exact", "Groceries", 10, true},
		{"different case", "GROCERIES", 10, true},
		{"extra spaces", "  dining out ", 11, true},
		{"unknown", "Travel", 0, false},
		{"empty", "", 0, false},
		{"partial", "Dining", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Resolve(tt.label)
			if (got != nil) != tt.found {
				t.Fatalf("Resolve(%q) = %v, found want %v", tt.label, got, tt.found)
			}
			if got != nil && *got != tt.want {
				t.Errorf("Resolve(%q) = %d, want %d", tt.label, *got, tt.want)
			}
		})
	}
}

func TestResolveCategory_Deterministic(t *testing.T) {
	categories := []domain.Category{{ID: 1, Title: "Food"}, {ID: 2, Title: "Transport"}}

	first := ResolveCategory("food", categories)
	for i := 0; i < 10; i++ {
		got := ResolveCategory("food", categories)
		if got == nil || *got != *first {
			t.Fatalf("call %d returned %v, want %d", i, got, *first)
		}
	}
	if ResolveCategory("", categories) != nil {
		t.Error("empty label must resolve to nil")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"FOOD", "FOOD"},
		{"food", "FOOD"},
		{"  Food  ", "FOOD"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeCategory(tt.input); got != tt.want {
				t.Errorf("normalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
