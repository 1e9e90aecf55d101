package pipeline

import (
	"strings"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

const basePrompt = "You are an expense reader for credit card and bank statements.\n\n" +
	"Task:\n" +
	"- Extract ALL spending line items from the statement.\n" +
	"- Output plain text only, one record per line, fields separated by commas.\n" +
	"- Never use commas inside a field; drop them from merchant names.\n\n" +
	"Format:\n" +
	"- First line: BANK,<bank>,<statement date YYYY-MM-DD>\n" +
	"  <bank> is one of DBS, CITI, CIMB, UOB, HSBC, or No when unsure.\n" +
	"- Every other line: <description>,<amount>,<date YYYY-MM-DD>,<category>\n" +
	"  <amount> is a plain number with at most two decimals and no currency symbol.\n"

const rulesPrompt = "Rules:\n" +
	"- Skip payments to the card, balances brought forward and subtotals.\n" +
	"- Leave <category> empty when no listed category fits; never invent one.\n" +
	"- Do NOT wrap the response in code fences or add any commentary.\n"

// buildCategoriesPrompt lists the user's categories for the model.
func buildCategoriesPrompt(categories []domain.Category) string {
	if len(categories) == 0 {
		return "No categories are defined; leave <category> empty on every line.\n"
	}

	var b strings.Builder
	b.WriteString("Use ONLY the following categories (exact titles):\n")
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		key := normalizeCategory(c.Title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		b.WriteString("  - " + strings.TrimSpace(c.Title) + "\n")
	}
	return b.String()
}

// BuildReadStatementPrompt assembles the full instruction sent with a statement.
func BuildReadStatementPrompt(categories []domain.Category) string {
	return basePrompt + "\n" + buildCategoriesPrompt(categories) + "\n" + rulesPrompt
}
