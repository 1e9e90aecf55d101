package pipeline

import (
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Header keys recognised in the first field of a completion line.
const (
	headerBank = "BANK"
	headerDate = "DATE"
)

// dateLayouts are tried in order for every date field the model emits.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
}

// currencyPrefixes are stripped from amounts before parsing.
var currencyPrefixes = []string{"SGD", "S$", "$"}

// amountPattern is the only amount shape accepted from model output.
var amountPattern = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// ParseCompletion converts the model's line-oriented completion into a
// statement header and its candidate expenses, in source order.
// It never fails: lines that cannot be parsed are counted in Skipped and dropped.
func ParseCompletion(text string, categories []domain.Category) (*domain.ParsedStatement, []domain.CandidateExpense) {
	matcher := NewCategoryMatcher(categories)
	parsed := &domain.ParsedStatement{Bank: domain.BankUnknown}
	expenses := make([]domain.CandidateExpense, 0)

	for i, raw := range strings.Split(cleanCompletion(text), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		fields := splitFields(line)
		switch strings.ToUpper(fields[0]) {
		case headerBank:
			parseBankHeader(parsed, fields)
			continue
		case headerDate:
			if len(fields) >= 2 {
				if d, ok := parseDate(fields[1]); ok {
					parsed.StatementDate = &d
				}
			}
			continue
		}

		expense, ok := parseExpenseLine(fields)
		if !ok {
			parsed.Skipped++
			continue
		}
		expense.Line = i + 1
		expense.CategoryID = matcher.Resolve(expense.CategoryLabel)
		expenses = append(expenses, expense)
	}

	parsed.Expenses = expenses
	return parsed, expenses
}

// parseBankHeader handles "BANK,<bank>[,<date>]".
func parseBankHeader(parsed *domain.ParsedStatement, fields []string) {
	if len(fields) >= 2 {
		parsed.Bank = domain.ParseBank(fields[1])
	}
	if len(fields) >= 3 {
		if d, ok := parseDate(fields[2]); ok {
			parsed.StatementDate = &d
		}
	}
}

// parseExpenseLine handles "description,amount,date[,categoryLabel]".
func parseExpenseLine(fields []string) (domain.CandidateExpense, bool) {
	if len(fields) != 3 && len(fields) != 4 {
		return domain.CandidateExpense{}, false
	}

	description := fields[0]
	if description == "" {
		return domain.CandidateExpense{}, false
	}

	amount, ok := parseAmount(fields[1])
	if !ok {
		return domain.CandidateExpense{}, false
	}

	date, ok := parseDate(fields[2])
	if !ok {
		return domain.CandidateExpense{}, false
	}

	expense := domain.CandidateExpense{
		Description: description,
		Amount:      amount,
		Date:        date,
	}
	if len(fields) == 4 {
		expense.CategoryLabel = fields[3]
	}
	return expense, true
}

// parseAmount parses a fixed-point money value with at most two fractional digits.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	for _, prefix := range currencyPrefixes {
		if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	if !amountPattern.MatchString(s) {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if !domain.ValidAmount(d) {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// cleanCompletion drops markdown fences the model sometimes wraps its output in.
func cleanCompletion(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
