package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds the absolute value of a persisted amount.
var MaxAmount = decimal.NewFromInt(999999999)

// AmountScale is the number of fractional digits kept for money.
const AmountScale = 2

// maxAmountExponent bounds the decimal exponent checked before any rescaling,
// so values like 1e10000000 are rejected without big-integer arithmetic.
const maxAmountExponent = 18

// CandidateExpense is one line item extracted from statement text, not yet
// validated for persistence.
type CandidateExpense struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	CategoryLabel string          `json:"categoryLabel,omitempty"`
	CategoryID    *int64          `json:"categoryId,omitempty"`

	// Line is the 1-based line number in the completion text.
	Line int `json:"line,omitempty"`
}

// Valid reports whether the candidate can be persisted.
func (c CandidateExpense) Valid() bool {
	if strings.TrimSpace(c.Description) == "" {
		return false
	}
	if c.Date.IsZero() {
		return false
	}
	return ValidAmount(c.Amount)
}

// ValidAmount reports whether d is a monetary value with at most two
// fractional digits inside the persisted range.
func ValidAmount(d decimal.Decimal) bool {
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return false
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return false
	}
	return d.Equal(d.Truncate(AmountScale))
}

// ParsedStatement is the header-level result for one uploaded document.
type ParsedStatement struct {
	Bank          Bank               `json:"bank"`
	StatementDate *time.Time         `json:"statementDate,omitempty"`
	Expenses      []CandidateExpense `json:"expenses"`

	// Skipped counts lines dropped as malformed or with invalid amounts.
	Skipped int `json:"skipped"`
}

// Total sums the amounts of all candidates.
func (p *ParsedStatement) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.Expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// Expense is a persisted expense row.
type Expense struct {
	ID            int64           `json:"id"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note,omitempty"`
	CategoryID    *int64          `json:"categoryId,omitempty"`
	CategoryTitle string          `json:"categoryTitle,omitempty"`
	CategoryColor string          `json:"categoryColor,omitempty"`
	StatementID   *int64          `json:"statementId,omitempty"`
	StatementName string          `json:"statementName,omitempty"`
	UserID        string          `json:"userId"`
	Tags          []int64         `json:"tags"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewExpense holds the fields needed to insert an expense.
type NewExpense struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	Note        string          `json:"note,omitempty"`
	CategoryID  *int64          `json:"categoryId,omitempty"`
	Tags        []int64         `json:"tags,omitempty"`
}
