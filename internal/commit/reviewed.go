package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/shopspring/decimal"
)

// ErrInvalidPayload is returned when a reviewed statement fails validation.
var ErrInvalidPayload = errors.New("invalid statement payload")

// ReviewedStatement is a statement the user edited before upload.
type ReviewedStatement struct {
	Bank     string            `json:"bank"`
	Date     string            `json:"date"`
	Expenses []ReviewedExpense `json:"expenses"`
}

// ReviewedExpense is one user-confirmed line item.
type ReviewedExpense struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	CategoryID  *int64          `json:"categoryId,omitempty"`
}

// ReviewedUpload bundles a reviewed payload with its file. DeleteKey names the
// staged task the review came from; it is cleared after commit and doubles as
// the idempotency key.
type ReviewedUpload struct {
	Name      string
	File      []byte
	DeleteKey string
	Statement ReviewedStatement
}

// ReviewedResult is returned by CommitReviewed.
type ReviewedResult struct {
	ID      int64       `json:"id"`
	Bank    domain.Bank `json:"bank"`
	Warning string      `json:"warning,omitempty"`
}

// CommitReviewed validates and persists a user-edited statement. Unlike
// Commit, any invalid expense rejects the whole payload.
func (e *Engine) CommitReviewed(ctx context.Context, userID string, up ReviewedUpload) (*ReviewedResult, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	st, expenses, err := validateReviewed(up)
	if err != nil {
		return nil, err
	}

	id, err := e.writer.CreateStatementWithExpenses(ctx, userID, st, expenses)
	if errors.Is(err, domain.ErrUnknownCategory) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err != nil {
		return nil, fmt.Errorf("CommitReviewed: %w", err)
	}

	res := &ReviewedResult{ID: id, Bank: st.Bank}
	if up.DeleteKey != "" {
		if err := e.store.DeleteMany(ctx, userID, []string{up.DeleteKey}); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("task_id", up.DeleteKey).Msg("Reviewed statement saved but staging entry not removed")
			res.Warning = fmt.Sprintf("staging entry not removed: %v", err)
		}
	}

	e.afterCommit(ctx, userID, id, st, expenses)
	return res, nil
}

func validateReviewed(up ReviewedUpload) (domain.NewStatement, []domain.NewExpense, error) {
	date, err := parseISODate(up.Statement.Date)
	if err != nil {
		return domain.NewStatement{}, nil, fmt.Errorf("%w: date: %v", ErrInvalidPayload, err)
	}

	expenses := make([]domain.NewExpense, 0, len(up.Statement.Expenses))
	for i, re := range up.Statement.Expenses {
		description := strings.TrimSpace(re.Description)
		if description == "" {
			return domain.NewStatement{}, nil, fmt.Errorf("%w: expenses[%d]: description is required", ErrInvalidPayload, i)
		}
		if !domain.ValidAmount(re.Amount) {
			return domain.NewStatement{}, nil, fmt.Errorf("%w: expenses[%d]: amount %s out of range or precision", ErrInvalidPayload, i, re.Amount)
		}
		d, err := parseISODate(re.Date)
		if err != nil {
			return domain.NewStatement{}, nil, fmt.Errorf("%w: expenses[%d]: date: %v", ErrInvalidPayload, i, err)
		}
		expenses = append(expenses, domain.NewExpense{
			Description: description,
			Amount:      re.Amount,
			Date:        d,
			CategoryID:  re.CategoryID,
		})
	}

	st := domain.NewStatement{
		Name:         up.Name,
		Date:         date,
		Bank:         domain.ParseBank(up.Statement.Bank),
		File:         up.File,
		SourceTaskID: up.DeleteKey,
	}
	return st, expenses, nil
}

// parseISODate accepts an RFC 3339 timestamp or a plain YYYY-MM-DD date.
func parseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not an ISO date", s)
	}
	return t, nil
}
