package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ExpensesHandler handles expense query and edit endpoints.
type ExpensesHandler struct {
	repo ExpenseRepository
	log  zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(repo ExpenseRepository, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{
		repo: repo,
		log:  log,
	}
}

// expenseRequest is the body of POST /api/expenses and PUT /api/expenses/{id}.
type expenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Note        string          `json:"note"`
	CategoryID  *int64          `json:"categoryId"`
	Tags        []int64         `json:"tags"`
}

func (req expenseRequest) toNewExpense() (domain.NewExpense, error) {
	date, err := parseDateParam(req.Date)
	if err != nil {
		return domain.NewExpense{}, fmt.Errorf("invalid date %q", req.Date)
	}
	in := domain.NewExpense{
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Date:        date,
		Note:        req.Note,
		CategoryID:  req.CategoryID,
		Tags:        req.Tags,
	}
	if in.Description == "" {
		return in, errors.New("description is required")
	}
	if !domain.ValidAmount(in.Amount) {
		return in, fmt.Errorf("invalid amount %s", in.Amount)
	}
	return in, nil
}

// List handles GET /api/expenses
func (h *ExpensesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := parseExpenseFilter(r.URL.Query())
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.repo.ListExpenses(r.Context(), userID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, page)
}

// Create handles POST /api/expenses
func (h *ExpensesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toNewExpense()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.repo.CreateExpense(r.Context(), userID, in)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to create expense")
		notFoundOr(w, err, "Failed to create expense")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// Update handles PUT /api/expenses/{id}
func (h *ExpensesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toNewExpense()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdateExpense(r.Context(), userID, id, in); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.FromContext(r.Context()).Error().Err(err).Int64("expense_id", id).Msg("Failed to update expense")
		}
		notFoundOr(w, err, "Failed to update expense")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// Delete handles DELETE /api/expenses
func (h *ExpensesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ID []int64 `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ID) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}

	n, err := h.repo.DeleteExpenses(r.Context(), userID, req.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to delete expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Categorise handles POST /api/expenses/categorise
func (h *ExpensesHandler) Categorise(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Assignments []postgres.CategoryAssignment `json:"assignments"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Assignments) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "assignments are required")
		return
	}

	n, err := h.repo.CategoriseExpenses(r.Context(), userID, req.Assignments)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to categorise expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to categorise expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Tag handles POST /api/expenses/tags
func (h *ExpensesHandler) Tag(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Assignments []postgres.TagAssignment `json:"assignments"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Assignments) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "assignments are required")
		return
	}

	if err := h.repo.TagExpenses(r.Context(), userID, req.Assignments); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to tag expenses")
		}
		notFoundOr(w, err, "Failed to tag expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"updated": len(req.Assignments)})
}

// AggregateByMonth handles GET /api/expenses/aggregate/month
func (h *ExpensesHandler) AggregateByMonth(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	start, err := parseDateParam(q.Get("start"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "start must be a date")
		return
	}
	end, err := parseDateParam(q.Get("end"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "end must be a date")
		return
	}
	if end.Before(start) {
		middleware.WriteError(w, http.StatusBadRequest, "end is before start")
		return
	}

	tz := q.Get("tz")
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown time zone")
		return
	}

	totals, err := h.repo.AggregateByMonth(r.Context(), userID, start, end, tz)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to aggregate expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to aggregate expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"months": totals,
		"tz":     tz,
	})
}

// Years handles GET /api/expenses/years
func (h *ExpensesHandler) Years(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	years, err := h.repo.DistinctYears(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list years")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list years")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"years": years})
}

// parseExpenseFilter reads ListExpenses filters from the query string.
func parseExpenseFilter(q url.Values) (postgres.ExpenseFilter, error) {
	var f postgres.ExpenseFilter
	var err error

	if f.StatementIDs, err = parseIDList(q.Get("statement")); err != nil {
		return f, fmt.Errorf("statement: %w", err)
	}
	if f.CategoryIDs, err = parseIDList(q.Get("category")); err != nil {
		return f, fmt.Errorf("category: %w", err)
	}
	if f.TagIDs, err = parseIDList(q.Get("tag")); err != nil {
		return f, fmt.Errorf("tag: %w", err)
	}
	f.Keyword = q.Get("q")
	f.Uncategorised = q.Get("uncategorised") == "true"
	f.OrderBy = q.Get("order_by")
	f.Desc = q.Get("desc") == "true"

	if s := q.Get("start"); s != "" {
		t, err := parseDateParam(s)
		if err != nil {
			return f, fmt.Errorf("start: invalid date %q", s)
		}
		f.Start = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := parseDateParam(s)
		if err != nil {
			return f, fmt.Errorf("end: invalid date %q", s)
		}
		f.End = &t
	}

	if s := q.Get("page"); s != "" {
		if f.Page, err = strconv.Atoi(s); err != nil {
			return f, fmt.Errorf("page: %w", err)
		}
	}
	if s := q.Get("per_page"); s != "" {
		if f.PerPage, err = strconv.Atoi(s); err != nil {
			return f, fmt.Errorf("per_page: %w", err)
		}
	}
	return f, nil
}

// parseIDList parses a comma separated id list; an empty string is no ids.
func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDateParam accepts YYYY-MM-DD or RFC3339.
func parseDateParam(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
