package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/export"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/rs/zerolog"
)

// StatementsHandler handles committed statement endpoints.
type StatementsHandler struct {
	repo      StatementRepository
	committer Committer
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(repo StatementRepository, committer Committer, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		repo:      repo,
		committer: committer,
		log:       log,
	}
}

// Create handles POST /api/statements
//
// The form carries the PDF as "statement", the reviewed statement JSON as
// "payload" and optionally the staged task it came from as "deletekey".
func (h *StatementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	name, data, ok := readStatementFile(w, r)
	if !ok {
		return
	}

	var payload commit.ReviewedStatement
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	res, err := h.committer.CommitReviewed(ctx, userID, commit.ReviewedUpload{
		Name:      name,
		File:      data,
		DeleteKey: strings.TrimSpace(r.FormValue("deletekey")),
		Statement: payload,
	})
	switch {
	case errors.Is(err, commit.ErrInvalidPayload):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrDuplicateStatement):
		middleware.WriteError(w, http.StatusConflict, "Statement already committed")
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to save reviewed statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save statement")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, res)
}

// List handles GET /api/statements
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	statements, err := h.repo.ListStatements(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": statements,
		"count":      len(statements),
	})
}

// Expenses handles GET /api/statements/{id}/expenses
func (h *StatementsHandler) Expenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	expenses, err := h.repo.ListStatementExpenses(r.Context(), userID, id)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Int64("statement_id", id).Msg("Failed to list statement expenses")
		notFoundOr(w, err, "Failed to list expenses")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// File handles GET /api/statements/{id}/file
func (h *StatementsHandler) File(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	name, data, err := h.repo.GetStatementFile(r.Context(), userID, id)
	if err != nil {
		notFoundOr(w, err, "Failed to load statement file")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "Statement has no stored file")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Export handles GET /api/statements/{id}/export
func (h *StatementsHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	st, err := h.repo.GetStatement(ctx, userID, id)
	if err != nil {
		notFoundOr(w, err, "Failed to load statement")
		return
	}
	expenses, err := h.repo.ListStatementExpenses(ctx, userID, id)
	if err != nil {
		log.Error().Err(err).Int64("statement_id", id).Msg("Failed to load statement expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export statement")
		return
	}

	f, err := export.StatementWorkbook(*st, expenses)
	if err != nil {
		log.Error().Err(err).Int64("statement_id", id).Msg("Failed to build workbook")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to export statement")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"statement-%d.xlsx\"", id))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		log.Error().Err(err).Int64("statement_id", id).Msg("Failed to write workbook")
	}
}
