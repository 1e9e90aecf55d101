package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/rs/zerolog"
)

// CategoriesHandler handles category and tag endpoints.
type CategoriesHandler struct {
	repo CategoryRepository
	log  zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(repo CategoryRepository, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		repo: repo,
		log:  log,
	}
}

// ListCategories handles GET /api/categories
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	categories, err := h.repo.ListCategories(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// CreateCategory handles POST /api/categories
func (h *CategoriesHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
		Color string `json:"color"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		middleware.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	category, err := h.repo.CreateCategory(r.Context(), userID, title, req.Color)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to create category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, category)
}

// ListTags handles GET /api/tags
func (h *CategoriesHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	tags, err := h.repo.ListTags(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to list tags")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tags":  tags,
		"count": len(tags),
	})
}

// CreateTag handles POST /api/tags
func (h *CategoriesHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		middleware.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	tag, err := h.repo.CreateTag(r.Context(), userID, title)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to create tag")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create tag")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tag)
}
