package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TasksHandler serves uploads and the staged review queue.
type TasksHandler struct {
	store      staging.Store
	publisher  jobs.Publisher
	jobStore   jobs.JobStore
	committer  Committer
	categories CategoryRepository
	log        zerolog.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(store staging.Store, publisher jobs.Publisher, jobStore jobs.JobStore, committer Committer, categories CategoryRepository, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{
		store:      store,
		publisher:  publisher,
		jobStore:   jobStore,
		committer:  committer,
		categories: categories,
		log:        log,
	}
}

// TaskView is a staged task with its parsed preview.
type TaskView struct {
	TaskID    string                  `json:"task_id"`
	Name      string                  `json:"name"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
	Statement *domain.ParsedStatement `json:"statement"`
	Total     string                  `json:"total"`
}

// Upload handles POST /api/tasks. The statement part is either one PDF or a
// zip of PDFs; every PDF becomes its own parse job and task.
func (h *TasksHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	name, data, ok := readUploadPart(w, r)
	if !ok {
		return
	}

	var files []uploadedFile
	isZip := false
	switch http.DetectContentType(data) {
	case "application/pdf":
		files = []uploadedFile{{Name: name, Data: data}}
	case "application/zip":
		isZip = true
		var err error
		files, err = extractZipStatements(data)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "statement must be a PDF or a zip of PDFs")
		return
	}

	queued := make([]queuedTask, 0, len(files))
	for _, f := range files {
		job := &jobs.ParseStatementJob{
			JobID:    uuid.New().String(),
			UserID:   userID,
			TaskID:   uuid.New().String(),
			FileName: f.Name,
			File:     f.Data,
		}
		if err := h.publisher.PublishParseStatement(ctx, job); err != nil {
			log.Error().Err(err).Int("queued", len(queued)).Msg("Failed to enqueue statement parse")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue parsing job")
			return
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("task_id", job.TaskID).
			Str("file", f.Name).
			Int("bytes", len(f.Data)).
			Msg("Statement queued for parsing")
		queued = append(queued, queuedTask{TaskID: job.TaskID, JobID: job.JobID, Name: f.Name})
	}

	if isZip {
		middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"tasks":  queued,
			"status": string(jobs.JobStatusPending),
		})
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id": queued[0].TaskID,
		"job_id":  queued[0].JobID,
		"status":  string(jobs.JobStatusPending),
	})
}

// List handles GET /api/tasks
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	entries, err := h.store.List(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list staged tasks")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	cats, err := h.categories.ListCategories(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	tasks := make([]TaskView, 0, len(entries))
	for _, e := range entries {
		parsed, _ := pipeline.ParseCompletion(e.Completion, cats)
		tasks = append(tasks, TaskView{
			TaskID:    e.TaskID,
			Name:      e.Name,
			CreatedAt: e.CreatedAt,
			ExpiresAt: e.ExpiresAt,
			Statement: parsed,
			Total:     parsed.Total().StringFixed(domain.AmountScale),
		})
	}

	pending := []*jobs.ParseStatementJob{}
	if h.jobStore != nil {
		all, err := h.jobStore.ListJobs(ctx, jobs.JobFilter{UserID: userID})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to list parse jobs")
		}
		for _, j := range all {
			if j.Status != jobs.JobStatusCompleted {
				pending = append(pending, j)
			}
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
		"jobs":  pending,
	})
}

// Commit handles PATCH /api/tasks
func (h *TasksHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids := staging.Dedupe(req.ID)
	if len(ids) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	cats, err := h.categories.ListCategories(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to commit tasks")
		return
	}

	res, err := h.committer.Commit(ctx, userID, ids, cats)
	if err != nil {
		log.Error().Err(err).Strs("task_ids", ids).Msg("Commit failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to commit tasks")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes":  res.Outcomes,
		"committed": res.Count(commit.StatusCommitted),
		"skipped":   res.Count(commit.StatusSkipped),
		"failed":    res.Count(commit.StatusFailed),
	})
}

// Discard handles DELETE /api/tasks
func (h *TasksHandler) Discard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids := staging.Dedupe(req.ID)
	if len(ids) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.store.DeleteMany(r.Context(), userID, ids); err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("Failed to discard tasks")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to discard tasks")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": ids,
	})
}
