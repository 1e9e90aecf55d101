package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Tasks      *TasksHandler
	Statements *StatementsHandler
	Expenses   *ExpensesHandler
	Categories *CategoriesHandler
	Jobs       *JobsHandler
}

// NewRouter mounts every API route and wraps them in the standard middleware
// chain. /health is served without authentication.
func NewRouter(h Handlers, log zerolog.Logger) http.Handler {
	root := mux.NewRouter()

	root.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	api := root.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth)

	api.HandleFunc("/tasks", h.Tasks.List).Methods(http.MethodGet)
	api.HandleFunc("/tasks", h.Tasks.Upload).Methods(http.MethodPost)
	api.HandleFunc("/tasks", h.Tasks.Commit).Methods(http.MethodPatch)
	api.HandleFunc("/tasks", h.Tasks.Discard).Methods(http.MethodDelete)

	api.HandleFunc("/jobs", h.Jobs.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.Jobs.GetJob).Methods(http.MethodGet)

	api.HandleFunc("/statements", h.Statements.List).Methods(http.MethodGet)
	api.HandleFunc("/statements", h.Statements.Create).Methods(http.MethodPost)
	api.HandleFunc("/statements/{id:[0-9]+}/expenses", h.Statements.Expenses).Methods(http.MethodGet)
	api.HandleFunc("/statements/{id:[0-9]+}/file", h.Statements.File).Methods(http.MethodGet)
	api.HandleFunc("/statements/{id:[0-9]+}/export", h.Statements.Export).Methods(http.MethodGet)

	api.HandleFunc("/expenses", h.Expenses.List).Methods(http.MethodGet)
	api.HandleFunc("/expenses", h.Expenses.Create).Methods(http.MethodPost)
	api.HandleFunc("/expenses", h.Expenses.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/expenses/categorise", h.Expenses.Categorise).Methods(http.MethodPost)
	api.HandleFunc("/expenses/tags", h.Expenses.Tag).Methods(http.MethodPost)
	api.HandleFunc("/expenses/aggregate/month", h.Expenses.AggregateByMonth).Methods(http.MethodGet)
	api.HandleFunc("/expenses/years", h.Expenses.Years).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id:[0-9]+}", h.Expenses.Update).Methods(http.MethodPut)

	api.HandleFunc("/categories", h.Categories.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.Categories.CreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/tags", h.Categories.ListTags).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.Categories.CreateTag).Methods(http.MethodPost)

	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	// Logger reads the request id, so RequestID runs first.
	return middleware.RequestID(
		middleware.Recovery(log)(
			middleware.Logger(log)(
				middleware.CORS(root),
			),
		),
	)
}
