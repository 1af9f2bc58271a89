package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up task and console routes, the live task stream, health check, and
// Prometheus metrics endpoint.
func NewRouter(manager TaskManager, consoles ConsoleCatalog, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	taskHandler := NewTaskHandler(manager, consoles, logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.CreateTask)
		r.Get("/", taskHandler.ListTasks)
		r.Post("/clear", taskHandler.ClearCompleted)
		r.Get("/stream", taskHandler.StreamTasks)
		r.Get("/{taskID}", taskHandler.GetTask)
		r.Delete("/{taskID}", taskHandler.CancelTask)
	})

	r.Route("/consoles", func(r chi.Router) {
		r.Get("/", taskHandler.ListConsoles)
		r.Get("/{code}/games", taskHandler.SearchGames)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
