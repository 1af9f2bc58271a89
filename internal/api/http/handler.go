package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/notifier"
	"github.com/veranemoloko/retro-installer/internal/registry"
	"github.com/veranemoloko/retro-installer/internal/validation"
)

// TaskManager defines the install operations exposed over HTTP.
type TaskManager interface {
	QueueDownload(ctx context.Context, gameName, consoleCode string, src domain.SourceDescriptor, hint *domain.CatalogHint) (*domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	GetAllTasks(ctx context.Context) ([]*domain.Task, error)
	GetActiveTasks(ctx context.Context) ([]*domain.Task, error)
	CancelDownload(ctx context.Context, id string) (*domain.Task, error)
	ClearCompleted(ctx context.Context) (int, error)
	AddCallback(cb notifier.Callback) notifier.SubscriptionID
	RemoveCallback(id notifier.SubscriptionID) bool
}

// ConsoleCatalog lists the consoles games can be installed for.
type ConsoleCatalog interface {
	List() []registry.Console
	SearchGames(code, query string) []registry.GameEntry
}

// TaskHandler handles HTTP requests for install tasks.
type TaskHandler struct {
	manager  TaskManager
	consoles ConsoleCatalog
	logger   *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(manager TaskManager, consoles ConsoleCatalog, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		manager:  manager,
		consoles: consoles,
		logger:   logger,
	}
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.ValidateRequest(&req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.manager.QueueDownload(ctx, req.GameName, req.ConsoleCode, domain.SourceDescriptor(req.Source), req.CatalogHint.ToHint())
	if err != nil {
		h.writeManagerError(w, "failed to queue install", err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.NewTaskResponse(task))
}

// ListTasks handles GET /tasks. With ?active=true only unfinished tasks are
// returned.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active flag")
			return
		}
		activeOnly = parsed
	}

	var (
		tasks []*domain.Task
		err   error
	)
	if activeOnly {
		tasks, err = h.manager.GetActiveTasks(ctx)
	} else {
		tasks, err = h.manager.GetAllTasks(ctx)
	}
	if err != nil {
		h.writeManagerError(w, "failed to list tasks", err)
		return
	}

	writeJSON(w, http.StatusOK, toResponses(tasks))
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.manager.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeManagerError(w, "failed to get task", err)
		return
	}

	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// CancelTask handles DELETE /tasks/{taskID}.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.manager.CancelDownload(r.Context(), taskID)
	if err != nil {
		h.writeManagerError(w, "failed to cancel task", err)
		return
	}

	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// ClearCompleted handles POST /tasks/clear.
func (h *TaskHandler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.ClearCompleted(r.Context())
	if err != nil {
		h.writeManagerError(w, "failed to clear tasks", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ListConsoles handles GET /consoles.
func (h *TaskHandler) ListConsoles(w http.ResponseWriter, r *http.Request) {
	consoles := h.consoles.List()
	out := make([]domain.ConsoleResponse, 0, len(consoles))
	for _, c := range consoles {
		out = append(out, domain.ConsoleResponse{
			Code:      c.Code,
			Name:      c.Name,
			Extension: c.Extension,
			Unpacks:   c.Unpack != nil,
			Games:     len(c.Games),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// SearchGames handles GET /consoles/{code}/games?q=.
func (h *TaskHandler) SearchGames(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	games := h.consoles.SearchGames(code, r.URL.Query().Get("q"))
	if games == nil {
		games = []registry.GameEntry{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (h *TaskHandler) writeManagerError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	h.logger.Warn(msg, "error", err)
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound), errors.Is(err, errpkg.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, errpkg.ErrDuplicateTask), errors.Is(err, errpkg.ErrTaskTerminal):
		return http.StatusConflict
	case errors.Is(err, errpkg.ErrInvalidSource), errors.Is(err, errpkg.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errpkg.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponses(tasks []*domain.Task) []domain.TaskResponse {
	out := make([]domain.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, domain.NewTaskResponse(t))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
