package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
	"github.com/veranemoloko/retro-installer/internal/metrics"
	"github.com/veranemoloko/retro-installer/internal/notifier"
	"github.com/veranemoloko/retro-installer/internal/repository"
	"github.com/veranemoloko/retro-installer/internal/source"
)

// Broadcaster delivers change signals to subscribed callbacks.
type Broadcaster interface {
	Start(ctx context.Context)
	Stop()
	Notify()
	Subscribe(cb notifier.Callback) notifier.SubscriptionID
	Unsubscribe(id notifier.SubscriptionID) bool
}

// Scheduler runs queued tasks in the background.
type Scheduler interface {
	Start(ctx context.Context)
	Active() int
	CancelTask(id string) bool
	Shutdown(ctx context.Context, drain bool) error
}

// GameSources looks up a known source for a game when the caller gives none.
type GameSources interface {
	GameSource(code, name string) (domain.SourceDescriptor, bool)
}

// Deps are the collaborators owned by a Manager. Sources may be nil.
type Deps struct {
	Store      repository.TaskRepo
	Notifier   Broadcaster
	Dispatcher Scheduler
	Sources    GameSources
	Logger     *slog.Logger
}

// Manager is the entry point for queueing, inspecting and cancelling
// installs. It starts the notifier and dispatcher on construction and stops
// them on Shutdown.
type Manager struct {
	store      repository.TaskRepo
	notifier   Broadcaster
	dispatcher Scheduler
	sources    GameSources
	logger     *slog.Logger
	closed     atomic.Bool
}

// NewManager wires deps together and starts the background loops under ctx.
func NewManager(ctx context.Context, deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		store:      deps.Store,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		sources:    deps.Sources,
		logger:     logger,
	}

	m.notifier.Start(ctx)
	m.dispatcher.Start(ctx)
	return m
}

// QueueDownload records a new install in QUEUED state. An empty src is
// looked up in the console registry.
func (m *Manager) QueueDownload(ctx context.Context, gameName, consoleCode string, src domain.SourceDescriptor, hint *domain.CatalogHint) (*domain.Task, error) {
	if m.closed.Load() {
		return nil, errpkg.ErrManagerClosed
	}

	gameName = strings.TrimSpace(gameName)
	if gameName == "" {
		return nil, fmt.Errorf("%w: game name is required", errpkg.ErrInvalidRequest)
	}

	if strings.TrimSpace(string(src)) == "" {
		found, ok := m.lookupSource(consoleCode, gameName, hint)
		if !ok {
			return nil, fmt.Errorf("%w: %s for %s", errpkg.ErrSourceNotFound, gameName, strings.ToUpper(consoleCode))
		}
		src = found
	}

	if _, err := source.Parse(src); err != nil {
		return nil, err
	}

	task := domain.NewTask(generateID(), gameName, consoleCode, src, hint)
	if err := m.store.Create(ctx, task); err != nil {
		return nil, err
	}

	metrics.TasksQueued.Inc()
	m.logger.Info("Install queued",
		"task_id", task.ID,
		"game", task.GameName,
		"console", task.ConsoleCode,
	)
	m.notifier.Notify()
	return task, nil
}

func (m *Manager) lookupSource(consoleCode, gameName string, hint *domain.CatalogHint) (domain.SourceDescriptor, bool) {
	if m.sources == nil {
		return "", false
	}
	if src, ok := m.sources.GameSource(consoleCode, gameName); ok {
		return src, true
	}
	if hint != nil && hint.Name != "" {
		return m.sources.GameSource(consoleCode, hint.Name)
	}
	return "", false
}

func (m *Manager) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return m.store.Get(ctx, id)
}

// GetAllTasks returns every task in the order it was queued.
func (m *Manager) GetAllTasks(ctx context.Context) ([]*domain.Task, error) {
	return m.store.List(ctx)
}

// GetActiveTasks returns the tasks that are queued or in progress.
func (m *Manager) GetActiveTasks(ctx context.Context) ([]*domain.Task, error) {
	return m.store.ListActive(ctx)
}

// CancelDownload marks the task failed right away. A running executor is
// asked to stop but may finish its current step; it will not overwrite the
// cancellation.
func (m *Manager) CancelDownload(ctx context.Context, id string) (*domain.Task, error) {
	task, err := m.store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	wasRunning := m.dispatcher.CancelTask(id)
	metrics.TasksCancelled.Inc()
	m.logger.Info("Install cancelled", "task_id", id, "was_running", wasRunning)
	m.notifier.Notify()
	return task, nil
}

// ClearCompleted drops every finished task and returns how many went.
func (m *Manager) ClearCompleted(ctx context.Context) (int, error) {
	n, err := m.store.ClearCompleted(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("Cleared finished tasks", "count", n)
		m.notifier.Notify()
	}
	return n, nil
}

// AddCallback subscribes cb to task changes.
func (m *Manager) AddCallback(cb notifier.Callback) notifier.SubscriptionID {
	return m.notifier.Subscribe(cb)
}

// RemoveCallback unsubscribes a callback; unknown ids are ignored.
func (m *Manager) RemoveCallback(id notifier.SubscriptionID) bool {
	return m.notifier.Unsubscribe(id)
}

// ActiveExecutors returns how many installs are running right now.
func (m *Manager) ActiveExecutors() int {
	return m.dispatcher.Active()
}

// Shutdown stops accepting work and stops the dispatcher, either waiting
// for running installs (drain) or cancelling them. The notifier delivers a
// final fan-out before it stops.
func (m *Manager) Shutdown(ctx context.Context, drain bool) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Info("Shutting down manager", "drain", drain)

	err := m.dispatcher.Shutdown(ctx, drain)
	m.notifier.Notify()
	m.notifier.Stop()

	if err != nil {
		m.logger.Warn("Manager shutdown incomplete", "error", err)
		return err
	}
	m.logger.Info("Manager shutdown completed")
	return nil
}

func generateID() string {
	return uuid.New().String()
}
