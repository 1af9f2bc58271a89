package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

// TaskStore keeps every task of the current session in memory. All reads
// return clones so callers never observe a half-applied update.
type TaskStore struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	order   []string
	active  map[string]string // dedup key -> task id
	claimed map[string]struct{}
	logger  *slog.Logger
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore(logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		tasks:   make(map[string]*domain.Task),
		active:  make(map[string]string),
		claimed: make(map[string]struct{}),
		logger:  logger,
	}
}

// Create stores a queued task. A second non-terminal task for the same
// console and slug is rejected with ErrDuplicateTask.
func (r *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if task == nil || task.ID == "" {
		return fmt.Errorf("create task: missing id")
	}

	key := task.DedupKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("create task %s: id already used", task.ID)
	}
	if other, busy := r.active[key]; busy {
		r.logger.Debug("Duplicate install rejected", "key", key, "active_task_id", other)
		return errpkg.ErrDuplicateTask
	}

	stored := task.Clone()
	r.tasks[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	if !stored.Status.IsTerminal() {
		r.active[key] = stored.ID
	}

	r.logger.Debug("Task created", "task_id", stored.ID, "key", key)
	return nil
}

// Get retrieves a task by ID.
func (r *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	task, exists := r.tasks[id]
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// List returns every task in insertion order.
func (r *TaskStore) List(ctx context.Context) ([]*domain.Task, error) {
	return r.filter(ctx, func(*domain.Task) bool { return true })
}

// ListActive returns the tasks that are queued or still inside the pipeline.
func (r *TaskStore) ListActive(ctx context.Context) ([]*domain.Task, error) {
	return r.filter(ctx, func(t *domain.Task) bool { return t.Status.IsActive() })
}

func (r *TaskStore) filter(ctx context.Context, keep func(*domain.Task) bool) ([]*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Task, 0, len(r.order))
	for _, id := range r.order {
		task := r.tasks[id]
		if keep(task) {
			out = append(out, task.Clone())
		}
	}
	return out, nil
}

// NextQueued claims the earliest queued task that has not been handed out
// yet. It returns nil when there is nothing to do. A task is claimed at most
// once for the lifetime of the store.
func (r *TaskStore) NextQueued(ctx context.Context) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		task := r.tasks[id]
		if task.Status != domain.TaskStatusQueued {
			continue
		}
		if _, taken := r.claimed[id]; taken {
			continue
		}
		r.claimed[id] = struct{}{}
		return task.Clone(), nil
	}
	return nil, nil
}

// Update applies fn to a working copy of the task and commits it only if
// the status change is allowed and progress did not go backwards.
func (r *TaskStore) Update(ctx context.Context, id string, fn func(*domain.Task) error) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.tasks[id]
	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	if current.Status.IsTerminal() {
		return nil, errpkg.ErrTaskTerminal
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	if next.Status != current.Status && !current.Status.CanTransitionTo(next.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", errpkg.ErrInvalidTransition, current.Status, next.Status)
	}
	if next.Progress < current.Progress {
		return nil, fmt.Errorf("%w: progress %.2f -> %.2f", errpkg.ErrInvalidTransition, current.Progress, next.Progress)
	}
	if next.Status != domain.TaskStatusFailed {
		next.Error = ""
	}

	next.UpdatedAt = time.Now()
	r.tasks[id] = next
	if next.Status.IsTerminal() {
		r.releaseKey(next)
	}

	r.logger.Debug("Task updated", "task_id", id, "status", next.Status, "progress", next.Progress)
	return next.Clone(), nil
}

// Transition moves the task into status and records the stage marker.
func (r *TaskStore) Transition(ctx context.Context, id string, status domain.TaskStatus) (*domain.Task, error) {
	if status == domain.TaskStatusFailed {
		return nil, fmt.Errorf("%w: use Fail to record a failure", errpkg.ErrInvalidTransition)
	}
	marker := domain.ProgressFor(status)
	if marker < 0 {
		return nil, fmt.Errorf("%w: unknown status %q", errpkg.ErrInvalidTransition, status)
	}

	return r.Update(ctx, id, func(t *domain.Task) error {
		t.Status = status
		t.Progress = marker
		return nil
	})
}

// Fail ends the task with reason, keeping the progress already reached.
func (r *TaskStore) Fail(ctx context.Context, id string, reason string) (*domain.Task, error) {
	return r.Update(ctx, id, func(t *domain.Task) error {
		t.Status = domain.TaskStatusFailed
		t.Error = reason
		return nil
	})
}

// Cancel fails a queued or running task on behalf of the user. A queued task
// that has not been claimed will never be picked up afterwards.
func (r *TaskStore) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	return r.Fail(ctx, id, errpkg.ErrCancelled.Error())
}

// SetGameDir records where the task is installing to.
func (r *TaskStore) SetGameDir(ctx context.Context, id string, dir string) error {
	_, err := r.Update(ctx, id, func(t *domain.Task) error {
		t.GameDir = dir
		return nil
	})
	return err
}

// ClearCompleted drops every terminal task and returns how many were removed.
func (r *TaskStore) ClearCompleted(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if r.tasks[id].Status.IsTerminal() {
			delete(r.tasks, id)
			delete(r.claimed, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	if removed > 0 {
		r.logger.Info("Cleared finished tasks", "removed", removed, "remaining", len(r.order))
	}
	return removed, nil
}

func (r *TaskStore) releaseKey(task *domain.Task) {
	key := task.DedupKey()
	if r.active[key] == task.ID {
		delete(r.active, key)
	}
}
