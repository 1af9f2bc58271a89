package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

func newTask(name, console string) *domain.Task {
	return domain.NewTask(uuid.NewString(), name, console, "arv://abc", nil)
}

func TestTaskStore_CreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)

	first := newTask("Chrono Trigger", "SNES")
	second := newTask("Tetris", "GB")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, domain.TaskStatusQueued, got.Status)
	assert.Equal(t, 0.0, got.Progress)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestTaskStore_ReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	task := newTask("Chrono Trigger", "SNES")
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	got.Status = domain.TaskStatusComplete

	again, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQueued, again.Status)
}

func TestTaskStore_RejectsDuplicateActiveInstall(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)

	first := newTask("Pokémon Red", "GB")
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newTask("pokemon red", "gb"))
	assert.ErrorIs(t, err, errpkg.ErrDuplicateTask)

	require.NoError(t, repo.Create(ctx, newTask("Pokémon Red", "GBA")))

	_, err = repo.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.NoError(t, repo.Create(ctx, newTask("Pokémon Red", "GB")))
}

func TestTaskStore_NextQueuedIsFIFOAndClaimsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		task := newTask(fmt.Sprintf("Game %d", i), "NES")
		require.NoError(t, repo.Create(ctx, task))
		ids = append(ids, task.ID)
	}

	for _, want := range ids {
		next, err := repo.NextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, want, next.ID)
	}

	next, err := repo.NextQueued(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestTaskStore_NextQueuedConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	for i := 0; i < 20; i++ {
		require.NoError(t, repo.Create(ctx, newTask(fmt.Sprintf("Game %d", i), "NES")))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				next, err := repo.NextQueued(ctx)
				if err != nil || next == nil {
					return
				}
				mu.Lock()
				seen[next.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestTaskStore_TransitionsAreForwardOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	task := newTask("Chrono Trigger", "SNES")
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.Transition(ctx, task.ID, domain.TaskStatusDownloading)
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Progress)

	got, err = repo.Transition(ctx, task.ID, domain.TaskStatusMetadata)
	require.NoError(t, err)
	assert.Equal(t, 0.6, got.Progress)

	_, err = repo.Transition(ctx, task.ID, domain.TaskStatusExtracting)
	assert.ErrorIs(t, err, errpkg.ErrInvalidTransition)

	_, err = repo.Transition(ctx, task.ID, domain.TaskStatusFailed)
	assert.ErrorIs(t, err, errpkg.ErrInvalidTransition)

	_, err = repo.Transition(ctx, task.ID, domain.TaskStatusArtwork)
	require.NoError(t, err)
	got, err = repo.Transition(ctx, task.ID, domain.TaskStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Progress)
	assert.Empty(t, got.Error)

	_, err = repo.Fail(ctx, task.ID, "late failure")
	assert.ErrorIs(t, err, errpkg.ErrTaskTerminal)
}

func TestTaskStore_FailKeepsProgress(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	task := newTask("Chrono Trigger", "SNES")
	require.NoError(t, repo.Create(ctx, task))

	_, err := repo.Transition(ctx, task.ID, domain.TaskStatusDownloading)
	require.NoError(t, err)

	got, err := repo.Fail(ctx, task.ID, "download failed")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, 0.2, got.Progress)
	assert.Equal(t, "download failed", got.Error)
}

func TestTaskStore_UpdateRejectsProgressRegression(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	task := newTask("Chrono Trigger", "SNES")
	require.NoError(t, repo.Create(ctx, task))
	_, err := repo.Transition(ctx, task.ID, domain.TaskStatusDownloading)
	require.NoError(t, err)

	_, err = repo.Update(ctx, task.ID, func(t *domain.Task) error {
		t.Progress = 0.1
		return nil
	})
	assert.ErrorIs(t, err, errpkg.ErrInvalidTransition)
}

func TestTaskStore_CancelQueuedTask(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)
	task := newTask("Chrono Trigger", "SNES")
	require.NoError(t, repo.Create(ctx, task))

	got, err := repo.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "cancelled by user", got.Error)

	next, err := repo.NextQueued(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.Cancel(ctx, task.ID)
	assert.ErrorIs(t, err, errpkg.ErrTaskTerminal)

	_, err = repo.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestTaskStore_ClearCompletedKeepsActive(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskStore(nil)

	done := newTask("Done", "NES")
	failed := newTask("Failed", "NES")
	running := newTask("Running", "NES")
	queued := newTask("Queued", "NES")
	for _, task := range []*domain.Task{done, failed, running, queued} {
		require.NoError(t, repo.Create(ctx, task))
	}

	for _, status := range []domain.TaskStatus{domain.TaskStatusDownloading, domain.TaskStatusMetadata, domain.TaskStatusArtwork, domain.TaskStatusComplete} {
		_, err := repo.Transition(ctx, done.ID, status)
		require.NoError(t, err)
	}
	_, err := repo.Fail(ctx, failed.ID, "boom")
	require.NoError(t, err)
	_, err = repo.Transition(ctx, running.ID, domain.TaskStatusDownloading)
	require.NoError(t, err)

	removed, err := repo.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, running.ID, all[0].ID)
	assert.Equal(t, queued.ID, all[1].ID)

	removed, err = repo.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTaskStore_HonoursContext(t *testing.T) {
	repo := NewTaskStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Create(ctx, newTask("x", "NES")), context.Canceled)
	_, err := repo.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
