package repository

import (
	"context"

	"github.com/veranemoloko/retro-installer/internal/domain"
)

// TaskRepo defines the interface for task storage operations.
type TaskRepo interface {
	Create(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context) ([]*domain.Task, error)
	ListActive(ctx context.Context) ([]*domain.Task, error)
	NextQueued(ctx context.Context) (*domain.Task, error)
	Transition(ctx context.Context, id string, status domain.TaskStatus) (*domain.Task, error)
	Fail(ctx context.Context, id string, reason string) (*domain.Task, error)
	Cancel(ctx context.Context, id string) (*domain.Task, error)
	SetGameDir(ctx context.Context, id string, dir string) error
	ClearCompleted(ctx context.Context) (int, error)
}
