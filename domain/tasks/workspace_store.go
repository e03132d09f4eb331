package tasks

import (
	"context"

	"github.com/djinnbot/core/domain/workspace"
	"github.com/djinnbot/core/pkg/apperror"
)

// taskStoreAdapter satisfies workspace.TaskStore so domain/workspace can
// read/persist task_metadata (branch names, PR numbers) without importing
// domain/tasks (which already imports domain/workspace for branch naming).
type taskStoreAdapter struct {
	repo *Repository
}

// NewTaskStore exposes *Repository under workspace.TaskStore. Exported so
// callers wiring dependencies by hand (tests) can use the same adapter fx
// binds via asTaskStore.
func NewTaskStore(repo *Repository) workspace.TaskStore {
	return &taskStoreAdapter{repo: repo}
}

func asTaskStore(repo *Repository) workspace.TaskStore {
	return NewTaskStore(repo)
}

func (a *taskStoreAdapter) GetTask(ctx context.Context, taskID string) (*workspace.TaskRef, error) {
	task, err := a.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperror.NewNotFound("task", taskID)
	}
	if task.TaskMetadata == nil {
		task.TaskMetadata = TaskMetadata{}
	}
	return &workspace.TaskRef{ID: task.ID, Title: task.Title, Metadata: map[string]any(task.TaskMetadata)}, nil
}

func (a *taskStoreAdapter) SaveTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error {
	task, err := a.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return apperror.NewNotFound("task", taskID)
	}
	task.TaskMetadata = TaskMetadata(metadata)
	return a.repo.Update(ctx, task)
}
