package tasks

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/internal/database"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Repository handles database operations for kanban columns, tasks, and
// workflow policies.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new tasks repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("tasks.repo")),
	}
}

// --- kanban columns ---------------------------------------------------

// ListColumns returns a project's columns ordered by position.
func (r *Repository) ListColumns(ctx context.Context, projectID string) ([]KanbanColumn, error) {
	var cols []KanbanColumn
	err := r.db.NewSelect().
		Model(&cols).
		Where("project_id = ?", projectID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list columns", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return cols, nil
}

// GetColumn returns a column by ID, or (nil, nil) if it doesn't exist.
func (r *Repository) GetColumn(ctx context.Context, id string) (*KanbanColumn, error) {
	var col KanbanColumn
	err := r.db.NewSelect().Model(&col).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get column", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &col, nil
}

// CreateColumn inserts a new column.
func (r *Repository) CreateColumn(ctx context.Context, col *KanbanColumn) error {
	_, err := r.db.NewInsert().Model(col).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create column", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CreateColumnsTx inserts several columns within an explicit transaction,
// used by BootstrapDefaultColumns (spec §3 Lifecycle summary).
func (r *Repository) CreateColumnsTx(ctx context.Context, tx bun.Tx, cols []KanbanColumn) error {
	if len(cols) == 0 {
		return nil
	}
	_, err := tx.NewInsert().Model(&cols).Exec(ctx)
	if err != nil {
		r.log.Error("failed to bootstrap columns", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdateColumn persists changes to a column.
func (r *Repository) UpdateColumn(ctx context.Context, col *KanbanColumn) error {
	_, err := r.db.NewUpdate().Model(col).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update column", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// DeleteColumn deletes a column by ID. Callers must first verify the
// column holds no tasks (spec §4.4.1: delete fails if occupied).
func (r *Repository) DeleteColumn(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewDelete().Model((*KanbanColumn)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete column", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CountTasksInColumn reports how many tasks currently sit in a column,
// excluding excludeTaskID (pass "" when there is nothing to exclude) so a
// task being moved within its own column doesn't count against itself.
func (r *Repository) CountTasksInColumn(ctx context.Context, columnID, excludeTaskID string) (int, error) {
	q := r.db.NewSelect().Model((*Task)(nil)).Where("column_id = ?", columnID)
	if excludeTaskID != "" {
		q = q.Where("id != ?", excludeTaskID)
	}
	count, err := q.Count(ctx)
	if err != nil {
		r.log.Error("failed to count tasks in column", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

// --- tasks --------------------------------------------------------------

// ListParams filters Task listing.
type ListParams struct {
	ProjectID string
	Status    string
	ColumnID  string
	Limit     int
}

// List returns tasks matching params.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Task, error) {
	var tasks []Task
	q := r.db.NewSelect().Model(&tasks).Where("project_id = ?", params.ProjectID).Order("created_at DESC")
	if params.Status != "" {
		q = q.Where("status = ?", params.Status)
	}
	if params.ColumnID != "" {
		q = q.Where("column_id = ?", params.ColumnID)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to list tasks", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tasks, nil
}

// GetByID returns a task by ID, or (nil, nil) if it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := r.db.NewSelect().Model(&task).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get task", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &task, nil
}

// GetByIDWithLock returns a task by ID with a pessimistic row lock
// (FOR UPDATE), used by ClaimTask and Transition (spec §4.4.3, §4.4.4).
func (r *Repository) GetByIDWithLock(ctx context.Context, tx bun.Tx, id string) (*Task, error) {
	var task Task
	err := tx.NewSelect().Model(&task).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get task with lock", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &task, nil
}

// GetChildren returns direct children of a parent task.
func (r *Repository) GetChildren(ctx context.Context, parentID string) ([]Task, error) {
	var tasks []Task
	err := r.db.NewSelect().Model(&tasks).Where("parent_task_id = ?", parentID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to get children", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tasks, nil
}

// Create inserts a new task.
func (r *Repository) Create(ctx context.Context, task *Task) error {
	_, err := r.db.NewInsert().Model(task).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create task", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CreateTx inserts several tasks within an explicit transaction, used by
// bulk import's all-or-nothing commit (spec §8 S6).
func (r *Repository) CreateTx(ctx context.Context, tx bun.Tx, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := tx.NewInsert().Model(&tasks).Exec(ctx)
	if err != nil {
		r.log.Error("failed to bulk-create tasks", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Update persists changes to a task outside of a transaction.
func (r *Repository) Update(ctx context.Context, task *Task) error {
	_, err := r.db.NewUpdate().Model(task).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update task", logger.Error(err), slog.String("id", task.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdateTx persists changes to a task within an explicit transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx bun.Tx, task *Task) error {
	_, err := tx.NewUpdate().Model(task).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update task in tx", logger.Error(err), slog.String("id", task.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// Delete deletes a task by ID.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewDelete().Model((*Task)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete task", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ReadyCandidates returns tasks in the project whose status is in statuses,
// honoring the optional work_type filter (spec §4.4.5).
func (r *Repository) ReadyCandidates(ctx context.Context, projectID string, statuses, workTypes []string, limit int) ([]Task, error) {
	var tasks []Task
	q := r.db.NewSelect().
		Model(&tasks).
		Where("project_id = ?", projectID).
		Where("status IN (?)", bun.In(statuses)).
		Where("assigned_agent IS NULL").
		Order("priority ASC", "created_at ASC")

	if len(workTypes) > 0 {
		q = q.Where("work_type IN (?)", bun.In(workTypes))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to list ready candidates", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tasks, nil
}

// InProgressByAgent returns the tasks the given agent currently holds.
func (r *Repository) InProgressByAgent(ctx context.Context, projectID, agentID string) ([]Task, error) {
	var tasks []Task
	err := r.db.NewSelect().
		Model(&tasks).
		Where("project_id = ?", projectID).
		Where("assigned_agent = ?", agentID).
		Scan(ctx)
	if err != nil {
		r.log.Error("failed to list in-progress tasks", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tasks, nil
}

// --- workflow policy ------------------------------------------------------

// GetWorkflowPolicy returns a project's workflow policy, or (nil, nil) if
// none is configured.
func (r *Repository) GetWorkflowPolicy(ctx context.Context, projectID string) (*WorkflowPolicy, error) {
	var p WorkflowPolicy
	err := r.db.NewSelect().Model(&p).Where("project_id = ?", projectID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get workflow policy", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &p, nil
}

// BeginTx starts a new transaction, safe to Rollback after Commit.
func (r *Repository) BeginTx(ctx context.Context) (*database.SafeTx, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		r.log.Error("failed to begin transaction", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return tx, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "23505") || strings.Contains(errStr, "SQLSTATE 23505")
}
