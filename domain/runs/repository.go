package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/internal/database"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Repository handles database operations for runs, steps, task_runs,
// loop_states, and outputs.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new runs repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("runs.repo")),
	}
}

// --- runs -----------------------------------------------------------------

// Create inserts a new run.
func (r *Repository) Create(ctx context.Context, run *Run) error {
	_, err := r.db.NewInsert().Model(run).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create run", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetByID returns a run by ID, or (nil, nil) if it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := r.db.NewSelect().Model(&run).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get run", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &run, nil
}

// Update persists changes to a run.
func (r *Repository) Update(ctx context.Context, run *Run) error {
	_, err := r.db.NewUpdate().Model(run).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update run", logger.Error(err), slog.String("id", run.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdateTx persists changes to a run within an explicit transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx bun.Tx, run *Run) error {
	_, err := tx.NewUpdate().Model(run).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update run in tx", logger.Error(err), slog.String("id", run.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CountByStatus returns how many runs currently carry status (spec §4.6
// step 5, "dashboard counter").
func (r *Repository) CountByStatus(ctx context.Context, status string) (int, error) {
	count, err := r.db.NewSelect().Model((*Run)(nil)).Where("status = ?", status).Count(ctx)
	if err != nil {
		r.log.Error("failed to count runs by status", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

// --- steps ------------------------------------------------------------------

// GetStep returns a step by (run_id, step_id), or (nil, nil) if none exists.
func (r *Repository) GetStep(ctx context.Context, runID, stepID string) (*Step, error) {
	var step Step
	err := r.db.NewSelect().Model(&step).Where("run_id = ?", runID).Where("step_id = ?", stepID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get step", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &step, nil
}

// CreateStep inserts a new step.
func (r *Repository) CreateStep(ctx context.Context, step *Step) error {
	_, err := r.db.NewInsert().Model(step).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create step", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// UpdateStep persists changes to a step.
func (r *Repository) UpdateStep(ctx context.Context, step *Step) error {
	_, err := r.db.NewUpdate().Model(step).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update step", logger.Error(err), slog.String("id", step.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListSteps returns every step belonging to a run.
func (r *Repository) ListSteps(ctx context.Context, runID string) ([]Step, error) {
	var steps []Step
	err := r.db.NewSelect().Model(&steps).Where("run_id = ?", runID).Order("created_at ASC").Scan(ctx)
	if err != nil {
		r.log.Error("failed to list steps", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return steps, nil
}

// BulkResetSteps sets every step of a run back to pending, used by RestartRun
// (spec §4.6).
func (r *Repository) BulkResetSteps(ctx context.Context, runID string) error {
	_, err := r.db.NewUpdate().
		Model((*Step)(nil)).
		Set("status = ?", StepStatusPending).
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("error = NULL").
		Where("run_id = ?", runID).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to bulk reset steps", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// --- task_runs ---------------------------------------------------------------

// CreateTaskRun inserts a new task_run link.
func (r *Repository) CreateTaskRun(ctx context.Context, tr *TaskRun) error {
	_, err := r.db.NewInsert().Model(tr).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create task run", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// GetTaskRunByRunID returns the task_run row linked to a run, or (nil, nil).
func (r *Repository) GetTaskRunByRunID(ctx context.Context, runID string) (*TaskRun, error) {
	var tr TaskRun
	err := r.db.NewSelect().Model(&tr).Where("run_id = ?", runID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get task run", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &tr, nil
}

// UpdateTaskRunTx persists changes to a task_run within an explicit transaction.
func (r *Repository) UpdateTaskRunTx(ctx context.Context, tx bun.Tx, tr *TaskRun) error {
	_, err := tx.NewUpdate().Model(tr).WherePK().Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to update task run in tx", logger.Error(err), slog.String("id", tr.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// --- loop states --------------------------------------------------------------

// GetLoopState returns a step's loop state, or (nil, nil) if none exists.
func (r *Repository) GetLoopState(ctx context.Context, runID, stepID string) (*LoopState, error) {
	var ls LoopState
	err := r.db.NewSelect().Model(&ls).Where("run_id = ?", runID).Where("step_id = ?", stepID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get loop state", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &ls, nil
}

// UpsertLoopState inserts or replaces a step's loop state.
func (r *Repository) UpsertLoopState(ctx context.Context, ls *LoopState) error {
	itemsJSON, _ := json.Marshal(ls.Items)
	_, err := r.db.NewRaw(`
		INSERT INTO loop_states (run_id, step_id, items, current_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, step_id) DO UPDATE SET items = EXCLUDED.items, current_index = EXCLUDED.current_index
	`, ls.RunID, ls.StepID, itemsJSON, ls.CurrentIndex).Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert loop state", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// --- outputs ------------------------------------------------------------------

// UpsertOutput writes (or overwrites) one key/value pair for a run.
func (r *Repository) UpsertOutput(ctx context.Context, out *Output) error {
	valueJSON, _ := json.Marshal(out.Value)
	_, err := r.db.NewRaw(`
		INSERT INTO outputs (run_id, step_id, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value, step_id = EXCLUDED.step_id
	`, out.RunID, out.StepID, out.Key, valueJSON).Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert output", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListOutputs returns every key/value pair recorded for a run.
func (r *Repository) ListOutputs(ctx context.Context, runID string) ([]Output, error) {
	var outputs []Output
	err := r.db.NewSelect().Model(&outputs).Where("run_id = ?", runID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to list outputs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return outputs, nil
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
