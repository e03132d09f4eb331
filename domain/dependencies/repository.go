package dependencies

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/internal/database"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Repository handles database operations for dependency edges.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new dependencies repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("dependencies.repo")),
	}
}

// ListEdges returns every edge in a project.
func (r *Repository) ListEdges(ctx context.Context, projectID string) ([]Edge, error) {
	var edges []Edge
	err := r.db.NewSelect().Model(&edges).Where("project_id = ?", projectID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to list edges", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// InboundEdges returns every edge where to_task_id = taskID (predecessors).
func (r *Repository) InboundEdges(ctx context.Context, taskID string) ([]Edge, error) {
	var edges []Edge
	err := r.db.NewSelect().Model(&edges).Where("to_task_id = ?", taskID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to list inbound edges", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// OutboundEdges returns every edge where from_task_id = taskID (dependents).
func (r *Repository) OutboundEdges(ctx context.Context, taskID string) ([]Edge, error) {
	var edges []Edge
	err := r.db.NewSelect().Model(&edges).Where("from_task_id = ?", taskID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to list outbound edges", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// TaskExists reports whether a task belongs to the project.
func (r *Repository) TaskExists(ctx context.Context, projectID, taskID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Table("tasks").
		Where("id = ?", taskID).
		Where("project_id = ?", projectID).
		Exists(ctx)
	if err != nil {
		r.log.Error("failed to check task existence", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

// DuplicateEdge reports whether an identical (from, to) edge already exists.
func (r *Repository) DuplicateEdge(ctx context.Context, fromTaskID, toTaskID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*Edge)(nil)).
		Where("from_task_id = ?", fromTaskID).
		Where("to_task_id = ?", toTaskID).
		Exists(ctx)
	if err != nil {
		r.log.Error("failed to check duplicate edge", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

// CreateEdge inserts a new edge.
func (r *Repository) CreateEdge(ctx context.Context, edge *Edge) error {
	_, err := r.db.NewInsert().Model(edge).Returning("*").Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate-edge", "this dependency already exists")
		}
		r.log.Error("failed to create edge", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// CreateEdgesTx inserts several edges within an explicit transaction, used
// by bulk import's all-or-nothing commit (spec §8).
func (r *Repository) CreateEdgesTx(ctx context.Context, tx bun.Tx, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	_, err := tx.NewInsert().Model(&edges).Exec(ctx)
	if err != nil {
		r.log.Error("failed to bulk-create edges", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// RemoveEdge deletes an edge by ID; idempotent (spec §4.3 RemoveEdge).
func (r *Repository) RemoveEdge(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*Edge)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		r.log.Error("failed to remove edge", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListGraphTasks returns the minimal per-task projection Graph/Timeline need.
func (r *Repository) ListGraphTasks(ctx context.Context, projectID string) ([]graphTask, error) {
	var rows []struct {
		ID             string     `bun:"id"`
		Priority       string     `bun:"priority"`
		EstimatedHours *float64   `bun:"estimated_hours"`
		CreatedAt      time.Time  `bun:"created_at"`
		CompletedAt    *time.Time `bun:"completed_at"`
	}

	err := r.db.NewSelect().
		Table("tasks").
		Column("id", "priority", "estimated_hours", "created_at", "completed_at").
		Where("project_id = ?", projectID).
		Scan(ctx, &rows)
	if err != nil {
		r.log.Error("failed to list graph tasks", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	tasks := make([]graphTask, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, graphTask{
			ID:             row.ID,
			Priority:       row.Priority,
			EstimatedHours: row.EstimatedHours,
			CreatedAt:      row.CreatedAt,
			CompletedAt:    row.CompletedAt,
		})
	}
	return tasks, nil
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
