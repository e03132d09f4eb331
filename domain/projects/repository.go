package projects

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

// Repository handles database operations for projects.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new project repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("projects.repo")),
	}
}

// ListParams defines parameters for listing projects.
type ListParams struct {
	Status string // optional filter
	Limit  int
}

// List returns projects ordered by creation date.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Project, error) {
	var result []Project

	q := r.db.NewSelect().
		Model(&result).
		Order("created_at DESC")

	if params.Status != "" {
		q = q.Where("status = ?", params.Status)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to list projects", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return result, nil
}

// GetByID returns a project by ID, or (nil, nil) if it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*Project, error) {
	var project Project

	err := r.db.NewSelect().
		Model(&project).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get project", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &project, nil
}

// GetByIDWithLock returns a project by ID with a pessimistic row lock
// (FOR UPDATE). Used by callers (e.g. tasks.ClaimTask) that need to read
// project.status_semantics while holding a lock across a write.
func (r *Repository) GetByIDWithLock(ctx context.Context, tx bun.Tx, id string) (*Project, error) {
	var project Project

	err := tx.NewSelect().
		Model(&project).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get project with lock", logger.Error(err), slog.String("id", id))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return &project, nil
}

// CheckDuplicateName checks whether a project with the same name already exists.
func (r *Repository) CheckDuplicateName(ctx context.Context, db bun.IDB, name, excludeID string) (bool, error) {
	if db == nil {
		db = r.db
	}

	q := db.NewSelect().
		Model((*Project)(nil)).
		Where("LOWER(name) = LOWER(?)", strings.TrimSpace(name))

	if excludeID != "" {
		q = q.Where("id != ?", excludeID)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		r.log.Error("failed to check duplicate project name", logger.Error(err))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	return exists, nil
}

// Create inserts a new project within a transaction.
func (r *Repository) Create(ctx context.Context, tx bun.Tx, project *Project) error {
	_, err := tx.NewInsert().
		Model(project).
		Returning("*").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate", "a project with this name already exists")
		}
		r.log.Error("failed to create project", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// Update persists changes to an existing project.
func (r *Repository) Update(ctx context.Context, project *Project) error {
	_, err := r.db.NewUpdate().
		Model(project).
		WherePK().
		Returning("*").
		Exec(ctx)

	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(400, "duplicate", "a project with this name already exists")
		}
		r.log.Error("failed to update project", logger.Error(err), slog.String("id", project.ID))
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// Delete permanently deletes a project. Cascades to columns, tasks,
// dependency edges, and workflow policy per spec §3 ownership rules.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewDelete().
		Model((*Project)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		r.log.Error("failed to delete project", logger.Error(err), slog.String("id", id))
		return false, apperror.ErrDatabase.WithInternal(err)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
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
