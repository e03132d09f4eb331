package projects

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

const (
	// DefaultLimit is the default number of projects returned by List.
	DefaultLimit = 100
	// MaxLimit caps the number of projects returned by List.
	MaxLimit = 500
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ColumnBootstrapper creates the default kanban columns for a newly created
// project, within the same transaction as the insert. Implemented by
// domain/tasks and injected here (rather than imported directly) because
// tasks already depends on projects for status_semantics resolution — this
// keeps the dependency one-directional.
type ColumnBootstrapper interface {
	BootstrapDefaultColumns(ctx context.Context, tx bun.Tx, projectID string, semantics StatusSemantics) error
}

// Service holds business logic for projects.
type Service struct {
	repo    *Repository
	columns ColumnBootstrapper
	log     *slog.Logger
}

// NewService creates a new project service.
func NewService(repo *Repository, columns ColumnBootstrapper, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		columns: columns,
		log:     log.With(logger.Scope("projects.svc")),
	}
}

// List returns projects, optionally filtered by lifecycle status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return s.repo.List(ctx, ListParams{Status: status, Limit: limit})
}

// GetByID returns a project by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Project, error) {
	if !isValidUUID(id) {
		return nil, apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	return project, nil
}

// Create creates a new project and its default kanban columns (spec §3
// Lifecycle summary: "Column: created with default set on project creation").
func (s *Service) Create(ctx context.Context, req CreateProjectRequest) (*Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.New(400, "validation-failed", "name required").WithDetails(map[string]any{
			"name": []string{"must not be blank"},
		})
	}

	semantics := req.StatusSemantics
	if semantics == nil {
		semantics = DefaultStatusSemantics()
	}

	workspaceType := req.WorkspaceType
	if workspaceType == "" {
		workspaceType = WorkspacePersistentDirectory
	}
	if workspaceType != WorkspaceEphemeralRunDir && workspaceType != WorkspacePersistentDirectory {
		return nil, apperror.New(400, "invalid-workspace-type", "workspace_type must be ephemeral_run_dir or persistent_directory")
	}

	project := &Project{
		Name:              name,
		Description:       req.Description,
		Status:            StatusActive,
		RepositoryURL:     req.RepositoryURL,
		DefaultPipelineID: req.DefaultPipelineID,
		StatusSemantics:   semantics,
		WorkspaceType:     workspaceType,
	}

	if missing := project.ValidateSemantics(); len(missing) > 0 {
		return nil, apperror.New(400, "invalid-status-semantics", "status_semantics is missing required roles").WithDetails(map[string]any{
			"missing_roles": missing,
		})
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	isDuplicate, err := s.repo.CheckDuplicateName(ctx, tx.Tx, name, "")
	if err != nil {
		return nil, err
	}
	if isDuplicate {
		return nil, apperror.New(400, "duplicate", "a project with this name already exists")
	}

	if err := s.repo.Create(ctx, tx.Tx, project); err != nil {
		return nil, err
	}

	if err := s.columns.BootstrapDefaultColumns(ctx, tx.Tx, project.ID, semantics); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("failed to commit project creation", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	s.log.Info("project created", slog.String("project_id", project.ID), slog.String("name", project.Name))

	return project, nil
}

// Update applies a partial update to a project.
func (s *Service) Update(ctx context.Context, id string, req UpdateProjectRequest) (*Project, error) {
	if !isValidUUID(id) {
		return nil, apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	hasUpdates := false

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperror.New(400, "validation-failed", "name cannot be empty")
		}
		if name != project.Name {
			isDuplicate, err := s.repo.CheckDuplicateName(ctx, nil, name, id)
			if err != nil {
				return nil, err
			}
			if isDuplicate {
				return nil, apperror.New(400, "duplicate", "a project with this name already exists")
			}
			project.Name = name
			hasUpdates = true
		}
	}

	if req.Description != nil {
		project.Description = *req.Description
		hasUpdates = true
	}

	if req.Status != nil {
		if !isValidLifecycleStatus(*req.Status) {
			return nil, apperror.New(400, "invalid-status", "status must be one of active, paused, completed, archived")
		}
		project.Status = *req.Status
		hasUpdates = true
	}

	if req.RepositoryURL != nil {
		project.RepositoryURL = req.RepositoryURL
		hasUpdates = true
	}

	if req.DefaultPipelineID != nil {
		project.DefaultPipelineID = req.DefaultPipelineID
		hasUpdates = true
	}

	if req.StatusSemantics != nil {
		merged := Project{StatusSemantics: req.StatusSemantics}
		if missing := merged.ValidateSemantics(); len(missing) > 0 {
			return nil, apperror.New(400, "invalid-status-semantics", "status_semantics is missing required roles").WithDetails(map[string]any{
				"missing_roles": missing,
			})
		}
		project.StatusSemantics = req.StatusSemantics
		hasUpdates = true
	}

	if !hasUpdates {
		return project, nil
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}

	s.log.Info("project updated", slog.String("project_id", project.ID))

	return project, nil
}

// Delete permanently deletes a project.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !isValidUUID(id) {
		return apperror.New(400, "invalid-uuid", "id must be a valid UUID")
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperror.ErrProjectNotFound
	}

	s.log.Info("project deleted", slog.String("project_id", id))

	return nil
}

func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

func isValidLifecycleStatus(status string) bool {
	switch status {
	case StatusActive, StatusPaused, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}
