package workspace

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djinnbot/core/domain/githubapp"
	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/internal/config"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

// TaskRef is the minimal task view domain/workspace needs to compute and
// persist a branch name or PR metadata, without importing domain/tasks.
type TaskRef struct {
	ID       string
	Title    string
	Metadata map[string]any
}

// TaskStore is the consumer-side boundary domain/tasks satisfies (same
// one-directional interface pattern as projects.ColumnBootstrapper) so
// domain/workspace can read/persist task_metadata without an import cycle
// (domain/tasks already imports domain/workspace for branch naming).
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (*TaskRef, error)
	SaveTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error
}

// Service implements WorkspaceManager (spec §4.2): per-project on-disk git
// checkouts, per-task branches, agent worktree provisioning, and pull
// request lifecycle.
type Service struct {
	cfg          *config.Config
	githubSvc    *githubapp.Service
	projectsRepo *projects.Repository
	tasks        TaskStore
	rdb          *redis.Client
	bus          *eventbus.Bus
	httpClient   *http.Client
	log          *slog.Logger
}

// NewService creates a new workspace service.
func NewService(cfg *config.Config, githubSvc *githubapp.Service, projectsRepo *projects.Repository, tasks TaskStore, rdb *redis.Client, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		cfg:          cfg,
		githubSvc:    githubSvc,
		projectsRepo: projectsRepo,
		tasks:        tasks,
		rdb:          rdb,
		bus:          bus,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		log:          log.With(logger.Scope("workspace")),
	}
}

func (s *Service) workspacePath(projectID string) string {
	return filepath.Join(s.cfg.Workspace.WorkspacesDir, projectID)
}

// SetupProject clones (or fast-forward pulls, if the workspace already
// exists) repoURL into the project's on-disk workspace (spec §4.2). Clone
// failures are returned as a structured result, never as an error, so
// callers surface them as a warning rather than a 500.
func (s *Service) SetupProject(ctx context.Context, projectID, repoURL string, installationID *int64) (*RepoSetupResult, error) {
	if repoURL == "" {
		return &RepoSetupResult{ProjectID: projectID}, nil
	}

	dir := s.workspacePath(projectID)
	creds := s.resolveCredentials(ctx, installationID, repoURL)

	cloned, pulled, err := cloneOrUpdate(ctx, dir, repoURL, creds)
	result := &RepoSetupResult{ProjectID: projectID, WorkspacePath: dir, Cloned: cloned, Pulled: pulled}
	if err != nil {
		s.log.Warn("workspace setup failed", logger.Error(err), slog.String("project_id", projectID))
		result.CloneError = err.Error()
		return result, nil
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "CODE_GRAPH_INDEX_REQUESTED", map[string]any{
		"project_id": projectID,
		"path":       dir,
	})
	return result, nil
}

// EnsureTaskBranch returns the task's persisted branch, computing and
// persisting a deterministic one via TaskStore if absent (spec §4.2).
func (s *Service) EnsureTaskBranch(ctx context.Context, taskID string) (string, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	branch, meta, changed := EnsureTaskBranch(task.Metadata, task.ID, task.Title)
	if changed {
		if err := s.tasks.SaveTaskMetadata(ctx, taskID, meta); err != nil {
			return "", err
		}
	}
	return branch, nil
}

// RequestWorktree asks the external agent-runtime engine to materialize a
// git worktree for agentID on branch, then polls a result key until the
// engine reports success or the poll budget (spec §4.2, §5) is exhausted.
func (s *Service) RequestWorktree(ctx context.Context, agentID, projectID, taskID, branch string) (*WorktreeResult, error) {
	resultKey := "djinnbot:workspace:" + agentID + ":" + taskID
	s.rdb.Del(ctx, resultKey)

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_WORKSPACE_REQUESTED", map[string]any{
		"agent_id":    agentID,
		"project_id":  projectID,
		"task_id":     taskID,
		"task_branch": branch,
	})

	deadline := time.Now().Add(s.cfg.Workspace.WorktreePollTimeout)
	ticker := time.NewTicker(s.cfg.Workspace.WorktreePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			raw, err := s.rdb.Get(ctx, resultKey).Result()
			if err == nil {
				var res worktreeEngineResult
				if jsonErr := json.Unmarshal([]byte(raw), &res); jsonErr != nil {
					return nil, apperror.ErrInternal.WithInternal(jsonErr)
				}
				if !res.Success {
					return nil, apperror.New(500, "worktree-failed", "engine failed to create task workspace").WithDetails(map[string]any{"error": res.Error})
				}
				return &WorktreeResult{
					TaskID:         taskID,
					AgentID:        agentID,
					Branch:         res.Branch,
					WorktreePath:   "/home/agent/task-workspaces/" + taskID,
					AlreadyExisted: res.AlreadyExists,
				}, nil
			}
			if err != redis.Nil {
				return nil, apperror.ErrInternal.WithInternal(err)
			}
			if time.Now().After(deadline) {
				return nil, apperror.New(504, "timeout", "timed out waiting for engine to create task workspace")
			}
		}
	}
}

// RequestWorktreeRemoval fires TASK_WORKSPACE_REMOVE_REQUESTED and returns
// immediately — removal is fire-and-forget (spec §4.2).
func (s *Service) RequestWorktreeRemoval(ctx context.Context, agentID, projectID, taskID string) {
	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_WORKSPACE_REMOVE_REQUESTED", map[string]any{
		"agent_id":   agentID,
		"project_id": projectID,
		"task_id":    taskID,
	})
}

func (s *Service) repoURLForProject(ctx context.Context, projectID string) (string, error) {
	project, err := s.projectsRepo.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project == nil {
		return "", apperror.NewNotFound("project", projectID)
	}
	if project.RepositoryURL == nil || *project.RepositoryURL == "" {
		return "", apperror.NewBadRequest("git integration is not enabled for this project; set a repository URL first")
	}
	return *project.RepositoryURL, nil
}
