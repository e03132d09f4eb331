package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/workspace"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

const (
	// DefaultLimit is applied to List/ReadyTasks when the caller specifies none.
	DefaultLimit = 100
	// MaxLimit caps the size of any single query result.
	MaxLimit = 500
)

var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// defaultRecoveryCandidates names some "not terminal, not blocked" statuses
// (spec §4.5.1, third bullet). Transition does not consult this list: it fires
// ReadinessPropagator.OnRecovery for any status outside
// terminal_done/terminal_fail/blocked.
var defaultRecoveryCandidates = []string{"in_progress", "planning", "review"}

// ReadinessPropagator fires the cross-cutting cascades of spec §4.5 whenever
// a task's status changes. Declared here (not imported from domain/readiness)
// for the same reason projects.ColumnBootstrapper is declared in projects:
// readiness depends on tasks for repository access, so tasks must not import
// readiness back — the dependency stays one-directional.
type ReadinessPropagator interface {
	// OnTerminalDone unlocks blocked-on-T dependents once all their
	// predecessors are done (spec §4.5.1).
	OnTerminalDone(ctx context.Context, project *projects.Project, task *Task) error
	// OnTerminalFail blocks the downstream closure of T (spec §4.5.1).
	OnTerminalFail(ctx context.Context, project *projects.Project, task *Task) error
	// OnRecovery restores dependents of T that were previously blocked on it
	// (spec §4.5.1, third bullet).
	OnRecovery(ctx context.Context, project *projects.Project, task *Task) error
	// DeriveParent recomputes a parent's status from its children (spec §4.5.2).
	DeriveParent(ctx context.Context, project *projects.Project, parentID string) error
}

// DependencyResolver exposes the blocks-edge graph to ReadyTasks without
// tasks importing domain/dependencies back (same one-directional pattern as
// ReadinessPropagator above).
type DependencyResolver interface {
	// BlockersFor returns, for every task in the project, the set of task
	// IDs that must reach terminal_done before it (to_task_id -> []from_task_id).
	BlockersFor(ctx context.Context, projectID string) (map[string][]string, error)
	// CycleCheck verifies that proposed, together with a project's existing
	// edges, stays acyclic — the precondition for Import's all-or-nothing
	// commit (spec §4.3 CycleCheck, §8 S6).
	CycleCheck(ctx context.Context, projectID string, proposed []DependencyEdgeProposal) error
	// CreateEdgesTx bulk-inserts proposed within the same transaction as
	// Import's task insert (spec §8 S6).
	CreateEdgesTx(ctx context.Context, tx bun.Tx, projectID string, proposed []DependencyEdgeProposal) error
}

// Service implements the TaskEngine (spec §4.4).
type Service struct {
	repo        *Repository
	projectRepo *projects.Repository
	ready       ReadinessPropagator
	deps        DependencyResolver
	bus         *eventbus.Bus
	log         *slog.Logger
}

// NewService creates a new tasks service.
func NewService(repo *Repository, projectRepo *projects.Repository, ready ReadinessPropagator, deps DependencyResolver, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		projectRepo: projectRepo,
		ready:       ready,
		deps:        deps,
		bus:         bus,
		log:         log.With(logger.Scope("tasks.svc")),
	}
}

// BootstrapDefaultColumns implements projects.ColumnBootstrapper — it creates
// one column per semantic role present in the project's status_semantics, in
// a fixed, sensible visual order (spec §3 Lifecycle summary).
func (s *Service) BootstrapDefaultColumns(ctx context.Context, tx bun.Tx, projectID string, semantics projects.StatusSemantics) error {
	order := []string{
		projects.SemanticInitial,
		projects.SemanticClaimable,
		"in_progress",
		"review",
		projects.SemanticTerminalDone,
		projects.SemanticTerminalFail,
		projects.SemanticBlocked,
	}
	names := map[string]string{
		projects.SemanticInitial:      "Backlog",
		projects.SemanticClaimable:    "Ready",
		"in_progress":                 "In Progress",
		"review":                      "Review",
		projects.SemanticTerminalDone: "Done",
		projects.SemanticTerminalFail: "Failed",
		projects.SemanticBlocked:      "Blocked",
	}

	seen := map[string]bool{}
	var cols []KanbanColumn
	pos := 0
	for _, role := range order {
		statuses := semantics[role]
		if len(statuses) == 0 || seen[role] {
			continue
		}
		seen[role] = true
		cols = append(cols, KanbanColumn{
			ProjectID:    projectID,
			Name:         names[role],
			Position:     pos,
			TaskStatuses: statuses,
		})
		pos++
	}

	return s.repo.CreateColumnsTx(ctx, tx, cols)
}

// --- columns ----------------------------------------------------------

// ListColumns returns a project's columns.
func (s *Service) ListColumns(ctx context.Context, projectID string) ([]KanbanColumn, error) {
	return s.repo.ListColumns(ctx, projectID)
}

// CreateColumn adds a kanban column to a project (spec §4.4.1).
func (s *Service) CreateColumn(ctx context.Context, projectID string, req CreateColumnRequest) (*KanbanColumn, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.New(400, "validation-failed", "name required")
	}
	if len(req.TaskStatuses) == 0 {
		return nil, apperror.New(400, "validation-failed", "task_statuses must have at least one entry")
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		existing, err := s.repo.ListColumns(ctx, projectID)
		if err != nil {
			return nil, err
		}
		for _, c := range existing {
			if c.Position >= position {
				position = c.Position + 1
			}
		}
	}

	col := &KanbanColumn{
		ProjectID:    projectID,
		Name:         name,
		Position:     position,
		WIPLimit:     req.WIPLimit,
		TaskStatuses: req.TaskStatuses,
	}
	if err := s.repo.CreateColumn(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// UpdateColumn applies a partial update to a column.
func (s *Service) UpdateColumn(ctx context.Context, id string, req UpdateColumnRequest) (*KanbanColumn, error) {
	col, err := s.repo.GetColumn(ctx, id)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, apperror.New(404, "not-found", "column not found")
	}

	if req.Name != nil {
		col.Name = strings.TrimSpace(*req.Name)
	}
	if req.Position != nil {
		col.Position = *req.Position
	}
	if req.WIPLimit != nil {
		col.WIPLimit = req.WIPLimit
	}
	if len(req.TaskStatuses) > 0 {
		col.TaskStatuses = req.TaskStatuses
	}

	if err := s.repo.UpdateColumn(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteColumn removes a column. Fails 400 if the column still holds tasks
// (spec §4.4.1, §8 boundary behaviors).
func (s *Service) DeleteColumn(ctx context.Context, id string) error {
	count, err := s.repo.CountTasksInColumn(ctx, id, "")
	if err != nil {
		return err
	}
	if count > 0 {
		return apperror.New(400, "column-occupied", "column still contains tasks; move them first")
	}

	deleted, err := s.repo.DeleteColumn(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperror.New(404, "not-found", "column not found")
	}
	return nil
}

// MoveTask moves a task into a column (drag-drop), forcing its status to
// the column's first task_status (spec §4.4.1).
func (s *Service) MoveTask(ctx context.Context, taskID, columnID string, position int) (*Task, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperror.New(404, "not-found", "task not found")
	}

	col, err := s.repo.GetColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	if col == nil || len(col.TaskStatuses) == 0 {
		return nil, apperror.New(400, "invalid-column", "column has no task_statuses configured")
	}
	if col.WIPLimit != nil {
		count, err := s.repo.CountTasksInColumn(ctx, columnID, taskID)
		if err != nil {
			return nil, err
		}
		if count >= *col.WIPLimit {
			return nil, apperror.New(400, "wip-limit-exceeded", "column WIP limit reached")
		}
	}

	task.ColumnID = columnID
	task.ColumnPosition = position
	task.Status = col.TaskStatuses[0]
	task.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// --- task creation ------------------------------------------------------

// List returns a project's tasks.
func (s *Service) List(ctx context.Context, projectID, status, columnID string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.repo.List(ctx, ListParams{ProjectID: projectID, Status: status, ColumnID: columnID, Limit: limit})
}

// GetByID returns a task by ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, apperror.New(404, "not-found", "task not found")
	}
	return task, nil
}

// Create creates a task, inferring work_type and resolving the initial
// column/status when the caller does not specify them (spec §4.4.2).
func (s *Service) Create(ctx context.Context, projectID string, req CreateTaskRequest) (*Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperror.New(400, "validation-failed", "title required")
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	workType := req.WorkType
	if workType == nil || *workType == "" {
		inferred := inferWorkType(title, req.Tags, req.Description)
		workType = inferred
	}

	priority := req.Priority
	if priority == "" {
		priority = PriorityP2
	}

	cols, err := s.repo.ListColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, apperror.ErrInternal.WithMessage("project has no kanban columns configured")
	}

	col, status := resolveInitialPlacement(project, cols, req.HasDependencies)
	if col == nil {
		return nil, apperror.ErrInternal.WithMessage("unable to resolve an initial column for task")
	}

	task := &Task{
		ProjectID:      projectID,
		Title:          title,
		Description:    req.Description,
		Status:         status,
		Priority:       priority,
		ParentTaskID:   req.ParentTaskID,
		Tags:           req.Tags,
		EstimatedHours: req.EstimatedHours,
		ColumnID:       col.ID,
		WorkType:       workType,
		PipelineID:     req.PipelineID,
		TaskMetadata:   TaskMetadata{},
		CompletedStages: []string{},
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_CREATED", map[string]any{
		"task_id":    task.ID,
		"project_id": projectID,
		"status":     task.Status,
		"work_type":  task.WorkType,
	})

	return task, nil
}

// Import bulk-creates tasks and their blocks-dependencies from a single
// title-resolved batch (spec §4.3, §8 S6): if any dependency names a title
// not present in the batch, or the combined graph has a cycle, nothing is
// written — tasks and edges commit together in one transaction or not at all.
func (s *Service) Import(ctx context.Context, projectID string, req ImportRequest) (*ImportResult, error) {
	if len(req.Tasks) == 0 {
		return nil, apperror.New(400, "validation-failed", "tasks must have at least one entry")
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	cols, err := s.repo.ListColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, apperror.ErrInternal.WithMessage("project has no kanban columns configured")
	}
	backlogCol := lowestPositionColumn(cols)
	readyCol := columnWithStatus(cols, "ready")

	ids := make([]string, len(req.Tasks))
	titleToID := make(map[string]string, len(req.Tasks))
	for i, spec := range req.Tasks {
		title := strings.TrimSpace(spec.Title)
		if title == "" {
			return nil, apperror.New(400, "validation-failed", "title required")
		}
		ids[i] = uuid.NewString()
		titleToID[title] = ids[i]
	}

	var edgeProposals []DependencyEdgeProposal
	incoming := map[string]int{}
	for i, spec := range req.Tasks {
		for _, depTitle := range spec.Dependencies {
			depTitle = strings.TrimSpace(depTitle)
			depID, ok := titleToID[depTitle]
			if !ok {
				return nil, apperror.New(400, "unknown-dependency", fmt.Sprintf("unknown dependency title %q", depTitle))
			}
			edgeProposals = append(edgeProposals, DependencyEdgeProposal{FromTaskID: depID, ToTaskID: ids[i], Type: "blocks"})
			incoming[ids[i]]++
		}
	}

	if len(edgeProposals) > 0 {
		if err := s.deps.CycleCheck(ctx, projectID, edgeProposals); err != nil {
			return nil, err
		}
	}

	tasksToCreate := make([]Task, len(req.Tasks))
	for i, spec := range req.Tasks {
		priority := spec.Priority
		if priority == "" {
			priority = PriorityP2
		}
		workType := spec.WorkType
		if workType == nil || *workType == "" {
			workType = inferWorkType(spec.Title, spec.Tags, spec.Description)
		}

		col, status := backlogCol, ""
		if len(backlogCol.TaskStatuses) > 0 {
			status = backlogCol.TaskStatuses[0]
		}
		if incoming[ids[i]] == 0 && readyCol != nil {
			col, status = readyCol, readyCol.TaskStatuses[0]
		}
		if col == nil {
			return nil, apperror.ErrInternal.WithMessage("unable to resolve an initial column for imported task")
		}

		tasksToCreate[i] = Task{
			ID:              ids[i],
			ProjectID:       projectID,
			Title:           strings.TrimSpace(spec.Title),
			Description:     spec.Description,
			Status:          status,
			Priority:        priority,
			Tags:            spec.Tags,
			EstimatedHours:  spec.EstimatedHours,
			ColumnID:        col.ID,
			WorkType:        workType,
			TaskMetadata:    TaskMetadata{},
			CompletedStages: []string{},
		}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.repo.CreateTx(ctx, tx.Tx, tasksToCreate); err != nil {
		return nil, err
	}
	if err := s.deps.CreateEdgesTx(ctx, tx.Tx, projectID, edgeProposals); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASKS_IMPORTED", map[string]any{
		"project_id":           projectID,
		"tasks_created":        len(tasksToCreate),
		"dependencies_created": len(edgeProposals),
	})

	return &ImportResult{
		TasksCreated:        len(tasksToCreate),
		DependenciesCreated: len(edgeProposals),
		TaskIDs:             ids,
		TitleToID:           titleToID,
	}, nil
}

// resolveInitialPlacement implements the 3-step fallback of spec §4.4.2.
func resolveInitialPlacement(project *projects.Project, cols []KanbanColumn, hasDependencies bool) (*KanbanColumn, string) {
	semantics := project.StatusSemantics

	if !hasDependencies && len(semantics[projects.SemanticClaimable]) > 0 {
		readyStatus := semantics[projects.SemanticClaimable][0]
		if col := columnWithStatus(cols, readyStatus); col != nil {
			return col, readyStatus
		}
	}

	for _, status := range semantics[projects.SemanticInitial] {
		if col := columnWithStatus(cols, status); col != nil {
			return col, status
		}
	}

	lowest := lowestPositionColumn(cols)
	if lowest == nil || len(lowest.TaskStatuses) == 0 {
		return nil, ""
	}
	return lowest, lowest.TaskStatuses[0]
}

func columnWithStatus(cols []KanbanColumn, status string) *KanbanColumn {
	for i := range cols {
		if cols[i].HasStatus(status) {
			return &cols[i]
		}
	}
	return nil
}

func lowestPositionColumn(cols []KanbanColumn) *KanbanColumn {
	if len(cols) == 0 {
		return nil
	}
	lowest := &cols[0]
	for i := range cols {
		if cols[i].Position < lowest.Position {
			lowest = &cols[i]
		}
	}
	return lowest
}

// tagWorkTypeMap is the highest-confidence signal: an explicit tag.
var tagWorkTypeMap = map[string]string{
	"bugfix": WorkTypeBugfix, "bug": WorkTypeBugfix, "fix": WorkTypeBugfix, "hotfix": WorkTypeBugfix,
	"test": WorkTypeTest, "testing": WorkTypeTest, "qa": WorkTypeTest, "e2e": WorkTypeTest,
	"integration-test": WorkTypeTest, "unit-test": WorkTypeTest,
	"refactor": WorkTypeRefactor, "refactoring": WorkTypeRefactor, "cleanup": WorkTypeRefactor,
	"docs": WorkTypeDocs, "documentation": WorkTypeDocs, "readme": WorkTypeDocs,
	"infra": WorkTypeInfrastructure, "infrastructure": WorkTypeInfrastructure, "devops": WorkTypeInfrastructure,
	"ci": WorkTypeInfrastructure, "cd": WorkTypeInfrastructure, "deploy": WorkTypeInfrastructure, "deployment": WorkTypeInfrastructure,
	"design": WorkTypeDesign, "ux": WorkTypeDesign, "ui": WorkTypeDesign, "wireframe": WorkTypeDesign,
	"feature": WorkTypeFeature,
}

var bugfixPatterns = []string{"fix ", "fix:", "bugfix", "bug:", "hotfix", "patch ", "resolve ", "repair ", "crash ", "error in", "broken "}
var testPatterns = []string{"add test", "write test", "integration test", "unit test", "e2e test", "test coverage", "test for ", "tests for ", "add spec", "test:", "testing "}
var refactorPatterns = []string{"refactor", "cleanup", "clean up", "reorganize", "simplify", "extract ", "rename ", "move "}
var docPatterns = []string{"document", "docs:", "readme", "update docs", "add documentation", "api docs", "jsdoc", "docstring"}
var infraPatterns = []string{"deploy", "ci/cd", "pipeline", "docker", "kubernetes", "terraform", "ansible", "monitoring", "alerting", "infrastructure", "devops", "nginx", "ssl"}
var designPatterns = []string{"design ", "ux ", "ui ", "wireframe", "mockup", "user flow", "prototype", "design system"}
var featurePatterns = []string{"implement ", "add ", "create ", "build ", "develop ", "new ", "feature:", "feat:"}

// inferWorkType auto-infers a task's work_type from title, tags, and
// description using a keyword heuristic (spec §4.4.2, §8 test seeds). Tags
// win first, then the title patterns, then the same patterns over the first
// 500 characters of the description.
// Returns nil when no confident match is found ("unclassified").
func inferWorkType(title string, tags []string, description string) *string {
	titleLower := strings.ToLower(title)
	descLower := strings.ToLower(description)
	if len(descLower) > 500 {
		descLower = descLower[:500]
	}

	for _, tag := range tags {
		if wt, ok := tagWorkTypeMap[strings.ToLower(tag)]; ok {
			return &wt
		}
	}

	for _, text := range []string{titleLower, descLower} {
		switch {
		case containsAny(text, bugfixPatterns):
			return strPtr(WorkTypeBugfix)
		case containsAny(text, testPatterns):
			return strPtr(WorkTypeTest)
		case containsAny(text, refactorPatterns):
			return strPtr(WorkTypeRefactor)
		case containsAny(text, docPatterns):
			return strPtr(WorkTypeDocs)
		case containsAny(text, infraPatterns):
			return strPtr(WorkTypeInfrastructure)
		case containsAny(text, designPatterns):
			return strPtr(WorkTypeDesign)
		case containsAny(text, featurePatterns):
			return strPtr(WorkTypeFeature)
		}
	}
	return nil
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }

// --- atomic claim ---------------------------------------------------------

// ClaimTask is the serialisation point for agent/task assignment (spec §4.4.3).
func (s *Service) ClaimTask(ctx context.Context, projectID, taskID, agentID string) (*ClaimResult, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	project, err := s.projectRepo.GetByIDWithLock(ctx, tx.Tx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	task, err := s.repo.GetByIDWithLock(ctx, tx.Tx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.ProjectID != projectID {
		return nil, apperror.New(404, "not-found", "task not found")
	}

	if task.AssignedAgent != nil && *task.AssignedAgent == agentID {
		branch := ensureGitBranch(task)
		if err := s.repo.UpdateTx(ctx, tx.Tx, task); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		return &ClaimResult{Task: task, Branch: branch, AlreadyClaimed: true}, nil
	}

	if task.AssignedAgent != nil {
		return nil, apperror.New(409, "conflict", fmt.Sprintf("task already claimed by %s", *task.AssignedAgent))
	}

	if !project.StatusSemantics.HasRole(projects.SemanticClaimable, task.Status) {
		return nil, apperror.New(400, "not-claimable", fmt.Sprintf("task status %q is not claimable", task.Status))
	}

	task.AssignedAgent = &agentID
	branch := ensureGitBranch(task)
	task.UpdatedAt = time.Now()

	if err := s.repo.UpdateTx(ctx, tx.Tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_CLAIMED", map[string]any{
		"task_id":    task.ID,
		"project_id": projectID,
		"agent_id":   agentID,
		"branch":     branch,
	})

	return &ClaimResult{Task: task, Branch: branch, AlreadyClaimed: false}, nil
}

// ensureGitBranch returns the task's persisted branch name, creating and
// persisting a deterministic one if absent (spec §4.4.3 step 3/6). Branch
// naming itself is owned by domain/workspace (spec §4.2 TaskBranchName) so
// both the kanban flow and the WorkspaceManager agree on one convention.
func ensureGitBranch(task *Task) string {
	if task.TaskMetadata == nil {
		task.TaskMetadata = TaskMetadata{}
	}
	branch, meta, _ := workspace.EnsureTaskBranch(task.TaskMetadata, task.ID, task.Title)
	task.TaskMetadata = TaskMetadata(meta)
	return branch
}

// --- transition -----------------------------------------------------------

// Transition moves a task to a new status, enforcing workflow policy,
// resolving the target column, tracking completed stages, firing the
// readiness cascade, and dispatching role-based pulses (spec §4.4.4).
func (s *Service) Transition(ctx context.Context, projectID, taskID, newStatus, note string) (*TransitionResult, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	project, err := s.projectRepo.GetByIDWithLock(ctx, tx.Tx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	task, err := s.repo.GetByIDWithLock(ctx, tx.Tx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil || task.ProjectID != projectID {
		return nil, apperror.New(404, "not-found", "task not found")
	}

	cols, err := s.repo.ListColumns(ctx, projectID)
	if err != nil {
		return nil, err
	}

	validStatuses := unionColumnStatuses(cols)
	if !contains(validStatuses, newStatus) {
		return nil, apperror.New(400, "invalid-status", fmt.Sprintf("status %q is not a recognized column status", newStatus))
	}

	previousStatus := task.Status

	if previousStatus == newStatus {
		if err := tx.Commit(); err != nil {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_STATUS_CHANGED", map[string]any{
			"task_id": task.ID, "project_id": projectID, "from": previousStatus, "to": newStatus, "reason": "noop",
		})
		return &TransitionResult{Task: task, PreviousStatus: previousStatus}, nil
	}

	policy, err := s.repo.GetWorkflowPolicy(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if policy != nil && task.WorkType != nil {
		rules := policy.RulesFor(*task.WorkType)
		for _, rule := range rules {
			if rule.Stage == newStatus && rule.Disposition == DispositionSkip {
				return nil, apperror.New(400, "transition-skipped", fmt.Sprintf("stage %q is marked skip for work_type %q", newStatus, *task.WorkType)).WithDetails(map[string]any{
					"valid_next_stages": nextValidStages(rules),
				})
			}
		}
	}

	targetCol := columnWithStatus(cols, newStatus)
	if targetCol == nil {
		return nil, apperror.New(400, "no-column-for-status", fmt.Sprintf("no column maps status %q", newStatus))
	}

	now := time.Now()
	task.Status = newStatus
	task.ColumnID = targetCol.ID
	task.UpdatedAt = now
	if project.StatusSemantics.HasRole(projects.SemanticTerminalDone, newStatus) {
		task.CompletedAt = &now
	}

	if stage := stageForStatus(policy, task.WorkType, previousStatus); stage != "" {
		task.CompletedStages = appendUnique(task.CompletedStages, stage)
	}

	if note != "" {
		if task.TaskMetadata == nil {
			task.TaskMetadata = TaskMetadata{}
		}
		notes, _ := task.TaskMetadata[MetaTransitionNotes].([]any)
		notes = append(notes, map[string]any{
			"from": previousStatus, "to": newStatus, "note": note, "timestamp": now,
		})
		task.TaskMetadata[MetaTransitionNotes] = notes
	}

	if err := s.repo.UpdateTx(ctx, tx.Tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if project.StatusSemantics.HasRole(projects.SemanticTerminalDone, newStatus) {
		if err := s.ready.OnTerminalDone(ctx, project, task); err != nil {
			s.log.Error("readiness propagation failed", logger.Error(err), slog.String("task_id", task.ID))
		}
	} else if project.StatusSemantics.HasRole(projects.SemanticTerminalFail, newStatus) {
		if err := s.ready.OnTerminalFail(ctx, project, task); err != nil {
			s.log.Error("readiness propagation failed", logger.Error(err), slog.String("task_id", task.ID))
		}
	} else if !project.StatusSemantics.HasRole(projects.SemanticBlocked, newStatus) {
		if err := s.ready.OnRecovery(ctx, project, task); err != nil {
			s.log.Error("readiness recovery failed", logger.Error(err), slog.String("task_id", task.ID))
		}
	}

	if task.ParentTaskID != nil {
		if err := s.ready.DeriveParent(ctx, project, *task.ParentTaskID); err != nil {
			s.log.Error("parent derivation failed", logger.Error(err), slog.String("parent_id", *task.ParentTaskID))
		}
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_STATUS_CHANGED", map[string]any{
		"task_id": task.ID, "project_id": projectID, "from": previousStatus, "to": newStatus,
	})

	if agentID := roleAgentForStage(policy, task.WorkType, newStatus); agentID != "" {
		s.bus.Publish(ctx, eventbus.StreamGlobal, "PULSE_TRIGGERED", map[string]any{
			"project_id": projectID, "task_id": task.ID, "agent_id": agentID, "stage": newStatus,
		})
	}

	if project.StatusSemantics.HasRole(projects.SemanticTerminalDone, newStatus) && task.AssignedAgent != nil {
		s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_WORKSPACE_REMOVE_REQUESTED", map[string]any{
			"project_id": projectID, "task_id": task.ID, "agent_id": *task.AssignedAgent,
		})
	}

	return &TransitionResult{Task: task, PreviousStatus: previousStatus}, nil
}

func unionColumnStatuses(cols []KanbanColumn) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range cols {
		for _, st := range c.TaskStatuses {
			if !seen[st] {
				seen[st] = true
				out = append(out, st)
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

// stageForStatus reports the stage name the outgoing status represents,
// if the workflow policy names it as a rule's stage (spec §4.4.4 step 5).
func stageForStatus(policy *WorkflowPolicy, workType *string, status string) string {
	if policy == nil || workType == nil {
		return ""
	}
	for _, rule := range policy.RulesFor(*workType) {
		if rule.Stage == status {
			return rule.Stage
		}
	}
	return ""
}

func nextValidStages(rules []StageRule) []string {
	var out []string
	for _, r := range rules {
		if r.Disposition == DispositionRun {
			out = append(out, r.Stage)
		}
	}
	return out
}

// roleAgentForStage resolves the agent to notify when a task enters
// newStatus: the agent_role of the WorkflowPolicy rule whose stage is
// newStatus, returned as-is as the agent id (there is no separate
// role-to-agent lookup). When no rule names a role for the stage (no policy,
// no work_type, or no matching rule) it falls back to the hardcoded defaults
// (spec §4.4.4 step 11, §9 "Dynamic dispatch for agent roles").
func roleAgentForStage(policy *WorkflowPolicy, workType *string, newStatus string) string {
	if policy != nil && workType != nil {
		for _, rule := range policy.RulesFor(*workType) {
			if rule.Stage == newStatus && rule.AgentRole != "" {
				return rule.AgentRole
			}
		}
	}
	return fallbackRoleToAgent[newStatus]
}

// --- ready-tasks query ------------------------------------------------------

// ReadyTasks is the query an agent calls on each pulse to find work
// (spec §4.4.5).
func (s *Service) ReadyTasks(ctx context.Context, params ReadyTasksParams) (*ReadyTasksResult, error) {
	project, err := s.projectRepo.GetByID(ctx, params.ProjectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperror.ErrProjectNotFound
	}

	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = append(statuses, project.StatusSemantics[projects.SemanticInitial]...)
		statuses = append(statuses, "planning")
		statuses = append(statuses, project.StatusSemantics[projects.SemanticClaimable]...)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates, err := s.repo.ReadyCandidates(ctx, params.ProjectID, statuses, params.WorkTypes, 0)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.List(ctx, ListParams{ProjectID: params.ProjectID})
	if err != nil {
		return nil, err
	}

	containerParents := map[string]bool{}
	byID := map[string]*Task{}
	for i := range all {
		byID[all[i].ID] = &all[i]
		if all[i].ParentTaskID != nil {
			containerParents[*all[i].ParentTaskID] = true
		}
	}

	blockers, err := s.deps.BlockersFor(ctx, params.ProjectID)
	if err != nil {
		return nil, err
	}

	result := &ReadyTasksResult{}
	for _, t := range candidates {
		if containerParents[t.ID] {
			continue
		}
		if params.AgentID != "" && t.AssignedAgent != nil && *t.AssignedAgent != params.AgentID {
			continue
		}

		if project.StatusSemantics.HasRole(projects.SemanticBlocked, t.Status) ||
			contains(project.StatusSemantics[projects.SemanticInitial], t.Status) ||
			t.Status == "planning" {
			if !dependenciesSatisfied(t, byID, blockers, project) {
				continue
			}
		}

		if len(result.Tasks) >= limit {
			break
		}
		result.Tasks = append(result.Tasks, ReadyTask{Task: t})
	}

	if params.AgentID != "" {
		inProgress, err := s.repo.InProgressByAgent(ctx, params.ProjectID, params.AgentID)
		if err != nil {
			return nil, err
		}
		for _, t := range inProgress {
			result.InProgress = append(result.InProgress, ReadyTask{Task: t})
		}
	}

	return result, nil
}

// dependenciesSatisfied implements spec §4.4.5's (a)/(b) rule for tasks that
// are not already validated by virtue of being in an active status. blockers
// comes from DependencyResolver.BlockersFor; a task with no entry has no
// known blockers.
func dependenciesSatisfied(t Task, byID map[string]*Task, blockers map[string][]string, project *projects.Project) bool {
	for _, fromID := range blockers[t.ID] {
		pred, ok := byID[fromID]
		if !ok || !project.StatusSemantics.HasRole(projects.SemanticTerminalDone, pred.Status) {
			return false
		}
	}
	if t.ParentTaskID != nil {
		for _, fromID := range blockers[*t.ParentTaskID] {
			pred, ok := byID[fromID]
			if !ok || !project.StatusSemantics.HasRole(projects.SemanticTerminalDone, pred.Status) {
				return false
			}
		}
	}
	return true
}
