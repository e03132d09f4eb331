package readiness

import (
	"context"
	"log/slog"
	"time"

	"github.com/djinnbot/core/domain/dependencies"
	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

// activeStatuses are the sibling statuses DeriveParent treats as "some
// subtask is actively being worked" (spec §4.5.2 any_active).
var activeStatuses = map[string]bool{
	"in_progress": true,
	"review":      true,
	"test":        true,
}

// Service implements the ReadinessPropagator cross-cutting rules fired
// whenever a task's status changes (spec §4.5).
type Service struct {
	tasksRepo *tasks.Repository
	depsRepo  *dependencies.Repository
	bus       *eventbus.Bus
	log       *slog.Logger
}

// NewService creates a new readiness service.
func NewService(tasksRepo *tasks.Repository, depsRepo *dependencies.Repository, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		tasksRepo: tasksRepo,
		depsRepo:  depsRepo,
		bus:       bus,
		log:       log.With(logger.Scope("readiness.svc")),
	}
}

// OnTerminalDone implements spec §4.5.1's terminal_done bullet: for every
// dependent D of T, if all of D's blocking predecessors are now done,
// restore D to its pre-block status (or the project's default claimable
// status) and publish the unlock.
func (s *Service) OnTerminalDone(ctx context.Context, project *projects.Project, task *tasks.Task) error {
	dependents, err := s.depsRepo.OutboundEdges(ctx, task.ID)
	if err != nil {
		return err
	}

	for _, edge := range dependents {
		if edge.Type != dependencies.TypeBlocks {
			continue
		}

		d, err := s.tasksRepo.GetByID(ctx, edge.ToTaskID)
		if err != nil || d == nil {
			continue
		}

		allDone, err := s.allPredecessorsDone(ctx, project, d.ID)
		if err != nil {
			return err
		}
		if !allDone {
			continue
		}

		if err := s.restoreOrDefault(ctx, project, d, "all_dependencies_met"); err != nil {
			return err
		}
	}
	return nil
}

// OnTerminalFail implements spec §4.5.1's terminal_fail bullet: walk the
// downstream closure of T via blocks edges, blocking every non-terminal
// task reachable and saving its pre-block state for later recovery.
func (s *Service) OnTerminalFail(ctx context.Context, project *projects.Project, task *tasks.Task) error {
	visited := map[string]bool{task.ID: true}
	queue := []string{task.ID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		dependents, err := s.depsRepo.OutboundEdges(ctx, current)
		if err != nil {
			return err
		}

		for _, edge := range dependents {
			if edge.Type != dependencies.TypeBlocks || visited[edge.ToTaskID] {
				continue
			}
			visited[edge.ToTaskID] = true
			queue = append(queue, edge.ToTaskID)

			d, err := s.tasksRepo.GetByID(ctx, edge.ToTaskID)
			if err != nil || d == nil {
				continue
			}
			if project.StatusSemantics.HasRole(projects.SemanticTerminalDone, d.Status) ||
				project.StatusSemantics.HasRole(projects.SemanticTerminalFail, d.Status) {
				continue
			}

			if err := s.blockTask(ctx, project, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// OnRecovery implements spec §4.5.1's recovery bullet: for every dependent D
// of T currently blocked, restore it if no other predecessor of D is
// failed or blocked.
func (s *Service) OnRecovery(ctx context.Context, project *projects.Project, task *tasks.Task) error {
	dependents, err := s.depsRepo.OutboundEdges(ctx, task.ID)
	if err != nil {
		return err
	}

	for _, edge := range dependents {
		if edge.Type != dependencies.TypeBlocks {
			continue
		}

		d, err := s.tasksRepo.GetByID(ctx, edge.ToTaskID)
		if err != nil || d == nil {
			continue
		}
		if !project.StatusSemantics.HasRole(projects.SemanticBlocked, d.Status) {
			continue
		}

		preds, err := s.depsRepo.InboundEdges(ctx, d.ID)
		if err != nil {
			return err
		}

		anyFailedOrBlocked := false
		allDone := true
		for _, p := range preds {
			if p.Type != dependencies.TypeBlocks {
				continue
			}
			pred, err := s.tasksRepo.GetByID(ctx, p.FromTaskID)
			if err != nil || pred == nil {
				continue
			}
			if project.StatusSemantics.HasRole(projects.SemanticTerminalFail, pred.Status) ||
				project.StatusSemantics.HasRole(projects.SemanticBlocked, pred.Status) {
				anyFailedOrBlocked = true
			}
			if !project.StatusSemantics.HasRole(projects.SemanticTerminalDone, pred.Status) {
				allDone = false
			}
		}
		if anyFailedOrBlocked {
			continue
		}

		target := firstOr(project.StatusSemantics[projects.SemanticInitial], "backlog")
		if allDone {
			target = firstOr(project.StatusSemantics[projects.SemanticClaimable], "ready")
		}
		if err := s.moveToStatus(ctx, project, d, target, "dependency_recovered"); err != nil {
			return err
		}
	}
	return nil
}

// DeriveParent implements spec §4.5.2: recompute a parent's status from its
// children's statuses, and if the derived status is terminal, recursively
// fire the forward cascade for the parent itself.
func (s *Service) DeriveParent(ctx context.Context, project *projects.Project, parentID string) error {
	parent, err := s.tasksRepo.GetByID(ctx, parentID)
	if err != nil || parent == nil {
		return nil
	}

	children, err := s.tasksRepo.GetChildren(ctx, parentID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	childStatuses := make([]string, 0, len(children))
	for _, c := range children {
		childStatuses = append(childStatuses, c.Status)
	}

	derived, changed := deriveParentStatus(project.StatusSemantics, childStatuses)
	if !changed || derived == parent.Status {
		return nil
	}

	if err := s.moveToStatus(ctx, project, parent, derived, "derived_from_subtasks"); err != nil {
		return err
	}

	if project.StatusSemantics.HasRole(projects.SemanticTerminalDone, derived) {
		return s.OnTerminalDone(ctx, project, parent)
	}
	return nil
}

// --- helpers ---------------------------------------------------------------

func (s *Service) allPredecessorsDone(ctx context.Context, project *projects.Project, taskID string) (bool, error) {
	preds, err := s.depsRepo.InboundEdges(ctx, taskID)
	if err != nil {
		return false, err
	}
	for _, p := range preds {
		if p.Type != dependencies.TypeBlocks {
			continue
		}
		pred, err := s.tasksRepo.GetByID(ctx, p.FromTaskID)
		if err != nil {
			return false, err
		}
		if pred == nil || !project.StatusSemantics.HasRole(projects.SemanticTerminalDone, pred.Status) {
			return false, nil
		}
	}
	return true, nil
}

// restoreOrDefault implements spec §4.5.1's "read pre_block_status; if
// present, restore... else set to claimable[0]" rule.
func (s *Service) restoreOrDefault(ctx context.Context, project *projects.Project, d *tasks.Task, reason string) error {
	if d.TaskMetadata != nil {
		if preStatus, ok := d.TaskMetadata[tasks.MetaPreBlockStatus].(string); ok && preStatus != "" {
			preColumnID, _ := d.TaskMetadata[tasks.MetaPreBlockColumnID].(string)
			delete(d.TaskMetadata, tasks.MetaPreBlockStatus)
			delete(d.TaskMetadata, tasks.MetaPreBlockColumnID)
			d.Status = preStatus
			if preColumnID != "" {
				d.ColumnID = preColumnID
			}
			d.UpdatedAt = time.Now()
			if err := s.tasksRepo.Update(ctx, d); err != nil {
				return err
			}
			s.publish(ctx, project.ID, d.ID, reason, d.Status)
			return nil
		}
	}

	target := firstOr(project.StatusSemantics[projects.SemanticClaimable], "ready")
	return s.moveToStatus(ctx, project, d, target, reason)
}

// blockTask saves D's current state under pre_block_status/pre_block_column_id
// and sets it to the project's blocked status (spec §4.5.1 terminal_fail bullet).
func (s *Service) blockTask(ctx context.Context, project *projects.Project, d *tasks.Task) error {
	if d.TaskMetadata == nil {
		d.TaskMetadata = tasks.TaskMetadata{}
	}
	d.TaskMetadata[tasks.MetaPreBlockStatus] = d.Status
	d.TaskMetadata[tasks.MetaPreBlockColumnID] = d.ColumnID

	target := firstOr(project.StatusSemantics[projects.SemanticBlocked], "blocked")
	return s.moveToStatus(ctx, project, d, target, "dependency_failed")
}

// moveToStatus resolves the lowest-position column mapping target and
// persists the task's new status/column, then publishes TASK_STATUS_CHANGED.
func (s *Service) moveToStatus(ctx context.Context, project *projects.Project, task *tasks.Task, target, reason string) error {
	cols, err := s.tasksRepo.ListColumns(ctx, project.ID)
	if err != nil {
		return err
	}

	var col *tasks.KanbanColumn
	for i := range cols {
		if cols[i].HasStatus(target) {
			if col == nil || cols[i].Position < col.Position {
				col = &cols[i]
			}
		}
	}
	if col != nil {
		task.ColumnID = col.ID
	}

	previous := task.Status
	task.Status = target
	task.UpdatedAt = time.Now()

	if err := s.tasksRepo.Update(ctx, task); err != nil {
		return err
	}

	s.log.Debug("readiness cascade moved task", slog.String("task_id", task.ID), slog.String("from", previous), slog.String("to", target), slog.String("reason", reason))
	s.publish(ctx, project.ID, task.ID, reason, target)
	return nil
}

func (s *Service) publish(ctx context.Context, projectID, taskID, reason, newStatus string) {
	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_STATUS_CHANGED", map[string]any{
		"project_id": projectID,
		"task_id":    taskID,
		"to":         newStatus,
		"reason":     reason,
	})
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}

// deriveParentStatus implements spec §4.5.2's pure decision table: given the
// statuses of every child, what should the parent's status become (if
// anything)? Returns changed=false when no child is active/failed and not
// every child is done (no rule applies).
func deriveParentStatus(semantics projects.StatusSemantics, childStatuses []string) (status string, changed bool) {
	if len(childStatuses) == 0 {
		return "", false
	}

	allDone := true
	anyActive := false
	anyFailed := false
	for _, st := range childStatuses {
		if !semantics.HasRole(projects.SemanticTerminalDone, st) {
			allDone = false
		}
		if activeStatuses[st] {
			anyActive = true
		}
		if semantics.HasRole(projects.SemanticTerminalFail, st) {
			anyFailed = true
		}
	}

	switch {
	case allDone:
		return firstOr(semantics[projects.SemanticTerminalDone], "done"), true
	case anyActive:
		return "in_progress", true
	case anyFailed:
		return firstOr(semantics[projects.SemanticTerminalFail], "failed"), true
	default:
		return "", false
	}
}
