package runs

import (
	"context"
	"log/slog"
	"time"

	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

// Service implements the RunDispatcher component (spec §4.6).
type Service struct {
	repo        *Repository
	tasksRepo   *tasks.Repository
	projectRepo *projects.Repository
	ready       tasks.ReadinessPropagator
	bus         *eventbus.Bus
	log         *slog.Logger
}

// NewService creates a new runs service.
func NewService(repo *Repository, tasksRepo *tasks.Repository, projectRepo *projects.Repository, ready tasks.ReadinessPropagator, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		tasksRepo:   tasksRepo,
		projectRepo: projectRepo,
		ready:       ready,
		bus:         bus,
		log:         log.With(logger.Scope("runs.svc")),
	}
}

// StartRun translates a "start a pipeline run" intent into persistent state
// and a signal to the worker pool (spec §4.6 "Start path").
func (s *Service) StartRun(ctx context.Context, req StartRunRequest) (*Run, error) {
	// Step 1: pipeline id existence is delegated to an external registry not
	// yet wired; a placeholder always-true check stands in for it.
	if req.PipelineID == "" {
		return nil, apperror.NewBadRequest("pipeline_id is required")
	}

	workspaceType := req.WorkspaceType
	if workspaceType == "" {
		workspaceType = projects.WorkspaceEphemeralRunDir
		if req.ProjectID != nil {
			if project, err := s.projectRepo.GetByID(ctx, *req.ProjectID); err == nil && project != nil {
				workspaceType = project.WorkspaceType
			}
		}
	}

	run := &Run{
		PipelineID:        req.PipelineID,
		ProjectID:         req.ProjectID,
		TaskDescription:   req.TaskDescription,
		Status:            RunStatusPending,
		Outputs:           KeyResolution{},
		InitiatedByUserID: req.InitiatedByUserID,
		ModelOverride:     req.ModelOverride,
		WorkspaceType:     workspaceType,
		KeyResolution:     KeyResolution{},
	}

	if err := s.repo.Create(ctx, run); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, eventbus.StreamNewRuns, "run:new", map[string]any{
		"run_id":      run.ID,
		"pipeline_id": run.PipelineID,
	})

	runningCount, err := s.repo.CountByStatus(ctx, RunStatusRunning)
	if err != nil {
		runningCount = 0
	}
	s.bus.Publish(ctx, eventbus.StreamGlobal, "RUN_CREATED", map[string]any{
		"run_id":        run.ID,
		"running_count": runningCount,
	})

	return run, nil
}

// CompleteRun implements the webhook completion path
// (spec §4.6 "Completion path"), mapping the run's terminal status to a task
// status via the project's semantics and cascading readiness.
func (s *Service) CompleteRun(ctx context.Context, runID string, newStatus string) error {
	tr, err := s.repo.GetTaskRunByRunID(ctx, runID)
	if err != nil {
		return err
	}
	if tr == nil {
		// A run with no linked task (e.g. ad hoc pipeline) has nothing to cascade.
		return s.finalizeRun(ctx, runID, newStatus)
	}

	task, err := s.tasksRepo.GetByID(ctx, tr.TaskID)
	if err != nil {
		return err
	}
	if task == nil {
		return apperror.NewNotFound("task", tr.TaskID)
	}

	project, err := s.projectRepo.GetByID(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		return apperror.ErrProjectNotFound
	}

	var targetStatus string
	switch newStatus {
	case RunStatusCompleted:
		targetStatus = firstOr(project.StatusSemantics[projects.SemanticTerminalDone], "done")
	case RunStatusFailed:
		targetStatus = firstOr(project.StatusSemantics[projects.SemanticTerminalFail], "failed")
	default:
		return apperror.NewBadRequest("status must be completed or failed")
	}

	cols, err := s.tasksRepo.ListColumns(ctx, project.ID)
	if err != nil {
		return err
	}
	var targetColumnID string
	for i := range cols {
		if cols[i].HasStatus(targetStatus) {
			targetColumnID = cols[i].ID
			break
		}
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	task.Status = targetStatus
	if targetColumnID != "" {
		task.ColumnID = targetColumnID
	}
	task.RunID = nil
	if newStatus == RunStatusCompleted {
		now := time.Now()
		task.CompletedAt = &now
	}
	task.UpdatedAt = time.Now()
	if err := s.tasksRepo.UpdateTx(ctx, tx.Tx, task); err != nil {
		return err
	}

	tr.Status = newStatus
	now := time.Now()
	tr.CompletedAt = &now
	if err := s.repo.UpdateTaskRunTx(ctx, tx.Tx, tr); err != nil {
		return err
	}

	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run != nil {
		run.Status = newStatus
		run.CompletedAt = &now
		run.UpdatedAt = now
		if err := s.repo.UpdateTx(ctx, tx.Tx, run); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	if newStatus == RunStatusCompleted {
		if err := s.ready.OnTerminalDone(ctx, project, task); err != nil {
			s.log.Error("readiness cascade failed", logger.Error(err), slog.String("task_id", task.ID))
		}
		s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_EXECUTION_COMPLETED", map[string]any{
			"task_id": task.ID,
			"run_id":  runID,
		})
	} else {
		if err := s.ready.OnTerminalFail(ctx, project, task); err != nil {
			s.log.Error("readiness cascade failed", logger.Error(err), slog.String("task_id", task.ID))
		}
		s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_EXECUTION_FAILED", map[string]any{
			"task_id": task.ID,
			"run_id":  runID,
		})
	}

	if task.ParentTaskID != nil {
		if err := s.ready.DeriveParent(ctx, project, *task.ParentTaskID); err != nil {
			s.log.Error("parent derivation failed", logger.Error(err))
		}
	}

	return nil
}

func (s *Service) finalizeRun(ctx context.Context, runID, newStatus string) error {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}
	now := time.Now()
	run.Status = newStatus
	run.CompletedAt = &now
	run.UpdatedAt = now
	return s.repo.Update(ctx, run)
}

// --- step operations ---------------------------------------------------------

// CreateStep upserts a step by (run_id, step_id): on conflict it resets the
// existing row for retry (spec §4.6 "CreateStep").
func (s *Service) CreateStep(ctx context.Context, runID string, req CreateStepRequest) (*Step, error) {
	existing, err := s.repo.GetStep(ctx, runID, req.StepID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Status = StepStatusPending
		existing.RetryCount++
		existing.Outputs = map[string]any{}
		existing.Error = nil
		existing.StartedAt = nil
		existing.CompletedAt = nil
		existing.Inputs = req.Inputs
		existing.AgentID = req.AgentID
		if req.MaxRetries > 0 {
			existing.MaxRetries = req.MaxRetries
		}
		existing.HumanContext = req.HumanContext
		existing.UpdatedAt = time.Now()
		if err := s.repo.UpdateStep(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	step := &Step{
		RunID:        runID,
		StepID:       req.StepID,
		AgentID:      req.AgentID,
		Status:       StepStatusPending,
		Inputs:       req.Inputs,
		Outputs:      map[string]any{},
		MaxRetries:   req.MaxRetries,
		HumanContext: req.HumanContext,
		RetryCount:   0,
	}
	if step.Inputs == nil {
		step.Inputs = map[string]any{}
	}
	if err := s.repo.CreateStep(ctx, step); err != nil {
		return nil, err
	}
	return step, nil
}

// UpdateStep patches any subset of a step's fields and publishes STEP_UPDATED
// on the run's stream (spec §4.6 "UpdateStep").
func (s *Service) UpdateStep(ctx context.Context, runID, stepID string, req UpdateStepRequest) (*Step, error) {
	step, err := s.repo.GetStep(ctx, runID, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, apperror.NewNotFound("step", stepID)
	}

	if req.Status != nil {
		step.Status = *req.Status
	}
	if req.SessionID != nil {
		step.SessionID = req.SessionID
	}
	if req.Outputs != nil {
		step.Outputs = req.Outputs
	}
	if req.Error != nil {
		step.Error = req.Error
	}
	if req.ModelUsed != nil {
		step.ModelUsed = req.ModelUsed
	}
	if req.StartedAt != nil {
		step.StartedAt = req.StartedAt
	}
	if req.CompletedAt != nil {
		step.CompletedAt = req.CompletedAt
	}
	step.UpdatedAt = time.Now()

	if err := s.repo.UpdateStep(ctx, step); err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, eventbus.StreamForRun(runID), "STEP_UPDATED", map[string]any{
		"run_id":  runID,
		"step_id": stepID,
		"status":  step.Status,
	})
	return step, nil
}

// RestartStep resets a step to pending and brings its run back to running,
// even from a terminal state (spec §4.6 "RestartStep").
func (s *Service) RestartStep(ctx context.Context, runID, stepID string) error {
	step, err := s.repo.GetStep(ctx, runID, stepID)
	if err != nil {
		return err
	}
	if step == nil {
		return apperror.NewNotFound("step", stepID)
	}

	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}

	step.Status = StepStatusPending
	step.StartedAt = nil
	step.CompletedAt = nil
	step.Error = nil
	step.UpdatedAt = time.Now()
	if err := s.repo.UpdateStep(ctx, step); err != nil {
		return err
	}

	run.Status = RunStatusRunning
	run.CompletedAt = nil
	run.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, run); err != nil {
		return err
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "HUMAN_INTERVENTION", map[string]any{
		"run_id":  runID,
		"step_id": stepID,
		"action":  "restart",
	})
	// The run's previous events:new_runs subscription may have been torn
	// down; re-post so the engine re-subscribes.
	s.bus.Publish(ctx, eventbus.StreamNewRuns, "run:new", map[string]any{
		"run_id":      runID,
		"pipeline_id": run.PipelineID,
	})
	return nil
}

// RestartRun bulk-resets every step to pending and the run to pending
// (spec §4.6 "RestartRun").
func (s *Service) RestartRun(ctx context.Context, runID string) error {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}

	if err := s.repo.BulkResetSteps(ctx, runID); err != nil {
		return err
	}

	run.Status = RunStatusPending
	run.CompletedAt = nil
	run.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, run); err != nil {
		return err
	}

	s.bus.Publish(ctx, eventbus.StreamNewRuns, "run:new", map[string]any{
		"run_id":      runID,
		"pipeline_id": run.PipelineID,
	})
	return nil
}

// Pause sets a run's status to paused (spec §4.6 "Pause/Resume").
func (s *Service) Pause(ctx context.Context, runID string) error {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}
	run.Status = RunStatusPaused
	run.UpdatedAt = time.Now()
	return s.repo.Update(ctx, run)
}

// Resume sets a run's status to running and re-emits STEP_QUEUED for every
// step still queued (spec §4.6 "Pause/Resume").
func (s *Service) Resume(ctx context.Context, runID string) error {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}
	run.Status = RunStatusRunning
	run.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, run); err != nil {
		return err
	}

	steps, err := s.repo.ListSteps(ctx, runID)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.Status != StepStatusQueued {
			continue
		}
		s.bus.Publish(ctx, eventbus.StreamForRun(runID), "STEP_QUEUED", map[string]any{
			"run_id":  runID,
			"step_id": step.StepID,
		})
	}
	return nil
}

// Cancel sets run.status=cancelled and publishes a stop intervention
// (spec §4.6 "Cancel").
func (s *Service) Cancel(ctx context.Context, runID string) error {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return apperror.NewNotFound("run", runID)
	}
	now := time.Now()
	run.Status = RunStatusCancelled
	run.CompletedAt = &now
	run.UpdatedAt = now
	if err := s.repo.Update(ctx, run); err != nil {
		return err
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "HUMAN_INTERVENTION", map[string]any{
		"run_id": runID,
		"action": "stop",
	})
	return nil
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
