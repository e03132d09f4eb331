package tasks

import (
	"time"

	"github.com/uptrace/bun"
)

// Priority values (spec §3).
const (
	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"
	PriorityP3 = "P3"
)

// Work types recognised by the inference heuristic (spec §4.4.2, §8).
const (
	WorkTypeFeature        = "feature"
	WorkTypeBugfix         = "bugfix"
	WorkTypeTest           = "test"
	WorkTypeRefactor       = "refactor"
	WorkTypeDocs           = "docs"
	WorkTypeInfrastructure = "infrastructure"
	WorkTypeDesign         = "design"
)

// Metadata keys used within Task.TaskMetadata (spec §3, §4.5.1).
const (
	MetaGitBranch           = "git_branch"
	MetaPreBlockStatus      = "pre_block_status"
	MetaPreBlockColumnID    = "pre_block_column_id"
	MetaTransitionNotes     = "transition_notes"
	MetaPRNumber            = "pr_number"
	MetaPRURL               = "pr_url"
)

// KanbanColumn is an ordered visual bucket per project (spec §3).
type KanbanColumn struct {
	bun.BaseModel `bun:"table:kanban_columns,alias:kc"`

	ID           string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID    string    `bun:"project_id,notnull,type:uuid" json:"project_id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Position     int       `bun:"position,notnull" json:"position"`
	WIPLimit     *int      `bun:"wip_limit" json:"wip_limit,omitempty"`
	TaskStatuses []string  `bun:"task_statuses,type:jsonb,notnull,default:'[]'" json:"task_statuses"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// HasStatus reports whether status is one of this column's mapped statuses.
func (c *KanbanColumn) HasStatus(status string) bool {
	for _, s := range c.TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// TransitionNote is one entry in Task.TaskMetadata["transition_notes"] (spec §4.4.4 step 6).
type TransitionNote struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMetadata is the free-form key/value bag described by spec §3: git_branch,
// pre_block_status, pre_block_column_id, transition_notes, plus PR linkage.
type TaskMetadata map[string]any

// Task is the unit of work (spec §3).
type Task struct {
	bun.BaseModel `bun:"table:tasks,alias:t"`

	ID              string       `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID       string       `bun:"project_id,notnull,type:uuid" json:"project_id"`
	Title           string       `bun:"title,notnull" json:"title"`
	Description     string       `bun:"description,notnull,default:''" json:"description"`
	Status          string       `bun:"status,notnull" json:"status"`
	Priority        string       `bun:"priority,notnull,default:'P2'" json:"priority"`
	AssignedAgent   *string      `bun:"assigned_agent" json:"assigned_agent,omitempty"`
	WorkflowID      *string      `bun:"workflow_id" json:"workflow_id,omitempty"`
	PipelineID      *string      `bun:"pipeline_id" json:"pipeline_id,omitempty"`
	RunID           *string      `bun:"run_id,type:uuid" json:"run_id,omitempty"`
	ParentTaskID    *string      `bun:"parent_task_id,type:uuid" json:"parent_task_id,omitempty"`
	Tags            []string     `bun:"tags,type:jsonb,notnull,default:'[]'" json:"tags"`
	EstimatedHours  *float64     `bun:"estimated_hours" json:"estimated_hours,omitempty"`
	ColumnID        string       `bun:"column_id,notnull,type:uuid" json:"column_id"`
	ColumnPosition  int          `bun:"column_position,notnull,default:0" json:"column_position"`
	TaskMetadata    TaskMetadata `bun:"task_metadata,type:jsonb,notnull,default:'{}'" json:"task_metadata"`
	WorkType        *string      `bun:"work_type" json:"work_type,omitempty"`
	CompletedStages []string     `bun:"completed_stages,type:jsonb,notnull,default:'[]'" json:"completed_stages"`
	CreatedAt       time.Time    `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt       time.Time    `bun:"updated_at,notnull,default:now()" json:"updated_at"`
	CompletedAt     *time.Time   `bun:"completed_at" json:"completed_at,omitempty"`
}

// IsClaimedBy reports whether agentID currently holds this task's claim.
func (t *Task) IsClaimedBy(agentID string) bool {
	return t.AssignedAgent != nil && *t.AssignedAgent == agentID
}

// GitBranch returns the branch name persisted under task_metadata.git_branch, if any.
func (t *Task) GitBranch() string {
	if t.TaskMetadata == nil {
		return ""
	}
	branch, _ := t.TaskMetadata[MetaGitBranch].(string)
	return branch
}

// StageRule is one entry in a WorkflowPolicy (spec §3).
type StageRule struct {
	Stage       string `json:"stage"`
	Disposition string `json:"disposition"` // "run" | "skip"
	AgentRole   string `json:"agent_role"`
}

// Disposition values for StageRule.
const (
	DispositionRun  = "run"
	DispositionSkip = "skip"
)

// WorkflowPolicy maps a project's work_type to an ordered list of stage rules (spec §3).
type WorkflowPolicy struct {
	bun.BaseModel `bun:"table:workflow_policies,alias:wp"`

	ProjectID string                 `bun:"project_id,pk,type:uuid" json:"project_id"`
	StageRules map[string][]StageRule `bun:"stage_rules,type:jsonb,notnull,default:'{}'" json:"stage_rules"`
	CreatedAt time.Time              `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time              `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// RulesFor returns the ordered stage rules for a work_type, or nil if unconfigured.
func (p *WorkflowPolicy) RulesFor(workType string) []StageRule {
	if p == nil {
		return nil
	}
	return p.StageRules[workType]
}

// fallbackRoleToAgent is the documented escape hatch (spec §9): used when no
// WorkflowPolicy rule names an agent role for the target stage, including
// when a project carries no WorkflowPolicy row.
var fallbackRoleToAgent = map[string]string{
	"planned": "shigeo",
	"test":    "chieko",
	"failed":  "yukihiro",
}

// CreateColumnRequest is the request body for creating a kanban column.
type CreateColumnRequest struct {
	Name         string   `json:"name" validate:"required"`
	Position     *int     `json:"position,omitempty"`
	WIPLimit     *int     `json:"wip_limit,omitempty"`
	TaskStatuses []string `json:"task_statuses" validate:"required,min=1"`
}

// UpdateColumnRequest is the request body for updating a kanban column.
type UpdateColumnRequest struct {
	Name         *string  `json:"name,omitempty"`
	Position     *int     `json:"position,omitempty"`
	WIPLimit     *int     `json:"wip_limit,omitempty"`
	TaskStatuses []string `json:"task_statuses,omitempty"`
}

// CreateTaskRequest is the request body for creating a task.
type CreateTaskRequest struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority,omitempty"`
	ParentTaskID   *string  `json:"parent_task_id,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	WorkType       *string  `json:"work_type,omitempty"`
	PipelineID     *string  `json:"pipeline_id,omitempty"`
	HasDependencies bool    `json:"-"` // set by caller (dependencies.Service) before initial placement
}

// ClaimResult is the outcome of ClaimTask (spec §4.4.3).
type ClaimResult struct {
	Task           *Task  `json:"task"`
	Branch         string `json:"branch"`
	AlreadyClaimed bool   `json:"already_claimed"`
}

// TransitionResult is the outcome of Transition (spec §4.4.4).
type TransitionResult struct {
	Task          *Task  `json:"task"`
	PreviousStatus string `json:"previous_status"`
}

// ReadyTasksParams filters the ReadyTasks query (spec §4.4.5).
type ReadyTasksParams struct {
	ProjectID string
	AgentID   string
	Statuses  []string
	WorkTypes []string
	Limit     int
}

// DependentInfo is a downstream blocks-dependent attached to a ready task result.
type DependentInfo struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ReadyTask is one entry in ReadyTasksResult.
type ReadyTask struct {
	Task       Task             `json:"task"`
	Dependents []DependentInfo `json:"dependents"`
}

// ReadyTasksResult is the response of ReadyTasks (spec §4.4.5).
type ReadyTasksResult struct {
	Tasks      []ReadyTask `json:"tasks"`
	InProgress []ReadyTask `json:"in_progress"`
}

// ImportTaskSpec is one row of a bulk import request. Dependencies names
// other tasks in the same batch by title, resolved to IDs by Import before
// the cycle check runs (spec §4.3, §8 S6).
type ImportTaskSpec struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	WorkType       *string  `json:"work_type,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
}

// ImportRequest is the request body for bulk task import (spec §4.3, §8 S6).
type ImportRequest struct {
	Tasks []ImportTaskSpec `json:"tasks" validate:"required,min=1"`
}

// ImportResult is the response of Import. Per spec §8 S6, either all of
// TasksCreated/DependenciesCreated commit together or none of them do.
type ImportResult struct {
	TasksCreated        int               `json:"tasks_created"`
	DependenciesCreated int               `json:"dependencies_created"`
	TaskIDs             []string          `json:"task_ids"`
	TitleToID           map[string]string `json:"title_to_id"`
}

// DependencyEdgeProposal names a title-resolved edge passed to
// DependencyResolver.CycleCheck/CreateEdgesTx during bulk import. Declared
// here (not in domain/dependencies) for the same one-directional reason as
// ReadinessPropagator/DependencyResolver in service.go — dependencies already
// imports tasks for this interface, so tasks must not import it back.
type DependencyEdgeProposal struct {
	FromTaskID string
	ToTaskID   string
	Type       string
}
