package runs

import (
	"time"

	"github.com/uptrace/bun"
)

// Run lifecycle values (spec §4.6, migration `runs_status_check`).
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusPaused    = "paused"
	RunStatusCancelled = "cancelled"
)

// Step lifecycle values (spec §4.6, migration `steps_status_check`).
const (
	StepStatusPending   = "pending"
	StepStatusQueued    = "queued"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// KeyResolution maps a step's required capability names to the resolved
// provider/model values the pipeline engine should use for it.
type KeyResolution map[string]any

// Run is one execution of a pipeline against an optional project (spec §4.6, §3).
type Run struct {
	bun.BaseModel `bun:"table:runs,alias:run"`

	ID                string        `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	PipelineID        string        `bun:"pipeline_id,notnull" json:"pipeline_id"`
	ProjectID         *string       `bun:"project_id,type:uuid" json:"project_id,omitempty"`
	TaskDescription   string        `bun:"task_description,notnull,default:''" json:"task_description"`
	Status            string        `bun:"status,notnull,default:'pending'" json:"status"`
	CurrentStepID     *string       `bun:"current_step_id" json:"current_step_id,omitempty"`
	Outputs           KeyResolution `bun:"outputs,type:jsonb,notnull,default:'{}'" json:"outputs"`
	HumanContext      *string       `bun:"human_context" json:"human_context,omitempty"`
	InitiatedByUserID *string       `bun:"initiated_by_user_id" json:"initiated_by_user_id,omitempty"`
	ModelOverride     *string       `bun:"model_override" json:"model_override,omitempty"`
	TaskBranch        *string       `bun:"task_branch" json:"task_branch,omitempty"`
	WorkspaceType     string        `bun:"workspace_type,notnull,default:'ephemeral_run_dir'" json:"workspace_type"`
	KeyResolution     KeyResolution `bun:"key_resolution,type:jsonb,notnull,default:'{}'" json:"key_resolution"`
	CreatedAt         time.Time     `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt         time.Time     `bun:"updated_at,notnull,default:now()" json:"updated_at"`
	CompletedAt       *time.Time    `bun:"completed_at" json:"completed_at,omitempty"`
}

// Step is one unit of work inside a Run's pipeline (spec §4.6, §3).
type Step struct {
	bun.BaseModel `bun:"table:steps,alias:st"`

	ID            string         `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	RunID         string         `bun:"run_id,notnull,type:uuid" json:"run_id"`
	StepID        string         `bun:"step_id,notnull" json:"step_id"`
	AgentID       string         `bun:"agent_id,notnull" json:"agent_id"`
	Status        string         `bun:"status,notnull,default:'pending'" json:"status"`
	SessionID     *string        `bun:"session_id" json:"session_id,omitempty"`
	Inputs        map[string]any `bun:"inputs,type:jsonb,notnull,default:'{}'" json:"inputs"`
	Outputs       map[string]any `bun:"outputs,type:jsonb,notnull,default:'{}'" json:"outputs"`
	Error         *string        `bun:"error" json:"error,omitempty"`
	RetryCount    int            `bun:"retry_count,notnull,default:0" json:"retry_count"`
	MaxRetries    int            `bun:"max_retries,notnull,default:0" json:"max_retries"`
	HumanContext  *string        `bun:"human_context" json:"human_context,omitempty"`
	ModelUsed     *string        `bun:"model_used" json:"model_used,omitempty"`
	StartedAt     *time.Time     `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// TaskRun links a tasks.Task to the Run executing it (spec §4.6, §3).
type TaskRun struct {
	bun.BaseModel `bun:"table:task_runs,alias:tr"`

	ID          string     `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	TaskID      string     `bun:"task_id,notnull,type:uuid" json:"task_id"`
	RunID       string     `bun:"run_id,notnull,type:uuid" json:"run_id"`
	PipelineID  string     `bun:"pipeline_id,notnull" json:"pipeline_id"`
	Status      string     `bun:"status,notnull" json:"status"`
	StartedAt   time.Time  `bun:"started_at,notnull,default:now()" json:"started_at"`
	CompletedAt *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
}

// LoopState tracks per-step item-by-item progress for map-style pipeline
// steps (spec §4.6 "LoopState").
type LoopState struct {
	bun.BaseModel `bun:"table:loop_states"`

	RunID        string `bun:"run_id,pk,type:uuid" json:"run_id"`
	StepID       string `bun:"step_id,pk" json:"step_id"`
	Items        []any  `bun:"items,type:jsonb,notnull,default:'[]'" json:"items"`
	CurrentIndex int    `bun:"current_index,notnull,default:0" json:"current_index"`
}

// Advance scans Items from CurrentIndex for the next item whose "status"
// field is "pending", returning its index and value. ok is false once no
// pending item remains (spec §4.6).
func (l *LoopState) Advance() (index int, item any, ok bool) {
	for i := l.CurrentIndex; i < len(l.Items); i++ {
		m, isMap := l.Items[i].(map[string]any)
		if !isMap {
			continue
		}
		if status, _ := m["status"].(string); status == "pending" {
			l.CurrentIndex = i
			return i, l.Items[i], true
		}
	}
	return 0, nil, false
}

// Output is one key/value pair a step writes for later steps to read
// (spec §4.6 "Outputs table").
type Output struct {
	bun.BaseModel `bun:"table:outputs"`

	RunID  string `bun:"run_id,pk,type:uuid" json:"run_id"`
	StepID string `bun:"step_id" json:"step_id,omitempty"`
	Key    string `bun:"key,pk" json:"key"`
	Value  any    `bun:"value,type:jsonb,notnull,default:'null'" json:"value"`
}

// StartRunRequest is the request body for StartRun (spec §4.6).
type StartRunRequest struct {
	PipelineID        string  `json:"pipeline_id" validate:"required"`
	ProjectID         *string `json:"project_id,omitempty"`
	TaskDescription   string  `json:"task_description,omitempty"`
	InitiatedByUserID *string `json:"initiated_by_user_id,omitempty"`
	ModelOverride     *string `json:"model_override,omitempty"`
	WorkspaceType     string  `json:"workspace_type,omitempty"`
}

// RunCompletedRequest is the webhook body posted to
// /projects/{pid}/tasks/{tid}/run-completed (spec §4.6 "Completion path").
type RunCompletedRequest struct {
	RunID  string `json:"run_id" validate:"required"`
	Status string `json:"status" validate:"required"` // "completed" or "failed"
}

// CreateStepRequest upserts a step by (run_id, step_id) (spec §4.6 "CreateStep").
type CreateStepRequest struct {
	StepID       string         `json:"step_id" validate:"required"`
	AgentID      string         `json:"agent_id" validate:"required"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	MaxRetries   int            `json:"max_retries,omitempty"`
	HumanContext *string        `json:"human_context,omitempty"`
}

// UpdateStepRequest patches any subset of a step's mutable fields (spec §4.6 "UpdateStep").
type UpdateStepRequest struct {
	Status      *string        `json:"status,omitempty"`
	SessionID   *string        `json:"session_id,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       *string        `json:"error,omitempty"`
	ModelUsed   *string        `json:"model_used,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
