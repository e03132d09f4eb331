package projects

import (
	"time"

	"github.com/uptrace/bun"
)

// Lifecycle states for Project.Status (spec §3).
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// Workspace types for Project.WorkspaceType (spec §3, §4.2).
const (
	WorkspaceEphemeralRunDir     = "ephemeral_run_dir"
	WorkspacePersistentDirectory = "persistent_directory"
)

// Semantic status roles every project's StatusSemantics must define (spec §3 invariant, §9).
const (
	SemanticInitial      = "initial"
	SemanticClaimable    = "claimable"
	SemanticTerminalDone = "terminal_done"
	SemanticTerminalFail = "terminal_fail"
	SemanticBlocked      = "blocked"
)

var requiredSemanticRoles = []string{
	SemanticInitial,
	SemanticClaimable,
	SemanticTerminalDone,
	SemanticTerminalFail,
	SemanticBlocked,
}

// StatusSemantics maps a semantic role to the set of raw statuses that play
// it. A status may appear under more than one role (e.g. a status can be
// both "claimable" and a work-in-progress status is never terminal).
type StatusSemantics map[string][]string

// HasRole reports whether status plays role.
func (s StatusSemantics) HasRole(role, status string) bool {
	for _, st := range s[role] {
		if st == status {
			return true
		}
	}
	return false
}

// Project is the identity for a body of work (spec §3).
type Project struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID                string          `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Name              string          `bun:"name,notnull" json:"name"`
	Description       string          `bun:"description,notnull,default:''" json:"description"`
	Status            string          `bun:"status,notnull,default:'active'" json:"status"`
	RepositoryURL     *string         `bun:"repository_url" json:"repository_url,omitempty"`
	DefaultPipelineID *string         `bun:"default_pipeline_id" json:"default_pipeline_id,omitempty"`
	StatusSemantics   StatusSemantics `bun:"status_semantics,type:jsonb,notnull" json:"status_semantics"`
	WorkspaceType     string          `bun:"workspace_type,notnull,default:'persistent_directory'" json:"workspace_type"`
	CreatedAt         time.Time       `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt         time.Time       `bun:"updated_at,notnull,default:now()" json:"updated_at"`
	CompletedAt       *time.Time      `bun:"completed_at" json:"completed_at,omitempty"`
}

// ValidateSemantics checks the §3 invariant that status_semantics defines
// every required role with at least one status.
func (p *Project) ValidateSemantics() []string {
	var missing []string
	for _, role := range requiredSemanticRoles {
		if len(p.StatusSemantics[role]) == 0 {
			missing = append(missing, role)
		}
	}
	return missing
}

// DefaultStatusSemantics is the fallback semantics map applied when a
// create request omits status_semantics entirely.
func DefaultStatusSemantics() StatusSemantics {
	return StatusSemantics{
		SemanticInitial:      {"backlog"},
		SemanticClaimable:    {"ready"},
		SemanticTerminalDone: {"done"},
		SemanticTerminalFail: {"failed"},
		SemanticBlocked:      {"blocked"},
	}
}

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Name              string          `json:"name" validate:"required,min=1"`
	Description       string          `json:"description"`
	RepositoryURL     *string         `json:"repository_url,omitempty"`
	DefaultPipelineID *string         `json:"default_pipeline_id,omitempty"`
	StatusSemantics   StatusSemantics `json:"status_semantics,omitempty"`
	WorkspaceType     string          `json:"workspace_type,omitempty"`
}

// UpdateProjectRequest is the request body for updating a project.
type UpdateProjectRequest struct {
	Name              *string         `json:"name,omitempty" validate:"omitempty,min=1"`
	Description       *string         `json:"description,omitempty"`
	Status            *string         `json:"status,omitempty"`
	RepositoryURL     *string         `json:"repository_url,omitempty"`
	DefaultPipelineID *string         `json:"default_pipeline_id,omitempty"`
	StatusSemantics   StatusSemantics `json:"status_semantics,omitempty"`
}
