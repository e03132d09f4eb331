package dependencies

import (
	"time"

	"github.com/uptrace/bun"
)

// Edge types (spec §3).
const (
	TypeBlocks  = "blocks"
	TypeInforms = "informs"
)

// Edge is a directed dependency between two tasks in the same project
// (spec §3, §4.3).
type Edge struct {
	bun.BaseModel `bun:"table:dependency_edges,alias:de"`

	ID         string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID  string    `bun:"project_id,notnull,type:uuid" json:"project_id"`
	FromTaskID string    `bun:"from_task_id,notnull,type:uuid" json:"from_task_id"`
	ToTaskID   string    `bun:"to_task_id,notnull,type:uuid" json:"to_task_id"`
	Type       string    `bun:"type,notnull" json:"type"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// graphTask is the minimal task projection Graph/Timeline operate on.
type graphTask struct {
	ID             string
	Priority       string
	EstimatedHours *float64
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// AddEdgeRequest is the request body for AddEdge.
type AddEdgeRequest struct {
	FromTaskID string `json:"from_task_id" validate:"required"`
	ToTaskID   string `json:"to_task_id" validate:"required"`
	Type       string `json:"type" validate:"required"`
}

// CycleError reports a rejected edge with the cycle path that would result
// (spec §4.3 AddEdge, §8 S4).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	s := "cycle detected: "
	for i, id := range e.Path {
		if i > 0 {
			s += " -> "
		}
		s += id
	}
	return s
}

// GraphNode is one task node in a Graph result.
type GraphNode struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
}

// GraphResult is the response of Graph (spec §4.3).
type GraphResult struct {
	Nodes            []GraphNode `json:"nodes"`
	Edges            []Edge      `json:"edges"`
	CriticalPath     []string    `json:"critical_path"`
	TopologicalOrder []string    `json:"topological_order"`
}

// GanttTask is one scheduled task in a Timeline result.
type GanttTask struct {
	TaskID    string `json:"task_id"`
	StartMs   int64  `json:"start_ms"`
	EndMs     int64  `json:"end_ms"`
	DurationMs int64 `json:"duration_ms"`
	Actual    bool   `json:"actual"`
}

// GanttResult is the response of Timeline (spec §4.3).
type GanttResult struct {
	Tasks        []GanttTask `json:"tasks"`
	CriticalPath []string    `json:"critical_path"`
}
