package swarm

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/djinnbot/core/domain/dependencies"
	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

// Service is the SwarmCoordinator (spec §4.8): it launches parallel
// execution across a set of tasks whose dependency graph determines
// ordering.
type Service struct {
	tasksRepo *tasks.Repository
	depsSvc   *dependencies.Service
	projects  *projects.Repository
	bus       *eventbus.Bus
	log       *slog.Logger
}

// NewService creates a new swarm service.
func NewService(tasksRepo *tasks.Repository, depsSvc *dependencies.Service, projectRepo *projects.Repository, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		tasksRepo: tasksRepo,
		depsSvc:   depsSvc,
		projects:  projectRepo,
		bus:       bus,
		log:       log.With(logger.Scope("swarm.service")),
	}
}

// BoardSwarm builds and dispatches an execution DAG over the selected tasks
// (spec §4.8 BoardSwarm, steps 1-5).
func (s *Service) BoardSwarm(ctx context.Context, projectID string, req BoardSwarmRequest) (*BoardSwarmResult, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		selected[id] = true
	}

	var notClaimable []string
	taskByID := make(map[string]*tasks.Task, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		t, err := s.tasksRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			notClaimable = append(notClaimable, id)
			continue
		}
		taskByID[id] = t
		if !project.StatusSemantics.HasRole(projects.SemanticClaimable, t.Status) {
			notClaimable = append(notClaimable, id)
		}
	}
	if len(notClaimable) > 0 {
		return nil, &NotAllClaimableError{TaskIDs: notClaimable}
	}

	graph, err := s.depsSvc.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}

	dag := inducedSubgraph(graph, selected)

	swarmID := uuid.New().String()
	s.bus.Publish(ctx, eventbus.StreamGlobal, "SWARM_DISPATCHED", map[string]any{
		"swarm_id":   swarmID,
		"project_id": projectID,
		"dag":        dag,
	})
	s.log.Info("swarm dispatched", slog.String("swarm_id", swarmID), slog.Int("task_count", len(req.TaskIDs)))

	return &BoardSwarmResult{SwarmID: swarmID, DAG: dag}, nil
}

// Execute publishes a pre-built DAG directly, for agent-initiated swarms
// (spec §4.8 "Agent-initiated swarms (internal /swarm-execute)").
func (s *Service) Execute(ctx context.Context, projectID string, req ExecuteRequest) (string, error) {
	swarmID := uuid.New().String()
	s.bus.Publish(ctx, eventbus.StreamGlobal, "SWARM_DISPATCHED", map[string]any{
		"swarm_id":   swarmID,
		"project_id": projectID,
		"dag":        req.DAG,
	})
	s.log.Info("agent-initiated swarm dispatched", slog.String("swarm_id", swarmID))
	return swarmID, nil
}

// inducedSubgraph restricts a project-wide dependency graph to the nodes in
// selected and the blocks edges with both endpoints in selected
// (spec §4.8 step 1 "induced subgraph").
func inducedSubgraph(graph *dependencies.GraphResult, selected map[string]bool) DAG {
	var nodes []Node
	for _, n := range graph.Nodes {
		if selected[n.TaskID] {
			nodes = append(nodes, Node{TaskID: n.TaskID, Priority: n.Priority})
		}
	}

	var edges []dependencies.Edge
	for _, e := range graph.Edges {
		if e.Type == dependencies.TypeBlocks && selected[e.FromTaskID] && selected[e.ToTaskID] {
			edges = append(edges, e)
		}
	}

	return DAG{Nodes: nodes, Edges: edges}
}
