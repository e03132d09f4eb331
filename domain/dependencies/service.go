package dependencies

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Service implements the DependencyGraph component (spec §4.3).
type Service struct {
	repo *Repository
	log  *slog.Logger
}

// NewService creates a new dependencies service.
func NewService(repo *Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log.With(logger.Scope("dependencies.svc"))}
}

// AddEdge adds a dependency edge after verifying both endpoints exist, the
// edge isn't a self-loop or duplicate, and the resulting graph stays acyclic
// (spec §4.3 AddEdge).
func (s *Service) AddEdge(ctx context.Context, projectID string, req AddEdgeRequest) (*Edge, error) {
	if req.FromTaskID == req.ToTaskID {
		return nil, apperror.New(400, "self-dependency", "a task cannot depend on itself")
	}
	if req.Type != TypeBlocks && req.Type != TypeInforms {
		return nil, apperror.New(400, "invalid-type", "type must be blocks or informs")
	}

	fromExists, err := s.repo.TaskExists(ctx, projectID, req.FromTaskID)
	if err != nil {
		return nil, err
	}
	toExists, err := s.repo.TaskExists(ctx, projectID, req.ToTaskID)
	if err != nil {
		return nil, err
	}
	if !fromExists || !toExists {
		return nil, apperror.New(400, "unknown-task", "both from_task_id and to_task_id must belong to the project")
	}

	dup, err := s.repo.DuplicateEdge(ctx, req.FromTaskID, req.ToTaskID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperror.New(400, "duplicate-edge", "this dependency already exists")
	}

	existing, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if path, cyclic := wouldCycle(existing, req.FromTaskID, req.ToTaskID); cyclic {
		return nil, apperror.New(400, "cycle-detected", fmt.Sprintf("adding this edge would create a cycle: %v", path)).WithDetails(map[string]any{"path": path})
	}

	edge := &Edge{ProjectID: projectID, FromTaskID: req.FromTaskID, ToTaskID: req.ToTaskID, Type: req.Type}
	if err := s.repo.CreateEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// BlockersFor implements tasks.DependencyResolver: it returns, for every
// to_task_id with an inbound blocks edge, the list of from_task_id that must
// reach terminal_done first (spec §4.4.5, §4.3 Edge type="blocks").
func (s *Service) BlockersFor(ctx context.Context, projectID string) (map[string][]string, error) {
	edges, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}

	blockers := map[string][]string{}
	for _, e := range edges {
		if e.Type != TypeBlocks {
			continue
		}
		blockers[e.ToTaskID] = append(blockers[e.ToTaskID], e.FromTaskID)
	}
	return blockers, nil
}

// RemoveEdge removes an edge; idempotent (spec §4.3 RemoveEdge).
func (s *Service) RemoveEdge(ctx context.Context, id string) error {
	return s.repo.RemoveEdge(ctx, id)
}

// CycleCheck is the batch variant of cycle detection used during bulk task
// import (spec §4.3 CycleCheck, §8 S6) — it never writes anything. proposed
// is title-resolved by the caller (tasks.Service.Import or the standalone
// /dependencies/check handler) before this runs; checking incrementally
// against working also catches cycles against edges already in the DB,
// which is a stronger guarantee than checking the new edges in isolation.
func (s *Service) CycleCheck(ctx context.Context, projectID string, proposed []tasks.DependencyEdgeProposal) error {
	existing, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return err
	}

	working := make([]Edge, len(existing))
	copy(working, existing)

	for _, p := range proposed {
		if p.FromTaskID == p.ToTaskID {
			return apperror.New(400, "self-dependency", fmt.Sprintf("task %q cannot depend on itself", p.FromTaskID))
		}
		if path, cyclic := wouldCycle(working, p.FromTaskID, p.ToTaskID); cyclic {
			return apperror.New(400, "cycle-detected", fmt.Sprintf("proposed edges contain a cycle: %v", path)).WithDetails(map[string]any{"path": path})
		}
		working = append(working, Edge{FromTaskID: p.FromTaskID, ToTaskID: p.ToTaskID, Type: p.Type})
	}
	return nil
}

// CreateEdgesTx bulk-inserts title-resolved edges within the same
// transaction as tasks.Service.Import's task insert, so the batch commits or
// rolls back as one unit (spec §8 S6).
func (s *Service) CreateEdgesTx(ctx context.Context, tx bun.Tx, projectID string, proposed []tasks.DependencyEdgeProposal) error {
	edges := make([]Edge, len(proposed))
	for i, p := range proposed {
		edges[i] = Edge{ProjectID: projectID, FromTaskID: p.FromTaskID, ToTaskID: p.ToTaskID, Type: p.Type}
	}
	return s.repo.CreateEdgesTx(ctx, tx, edges)
}

// wouldCycle reports whether adding from->to to edges would create a cycle,
// per spec §4.3: "DFS from `to`; if `from` is reachable, return the cycle
// path". Returns the reachable path from `to` back to `from` for the error.
func wouldCycle(edges []Edge, from, to string) ([]string, bool) {
	adjacency := map[string][]string{}
	for _, e := range edges {
		adjacency[e.FromTaskID] = append(adjacency[e.FromTaskID], e.ToTaskID)
	}

	visited := map[string]bool{}
	var path []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == from {
			path = append(path, node)
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		path = append(path, node)
		for _, next := range adjacency[node] {
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(to) {
		return path, true
	}
	return nil, false
}

// Graph builds the full dependency graph for a project: nodes, edges,
// topological order (Kahn's algorithm, ties broken by priority then id),
// and the critical path (longest-path DP over estimated_hours) (spec §4.3).
func (s *Service) Graph(ctx context.Context, projectID string) (*GraphResult, error) {
	tasks, err := s.repo.ListGraphTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byID := map[string]graphTask{}
	for _, t := range tasks {
		byID[t.ID] = t
	}

	blocks := filterBlocks(edges)
	order := topologicalOrder(tasks, blocks)

	distance, predecessor := longestPathDP(order, blocks, byID)
	criticalPath := tracePath(distance, predecessor)

	nodes := make([]GraphNode, 0, len(tasks))
	for _, t := range tasks {
		nodes = append(nodes, GraphNode{TaskID: t.ID, Priority: t.Priority})
	}

	return &GraphResult{
		Nodes:            nodes,
		Edges:            edges,
		CriticalPath:     criticalPath,
		TopologicalOrder: order,
	}, nil
}

func filterBlocks(edges []Edge) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Type == TypeBlocks {
			out = append(out, e)
		}
	}
	return out
}

// priorityRank lower is more urgent (P0 highest urgency).
func priorityRank(p string) int {
	switch p {
	case "P0":
		return 0
	case "P1":
		return 1
	case "P2":
		return 2
	case "P3":
		return 3
	default:
		return 4
	}
}

// topologicalOrder runs Kahn's algorithm, breaking ties by priority then id
// (spec §4.3 Graph).
func topologicalOrder(tasks []graphTask, edges []Edge) []string {
	inDegree := map[string]int{}
	adjacency := map[string][]string{}
	for _, t := range tasks {
		inDegree[t.ID] = 0
	}
	for _, e := range edges {
		adjacency[e.FromTaskID] = append(adjacency[e.FromTaskID], e.ToTaskID)
		inDegree[e.ToTaskID]++
	}

	byID := map[string]graphTask{}
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByPriorityThenID(ready, byID)

	var order []string
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		var unlocked []string
		for _, next := range adjacency[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		sortByPriorityThenID(unlocked, byID)
		ready = mergeSorted(ready, unlocked, byID)
	}
	return order
}

func sortByPriorityThenID(ids []string, byID map[string]graphTask) {
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := priorityRank(byID[ids[i]].Priority), priorityRank(byID[ids[j]].Priority)
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
}

func mergeSorted(a, b []string, byID map[string]graphTask) []string {
	merged := append(append([]string{}, a...), b...)
	sortByPriorityThenID(merged, byID)
	return merged
}

// longestPathDP computes, for each task in topological order, the longest
// path ending at that task (weight = estimated_hours or 1), and records the
// predecessor achieving that distance (spec §4.3 Graph critical_path).
func longestPathDP(order []string, edges []Edge, byID map[string]graphTask) (map[string]float64, map[string]string) {
	predecessorsOf := map[string][]string{}
	for _, e := range edges {
		predecessorsOf[e.ToTaskID] = append(predecessorsOf[e.ToTaskID], e.FromTaskID)
	}

	distance := map[string]float64{}
	predecessor := map[string]string{}

	for _, id := range order {
		weight := taskWeight(byID[id])
		best := weight
		var bestPred string
		for _, pred := range predecessorsOf[id] {
			candidate := distance[pred] + weight
			if candidate > best {
				best = candidate
				bestPred = pred
			}
		}
		distance[id] = best
		if bestPred != "" {
			predecessor[id] = bestPred
		}
	}
	return distance, predecessor
}

func taskWeight(t graphTask) float64 {
	if t.EstimatedHours != nil && *t.EstimatedHours > 0 {
		return *t.EstimatedHours
	}
	return 1
}

// tracePath walks predecessor back from the max-distance node to form the
// critical path (spec §4.3 Graph).
func tracePath(distance map[string]float64, predecessor map[string]string) []string {
	if len(distance) == 0 {
		return nil
	}

	var maxNode string
	maxDist := -1.0
	ids := make([]string, 0, len(distance))
	for id := range distance {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if distance[id] > maxDist {
			maxDist = distance[id]
			maxNode = id
		}
	}

	var path []string
	for node := maxNode; node != ""; {
		path = append([]string{node}, path...)
		next, ok := predecessor[node]
		if !ok {
			break
		}
		node = next
	}
	return path
}

// Timeline runs forward Gantt scheduling: in topological order, each task
// starts at the max end time of its blocks-predecessors, with duration
// estimated_hours/hours_per_day converted to milliseconds. Completed tasks
// use their actual created_at/completed_at (spec §4.3 Timeline).
func (s *Service) Timeline(ctx context.Context, projectID string, hoursPerDay float64) (*GanttResult, error) {
	if hoursPerDay <= 0 {
		hoursPerDay = 8
	}

	tasks, err := s.repo.ListGraphTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.ListEdges(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byID := map[string]graphTask{}
	for _, t := range tasks {
		byID[t.ID] = t
	}
	blocks := filterBlocks(edges)
	order := topologicalOrder(tasks, blocks)

	predecessorsOf := map[string][]string{}
	for _, e := range blocks {
		predecessorsOf[e.ToTaskID] = append(predecessorsOf[e.ToTaskID], e.FromTaskID)
	}

	const dayMs = int64(24 * 60 * 60 * 1000)

	endMs := map[string]int64{}
	var result []GanttTask

	for _, id := range order {
		t := byID[id]

		if t.CompletedAt != nil {
			start := t.CreatedAt.UnixMilli()
			end := t.CompletedAt.UnixMilli()
			endMs[id] = end
			result = append(result, GanttTask{TaskID: id, StartMs: start, EndMs: end, DurationMs: end - start, Actual: true})
			continue
		}

		var start int64
		for _, pred := range predecessorsOf[id] {
			if endMs[pred] > start {
				start = endMs[pred]
			}
		}

		durationDays := taskWeight(t) / hoursPerDay
		duration := int64(durationDays * float64(dayMs))
		end := start + duration
		endMs[id] = end

		result = append(result, GanttTask{TaskID: id, StartMs: start, EndMs: end, DurationMs: duration, Actual: false})
	}

	distance, predecessor := longestPathDP(order, blocks, byID)
	_ = distance
	criticalPath := tracePath(weightedByEnd(order, endMs), predecessor)

	return &GanttResult{Tasks: result, CriticalPath: criticalPath}, nil
}

// weightedByEnd re-expresses endMs as a distance map so tracePath can reuse
// its "latest end, traced backwards" logic for the Timeline critical path.
func weightedByEnd(order []string, endMs map[string]int64) map[string]float64 {
	out := map[string]float64{}
	for _, id := range order {
		out[id] = float64(endMs[id])
	}
	return out
}
