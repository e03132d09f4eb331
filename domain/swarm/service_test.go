package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/djinnbot/core/domain/dependencies"
)

func TestInducedSubgraphKeepsOnlyEdgesWithBothEndpointsSelected(t *testing.T) {
	graph := &dependencies.GraphResult{
		Nodes: []dependencies.GraphNode{
			{TaskID: "a", Priority: "P1"},
			{TaskID: "b", Priority: "P2"},
			{TaskID: "c", Priority: "P2"},
		},
		Edges: []dependencies.Edge{
			{FromTaskID: "a", ToTaskID: "b", Type: dependencies.TypeBlocks},
			{FromTaskID: "b", ToTaskID: "c", Type: dependencies.TypeBlocks},
			{FromTaskID: "a", ToTaskID: "c", Type: dependencies.TypeInforms},
		},
	}
	selected := map[string]bool{"a": true, "b": true}

	dag := inducedSubgraph(graph, selected)

	assert.Len(t, dag.Nodes, 2)
	assert.Len(t, dag.Edges, 1)
	assert.Equal(t, "a", dag.Edges[0].FromTaskID)
	assert.Equal(t, "b", dag.Edges[0].ToTaskID)
}

func TestInducedSubgraphDropsUnselectedNodes(t *testing.T) {
	graph := &dependencies.GraphResult{
		Nodes: []dependencies.GraphNode{
			{TaskID: "a", Priority: "P1"},
			{TaskID: "b", Priority: "P2"},
		},
	}
	selected := map[string]bool{"a": true}

	dag := inducedSubgraph(graph, selected)

	assert.Len(t, dag.Nodes, 1)
	assert.Equal(t, "a", dag.Nodes[0].TaskID)
}
