package dependencies

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWouldCycle(t *testing.T) {
	edges := []Edge{{FromTaskID: "a", ToTaskID: "b"}}

	t.Run("adding b->a closes a cycle", func(t *testing.T) {
		path, cyclic := wouldCycle(edges, "b", "a")
		assert.True(t, cyclic)
		assert.Equal(t, []string{"a", "b"}, path)
	})

	t.Run("adding b->c does not cycle", func(t *testing.T) {
		_, cyclic := wouldCycle(edges, "b", "c")
		assert.False(t, cyclic)
	})
}

func TestTopologicalOrderTiesBrokenByPriorityThenID(t *testing.T) {
	tasks := []graphTask{
		{ID: "c", Priority: "P2"},
		{ID: "b", Priority: "P0"},
		{ID: "a", Priority: "P1"},
	}
	order := topologicalOrder(tasks, nil)
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestLongestPathDPAndCriticalPath(t *testing.T) {
	h2 := 2.0
	h3 := 3.0
	tasks := []graphTask{
		{ID: "a", EstimatedHours: &h2},
		{ID: "b", EstimatedHours: &h3},
		{ID: "c"},
	}
	byID := map[string]graphTask{}
	for _, tk := range tasks {
		byID[tk.ID] = tk
	}
	edges := []Edge{{FromTaskID: "a", ToTaskID: "b"}, {FromTaskID: "b", ToTaskID: "c"}}
	order := topologicalOrder(tasks, edges)

	distance, predecessor := longestPathDP(order, edges, byID)
	assert.Equal(t, 2.0, distance["a"])
	assert.Equal(t, 5.0, distance["b"])
	assert.Equal(t, 6.0, distance["c"]) // b's distance (5) + c's weight (1, no estimate)

	path := tracePath(distance, predecessor)
	assert.Equal(t, []string{"a", "b", "c"}, path)
}

func TestTaskWeightDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1.0, taskWeight(graphTask{}))
	h := 4.5
	assert.Equal(t, 4.5, taskWeight(graphTask{EstimatedHours: &h}))
}

func TestFilterBlocks(t *testing.T) {
	edges := []Edge{
		{FromTaskID: "a", ToTaskID: "b", Type: TypeBlocks},
		{FromTaskID: "a", ToTaskID: "c", Type: TypeInforms},
	}
	blocks := filterBlocks(edges)
	assert.Len(t, blocks, 1)
	assert.Equal(t, "b", blocks[0].ToTaskID)
}

func TestGraphTaskCarriesCompletedAt(t *testing.T) {
	now := time.Now()
	completed := now.Add(time.Hour)
	tasks := []graphTask{{ID: "done-task", CreatedAt: now, CompletedAt: &completed}}
	assert.NotNil(t, tasks[0].CompletedAt)
}
