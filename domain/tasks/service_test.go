package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/djinnbot/core/domain/projects"
)

func TestInferWorkType(t *testing.T) {
	tests := []struct {
		name  string
		title string
		tags  []string
		want  string
	}{
		{"tag takes priority", "Something", []string{"bugfix"}, WorkTypeBugfix},
		{"bugfix title pattern", "Fix: crash on startup", nil, WorkTypeBugfix},
		{"test title pattern", "Add test coverage for parser", nil, WorkTypeTest},
		{"refactor title pattern", "Refactor the auth middleware", nil, WorkTypeRefactor},
		{"docs title pattern", "Update docs for API", nil, WorkTypeDocs},
		{"infra title pattern", "Add CI/CD pipeline", nil, WorkTypeInfrastructure},
		{"design title pattern", "Design new onboarding wireframe", nil, WorkTypeDesign},
		{"feature title pattern", "Implement new billing flow", nil, WorkTypeFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inferWorkType(tt.title, tt.tags, "")
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.want, *got)
			}
		})
	}

	t.Run("no confident match returns nil", func(t *testing.T) {
		assert.Nil(t, inferWorkType("xyzzy plugh", nil, ""))
	})
}

func TestResolveInitialPlacement(t *testing.T) {
	project := &projects.Project{StatusSemantics: projects.DefaultStatusSemantics()}
	cols := []KanbanColumn{
		{ID: "col-backlog", Position: 0, TaskStatuses: []string{"backlog"}},
		{ID: "col-ready", Position: 1, TaskStatuses: []string{"ready"}},
	}

	t.Run("no dependencies goes to ready column", func(t *testing.T) {
		col, status := resolveInitialPlacement(project, cols, false)
		assert.Equal(t, "col-ready", col.ID)
		assert.Equal(t, "ready", status)
	})

	t.Run("has dependencies falls back to initial semantic", func(t *testing.T) {
		col, status := resolveInitialPlacement(project, cols, true)
		assert.Equal(t, "col-backlog", col.ID)
		assert.Equal(t, "backlog", status)
	})

	t.Run("falls back to lowest position column when no semantic matches", func(t *testing.T) {
		noMatch := &projects.Project{StatusSemantics: projects.StatusSemantics{}}
		onlyOne := []KanbanColumn{{ID: "col-x", Position: 5, TaskStatuses: []string{"custom"}}}
		col, status := resolveInitialPlacement(noMatch, onlyOne, true)
		assert.Equal(t, "col-x", col.ID)
		assert.Equal(t, "custom", status)
	})
}

func TestUnionColumnStatuses(t *testing.T) {
	cols := []KanbanColumn{
		{TaskStatuses: []string{"backlog", "planning"}},
		{TaskStatuses: []string{"planning", "ready"}},
	}
	assert.ElementsMatch(t, []string{"backlog", "planning", "ready"}, unionColumnStatuses(cols))
}

func TestEnsureGitBranch(t *testing.T) {
	task := &Task{ID: "abcdef1234567890", Title: "Fix: crash on startup!", TaskMetadata: TaskMetadata{}}
	branch := ensureGitBranch(task)
	assert.Equal(t, "feat/abcdef1234567890-fix-crash-on-startup", branch)
	assert.Equal(t, branch, task.TaskMetadata[MetaGitBranch])

	// Second call reuses the persisted branch rather than recomputing it.
	task.Title = "a completely different title"
	assert.Equal(t, branch, ensureGitBranch(task))
}

func TestAppendUnique(t *testing.T) {
	list := appendUnique([]string{"planned"}, "planned")
	assert.Equal(t, []string{"planned"}, list)

	list = appendUnique(list, "test")
	assert.Equal(t, []string{"planned", "test"}, list)
}
