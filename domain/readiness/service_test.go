package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/djinnbot/core/domain/projects"
)

func TestDeriveParentStatusAllDone(t *testing.T) {
	status, changed := deriveParentStatus(projects.DefaultStatusSemantics(), []string{"done", "done"})
	assert.True(t, changed)
	assert.Equal(t, "done", status)
}

func TestDeriveParentStatusAnyActiveWinsOverFailed(t *testing.T) {
	status, changed := deriveParentStatus(projects.DefaultStatusSemantics(), []string{"in_progress", "failed"})
	assert.True(t, changed)
	assert.Equal(t, "in_progress", status)
}

func TestDeriveParentStatusAnyFailedNoActive(t *testing.T) {
	status, changed := deriveParentStatus(projects.DefaultStatusSemantics(), []string{"failed", "done"})
	assert.True(t, changed)
	assert.Equal(t, "failed", status)
}

func TestDeriveParentStatusNoRuleApplies(t *testing.T) {
	_, changed := deriveParentStatus(projects.DefaultStatusSemantics(), []string{"backlog", "ready"})
	assert.False(t, changed)
}

func TestDeriveParentStatusEmptyChildren(t *testing.T) {
	_, changed := deriveParentStatus(projects.DefaultStatusSemantics(), nil)
	assert.False(t, changed)
}

func TestFirstOr(t *testing.T) {
	assert.Equal(t, "ready", firstOr([]string{"ready", "other"}, "fallback"))
	assert.Equal(t, "fallback", firstOr(nil, "fallback"))
}
