package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskBranchName(t *testing.T) {
	branch := TaskBranchName("task-abc123", "Fix: crash on startup!")
	assert.Equal(t, "feat/task-abc123-fix-crash-on-startup", branch)
}

func TestTaskBranchName_EmptySlug(t *testing.T) {
	branch := TaskBranchName("task-abc123", "!!!")
	assert.Equal(t, "feat/task-abc123", branch)
}

func TestTaskBranchName_TruncatesLongTitles(t *testing.T) {
	branch := TaskBranchName("t1", "this title is extremely long and should be truncated at forty characters exactly")
	assert.Equal(t, "feat/t1-this-title-is-extremely-long-and-should", branch)
}

func TestEnsureTaskBranch_ComputesWhenAbsent(t *testing.T) {
	branch, meta, changed := EnsureTaskBranch(nil, "t1", "Add login page")
	assert.Equal(t, "feat/t1-add-login-page", branch)
	assert.True(t, changed)
	assert.Equal(t, branch, meta[MetaGitBranch])
}

func TestEnsureTaskBranch_ReusesExisting(t *testing.T) {
	meta := map[string]any{MetaGitBranch: "feat/t1-custom"}
	branch, _, changed := EnsureTaskBranch(meta, "t1", "a different title")
	assert.Equal(t, "feat/t1-custom", branch)
	assert.False(t, changed)
}
