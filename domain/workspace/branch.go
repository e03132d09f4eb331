package workspace

import (
	"regexp"
	"strings"
)

// TaskBranchName derives the stable, filesystem-safe git branch name for a
// task (spec §4.2): feat/{task_id}-{slug(title)[:40]}, degrading to
// feat/{task_id} when the title has no sluggable characters.
func TaskBranchName(taskID, title string) string {
	slug := slugify(title)
	if slug == "" {
		return "feat/" + taskID
	}
	return "feat/" + taskID + "-" + slug
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	return s
}

// Metadata keys this package reads/writes within task_metadata (spec §3, §4.2).
const (
	MetaGitBranch = "git_branch"
	MetaPRNumber  = "pr_number"
	MetaPRURL     = "pr_url"
)

// EnsureTaskBranch reads the branch persisted at metadata[MetaGitBranch],
// computing and writing a deterministic one if absent. Callers own
// persisting metadata back to storage when changed is true — this is a pure
// helper so domain/workspace never needs to import the tasks entity.
func EnsureTaskBranch(metadata map[string]any, taskID, title string) (branch string, out map[string]any, changed bool) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if existing, ok := metadata[MetaGitBranch].(string); ok && existing != "" {
		return existing, metadata, false
	}
	branch = TaskBranchName(taskID, title)
	metadata[MetaGitBranch] = branch
	return branch, metadata, true
}
