package workspace

import (
	"context"

	"github.com/djinnbot/core/pkg/apperror"
)

// CreateTaskWorkspace ensures the task has a branch, then requests and
// awaits an agent worktree for it (spec §4.2 RequestWorktree).
func (s *Service) CreateTaskWorkspace(ctx context.Context, agentID, projectID, taskID string) (*WorktreeResult, error) {
	branch, err := s.EnsureTaskBranch(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.RequestWorktree(ctx, agentID, projectID, taskID, branch)
}

// RemoveTaskWorkspace fires RequestWorktreeRemoval for a task (fire-and-forget).
func (s *Service) RemoveTaskWorkspace(ctx context.Context, agentID, projectID, taskID string) {
	s.RequestWorktreeRemoval(ctx, agentID, projectID, taskID)
}

// OpenTaskPullRequest opens a PR for the task's persisted branch and records
// pr_number/pr_url back into task_metadata (spec §4.2 OpenPullRequest).
func (s *Service) OpenTaskPullRequest(ctx context.Context, projectID, taskID, agentID, baseBranch, title, body string, draft bool) (*PullRequestResult, error) {
	branch, err := s.EnsureTaskBranch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	result, err := s.OpenPullRequest(ctx, projectID, taskID, agentID, branch, baseBranch, title, body, draft)
	if err != nil {
		return nil, err
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err == nil {
		meta := task.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta[MetaPRNumber] = result.PRNumber
		meta[MetaPRURL] = result.PRURL
		_ = s.tasks.SaveTaskMetadata(ctx, taskID, meta)
	}

	return result, nil
}

// TaskPullRequestStatus looks up the task's recorded PR number and resolves
// its current status (spec §4.2 PullRequestStatus).
func (s *Service) TaskPullRequestStatus(ctx context.Context, projectID, taskID string) (*PRStatus, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	prNumber, ok := task.Metadata[MetaPRNumber]
	if !ok {
		return nil, apperror.NewNotFound("pull request for task", taskID)
	}
	n, ok := asInt(prNumber)
	if !ok {
		return nil, apperror.NewNotFound("pull request for task", taskID)
	}
	return s.PullRequestStatus(ctx, projectID, n)
}

// asInt normalizes pr_number, which may be an int, int64 or float64
// (unmarshaled JSON) depending on how task_metadata round-tripped. Any other
// type, json.Number included, reports false.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
