package workspace

// RepoSetupResult is the outcome of SetupProject (spec §4.2). Clone/pull
// failures are carried here rather than returned as an error, so callers can
// surface them as a warning instead of a 500.
type RepoSetupResult struct {
	ProjectID     string `json:"project_id"`
	WorkspacePath string `json:"workspace_path"`
	Cloned        bool   `json:"cloned"`
	Pulled        bool   `json:"pulled"`
	CloneError    string `json:"clone_error,omitempty"`
}

// WorktreeResult is returned once RequestWorktree's polled result key
// resolves successfully.
type WorktreeResult struct {
	TaskID         string `json:"task_id"`
	AgentID        string `json:"agent_id"`
	Branch         string `json:"branch"`
	WorktreePath   string `json:"worktree_path"`
	AlreadyExisted bool   `json:"already_existed"`
}

// worktreeEngineResult is the payload an external worktree-provisioning
// engine writes to the polled Redis result key.
type worktreeEngineResult struct {
	Success       bool   `json:"success"`
	Branch        string `json:"branch"`
	Error         string `json:"error"`
	AlreadyExists bool   `json:"alreadyExists"`
}

// PullRequestResult is returned by OpenPullRequest.
type PullRequestResult struct {
	PRNumber int    `json:"pr_number"`
	PRURL    string `json:"pr_url"`
	Title    string `json:"title"`
	Draft    bool   `json:"draft"`
	Branch   string `json:"branch"`
}

// PRStatus is the derived status of a task's pull request (spec §4.2
// PullRequestStatus).
type PRStatus struct {
	PRNumber       int             `json:"pr_number"`
	PRURL          string          `json:"pr_url"`
	State          string          `json:"state"`
	Merged         bool            `json:"merged"`
	Mergeable      *bool           `json:"mergeable"`
	MergeableState string          `json:"mergeable_state"`
	Draft          bool            `json:"draft"`
	Title          string          `json:"title"`
	HeadBranch     string          `json:"head_branch"`
	BaseBranch     string          `json:"base_branch"`
	ChangedFiles   int             `json:"changed_files"`
	Additions      int             `json:"additions"`
	Deletions      int             `json:"deletions"`
	Reviews        []ReviewSummary `json:"reviews"`
	Checks         []CheckSummary  `json:"checks"`
	CIStatus       string          `json:"ci_status"`
	ReadyToMerge   bool            `json:"ready_to_merge"`
}

// ReviewSummary is one PR review entry.
type ReviewSummary struct {
	User        string `json:"user"`
	State       string `json:"state"`
	SubmittedAt string `json:"submitted_at"`
}

// CheckSummary is one check-run entry for the PR's head SHA.
type CheckSummary struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// CI status values (spec §4.2).
const (
	CIStatusNone    = "none"
	CIStatusPending = "pending"
	CIStatusPassing = "passing"
	CIStatusFailing = "failing"
)
