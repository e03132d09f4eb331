package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

const githubAPIBaseURL = "https://api.github.com"

// OpenPullRequest opens a GitHub pull request for a task's feature branch
// (spec §4.2). Failure semantics distinguish auth (401/403), network
// (timeout/DNS), and merge-rejected (422 non-fast-forward) errors.
func (s *Service) OpenPullRequest(ctx context.Context, projectID, taskID, agentID, headBranch, baseBranch, title, body string, draft bool) (*PullRequestResult, error) {
	repoURL, err := s.repoURLForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	owner, repo := parseOwnerRepo(repoURL)
	if owner == "" || repo == "" {
		return nil, apperror.NewBadRequest("unable to determine owner/repo from project repository_url")
	}
	if baseBranch == "" {
		baseBranch = "main"
	}

	token, err := s.githubSvc.ResolveInstallationToken(ctx, nil, owner, repo)
	if err != nil {
		return nil, apperror.New(400, "github-not-connected", "no GitHub App installation can access this repository").WithInternal(err)
	}

	payload, _ := json.Marshal(map[string]any{
		"title": title,
		"body":  body,
		"head":  headBranch,
		"base":  baseBranch,
		"draft": draft,
	})

	url := fmt.Sprintf("%s/repos/%s/%s/pulls", githubAPIBaseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	setGitHubHeaders(req, token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, apperror.New(502, "network-error", "failed to reach GitHub API").WithInternal(err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperror.New(401, "authentication-failed", "GitHub authentication failed")
	case resp.StatusCode == http.StatusUnprocessableEntity:
		if strings.Contains(string(respBody), "not a fast forward") || strings.Contains(string(respBody), "no commits between") {
			return nil, apperror.New(409, "merge-rejected", "pull first: branch is not a fast-forward of the base branch")
		}
		return nil, apperror.New(422, "pr-rejected", "GitHub rejected the pull request").WithDetails(map[string]any{"body": string(respBody)})
	case resp.StatusCode != http.StatusCreated:
		return nil, apperror.New(resp.StatusCode, "github-error", "failed to create pull request").WithDetails(map[string]any{"body": string(respBody)})
	}

	var pr struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		Title   string `json:"title"`
		Draft   bool   `json:"draft"`
	}
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "TASK_PR_OPENED", map[string]any{
		"project_id": projectID,
		"task_id":    taskID,
		"agent_id":   agentID,
		"pr_number":  pr.Number,
		"pr_url":     pr.HTMLURL,
		"branch":     headBranch,
	})

	return &PullRequestResult{PRNumber: pr.Number, PRURL: pr.HTMLURL, Title: pr.Title, Draft: pr.Draft, Branch: headBranch}, nil
}

// PullRequestStatus resolves PR metadata, reviews, and check-runs and
// derives ci_status / ready_to_merge (spec §4.2).
func (s *Service) PullRequestStatus(ctx context.Context, projectID string, prNumber int) (*PRStatus, error) {
	repoURL, err := s.repoURLForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	owner, repo := parseOwnerRepo(repoURL)
	if owner == "" || repo == "" {
		return nil, apperror.NewBadRequest("unable to determine owner/repo from project repository_url")
	}

	token, err := s.githubSvc.ResolveInstallationToken(ctx, nil, owner, repo)
	if err != nil {
		return nil, apperror.New(400, "github-not-connected", "no GitHub App installation can access this repository").WithInternal(err)
	}

	var pr struct {
		State          string `json:"state"`
		Merged         bool   `json:"merged"`
		Mergeable      *bool  `json:"mergeable"`
		MergeableState string `json:"mergeable_state"`
		Draft          bool   `json:"draft"`
		Title          string `json:"title"`
		ChangedFiles   int    `json:"changed_files"`
		Additions      int    `json:"additions"`
		Deletions      int    `json:"deletions"`
		Head           struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		HTMLURL string `json:"html_url"`
	}
	if err := s.getGitHubJSON(ctx, token, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, prNumber), &pr); err != nil {
		return nil, err
	}

	var reviewsRaw []struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		State       string `json:"state"`
		SubmittedAt string `json:"submitted_at"`
	}
	_ = s.getGitHubJSON(ctx, token, fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, prNumber), &reviewsRaw)

	var checksRaw struct {
		CheckRuns []struct {
			Name       string `json:"name"`
			Status     string `json:"status"`
			Conclusion string `json:"conclusion"`
		} `json:"check_runs"`
	}
	if pr.Head.SHA != "" {
		_ = s.getGitHubJSON(ctx, token, fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", owner, repo, pr.Head.SHA), &checksRaw)
	}

	reviews := make([]ReviewSummary, 0, len(reviewsRaw))
	for _, r := range reviewsRaw {
		reviews = append(reviews, ReviewSummary{User: r.User.Login, State: r.State, SubmittedAt: r.SubmittedAt})
	}

	checks := make([]CheckSummary, 0, len(checksRaw.CheckRuns))
	for _, c := range checksRaw.CheckRuns {
		checks = append(checks, CheckSummary{Name: c.Name, Status: c.Status, Conclusion: c.Conclusion})
	}

	ciStatus := deriveCIStatus(checks)
	mergeableTrue := pr.Mergeable != nil && *pr.Mergeable
	readyToMerge := isReadyToMerge(pr.State, pr.Draft, mergeableTrue, ciStatus, reviews)

	return &PRStatus{
		PRNumber:       prNumber,
		PRURL:          pr.HTMLURL,
		State:          pr.State,
		Merged:         pr.Merged,
		Mergeable:      pr.Mergeable,
		MergeableState: pr.MergeableState,
		Draft:          pr.Draft,
		Title:          pr.Title,
		HeadBranch:     pr.Head.Ref,
		BaseBranch:     pr.Base.Ref,
		ChangedFiles:   pr.ChangedFiles,
		Additions:      pr.Additions,
		Deletions:      pr.Deletions,
		Reviews:        reviews,
		Checks:         checks,
		CIStatus:       ciStatus,
		ReadyToMerge:   readyToMerge,
	}, nil
}

// deriveCIStatus summarizes check-runs into a single status: no checks means
// CIStatusNone, any incomplete run means pending, any non-success conclusion
// on a completed run means failing, else passing.
func deriveCIStatus(checks []CheckSummary) string {
	if len(checks) == 0 {
		return CIStatusNone
	}
	allPassed := true
	anyPending := false
	for _, c := range checks {
		if c.Status != "completed" {
			anyPending = true
		} else if c.Conclusion != "success" {
			allPassed = false
		}
	}
	switch {
	case anyPending:
		return CIStatusPending
	case allPassed:
		return CIStatusPassing
	default:
		return CIStatusFailing
	}
}

// isReadyToMerge mirrors the original dashboard's ready_to_merge rule: open,
// not a draft, mergeable, CI green, and at least one approval.
func isReadyToMerge(state string, draft, mergeable bool, ciStatus string, reviews []ReviewSummary) bool {
	approved := false
	for _, r := range reviews {
		if r.State == "APPROVED" {
			approved = true
			break
		}
	}
	return state == "open" && !draft && mergeable && ciStatus == CIStatusPassing && approved
}

func (s *Service) getGitHubJSON(ctx context.Context, token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubAPIBaseURL+path, nil)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	setGitHubHeaders(req, token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperror.New(502, "network-error", "failed to reach GitHub API").WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperror.NewNotFound("pull request", path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		s.log.Warn("github api returned non-200", logger.Error(fmt.Errorf("%s", string(body))))
		return apperror.New(resp.StatusCode, "github-error", "GitHub API request failed")
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func setGitHubHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Content-Type", "application/json")
}
