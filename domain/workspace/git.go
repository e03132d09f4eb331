package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/djinnbot/core/domain/githubapp"
)

const (
	maxCloneRetries   = 3
	initialRetryDelay = 2 * time.Second
	cloneTimeout      = 5 * time.Minute
	pullTimeout       = 2 * time.Minute
)

// gitCredentials carries what's needed to authenticate a clone/pull and
// attribute commits, resolved via the spec §4.2 credential order.
type gitCredentials struct {
	token string // empty for an unauthenticated clone
	name  string
	email string
}

// resolveCredentials implements spec §4.2's four-step credential resolution
// order. Steps 1-2 (GitHub App installation, explicit or discovered) are
// githubapp.Service.ResolveInstallationToken; steps 3-4 (GITHUB_TOKEN env,
// unauthenticated) are this package's fallback.
func (s *Service) resolveCredentials(ctx context.Context, explicitInstallationID *int64, repoURL string) gitCredentials {
	owner, repo := parseOwnerRepo(repoURL)

	if owner != "" && repo != "" {
		token, err := s.githubSvc.ResolveInstallationToken(ctx, explicitInstallationID, owner, repo)
		if err == nil {
			name, email := s.botIdentity(ctx)
			return gitCredentials{token: token, name: name, email: email}
		}
		s.log.Debug("no GitHub App installation available, falling back", "repo", repoURL)
	}

	if s.cfg.GitHub.Token != "" {
		name, email := githubapp.DefaultCommitIdentity()
		return gitCredentials{token: s.cfg.GitHub.Token, name: name, email: email}
	}

	name, email := githubapp.DefaultCommitIdentity()
	return gitCredentials{name: name, email: email}
}

func (s *Service) botIdentity(ctx context.Context) (name, email string) {
	app, err := s.githubSvc.GetConfig(ctx)
	if err != nil || app == nil {
		return githubapp.DefaultCommitIdentity()
	}
	appSlug := ""
	if app.AppSlug != nil {
		appSlug = *app.AppSlug
	}
	return githubapp.BotCommitIdentity(app.AppID, appSlug)
}

// authenticatedCloneURL injects an x-access-token credential into an https
// clone URL, matching GitHub App installation token conventions.
func authenticatedCloneURL(repoURL, token string) string {
	if token == "" || !strings.HasPrefix(repoURL, "https://") {
		return repoURL
	}
	return strings.Replace(repoURL, "https://", fmt.Sprintf("https://x-access-token:%s@", token), 1)
}

var ownerRepoPattern = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+?)(?:\.git)?/?$`)

// parseOwnerRepo extracts "owner", "repo" from a GitHub https/ssh URL.
func parseOwnerRepo(repoURL string) (owner, repo string) {
	m := ownerRepoPattern.FindStringSubmatch(repoURL)
	if len(m) != 3 {
		return "", ""
	}
	return m[1], m[2]
}

// cloneOrUpdate clones repoURL into dir if it doesn't exist yet, or does a
// fast-forward pull otherwise (spec §4.2 SetupProject). Retries clone with
// exponential backoff, mirroring the teacher's checkout flow.
func cloneOrUpdate(ctx context.Context, dir, repoURL string, creds gitCredentials) (cloned, pulled bool, err error) {
	if _, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil {
		if pullErr := fastForwardPull(ctx, dir, creds); pullErr != nil {
			return false, false, pullErr
		}
		return false, true, nil
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return false, false, statErr
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return false, false, fmt.Errorf("failed to create workspace parent dir: %w", err)
	}

	cloneURL := authenticatedCloneURL(repoURL, creds.token)

	var lastErr error
	for attempt := 0; attempt < maxCloneRetries; attempt++ {
		if attempt > 0 {
			delay := initialRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return false, false, ctx.Err()
			case <-time.After(delay):
			}
		}

		cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
		cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth", "1", cloneURL, dir)
		out, runErr := cmd.CombinedOutput()
		cancel()
		if runErr == nil {
			configureGitIdentity(ctx, dir, creds)
			return true, false, nil
		}
		lastErr = fmt.Errorf("git clone failed: %w: %s", runErr, sanitizeGitOutput(string(out), creds.token))
	}
	return false, false, lastErr
}

func fastForwardPull(ctx context.Context, dir string, creds gitCredentials) error {
	pullCtx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	cmd := exec.CommandContext(pullCtx, "git", "-C", dir, "pull", "--ff-only")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git pull failed: %w: %s", err, sanitizeGitOutput(string(out), creds.token))
	}
	return nil
}

func configureGitIdentity(ctx context.Context, dir string, creds gitCredentials) {
	if creds.name == "" || creds.email == "" {
		return
	}
	_ = exec.CommandContext(ctx, "git", "-C", dir, "config", "user.name", creds.name).Run()
	_ = exec.CommandContext(ctx, "git", "-C", dir, "config", "user.email", creds.email).Run()
}

// sanitizeGitOutput strips a leaked installation token from git's error
// output before it reaches logs or API responses.
func sanitizeGitOutput(out, token string) string {
	out = strings.TrimSpace(out)
	if token != "" {
		out = strings.ReplaceAll(out, token, "***")
	}
	return out
}
