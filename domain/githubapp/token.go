package githubapp

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/djinnbot/core/pkg/logger"
)

const (
	// tokenCacheDuration is how long to cache installation tokens (55 min, 5 min safety margin before 1h expiry).
	tokenCacheDuration = 55 * time.Minute

	// githubAPIBaseURL is the base URL for GitHub API calls.
	githubAPIBaseURL = "https://api.github.com"
)

// cachedToken holds an in-memory cached installation access token.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenService generates and caches GitHub App installation access tokens
// (spec §4.2 "resolve credentials ... build an authenticated clone URL").
type TokenService struct {
	crypto *Crypto
	log    *slog.Logger

	mu    sync.RWMutex
	cache map[int64]*cachedToken // installationID -> cached token

	httpClient *http.Client
}

// NewTokenService creates a new token service.
func NewTokenService(crypto *Crypto, log *slog.Logger) *TokenService {
	return &TokenService{
		crypto:     crypto,
		log:        log.With(logger.Scope("githubapp.token")),
		cache:      make(map[int64]*cachedToken),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetInstallationToken returns a valid installation access token for app's
// installation, using the in-memory cache when possible.
func (ts *TokenService) GetInstallationToken(app *GitHubApp, installationID int64) (string, error) {
	ts.mu.RLock()
	if cached, ok := ts.cache[installationID]; ok && time.Now().Before(cached.expiresAt) {
		ts.mu.RUnlock()
		return cached.token, nil
	}
	ts.mu.RUnlock()

	token, err := ts.generateInstallationToken(app, installationID)
	if err != nil {
		return "", err
	}

	ts.mu.Lock()
	ts.cache[installationID] = &cachedToken{
		token:     token,
		expiresAt: time.Now().Add(tokenCacheDuration),
	}
	ts.mu.Unlock()

	ts.log.Info("generated new installation access token",
		slog.Int64("installation_id", installationID), slog.String("app_id", app.AppID))
	return token, nil
}

// InvalidateCache removes the cached token for a given installation.
func (ts *TokenService) InvalidateCache(installationID int64) {
	ts.mu.Lock()
	delete(ts.cache, installationID)
	ts.mu.Unlock()
}

// generateInstallationToken creates a new installation access token via
// GitHub API: 1) decrypt PEM, 2) sign JWT, 3) exchange JWT for installation
// token.
func (ts *TokenService) generateInstallationToken(app *GitHubApp, installationID int64) (string, error) {
	pemData, err := ts.crypto.Decrypt(app.PrivateKeyEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt private key: %w", err)
	}

	jwtToken, err := ts.signJWT(app.AppID, pemData)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	installToken, err := ts.exchangeForInstallationToken(jwtToken, installationID)
	if err != nil {
		return "", fmt.Errorf("failed to exchange JWT for installation token: %w", err)
	}

	return installToken, nil
}

// signJWT creates a signed JWT for GitHub App authentication, valid for 10
// minutes (GitHub's maximum).
func (ts *TokenService) signJWT(appID string, pemData []byte) (string, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		pkcs8Key, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return "", fmt.Errorf("failed to parse private key (PKCS1: %v, PKCS8: %v)", err, err2)
		}
		var ok bool
		key, ok = pkcs8Key.(*rsa.PrivateKey)
		if !ok {
			return "", fmt.Errorf("PKCS8 key is not RSA")
		}
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    appID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signedToken, nil
}

// exchangeForInstallationToken exchanges a JWT for an installation access
// token via GitHub API.
func (ts *TokenService) exchangeForInstallationToken(jwtToken string, installationID int64) (string, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", githubAPIBaseURL, installationID)

	req, err := http.NewRequest("POST", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("GitHub API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp InstallationTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	return tokenResp.Token, nil
}

// probeRepository checks whether token grants access to owner/repo, used by
// installation discovery (spec §4.2 "probe /repos/{owner}/{repo}; first 200
// wins").
func (ts *TokenService) probeRepository(token, owner, repo string) bool {
	url := fmt.Sprintf("%s/repos/%s/%s", githubAPIBaseURL, owner, repo)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// BotCommitIdentity returns the git user.name and user.email for the GitHub
// App bot.
func BotCommitIdentity(appID, appSlug string) (name string, email string) {
	if appSlug == "" {
		appSlug = "djinnbot"
	}
	name = appSlug + "[bot]"
	email = fmt.Sprintf("%s+%s[bot]@users.noreply.github.com", appID, appSlug)
	return
}

// DefaultCommitIdentity returns the default git identity when no GitHub App
// is configured (spec §4.2 credential resolution step 3/4 fallback).
func DefaultCommitIdentity() (name string, email string) {
	return "DjinnBot Agent", "agent@djinnbot.local"
}
