package githubapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Service handles GitHub App credential resolution (spec §4.2 "resolve
// credentials").
type Service struct {
	repo         *Repository
	crypto       *Crypto
	tokenService *TokenService
	log          *slog.Logger
}

// NewService creates a new GitHub App service.
func NewService(repo *Repository, crypto *Crypto, tokenService *TokenService, log *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		crypto:       crypto,
		tokenService: tokenService,
		log:          log.With(logger.Scope("githubapp.service")),
	}
}

// VerifyWebhookSignature verifies the X-Hub-Signature-256 header against the
// stored webhook secret.
func (s *Service) VerifyWebhookSignature(ctx context.Context, signature string, body []byte) error {
	app, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	if app == nil {
		return apperror.NewBadRequest("GitHub App not configured")
	}
	if len(app.WebhookSecretEncrypted) == 0 {
		return apperror.NewBadRequest("webhook secret not configured")
	}

	secret, err := s.crypto.Decrypt(app.WebhookSecretEncrypted)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}
	if !verifyHMACSignature(secret, signature, body) {
		return apperror.NewBadRequest("invalid webhook signature")
	}
	return nil
}

func verifyHMACSignature(secret []byte, signature string, body []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// GetStatus returns the current GitHub App connection status.
func (s *Service) GetStatus(ctx context.Context) (*StatusResponse, error) {
	app, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return &StatusResponse{Connected: false}, nil
	}

	installations, err := s.repo.ListInstallations(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	appSlug := ""
	if app.AppSlug != nil {
		appSlug = *app.AppSlug
	}
	return &StatusResponse{
		Connected:     true,
		AppID:         app.AppID,
		AppSlug:       appSlug,
		Installations: len(installations),
	}, nil
}

// CLISetup configures the singleton GitHub App from CLI-provided
// credentials, replacing any existing configuration.
func (s *Service) CLISetup(ctx context.Context, req *CLISetupRequest) error {
	privateKeyEnc, err := s.crypto.EncryptString(req.PrivateKeyPEM)
	if err != nil {
		return apperror.NewBadRequest("failed to encrypt private key").WithInternal(err)
	}

	if err := s.repo.DeleteAll(ctx); err != nil {
		s.log.Warn("failed to delete existing github app config", logger.Error(err))
	}

	var appSlug *string
	if req.AppSlug != "" {
		appSlug = &req.AppSlug
	}
	app := &GitHubApp{
		AppID:               req.AppID,
		AppSlug:             appSlug,
		PrivateKeyEncrypted: privateKeyEnc,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return err
	}

	s.log.Info("github app configured via CLI", slog.String("app_id", req.AppID))
	return nil
}

// HandleInstallationWebhook records an installation discovered from a
// GitHub webhook event (spec §4.2 discovery seed).
func (s *Service) HandleInstallationWebhook(ctx context.Context, event WebhookEvent) error {
	if event.Installation == nil {
		return nil
	}
	app, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	if app == nil {
		return apperror.NewBadRequest("GitHub App not configured")
	}

	login := ""
	if event.Installation.Account != nil {
		login = event.Installation.Account.Login
	}
	return s.repo.UpsertInstallation(ctx, &Installation{
		GitHubAppID:    app.ID,
		InstallationID: event.Installation.ID,
		AccountLogin:   login,
	})
}

// ResolveInstallationToken implements spec §4.2's credential resolution
// order for an installation token:
//  1. Explicit installation id (caller-supplied).
//  2. Discovery: iterate known installations, probe /repos/{owner}/{repo};
//     first 200 wins.
//
// Steps 3 (GITHUB_TOKEN env var) and 4 (unauthenticated clone) have no
// GitHub App involvement and are handled by the caller (domain/workspace)
// when this returns apperror.ErrNotFound.
func (s *Service) ResolveInstallationToken(ctx context.Context, explicitInstallationID *int64, owner, repo string) (string, error) {
	app, err := s.repo.Get(ctx)
	if err != nil {
		return "", err
	}
	if app == nil {
		return "", apperror.NewNotFound("github app", "")
	}

	if explicitInstallationID != nil {
		token, err := s.tokenService.GetInstallationToken(app, *explicitInstallationID)
		if err != nil {
			return "", apperror.ErrInternal.WithInternal(err)
		}
		return token, nil
	}

	installations, err := s.repo.ListInstallations(ctx, app.ID)
	if err != nil {
		return "", err
	}
	for _, inst := range installations {
		token, err := s.tokenService.GetInstallationToken(app, inst.InstallationID)
		if err != nil {
			s.log.Warn("failed to generate token for installation candidate",
				logger.Error(err), slog.Int64("installation_id", inst.InstallationID))
			continue
		}
		if s.tokenService.probeRepository(token, owner, repo) {
			return token, nil
		}
	}
	return "", apperror.NewNotFound("github installation", fmt.Sprintf("%s/%s", owner, repo))
}

// GetConfig returns the current GitHub App configuration (for bot identity).
func (s *Service) GetConfig(ctx context.Context) (*GitHubApp, error) {
	return s.repo.Get(ctx)
}
