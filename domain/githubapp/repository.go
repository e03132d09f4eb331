package githubapp

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Repository handles database operations for the GitHub App singleton and
// its discovered installations.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new githubapp repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("githubapp.repo")),
	}
}

// Get returns the GitHub App configuration (singleton), or (nil, nil) if
// none has been configured yet.
func (r *Repository) Get(ctx context.Context) (*GitHubApp, error) {
	app := new(GitHubApp)
	err := r.db.NewSelect().Model(app).Limit(1).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get github app config", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return app, nil
}

// Create inserts the GitHub App configuration.
func (r *Repository) Create(ctx context.Context, app *GitHubApp) error {
	_, err := r.db.NewInsert().Model(app).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to create github app config", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// DeleteAll removes the singleton configuration, so a fresh CLISetup call
// can replace it.
func (r *Repository) DeleteAll(ctx context.Context) error {
	_, err := r.db.NewDelete().Model((*GitHubApp)(nil)).Where("1=1").Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete github app config", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListInstallations returns every installation the app has discovered.
func (r *Repository) ListInstallations(ctx context.Context, githubAppID string) ([]Installation, error) {
	var installations []Installation
	err := r.db.NewSelect().Model(&installations).Where("github_app_id = ?", githubAppID).Scan(ctx)
	if err != nil {
		r.log.Error("failed to list installations", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return installations, nil
}

// GetInstallation returns an installation by its GitHub installation id.
func (r *Repository) GetInstallation(ctx context.Context, installationID int64) (*Installation, error) {
	var inst Installation
	err := r.db.NewSelect().Model(&inst).Where("installation_id = ?", installationID).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get installation", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return &inst, nil
}

// UpsertInstallation records (or refreshes) an installation discovered via
// webhook (spec §4.2 discovery is seeded as installation events arrive).
func (r *Repository) UpsertInstallation(ctx context.Context, inst *Installation) error {
	_, err := r.db.NewRaw(`
		INSERT INTO github_installations (github_app_id, installation_id, account_login, repository_url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (github_app_id, installation_id) DO UPDATE SET
			account_login = EXCLUDED.account_login,
			repository_url = COALESCE(EXCLUDED.repository_url, github_installations.repository_url)
	`, inst.GitHubAppID, inst.InstallationID, inst.AccountLogin, inst.RepositoryURL).Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert installation", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
