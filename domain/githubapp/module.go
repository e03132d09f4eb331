package githubapp

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/djinnbot/core/internal/config"
)

// Module provides GitHub App integration dependencies.
var Module = fx.Module("githubapp",
	fx.Provide(NewRepository),
	fx.Provide(newCrypto),
	fx.Provide(NewTokenService),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

// newCrypto creates the encryption service from centralized config.
func newCrypto(cfg *config.Config, log *slog.Logger) *Crypto {
	crypto, err := NewCrypto(cfg.GitHub.AppEncryptionKey)
	if err != nil {
		log.Warn("GitHub App encryption key not configured or invalid",
			"error", err,
			"hint", "Set GITHUB_APP_ENCRYPTION_KEY to a 64-character hex string (32 bytes) to enable GitHub App integration",
		)
		// Return unconfigured crypto — will error on encrypt/decrypt operations
		crypto, _ = NewCrypto("")
	}
	if !crypto.IsConfigured() {
		log.Info("GitHub App encryption not configured — GitHub integration disabled until GITHUB_APP_ENCRYPTION_KEY is set")
	}
	return crypto
}
