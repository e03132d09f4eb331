package githubapp

import (
	"time"

	"github.com/uptrace/bun"
)

// GitHubApp stores GitHub App credentials for repository access. At most
// one row exists per deployment (singleton, spec §4.2 credential
// resolution).
type GitHubApp struct {
	bun.BaseModel `bun:"table:github_apps,alias:ga"`

	ID                     string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	AppID                  string    `bun:"app_id,notnull" json:"app_id"`
	AppSlug                *string   `bun:"app_slug" json:"app_slug,omitempty"`
	PrivateKeyEncrypted    []byte    `bun:"private_key_encrypted,type:bytea,notnull" json:"-"`
	WebhookSecretEncrypted []byte    `bun:"webhook_secret_encrypted,type:bytea" json:"-"`
	CreatedAt              time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt              time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// Installation is one account/org the app has been installed into,
// discovered via webhook or recorded by the CLI setup flow (spec §4.2
// "Discovery: iterate App installations, probe /repos/{owner}/{repo}").
type Installation struct {
	bun.BaseModel `bun:"table:github_installations,alias:gi"`

	ID             string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	GitHubAppID    string    `bun:"github_app_id,notnull,type:uuid" json:"github_app_id"`
	InstallationID int64     `bun:"installation_id,notnull" json:"installation_id"`
	AccountLogin   string    `bun:"account_login,notnull" json:"account_login"`
	RepositoryURL  *string   `bun:"repository_url" json:"repository_url,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// StatusResponse is the response DTO for GitHub App connection status.
type StatusResponse struct {
	Connected     bool   `json:"connected"`
	AppID         string `json:"app_id,omitempty"`
	AppSlug       string `json:"app_slug,omitempty"`
	Installations int    `json:"installations"`
}

// CLISetupRequest configures the singleton GitHub App from CLI-provided
// credentials. There is no OAuth manifest flow here: the schema carries no
// client id/secret, only the app's own private key and (optionally) a
// webhook secret supplied out of band.
type CLISetupRequest struct {
	AppID         string `json:"app_id" validate:"required"`
	AppSlug       string `json:"app_slug,omitempty"`
	PrivateKeyPEM string `json:"private_key_pem" validate:"required"`
}

// WebhookEvent is a minimal GitHub installation webhook payload; installation
// events seed the discovery table as the app is installed into new accounts.
type WebhookEvent struct {
	Action       string               `json:"action"`
	Installation *WebhookInstallation `json:"installation,omitempty"`
}

// WebhookInstallation is the installation object in a webhook payload.
type WebhookInstallation struct {
	ID      int64           `json:"id"`
	Account *WebhookAccount `json:"account,omitempty"`
}

// WebhookAccount is the account (org or user) in an installation webhook.
type WebhookAccount struct {
	Login string `json:"login"`
}

// InstallationTokenResponse is GitHub's response for installation access
// tokens.
type InstallationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
