package model

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Credential is an encrypted secret for a third-party integration.
// It is soft-deleted only: revocation clears Active.
type Credential struct {
	ID       types.CredentialID
	UserID   string
	TenantID types.TenantID
	Provider string
	Label    string

	Ciphertext []byte
	Nonce      []byte
	Salt       []byte

	Scope      string
	ExpiresAt  *time.Time
	Active     bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsExpired reports whether the credential has passed its expiry
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Summary returns the metadata view of the credential
func (c *Credential) Summary() *CredentialSummary {
	return &CredentialSummary{
		ID:         c.ID,
		UserID:     c.UserID,
		TenantID:   c.TenantID,
		Provider:   c.Provider,
		Label:      c.Label,
		Scope:      c.Scope,
		ExpiresAt:  c.ExpiresAt,
		Active:     c.Active,
		LastUsedAt: c.LastUsedAt,
		CreatedAt:  c.CreatedAt,
	}
}

// CredentialSummary is the metadata-only view of a credential
type CredentialSummary struct {
	ID         types.CredentialID `json:"id"`
	UserID     string             `json:"user_id"`
	TenantID   types.TenantID     `json:"tenant_id"`
	Provider   string             `json:"provider"`
	Label      string             `json:"label"`
	Scope      string             `json:"scope,omitempty"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
	Active     bool               `json:"active"`
	LastUsedAt *time.Time         `json:"last_used_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// SecretPayload is decrypted secret material. It never renders into logs.
type SecretPayload map[string]string

// LogValue implements slog.LogValuer
func (p SecretPayload) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("keys", len(p)))
}

// CredentialRequest describes who asks for decrypted use and why
type CredentialRequest struct {
	TenantID types.TenantID
	UserID   string
	Purpose  string
}
