package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/cipher"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// VaultUseCase stores third-party secrets encrypted at rest. Plaintext only
// leaves through GetDecrypted and Use, and every such read is audited.
type VaultUseCase struct {
	repo   interfaces.Repository
	sealer *cipher.Sealer
	locks  *keyedMutex
	now    func() time.Time
}

// NewVaultUseCase creates a new VaultUseCase instance
func NewVaultUseCase(repo interfaces.Repository, sealer *cipher.Sealer) *VaultUseCase {
	return &VaultUseCase{
		repo:   repo,
		sealer: sealer,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// SaveOption configures optional credential attributes
type SaveOption func(*model.Credential)

// WithScope records the scope granted to the credential
func WithScope(scope string) SaveOption {
	return func(c *model.Credential) {
		c.Scope = scope
	}
}

// WithExpiry sets the time after which the credential can no longer be used
func WithExpiry(at time.Time) SaveOption {
	return func(c *model.Credential) {
		c.ExpiresAt = &at
	}
}

// Save encrypts payload and stores it as a new active credential
func (uc *VaultUseCase) Save(ctx context.Context, userID string, tenantID types.TenantID, provider, label string, payload model.SecretPayload, opts ...SaveOption) (types.CredentialID, error) {
	if err := tenantID.Validate(); err != nil {
		return "", goerr.Wrap(err, "invalid tenant", goerr.T(model.TagValidation))
	}
	if userID == "" || provider == "" {
		return "", goerr.New("user and provider are required", goerr.T(model.TagValidation),
			goerr.V(model.TenantIDKey, tenantID))
	}
	if len(payload) == 0 {
		return "", goerr.New("secret payload is empty", goerr.T(model.TagValidation),
			goerr.V(model.TenantIDKey, tenantID), goerr.V("provider", provider))
	}

	now := uc.now().UTC()
	cred := &model.Credential{
		ID:        types.NewCredentialID(),
		UserID:    userID,
		TenantID:  tenantID,
		Provider:  provider,
		Label:     label,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(cred)
	}

	unlock := uc.locks.Lock(string(cred.ID))
	defer unlock()

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode secret payload")
	}
	sealed, err := uc.sealer.Seal(plaintext, additionalData(cred))
	if err != nil {
		return "", goerr.Wrap(err, "failed to seal credential", goerr.V(model.CredentialIDKey, cred.ID))
	}
	cred.Ciphertext = sealed.Ciphertext
	cred.Nonce = sealed.Nonce
	cred.Salt = sealed.Salt

	if err := uc.repo.Credential().Create(ctx, cred); err != nil {
		return "", goerr.Wrap(err, "failed to store credential", goerr.V(model.CredentialIDKey, cred.ID))
	}

	uc.audit(ctx, cred, model.AuditCredential, "credential saved", nil)
	return cred.ID, nil
}

// GetDecrypted returns the plaintext payload of an active credential
func (uc *VaultUseCase) GetDecrypted(ctx context.Context, id types.CredentialID, req model.CredentialRequest) (model.SecretPayload, error) {
	cred, err := uc.repo.Credential().Get(ctx, req.TenantID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "credential lookup failed", goerr.T(model.TagCredential),
			goerr.V(model.CredentialIDKey, id), goerr.V(model.TenantIDKey, req.TenantID))
	}
	return uc.open(ctx, cred, req)
}

// Use finds the newest active credential of a user for a provider and decrypts it
func (uc *VaultUseCase) Use(ctx context.Context, userID, provider string, req model.CredentialRequest) (model.SecretPayload, error) {
	cred, err := uc.repo.Credential().FindActive(ctx, req.TenantID, userID, provider)
	if err != nil {
		return nil, goerr.Wrap(err, "no usable credential", goerr.T(model.TagCredential),
			goerr.V(model.TenantIDKey, req.TenantID), goerr.V("user_id", userID), goerr.V("provider", provider))
	}
	return uc.open(ctx, cred, req)
}

func (uc *VaultUseCase) open(ctx context.Context, cred *model.Credential, req model.CredentialRequest) (model.SecretPayload, error) {
	now := uc.now().UTC()
	if !cred.Active {
		return nil, goerr.New("credential is revoked", goerr.T(model.TagCredential),
			goerr.V(model.CredentialIDKey, cred.ID))
	}
	if cred.IsExpired(now) {
		return nil, goerr.New("credential is expired", goerr.T(model.TagCredential),
			goerr.V(model.CredentialIDKey, cred.ID), goerr.V("expires_at", cred.ExpiresAt))
	}

	plaintext, err := uc.sealer.Open(&cipher.Sealed{
		Ciphertext: cred.Ciphertext,
		Nonce:      cred.Nonce,
		Salt:       cred.Salt,
	}, additionalData(cred))
	if err != nil {
		uc.audit(ctx, cred, model.AuditSecurity, "credential decryption failed", map[string]string{
			"purpose": req.Purpose,
		})
		return nil, goerr.Wrap(err, "failed to open credential", goerr.V(model.CredentialIDKey, cred.ID))
	}

	var payload model.SecretPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, goerr.Wrap(err, "credential payload is corrupted", goerr.T(model.TagCredential),
			goerr.V(model.CredentialIDKey, cred.ID))
	}

	uc.audit(ctx, cred, model.AuditCredentialUse, "credential decrypted", map[string]string{
		"purpose":      req.Purpose,
		"requested_by": req.UserID,
	})
	uc.touch(ctx, cred.TenantID, cred.ID, now)

	return payload, nil
}

// touch records the last use; failures are logged since the secret was already served
func (uc *VaultUseCase) touch(ctx context.Context, tenantID types.TenantID, id types.CredentialID, at time.Time) {
	unlock := uc.locks.Lock(string(id))
	defer unlock()

	cred, err := uc.repo.Credential().Get(ctx, tenantID, id)
	if err != nil {
		logging.From(ctx).Warn("failed to reload credential for last-used update", "error", err, "credential_id", id)
		return
	}
	cred.LastUsedAt = &at
	cred.UpdatedAt = at
	if err := uc.repo.Credential().Update(ctx, cred); err != nil {
		logging.From(ctx).Warn("failed to update credential last-used time", "error", err, "credential_id", id)
	}
}

// ListMetadata returns credential summaries of a tenant; never any secret material
func (uc *VaultUseCase) ListMetadata(ctx context.Context, tenantID types.TenantID) ([]*model.CredentialSummary, error) {
	creds, err := uc.repo.Credential().List(ctx, tenantID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list credentials", goerr.V(model.TenantIDKey, tenantID))
	}
	result := make([]*model.CredentialSummary, 0, len(creds))
	for _, c := range creds {
		result = append(result, c.Summary())
	}
	return result, nil
}

// Revoke deactivates a credential. Records are never deleted.
func (uc *VaultUseCase) Revoke(ctx context.Context, tenantID types.TenantID, id types.CredentialID) error {
	unlock := uc.locks.Lock(string(id))
	defer unlock()

	cred, err := uc.repo.Credential().Get(ctx, tenantID, id)
	if err != nil {
		return goerr.Wrap(err, "failed to get credential", goerr.V(model.CredentialIDKey, id))
	}
	if !cred.Active {
		return nil
	}

	cred.Active = false
	cred.UpdatedAt = uc.now().UTC()
	if err := uc.repo.Credential().Update(ctx, cred); err != nil {
		return goerr.Wrap(err, "failed to revoke credential", goerr.V(model.CredentialIDKey, id))
	}

	uc.audit(ctx, cred, model.AuditCredential, "credential revoked", nil)
	return nil
}

func (uc *VaultUseCase) audit(ctx context.Context, cred *model.Credential, kind model.AuditKind, msg string, attrs map[string]string) {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["provider"] = cred.Provider
	attrs["user_id"] = cred.UserID

	entry := &model.AuditEntry{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   cred.TenantID,
		Kind:       kind,
		Subject:    string(cred.ID),
		Message:    msg,
		Attributes: attrs,
		CreatedAt:  uc.now().UTC(),
	}
	if err := uc.repo.Audit().Append(ctx, entry); err != nil {
		logging.From(ctx).Error("failed to append credential audit entry",
			"error", err, "credential_id", cred.ID, "kind", kind)
	}
}

// additionalData binds ciphertext to its record so it cannot be moved to another one
func additionalData(c *model.Credential) []byte {
	return []byte(string(c.TenantID) + "/" + string(c.ID))
}

// keyedMutex serializes writers per key while leaving other keys unblocked
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
