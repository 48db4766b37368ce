package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type credentialRepository struct {
	mu          sync.RWMutex
	credentials map[types.CredentialID]*model.Credential
}

func newCredentialRepository() *credentialRepository {
	return &credentialRepository{
		credentials: make(map[types.CredentialID]*model.Credential),
	}
}

// copyCredential creates a deep copy of a credential
func copyCredential(c *model.Credential) *model.Credential {
	cp := *c
	cp.Ciphertext = append([]byte(nil), c.Ciphertext...)
	cp.Nonce = append([]byte(nil), c.Nonce...)
	cp.Salt = append([]byte(nil), c.Salt...)
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

func (r *credentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.credentials[cred.ID]; exists {
		return goerr.New("credential already exists", goerr.V(model.CredentialIDKey, cred.ID))
	}
	r.credentials[cred.ID] = copyCredential(cred)
	return nil
}

func (r *credentialRepository) Get(ctx context.Context, tenantID types.TenantID, id types.CredentialID) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.credentials[id]
	if !exists || c.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "credential not found",
			goerr.V(model.CredentialIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return copyCredential(c), nil
}

func (r *credentialRepository) Update(ctx context.Context, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.credentials[cred.ID]
	if !exists || existing.TenantID != cred.TenantID {
		return goerr.Wrap(ErrNotFound, "credential not found", goerr.V(model.CredentialIDKey, cred.ID))
	}
	r.credentials[cred.ID] = copyCredential(cred)
	return nil
}

func (r *credentialRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Credential, 0)
	for _, c := range r.credentials {
		if c.TenantID == tenantID {
			result = append(result, copyCredential(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *credentialRepository) ListByUser(ctx context.Context, tenantID types.TenantID, userID string) ([]*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Credential, 0)
	for _, c := range r.credentials {
		if c.TenantID == tenantID && c.UserID == userID {
			result = append(result, copyCredential(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *credentialRepository) FindActive(ctx context.Context, tenantID types.TenantID, userID, provider string) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *model.Credential
	for _, c := range r.credentials {
		if c.TenantID != tenantID || c.UserID != userID || c.Provider != provider || !c.Active {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, goerr.Wrap(ErrNotFound, "no active credential",
			goerr.V(model.TenantIDKey, tenantID), goerr.V("user_id", userID), goerr.V("provider", provider))
	}
	return copyCredential(found), nil
}
