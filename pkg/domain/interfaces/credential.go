package interfaces

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// CredentialRepository stores encrypted credentials. Implementations never see plaintext.
type CredentialRepository interface {
	Create(ctx context.Context, cred *model.Credential) error

	Get(ctx context.Context, tenantID types.TenantID, id types.CredentialID) (*model.Credential, error)

	Update(ctx context.Context, cred *model.Credential) error

	// List returns every credential of a tenant, newest first
	List(ctx context.Context, tenantID types.TenantID) ([]*model.Credential, error)

	// ListByUser returns credentials of a user including revoked ones
	ListByUser(ctx context.Context, tenantID types.TenantID, userID string) ([]*model.Credential, error)

	// FindActive returns the newest active credential for a user and provider
	FindActive(ctx context.Context, tenantID types.TenantID, userID, provider string) (*model.Credential, error)
}
