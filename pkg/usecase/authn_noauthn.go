package usecase

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// NoAuthnUseCase grants admin access to a fixed tenant (for development/testing)
type NoAuthnUseCase struct {
	tenantID types.TenantID
	subject  string
}

// NewNoAuthnUseCase creates a new NoAuthnUseCase instance
func NewNoAuthnUseCase(tenantID types.TenantID, subject string) *NoAuthnUseCase {
	return &NoAuthnUseCase{
		tenantID: tenantID,
		subject:  subject,
	}
}

// ValidateToken ignores the token and returns the fixed principal
func (uc *NoAuthnUseCase) ValidateToken(ctx context.Context, raw string) (*model.Principal, error) {
	return &model.Principal{Subject: uc.subject, TenantID: uc.tenantID}, nil
}

// IsNoAuthn returns true for NoAuthnUseCase
func (uc *NoAuthnUseCase) IsNoAuthn() bool {
	return true
}
