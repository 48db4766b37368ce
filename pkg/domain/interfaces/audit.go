package interfaces

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// AuditFilter narrows audit log queries
type AuditFilter struct {
	Kind    model.AuditKind
	Subject string
	Limit   int
}

// AuditRepository is an append-only audit log
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry) error

	// List returns entries newest first
	List(ctx context.Context, tenantID types.TenantID, filter AuditFilter) ([]*model.AuditEntry, error)
}
