package interfaces

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// WorkItemRepository defines the interface for pipeline work items
type WorkItemRepository interface {
	Get(ctx context.Context, tenantID types.TenantID, id string) (*model.WorkItem, error)
	Put(ctx context.Context, item *model.WorkItem) error
	List(ctx context.Context, tenantID types.TenantID) ([]*model.WorkItem, error)
}

// EscalationRepository stores human-actionable flags
type EscalationRepository interface {
	Create(ctx context.Context, e *model.Escalation) error
	// List returns escalations newest first. unresolvedOnly hides resolved ones.
	List(ctx context.Context, tenantID types.TenantID, unresolvedOnly bool) ([]*model.Escalation, error)
	Resolve(ctx context.Context, tenantID types.TenantID, id string) error
}
