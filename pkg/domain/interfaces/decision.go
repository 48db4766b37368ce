package interfaces

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// DecisionRepository defines the interface for Decision data access.
// Decisions are append-only; a decision whose status is final is never rewritten.
type DecisionRepository interface {
	Create(ctx context.Context, decision *model.Decision) error

	Get(ctx context.Context, tenantID types.TenantID, id types.DecisionID) (*model.Decision, error)

	// Update settles a pending decision. Returns model.ErrDecisionImmutable if
	// the stored decision is already final.
	Update(ctx context.Context, decision *model.Decision) error

	// ListByTask returns decisions of a task in creation order
	ListByTask(ctx context.Context, tenantID types.TenantID, taskID types.TaskID) ([]*model.Decision, error)

	// List returns the latest decisions of a tenant, newest first
	List(ctx context.Context, tenantID types.TenantID, limit int) ([]*model.Decision, error)
}

// AgentStatsRepository keeps running decision totals per agent
type AgentStatsRepository interface {
	// Get returns zero-valued stats when the agent has no recorded decisions
	Get(ctx context.Context, tenantID types.TenantID, agentID types.AgentID) (*model.AgentStats, error)

	// Increment atomically adds one decision, counting it as successful if succeeded
	Increment(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, succeeded bool) error
}
