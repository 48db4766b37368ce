package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// TaskRepository defines the interface for Task data access
type TaskRepository interface {
	// Create stores a new task. The ID must be set by the caller.
	Create(ctx context.Context, task *model.Task) error

	// Get retrieves a task by ID
	Get(ctx context.Context, tenantID types.TenantID, id types.TaskID) (*model.Task, error)

	// Update replaces a task if its Version matches the stored one and bumps
	// Version on success. A mismatch returns model.ErrStaleTask.
	Update(ctx context.Context, task *model.Task) error

	// List returns tasks of a tenant, newest first. An empty status matches all.
	List(ctx context.Context, tenantID types.TenantID, status types.TaskStatus, limit int) ([]*model.Task, error)

	// ListDue returns tasks across all tenants whose status is one of statuses
	// and whose NextAttemptAt is not after now, oldest first
	ListDue(ctx context.Context, statuses []types.TaskStatus, now time.Time, limit int) ([]*model.Task, error)

	// FindAwaiting returns the AWAITING_INPUT task correlated with a thread,
	// or nil when none exists
	FindAwaiting(ctx context.Context, tenantID types.TenantID, source types.SourceChannel, threadRef string) (*model.Task, error)
}
