package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// LeaseRepository grants exclusive processing rights on a task
type LeaseRepository interface {
	// Acquire takes the lease if it is free, expired, or already held by holder.
	// Returns model.ErrLeaseHeld when another holder owns a live lease.
	Acquire(ctx context.Context, taskID types.TaskID, holder string, ttl time.Duration, now time.Time) error

	// Release drops the lease if held by holder
	Release(ctx context.Context, taskID types.TaskID, holder string) error
}

// RateCounterRepository counts consumed action units per agent and window
type RateCounterRepository interface {
	// Consume atomically charges units against every window. If any window
	// would exceed its limit nothing is charged, ok is false, and retryAt is
	// the time by which every blocking window has reset.
	Consume(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, windows []model.RateWindow, units int, now time.Time) (ok bool, retryAt time.Time, err error)
}
