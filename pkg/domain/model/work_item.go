package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// WorkItem is a pipeline item that assign-pipeline actions move between stages
type WorkItem struct {
	ID        string
	TenantID  types.TenantID
	Title     string
	Stage     string
	UpdatedAt time.Time
}

// Escalation is a human-actionable flag raised instead of further automation
type Escalation struct {
	ID         string
	TenantID   types.TenantID
	TaskID     types.TaskID
	DecisionID types.DecisionID
	Reason     string
	Resolved   bool
	CreatedAt  time.Time
}
