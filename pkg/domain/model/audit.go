package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// AuditKind classifies an audit entry
type AuditKind string

const (
	AuditDecision      AuditKind = "decision"
	AuditCredentialUse AuditKind = "credential-use"
	AuditCredential    AuditKind = "credential"
	AuditTransition    AuditKind = "transition"
	AuditSecurity      AuditKind = "security"
)

// AuditEntry is one append-only audit log record
type AuditEntry struct {
	ID         string            `json:"id"`
	TenantID   types.TenantID    `json:"tenant_id"`
	Kind       AuditKind         `json:"kind"`
	Subject    string            `json:"subject"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
