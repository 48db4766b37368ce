package types

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// TenantID identifies the owning organization
type TenantID string

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks if the TenantID is valid
func (t TenantID) Validate() error {
	if t == "" {
		return goerr.New("tenant ID cannot be empty")
	}
	if !idPattern.MatchString(string(t)) {
		return goerr.New("tenant ID must be lowercase alphanumeric with hyphens", goerr.V("id", t))
	}
	return nil
}

// String returns the string representation of TenantID
func (t TenantID) String() string {
	return string(t)
}

// AgentID identifies an orchestration agent
type AgentID string

// Validate checks if the AgentID is valid
func (a AgentID) Validate() error {
	if a == "" {
		return goerr.New("agent ID cannot be empty")
	}
	if !idPattern.MatchString(string(a)) {
		return goerr.New("agent ID must be lowercase alphanumeric with hyphens", goerr.V("id", a))
	}
	return nil
}

func (a AgentID) String() string { return string(a) }

// TaskID identifies a task
type TaskID string

func NewTaskID() TaskID         { return TaskID(uuid.Must(uuid.NewV7()).String()) }
func (t TaskID) String() string { return string(t) }

// DecisionID identifies a decision record
type DecisionID string

func NewDecisionID() DecisionID     { return DecisionID(uuid.Must(uuid.NewV7()).String()) }
func (d DecisionID) String() string { return string(d) }

// CredentialID identifies a vault credential
type CredentialID string

func NewCredentialID() CredentialID   { return CredentialID(uuid.Must(uuid.NewV7()).String()) }
func (c CredentialID) String() string { return string(c) }
