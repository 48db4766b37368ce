package types

import "fmt"

// DecisionType is the kind of operational action a decision proposes.
// Action entries inside a decision reuse the same vocabulary.
type DecisionType string

const (
	DecisionAssignPipeline    DecisionType = "assign-pipeline"
	DecisionCreateEvent       DecisionType = "create-event"
	DecisionUpdateEvent       DecisionType = "update-event"
	DecisionCancelEvent       DecisionType = "cancel-event"
	DecisionSendNotification  DecisionType = "send-notification"
	DecisionTriggerAutomation DecisionType = "trigger-automation"
	DecisionEscalate          DecisionType = "escalate"
	DecisionNoAction          DecisionType = "no-action"
)

// AllDecisionTypes returns all valid decision types
func AllDecisionTypes() []DecisionType {
	return []DecisionType{
		DecisionAssignPipeline,
		DecisionCreateEvent,
		DecisionUpdateEvent,
		DecisionCancelEvent,
		DecisionSendNotification,
		DecisionTriggerAutomation,
		DecisionEscalate,
		DecisionNoAction,
	}
}

// IsValid checks if the decision type is valid
func (d DecisionType) IsValid() bool {
	switch d {
	case DecisionAssignPipeline,
		DecisionCreateEvent,
		DecisionUpdateEvent,
		DecisionCancelEvent,
		DecisionSendNotification,
		DecisionTriggerAutomation,
		DecisionEscalate,
		DecisionNoAction:
		return true
	default:
		return false
	}
}

// IsEventAction reports whether the action commits to the calendar collaborator
func (d DecisionType) IsEventAction() bool {
	return d == DecisionCreateEvent || d == DecisionUpdateEvent || d == DecisionCancelEvent
}

// ConsumesBudget reports whether executing the action counts against the agent rate limit
func (d DecisionType) ConsumesBudget() bool {
	return d != DecisionNoAction && d != DecisionEscalate
}

// String returns the string representation of the decision type
func (d DecisionType) String() string {
	return string(d)
}

// ParseDecisionType parses a string into a DecisionType
func ParseDecisionType(s string) (DecisionType, error) {
	d := DecisionType(s)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid decision type: %s", s)
	}
	return d, nil
}

// DecisionStatus represents the audit status of a decision
type DecisionStatus string

const (
	DecisionStatusPending          DecisionStatus = "pending"
	DecisionStatusExecuted         DecisionStatus = "executed"
	DecisionStatusFailed           DecisionStatus = "failed"
	DecisionStatusRejected         DecisionStatus = "rejected"
	DecisionStatusRequiresApproval DecisionStatus = "requires-approval"
)

// AllDecisionStatuses returns all valid decision statuses
func AllDecisionStatuses() []DecisionStatus {
	return []DecisionStatus{
		DecisionStatusPending,
		DecisionStatusExecuted,
		DecisionStatusFailed,
		DecisionStatusRejected,
		DecisionStatusRequiresApproval,
	}
}

// IsValid checks if the decision status is valid
func (s DecisionStatus) IsValid() bool {
	switch s {
	case DecisionStatusPending,
		DecisionStatusExecuted,
		DecisionStatusFailed,
		DecisionStatusRejected,
		DecisionStatusRequiresApproval:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the decision record is frozen
func (s DecisionStatus) IsFinal() bool {
	switch s {
	case DecisionStatusExecuted, DecisionStatusFailed, DecisionStatusRejected:
		return true
	default:
		return false
	}
}

// String returns the string representation of the decision status
func (s DecisionStatus) String() string {
	return string(s)
}
