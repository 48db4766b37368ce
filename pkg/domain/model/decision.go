package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Decision is an immutable audit record of one classify+act cycle for a task.
// Once Status is final the record is never mutated; corrections are new
// decisions referencing the same task.
type Decision struct {
	ID       types.DecisionID
	AgentID  types.AgentID
	TenantID types.TenantID
	TaskID   types.TaskID
	// SupersedesID points at the decision this one corrects or approves
	SupersedesID types.DecisionID

	Source      types.SourceChannel
	RawInput    string
	Prompt      string
	RawResponse string

	TaskType   types.TaskType
	Entities   map[string]any
	Priority   int
	Confidence float64
	Reasoning  string
	Type       types.DecisionType
	Actions    []Action

	Status    types.DecisionStatus
	ErrorKind types.ErrorKind
	Error     string
	Outcome   ExecutionResult

	Duration   time.Duration
	CreatedAt  time.Time
	ExecutedAt *time.Time
}

// Copy returns a deep copy of the decision
func (d *Decision) Copy() *Decision {
	if d == nil {
		return nil
	}
	c := *d
	c.Entities = copyMap(d.Entities)
	if d.Actions != nil {
		c.Actions = make([]Action, len(d.Actions))
		for i, a := range d.Actions {
			c.Actions[i] = a.Copy()
		}
	}
	c.Outcome = d.Outcome.Copy()
	if d.ExecutedAt != nil {
		t := *d.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}

// Action is one concrete side effect proposed by a decision
type Action struct {
	Type types.DecisionType

	// assign-pipeline
	WorkItemID  string
	TargetStage string

	// create-event / update-event / cancel-event
	Event *EventSpec

	// send-notification
	Notification *NotificationSpec

	// trigger-automation
	Automation *AutomationSpec

	// escalate
	Reason string
}

// Copy returns a deep copy of the action
func (a Action) Copy() Action {
	c := a
	if a.Event != nil {
		e := *a.Event
		if a.Event.Attendees != nil {
			e.Attendees = append([]string(nil), a.Event.Attendees...)
		}
		c.Event = &e
	}
	if a.Notification != nil {
		n := *a.Notification
		n.Data = copyMap(a.Notification.Data)
		c.Notification = &n
	}
	if a.Automation != nil {
		au := *a.Automation
		au.Payload = copyMap(a.Automation.Payload)
		c.Automation = &au
	}
	return c
}

// NotificationSpec describes a message to dispatch
type NotificationSpec struct {
	Channel   types.NotificationChannel
	Template  types.MessageType
	Recipient string
	Data      map[string]any
}

// AutomationSpec describes an external workflow trigger
type AutomationSpec struct {
	Workflow string
	Payload  map[string]any
}

// ExecutionStatus is the linear result of running a decision
type ExecutionStatus string

const (
	ExecutionSucceeded    ExecutionStatus = "succeeded"
	ExecutionFailed       ExecutionStatus = "failed"
	ExecutionPendingRetry ExecutionStatus = "pending-retry"
	ExecutionNeedsInput   ExecutionStatus = "needs-input"
	ExecutionRejected     ExecutionStatus = "rejected"
)

// ExecutionResult summarizes what the executor did for a decision
type ExecutionResult struct {
	Status          ExecutionStatus
	EventRef        string
	SelectedSlot    *Slot
	Candidates      []Slot
	MissingEntities []string
	Deliveries      []Delivery
	Escalated       bool
	// AutomationRefs are acknowledgement ids of triggered workflows
	AutomationRefs []string
	// RetryAt is set when a rate limit deferred execution
	RetryAt time.Time
	// Changed is false when every action was an idempotent no-op
	Changed bool
}

// Copy returns a deep copy of the result
func (r ExecutionResult) Copy() ExecutionResult {
	c := r
	if r.SelectedSlot != nil {
		s := *r.SelectedSlot
		c.SelectedSlot = &s
	}
	if r.Candidates != nil {
		c.Candidates = append([]Slot(nil), r.Candidates...)
	}
	if r.MissingEntities != nil {
		c.MissingEntities = append([]string(nil), r.MissingEntities...)
	}
	if r.Deliveries != nil {
		c.Deliveries = append([]Delivery(nil), r.Deliveries...)
	}
	if r.AutomationRefs != nil {
		c.AutomationRefs = append([]string(nil), r.AutomationRefs...)
	}
	return c
}
