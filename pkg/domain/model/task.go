package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Priority bounds. Lower value is more urgent.
const (
	PriorityHighest = 1
	PriorityDefault = 3
	PriorityLowest  = 5
)

// Task is one unit of agent-managed work derived from an external trigger
type Task struct {
	ID        types.TaskID
	TenantID  types.TenantID
	UserID    string
	Source    types.SourceChannel
	SourceRef string
	// ThreadRef correlates follow-up input (email In-Reply-To, Slack thread_ts, SMS sender)
	ThreadRef  string
	RawContent string

	Type       types.TaskType
	Entities   map[string]any
	Priority   int
	Confidence float64
	Status     types.TaskStatus

	SlotCandidates []Slot
	SelectedSlot   *Slot
	EventRef       string

	Resolution string
	Error      string
	// Annotations is append-only and the only field that may change after a terminal status
	Annotations []string

	ClassifierMetadata map[string]any
	RetryCount         int
	CancelRequested    bool
	// NextAttemptAt is when the task is next due: a retry, a deferred replay,
	// or the start of a scheduled event
	NextAttemptAt  time.Time
	LastDecisionID types.DecisionID

	Reply       ReplyRoute
	Transitions []Transition

	// Version guards concurrent writers; repositories reject stale updates
	Version int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
	CompletedAt *time.Time
}

// Transition records one state change of a task
type Transition struct {
	From   types.TaskStatus
	To     types.TaskStatus
	At     time.Time
	Reason string
}

// ReplyRoute is where requester-facing notifications for a task are sent
type ReplyRoute struct {
	Channel   types.NotificationChannel
	Recipient string
	Thread    string
}

// IsZero reports whether no reply route is known
func (r ReplyRoute) IsZero() bool {
	return r.Channel == "" || r.Recipient == ""
}

// Copy returns a deep copy of the task so snapshots never share mutable state
func (t *Task) Copy() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Entities = copyMap(t.Entities)
	c.ClassifierMetadata = copyMap(t.ClassifierMetadata)
	if t.SlotCandidates != nil {
		c.SlotCandidates = make([]Slot, len(t.SlotCandidates))
		copy(c.SlotCandidates, t.SlotCandidates)
	}
	if t.SelectedSlot != nil {
		s := *t.SelectedSlot
		c.SelectedSlot = &s
	}
	if t.Annotations != nil {
		c.Annotations = make([]string, len(t.Annotations))
		copy(c.Annotations, t.Annotations)
	}
	if t.Transitions != nil {
		c.Transitions = make([]Transition, len(t.Transitions))
		copy(c.Transitions, t.Transitions)
	}
	if t.ProcessedAt != nil {
		p := *t.ProcessedAt
		c.ProcessedAt = &p
	}
	if t.CompletedAt != nil {
		p := *t.CompletedAt
		c.CompletedAt = &p
	}
	return &c
}

// EntityString returns a string entity or empty when absent
func (t *Task) EntityString(key string) string {
	if t.Entities == nil {
		return ""
	}
	if v, ok := t.Entities[key].(string); ok {
		return v
	}
	return ""
}

// HasEntity reports whether the entity is present and non-empty
func (t *Task) HasEntity(key string) bool {
	if t.Entities == nil {
		return false
	}
	v, ok := t.Entities[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Entity keys produced by the classifier
const (
	EntityRequestedTime   = "requested_time"
	EntityDurationMinutes = "duration_minutes"
	EntityAssignee        = "assignee"
	EntityAttendees       = "attendees"
	EntityTitle           = "title"
	EntityEventRef        = "event_ref"
	EntityWorkItemID      = "work_item_id"
	EntityTargetStage     = "target_stage"
)

// NewTaskRequest is the canonical output of every channel adapter
type NewTaskRequest struct {
	TenantID   types.TenantID
	UserID     string
	Source     types.SourceChannel
	SourceRef  string
	ThreadRef  string
	RawContent string
	Priority   int
	Reply      ReplyRoute
	// Unverified is set when a signed channel was accepted without a configured secret
	Unverified bool
}

// RawInput is an unparsed payload received on a channel
type RawInput struct {
	TenantID types.TenantID
	Body     []byte
	// Signature is the raw X-Webhook-Signature header, if any
	Signature   string
	ContentType string
}
