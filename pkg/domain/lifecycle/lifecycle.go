// Package lifecycle implements the task state machine. Every function is a
// pure transformation of a task snapshot; persisting the returned snapshot is
// the caller's responsibility.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// MaxRetries is the number of automatic re-queues before a task settles to FAILED
const MaxRetries = 3

// RetryBaseDelay is the delay before the first automatic retry; it doubles per retry
var RetryBaseDelay = 10 * time.Second

// ErrInvalidTransition is returned when a transition is not on the state graph
var ErrInvalidTransition = errors.New("invalid task transition")

var graph = map[types.TaskStatus][]types.TaskStatus{
	types.TaskStatusPending: {
		types.TaskStatusProcessing,
		types.TaskStatusCancelled,
	},
	types.TaskStatusProcessing: {
		types.TaskStatusAwaitingInput,
		types.TaskStatusScheduled,
		types.TaskStatusCompleted,
		types.TaskStatusFailed,
		types.TaskStatusCancelled,
		// retry re-queue only; always increments RetryCount
		types.TaskStatusPending,
	},
	types.TaskStatusAwaitingInput: {
		types.TaskStatusProcessing,
		types.TaskStatusCancelled,
	},
	types.TaskStatusScheduled: {
		types.TaskStatusCompleted,
		types.TaskStatusCancelled,
	},
}

// CanTransition reports whether from -> to is an edge of the state graph
func CanTransition(from, to types.TaskStatus) bool {
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidatePath checks that recorded transitions form a connected path through
// the graph starting at PENDING.
func ValidatePath(transitions []model.Transition) error {
	current := types.TaskStatusPending
	for i, tr := range transitions {
		if tr.From != current {
			return goerr.Wrap(ErrInvalidTransition, "transition does not start at previous status",
				goerr.V("index", i), goerr.V("expected", current), goerr.V("from", tr.From))
		}
		if !CanTransition(tr.From, tr.To) {
			return goerr.Wrap(ErrInvalidTransition, "transition not on state graph",
				goerr.V("index", i), goerr.V("from", tr.From), goerr.V("to", tr.To))
		}
		current = tr.To
	}
	return nil
}

func transition(t *model.Task, to types.TaskStatus, reason string, now time.Time) (*model.Task, error) {
	if !CanTransition(t.Status, to) {
		return nil, goerr.Wrap(ErrInvalidTransition, "transition not allowed",
			goerr.V(model.TaskIDKey, t.ID), goerr.V("from", t.Status), goerr.V("to", to))
	}
	next := t.Copy()
	next.Transitions = append(next.Transitions, model.Transition{
		From:   t.Status,
		To:     to,
		At:     now,
		Reason: reason,
	})
	next.Status = to
	next.UpdatedAt = now
	if to.IsTerminal() {
		at := now
		next.CompletedAt = &at
	}
	return next, nil
}

// Start claims a PENDING task for processing
func Start(t *model.Task, now time.Time) (*model.Task, error) {
	next, err := transition(t, types.TaskStatusProcessing, "processing started", now)
	if err != nil {
		return nil, err
	}
	if next.ProcessedAt == nil {
		at := now
		next.ProcessedAt = &at
	}
	return next, nil
}

// Advance produces the next snapshot of a PROCESSING task from a settled decision
func Advance(t *model.Task, d *model.Decision, now time.Time) (*model.Task, error) {
	if d == nil {
		return nil, goerr.New("decision is required", goerr.V(model.TaskIDKey, t.ID))
	}
	if t.Status != types.TaskStatusProcessing {
		return nil, goerr.Wrap(ErrInvalidTransition, "task is not processing",
			goerr.V(model.TaskIDKey, t.ID), goerr.V("status", t.Status))
	}

	base := applyClassification(t, d)

	if base.CancelRequested {
		next, err := transition(base, types.TaskStatusCancelled, "cancel requested during processing", now)
		if err != nil {
			return nil, err
		}
		next.CancelRequested = false
		return next, nil
	}

	switch d.Status {
	case types.DecisionStatusExecuted:
		handler := handlerFor(base.Type)
		to, reason := handler.onExecuted(base, d)
		next, err := transition(base, to, reason, now)
		if err != nil {
			return nil, err
		}
		next.EventRef = firstNonEmpty(d.Outcome.EventRef, next.EventRef)
		if d.Outcome.SelectedSlot != nil {
			s := *d.Outcome.SelectedSlot
			next.SelectedSlot = &s
		}
		if to == types.TaskStatusScheduled {
			// due for completion once the event starts
			next.NextAttemptAt = now
			if next.SelectedSlot != nil {
				next.NextAttemptAt = next.SelectedSlot.Start
			}
		}
		if len(d.Outcome.Candidates) > 0 {
			next.SlotCandidates = append([]model.Slot(nil), d.Outcome.Candidates...)
		}
		next.Resolution = firstNonEmpty(d.Reasoning, reason)
		next.Error = ""
		return next, nil

	case types.DecisionStatusRequiresApproval:
		reason := "awaiting approval"
		if len(d.Outcome.MissingEntities) > 0 {
			reason = fmt.Sprintf("missing entities: %v", d.Outcome.MissingEntities)
		} else if d.ErrorKind == types.ErrorKindConflict {
			reason = "scheduling conflict requires clarification"
		}
		next, err := transition(base, types.TaskStatusAwaitingInput, reason, now)
		if err != nil {
			return nil, err
		}
		if len(d.Outcome.Candidates) > 0 {
			next.SlotCandidates = append([]model.Slot(nil), d.Outcome.Candidates...)
		}
		next.Resolution = reason
		return next, nil

	case types.DecisionStatusRejected:
		if d.ErrorKind == types.ErrorKindRateLimit {
			// stays PROCESSING until the rate window resets
			next := base.Copy()
			next.NextAttemptAt = d.Outcome.RetryAt
			next.UpdatedAt = now
			next.Error = d.Error
			return next, nil
		}
		return fail(base, d.Error, now)

	case types.DecisionStatusFailed:
		if d.ErrorKind.IsRetryable() && base.RetryCount < MaxRetries {
			return Requeue(base, d.Error, now)
		}
		return fail(base, d.Error, now)

	default:
		return nil, goerr.Wrap(ErrInvalidTransition, "decision is not settled",
			goerr.V(model.TaskIDKey, t.ID), goerr.V(model.DecisionIDKey, d.ID), goerr.V("decision_status", d.Status))
	}
}

// Requeue sends a PROCESSING task back to PENDING for an automatic retry
func Requeue(t *model.Task, cause string, now time.Time) (*model.Task, error) {
	next, err := transition(t, types.TaskStatusPending, "retry: "+cause, now)
	if err != nil {
		return nil, err
	}
	next.RetryCount++
	next.NextAttemptAt = now.Add(RetryBaseDelay << (next.RetryCount - 1))
	next.Error = cause
	return next, nil
}

func fail(t *model.Task, cause string, now time.Time) (*model.Task, error) {
	next, err := transition(t, types.TaskStatusFailed, "failed", now)
	if err != nil {
		return nil, err
	}
	next.Error = cause
	next.Annotations = append(next.Annotations, cause)
	return next, nil
}

// Resume moves an AWAITING_INPUT task back to PROCESSING once follow-up input
// has been correlated. followUp is appended to the raw content.
func Resume(t *model.Task, followUp string, now time.Time) (*model.Task, error) {
	next, err := transition(t, types.TaskStatusProcessing, "follow-up input correlated", now)
	if err != nil {
		return nil, err
	}
	if followUp != "" {
		next.RawContent = next.RawContent + "\n\n" + followUp
	}
	next.NextAttemptAt = now
	return next, nil
}

// Cancel applies an external cancellation signal. PENDING, AWAITING_INPUT and
// SCHEDULED tasks are cancelled immediately; a PROCESSING task only records the
// request, which Advance honors at the next transition boundary.
func Cancel(t *model.Task, reason string, now time.Time) (*model.Task, error) {
	if t.Status.IsTerminal() {
		return nil, goerr.Wrap(model.ErrTerminalTask, "cannot cancel task",
			goerr.V(model.TaskIDKey, t.ID), goerr.V("status", t.Status))
	}
	if t.Status == types.TaskStatusProcessing {
		next := t.Copy()
		next.CancelRequested = true
		next.UpdatedAt = now
		return next, nil
	}
	if reason == "" {
		reason = "cancelled"
	}
	return transition(t, types.TaskStatusCancelled, reason, now)
}

// SettleCancel honors a cancel request recorded while the task was
// PROCESSING. It is the boundary used when no decision is produced.
func SettleCancel(t *model.Task, now time.Time) (*model.Task, error) {
	if t.Status != types.TaskStatusProcessing || !t.CancelRequested {
		return nil, goerr.Wrap(ErrInvalidTransition, "no pending cancel request",
			goerr.V(model.TaskIDKey, t.ID), goerr.V("status", t.Status))
	}
	next, err := transition(t, types.TaskStatusCancelled, "cancel requested during processing", now)
	if err != nil {
		return nil, err
	}
	next.CancelRequested = false
	return next, nil
}

// Complete settles a SCHEDULED task once its event has started or been confirmed
func Complete(t *model.Task, reason string, now time.Time) (*model.Task, error) {
	if t.Status != types.TaskStatusScheduled {
		return nil, goerr.Wrap(ErrInvalidTransition, "only scheduled tasks can be completed",
			goerr.V(model.TaskIDKey, t.ID), goerr.V("status", t.Status))
	}
	return transition(t, types.TaskStatusCompleted, reason, now)
}

// Annotate appends an error annotation; allowed in any status
func Annotate(t *model.Task, note string, now time.Time) *model.Task {
	next := t.Copy()
	next.Annotations = append(next.Annotations, note)
	next.UpdatedAt = now
	return next
}

func applyClassification(t *model.Task, d *model.Decision) *model.Task {
	next := t.Copy()
	next.LastDecisionID = d.ID
	if d.TaskType.IsValid() {
		next.Type = d.TaskType
	}
	if len(d.Entities) > 0 {
		if next.Entities == nil {
			next.Entities = make(map[string]any, len(d.Entities))
		}
		for k, v := range d.Entities {
			next.Entities[k] = v
		}
	}
	if d.Confidence > 0 {
		next.Confidence = d.Confidence
	}
	if d.Priority >= model.PriorityHighest && d.Priority <= model.PriorityLowest {
		next.Priority = d.Priority
	}
	return next
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
