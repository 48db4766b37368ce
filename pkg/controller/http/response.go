package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/errutil"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.From(ctx).Error("failed to write JSON response", "error", err)
	}
}

// statusOf maps an error to the HTTP status that describes it to a client
func statusOf(err error) int {
	switch {
	case goerr.HasTag(err, model.TagAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrNotApprovable),
		errors.Is(err, model.ErrTerminalTask),
		errors.Is(err, model.ErrStaleTask),
		goerr.HasTag(err, model.TagConflict):
		return http.StatusConflict
	case goerr.HasTag(err, model.TagValidation):
		return http.StatusBadRequest
	case goerr.HasTag(err, model.TagCredential):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusUnauthorized {
		// never explain why authentication failed
		logging.From(ctx).Warn("unauthorized request", "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	errutil.HandleHTTP(ctx, w, err, status)
}

type slotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type transitionResponse struct {
	From   types.TaskStatus `json:"from"`
	To     types.TaskStatus `json:"to"`
	At     time.Time        `json:"at"`
	Reason string           `json:"reason,omitempty"`
}

type taskResponse struct {
	ID              types.TaskID         `json:"id"`
	TenantID        types.TenantID       `json:"tenant_id"`
	UserID          string               `json:"user_id,omitempty"`
	Source          types.SourceChannel  `json:"source"`
	SourceRef       string               `json:"source_ref,omitempty"`
	ThreadRef       string               `json:"thread_ref,omitempty"`
	RawContent      string               `json:"raw_content"`
	Type            types.TaskType       `json:"type,omitempty"`
	Entities        map[string]any       `json:"entities,omitempty"`
	Priority        int                  `json:"priority"`
	Confidence      float64              `json:"confidence"`
	Status          types.TaskStatus     `json:"status"`
	SlotCandidates  []slotResponse       `json:"slot_candidates,omitempty"`
	SelectedSlot    *slotResponse        `json:"selected_slot,omitempty"`
	EventRef        string               `json:"event_ref,omitempty"`
	Resolution      string               `json:"resolution,omitempty"`
	Error           string               `json:"error,omitempty"`
	Annotations     []string             `json:"annotations,omitempty"`
	RetryCount      int                  `json:"retry_count"`
	CancelRequested bool                 `json:"cancel_requested,omitempty"`
	NextAttemptAt   time.Time            `json:"next_attempt_at"`
	LastDecisionID  types.DecisionID     `json:"last_decision_id,omitempty"`
	Transitions     []transitionResponse `json:"transitions,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

func toSlots(slots []model.Slot) []slotResponse {
	if len(slots) == 0 {
		return nil
	}
	out := make([]slotResponse, len(slots))
	for i, s := range slots {
		out[i] = slotResponse{Start: s.Start, End: s.End}
	}
	return out
}

func toTaskResponse(t *model.Task) taskResponse {
	resp := taskResponse{
		ID:              t.ID,
		TenantID:        t.TenantID,
		UserID:          t.UserID,
		Source:          t.Source,
		SourceRef:       t.SourceRef,
		ThreadRef:       t.ThreadRef,
		RawContent:      t.RawContent,
		Type:            t.Type,
		Entities:        t.Entities,
		Priority:        t.Priority,
		Confidence:      t.Confidence,
		Status:          t.Status,
		SlotCandidates:  toSlots(t.SlotCandidates),
		EventRef:        t.EventRef,
		Resolution:      t.Resolution,
		Error:           t.Error,
		Annotations:     t.Annotations,
		RetryCount:      t.RetryCount,
		CancelRequested: t.CancelRequested,
		NextAttemptAt:   t.NextAttemptAt,
		LastDecisionID:  t.LastDecisionID,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
	}
	if t.SelectedSlot != nil {
		resp.SelectedSlot = &slotResponse{Start: t.SelectedSlot.Start, End: t.SelectedSlot.End}
	}
	for _, tr := range t.Transitions {
		resp.Transitions = append(resp.Transitions, transitionResponse{From: tr.From, To: tr.To, At: tr.At, Reason: tr.Reason})
	}
	return resp
}

type decisionResponse struct {
	ID           types.DecisionID     `json:"id"`
	TaskID       types.TaskID         `json:"task_id"`
	AgentID      types.AgentID        `json:"agent_id,omitempty"`
	SupersedesID types.DecisionID     `json:"supersedes_id,omitempty"`
	TaskType     types.TaskType       `json:"task_type,omitempty"`
	Type         types.DecisionType   `json:"type"`
	Actions      []types.DecisionType `json:"actions,omitempty"`
	Confidence   float64              `json:"confidence"`
	Reasoning    string               `json:"reasoning,omitempty"`
	Status       types.DecisionStatus `json:"status"`
	ErrorKind    types.ErrorKind      `json:"error_kind,omitempty"`
	Error        string               `json:"error,omitempty"`
	EventRef     string               `json:"event_ref,omitempty"`
	Candidates   []slotResponse       `json:"candidates,omitempty"`
	Missing      []string             `json:"missing_entities,omitempty"`
	RetryAt      *time.Time           `json:"retry_at,omitempty"`
	DurationMS   int64                `json:"duration_ms"`
	CreatedAt    time.Time            `json:"created_at"`
	ExecutedAt   *time.Time           `json:"executed_at,omitempty"`
}

func toDecisionResponse(d *model.Decision) decisionResponse {
	resp := decisionResponse{
		ID:           d.ID,
		TaskID:       d.TaskID,
		AgentID:      d.AgentID,
		SupersedesID: d.SupersedesID,
		TaskType:     d.TaskType,
		Type:         d.Type,
		Confidence:   d.Confidence,
		Reasoning:    d.Reasoning,
		Status:       d.Status,
		ErrorKind:    d.ErrorKind,
		Error:        d.Error,
		EventRef:     d.Outcome.EventRef,
		Candidates:   toSlots(d.Outcome.Candidates),
		Missing:      d.Outcome.MissingEntities,
		DurationMS:   d.Duration.Milliseconds(),
		CreatedAt:    d.CreatedAt,
		ExecutedAt:   d.ExecutedAt,
	}
	for _, a := range d.Actions {
		resp.Actions = append(resp.Actions, a.Type)
	}
	if !d.Outcome.RetryAt.IsZero() {
		at := d.Outcome.RetryAt
		resp.RetryAt = &at
	}
	return resp
}

type escalationResponse struct {
	ID         string           `json:"id"`
	TaskID     types.TaskID     `json:"task_id,omitempty"`
	DecisionID types.DecisionID `json:"decision_id,omitempty"`
	Reason     string           `json:"reason"`
	Resolved   bool             `json:"resolved"`
	CreatedAt  time.Time        `json:"created_at"`
}

func toEscalationResponse(e *model.Escalation) escalationResponse {
	return escalationResponse{
		ID:         e.ID,
		TaskID:     e.TaskID,
		DecisionID: e.DecisionID,
		Reason:     e.Reason,
		Resolved:   e.Resolved,
		CreatedAt:  e.CreatedAt,
	}
}
