package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/resolver"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// DefaultActionTimeout bounds one action handler
const DefaultActionTimeout = 30 * time.Second

// DefaultSearchHorizon is how far ahead slots are searched when the agent does not say
const DefaultSearchHorizon = 7 * 24 * time.Hour

type actionHandler func(ctx context.Context, run *executionRun, action model.Action) error

// ActionExecutor performs the side effects of a pending decision and settles
// it with exactly one write, whatever happens during execution
type ActionExecutor struct {
	repo       interfaces.Repository
	vault      *VaultUseCase
	notifier   *NotificationDispatcher
	calendar   interfaces.CalendarClient
	automation interfaces.AutomationTrigger
	resolver   *resolver.Resolver
	timeout    time.Duration
	handlers   map[types.DecisionType]actionHandler
	now        func() time.Time
}

// ExecutorOption configures an ActionExecutor
type ExecutorOption func(*ActionExecutor)

func WithCalendar(c interfaces.CalendarClient) ExecutorOption {
	return func(e *ActionExecutor) { e.calendar = c }
}

func WithAutomation(a interfaces.AutomationTrigger) ExecutorOption {
	return func(e *ActionExecutor) { e.automation = a }
}

func WithResolver(r *resolver.Resolver) ExecutorOption {
	return func(e *ActionExecutor) { e.resolver = r }
}

func WithActionTimeout(d time.Duration) ExecutorOption {
	return func(e *ActionExecutor) { e.timeout = d }
}

// NewActionExecutor creates a new ActionExecutor instance
func NewActionExecutor(repo interfaces.Repository, vault *VaultUseCase, notifier *NotificationDispatcher, opts ...ExecutorOption) *ActionExecutor {
	e := &ActionExecutor{
		repo:     repo,
		vault:    vault,
		notifier: notifier,
		resolver: resolver.New(),
		timeout:  DefaultActionTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.handlers = map[types.DecisionType]actionHandler{
		types.DecisionAssignPipeline:    e.assignPipeline,
		types.DecisionCreateEvent:       e.commitEvent,
		types.DecisionUpdateEvent:       e.commitEvent,
		types.DecisionCancelEvent:       e.cancelEvent,
		types.DecisionSendNotification:  e.sendNotification,
		types.DecisionTriggerAutomation: e.triggerAutomation,
		types.DecisionEscalate:          e.escalate,
		types.DecisionNoAction:          func(context.Context, *executionRun, model.Action) error { return nil },
	}
	return e
}

type executionRun struct {
	agent    *model.OrchestrationAgent
	task     *model.Task
	decision *model.Decision
	result   *model.ExecutionResult
}

// Execute runs the actions of a pending decision in order and returns the
// settled decision. The returned error is only about persisting the outcome;
// action failures are recorded on the decision itself.
func (e *ActionExecutor) Execute(ctx context.Context, agent *model.OrchestrationAgent, task *model.Task, decision *model.Decision) (settled *model.Decision, err error) {
	if decision.Status != types.DecisionStatusPending {
		return nil, goerr.New("only pending decisions can be executed",
			goerr.V(model.DecisionIDKey, decision.ID), goerr.V("status", decision.Status), goerr.T(model.TagValidation))
	}

	d := decision.Copy()
	d.Outcome = model.ExecutionResult{}
	run := &executionRun{agent: agent, task: task, decision: d, result: &d.Outcome}
	started := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.settle(d, goerr.New("panic during execution", goerr.V("panic", fmt.Sprint(r)), goerr.T(model.TagPermanent)))
		}
		d.Duration = e.now().Sub(started)
		executedAt := e.now().UTC()
		d.ExecutedAt = &executedAt

		// the outcome is recorded even when the caller is shutting down
		writeCtx := context.WithoutCancel(ctx)
		if updateErr := e.repo.Decision().Update(writeCtx, d); updateErr != nil {
			err = goerr.Wrap(updateErr, "failed to record decision outcome", goerr.V(model.DecisionIDKey, d.ID))
			return
		}
		appendDecisionAudit(writeCtx, e.repo, d, e.now())
		settled = d
	}()

	e.settle(d, e.run(ctx, run))
	return d, nil
}

func (e *ActionExecutor) run(ctx context.Context, run *executionRun) error {
	agent, d := run.agent, run.decision

	if !agent.Active {
		return goerr.New("agent is inactive", goerr.V("agent_id", agent.ID), goerr.T(model.TagCapability))
	}

	units := 0
	for _, a := range d.Actions {
		if !agent.Capabilities.Allows(a.Type) {
			return goerr.New("capability disabled for action",
				goerr.V("action", a.Type), goerr.V("agent_id", agent.ID), goerr.T(model.TagCapability))
		}
		if a.Type.ConsumesBudget() {
			units++
		}
	}

	if windows := agent.RateLimits.Windows(); units > 0 && len(windows) > 0 {
		ok, retryAt, err := e.repo.RateCounter().Consume(ctx, agent.TenantID, agent.ID, windows, units, e.now())
		if err != nil {
			return goerr.Wrap(err, "failed to consume rate budget", goerr.T(model.TagTransient))
		}
		if !ok {
			run.result.RetryAt = retryAt
			return goerr.New("rate limit exceeded",
				goerr.V("agent_id", agent.ID), goerr.V("retry_at", retryAt), goerr.T(model.TagRateLimit))
		}
	}

	for i, action := range d.Actions {
		if err := e.runAction(ctx, run, action); err != nil {
			return goerr.Wrap(err, "action failed", goerr.V("index", i), goerr.V("action", action.Type))
		}
	}
	return nil
}

func (e *ActionExecutor) runAction(ctx context.Context, run *executionRun, action model.Action) (err error) {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return goerr.New("unsupported action type", goerr.V("action", action.Type), goerr.T(model.TagPermanent))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("action handler panicked",
				goerr.V("action", action.Type), goerr.V("panic", fmt.Sprint(r)), goerr.T(model.TagPermanent))
		}
	}()

	if err := handler(ctx, run, action); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !goerr.HasTag(err, model.TagTransient) {
			return goerr.Wrap(err, "action timed out", goerr.T(model.TagTransient))
		}
		return err
	}
	return nil
}

// settle maps the execution error onto the decision status
func (e *ActionExecutor) settle(d *model.Decision, err error) {
	if err == nil {
		d.Status = types.DecisionStatusExecuted
		d.ErrorKind = types.ErrorKindNone
		d.Error = ""
		d.Outcome.Status = model.ExecutionSucceeded
		return
	}

	d.ErrorKind = model.ErrorKindOf(err)
	d.Error = err.Error()
	switch d.ErrorKind {
	case types.ErrorKindCapability:
		d.Status = types.DecisionStatusRejected
		d.Outcome.Status = model.ExecutionRejected
	case types.ErrorKindRateLimit:
		d.Status = types.DecisionStatusRejected
		d.Outcome.Status = model.ExecutionPendingRetry
	case types.ErrorKindConflict:
		// never moved silently; the requester must pick a candidate
		d.Status = types.DecisionStatusRequiresApproval
		d.Outcome.Status = model.ExecutionNeedsInput
	default:
		d.Status = types.DecisionStatusFailed
		d.Outcome.Status = model.ExecutionFailed
		if d.ErrorKind.IsRetryable() {
			d.Outcome.Status = model.ExecutionPendingRetry
		}
	}
}

// appendDecisionAudit records a settled decision in the audit log; failures are logged only
func appendDecisionAudit(ctx context.Context, repo interfaces.Repository, d *model.Decision, at time.Time) {
	entry := &model.AuditEntry{
		ID:       uuid.Must(uuid.NewV7()).String(),
		TenantID: d.TenantID,
		Kind:     model.AuditDecision,
		Subject:  string(d.ID),
		Message:  "decision " + string(d.Status),
		Attributes: map[string]string{
			"task_id":     string(d.TaskID),
			"agent_id":    string(d.AgentID),
			"type":        string(d.Type),
			"status":      string(d.Status),
			"duration_ms": strconv.FormatInt(d.Duration.Milliseconds(), 10),
		},
		CreatedAt: at.UTC(),
	}
	if d.Error != "" {
		entry.Attributes["error"] = d.Error
		entry.Attributes["error_kind"] = string(d.ErrorKind)
	}
	if d.SupersedesID != "" {
		entry.Attributes["supersedes"] = string(d.SupersedesID)
	}
	if err := repo.Audit().Append(ctx, entry); err != nil {
		logging.From(ctx).Error("failed to append decision audit entry",
			"error", err, "decision_id", d.ID)
	}
}

func (e *ActionExecutor) assignPipeline(ctx context.Context, run *executionRun, action model.Action) error {
	tenantID := run.task.TenantID
	item, err := e.repo.WorkItem().Get(ctx, tenantID, action.WorkItemID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return goerr.Wrap(err, "work item not found",
				goerr.V("work_item_id", action.WorkItemID), goerr.T(model.TagValidation))
		}
		return goerr.Wrap(err, "failed to get work item", goerr.V("work_item_id", action.WorkItemID))
	}

	if item.Stage == action.TargetStage {
		logging.From(ctx).Debug("work item already in target stage",
			"work_item_id", item.ID, "stage", item.Stage)
		return nil
	}

	item.Stage = action.TargetStage
	item.UpdatedAt = e.now().UTC()
	if err := e.repo.WorkItem().Put(ctx, item); err != nil {
		return goerr.Wrap(err, "failed to move work item", goerr.V("work_item_id", item.ID))
	}
	run.result.Changed = true
	return nil
}

func (e *ActionExecutor) calendarSecret(ctx context.Context, run *executionRun, assignee, purpose string) (model.SecretPayload, error) {
	if e.calendar == nil {
		return nil, goerr.New("calendar is not configured", goerr.T(model.TagChannelUnavailable))
	}
	if e.vault == nil {
		e.raiseEscalation(ctx, run, "credential vault is not configured")
		return nil, goerr.New("credential vault is not configured", goerr.T(model.TagCredential))
	}
	secret, err := e.vault.Use(ctx, assignee, run.agent.Calendar.CredentialProvider, model.CredentialRequest{
		TenantID: run.task.TenantID,
		UserID:   run.task.UserID,
		Purpose:  purpose,
	})
	if err != nil {
		e.raiseEscalation(ctx, run, "calendar credential unavailable for "+assignee+": "+err.Error())
		return nil, err
	}
	return secret, nil
}

// commitEvent creates or moves an event. A requested time that conflicts is
// never moved silently: the ranked alternatives are returned for approval.
func (e *ActionExecutor) commitEvent(ctx context.Context, run *executionRun, action model.Action) error {
	if action.Event == nil {
		return goerr.New("event action has no event", goerr.T(model.TagValidation))
	}
	spec := *action.Event
	settings := run.agent.Calendar

	secret, err := e.calendarSecret(ctx, run, spec.AssigneeID, string(action.Type))
	if err != nil {
		return err
	}

	duration := spec.End.Sub(spec.Start)
	if spec.Start.IsZero() || duration <= 0 {
		duration = settings.DefaultDuration
		if duration <= 0 {
			duration = DefaultEventDuration
		}
	}
	buffer := settings.BufferFor(spec.AssigneeID)
	horizon := settings.SearchHorizon
	if horizon <= 0 {
		horizon = DefaultSearchHorizon
	}

	earliest := e.now().UTC()
	if !spec.Start.IsZero() && spec.Start.After(earliest) {
		earliest = spec.Start
	}
	window := model.Window{Start: earliest.Add(-buffer), End: earliest.Add(horizon + buffer)}
	if !spec.Start.IsZero() && spec.Start.Before(window.Start) {
		window.Start = spec.Start.Add(-buffer)
	}

	events, err := e.calendar.ListEvents(ctx, secret, spec.AssigneeID, window)
	if err != nil {
		return goerr.Wrap(err, "failed to list calendar events", goerr.V("assignee", spec.AssigneeID))
	}
	events = excludeEvent(events, spec.Ref)

	constraints := resolver.Constraints{
		AssigneeID: spec.AssigneeID,
		Duration:   duration,
		Earliest:   earliest,
		Buffer:     buffer,
	}
	search := model.Window{Start: earliest, End: earliest.Add(horizon)}

	var slot model.Slot
	if !spec.Start.IsZero() {
		slot = model.Slot{Start: spec.Start, End: spec.Start.Add(duration)}
		if resolver.HasConflict(slot.Window(), events, spec.AssigneeID, buffer) {
			run.result.Candidates = e.resolver.FindSlots(search, events, constraints)
			return goerr.New("requested time conflicts with an existing event",
				goerr.V("start", slot.Start), goerr.V("assignee", spec.AssigneeID), goerr.T(model.TagConflict))
		}
	} else {
		slots := e.resolver.FindSlots(search, events, constraints)
		if len(slots) == 0 {
			return goerr.New("no free slot in search horizon",
				goerr.V("assignee", spec.AssigneeID), goerr.V("horizon", horizon), goerr.T(model.TagConflict))
		}
		slot = slots[0]
		run.result.Candidates = slots
	}

	// resolve-then-verify: re-read just before committing
	latest, err := e.calendar.ListEvents(ctx, secret, spec.AssigneeID,
		model.Window{Start: slot.Start.Add(-buffer), End: slot.End.Add(buffer)})
	if err != nil {
		return goerr.Wrap(err, "failed to re-check calendar", goerr.V("assignee", spec.AssigneeID))
	}
	latest = excludeEvent(latest, spec.Ref)
	if resolver.HasConflict(slot.Window(), latest, spec.AssigneeID, buffer) {
		refreshed, err := e.calendar.ListEvents(ctx, secret, spec.AssigneeID, window)
		if err == nil {
			run.result.Candidates = e.resolver.FindSlots(search, excludeEvent(refreshed, spec.Ref), constraints)
		}
		return goerr.New("slot was taken before commit",
			goerr.V("start", slot.Start), goerr.V("assignee", spec.AssigneeID), goerr.T(model.TagConflict))
	}

	spec.Start, spec.End = slot.Start, slot.End
	ref, err := e.calendar.CreateEvent(ctx, secret, spec)
	if err != nil {
		return goerr.Wrap(err, "failed to commit event", goerr.V("assignee", spec.AssigneeID))
	}

	run.result.EventRef = ref
	run.result.SelectedSlot = &slot
	run.result.Changed = true
	return nil
}

func (e *ActionExecutor) cancelEvent(ctx context.Context, run *executionRun, action model.Action) error {
	if action.Event == nil || action.Event.Ref == "" {
		return goerr.New("cancel-event requires an event reference", goerr.T(model.TagValidation))
	}
	secret, err := e.calendarSecret(ctx, run, action.Event.AssigneeID, string(action.Type))
	if err != nil {
		return err
	}
	if err := e.calendar.CancelEvent(ctx, secret, action.Event.Ref); err != nil {
		return goerr.Wrap(err, "failed to cancel event", goerr.V("ref", action.Event.Ref))
	}
	run.result.EventRef = action.Event.Ref
	run.result.Changed = true
	return nil
}

func (e *ActionExecutor) sendNotification(ctx context.Context, run *executionRun, action model.Action) error {
	spec := action.Notification
	if spec == nil {
		return goerr.New("send-notification has no message", goerr.T(model.TagValidation))
	}
	if e.notifier == nil {
		return goerr.New("notification dispatcher is not configured", goerr.T(model.TagChannelUnavailable))
	}

	delivery := e.notifier.Send(ctx, run.task.TenantID, spec.Channel, spec.Template, spec.Recipient, spec.Data)
	run.result.Deliveries = append(run.result.Deliveries, *delivery)

	switch delivery.Status {
	case types.DeliveryDelivered:
		run.result.Changed = true
		return nil
	case types.DeliveryChannelUnavailable:
		logging.From(ctx).Warn("notification skipped, channel unavailable",
			"task_id", run.task.ID, "channel", spec.Channel)
		return nil
	default:
		// retries are exhausted in the dispatcher; re-running would duplicate earlier side effects
		return goerr.New("notification delivery failed",
			goerr.V("channel", spec.Channel), goerr.V("error", delivery.Error), goerr.T(model.TagPermanent))
	}
}

func (e *ActionExecutor) triggerAutomation(ctx context.Context, run *executionRun, action model.Action) error {
	if action.Automation == nil {
		return goerr.New("trigger-automation has no workflow", goerr.T(model.TagValidation))
	}
	if e.automation == nil {
		return goerr.New("automation endpoint is not configured", goerr.T(model.TagChannelUnavailable))
	}
	ref, err := e.automation.Trigger(ctx, run.task.TenantID, *action.Automation)
	if err != nil {
		return goerr.Wrap(err, "failed to trigger automation", goerr.V("workflow", action.Automation.Workflow))
	}
	run.result.AutomationRefs = append(run.result.AutomationRefs, ref)
	run.result.Changed = true
	return nil
}

func (e *ActionExecutor) escalate(ctx context.Context, run *executionRun, action model.Action) error {
	if err := e.createEscalation(ctx, run, action.Reason); err != nil {
		return err
	}
	run.result.Changed = true
	return nil
}

// raiseEscalation flags a failure for humans; the original error stays the one reported
func (e *ActionExecutor) raiseEscalation(ctx context.Context, run *executionRun, reason string) {
	if err := e.createEscalation(ctx, run, reason); err != nil {
		logging.From(ctx).Error("failed to raise escalation", "error", err, "task_id", run.task.ID)
	}
}

func (e *ActionExecutor) createEscalation(ctx context.Context, run *executionRun, reason string) error {
	esc := &model.Escalation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   run.task.TenantID,
		TaskID:     run.task.ID,
		DecisionID: run.decision.ID,
		Reason:     reason,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.repo.Escalation().Create(ctx, esc); err != nil {
		return goerr.Wrap(err, "failed to create escalation", goerr.V(model.TaskIDKey, run.task.ID))
	}
	run.result.Escalated = true
	return nil
}

func excludeEvent(events []model.Event, ref string) []model.Event {
	if ref == "" {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Ref != ref {
			out = append(out, ev)
		}
	}
	return out
}
