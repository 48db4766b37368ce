package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/lifecycle"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// Orchestrator is the governed pipeline of one task transition:
// classify, execute, advance the state machine, persist and tell the requester
type Orchestrator struct {
	repo     interfaces.Repository
	registry *model.AgentRegistry
	engine   *DecisionEngine
	executor *ActionExecutor
	notifier *NotificationDispatcher
	leaseTTL time.Duration
	now      func() time.Time
}

// NewOrchestrator creates a new Orchestrator instance. notifier may be nil.
func NewOrchestrator(repo interfaces.Repository, registry *model.AgentRegistry, engine *DecisionEngine, executor *ActionExecutor, notifier *NotificationDispatcher) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		registry: registry,
		engine:   engine,
		executor: executor,
		notifier: notifier,
		leaseTTL: DefaultLeaseTTL,
		now:      time.Now,
	}
}

// Process runs one transition of a due task. The caller must hold the task lease.
func (o *Orchestrator) Process(ctx context.Context, task *model.Task) (*model.Task, error) {
	ctx = logging.With(ctx, logging.From(ctx).With("task_id", task.ID, "tenant_id", task.TenantID))
	logger := logging.From(ctx)

	switch task.Status {
	case types.TaskStatusPending:
		started, err := lifecycle.Start(task, o.now().UTC())
		if err != nil {
			return nil, err
		}
		if task, err = o.persist(ctx, started); err != nil {
			return nil, err
		}
	case types.TaskStatusProcessing:
		// replay after a rate-limit deferral, a follow-up, an approval or a crashed worker
	default:
		logger.Debug("task is not runnable", "status", task.Status)
		return task, nil
	}

	if task.CancelRequested {
		return o.settleCancel(ctx, task)
	}

	agent, err := o.registry.Get(task.TenantID)
	var decision *model.Decision
	switch {
	case err != nil:
		decision = o.rejected(task, "", goerr.Wrap(err, "no agent configured for tenant", goerr.T(model.TagCapability)))
	case !agent.Active:
		decision = o.rejected(task, agent.ID, goerr.New("agent is inactive", goerr.V("agent_id", agent.ID), goerr.T(model.TagCapability)))
	default:
		decision = o.engine.Classify(ctx, agent, task)
	}

	if err := o.repo.Decision().Create(ctx, decision); err != nil {
		return nil, goerr.Wrap(err, "failed to record decision", goerr.V(model.DecisionIDKey, decision.ID))
	}

	if decision.Status == types.DecisionStatusPending {
		settled, err := o.executor.Execute(ctx, agent, task, decision)
		if err != nil {
			return nil, err
		}
		decision = settled
	} else {
		appendDecisionAudit(ctx, o.repo, decision, o.now())
	}

	return o.conclude(ctx, agent, task, decision)
}

// conclude applies a settled decision to the task and reports it
func (o *Orchestrator) conclude(ctx context.Context, agent *model.OrchestrationAgent, task *model.Task, decision *model.Decision) (*model.Task, error) {
	logger := logging.From(ctx)

	if agent != nil {
		succeeded := decision.Status == types.DecisionStatusExecuted
		if err := o.repo.AgentStats().Increment(ctx, task.TenantID, agent.ID, succeeded); err != nil {
			logger.Error("failed to update agent totals", "error", err, "agent_id", agent.ID)
		}
	}

	next, err := lifecycle.Advance(task, decision, o.now().UTC())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to advance task", goerr.V(model.DecisionIDKey, decision.ID))
	}
	next, err = o.persist(ctx, next)
	if err != nil {
		return nil, err
	}

	logger.Info("task advanced",
		"decision_id", decision.ID,
		"decision_status", decision.Status,
		"from", task.Status,
		"to", next.Status,
	)
	o.auditTransition(ctx, task, next)
	o.notifyRequester(ctx, task, next, decision)
	return next, nil
}

func (o *Orchestrator) settleCancel(ctx context.Context, task *model.Task) (*model.Task, error) {
	next, err := lifecycle.SettleCancel(task, o.now().UTC())
	if err != nil {
		return nil, err
	}
	if next, err = o.persist(ctx, next); err != nil {
		return nil, err
	}
	o.auditTransition(ctx, task, next)
	o.notifyRequester(ctx, task, next, nil)
	return next, nil
}

// CompleteScheduled settles a SCHEDULED task whose event has started
func (o *Orchestrator) CompleteScheduled(ctx context.Context, task *model.Task) (*model.Task, error) {
	next, err := lifecycle.Complete(task, "event start time passed", o.now().UTC())
	if err != nil {
		return nil, err
	}
	if next, err = o.persist(ctx, next); err != nil {
		return nil, err
	}
	o.auditTransition(ctx, task, next)
	o.notifyRequester(ctx, task, next, nil)
	return next, nil
}

// Approve executes the actions of a decision that awaits approval. The
// approved actions run in a new decision that supersedes the original.
// slotIndex selects one of the proposed candidates; -1 keeps the proposal.
func (o *Orchestrator) Approve(ctx context.Context, tenantID types.TenantID, decisionID types.DecisionID, approver string, slotIndex int) (*model.Task, *model.Decision, error) {
	original, err := o.repo.Decision().Get(ctx, tenantID, decisionID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get decision", goerr.V(model.DecisionIDKey, decisionID))
	}
	if original.Status != types.DecisionStatusRequiresApproval {
		return nil, nil, goerr.Wrap(ErrNotApprovable, "decision does not await approval",
			goerr.V(model.DecisionIDKey, decisionID), goerr.V("status", original.Status), goerr.T(model.TagValidation))
	}

	// the approval runs as the only processor of the task
	ctx, lease, err := HoldLease(ctx, o.repo.Lease(), original.TaskID, "approval-"+uuid.NewString(), o.leaseTTL, o.now)
	if err != nil {
		if errors.Is(err, model.ErrLeaseHeld) {
			return nil, nil, goerr.Wrap(err, "task is being processed",
				goerr.V(model.DecisionIDKey, decisionID), goerr.V(model.TaskIDKey, original.TaskID), goerr.T(model.TagConflict))
		}
		return nil, nil, goerr.Wrap(err, "failed to acquire task lease", goerr.V(model.TaskIDKey, original.TaskID))
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			logging.From(ctx).Warn("failed to release task lease", "error", err)
		}
	}()

	task, err := o.repo.Task().Get(ctx, tenantID, original.TaskID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to get task", goerr.V(model.TaskIDKey, original.TaskID))
	}
	if task.Status != types.TaskStatusAwaitingInput || task.LastDecisionID != original.ID {
		return nil, nil, goerr.Wrap(ErrNotApprovable, "decision is no longer the pending one for its task",
			goerr.V(model.DecisionIDKey, decisionID), goerr.V(model.TaskIDKey, task.ID),
			goerr.V("status", task.Status), goerr.T(model.TagValidation))
	}

	agent, err := o.registry.Get(tenantID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "no agent configured for tenant", goerr.T(model.TagCapability))
	}

	now := o.now().UTC()
	approved := original.Copy()
	approved.ID = types.NewDecisionID()
	approved.SupersedesID = original.ID
	approved.Status = types.DecisionStatusPending
	approved.ErrorKind = types.ErrorKindNone
	approved.Error = ""
	approved.Outcome = model.ExecutionResult{}
	approved.CreatedAt = now
	approved.ExecutedAt = nil
	approved.Duration = 0
	approved.Reasoning = firstNonEmpty(original.Reasoning, "approved") + " (approved by " + approver + ")"

	if slotIndex >= 0 {
		candidates := original.Outcome.Candidates
		if len(candidates) == 0 {
			candidates = task.SlotCandidates
		}
		if slotIndex >= len(candidates) {
			return nil, nil, goerr.New("slot index out of range",
				goerr.V("slot_index", slotIndex), goerr.V("candidates", len(candidates)), goerr.T(model.TagValidation))
		}
		slot := candidates[slotIndex]
		for i := range approved.Actions {
			if ev := approved.Actions[i].Event; ev != nil && approved.Actions[i].Type != types.DecisionCancelEvent {
				ev.Start, ev.End = slot.Start, slot.End
			}
		}
	}

	resumed, err := lifecycle.Resume(task, "", now)
	if err != nil {
		return nil, nil, err
	}
	// not due for the workers while the approved actions run; a crashed
	// approval is picked up again once its lease has expired
	resumed.NextAttemptAt = now.Add(o.leaseTTL)
	if resumed, err = o.persist(ctx, resumed); err != nil {
		return nil, nil, err
	}
	o.auditTransition(ctx, task, resumed)

	if err := o.repo.Decision().Create(ctx, approved); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to record approved decision", goerr.V(model.DecisionIDKey, approved.ID))
	}
	settled, err := o.executor.Execute(ctx, agent, resumed, approved)
	if err != nil {
		return nil, nil, err
	}

	next, err := o.conclude(ctx, agent, resumed, settled)
	if err != nil {
		return nil, nil, err
	}
	return next, settled, nil
}

func (o *Orchestrator) rejected(task *model.Task, agentID types.AgentID, err error) *model.Decision {
	now := o.now().UTC()
	return &model.Decision{
		ID:        types.NewDecisionID(),
		AgentID:   agentID,
		TenantID:  task.TenantID,
		TaskID:    task.ID,
		Source:    task.Source,
		RawInput:  task.RawContent,
		Type:      types.DecisionNoAction,
		Status:    types.DecisionStatusRejected,
		ErrorKind: model.ErrorKindOf(err),
		Error:     err.Error(),
		Outcome:   model.ExecutionResult{Status: model.ExecutionRejected},
		CreatedAt: now,
	}
}

// persist writes a snapshot. When a concurrent writer won, a cancel request
// it recorded is merged and the write retried once.
func (o *Orchestrator) persist(ctx context.Context, next *model.Task) (*model.Task, error) {
	err := o.repo.Task().Update(ctx, next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, model.ErrStaleTask) {
		return nil, goerr.Wrap(err, "failed to persist task", goerr.V(model.TaskIDKey, next.ID))
	}

	current, err := o.repo.Task().Get(ctx, next.TenantID, next.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reload task", goerr.V(model.TaskIDKey, next.ID))
	}
	if current.Status.IsTerminal() {
		return current, goerr.Wrap(ErrTaskSettled, "task settled by another writer",
			goerr.V(model.TaskIDKey, next.ID), goerr.V("status", current.Status))
	}

	merged := next.Copy()
	merged.Version = current.Version
	if current.CancelRequested && !merged.Status.IsTerminal() {
		if merged.Status == types.TaskStatusProcessing {
			merged.CancelRequested = true
		} else if merged, err = lifecycle.Cancel(merged, "cancelled", o.now().UTC()); err != nil {
			return nil, err
		}
	}

	if err := o.repo.Task().Update(ctx, merged); err != nil {
		return nil, goerr.Wrap(err, "failed to persist task after reload", goerr.V(model.TaskIDKey, next.ID))
	}
	return merged, nil
}

func (o *Orchestrator) auditTransition(ctx context.Context, prev, next *model.Task) {
	if prev.Status == next.Status {
		return
	}
	entry := newAuditEntry(next.TenantID, model.AuditTransition, string(next.ID),
		string(prev.Status)+" -> "+string(next.Status), o.now())
	entry.Attributes = map[string]string{
		"from":        string(prev.Status),
		"to":          string(next.Status),
		"retry_count": strconv.Itoa(next.RetryCount),
	}
	if err := o.repo.Audit().Append(ctx, entry); err != nil {
		logging.From(ctx).Error("failed to append transition audit entry", "error", err)
	}
}

// notifyRequester reports the outcome on the channel the task came from.
// These replies are not actions and never consume rate budget.
func (o *Orchestrator) notifyRequester(ctx context.Context, prev, next *model.Task, d *model.Decision) {
	if o.notifier == nil || next.Reply.IsZero() || prev.Status == next.Status {
		return
	}

	data := map[string]any{NotifyKeyTaskID: string(next.ID)}
	if next.Reply.Thread != "" {
		data[NotifyKeyThread] = next.Reply.Thread
	}
	if title := next.EntityString(model.EntityTitle); title != "" {
		data[NotifyKeyTitle] = title
	}

	var msgType types.MessageType
	switch next.Status {
	case types.TaskStatusAwaitingInput:
		msgType = types.MessageClarification
		data[NotifyKeyMessage] = next.Resolution
		if len(next.SlotCandidates) > 0 {
			data[NotifyKeyMessage] = next.Resolution + ". Available: " + formatSlots(next.SlotCandidates)
		}
	case types.TaskStatusScheduled:
		msgType = types.MessageConfirmation
		if next.SelectedSlot != nil {
			data[NotifyKeyStart] = next.SelectedSlot.Start.Format(time.RFC1123)
		}
	case types.TaskStatusFailed:
		msgType = types.MessageError
		data[NotifyKeyMessage] = next.Error
	case types.TaskStatusCancelled:
		msgType = types.MessageCancellation
	case types.TaskStatusCompleted:
		msgType = types.MessageInfo
		data[NotifyKeyMessage] = next.Resolution
	default:
		return
	}
	if d != nil && d.Reasoning != "" && next.Status == types.TaskStatusCompleted {
		data[NotifyKeyMessage] = d.Reasoning
	}

	delivery := o.notifier.Send(ctx, next.TenantID, next.Reply.Channel, msgType, next.Reply.Recipient, data)
	if !delivery.OK() {
		logging.From(ctx).Warn("requester notification not delivered",
			"channel", delivery.Channel, "status", delivery.Status, "error", delivery.Error)
	}
}

func formatSlots(slots []model.Slot) string {
	out := ""
	for i, s := range slots {
		if i > 0 {
			out += ", "
		}
		out += strconv.Itoa(i) + ") " + s.Start.Format(time.RFC1123)
	}
	return out
}

func newAuditEntry(tenantID types.TenantID, kind model.AuditKind, subject, message string, at time.Time) *model.AuditEntry {
	return &model.AuditEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		Kind:      kind,
		Subject:   subject,
		Message:   message,
		CreatedAt: at.UTC(),
	}
}
