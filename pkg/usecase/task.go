package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/lifecycle"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

const maxWriteAttempts = 3

// TaskUseCase is the entry point for inbound input and the task admin API
type TaskUseCase struct {
	repo         interfaces.Repository
	normalizer   *Normalizer
	orchestrator *Orchestrator
	now          func() time.Time
}

// NewTaskUseCase creates a new TaskUseCase instance
func NewTaskUseCase(repo interfaces.Repository, normalizer *Normalizer, orchestrator *Orchestrator) *TaskUseCase {
	return &TaskUseCase{
		repo:         repo,
		normalizer:   normalizer,
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

// Ingest normalizes a raw payload and submits it. Authentication failures
// are written to the audit log as security events.
func (uc *TaskUseCase) Ingest(ctx context.Context, channel types.SourceChannel, raw model.RawInput) (*model.Task, error) {
	req, err := uc.normalizer.Normalize(ctx, channel, raw)
	if err != nil {
		if goerr.HasTag(err, model.TagAuthentication) {
			logging.From(ctx).Warn("rejected unauthenticated input",
				"channel", channel, "tenant_id", raw.TenantID, "error", err)
			uc.securityAudit(ctx, raw.TenantID, string(channel), "authentication failed", map[string]string{
				"channel": string(channel),
				"reason":  err.Error(),
			})
		}
		return nil, err
	}
	return uc.Submit(ctx, req)
}

// Submit creates a PENDING task, or resumes the AWAITING_INPUT task that the
// request's thread correlates with
func (uc *TaskUseCase) Submit(ctx context.Context, req *model.NewTaskRequest) (*model.Task, error) {
	if err := req.TenantID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid tenant", goerr.T(model.TagValidation))
	}
	if !req.Source.IsValid() {
		return nil, goerr.New("invalid source channel", goerr.V("source", req.Source), goerr.T(model.TagValidation))
	}
	if strings.TrimSpace(req.RawContent) == "" {
		return nil, goerr.New("content is required", goerr.T(model.TagValidation))
	}

	if req.Unverified {
		logging.From(ctx).Warn("accepted unsigned input", "tenant_id", req.TenantID, "source", req.Source)
		uc.securityAudit(ctx, req.TenantID, req.SourceRef, "accepted unsigned input", map[string]string{
			"channel": string(req.Source),
		})
	}

	if req.ThreadRef != "" {
		resumed, err := uc.resume(ctx, req)
		if err != nil {
			return nil, err
		}
		if resumed != nil {
			return resumed, nil
		}
	}

	now := uc.now().UTC()
	task := &model.Task{
		ID:            types.NewTaskID(),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		Source:        req.Source,
		SourceRef:     req.SourceRef,
		ThreadRef:     req.ThreadRef,
		RawContent:    req.RawContent,
		Priority:      req.Priority,
		Status:        types.TaskStatusPending,
		Reply:         req.Reply,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if task.Priority == 0 {
		task.Priority = model.PriorityDefault
	}

	if err := uc.repo.Task().Create(ctx, task); err != nil {
		return nil, goerr.Wrap(err, "failed to create task", goerr.V(model.TenantIDKey, req.TenantID))
	}
	logging.From(ctx).Info("task created",
		"task_id", task.ID, "tenant_id", task.TenantID, "source", task.Source)
	return task, nil
}

// resume returns nil when no task awaits input on the thread
func (uc *TaskUseCase) resume(ctx context.Context, req *model.NewTaskRequest) (*model.Task, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		waiting, err := uc.repo.Task().FindAwaiting(ctx, req.TenantID, req.Source, req.ThreadRef)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to correlate thread", goerr.V(ThreadRefKey, req.ThreadRef))
		}
		if waiting == nil {
			return nil, nil
		}

		next, err := lifecycle.Resume(waiting, req.RawContent, uc.now().UTC())
		if err != nil {
			return nil, err
		}
		err = uc.repo.Task().Update(ctx, next)
		if errors.Is(err, model.ErrStaleTask) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resume task", goerr.V(model.TaskIDKey, waiting.ID))
		}

		logging.From(ctx).Info("follow-up correlated with waiting task",
			"task_id", next.ID, "thread", req.ThreadRef)
		if uc.orchestrator != nil {
			uc.orchestrator.auditTransition(ctx, waiting, next)
		}
		return next, nil
	}
	return nil, goerr.New("task kept changing while resuming", goerr.V(ThreadRefKey, req.ThreadRef), goerr.T(model.TagTransient))
}

// Get returns one task of the tenant
func (uc *TaskUseCase) Get(ctx context.Context, tenantID types.TenantID, id types.TaskID) (*model.Task, error) {
	task, err := uc.repo.Task().Get(ctx, tenantID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get task", goerr.V(model.TaskIDKey, id))
	}
	return task, nil
}

// List returns tasks of the tenant, newest first
func (uc *TaskUseCase) List(ctx context.Context, tenantID types.TenantID, status types.TaskStatus, limit int) ([]*model.Task, error) {
	if status != "" && !status.IsValid() {
		return nil, goerr.New("invalid status filter", goerr.V("status", status), goerr.T(model.TagValidation))
	}
	tasks, err := uc.repo.Task().List(ctx, tenantID, status, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tasks", goerr.V(model.TenantIDKey, tenantID))
	}
	return tasks, nil
}

// Cancel applies an external cancellation. A PROCESSING task only records the
// request; the worker honors it at the next transition boundary.
func (uc *TaskUseCase) Cancel(ctx context.Context, tenantID types.TenantID, id types.TaskID, reason string) (*model.Task, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		task, err := uc.repo.Task().Get(ctx, tenantID, id)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get task", goerr.V(model.TaskIDKey, id))
		}

		next, err := lifecycle.Cancel(task, reason, uc.now().UTC())
		if err != nil {
			return nil, goerr.Wrap(err, "task cannot be cancelled", goerr.T(model.TagValidation))
		}
		err = uc.repo.Task().Update(ctx, next)
		if errors.Is(err, model.ErrStaleTask) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to cancel task", goerr.V(model.TaskIDKey, id))
		}

		if uc.orchestrator != nil {
			uc.orchestrator.auditTransition(ctx, task, next)
			uc.orchestrator.notifyRequester(ctx, task, next, nil)
		}
		return next, nil
	}
	return nil, goerr.New("task kept changing while cancelling", goerr.V(model.TaskIDKey, id), goerr.T(model.TagTransient))
}

// Decisions returns the decisions of a task in creation order
func (uc *TaskUseCase) Decisions(ctx context.Context, tenantID types.TenantID, id types.TaskID) ([]*model.Decision, error) {
	decisions, err := uc.repo.Decision().ListByTask(ctx, tenantID, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list decisions", goerr.V(model.TaskIDKey, id))
	}
	return decisions, nil
}

// Approve executes a decision that requires approval; see Orchestrator.Approve
func (uc *TaskUseCase) Approve(ctx context.Context, tenantID types.TenantID, decisionID types.DecisionID, approver string, slotIndex int) (*model.Task, *model.Decision, error) {
	return uc.orchestrator.Approve(ctx, tenantID, decisionID, approver, slotIndex)
}

// Escalations lists human-actionable flags of the tenant
func (uc *TaskUseCase) Escalations(ctx context.Context, tenantID types.TenantID, unresolvedOnly bool) ([]*model.Escalation, error) {
	list, err := uc.repo.Escalation().List(ctx, tenantID, unresolvedOnly)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list escalations", goerr.V(model.TenantIDKey, tenantID))
	}
	return list, nil
}

// ResolveEscalation marks an escalation as handled
func (uc *TaskUseCase) ResolveEscalation(ctx context.Context, tenantID types.TenantID, id string) error {
	if err := uc.repo.Escalation().Resolve(ctx, tenantID, id); err != nil {
		return goerr.Wrap(err, "failed to resolve escalation", goerr.V("escalation_id", id))
	}
	return nil
}

// Audit returns the tenant's audit entries, newest first
func (uc *TaskUseCase) Audit(ctx context.Context, tenantID types.TenantID, filter interfaces.AuditFilter) ([]*model.AuditEntry, error) {
	entries, err := uc.repo.Audit().List(ctx, tenantID, filter)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list audit entries", goerr.V(model.TenantIDKey, tenantID))
	}
	return entries, nil
}

func (uc *TaskUseCase) securityAudit(ctx context.Context, tenantID types.TenantID, subject, msg string, attrs map[string]string) {
	entry := newAuditEntry(tenantID, model.AuditSecurity, subject, msg, uc.now())
	entry.Attributes = attrs
	if err := uc.repo.Audit().Append(ctx, entry); err != nil {
		logging.From(ctx).Error("failed to append security audit entry", "error", err)
	}
}
