package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/lifecycle"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
)

func TestTaskUseCase_SubmitValidation(t *testing.T) {
	h := newHarness(t)

	testCases := []struct {
		name string
		req  model.NewTaskRequest
	}{
		{name: "empty tenant", req: model.NewTaskRequest{Source: types.SourceAPI, RawContent: "x"}},
		{name: "invalid source", req: model.NewTaskRequest{TenantID: testTenant, Source: "fax", RawContent: "x"}},
		{name: "blank content", req: model.NewTaskRequest{TenantID: testTenant, Source: types.SourceAPI, RawContent: "  "}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.uc.Task.Submit(context.Background(), &tc.req)
			gt.Error(t, err)
			gt.Bool(t, goerr.HasTag(err, model.TagValidation)).True()
		})
	}
}

func TestTaskUseCase_SubmitCreatesPendingTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	task := h.submit(t, "call alice", emailReply)
	gt.Value(t, task.Status).Equal(types.TaskStatusPending)
	gt.Value(t, task.Priority).Equal(model.PriorityDefault)
	gt.Value(t, task.Reply).Equal(emailReply)
	gt.Bool(t, task.NextAttemptAt.IsZero()).False()

	list, err := h.uc.Task.List(ctx, testTenant, types.TaskStatusPending, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, list).Length(1).Required()
	gt.Value(t, list[0].ID).Equal(task.ID)

	_, err = h.uc.Task.List(ctx, testTenant, "sleeping", 10)
	gt.Error(t, err)

	others, err := h.uc.Task.List(ctx, "other-tenant", "", 10)
	gt.NoError(t, err).Required()
	gt.Array(t, others).Length(0)
}

func TestTaskUseCase_FollowUpResumesWaitingTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.classifier.set(meetingClassification(t, 0.2, tomorrowAt(15)))

	first, err := h.uc.Task.Submit(ctx, &model.NewTaskRequest{
		TenantID:   testTenant,
		Source:     types.SourceSMS,
		SourceRef:  "SM1",
		ThreadRef:  "+15550100",
		RawContent: "can we meet?",
		Reply:      model.ReplyRoute{Channel: types.NotifySMS, Recipient: "+15550100"},
	})
	gt.NoError(t, err).Required()
	waiting, err := h.uc.Orchestrator.Process(ctx, first)
	gt.NoError(t, err).Required()
	gt.Value(t, waiting.Status).Equal(types.TaskStatusAwaitingInput)

	resumed, err := h.uc.Task.Submit(ctx, &model.NewTaskRequest{
		TenantID:   testTenant,
		Source:     types.SourceSMS,
		SourceRef:  "SM2",
		ThreadRef:  "+15550100",
		RawContent: "tomorrow 3pm",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, resumed.ID).Equal(first.ID)
	gt.Value(t, resumed.Status).Equal(types.TaskStatusProcessing)
	gt.Value(t, resumed.RawContent).Equal("can we meet?\n\ntomorrow 3pm")

	h.classifier.set(meetingClassification(t, 0.9, tomorrowAt(15)))
	done, err := h.uc.Orchestrator.Process(ctx, resumed)
	gt.NoError(t, err).Required()
	gt.Value(t, done.Status).Equal(types.TaskStatusScheduled)
	gt.NoError(t, lifecycle.ValidatePath(done.Transitions))

	// a different thread starts a new task
	other, err := h.uc.Task.Submit(ctx, &model.NewTaskRequest{
		TenantID:   testTenant,
		Source:     types.SourceSMS,
		SourceRef:  "SM3",
		ThreadRef:  "+15550199",
		RawContent: "hello",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, other.ID).NotEqual(first.ID)
	gt.Value(t, other.Status).Equal(types.TaskStatusPending)
}

func TestTaskUseCase_Cancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	task := h.submit(t, "call alice", emailReply)
	cancelled, err := h.uc.Task.Cancel(ctx, testTenant, task.ID, "changed my mind")
	gt.NoError(t, err).Required()
	gt.Value(t, cancelled.Status).Equal(types.TaskStatusCancelled)
	gt.Value(t, cancelled.CompletedAt).NotNil()

	sent := h.transport.messages()
	gt.Array(t, sent).Length(1).Required()
	gt.Value(t, sent[0].Subject).Equal("Cancelled")

	_, err = h.uc.Task.Cancel(ctx, testTenant, task.ID, "")
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, model.ErrTerminalTask)).True()

	entries, err := h.uc.Task.Audit(ctx, testTenant, auditFilter(model.AuditTransition))
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1).Required()
	gt.Value(t, entries[0].Subject).Equal(string(task.ID))
	gt.Value(t, entries[0].Attributes["to"]).Equal(string(types.TaskStatusCancelled))
}

func TestTaskUseCase_IngestAuditsAuthenticationFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	body := []byte(`{"id":"evt-1","text":"hello"}`)
	_, err := h.uc.Task.Ingest(ctx, types.SourceWebhook, model.RawInput{
		TenantID:  testTenant,
		Body:      body,
		Signature: webhook.Sign(body, "forged"),
	})
	gt.Error(t, err)
	gt.Bool(t, goerr.HasTag(err, model.TagAuthentication)).True()

	tasks, err := h.uc.Task.List(ctx, testTenant, "", 10)
	gt.NoError(t, err).Required()
	gt.Array(t, tasks).Length(0)

	entries, err := h.uc.Task.Audit(ctx, testTenant, auditFilter(model.AuditSecurity))
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1).Required()
	gt.Value(t, entries[0].Attributes["channel"]).Equal(string(types.SourceWebhook))
}

func TestTaskUseCase_Escalations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	esc := &model.Escalation{
		ID:       "esc-1",
		TenantID: testTenant,
		Reason:   "calendar credential missing",
	}
	gt.NoError(t, h.repo.Escalation().Create(ctx, esc)).Required()

	open, err := h.uc.Task.Escalations(ctx, testTenant, true)
	gt.NoError(t, err).Required()
	gt.Array(t, open).Length(1)

	gt.NoError(t, h.uc.Task.ResolveEscalation(ctx, testTenant, "esc-1")).Required()

	open, err = h.uc.Task.Escalations(ctx, testTenant, true)
	gt.NoError(t, err).Required()
	gt.Array(t, open).Length(0)

	all, err := h.uc.Task.Escalations(ctx, testTenant, false)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(1).Required()
	gt.Bool(t, all[0].Resolved).True()
}
