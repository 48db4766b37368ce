package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

func newTestDecision(tenantID types.TenantID, taskID types.TaskID, at time.Time) *model.Decision {
	return &model.Decision{
		ID:         types.NewDecisionID(),
		AgentID:    "scheduler",
		TenantID:   tenantID,
		TaskID:     taskID,
		Source:     types.SourceEmail,
		RawInput:   "book a sync tomorrow",
		TaskType:   types.TaskTypeScheduleMeeting,
		Confidence: 0.9,
		Type:       types.DecisionCreateEvent,
		Status:     types.DecisionStatusPending,
		CreatedAt:  at,
	}
}

func runDecisionRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("settled decision is immutable", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()

		d := newTestDecision(tenant, types.NewTaskID(), time.Now().UTC())
		gt.NoError(t, repo.Decision().Create(ctx, d)).Required()

		d.Status = types.DecisionStatusExecuted
		d.Outcome = model.ExecutionResult{Status: model.ExecutionSucceeded, EventRef: "evt-1"}
		gt.NoError(t, repo.Decision().Update(ctx, d)).Required()

		d.Status = types.DecisionStatusFailed
		gt.Error(t, repo.Decision().Update(ctx, d)).Is(model.ErrDecisionImmutable)

		got, err := repo.Decision().Get(ctx, tenant, d.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Status).Equal(types.DecisionStatusExecuted)
		gt.Value(t, got.Outcome.EventRef).Equal("evt-1")
	})

	t.Run("requires-approval decision can still settle", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()

		d := newTestDecision(tenant, types.NewTaskID(), time.Now().UTC())
		d.Status = types.DecisionStatusRequiresApproval
		gt.NoError(t, repo.Decision().Create(ctx, d)).Required()

		d.Status = types.DecisionStatusRejected
		gt.NoError(t, repo.Decision().Update(ctx, d))
	})

	t.Run("ListByTask returns decisions in creation order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()
		taskID := types.NewTaskID()
		now := time.Now().UTC()

		second := newTestDecision(tenant, taskID, now.Add(time.Second))
		first := newTestDecision(tenant, taskID, now)
		other := newTestDecision(tenant, types.NewTaskID(), now)
		for _, d := range []*model.Decision{second, first, other} {
			gt.NoError(t, repo.Decision().Create(ctx, d)).Required()
		}

		got, err := repo.Decision().ListByTask(ctx, tenant, taskID)
		gt.NoError(t, err).Required()
		gt.Array(t, got).Length(2)
		gt.Value(t, got[0].ID).Equal(first.ID)
		gt.Value(t, got[1].ID).Equal(second.ID)

		latest, err := repo.Decision().List(ctx, tenant, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, latest).Length(1)
		gt.Value(t, latest[0].ID).Equal(second.ID)
	})

	t.Run("Get is tenant scoped", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		d := newTestDecision(newTenant(), types.NewTaskID(), time.Now().UTC())
		gt.NoError(t, repo.Decision().Create(ctx, d)).Required()

		_, err := repo.Decision().Get(ctx, "other-tenant", d.ID)
		gt.Error(t, err).Is(model.ErrNotFound)
	})

	t.Run("agent stats increment concurrently", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				gt.NoError(t, repo.AgentStats().Increment(ctx, tenant, "scheduler", i%2 == 0))
			}(i)
		}
		wg.Wait()

		stats, err := repo.AgentStats().Get(ctx, tenant, "scheduler")
		gt.NoError(t, err).Required()
		gt.Value(t, stats.TotalDecisions).Equal(int64(10))
		gt.Value(t, stats.SuccessfulDecisions).Equal(int64(5))
		gt.Value(t, stats.SuccessRate()).Equal(0.5)

		empty, err := repo.AgentStats().Get(ctx, tenant, "nobody")
		gt.NoError(t, err).Required()
		gt.Value(t, empty.TotalDecisions).Equal(int64(0))
	})
}

func TestDecisionRepository(t *testing.T) {
	runBoth(t, runDecisionRepositoryTest)
}
