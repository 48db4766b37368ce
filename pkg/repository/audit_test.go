package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

func runAuditRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("List filters and orders newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()
		now := time.Now().UTC()

		entries := []*model.AuditEntry{
			{Kind: model.AuditDecision, Subject: "task-1", Message: "executed", CreatedAt: now},
			{Kind: model.AuditCredentialUse, Subject: "cred-1", Message: "decrypted", CreatedAt: now.Add(time.Second),
				Attributes: map[string]string{"purpose": "create-event"}},
			{Kind: model.AuditDecision, Subject: "task-2", Message: "failed", CreatedAt: now.Add(2 * time.Second)},
		}
		for _, e := range entries {
			e.ID = uuid.NewString()
			e.TenantID = tenant
			gt.NoError(t, repo.Audit().Append(ctx, e)).Required()
		}

		all, err := repo.Audit().List(ctx, tenant, interfaces.AuditFilter{})
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3)
		gt.Value(t, all[0].Subject).Equal("task-2")

		decisions, err := repo.Audit().List(ctx, tenant, interfaces.AuditFilter{Kind: model.AuditDecision, Limit: 1})
		gt.NoError(t, err).Required()
		gt.Array(t, decisions).Length(1)
		gt.Value(t, decisions[0].Subject).Equal("task-2")

		uses, err := repo.Audit().List(ctx, tenant, interfaces.AuditFilter{Subject: "cred-1"})
		gt.NoError(t, err).Required()
		gt.Array(t, uses).Length(1)
		gt.Value(t, uses[0].Attributes["purpose"]).Equal("create-event")

		other, err := repo.Audit().List(ctx, "other-tenant", interfaces.AuditFilter{})
		gt.NoError(t, err).Required()
		gt.Array(t, other).Length(0)
	})
}

func TestAuditRepository(t *testing.T) {
	runBoth(t, runAuditRepositoryTest)
}
