package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type decisionRepository struct {
	*base
}

func (r *decisionRepository) decisions() *firestore.CollectionRef {
	return r.collection(CollectionDecisions)
}

func (r *decisionRepository) Create(ctx context.Context, decision *model.Decision) error {
	if _, err := r.decisions().Doc(string(decision.ID)).Create(ctx, decision); err != nil {
		return goerr.Wrap(err, "failed to create decision", goerr.V(model.DecisionIDKey, decision.ID))
	}
	return nil
}

func (r *decisionRepository) Get(ctx context.Context, tenantID types.TenantID, id types.DecisionID) (*model.Decision, error) {
	doc, err := r.decisions().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "decision not found", goerr.V(model.DecisionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get decision", goerr.V(model.DecisionIDKey, id))
	}

	var d model.Decision
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode decision", goerr.V(model.DecisionIDKey, id))
	}
	if d.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "decision not found",
			goerr.V(model.DecisionIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return &d, nil
}

func (r *decisionRepository) Update(ctx context.Context, decision *model.Decision) error {
	ref := r.decisions().Doc(string(decision.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "decision not found", goerr.V(model.DecisionIDKey, decision.ID))
			}
			return goerr.Wrap(err, "failed to get decision")
		}

		var existing model.Decision
		if err := doc.DataTo(&existing); err != nil {
			return goerr.Wrap(err, "failed to decode decision")
		}
		if existing.TenantID != decision.TenantID {
			return goerr.Wrap(ErrNotFound, "decision not found", goerr.V(model.DecisionIDKey, decision.ID))
		}
		if existing.Status.IsFinal() {
			return goerr.Wrap(model.ErrDecisionImmutable, "decision already settled",
				goerr.V(model.DecisionIDKey, decision.ID), goerr.V("status", existing.Status))
		}
		return tx.Set(ref, decision)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update decision", goerr.V(model.DecisionIDKey, decision.ID))
	}
	return nil
}

func (r *decisionRepository) ListByTask(ctx context.Context, tenantID types.TenantID, taskID types.TaskID) ([]*model.Decision, error) {
	q := r.decisions().
		Where("TenantID", "==", string(tenantID)).
		Where("TaskID", "==", string(taskID)).
		OrderBy("CreatedAt", firestore.Asc)
	return collect[model.Decision](ctx, q, "decisions")
}

func (r *decisionRepository) List(ctx context.Context, tenantID types.TenantID, limit int) ([]*model.Decision, error) {
	q := r.decisions().
		Where("TenantID", "==", string(tenantID)).
		OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect[model.Decision](ctx, q, "decisions")
}

type agentStatsRepository struct {
	*base
}

func (r *agentStatsRepository) doc(tenantID types.TenantID, agentID types.AgentID) *firestore.DocumentRef {
	return r.collection(CollectionAgentStats).Doc(string(tenantID) + ":" + string(agentID))
}

func (r *agentStatsRepository) Get(ctx context.Context, tenantID types.TenantID, agentID types.AgentID) (*model.AgentStats, error) {
	doc, err := r.doc(tenantID, agentID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &model.AgentStats{AgentID: agentID, TenantID: tenantID}, nil
		}
		return nil, goerr.Wrap(err, "failed to get agent stats", goerr.V("agent_id", agentID))
	}

	var s model.AgentStats
	if err := doc.DataTo(&s); err != nil {
		return nil, goerr.Wrap(err, "failed to decode agent stats", goerr.V("agent_id", agentID))
	}
	return &s, nil
}

func (r *agentStatsRepository) Increment(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, succeeded bool) error {
	var success int64
	if succeeded {
		success = 1
	}

	_, err := r.doc(tenantID, agentID).Set(ctx, map[string]interface{}{
		"AgentID":             string(agentID),
		"TenantID":            string(tenantID),
		"TotalDecisions":      firestore.Increment(1),
		"SuccessfulDecisions": firestore.Increment(success),
		"UpdatedAt":           time.Now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return goerr.Wrap(err, "failed to increment agent stats", goerr.V("agent_id", agentID))
	}
	return nil
}
