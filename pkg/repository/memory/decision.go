package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type decisionRepository struct {
	mu        sync.RWMutex
	decisions map[types.DecisionID]*model.Decision
}

func newDecisionRepository() *decisionRepository {
	return &decisionRepository{
		decisions: make(map[types.DecisionID]*model.Decision),
	}
}

func (r *decisionRepository) Create(ctx context.Context, decision *model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.decisions[decision.ID]; exists {
		return goerr.New("decision already exists", goerr.V(model.DecisionIDKey, decision.ID))
	}
	r.decisions[decision.ID] = decision.Copy()
	return nil
}

func (r *decisionRepository) Get(ctx context.Context, tenantID types.TenantID, id types.DecisionID) (*model.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.decisions[id]
	if !exists || d.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "decision not found",
			goerr.V(model.DecisionIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return d.Copy(), nil
}

func (r *decisionRepository) Update(ctx context.Context, decision *model.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.decisions[decision.ID]
	if !exists || existing.TenantID != decision.TenantID {
		return goerr.Wrap(ErrNotFound, "decision not found", goerr.V(model.DecisionIDKey, decision.ID))
	}
	if existing.Status.IsFinal() {
		return goerr.Wrap(model.ErrDecisionImmutable, "decision already settled",
			goerr.V(model.DecisionIDKey, decision.ID), goerr.V("status", existing.Status))
	}
	r.decisions[decision.ID] = decision.Copy()
	return nil
}

func (r *decisionRepository) ListByTask(ctx context.Context, tenantID types.TenantID, taskID types.TaskID) ([]*model.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Decision, 0)
	for _, d := range r.decisions {
		if d.TenantID == tenantID && d.TaskID == taskID {
			result = append(result, d.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *decisionRepository) List(ctx context.Context, tenantID types.TenantID, limit int) ([]*model.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Decision, 0)
	for _, d := range r.decisions {
		if d.TenantID == tenantID {
			result = append(result, d.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type agentStatsRepository struct {
	mu    sync.Mutex
	stats map[string]*model.AgentStats
}

func newAgentStatsRepository() *agentStatsRepository {
	return &agentStatsRepository{
		stats: make(map[string]*model.AgentStats),
	}
}

func statsKey(tenantID types.TenantID, agentID types.AgentID) string {
	return string(tenantID) + "/" + string(agentID)
}

func (r *agentStatsRepository) Get(ctx context.Context, tenantID types.TenantID, agentID types.AgentID) (*model.AgentStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stats[statsKey(tenantID, agentID)]; ok {
		c := *s
		return &c, nil
	}
	return &model.AgentStats{AgentID: agentID, TenantID: tenantID}, nil
}

func (r *agentStatsRepository) Increment(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, succeeded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := statsKey(tenantID, agentID)
	s, ok := r.stats[key]
	if !ok {
		s = &model.AgentStats{AgentID: agentID, TenantID: tenantID}
		r.stats[key] = s
	}
	s.TotalDecisions++
	if succeeded {
		s.SuccessfulDecisions++
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}
