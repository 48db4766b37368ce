package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type workItemRepository struct {
	mu    sync.RWMutex
	items map[types.TenantID]map[string]*model.WorkItem
}

func newWorkItemRepository() *workItemRepository {
	return &workItemRepository{
		items: make(map[types.TenantID]map[string]*model.WorkItem),
	}
}

func (r *workItemRepository) Get(ctx context.Context, tenantID types.TenantID, id string) (*model.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[tenantID][id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "work item not found",
			goerr.V("work_item_id", id), goerr.V(model.TenantIDKey, tenantID))
	}
	c := *item
	return &c, nil
}

func (r *workItemRepository) Put(ctx context.Context, item *model.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.TenantID]; !exists {
		r.items[item.TenantID] = make(map[string]*model.WorkItem)
	}
	c := *item
	r.items[item.TenantID][item.ID] = &c
	return nil
}

func (r *workItemRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.WorkItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.WorkItem, 0, len(r.items[tenantID]))
	for _, item := range r.items[tenantID] {
		c := *item
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type escalationRepository struct {
	mu          sync.RWMutex
	escalations map[types.TenantID]map[string]*model.Escalation
}

func newEscalationRepository() *escalationRepository {
	return &escalationRepository{
		escalations: make(map[types.TenantID]map[string]*model.Escalation),
	}
}

func (r *escalationRepository) Create(ctx context.Context, e *model.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.escalations[e.TenantID]; !exists {
		r.escalations[e.TenantID] = make(map[string]*model.Escalation)
	}
	c := *e
	r.escalations[e.TenantID][e.ID] = &c
	return nil
}

func (r *escalationRepository) List(ctx context.Context, tenantID types.TenantID, unresolvedOnly bool) ([]*model.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Escalation, 0)
	for _, e := range r.escalations[tenantID] {
		if unresolvedOnly && e.Resolved {
			continue
		}
		c := *e
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *escalationRepository) Resolve(ctx context.Context, tenantID types.TenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.escalations[tenantID][id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "escalation not found",
			goerr.V("escalation_id", id), goerr.V(model.TenantIDKey, tenantID))
	}
	e.Resolved = true
	return nil
}
