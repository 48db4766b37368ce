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

type taskRepository struct {
	mu    sync.RWMutex
	tasks map[types.TaskID]*model.Task
}

func newTaskRepository() *taskRepository {
	return &taskRepository{
		tasks: make(map[types.TaskID]*model.Task),
	}
}

func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return goerr.New("task already exists", goerr.V(model.TaskIDKey, task.ID))
	}
	created := task.Copy()
	created.Version = 1
	r.tasks[task.ID] = created
	task.Version = created.Version
	return nil
}

func (r *taskRepository) Get(ctx context.Context, tenantID types.TenantID, id types.TaskID) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tasks[id]
	if !exists || t.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "task not found",
			goerr.V(model.TaskIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return t.Copy(), nil
}

func (r *taskRepository) Update(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.tasks[task.ID]
	if !exists || existing.TenantID != task.TenantID {
		return goerr.Wrap(ErrNotFound, "task not found", goerr.V(model.TaskIDKey, task.ID))
	}
	if existing.Version != task.Version {
		return goerr.Wrap(model.ErrStaleTask, "task version mismatch",
			goerr.V(model.TaskIDKey, task.ID),
			goerr.V("stored_version", existing.Version),
			goerr.V("version", task.Version))
	}

	updated := task.Copy()
	updated.Version = existing.Version + 1
	r.tasks[task.ID] = updated
	task.Version = updated.Version
	return nil
}

func (r *taskRepository) List(ctx context.Context, tenantID types.TenantID, status types.TaskStatus, limit int) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Task, 0)
	for _, t := range r.tasks {
		if t.TenantID != tenantID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		result = append(result, t.Copy())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *taskRepository) ListDue(ctx context.Context, statuses []types.TaskStatus, now time.Time, limit int) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[types.TaskStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}

	result := make([]*model.Task, 0)
	for _, t := range r.tasks {
		if _, ok := wanted[t.Status]; !ok {
			continue
		}
		if t.NextAttemptAt.After(now) {
			continue
		}
		result = append(result, t.Copy())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].NextAttemptAt.Before(result[j].NextAttemptAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *taskRepository) FindAwaiting(ctx context.Context, tenantID types.TenantID, source types.SourceChannel, threadRef string) (*model.Task, error) {
	if threadRef == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *model.Task
	for _, t := range r.tasks {
		if t.TenantID != tenantID || t.Source != source || t.ThreadRef != threadRef {
			continue
		}
		if t.Status != types.TaskStatusAwaitingInput {
			continue
		}
		if found == nil || t.UpdatedAt.After(found.UpdatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, nil
	}
	return found.Copy(), nil
}
