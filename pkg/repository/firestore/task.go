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

type taskRepository struct {
	*base
}

func (r *taskRepository) tasks() *firestore.CollectionRef {
	return r.collection(CollectionTasks)
}

func (r *taskRepository) Create(ctx context.Context, task *model.Task) error {
	created := task.Copy()
	created.Version = 1
	if _, err := r.tasks().Doc(string(task.ID)).Create(ctx, created); err != nil {
		return goerr.Wrap(err, "failed to create task", goerr.V(model.TaskIDKey, task.ID))
	}
	task.Version = created.Version
	return nil
}

func (r *taskRepository) Get(ctx context.Context, tenantID types.TenantID, id types.TaskID) (*model.Task, error) {
	doc, err := r.tasks().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "task not found", goerr.V(model.TaskIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get task", goerr.V(model.TaskIDKey, id))
	}

	var t model.Task
	if err := doc.DataTo(&t); err != nil {
		return nil, goerr.Wrap(err, "failed to decode task", goerr.V(model.TaskIDKey, id))
	}
	if t.TenantID != tenantID {
		return nil, goerr.Wrap(ErrNotFound, "task not found",
			goerr.V(model.TaskIDKey, id), goerr.V(model.TenantIDKey, tenantID))
	}
	return &t, nil
}

func (r *taskRepository) Update(ctx context.Context, task *model.Task) error {
	ref := r.tasks().Doc(string(task.ID))
	updated := task.Copy()

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "task not found", goerr.V(model.TaskIDKey, task.ID))
			}
			return goerr.Wrap(err, "failed to get task")
		}

		var existing model.Task
		if err := doc.DataTo(&existing); err != nil {
			return goerr.Wrap(err, "failed to decode task")
		}
		if existing.TenantID != task.TenantID {
			return goerr.Wrap(ErrNotFound, "task not found", goerr.V(model.TaskIDKey, task.ID))
		}
		if existing.Version != task.Version {
			return goerr.Wrap(model.ErrStaleTask, "task version mismatch",
				goerr.V(model.TaskIDKey, task.ID),
				goerr.V("stored_version", existing.Version),
				goerr.V("version", task.Version))
		}

		updated.Version = existing.Version + 1
		return tx.Set(ref, updated)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update task", goerr.V(model.TaskIDKey, task.ID))
	}

	task.Version = updated.Version
	return nil
}

func (r *taskRepository) List(ctx context.Context, tenantID types.TenantID, taskStatus types.TaskStatus, limit int) ([]*model.Task, error) {
	q := r.tasks().Where("TenantID", "==", string(tenantID))
	if taskStatus != "" {
		q = q.Where("Status", "==", string(taskStatus))
	}
	q = q.OrderBy("CreatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect[model.Task](ctx, q, "tasks")
}

func (r *taskRepository) ListDue(ctx context.Context, statuses []types.TaskStatus, now time.Time, limit int) ([]*model.Task, error) {
	if len(statuses) == 0 {
		return []*model.Task{}, nil
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	q := r.tasks().
		Where("Status", "in", values).
		Where("NextAttemptAt", "<=", now).
		OrderBy("NextAttemptAt", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return collect[model.Task](ctx, q, "due tasks")
}

func (r *taskRepository) FindAwaiting(ctx context.Context, tenantID types.TenantID, source types.SourceChannel, threadRef string) (*model.Task, error) {
	if threadRef == "" {
		return nil, nil
	}

	q := r.tasks().
		Where("TenantID", "==", string(tenantID)).
		Where("Source", "==", string(source)).
		Where("ThreadRef", "==", threadRef).
		Where("Status", "==", string(types.TaskStatusAwaitingInput)).
		OrderBy("UpdatedAt", firestore.Desc).
		Limit(1)

	tasks, err := collect[model.Task](ctx, q, "awaiting tasks")
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}
