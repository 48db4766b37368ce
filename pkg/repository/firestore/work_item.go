package firestore

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type workItemRepository struct {
	*base
}

func (r *workItemRepository) doc(tenantID types.TenantID, id string) *firestore.DocumentRef {
	return r.collection(CollectionWorkItems).Doc(string(tenantID) + ":" + url.PathEscape(id))
}

func (r *workItemRepository) Get(ctx context.Context, tenantID types.TenantID, id string) (*model.WorkItem, error) {
	doc, err := r.doc(tenantID, id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "work item not found",
				goerr.V("work_item_id", id), goerr.V(model.TenantIDKey, tenantID))
		}
		return nil, goerr.Wrap(err, "failed to get work item", goerr.V("work_item_id", id))
	}

	var item model.WorkItem
	if err := doc.DataTo(&item); err != nil {
		return nil, goerr.Wrap(err, "failed to decode work item", goerr.V("work_item_id", id))
	}
	return &item, nil
}

func (r *workItemRepository) Put(ctx context.Context, item *model.WorkItem) error {
	if _, err := r.doc(item.TenantID, item.ID).Set(ctx, item); err != nil {
		return goerr.Wrap(err, "failed to put work item", goerr.V("work_item_id", item.ID))
	}
	return nil
}

func (r *workItemRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.WorkItem, error) {
	q := r.collection(CollectionWorkItems).
		Where("TenantID", "==", string(tenantID)).
		OrderBy("ID", firestore.Asc)
	return collect[model.WorkItem](ctx, q, "work items")
}

type escalationRepository struct {
	*base
}

func (r *escalationRepository) Create(ctx context.Context, e *model.Escalation) error {
	if _, err := r.collection(CollectionEscalations).Doc(e.ID).Create(ctx, e); err != nil {
		return goerr.Wrap(err, "failed to create escalation", goerr.V("escalation_id", e.ID))
	}
	return nil
}

func (r *escalationRepository) List(ctx context.Context, tenantID types.TenantID, unresolvedOnly bool) ([]*model.Escalation, error) {
	q := r.collection(CollectionEscalations).Where("TenantID", "==", string(tenantID))
	if unresolvedOnly {
		q = q.Where("Resolved", "==", false)
	}
	q = q.OrderBy("CreatedAt", firestore.Desc)
	return collect[model.Escalation](ctx, q, "escalations")
}

func (r *escalationRepository) Resolve(ctx context.Context, tenantID types.TenantID, id string) error {
	ref := r.collection(CollectionEscalations).Doc(id)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("escalation_id", id))
			}
			return goerr.Wrap(err, "failed to get escalation", goerr.V("escalation_id", id))
		}
		var e model.Escalation
		if err := doc.DataTo(&e); err != nil {
			return goerr.Wrap(err, "failed to decode escalation")
		}
		if e.TenantID != tenantID {
			return goerr.Wrap(ErrNotFound, "escalation not found",
				goerr.V("escalation_id", id), goerr.V(model.TenantIDKey, tenantID))
		}
		return tx.Update(ref, []firestore.Update{{Path: "Resolved", Value: true}})
	})
}
