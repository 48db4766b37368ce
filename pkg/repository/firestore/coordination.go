package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type leaseDoc struct {
	TaskID    string
	Holder    string
	ExpiresAt time.Time
}

type leaseRepository struct {
	*base
}

func (r *leaseRepository) Acquire(ctx context.Context, taskID types.TaskID, holder string, ttl time.Duration, now time.Time) error {
	ref := r.collection(CollectionLeases).Doc(string(taskID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to get lease", goerr.V(model.TaskIDKey, taskID))
		}
		if err == nil {
			var current leaseDoc
			if err := doc.DataTo(&current); err != nil {
				return goerr.Wrap(err, "failed to decode lease")
			}
			if current.Holder != holder && now.Before(current.ExpiresAt) {
				return goerr.Wrap(model.ErrLeaseHeld, "lease held",
					goerr.V(model.TaskIDKey, taskID), goerr.V("holder", current.Holder))
			}
		}
		return tx.Set(ref, &leaseDoc{
			TaskID:    string(taskID),
			Holder:    holder,
			ExpiresAt: now.Add(ttl),
		})
	})
}

func (r *leaseRepository) Release(ctx context.Context, taskID types.TaskID, holder string) error {
	ref := r.collection(CollectionLeases).Doc(string(taskID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return goerr.Wrap(err, "failed to get lease", goerr.V(model.TaskIDKey, taskID))
		}
		var current leaseDoc
		if err := doc.DataTo(&current); err != nil {
			return goerr.Wrap(err, "failed to decode lease")
		}
		if current.Holder != holder {
			return nil
		}
		return tx.Delete(ref)
	})
}

type rateCounterDoc struct {
	Count int64
	// ExpireAt backs a Firestore TTL policy on the collection
	ExpireAt time.Time
}

type rateCounterRepository struct {
	*base
}

func (r *rateCounterRepository) Consume(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, windows []model.RateWindow, units int, now time.Time) (bool, time.Time, error) {
	refs := make([]*firestore.DocumentRef, len(windows))
	for i, w := range windows {
		id := fmt.Sprintf("%s:%s:%s:%d", tenantID, agentID, w.Name, w.Start(now).Unix())
		refs[i] = r.collection(CollectionRateCounters).Doc(id)
	}

	var ok bool
	var retryAt time.Time
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ok, retryAt = false, time.Time{}
		counts := make([]int64, len(windows))
		for i, ref := range refs {
			doc, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					continue
				}
				return goerr.Wrap(err, "failed to get rate counter")
			}
			var c rateCounterDoc
			if err := doc.DataTo(&c); err != nil {
				return goerr.Wrap(err, "failed to decode rate counter")
			}
			counts[i] = c.Count
		}

		for i, w := range windows {
			if counts[i]+int64(units) > int64(w.Limit) {
				if reset := w.Start(now).Add(w.Size); reset.After(retryAt) {
					retryAt = reset
				}
			}
		}
		if !retryAt.IsZero() {
			return nil
		}

		for i, w := range windows {
			if err := tx.Set(refs[i], &rateCounterDoc{
				Count:    counts[i] + int64(units),
				ExpireAt: w.Start(now).Add(2 * w.Size),
			}); err != nil {
				return goerr.Wrap(err, "failed to set rate counter")
			}
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, time.Time{}, goerr.Wrap(err, "failed to consume rate budget",
			goerr.V(model.TenantIDKey, tenantID), goerr.V("agent_id", agentID))
	}
	return ok, retryAt, nil
}
