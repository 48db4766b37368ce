package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type lease struct {
	holder    string
	expiresAt time.Time
}

type leaseRepository struct {
	mu     sync.Mutex
	leases map[types.TaskID]lease
}

func newLeaseRepository() *leaseRepository {
	return &leaseRepository{
		leases: make(map[types.TaskID]lease),
	}
}

func (r *leaseRepository) Acquire(ctx context.Context, taskID types.TaskID, holder string, ttl time.Duration, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[taskID]; ok && l.holder != holder && now.Before(l.expiresAt) {
		return goerr.Wrap(model.ErrLeaseHeld, "lease held",
			goerr.V(model.TaskIDKey, taskID), goerr.V("holder", l.holder))
	}
	r.leases[taskID] = lease{holder: holder, expiresAt: now.Add(ttl)}
	return nil
}

func (r *leaseRepository) Release(ctx context.Context, taskID types.TaskID, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[taskID]; ok && l.holder == holder {
		delete(r.leases, taskID)
	}
	return nil
}

type rateCount struct {
	count int
	end   time.Time
}

type rateCounterRepository struct {
	mu     sync.Mutex
	counts map[string]rateCount
}

func newRateCounterRepository() *rateCounterRepository {
	return &rateCounterRepository{
		counts: make(map[string]rateCount),
	}
}

func rateKey(tenantID types.TenantID, agentID types.AgentID, w model.RateWindow, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%d", tenantID, agentID, w.Name, w.Start(now).Unix())
}

func (r *rateCounterRepository) Consume(ctx context.Context, tenantID types.TenantID, agentID types.AgentID, windows []model.RateWindow, units int, now time.Time) (bool, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)

	var retryAt time.Time
	for _, w := range windows {
		if r.counts[rateKey(tenantID, agentID, w, now)].count+units > w.Limit {
			reset := w.Start(now).Add(w.Size)
			if reset.After(retryAt) {
				retryAt = reset
			}
		}
	}
	if !retryAt.IsZero() {
		return false, retryAt, nil
	}

	for _, w := range windows {
		key := rateKey(tenantID, agentID, w, now)
		c := r.counts[key]
		c.count += units
		c.end = w.Start(now).Add(w.Size)
		r.counts[key] = c
	}
	return true, time.Time{}, nil
}

// prune drops the counts of windows that have ended
func (r *rateCounterRepository) prune(now time.Time) {
	for key, c := range r.counts {
		if !now.Before(c.end) {
			delete(r.counts, key)
		}
	}
}
