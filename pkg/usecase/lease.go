package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// DefaultLeaseTTL is the validity of one lease grant; holders renew it every third of the TTL
const DefaultLeaseTTL = 2 * time.Minute

// TaskLease is a held task lease that is renewed in the background until Release
type TaskLease struct {
	repo   interfaces.LeaseRepository
	taskID types.TaskID
	holder string
	ttl    time.Duration
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// HoldLease acquires the lease of taskID for holder and keeps renewing it.
// The returned context is cancelled if a renewal finds the lease owned by
// another holder, so work running under it stops early.
func HoldLease(ctx context.Context, repo interfaces.LeaseRepository, taskID types.TaskID, holder string, ttl time.Duration, now func() time.Time) (context.Context, *TaskLease, error) {
	if ttl <= 0 {
		return nil, nil, goerr.New("lease ttl must be positive", goerr.V("ttl", ttl))
	}
	if err := repo.Acquire(ctx, taskID, holder, ttl, now()); err != nil {
		return nil, nil, err
	}

	leaseCtx, cancel := context.WithCancel(ctx)
	l := &TaskLease{
		repo:   repo,
		taskID: taskID,
		holder: holder,
		ttl:    ttl,
		now:    now,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.renew(leaseCtx)
	return leaseCtx, l, nil
}

func (l *TaskLease) renew(ctx context.Context) {
	defer close(l.done)
	logger := logging.From(ctx).With(model.TaskIDKey, l.taskID, "holder", l.holder)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := l.repo.Acquire(ctx, l.taskID, l.holder, l.ttl, l.now())
		switch {
		case err == nil:
		case errors.Is(err, model.ErrLeaseHeld):
			logger.Error("task lease lost to another holder", "error", err)
			l.cancel()
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("failed to renew task lease (will retry)", "error", err)
		}
	}
}

// Release stops renewal and drops the lease. It runs even when ctx is already cancelled.
func (l *TaskLease) Release(ctx context.Context) error {
	l.cancel()
	<-l.done
	if err := l.repo.Release(context.WithoutCancel(ctx), l.taskID, l.holder); err != nil {
		return goerr.Wrap(err, "failed to release task lease",
			goerr.V(model.TaskIDKey, l.taskID), goerr.V("holder", l.holder))
	}
	return nil
}
