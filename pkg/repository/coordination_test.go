package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

func runCoordinationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("lease is exclusive until expiry", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		taskID := types.NewTaskID()
		now := time.Now().UTC()

		gt.NoError(t, repo.Lease().Acquire(ctx, taskID, "worker-a", time.Minute, now)).Required()
		// re-entrant for the same holder
		gt.NoError(t, repo.Lease().Acquire(ctx, taskID, "worker-a", time.Minute, now)).Required()
		gt.Error(t, repo.Lease().Acquire(ctx, taskID, "worker-b", time.Minute, now)).Is(model.ErrLeaseHeld)

		// expired lease can be taken over
		gt.NoError(t, repo.Lease().Acquire(ctx, taskID, "worker-b", time.Minute, now.Add(2*time.Minute))).Required()

		// release by a non-holder is ignored
		gt.NoError(t, repo.Lease().Release(ctx, taskID, "worker-a")).Required()
		gt.Error(t, repo.Lease().Acquire(ctx, taskID, "worker-a", time.Minute, now.Add(2*time.Minute))).Is(model.ErrLeaseHeld)

		gt.NoError(t, repo.Lease().Release(ctx, taskID, "worker-b")).Required()
		gt.NoError(t, repo.Lease().Acquire(ctx, taskID, "worker-a", time.Minute, now.Add(2*time.Minute)))
	})

	t.Run("concurrent acquire grants one holder", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		taskID := types.NewTaskID()
		now := time.Now().UTC()

		var granted atomic.Int32
		var wg sync.WaitGroup
		for _, holder := range []string{"w1", "w2", "w3", "w4"} {
			wg.Add(1)
			go func(holder string) {
				defer wg.Done()
				if err := repo.Lease().Acquire(ctx, taskID, holder, time.Minute, now); err == nil {
					granted.Add(1)
				}
			}(holder)
		}
		wg.Wait()
		gt.Value(t, granted.Load()).Equal(int32(1))
	})

	t.Run("rate counter enforces every window", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()
		now := time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)
		windows := model.RateLimits{PerMinute: 2, PerHour: 3}.Windows()

		for i := 0; i < 2; i++ {
			ok, _, err := repo.RateCounter().Consume(ctx, tenant, "scheduler", windows, 1, now)
			gt.NoError(t, err).Required()
			gt.Bool(t, ok).True()
		}

		ok, retryAt, err := repo.RateCounter().Consume(ctx, tenant, "scheduler", windows, 1, now)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).False()
		gt.Value(t, retryAt).Equal(time.Date(2026, 3, 2, 10, 1, 0, 0, time.UTC))

		// next minute: minute window resets, hour window has one unit left
		next := now.Add(time.Minute)
		ok, _, err = repo.RateCounter().Consume(ctx, tenant, "scheduler", windows, 1, next)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()

		ok, retryAt, err = repo.RateCounter().Consume(ctx, tenant, "scheduler", windows, 1, next)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).False()
		gt.Value(t, retryAt).Equal(time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC))
	})

	t.Run("concurrent consumers never exceed the limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		tenant := newTenant()
		now := time.Now().UTC()
		windows := model.RateLimits{PerMinute: 5}.Windows()

		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, _, err := repo.RateCounter().Consume(ctx, tenant, "scheduler", windows, 1, now)
				if err == nil && ok {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()
		gt.Bool(t, granted.Load() <= 5).True()
	})
}

func TestCoordinationRepository(t *testing.T) {
	runBoth(t, runCoordinationRepositoryTest)
}
