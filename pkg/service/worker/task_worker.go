package worker

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TaskProcessor advances due tasks
type TaskProcessor interface {
	Process(ctx context.Context, task *model.Task) (*model.Task, error)
	CompleteScheduled(ctx context.Context, task *model.Task) (*model.Task, error)
}

// Config controls the polling loop of TaskWorker
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LeaseTTL    time.Duration
}

// DefaultConfig returns the polling settings used when none are given
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Second,
		BatchSize:   50,
		Concurrency: 4,
		LeaseTTL:    usecase.DefaultLeaseTTL,
	}
}

// TaskWorker polls for due tasks and runs them through the processor.
//
// Every task is processed under a lease that is renewed while the task runs,
// so several instances may poll the same store; a task whose lease is held
// elsewhere is skipped until the next tick.
type TaskWorker struct {
	repo      interfaces.Repository
	processor TaskProcessor
	cfg       Config
	holder    string
	now       func() time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewTaskWorker creates a new worker. Zero fields of cfg fall back to DefaultConfig.
func NewTaskWorker(repo interfaces.Repository, processor TaskProcessor, cfg Config) *TaskWorker {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}

	return &TaskWorker{
		repo:      repo,
		processor: processor,
		cfg:       cfg,
		holder:    "worker-" + uuid.NewString(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the polling loop in the background
func (w *TaskWorker) Start(ctx context.Context) error {
	logging.Default().Info("task worker starting",
		"interval", w.cfg.Interval.String(),
		"concurrency", w.cfg.Concurrency,
		"holder", w.holder)

	go w.run(ctx)
	return nil
}

// Stop signals the worker to stop and waits until the in-flight batch finishes
func (w *TaskWorker) Stop() {
	logging.Default().Info("task worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("task worker stopped")
}

func (w *TaskWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			logging.Default().Error("task worker poll failed (will retry next interval)", "error", err)
		}

		select {
		case <-ticker.C:
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce processes one batch of due tasks and returns how many were advanced
func (w *TaskWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now().UTC()

	due, err := w.repo.Task().ListDue(ctx, []types.TaskStatus{types.TaskStatusPending, types.TaskStatusProcessing}, now, w.cfg.BatchSize)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list due tasks")
	}
	scheduled, err := w.repo.Task().ListDue(ctx, []types.TaskStatus{types.TaskStatusScheduled}, now, w.cfg.BatchSize)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list scheduled tasks")
	}

	// lower priority number runs first, then oldest due time
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})

	sem := semaphore.NewWeighted(int64(w.cfg.Concurrency))
	eg, egCtx := errgroup.WithContext(ctx)
	results := make([]bool, len(due)+len(scheduled))

	jobs := make([]*model.Task, 0, len(results))
	jobs = append(jobs, due...)
	jobs = append(jobs, scheduled...)

	for i, task := range jobs {
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		eg.Go(func() error {
			defer sem.Release(1)
			results[i] = w.handle(egCtx, task)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	advanced := 0
	for _, ok := range results {
		if ok {
			advanced++
		}
	}
	return advanced, nil
}

// handle runs one task under its lease. Failures are logged, never returned,
// so one bad task does not stall the batch.
func (w *TaskWorker) handle(ctx context.Context, task *model.Task) bool {
	logger := logging.Default().With("task_id", task.ID, "tenant_id", task.TenantID)

	ctx = logging.With(ctx, logger)
	ctx, lease, err := usecase.HoldLease(ctx, w.repo.Lease(), task.ID, w.holder, w.cfg.LeaseTTL, w.now)
	if err != nil {
		if !errors.Is(err, model.ErrLeaseHeld) {
			logger.Error("failed to acquire task lease", "error", err)
		}
		return false
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			logger.Warn("failed to release task lease", "error", err)
		}
	}()

	// the listed snapshot may be stale once the lease is ours
	current, err := w.repo.Task().Get(ctx, task.TenantID, task.ID)
	if err != nil {
		logger.Error("failed to reload task", "error", err)
		return false
	}
	if current.Status != task.Status || current.NextAttemptAt.After(w.now()) {
		return false
	}

	if current.Status == types.TaskStatusScheduled {
		_, err = w.processor.CompleteScheduled(ctx, current)
	} else {
		_, err = w.processor.Process(ctx, current)
	}

	switch {
	case err == nil:
		return true
	case errors.Is(err, usecase.ErrTaskSettled):
		logger.Info("task settled concurrently", "error", err)
		return false
	default:
		logger.Error("failed to process task", "error", err)
		return false
	}
}
