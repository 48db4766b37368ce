package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/service/worker"
	"github.com/urfave/cli/v3"
)

// Worker holds the task worker pool and trigger scheduler settings
type Worker struct {
	interval    time.Duration
	batchSize   int
	concurrency int
	leaseTTL    time.Duration
	triggerTick time.Duration
}

func (x *Worker) Flags() []cli.Flag {
	def := worker.DefaultConfig()
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "worker-interval",
			Usage:       "Polling interval of the task worker",
			Category:    "Worker",
			Value:       def.Interval,
			Sources:     cli.EnvVars("TASKPILOT_WORKER_INTERVAL"),
			Destination: &x.interval,
		},
		&cli.IntFlag{
			Name:        "worker-batch-size",
			Usage:       "Maximum number of due tasks fetched per poll",
			Category:    "Worker",
			Value:       def.BatchSize,
			Sources:     cli.EnvVars("TASKPILOT_WORKER_BATCH_SIZE"),
			Destination: &x.batchSize,
		},
		&cli.IntFlag{
			Name:        "worker-concurrency",
			Usage:       "Number of tasks processed in parallel",
			Category:    "Worker",
			Value:       def.Concurrency,
			Sources:     cli.EnvVars("TASKPILOT_WORKER_CONCURRENCY"),
			Destination: &x.concurrency,
		},
		&cli.DurationFlag{
			Name:        "worker-lease-ttl",
			Usage:       "Lease TTL of a task being processed",
			Category:    "Worker",
			Value:       def.LeaseTTL,
			Sources:     cli.EnvVars("TASKPILOT_WORKER_LEASE_TTL"),
			Destination: &x.leaseTTL,
		},
		&cli.DurationFlag{
			Name:        "trigger-tick",
			Usage:       "How often schedule triggers are checked",
			Category:    "Worker",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("TASKPILOT_TRIGGER_TICK"),
			Destination: &x.triggerTick,
		},
	}
}

func (x Worker) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("interval", x.interval),
		slog.Int("batch_size", x.batchSize),
		slog.Int("concurrency", x.concurrency),
		slog.Duration("lease_ttl", x.leaseTTL),
		slog.Duration("trigger_tick", x.triggerTick),
	)
}

// Configure validates and returns the worker pool configuration
func (x *Worker) Configure() (worker.Config, error) {
	if x.concurrency < 1 {
		return worker.Config{}, goerr.New("worker-concurrency must be at least 1", goerr.V(ValueKey, x.concurrency))
	}
	if x.batchSize < 1 {
		return worker.Config{}, goerr.New("worker-batch-size must be at least 1", goerr.V(ValueKey, x.batchSize))
	}
	if x.interval <= 0 || x.leaseTTL <= 0 {
		return worker.Config{}, goerr.Wrap(ErrInvalidDuration, "worker interval and lease TTL must be positive")
	}
	return worker.Config{
		Interval:    x.interval,
		BatchSize:   x.batchSize,
		Concurrency: x.concurrency,
		LeaseTTL:    x.leaseTTL,
	}, nil
}

// TriggerTick returns the trigger scheduler tick
func (x *Worker) TriggerTick() time.Duration {
	return x.triggerTick
}
