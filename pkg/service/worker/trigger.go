package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// Ingester accepts raw channel input
type Ingester interface {
	Ingest(ctx context.Context, channel types.SourceChannel, raw model.RawInput) (*model.Task, error)
}

// TriggerScheduler fires the scheduled triggers of every registered agent.
// Each trigger first fires one interval after Start.
type TriggerScheduler struct {
	registry *model.AgentRegistry
	ingester Ingester
	tick     time.Duration
	now      func() time.Time

	mu     sync.Mutex
	nextAt map[string]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTriggerScheduler creates a scheduler that checks for due triggers every tick
func NewTriggerScheduler(registry *model.AgentRegistry, ingester Ingester, tick time.Duration) *TriggerScheduler {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return &TriggerScheduler{
		registry: registry,
		ingester: ingester,
		tick:     tick,
		now:      time.Now,
		nextAt:   make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the trigger loop in the background
func (s *TriggerScheduler) Start(ctx context.Context) error {
	logging.Default().Info("trigger scheduler starting", "tick", s.tick.String())
	go s.run(ctx)
	return nil
}

// Stop signals the scheduler to stop and waits for completion
func (s *TriggerScheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("trigger scheduler stopped")
}

func (s *TriggerScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.FireDue(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// FireDue ingests every trigger whose interval has elapsed and returns the
// number of tasks created
func (s *TriggerScheduler) FireDue(ctx context.Context) int {
	now := s.now().UTC()
	fired := 0

	for _, agent := range s.registry.List() {
		if !agent.Active {
			continue
		}
		for _, trigger := range agent.Triggers {
			if trigger.Interval <= 0 || !s.due(agent.TenantID, trigger, now) {
				continue
			}
			if err := s.fire(ctx, agent.TenantID, trigger, now); err != nil {
				logging.Default().Error("failed to fire trigger",
					"tenant_id", agent.TenantID, "trigger_id", trigger.ID, "error", err)
				continue
			}
			fired++
		}
	}
	return fired
}

// due reports whether trigger should fire at now and, if so, books the next slot
func (s *TriggerScheduler) due(tenantID types.TenantID, trigger model.Trigger, now time.Time) bool {
	key := string(tenantID) + "/" + trigger.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.nextAt[key]
	if !ok {
		s.nextAt[key] = now.Add(trigger.Interval)
		return false
	}
	if now.Before(next) {
		return false
	}
	s.nextAt[key] = now.Add(trigger.Interval)
	return true
}

func (s *TriggerScheduler) fire(ctx context.Context, tenantID types.TenantID, trigger model.Trigger, now time.Time) error {
	body, err := json.Marshal(usecase.ScheduleFire{
		TriggerID: trigger.ID,
		Text:      trigger.Text,
		UserID:    trigger.UserID,
		FiredAt:   now,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to encode trigger payload")
	}

	task, err := s.ingester.Ingest(ctx, types.SourceSchedule, model.RawInput{TenantID: tenantID, Body: body})
	if err != nil {
		return goerr.Wrap(err, "failed to ingest trigger", goerr.V("trigger_id", trigger.ID))
	}
	logging.Default().Info("trigger fired",
		"tenant_id", tenantID, "trigger_id", trigger.ID, "task_id", task.ID)
	return nil
}
