package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/repository/memory"
)

func TestRateCounter_PrunesEndedWindows(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	windows := model.RateLimits{PerMinute: 5, PerHour: 100}.Windows()
	base := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	// one call per minute for two hours keeps at most the current minute and hour
	for i := 0; i < 120; i++ {
		ok, _, err := repo.RateCounter().Consume(ctx, "acme", "agent-acme", windows, 1, base.Add(time.Duration(i)*time.Minute))
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
		gt.Bool(t, repo.RateCounterLen() <= len(windows)).True()
	}

	// counts of the live windows survive pruning
	at := base.Add(3 * time.Hour)
	for i := 0; i < 5; i++ {
		ok, _, err := repo.RateCounter().Consume(ctx, "acme", "agent-acme", windows, 1, at)
		gt.NoError(t, err).Required()
		gt.Bool(t, ok).True()
	}
	ok, retryAt, err := repo.RateCounter().Consume(ctx, "acme", "agent-acme", windows, 1, at.Add(30*time.Second))
	gt.NoError(t, err).Required()
	gt.Bool(t, ok).False()
	gt.Bool(t, retryAt.Equal(at.Add(time.Minute))).True()
}
