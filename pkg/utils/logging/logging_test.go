package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

func TestFromFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	orig := logging.Default()
	t.Cleanup(func() { logging.SetDefault(orig) })

	logging.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	logging.From(context.Background()).Info("hello")
	gt.String(t, buf.String()).Contains("hello")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("task_id", "t-1")
	ctx := logging.With(context.Background(), logger)

	logging.From(ctx).Info("processing")
	gt.String(t, buf.String()).Contains("task_id=t-1")
}
