package config_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
)

func TestLoggerNewHandler(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "console", level: "info", format: "console"},
		{name: "json", level: "debug", format: "json"},
		{name: "level is case insensitive", level: "WARN", format: "json"},
		{name: "unknown level", level: "verbose", format: "json", wantErr: true},
		{name: "unknown format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := config.NewLoggerForTest(tt.level, tt.format, "stdout").NewHandler(&bytes.Buffer{})
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, h).NotNil()
		})
	}
}

type credentialLog struct {
	Label  string
	Secret string `masq:"secret"`
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	h, err := config.NewLoggerForTest("info", "json", "stdout").NewHandler(&buf)
	gt.NoError(t, err).Required()

	slog.New(h).Info("saved", "credential", credentialLog{Label: "calendar", Secret: "s3cr3t-value"})

	out := buf.String()
	gt.String(t, out).Contains("calendar")
	gt.Bool(t, strings.Contains(out, "s3cr3t-value")).False()
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	h, err := config.NewLoggerForTest("warn", "json", "stdout").NewHandler(&buf)
	gt.NoError(t, err).Required()

	logger := slog.New(h)
	logger.Info("quiet")
	logger.Warn("loud")

	gt.Bool(t, strings.Contains(buf.String(), "quiet")).False()
	gt.String(t, buf.String()).Contains("loud")
}
