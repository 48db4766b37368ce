package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

const validTOML = `
[resolver]
step = "15m"
max_results = 3
work_start = "08:00"
work_end = "17:30"
work_days = ["mon", "tue", "wed"]
timezone = "UTC"

[[agent]]
tenant_id = "acme"
name = "Acme scheduler"
provider = "gemini"
model = "gemini-2.5-flash"
confidence_threshold = 0.7
webhook_secret = "whsec-acme"
slack_team_id = "T-ACME"

[agent.capabilities]
create_events = true
send_notifications = true

[agent.rate_limits]
per_minute = 5
per_hour = 100

[agent.notify]
email = true
chat_channel = "C123"

[agent.calendar]
default_assignee = "alice"
default_duration = "45m"
buffer = "10m"
search_horizon = "72h"

[agent.calendar.assignee_buffers]
bob = "20m"

[[agent.trigger]]
id = "daily-digest"
interval = "24h"
text = "Send the daily digest"
user_id = "ops"

[[agent.work_item]]
id = "deal-1"
title = "Big deal"
stage = "lead"

[[agent]]
id = "globex-bot"
tenant_id = "globex"
name = "Globex"
active = false
`

const validYAML = `
agent:
  - tenant_id: acme
    name: Acme scheduler
    provider: openai
    confidence_threshold: 0.6
    capabilities:
      create_events: true
    calendar:
      default_duration: 30m
      buffer: 5m
    trigger:
      - id: hourly
        interval: 1h
        text: Check the inbox
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
	return path
}

func TestLoadAppConfiguration_TOML(t *testing.T) {
	cfg, err := config.LoadAppConfiguration(writeConfig(t, "agents.toml", validTOML))
	gt.NoError(t, err).Required()
	gt.Array(t, cfg.Agents).Length(2)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	registry := cfg.Registry(now)

	acme, err := registry.Get("acme")
	gt.NoError(t, err).Required()
	gt.Value(t, acme.ID).Equal(types.AgentID("agent-acme"))
	gt.Bool(t, acme.Active).True()
	gt.Value(t, acme.Threshold()).Equal(0.7)
	gt.Bool(t, acme.Capabilities.CanCreateEvents).True()
	gt.Bool(t, acme.Capabilities.CanAssignPipelines).False()
	gt.Value(t, acme.RateLimits.PerHour).Equal(100)
	gt.Bool(t, acme.Notify.Email).True()
	gt.Value(t, acme.Notify.ChatChannel).Equal("C123")
	gt.Value(t, acme.Calendar.DefaultDuration).Equal(45 * time.Minute)
	gt.Value(t, acme.Calendar.BufferFor("bob")).Equal(20 * time.Minute)
	gt.Value(t, acme.Calendar.BufferFor("alice")).Equal(10 * time.Minute)
	gt.Array(t, acme.Triggers).Length(1).Required()
	gt.Value(t, acme.Triggers[0].Interval).Equal(24 * time.Hour)
	gt.Value(t, acme.CreatedAt).Equal(now)

	gt.Value(t, registry.FindBySlackTeam("T-ACME")).Equal(acme)

	globex, err := registry.Get("globex")
	gt.NoError(t, err).Required()
	gt.Value(t, globex.ID).Equal(types.AgentID("globex-bot"))
	gt.Bool(t, globex.Active).False()

	items := cfg.WorkItems(now)
	gt.Array(t, items).Length(1).Required()
	gt.Value(t, items[0].TenantID).Equal(types.TenantID("acme"))
	gt.Value(t, items[0].Stage).Equal("lead")

	rc := cfg.ResolverConfig()
	gt.Value(t, rc.Step).Equal(15 * time.Minute)
	gt.Value(t, rc.MaxResults).Equal(3)
	gt.Value(t, rc.WorkStart).Equal(8 * time.Hour)
	gt.Value(t, rc.WorkEnd).Equal(17*time.Hour + 30*time.Minute)
	gt.Array(t, rc.WorkDays).Length(3)
	gt.Value(t, rc.DistanceWeight).Equal(1.0)
}

func TestLoadAppConfiguration_YAML(t *testing.T) {
	for _, ext := range []string{"agents.yaml", "agents.yml"} {
		t.Run(ext, func(t *testing.T) {
			cfg, err := config.LoadAppConfiguration(writeConfig(t, ext, validYAML))
			gt.NoError(t, err).Required()

			agent, err := cfg.Registry(time.Now()).Get("acme")
			gt.NoError(t, err).Required()
			gt.Value(t, agent.Provider).Equal("openai")
			gt.Value(t, agent.Calendar.DefaultDuration).Equal(30 * time.Minute)
			gt.Value(t, agent.Calendar.Buffer).Equal(5 * time.Minute)
			gt.Array(t, agent.Triggers).Length(1).Required()
			gt.Value(t, agent.Triggers[0].Interval).Equal(time.Hour)

			// no resolver section keeps defaults
			gt.Value(t, cfg.ResolverConfig().MaxResults).Equal(5)
		})
	}
}

func TestLoadAppConfiguration_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name: "duplicate tenant",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
[[agent]]
tenant_id = "acme"
name = "b"
`,
			wantErr: config.ErrDuplicateTenant,
		},
		{
			name: "missing name",
			content: `
[[agent]]
tenant_id = "acme"
`,
			wantErr: config.ErrMissingName,
		},
		{
			name: "unknown provider",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
provider = "llama"
`,
			wantErr: config.ErrInvalidProvider,
		},
		{
			name: "threshold out of range",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
confidence_threshold = 1.5
`,
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name: "negative rate limit",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
[agent.rate_limits]
per_hour = -1
`,
			wantErr: config.ErrInvalidRateLimit,
		},
		{
			name: "trigger without interval",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
[[agent.trigger]]
id = "t"
text = "x"
`,
			wantErr: config.ErrInvalidDuration,
		},
		{
			name: "duplicate trigger",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
[[agent.trigger]]
id = "t"
interval = "1h"
text = "x"
[[agent.trigger]]
id = "t"
interval = "2h"
text = "y"
`,
			wantErr: config.ErrDuplicateTrigger,
		},
		{
			name: "webhook url without secret",
			content: `
[[agent]]
tenant_id = "acme"
name = "a"
[agent.notify]
webhook_url = "https://example.com/hook"
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "invalid tenant id",
			content: `
[[agent]]
tenant_id = "Acme Corp"
name = "a"
`,
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "work end before start",
			content: `
[resolver]
work_start = "18:00"
work_end = "09:00"
`,
			wantErr: config.ErrInvalidWorkingTime,
		},
		{
			name: "unknown weekday",
			content: `
[resolver]
work_days = ["funday"]
`,
			wantErr: config.ErrInvalidWorkingTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadAppConfiguration(writeConfig(t, "agents.toml", tt.content))
			gt.Error(t, err).Is(tt.wantErr)
		})
	}
}

func TestLoadAppConfiguration_BadInput(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadAppConfiguration(filepath.Join(t.TempDir(), "none.toml"))
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := config.LoadAppConfiguration(writeConfig(t, "agents.json", "{}"))
		gt.Error(t, err).Is(config.ErrUnsupportedFormat)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := config.LoadAppConfiguration(writeConfig(t, "agents.toml", `
[[agent]]
tenant_id = "acme"
name = "a"
colour = "blue"
`))
		gt.Error(t, err)
	})

	t.Run("malformed duration", func(t *testing.T) {
		_, err := config.LoadAppConfiguration(writeConfig(t, "agents.toml", `
[[agent]]
tenant_id = "acme"
name = "a"
[agent.calendar]
buffer = "ten minutes"
`))
		gt.Error(t, err)
	})
}

func TestAgentFile_Configure(t *testing.T) {
	path := writeConfig(t, "agents.toml", validTOML)
	cfg, registry, err := config.NewAgentFileForTest(path, true).Configure()
	gt.NoError(t, err).Required()
	gt.Array(t, cfg.Agents).Length(2)
	gt.Array(t, registry.List()).Length(2)
	gt.Bool(t, config.NewAgentFileForTest(path, true).AllowUnsigned()).True()
}
