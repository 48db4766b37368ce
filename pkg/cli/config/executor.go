package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/service/automation"
	"github.com/secmon-lab/taskpilot/pkg/service/calendar"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Executor holds the collaborators that actions run against
type Executor struct {
	calendarBackend    string
	automationEndpoint string
	automationSecret   string
	actionTimeout      time.Duration
}

func (x *Executor) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "calendar-backend",
			Usage:       "Calendar backend (memory, none)",
			Category:    "Executor",
			Value:       "memory",
			Sources:     cli.EnvVars("TASKPILOT_CALENDAR_BACKEND"),
			Destination: &x.calendarBackend,
		},
		&cli.StringFlag{
			Name:        "automation-endpoint",
			Usage:       "Workflow automation endpoint URL",
			Category:    "Executor",
			Sources:     cli.EnvVars("TASKPILOT_AUTOMATION_ENDPOINT"),
			Destination: &x.automationEndpoint,
		},
		&cli.StringFlag{
			Name:        "automation-secret",
			Usage:       "Secret used to sign automation requests",
			Category:    "Executor",
			Sources:     cli.EnvVars("TASKPILOT_AUTOMATION_SECRET"),
			Destination: &x.automationSecret,
		},
		&cli.DurationFlag{
			Name:        "action-timeout",
			Usage:       "Timeout of one action execution",
			Category:    "Executor",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("TASKPILOT_ACTION_TIMEOUT"),
			Destination: &x.actionTimeout,
		},
	}
}

func (x Executor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("calendar_backend", x.calendarBackend),
		slog.String("automation_endpoint", x.automationEndpoint),
		slog.Int("automation-secret.len", len(x.automationSecret)),
		slog.Duration("action_timeout", x.actionTimeout),
	)
}

// Configure returns the executor options for the configured collaborators
func (x *Executor) Configure() ([]usecase.ExecutorOption, error) {
	if x.actionTimeout <= 0 {
		return nil, goerr.New("action-timeout must be positive", goerr.V(ValueKey, x.actionTimeout))
	}
	opts := []usecase.ExecutorOption{
		usecase.WithActionTimeout(x.actionTimeout),
	}

	switch x.calendarBackend {
	case "memory":
		opts = append(opts, usecase.WithCalendar(calendar.New()))
	case "none", "":
	default:
		return nil, goerr.New("invalid calendar backend", goerr.V(ValueKey, x.calendarBackend))
	}

	if x.automationEndpoint != "" {
		var aopts []automation.Option
		if x.automationSecret != "" {
			aopts = append(aopts, automation.WithSecret(x.automationSecret))
		}
		opts = append(opts, usecase.WithAutomation(automation.New(x.automationEndpoint, aopts...)))
	}

	return opts, nil
}
