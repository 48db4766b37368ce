package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

// AgentFile holds the flags that locate the agent configuration and govern
// inbound authentication
type AgentFile struct {
	path          string
	allowUnsigned bool
}

func (x *AgentFile) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent-config",
			Aliases:     []string{"c"},
			Usage:       "Agent configuration file (.toml, .yaml or .yml)",
			Category:    "Agent",
			Required:    true,
			Sources:     cli.EnvVars("TASKPILOT_AGENT_CONFIG"),
			Destination: &x.path,
		},
		&cli.BoolFlag{
			Name:        "allow-unsigned-webhooks",
			Usage:       "Accept webhooks from tenants with no configured secret (audited as unverified)",
			Category:    "Agent",
			Sources:     cli.EnvVars("TASKPILOT_ALLOW_UNSIGNED_WEBHOOKS"),
			Destination: &x.allowUnsigned,
		},
	}
}

func (x AgentFile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
		slog.Bool("allow_unsigned", x.allowUnsigned),
	)
}

// AllowUnsigned reports whether unsigned webhooks are accepted
func (x *AgentFile) AllowUnsigned() bool {
	return x.allowUnsigned
}

// Configure loads the configuration and builds the agent registry
func (x *AgentFile) Configure() (*AppConfig, *model.AgentRegistry, error) {
	cfg, err := LoadAppConfiguration(x.path)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load agent configuration")
	}
	return cfg, cfg.Registry(time.Now().UTC()), nil
}
