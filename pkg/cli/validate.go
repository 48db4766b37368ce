package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var agentCfg config.AgentFile
	var llmCfg config.LLM
	var checkLLM bool

	var flags []cli.Flag
	flags = append(flags, agentCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "check-llm",
		Usage:       "Also build the configured LLM clients and verify every agent provider is served",
		Destination: &checkLLM,
	})

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the agent configuration file",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			appCfg, registry, err := agentCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "configuration validation failed")
			}

			agents := registry.List()
			logger.Info("Configuration validation passed",
				"agent_count", len(agents),
				"work_item_count", len(appCfg.WorkItems(time.Now().UTC())),
			)
			for _, agent := range agents {
				logger.Info("Agent validated",
					"tenant_id", agent.TenantID,
					"id", agent.ID,
					"name", agent.Name,
					"provider", agent.Provider,
					"active", agent.Active,
					"triggers", len(agent.Triggers),
				)
			}

			if !checkLLM {
				return nil
			}

			router, err := llmCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure classifier")
			}
			if router == nil {
				return goerr.New("no LLM provider configured")
			}

			var missing []string
			for _, agent := range agents {
				if agent.Active && !router.Has(agent.Provider) {
					missing = append(missing, string(agent.TenantID))
				}
			}
			if len(missing) > 0 {
				return goerr.New("agents use providers that are not configured", goerr.V("tenants", missing))
			}

			logger.Info("LLM providers validated", "providers", router.Providers())
			return nil
		},
	}
}
