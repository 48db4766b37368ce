package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	httpctrl "github.com/secmon-lab/taskpilot/pkg/controller/http"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/classifier"
	"github.com/secmon-lab/taskpilot/pkg/service/resolver"
	"github.com/secmon-lab/taskpilot/pkg/service/worker"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/async"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe(version string) *cli.Command {
	var addr string
	var agentCfg config.AgentFile
	var repoCfg config.Repository
	var llmCfg config.LLM
	var slackCfg config.Slack
	var notifyCfg config.Notify
	var executorCfg config.Executor
	var vaultCfg config.Vault
	var authCfg config.Auth
	var workerCfg config.Worker
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("TASKPILOT_ADDR"),
			Destination: &addr,
		},
	}

	flags = append(flags, agentCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)
	flags = append(flags, executorCfg.Flags()...)
	flags = append(flags, vaultCfg.Flags()...)
	flags = append(flags, authCfg.Flags()...)
	flags = append(flags, workerCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and task workers",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			sentryCfg.SetRelease(version)
			flush, err := sentryCfg.Configure()
			if err != nil {
				return err
			}
			defer flush()

			appCfg, registry, err := agentCfg.Configure()
			if err != nil {
				return err
			}
			logger.Info("Agent configuration loaded", "config", agentCfg, "agents", len(registry.List()))

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			if err := seedWorkItems(ctx, repo, appCfg.WorkItems(time.Now().UTC())); err != nil {
				return err
			}

			ucOpts, err := buildUseCaseOptions(ctx, appCfg, registry, &llmCfg, &slackCfg, &notifyCfg, &executorCfg, &vaultCfg)
			if err != nil {
				return err
			}
			ucOpts = append(ucOpts, usecase.WithNormalizerOptions(usecase.WithAllowUnsigned(agentCfg.AllowUnsigned())))
			if agentCfg.AllowUnsigned() {
				logger.Warn("Unsigned webhooks are accepted for tenants without a webhook secret")
			}

			authUC, err := authCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure authentication")
			}
			switch {
			case authUC == nil:
				logger.Warn("Admin API disabled: set --token-secret to enable it")
			case authCfg.IsNoAuthMode():
				logger.Warn("Running admin API in no-auth mode (development only)", "auth", authCfg)
			}
			if authUC != nil {
				ucOpts = append(ucOpts, usecase.WithAuth(authUC))
			}

			uc := usecase.New(repo, registry, ucOpts...)

			httpOpts := []httpctrl.Options{}
			if authUC != nil {
				httpOpts = append(httpOpts, httpctrl.WithAuth(authUC))
			}
			if slackCfg.IsWebhookConfigured() {
				httpOpts = append(httpOpts, httpctrl.WithSlackSigningSecret(slackCfg.SigningSecret()))
				logger.Info("Slack event handler enabled")
			}

			workerConf, err := workerCfg.Configure()
			if err != nil {
				return err
			}
			taskWorker := worker.NewTaskWorker(repo, uc.Orchestrator, workerConf)
			if err := taskWorker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start task worker")
			}
			defer taskWorker.Stop()

			triggers := worker.NewTriggerScheduler(registry, uc.Task, workerCfg.TriggerTick())
			if err := triggers.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start trigger scheduler")
			}
			defer triggers.Stop()

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr, "worker", workerCfg)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// stop accepting input before the workers drain
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				if err := async.Wait(shutdownCtx); err != nil {
					logger.Warn("Chat events still being ingested at shutdown", "error", err)
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}

// buildUseCaseOptions wires the classifier, transports and executor
// collaborators into use case options
func buildUseCaseOptions(
	ctx context.Context,
	appCfg *config.AppConfig,
	registry *model.AgentRegistry,
	llmCfg *config.LLM,
	slackCfg *config.Slack,
	notifyCfg *config.Notify,
	executorCfg *config.Executor,
	vaultCfg *config.Vault,
) ([]usecase.Option, error) {
	logger := logging.Default()
	var opts []usecase.Option

	router, err := llmCfg.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure classifier")
	}
	if router == nil {
		logger.Warn("No LLM provider configured; every task will fail classification")
	} else {
		warnUnservedProviders(router, registry)
		opts = append(opts, usecase.WithClassifier(router))
		logger.Info("Classifier enabled", "llm", llmCfg, "providers", router.Providers())
	}

	var chat interfaces.ChatPoster
	slackClient, err := slackCfg.Configure()
	if err != nil {
		return nil, err
	}
	if slackClient != nil {
		chat = slackClient
		logger.Info("Slack chat notifications enabled")
	}

	dispatcherOpts, err := notifyCfg.Configure(chat)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure notifications")
	}
	opts = append(opts, usecase.WithDispatcherOptions(dispatcherOpts...))
	logger.Info("Notification transports configured", "notify", notifyCfg)

	executorOpts, err := executorCfg.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure executor")
	}
	executorOpts = append(executorOpts,
		usecase.WithResolver(resolver.New(resolver.WithConfig(appCfg.ResolverConfig()))))
	opts = append(opts, usecase.WithExecutorOptions(executorOpts...))

	sealer, err := vaultCfg.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure vault")
	}
	if sealer == nil {
		logger.Warn("Credential vault disabled: actions that need credentials will fail")
	} else {
		opts = append(opts, usecase.WithSealer(sealer))
	}

	return opts, nil
}

func warnUnservedProviders(router *classifier.Router, registry *model.AgentRegistry) {
	for _, agent := range registry.List() {
		if !router.Has(agent.Provider) {
			logging.Default().Warn("Agent provider is not configured",
				"tenant_id", agent.TenantID, "provider", agent.Provider)
		}
	}
}

// seedWorkItems stores configured work items that do not exist yet; stored
// items keep the stage actions moved them to
func seedWorkItems(ctx context.Context, repo interfaces.Repository, items []*model.WorkItem) error {
	seeded := 0
	for _, item := range items {
		_, err := repo.WorkItem().Get(ctx, item.TenantID, item.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return goerr.Wrap(err, "failed to look up work item",
				goerr.V("tenant_id", item.TenantID), goerr.V("work_item_id", item.ID))
		}
		if err := repo.WorkItem().Put(ctx, item); err != nil {
			return goerr.Wrap(err, "failed to seed work item",
				goerr.V("tenant_id", item.TenantID), goerr.V("work_item_id", item.ID))
		}
		seeded++
	}
	if seeded > 0 {
		logging.Default().Info("Work items seeded", "count", seeded)
	}
	return nil
}
