package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/taskpilot/pkg/service/classifier"
	"github.com/urfave/cli/v3"
)

// LLM provider names accepted in flags and agent configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// ValidProvider reports whether name is a supported LLM provider
func ValidProvider(name string) bool {
	switch name {
	case ProviderGemini, ProviderOpenAI, ProviderClaude:
		return true
	default:
		return false
	}
}

// LLM holds configuration for the classifier language models
type LLM struct {
	defaultProvider string
	timeout         time.Duration

	geminiProject  string
	geminiLocation string
	geminiModel    string

	openaiAPIKey string
	openaiModel  string

	claudeAPIKey string
	claudeModel  string
}

// Flags returns CLI flags for LLM configuration
func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Provider used by agents that do not name one (gemini, openai, claude)",
			Category:    "LLM",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("TASKPILOT_LLM_PROVIDER"),
			Destination: &x.defaultProvider,
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Usage:       "Timeout of one classification call",
			Category:    "LLM",
			Value:       classifier.DefaultTimeout,
			Sources:     cli.EnvVars("TASKPILOT_LLM_TIMEOUT"),
			Destination: &x.timeout,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("TASKPILOT_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_GEMINI_MODEL"),
			Destination: &x.geminiModel,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI model name",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_OPENAI_MODEL"),
			Destination: &x.openaiModel,
		},
		&cli.StringFlag{
			Name:        "claude-api-key",
			Usage:       "Anthropic API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_CLAUDE_API_KEY"),
			Destination: &x.claudeAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model name",
			Category:    "LLM",
			Sources:     cli.EnvVars("TASKPILOT_CLAUDE_MODEL"),
			Destination: &x.claudeModel,
		},
	}
}

func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("default_provider", x.defaultProvider),
		slog.Duration("timeout", x.timeout),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
		slog.Bool("openai", x.openaiAPIKey != ""),
		slog.Bool("claude", x.claudeAPIKey != ""),
	)
}

// DefaultProvider returns the provider used when an agent names none
func (x *LLM) DefaultProvider() string {
	return x.defaultProvider
}

type llmFactory struct {
	name       string
	configured bool
	build      func(ctx context.Context) (gollem.LLMClient, error)
}

func (x *LLM) factories() []llmFactory {
	return []llmFactory{
		{
			name:       ProviderGemini,
			configured: x.geminiProject != "",
			build: func(ctx context.Context) (gollem.LLMClient, error) {
				var opts []gemini.Option
				if x.geminiModel != "" {
					opts = append(opts, gemini.WithModel(x.geminiModel))
				}
				return gemini.New(ctx, x.geminiProject, x.geminiLocation, opts...)
			},
		},
		{
			name:       ProviderOpenAI,
			configured: x.openaiAPIKey != "",
			build: func(ctx context.Context) (gollem.LLMClient, error) {
				var opts []openai.Option
				if x.openaiModel != "" {
					opts = append(opts, openai.WithModel(x.openaiModel))
				}
				return openai.New(ctx, x.openaiAPIKey, opts...)
			},
		},
		{
			name:       ProviderClaude,
			configured: x.claudeAPIKey != "",
			build: func(ctx context.Context) (gollem.LLMClient, error) {
				var opts []claude.Option
				if x.claudeModel != "" {
					opts = append(opts, claude.WithModel(x.claudeModel))
				}
				return claude.New(ctx, x.claudeAPIKey, opts...)
			},
		},
	}
}

// Configure builds a classifier router over every configured provider.
// Returns nil when no provider is configured; classification then fails and
// tasks are settled as failed.
func (x *LLM) Configure(ctx context.Context) (*classifier.Router, error) {
	if x.defaultProvider != "" && !ValidProvider(x.defaultProvider) {
		return nil, goerr.Wrap(ErrInvalidProvider, "invalid default provider", goerr.V(ValueKey, x.defaultProvider))
	}

	router := classifier.NewRouter(x.defaultProvider)
	configured := 0
	for _, f := range x.factories() {
		if !f.configured {
			continue
		}
		client, err := f.build(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create LLM client", goerr.V("provider", f.name))
		}
		c, err := classifier.New(client, classifier.WithTimeout(x.timeout))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create classifier", goerr.V("provider", f.name))
		}
		router.Register(f.name, c)
		configured++
	}

	if configured == 0 {
		return nil, nil
	}
	return router, nil
}
