package usecase

import (
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/cipher"
)

type UseCases struct {
	repo       interfaces.Repository
	registry   *model.AgentRegistry
	classifier interfaces.Classifier
	sealer     *cipher.Sealer

	executorOpts   []ExecutorOption
	dispatcherOpts []DispatcherOption
	normalizerOpts []NormalizerOption

	Vault        *VaultUseCase
	Notifier     *NotificationDispatcher
	Engine       *DecisionEngine
	Executor     *ActionExecutor
	Orchestrator *Orchestrator
	Normalizer   *Normalizer
	Task         *TaskUseCase
	Auth         AuthUseCaseInterface
}

type Option func(*UseCases)

func WithClassifier(c interfaces.Classifier) Option {
	return func(uc *UseCases) {
		uc.classifier = c
	}
}

func WithSealer(s *cipher.Sealer) Option {
	return func(uc *UseCases) {
		uc.sealer = s
	}
}

func WithAuth(auth AuthUseCaseInterface) Option {
	return func(uc *UseCases) {
		uc.Auth = auth
	}
}

func WithExecutorOptions(opts ...ExecutorOption) Option {
	return func(uc *UseCases) {
		uc.executorOpts = append(uc.executorOpts, opts...)
	}
}

func WithDispatcherOptions(opts ...DispatcherOption) Option {
	return func(uc *UseCases) {
		uc.dispatcherOpts = append(uc.dispatcherOpts, opts...)
	}
}

func WithNormalizerOptions(opts ...NormalizerOption) Option {
	return func(uc *UseCases) {
		uc.normalizerOpts = append(uc.normalizerOpts, opts...)
	}
}

// New wires the task pipeline. A nil sealer disables the vault; actions that
// need credentials then fail with a credential error.
func New(repo interfaces.Repository, registry *model.AgentRegistry, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		registry: registry,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.sealer != nil {
		uc.Vault = NewVaultUseCase(repo, uc.sealer)
	}
	uc.Notifier = NewNotificationDispatcher(registry, uc.dispatcherOpts...)
	uc.Engine = NewDecisionEngine(uc.classifier)
	uc.Executor = NewActionExecutor(repo, uc.Vault, uc.Notifier, uc.executorOpts...)
	uc.Orchestrator = NewOrchestrator(repo, registry, uc.Engine, uc.Executor, uc.Notifier)
	uc.Normalizer = NewNormalizer(registry, uc.normalizerOpts...)
	uc.Task = NewTaskUseCase(repo, uc.Normalizer, uc.Orchestrator)

	return uc
}
