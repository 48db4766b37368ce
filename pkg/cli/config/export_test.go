package config

import "time"

func NewSlackForTest(botToken, signingSecret string) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
	}
}

func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

func NewLLMForTest(defaultProvider string) *LLM {
	return &LLM{defaultProvider: defaultProvider, timeout: time.Second}
}

func NewAuthForTest(tokenSecret, noAuthTenantID string) *Auth {
	return &Auth{tokenSecret: tokenSecret, noAuthTenantID: noAuthTenantID}
}

func NewVaultForTest(masterSecret string) *Vault {
	return &Vault{masterSecret: masterSecret}
}

func NewWorkerForTest(interval time.Duration, batchSize, concurrency int, leaseTTL time.Duration) *Worker {
	return &Worker{interval: interval, batchSize: batchSize, concurrency: concurrency, leaseTTL: leaseTTL}
}

func NewExecutorForTest(calendarBackend, automationEndpoint string, actionTimeout time.Duration) *Executor {
	return &Executor{
		calendarBackend:    calendarBackend,
		automationEndpoint: automationEndpoint,
		actionTimeout:      actionTimeout,
	}
}

func NewNotifyForTest(smtpAddr, smtpFrom string, retryAttempts int) *Notify {
	return &Notify{
		smtpAddr:      smtpAddr,
		smtpFrom:      smtpFrom,
		retryAttempts: retryAttempts,
		retryBackoff:  time.Millisecond,
	}
}

func NewAgentFileForTest(path string, allowUnsigned bool) *AgentFile {
	return &AgentFile{path: path, allowUnsigned: allowUnsigned}
}
