package config_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

var testTokenSecret = strings.Repeat("k", 32)

func TestAuthConfigure(t *testing.T) {
	t.Run("no settings disable the admin API", func(t *testing.T) {
		auth, err := config.NewAuthForTest("", "").Configure()
		gt.NoError(t, err)
		gt.Value(t, auth).Nil()
	})

	t.Run("no-auth returns a fixed tenant", func(t *testing.T) {
		cfg := config.NewAuthForTest("", "acme")
		gt.Bool(t, cfg.IsNoAuthMode()).True()

		auth, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Bool(t, auth.IsNoAuthn()).True()

		p, err := auth.ValidateToken(context.Background(), "")
		gt.NoError(t, err).Required()
		gt.Value(t, p.TenantID).Equal(types.TenantID("acme"))
	})

	t.Run("no-auth rejects invalid tenant", func(t *testing.T) {
		_, err := config.NewAuthForTest("", "Not Valid").Configure()
		gt.Error(t, err)
	})

	t.Run("short token secret is rejected", func(t *testing.T) {
		_, err := config.NewAuthForTest("short", "").Configure()
		gt.Error(t, err)
	})

	t.Run("issued token validates", func(t *testing.T) {
		cfg := config.NewAuthForTest(testTokenSecret, "")
		issuer, err := cfg.Issuer()
		gt.NoError(t, err).Required()

		token, err := issuer.IssueToken("acme", "ops@example.com", time.Hour)
		gt.NoError(t, err).Required()

		auth, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Bool(t, auth.IsNoAuthn()).False()

		p, err := auth.ValidateToken(context.Background(), token)
		gt.NoError(t, err).Required()
		gt.Value(t, p.Subject).Equal("ops@example.com")
	})
}

func TestVaultConfigure(t *testing.T) {
	t.Run("no secret disables the vault", func(t *testing.T) {
		sealer, err := config.NewVaultForTest("").Configure()
		gt.NoError(t, err)
		gt.Value(t, sealer).Nil()
	})

	t.Run("short secret", func(t *testing.T) {
		_, err := config.NewVaultForTest("too-short").Configure()
		gt.Error(t, err).Is(config.ErrSecretTooShort)
	})

	t.Run("require without secret", func(t *testing.T) {
		_, err := config.NewVaultForTest("").Require()
		gt.Error(t, err)
	})

	t.Run("valid secret", func(t *testing.T) {
		sealer, err := config.NewVaultForTest(strings.Repeat("m", 32)).Require()
		gt.NoError(t, err).Required()
		gt.Value(t, sealer).NotNil()
	})
}

func TestWorkerConfigure(t *testing.T) {
	tests := []struct {
		name        string
		interval    time.Duration
		batch       int
		concurrency int
		lease       time.Duration
		wantErr     bool
	}{
		{name: "valid", interval: time.Second, batch: 10, concurrency: 2, lease: time.Minute},
		{name: "zero concurrency", interval: time.Second, batch: 10, concurrency: 0, lease: time.Minute, wantErr: true},
		{name: "zero batch", interval: time.Second, batch: 0, concurrency: 1, lease: time.Minute, wantErr: true},
		{name: "zero lease", interval: time.Second, batch: 1, concurrency: 1, lease: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewWorkerForTest(tt.interval, tt.batch, tt.concurrency, tt.lease).Configure()
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, cfg.Concurrency).Equal(tt.concurrency)
			gt.Value(t, cfg.LeaseTTL).Equal(tt.lease)
		})
	}
}

func TestExecutorConfigure(t *testing.T) {
	t.Run("memory calendar and automation", func(t *testing.T) {
		opts, err := config.NewExecutorForTest("memory", "https://automation.example.com/run", time.Second).Configure()
		gt.NoError(t, err).Required()
		gt.Array(t, opts).Length(3)
	})

	t.Run("no calendar", func(t *testing.T) {
		opts, err := config.NewExecutorForTest("none", "", time.Second).Configure()
		gt.NoError(t, err).Required()
		gt.Array(t, opts).Length(1)
	})

	t.Run("unknown calendar backend", func(t *testing.T) {
		_, err := config.NewExecutorForTest("exchange", "", time.Second).Configure()
		gt.Error(t, err)
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		_, err := config.NewExecutorForTest("memory", "", 0).Configure()
		gt.Error(t, err)
	})
}

func TestNotifyConfigure(t *testing.T) {
	t.Run("webhook transport is always available", func(t *testing.T) {
		opts, err := config.NewNotifyForTest("", "", 3).Configure(nil)
		gt.NoError(t, err).Required()
		gt.Array(t, opts).Length(2)
	})

	t.Run("email transport", func(t *testing.T) {
		opts, err := config.NewNotifyForTest("smtp.example.com:587", "bot@example.com", 3).Configure(nil)
		gt.NoError(t, err).Required()
		gt.Array(t, opts).Length(3)
	})

	t.Run("invalid sender address", func(t *testing.T) {
		_, err := config.NewNotifyForTest("smtp.example.com:587", "not an address", 3).Configure(nil)
		gt.Error(t, err)
	})

	t.Run("zero attempts", func(t *testing.T) {
		_, err := config.NewNotifyForTest("", "", 0).Configure(nil)
		gt.Error(t, err)
	})
}

func TestLLMConfigure(t *testing.T) {
	t.Run("no provider configured", func(t *testing.T) {
		router, err := config.NewLLMForTest("gemini").Configure(context.Background())
		gt.NoError(t, err)
		gt.Value(t, router).Nil()
	})

	t.Run("invalid default provider", func(t *testing.T) {
		_, err := config.NewLLMForTest("llama").Configure(context.Background())
		gt.Error(t, err).Is(config.ErrInvalidProvider)
	})

	t.Run("provider names", func(t *testing.T) {
		gt.Bool(t, config.ValidProvider("claude")).True()
		gt.Bool(t, config.ValidProvider("")).False()
	})
}
