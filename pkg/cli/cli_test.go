package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/cli"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/repository/firestore"
	"github.com/secmon-lab/taskpilot/pkg/repository/memory"
)

func TestParseSecretEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    model.SecretPayload
		wantErr bool
	}{
		{
			name:    "key value pairs",
			entries: []string{"refresh_token=abc", "client_id=xyz"},
			want:    model.SecretPayload{"refresh_token": "abc", "client_id": "xyz"},
		},
		{
			name:    "value keeps equal signs",
			entries: []string{"token=a=b"},
			want:    model.SecretPayload{"token": "a=b"},
		},
		{name: "missing separator", entries: []string{"token"}, wantErr: true},
		{name: "empty key", entries: []string{"=value"}, wantErr: true},
		{name: "duplicate key", entries: []string{"a=1", "a=2"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cli.ParseSecretEntries(tt.entries)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestPrintCredentials(t *testing.T) {
	used := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := cli.PrintCredentials(&buf, []*model.CredentialSummary{
		{ID: "cred-1", UserID: "alice", Provider: "google-calendar", Label: "work", Active: true, LastUsedAt: &used},
		{ID: "cred-2", UserID: "bob", Provider: "google-calendar", Active: false},
	})
	gt.NoError(t, err).Required()

	out := buf.String()
	gt.String(t, out).Contains("PROVIDER")
	gt.String(t, out).Contains("cred-1")
	gt.String(t, out).Contains("2026-03-01T09:00:00Z")
	gt.String(t, out).Contains("cred-2")
	gt.Bool(t, strings.Contains(out, "secret")).False()
}

func TestGetIndexConfig(t *testing.T) {
	cfg := cli.GetIndexConfig("staging_")

	names := map[string]int{}
	for _, c := range cfg.Collections {
		names[c.Name] = len(c.Indexes)
	}

	gt.Value(t, names[firestore.CollectionName("staging_", firestore.CollectionTasks)]).Equal(4)
	gt.Value(t, names[firestore.CollectionName("staging_", firestore.CollectionCredentials)]).Equal(3)
	gt.Value(t, names[firestore.CollectionName("staging_", firestore.CollectionAuditLogs)]).Equal(4)
	gt.Value(t, len(names)).Equal(6)
}

func TestSeedWorkItems(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Now().UTC()

	// existing items keep their current stage
	gt.NoError(t, repo.WorkItem().Put(ctx, &model.WorkItem{
		ID: "deal-1", TenantID: "acme", Title: "Big deal", Stage: "won", UpdatedAt: now,
	})).Required()

	err := cli.SeedWorkItems(ctx, repo, []*model.WorkItem{
		{ID: "deal-1", TenantID: "acme", Title: "Big deal", Stage: "lead", UpdatedAt: now},
		{ID: "deal-2", TenantID: "acme", Title: "Small deal", Stage: "lead", UpdatedAt: now},
	})
	gt.NoError(t, err).Required()

	existing, err := repo.WorkItem().Get(ctx, "acme", "deal-1")
	gt.NoError(t, err).Required()
	gt.Value(t, existing.Stage).Equal("won")

	seeded, err := repo.WorkItem().Get(ctx, "acme", "deal-2")
	gt.NoError(t, err).Required()
	gt.Value(t, seeded.Stage).Equal("lead")
}

func TestRun_TokenIssue(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		err := cli.Run(context.Background(), []string{
			"taskpilot", "token", "issue",
			"--tenant", "acme", "--subject", "ops", "--token-secret", "short",
		}, "test")
		gt.Value(t, err).NotNil()
	})

	t.Run("invalid tenant", func(t *testing.T) {
		err := cli.Run(context.Background(), []string{
			"taskpilot", "token", "issue",
			"--tenant", "Not Valid", "--subject", "ops", "--token-secret", strings.Repeat("k", 32),
		}, "test")
		gt.Value(t, err).NotNil()
	})

	t.Run("issues token", func(t *testing.T) {
		err := cli.Run(context.Background(), []string{
			"taskpilot", "token", "issue",
			"--tenant", "acme", "--subject", "ops", "--token-secret", strings.Repeat("k", 32),
		}, "test")
		gt.NoError(t, err)
	})
}

func TestRun_CredentialSaveRequiresVault(t *testing.T) {
	err := cli.Run(context.Background(), []string{
		"taskpilot", "credential", "save",
		"--tenant", "acme",
		"--repository-backend", "memory",
		"--user", "alice",
		"--provider", "google-calendar",
		"--secret", "refresh_token=abc",
	}, "test")
	gt.Value(t, err).NotNil()
}

func TestRun_CredentialSaveAndList(t *testing.T) {
	// each run opens a fresh memory repository, so only the round trip
	// within one command is observable
	err := cli.Run(context.Background(), []string{
		"taskpilot", "credential", "save",
		"--tenant", "acme",
		"--repository-backend", "memory",
		"--vault-master-secret", strings.Repeat("m", 32),
		"--user", "alice",
		"--provider", "google-calendar",
		"--secret", "refresh_token=abc",
		"--expires-in", "24h",
	}, "test")
	gt.NoError(t, err)

	err = cli.Run(context.Background(), []string{
		"taskpilot", "credential", "list",
		"--tenant", "acme",
		"--repository-backend", "memory",
		"--vault-master-secret", strings.Repeat("m", 32),
	}, "test")
	gt.NoError(t, err)
}
