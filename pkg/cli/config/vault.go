package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/service/cipher"
	"github.com/urfave/cli/v3"
)

// Vault holds the master secret of the credential vault
type Vault struct {
	masterSecret string
}

func (x *Vault) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vault-master-secret",
			Usage:       "Master secret of the credential vault (at least 32 bytes)",
			Category:    "Vault",
			Sources:     cli.EnvVars("TASKPILOT_VAULT_MASTER_SECRET"),
			Destination: &x.masterSecret,
		},
	}
}

func (x Vault) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("master-secret.len", len(x.masterSecret)),
	)
}

// IsConfigured reports whether a master secret was given
func (x *Vault) IsConfigured() bool {
	return x.masterSecret != ""
}

// Configure creates the sealer. Returns nil when no master secret is set.
func (x *Vault) Configure() (*cipher.Sealer, error) {
	if x.masterSecret == "" {
		return nil, nil
	}
	if len(x.masterSecret) < cipher.MinMasterSecretLength {
		return nil, goerr.Wrap(ErrSecretTooShort, "vault master secret is too short",
			goerr.V("min_length", cipher.MinMasterSecretLength))
	}
	sealer, err := cipher.New(x.masterSecret)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sealer")
	}
	return sealer, nil
}

// Require is Configure for commands that cannot run without the vault
func (x *Vault) Require() (*cipher.Sealer, error) {
	if x.masterSecret == "" {
		return nil, goerr.New("vault-master-secret is required")
	}
	return x.Configure()
}
