package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdCredential() *cli.Command {
	var repoCfg config.Repository
	var vaultCfg config.Vault
	var tenantID string

	tenantFlag := &cli.StringFlag{
		Name:        "tenant",
		Aliases:     []string{"t"},
		Usage:       "Tenant ID",
		Required:    true,
		Destination: &tenantID,
	}

	common := func() []cli.Flag {
		flags := []cli.Flag{tenantFlag}
		flags = append(flags, repoCfg.Flags()...)
		return flags
	}

	// withVault opens the repository and the credential vault for one command run
	withVault := func(ctx context.Context, fn func(*usecase.VaultUseCase) error) error {
		sealer, err := vaultCfg.Require()
		if err != nil {
			return err
		}
		repo, err := repoCfg.Configure(ctx)
		if err != nil {
			return goerr.Wrap(err, "failed to initialize repository")
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logging.Default().Error("failed to close repository", "error", err.Error())
			}
		}()
		return fn(usecase.NewVaultUseCase(repo, sealer))
	}

	return &cli.Command{
		Name:  "credential",
		Usage: "Manage encrypted tenant credentials",
		Commands: []*cli.Command{
			cmdCredentialSave(common, &vaultCfg, &tenantID, withVault),
			{
				Name:  "list",
				Usage: "List credential metadata of a tenant",
				Flags: append(common(), vaultCfg.Flags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					return withVault(ctx, func(vault *usecase.VaultUseCase) error {
						summaries, err := vault.ListMetadata(ctx, types.TenantID(tenantID))
						if err != nil {
							return err
						}
						return printCredentials(os.Stdout, summaries)
					})
				},
			},
			{
				Name:      "revoke",
				Usage:     "Deactivate a credential",
				ArgsUsage: "<credential-id>",
				Flags:     append(common(), vaultCfg.Flags()...),
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return goerr.New("credential ID is required")
					}
					id := types.CredentialID(c.Args().First())
					return withVault(ctx, func(vault *usecase.VaultUseCase) error {
						if err := vault.Revoke(ctx, types.TenantID(tenantID), id); err != nil {
							return err
						}
						logging.Default().Info("Credential revoked", "tenant_id", tenantID, "credential_id", id)
						return nil
					})
				},
			},
		},
	}
}

func cmdCredentialSave(
	common func() []cli.Flag,
	vaultCfg *config.Vault,
	tenantID *string,
	withVault func(context.Context, func(*usecase.VaultUseCase) error) error,
) *cli.Command {
	var userID, provider, label, scope string
	var secrets []string
	var expiresIn time.Duration

	flags := append(common(), vaultCfg.Flags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "user", Usage: "Owner user ID", Required: true, Destination: &userID},
		&cli.StringFlag{Name: "provider", Usage: "Credential provider (e.g. google-calendar)", Required: true, Destination: &provider},
		&cli.StringFlag{Name: "label", Usage: "Human readable label", Destination: &label},
		&cli.StringFlag{Name: "scope", Usage: "Scope the credential grants", Destination: &scope},
		&cli.StringSliceFlag{Name: "secret", Usage: "Secret entry as key=value (repeatable)", Required: true, Destination: &secrets},
		&cli.DurationFlag{Name: "expires-in", Usage: "Credential lifetime; zero never expires", Destination: &expiresIn},
	)

	return &cli.Command{
		Name:  "save",
		Usage: "Encrypt and store a credential",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			payload, err := parseSecretEntries(secrets)
			if err != nil {
				return err
			}

			var opts []usecase.SaveOption
			if scope != "" {
				opts = append(opts, usecase.WithScope(scope))
			}
			if expiresIn > 0 {
				opts = append(opts, usecase.WithExpiry(time.Now().UTC().Add(expiresIn)))
			}

			return withVault(ctx, func(vault *usecase.VaultUseCase) error {
				id, err := vault.Save(ctx, userID, types.TenantID(*tenantID), provider, label, payload, opts...)
				if err != nil {
					return err
				}
				logging.Default().Info("Credential saved",
					"tenant_id", *tenantID, "credential_id", id, "provider", provider, "payload", payload)
				fmt.Println(id)
				return nil
			})
		},
	}
}

func parseSecretEntries(entries []string) (model.SecretPayload, error) {
	payload := model.SecretPayload{}
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, goerr.New("secret entry must be key=value", goerr.V("key", key))
		}
		if _, dup := payload[key]; dup {
			return nil, goerr.New("duplicate secret key", goerr.V("key", key))
		}
		payload[key] = value
	}
	return payload, nil
}

func printCredentials(w io.Writer, summaries []*model.CredentialSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := color.New(color.Bold)
	inactive := color.New(color.FgHiBlack)

	if _, err := header.Fprintln(tw, "ID\tUSER\tPROVIDER\tLABEL\tACTIVE\tEXPIRES\tLAST USED"); err != nil {
		return goerr.Wrap(err, "failed to write header")
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%t\t%s\t%s",
			s.ID, s.UserID, s.Provider, s.Label, s.Active, formatTime(s.ExpiresAt), formatTime(s.LastUsedAt))
		var err error
		if s.Active {
			_, err = fmt.Fprintln(tw, line)
		} else {
			_, err = inactive.Fprintln(tw, line)
		}
		if err != nil {
			return goerr.Wrap(err, "failed to write credential row")
		}
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
