package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/cli/config"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdToken() *cli.Command {
	var authCfg config.Auth
	var tenantID string
	var subject string
	var ttl time.Duration

	flags := []cli.Flag{
		&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant ID the token is scoped to", Required: true, Destination: &tenantID},
		&cli.StringFlag{Name: "subject", Usage: "Operator identity recorded in audit logs", Required: true, Destination: &subject},
		&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: 24 * time.Hour, Destination: &ttl},
	}
	flags = append(flags, authCfg.Flags()...)

	return &cli.Command{
		Name:  "token",
		Usage: "Admin API bearer tokens",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue a bearer token for the admin API",
				Flags: flags,
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := types.TenantID(tenantID).Validate(); err != nil {
						return goerr.Wrap(err, "invalid tenant", goerr.V("tenant_id", tenantID))
					}
					if ttl <= 0 {
						return goerr.New("ttl must be positive", goerr.V("ttl", ttl))
					}

					issuer, err := authCfg.Issuer()
					if err != nil {
						return err
					}
					token, err := issuer.IssueToken(types.TenantID(tenantID), subject, ttl)
					if err != nil {
						return err
					}

					logging.Default().Info("Token issued", "tenant_id", tenantID, "subject", subject, "ttl", ttl)
					fmt.Println(token)
					return nil
				},
			},
		},
	}
}
