package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/repository/firestore"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var projectID string
	var databaseID string
	var prefix string
	var dryRun bool

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "firestore-project-id",
				Usage:       "Firestore Project ID (required)",
				Required:    true,
				Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_PROJECT_ID"),
				Destination: &projectID,
			},
			&cli.StringFlag{
				Name:        "firestore-database-id",
				Usage:       "Firestore Database ID",
				Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_DATABASE_ID"),
				Destination: &databaseID,
			},
			&cli.StringFlag{
				Name:        "firestore-collection-prefix",
				Usage:       "Prefix applied to every collection name",
				Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_COLLECTION_PREFIX"),
				Destination: &prefix,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "Preview changes without applying",
				Destination: &dryRun,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			logger.Info("Migrate configuration",
				"projectID", projectID,
				"databaseID", databaseID,
				"prefix", prefix,
				"dryRun", dryRun)

			indexConfig := getIndexConfig(prefix)

			client, err := fireconf.NewClient(ctx, projectID, databaseID)
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				plan, err := client.GetMigrationPlan(ctx, indexConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}

				if len(plan.Steps) == 0 {
					logger.Info("No changes required")
					return nil
				}

				for _, step := range plan.Steps {
					logger.Info("Migration step",
						"collection", step.Collection,
						"operation", step.Operation,
						"description", step.Description,
						"destructive", step.Destructive)
				}
				return nil
			}

			logger.Info("Applying migrations")
			if err := client.Migrate(ctx, indexConfig); err != nil {
				return goerr.Wrap(err, "failed to apply migrations")
			}
			logger.Info("Migrations applied successfully")
			return nil
		},
	}
}

func asc(path string) fireconf.IndexField {
	return fireconf.IndexField{Path: path, Order: fireconf.OrderAscending}
}

func desc(path string) fireconf.IndexField {
	return fireconf.IndexField{Path: path, Order: fireconf.OrderDescending}
}

func index(fields ...fireconf.IndexField) fireconf.Index {
	return fireconf.Index{Fields: fields}
}

// getIndexConfig returns the composite indexes the Firestore repository queries need
func getIndexConfig(prefix string) *fireconf.Config {
	name := func(c string) string { return firestore.CollectionName(prefix, c) }

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: name(firestore.CollectionTasks),
				Indexes: []fireconf.Index{
					// List by tenant, optionally by status
					index(asc("TenantID"), asc("Status"), desc("CreatedAt")),
					index(asc("TenantID"), desc("CreatedAt")),
					// ListDue
					index(asc("Status"), asc("NextAttemptAt")),
					// FindAwaiting
					index(asc("TenantID"), asc("Source"), asc("ThreadRef"), asc("Status"), desc("UpdatedAt")),
				},
			},
			{
				Name: name(firestore.CollectionDecisions),
				Indexes: []fireconf.Index{
					index(asc("TenantID"), asc("TaskID"), asc("CreatedAt")),
					index(asc("TenantID"), desc("CreatedAt")),
				},
			},
			{
				Name: name(firestore.CollectionAuditLogs),
				Indexes: []fireconf.Index{
					index(asc("TenantID"), desc("CreatedAt")),
					index(asc("TenantID"), asc("Kind"), desc("CreatedAt")),
					index(asc("TenantID"), asc("Subject"), desc("CreatedAt")),
					index(asc("TenantID"), asc("Kind"), asc("Subject"), desc("CreatedAt")),
				},
			},
			{
				Name: name(firestore.CollectionCredentials),
				Indexes: []fireconf.Index{
					index(asc("TenantID"), desc("CreatedAt")),
					index(asc("TenantID"), asc("UserID"), desc("CreatedAt")),
					index(asc("TenantID"), asc("UserID"), asc("Provider"), asc("Active"), desc("CreatedAt")),
				},
			},
			{
				Name: name(firestore.CollectionWorkItems),
				Indexes: []fireconf.Index{
					index(asc("TenantID"), asc("ID")),
				},
			},
			{
				Name: name(firestore.CollectionEscalations),
				Indexes: []fireconf.Index{
					index(asc("TenantID"), desc("CreatedAt")),
					index(asc("TenantID"), asc("Resolved"), desc("CreatedAt")),
				},
			},
		},
	}
}
