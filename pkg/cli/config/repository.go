package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/repository/firestore"
	"github.com/secmon-lab/taskpilot/pkg/repository/memory"
	"github.com/secmon-lab/taskpilot/pkg/repository/sqlite"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	projectID        string
	databaseID       string
	collectionPrefix string

	auditBackend string
	auditPath    string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (firestore or memory)",
			Category:    "Repository",
			Value:       "firestore",
			Sources:     cli.EnvVars("TASKPILOT_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix prepended to every Firestore collection name",
			Category:    "Repository",
			Sources:     cli.EnvVars("TASKPILOT_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "audit-backend",
			Usage:       "Audit log backend (repository or sqlite)",
			Category:    "Repository",
			Value:       "repository",
			Sources:     cli.EnvVars("TASKPILOT_AUDIT_BACKEND"),
			Destination: &r.auditBackend,
		},
		&cli.StringFlag{
			Name:        "audit-sqlite-path",
			Usage:       "SQLite file for the audit log (audit-backend=sqlite)",
			Category:    "Repository",
			Value:       "taskpilot-audit.db",
			Sources:     cli.EnvVars("TASKPILOT_AUDIT_SQLITE_PATH"),
			Destination: &r.auditPath,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
		slog.String("collection_prefix", r.collectionPrefix),
		slog.String("audit_backend", r.auditBackend),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	var repo interfaces.Repository

	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.New("firestore-project-id is required when using firestore backend")
		}
		fs, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		repo = fs

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)")
		repo = memory.New()

	default:
		return nil, goerr.New("invalid repository backend", goerr.V(ValueKey, r.backend))
	}

	switch r.auditBackend {
	case "repository", "":
		return repo, nil

	case "sqlite":
		store, err := sqlite.New(r.auditPath)
		if err != nil {
			_ = repo.Close()
			return nil, goerr.Wrap(err, "failed to initialize sqlite audit log")
		}
		logging.Default().Info("Using SQLite audit log", "path", r.auditPath)
		return sqlite.Overlay(repo, store), nil

	default:
		_ = repo.Close()
		return nil, goerr.New("invalid audit backend", goerr.V(ValueKey, r.auditBackend))
	}
}
