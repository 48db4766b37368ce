// Package sqlite provides an append-only audit log on a local SQLite file.
// It can overlay the audit repository of any primary backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	attributes TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_created ON audit_log(tenant_id, created_at);
`

// AuditStore implements interfaces.AuditRepository on SQLite
type AuditStore struct {
	db *sql.DB
}

var _ interfaces.AuditRepository = &AuditStore{}

// New opens (creating if needed) the audit database at path
func New(path string) (*AuditStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create audit db directory", goerr.V("path", path))
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open audit db", goerr.V("path", path))
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate audit db", goerr.V("path", path))
	}
	return &AuditStore{db: db}, nil
}

// Close closes the database
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func (s *AuditStore) Append(ctx context.Context, entry *model.AuditEntry) error {
	var attrs []byte
	if len(entry.Attributes) > 0 {
		var err error
		if attrs, err = json.Marshal(entry.Attributes); err != nil {
			return goerr.Wrap(err, "failed to encode audit attributes")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, kind, subject, message, attributes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.TenantID), string(entry.Kind), entry.Subject, entry.Message, string(attrs), entry.CreatedAt.UnixNano())
	if err != nil {
		return goerr.Wrap(err, "failed to insert audit entry", goerr.V("audit_id", entry.ID))
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, tenantID types.TenantID, filter interfaces.AuditFilter) ([]*model.AuditEntry, error) {
	query := `SELECT id, tenant_id, kind, subject, message, attributes, created_at FROM audit_log WHERE tenant_id = ?`
	args := []any{string(tenantID)}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, filter.Subject)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query audit log")
	}
	defer rows.Close()

	result := make([]*model.AuditEntry, 0)
	for rows.Next() {
		var (
			e        model.AuditEntry
			tenant   string
			kind     string
			attrs    sql.NullString
			creation int64
		)
		if err := rows.Scan(&e.ID, &tenant, &kind, &e.Subject, &e.Message, &attrs, &creation); err != nil {
			return nil, goerr.Wrap(err, "failed to scan audit entry")
		}
		e.TenantID = types.TenantID(tenant)
		e.Kind = model.AuditKind(kind)
		e.CreatedAt = time.Unix(0, creation).UTC()
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				return nil, goerr.Wrap(err, "failed to decode audit attributes", goerr.V("audit_id", e.ID))
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate audit log")
	}
	return result, nil
}

type overlay struct {
	interfaces.Repository
	audit *AuditStore
}

// Overlay returns repo with its audit log replaced by the SQLite store.
// Closing the result closes both.
func Overlay(repo interfaces.Repository, audit *AuditStore) interfaces.Repository {
	return &overlay{Repository: repo, audit: audit}
}

func (o *overlay) Audit() interfaces.AuditRepository {
	return o.audit
}

func (o *overlay) Close() error {
	auditErr := o.audit.Close()
	if err := o.Repository.Close(); err != nil {
		return err
	}
	return auditErr
}
