package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type auditRepository struct {
	*base
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	if _, err := r.collection(CollectionAuditLogs).Doc(entry.ID).Create(ctx, entry); err != nil {
		return goerr.Wrap(err, "failed to append audit entry", goerr.V("audit_id", entry.ID))
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, tenantID types.TenantID, filter interfaces.AuditFilter) ([]*model.AuditEntry, error) {
	q := r.collection(CollectionAuditLogs).Where("TenantID", "==", string(tenantID))
	if filter.Kind != "" {
		q = q.Where("Kind", "==", string(filter.Kind))
	}
	if filter.Subject != "" {
		q = q.Where("Subject", "==", filter.Subject)
	}
	q = q.OrderBy("CreatedAt", firestore.Desc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return collect[model.AuditEntry](ctx, q, "audit entries")
}
