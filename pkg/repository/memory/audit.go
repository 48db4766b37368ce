package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

type auditRepository struct {
	mu      sync.RWMutex
	entries []*model.AuditEntry
}

func newAuditRepository() *auditRepository {
	return &auditRepository{}
}

func copyAuditEntry(e *model.AuditEntry) *model.AuditEntry {
	cp := *e
	if e.Attributes != nil {
		cp.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, copyAuditEntry(entry))
	return nil
}

func (r *auditRepository) List(ctx context.Context, tenantID types.TenantID, filter interfaces.AuditFilter) ([]*model.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.AuditEntry, 0)
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Subject != "" && e.Subject != filter.Subject {
			continue
		}
		result = append(result, copyAuditEntry(e))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}
