package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"google.golang.org/api/iterator"
)

// ErrNotFound is returned when a record does not exist for the tenant
var ErrNotFound = model.ErrNotFound

// Collection names before prefixing
const (
	CollectionTasks        = "tasks"
	CollectionDecisions    = "decisions"
	CollectionAgentStats   = "agent_stats"
	CollectionCredentials  = "credentials"
	CollectionAuditLogs    = "audit_logs"
	CollectionWorkItems    = "work_items"
	CollectionEscalations  = "escalations"
	CollectionLeases       = "task_leases"
	CollectionRateCounters = "rate_counters"
)

type base struct {
	client           *firestore.Client
	collectionPrefix string
}

func (b *base) collection(name string) *firestore.CollectionRef {
	return b.client.Collection(CollectionName(b.collectionPrefix, name))
}

// CollectionName applies a collection prefix the same way the repository does
func CollectionName(prefix, name string) string {
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}

type Firestore struct {
	base        *base
	task        *taskRepository
	decision    *decisionRepository
	agentStats  *agentStatsRepository
	credential  *credentialRepository
	audit       *auditRepository
	workItem    *workItemRepository
	escalation  *escalationRepository
	lease       *leaseRepository
	rateCounter *rateCounterRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.base.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	b := &base{client: client}
	f := &Firestore{
		base:        b,
		task:        &taskRepository{base: b},
		decision:    &decisionRepository{base: b},
		agentStats:  &agentStatsRepository{base: b},
		credential:  &credentialRepository{base: b},
		audit:       &auditRepository{base: b},
		workItem:    &workItemRepository{base: b},
		escalation:  &escalationRepository{base: b},
		lease:       &leaseRepository{base: b},
		rateCounter: &rateCounterRepository{base: b},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Task() interfaces.TaskRepository {
	return f.task
}

func (f *Firestore) Decision() interfaces.DecisionRepository {
	return f.decision
}

func (f *Firestore) AgentStats() interfaces.AgentStatsRepository {
	return f.agentStats
}

func (f *Firestore) Credential() interfaces.CredentialRepository {
	return f.credential
}

func (f *Firestore) Audit() interfaces.AuditRepository {
	return f.audit
}

func (f *Firestore) WorkItem() interfaces.WorkItemRepository {
	return f.workItem
}

func (f *Firestore) Escalation() interfaces.EscalationRepository {
	return f.escalation
}

func (f *Firestore) Lease() interfaces.LeaseRepository {
	return f.lease
}

func (f *Firestore) RateCounter() interfaces.RateCounterRepository {
	return f.rateCounter
}

func (f *Firestore) Close() error {
	if f.base.client != nil {
		return f.base.client.Close()
	}
	return nil
}

// collect decodes every document of a query
func collect[T any](ctx context.Context, q firestore.Query, what string) ([]*T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	result := make([]*T, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate "+what)
		}

		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, goerr.Wrap(err, "failed to decode "+what, goerr.V("doc_id", doc.Ref.ID))
		}
		result = append(result, &v)
	}
	return result, nil
}
