package memory

import (
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

// ErrNotFound is returned when a record does not exist for the tenant
var ErrNotFound = model.ErrNotFound

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
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

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		task:        newTaskRepository(),
		decision:    newDecisionRepository(),
		agentStats:  newAgentStatsRepository(),
		credential:  newCredentialRepository(),
		audit:       newAuditRepository(),
		workItem:    newWorkItemRepository(),
		escalation:  newEscalationRepository(),
		lease:       newLeaseRepository(),
		rateCounter: newRateCounterRepository(),
	}
}

func (m *Memory) Task() interfaces.TaskRepository {
	return m.task
}

func (m *Memory) Decision() interfaces.DecisionRepository {
	return m.decision
}

func (m *Memory) AgentStats() interfaces.AgentStatsRepository {
	return m.agentStats
}

func (m *Memory) Credential() interfaces.CredentialRepository {
	return m.credential
}

func (m *Memory) Audit() interfaces.AuditRepository {
	return m.audit
}

func (m *Memory) WorkItem() interfaces.WorkItemRepository {
	return m.workItem
}

func (m *Memory) Escalation() interfaces.EscalationRepository {
	return m.escalation
}

func (m *Memory) Lease() interfaces.LeaseRepository {
	return m.lease
}

func (m *Memory) RateCounter() interfaces.RateCounterRepository {
	return m.rateCounter
}

func (m *Memory) Close() error {
	return nil
}
