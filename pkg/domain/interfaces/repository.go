package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Task() TaskRepository
	Decision() DecisionRepository
	AgentStats() AgentStatsRepository
	Credential() CredentialRepository
	Audit() AuditRepository
	WorkItem() WorkItemRepository
	Escalation() EscalationRepository
	Lease() LeaseRepository
	RateCounter() RateCounterRepository

	Close() error
}
