package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// ErrAgentNotFound is returned when no agent is registered for a tenant
var ErrAgentNotFound = goerr.New("agent not found")

// AgentRegistry holds the configured agent of each tenant.
// It holds settings only; running totals live in the repository.
type AgentRegistry struct {
	entries map[types.TenantID]*OrchestrationAgent
	order   []types.TenantID
}

// NewAgentRegistry creates a new empty AgentRegistry
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		entries: make(map[types.TenantID]*OrchestrationAgent),
	}
}

// Register adds or replaces the agent of a tenant
func (r *AgentRegistry) Register(agent *OrchestrationAgent) {
	if _, exists := r.entries[agent.TenantID]; !exists {
		r.order = append(r.order, agent.TenantID)
	}
	r.entries[agent.TenantID] = agent
}

// Get retrieves the agent of a tenant
func (r *AgentRegistry) Get(tenantID types.TenantID) (*OrchestrationAgent, error) {
	agent, ok := r.entries[tenantID]
	if !ok {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found",
			goerr.V("tenant_id", tenantID))
	}
	return agent, nil
}

// FindBySlackTeam returns the agent bound to a Slack team, or nil
func (r *AgentRegistry) FindBySlackTeam(teamID string) *OrchestrationAgent {
	if teamID == "" {
		return nil
	}
	for _, id := range r.order {
		if r.entries[id].SlackTeamID == teamID {
			return r.entries[id]
		}
	}
	return nil
}

// List returns all registered agents in registration order
func (r *AgentRegistry) List() []*OrchestrationAgent {
	result := make([]*OrchestrationAgent, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entries[id])
	}
	return result
}
