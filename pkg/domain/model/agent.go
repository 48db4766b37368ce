package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// DefaultConfidenceThreshold is used when an agent does not configure one
const DefaultConfidenceThreshold = 0.5

// OrchestrationAgent is the per-tenant configuration and governance envelope
type OrchestrationAgent struct {
	ID       types.AgentID
	TenantID types.TenantID
	Name     string

	Provider     string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Active       bool

	ConfidenceThreshold float64
	Capabilities        Capabilities
	RateLimits          RateLimits

	Notify   NotifyIntegration
	Calendar CalendarSettings
	// WebhookSecret authenticates inbound hooks for this tenant
	WebhookSecret string `masq:"secret"`
	SlackTeamID   string
	Triggers      []Trigger

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Capabilities gate which classes of action may execute
type Capabilities struct {
	CanAssignPipelines    bool
	CanCreateEvents       bool
	CanSendNotifications  bool
	CanTriggerAutomations bool
}

// Allows reports whether the capability flag for the action type is enabled.
// Escalation and no-action are always allowed.
func (c Capabilities) Allows(action types.DecisionType) bool {
	switch action {
	case types.DecisionAssignPipeline:
		return c.CanAssignPipelines
	case types.DecisionCreateEvent, types.DecisionUpdateEvent, types.DecisionCancelEvent:
		return c.CanCreateEvents
	case types.DecisionSendNotification:
		return c.CanSendNotifications
	case types.DecisionTriggerAutomation:
		return c.CanTriggerAutomations
	case types.DecisionEscalate, types.DecisionNoAction:
		return true
	default:
		return false
	}
}

// RateLimits bound how many actions an agent may execute
type RateLimits struct {
	PerMinute int
	PerHour   int
}

// Windows returns the rate windows that are enforced (zero limits are unlimited)
func (r RateLimits) Windows() []RateWindow {
	var ws []RateWindow
	if r.PerMinute > 0 {
		ws = append(ws, RateWindow{Name: "minute", Size: time.Minute, Limit: r.PerMinute})
	}
	if r.PerHour > 0 {
		ws = append(ws, RateWindow{Name: "hour", Size: time.Hour, Limit: r.PerHour})
	}
	return ws
}

// RateWindow is one fixed window of a rate limit
type RateWindow struct {
	Name  string
	Size  time.Duration
	Limit int
}

// Start returns the beginning of the window that contains now
func (w RateWindow) Start(now time.Time) time.Time {
	return now.UTC().Truncate(w.Size)
}

// NotifyIntegration lists which outbound channels are configured for a tenant
type NotifyIntegration struct {
	Email         bool
	SMS           bool
	ChatChannel   string
	WebhookURL    string
	WebhookSecret string `masq:"secret"`
}

// Configured reports whether a channel integration exists for the tenant
func (n NotifyIntegration) Configured(ch types.NotificationChannel) bool {
	switch ch {
	case types.NotifyEmail:
		return n.Email
	case types.NotifySMS:
		return n.SMS
	case types.NotifyChat:
		return n.ChatChannel != ""
	case types.NotifyWebhook:
		return n.WebhookURL != "" && n.WebhookSecret != ""
	default:
		return false
	}
}

// CalendarSettings configure scheduling behavior for a tenant
type CalendarSettings struct {
	CredentialProvider string
	DefaultAssignee    string
	DefaultDuration    time.Duration
	Buffer             time.Duration
	// AssigneeBuffers overrides Buffer per assignee
	AssigneeBuffers map[string]time.Duration
	SearchHorizon   time.Duration
}

// BufferFor returns the conflict buffer for an assignee
func (c CalendarSettings) BufferFor(assignee string) time.Duration {
	if b, ok := c.AssigneeBuffers[assignee]; ok {
		return b
	}
	return c.Buffer
}

// Trigger is a scheduled input that periodically creates a task
type Trigger struct {
	ID       string
	Interval time.Duration
	Text     string
	UserID   string
}

// Threshold returns the effective confidence threshold
func (a *OrchestrationAgent) Threshold() float64 {
	if a.ConfidenceThreshold <= 0 {
		return DefaultConfidenceThreshold
	}
	return a.ConfidenceThreshold
}

// AgentStats are the running decision totals of an agent
type AgentStats struct {
	AgentID             types.AgentID  `json:"agent_id"`
	TenantID            types.TenantID `json:"tenant_id"`
	TotalDecisions      int64          `json:"total_decisions"`
	SuccessfulDecisions int64          `json:"successful_decisions"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// SuccessRate returns SuccessfulDecisions / TotalDecisions, or 0 with no decisions
func (s *AgentStats) SuccessRate() float64 {
	if s.TotalDecisions == 0 {
		return 0
	}
	return float64(s.SuccessfulDecisions) / float64(s.TotalDecisions)
}
