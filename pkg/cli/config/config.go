package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/resolver"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("30m")
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return goerr.Wrap(ErrInvalidDuration, err.Error(), goerr.V(ValueKey, string(text)))
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AppConfig is the content of the agent configuration file
type AppConfig struct {
	Agents   []AgentConfig   `toml:"agent" yaml:"agent"`
	Resolver *ResolverConfig `toml:"resolver" yaml:"resolver"`
}

// AgentConfig is one tenant's orchestration agent
type AgentConfig struct {
	ID                  string  `toml:"id" yaml:"id"`
	TenantID            string  `toml:"tenant_id" yaml:"tenant_id"`
	Name                string  `toml:"name" yaml:"name"`
	Provider            string  `toml:"provider" yaml:"provider"`
	Model               string  `toml:"model" yaml:"model"`
	SystemPrompt        string  `toml:"system_prompt" yaml:"system_prompt"`
	Temperature         float64 `toml:"temperature" yaml:"temperature"`
	MaxTokens           int     `toml:"max_tokens" yaml:"max_tokens"`
	Active              *bool   `toml:"active" yaml:"active"`
	ConfidenceThreshold float64 `toml:"confidence_threshold" yaml:"confidence_threshold"`
	WebhookSecret       string  `toml:"webhook_secret" yaml:"webhook_secret" masq:"secret"`
	SlackTeamID         string  `toml:"slack_team_id" yaml:"slack_team_id"`

	Capabilities CapabilitiesConfig `toml:"capabilities" yaml:"capabilities"`
	RateLimits   RateLimitsConfig   `toml:"rate_limits" yaml:"rate_limits"`
	Notify       NotifyConfig       `toml:"notify" yaml:"notify"`
	Calendar     CalendarConfig     `toml:"calendar" yaml:"calendar"`
	Triggers     []TriggerConfig    `toml:"trigger" yaml:"trigger"`
	WorkItems    []WorkItemConfig   `toml:"work_item" yaml:"work_item"`
}

type CapabilitiesConfig struct {
	AssignPipelines    bool `toml:"assign_pipelines" yaml:"assign_pipelines"`
	CreateEvents       bool `toml:"create_events" yaml:"create_events"`
	SendNotifications  bool `toml:"send_notifications" yaml:"send_notifications"`
	TriggerAutomations bool `toml:"trigger_automations" yaml:"trigger_automations"`
}

type RateLimitsConfig struct {
	PerMinute int `toml:"per_minute" yaml:"per_minute"`
	PerHour   int `toml:"per_hour" yaml:"per_hour"`
}

type NotifyConfig struct {
	Email         bool   `toml:"email" yaml:"email"`
	SMS           bool   `toml:"sms" yaml:"sms"`
	ChatChannel   string `toml:"chat_channel" yaml:"chat_channel"`
	WebhookURL    string `toml:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `toml:"webhook_secret" yaml:"webhook_secret" masq:"secret"`
}

type CalendarConfig struct {
	CredentialProvider string              `toml:"credential_provider" yaml:"credential_provider"`
	DefaultAssignee    string              `toml:"default_assignee" yaml:"default_assignee"`
	DefaultDuration    Duration            `toml:"default_duration" yaml:"default_duration"`
	Buffer             Duration            `toml:"buffer" yaml:"buffer"`
	AssigneeBuffers    map[string]Duration `toml:"assignee_buffers" yaml:"assignee_buffers"`
	SearchHorizon      Duration            `toml:"search_horizon" yaml:"search_horizon"`
}

type TriggerConfig struct {
	ID       string   `toml:"id" yaml:"id"`
	Interval Duration `toml:"interval" yaml:"interval"`
	Text     string   `toml:"text" yaml:"text"`
	UserID   string   `toml:"user_id" yaml:"user_id"`
}

type WorkItemConfig struct {
	ID    string `toml:"id" yaml:"id"`
	Title string `toml:"title" yaml:"title"`
	Stage string `toml:"stage" yaml:"stage"`
}

// ResolverConfig tunes slot search and ranking. Zero fields keep defaults.
type ResolverConfig struct {
	Step               Duration `toml:"step" yaml:"step"`
	MaxResults         int      `toml:"max_results" yaml:"max_results"`
	DistanceWeight     *float64 `toml:"distance_weight" yaml:"distance_weight"`
	BoundaryWeight     *float64 `toml:"boundary_weight" yaml:"boundary_weight"`
	WorkingHoursWeight *float64 `toml:"working_hours_weight" yaml:"working_hours_weight"`
	WorkStart          string   `toml:"work_start" yaml:"work_start"`
	WorkEnd            string   `toml:"work_end" yaml:"work_end"`
	WorkDays           []string `toml:"work_days" yaml:"work_days"`
	Timezone           string   `toml:"timezone" yaml:"timezone"`
}

// Validate checks a single agent definition
func (a *AgentConfig) Validate() error {
	tenantID := types.TenantID(a.TenantID)
	if err := tenantID.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(TenantIDKey, a.TenantID))
	}
	if a.ID != "" {
		if err := types.AgentID(a.ID).Validate(); err != nil {
			return goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(TenantIDKey, a.TenantID))
		}
	}
	if a.Name == "" {
		return goerr.Wrap(ErrMissingName, "agent name is required", goerr.V(TenantIDKey, a.TenantID))
	}
	if a.Provider != "" && !ValidProvider(a.Provider) {
		return goerr.Wrap(ErrInvalidProvider, "unknown provider",
			goerr.V(TenantIDKey, a.TenantID), goerr.V(ValueKey, a.Provider))
	}
	if a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 1 {
		return goerr.Wrap(ErrInvalidThreshold, "confidence threshold out of range",
			goerr.V(TenantIDKey, a.TenantID), goerr.V(ValueKey, a.ConfidenceThreshold))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return goerr.Wrap(ErrInvalidConfig, "temperature must be between 0 and 2",
			goerr.V(TenantIDKey, a.TenantID), goerr.V(ValueKey, a.Temperature))
	}
	if a.MaxTokens < 0 {
		return goerr.Wrap(ErrInvalidConfig, "max_tokens must not be negative", goerr.V(TenantIDKey, a.TenantID))
	}
	if a.RateLimits.PerMinute < 0 || a.RateLimits.PerHour < 0 {
		return goerr.Wrap(ErrInvalidRateLimit, "invalid rate limit", goerr.V(TenantIDKey, a.TenantID))
	}
	if a.Notify.WebhookURL != "" && a.Notify.WebhookSecret == "" {
		return goerr.Wrap(ErrInvalidConfig, "notify.webhook_url requires notify.webhook_secret",
			goerr.V(TenantIDKey, a.TenantID))
	}

	c := a.Calendar
	if c.DefaultDuration < 0 || c.Buffer < 0 || c.SearchHorizon < 0 {
		return goerr.Wrap(ErrInvalidDuration, "calendar durations must not be negative", goerr.V(TenantIDKey, a.TenantID))
	}
	for assignee, b := range c.AssigneeBuffers {
		if b < 0 {
			return goerr.Wrap(ErrInvalidDuration, "assignee buffer must not be negative",
				goerr.V(TenantIDKey, a.TenantID), goerr.V(FieldKey, assignee))
		}
	}

	triggerIDs := make(map[string]bool)
	for _, tr := range a.Triggers {
		if tr.ID == "" || tr.Text == "" {
			return goerr.Wrap(ErrInvalidConfig, "trigger requires id and text",
				goerr.V(TenantIDKey, a.TenantID), goerr.V(TriggerIDKey, tr.ID))
		}
		if tr.Interval <= 0 {
			return goerr.Wrap(ErrInvalidDuration, "trigger interval must be positive",
				goerr.V(TenantIDKey, a.TenantID), goerr.V(TriggerIDKey, tr.ID))
		}
		if triggerIDs[tr.ID] {
			return goerr.Wrap(ErrDuplicateTrigger, "duplicate trigger",
				goerr.V(TenantIDKey, a.TenantID), goerr.V(TriggerIDKey, tr.ID))
		}
		triggerIDs[tr.ID] = true
	}

	for _, w := range a.WorkItems {
		if w.ID == "" || w.Stage == "" {
			return goerr.Wrap(ErrInvalidConfig, "work item requires id and stage",
				goerr.V(TenantIDKey, a.TenantID), goerr.V(FieldKey, w.ID))
		}
	}
	return nil
}

// Validate checks if the AppConfig is valid
func (a *AppConfig) Validate() error {
	tenants := make(map[string]bool)
	slackTeams := make(map[string]string)
	for i := range a.Agents {
		agent := &a.Agents[i]
		if err := agent.Validate(); err != nil {
			return goerr.Wrap(err, "invalid agent")
		}
		if tenants[agent.TenantID] {
			return goerr.Wrap(ErrDuplicateTenant, "duplicate tenant", goerr.V(TenantIDKey, agent.TenantID))
		}
		tenants[agent.TenantID] = true

		if agent.SlackTeamID != "" {
			if other, ok := slackTeams[agent.SlackTeamID]; ok {
				return goerr.Wrap(ErrInvalidConfig, "slack team bound to two tenants",
					goerr.V(TenantIDKey, agent.TenantID), goerr.V("other_tenant_id", other))
			}
			slackTeams[agent.SlackTeamID] = agent.TenantID
		}
	}

	if a.Resolver != nil {
		if _, err := a.Resolver.toResolverConfig(); err != nil {
			return goerr.Wrap(err, "invalid resolver configuration")
		}
	}
	return nil
}

// LoadAppConfiguration loads the agent configuration file. The format follows
// the extension: .yaml/.yml is YAML, anything else TOML.
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, err.Error(), goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var cfg AppConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse YAML config", goerr.V(ConfigPathKey, path))
		}
	case ".toml", "":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, goerr.Wrap(err, "failed to parse TOML config", goerr.V(ConfigPathKey, path))
		}
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "unknown config extension", goerr.V(ConfigPathKey, path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed", goerr.V(ConfigPathKey, path))
	}

	return &cfg, nil
}

// ToAgent converts the definition into the domain agent
func (a *AgentConfig) ToAgent(now time.Time) *model.OrchestrationAgent {
	id := a.ID
	if id == "" {
		id = "agent-" + a.TenantID
	}
	active := true
	if a.Active != nil {
		active = *a.Active
	}

	var buffers map[string]time.Duration
	if len(a.Calendar.AssigneeBuffers) > 0 {
		buffers = make(map[string]time.Duration, len(a.Calendar.AssigneeBuffers))
		for k, v := range a.Calendar.AssigneeBuffers {
			buffers[k] = v.Std()
		}
	}

	triggers := make([]model.Trigger, len(a.Triggers))
	for i, tr := range a.Triggers {
		triggers[i] = model.Trigger{
			ID:       tr.ID,
			Interval: tr.Interval.Std(),
			Text:     tr.Text,
			UserID:   tr.UserID,
		}
	}

	return &model.OrchestrationAgent{
		ID:                  types.AgentID(id),
		TenantID:            types.TenantID(a.TenantID),
		Name:                a.Name,
		Provider:            a.Provider,
		Model:               a.Model,
		SystemPrompt:        a.SystemPrompt,
		Temperature:         a.Temperature,
		MaxTokens:           a.MaxTokens,
		Active:              active,
		ConfidenceThreshold: a.ConfidenceThreshold,
		Capabilities: model.Capabilities{
			CanAssignPipelines:    a.Capabilities.AssignPipelines,
			CanCreateEvents:       a.Capabilities.CreateEvents,
			CanSendNotifications:  a.Capabilities.SendNotifications,
			CanTriggerAutomations: a.Capabilities.TriggerAutomations,
		},
		RateLimits: model.RateLimits{
			PerMinute: a.RateLimits.PerMinute,
			PerHour:   a.RateLimits.PerHour,
		},
		Notify: model.NotifyIntegration{
			Email:         a.Notify.Email,
			SMS:           a.Notify.SMS,
			ChatChannel:   a.Notify.ChatChannel,
			WebhookURL:    a.Notify.WebhookURL,
			WebhookSecret: a.Notify.WebhookSecret,
		},
		Calendar: model.CalendarSettings{
			CredentialProvider: a.Calendar.CredentialProvider,
			DefaultAssignee:    a.Calendar.DefaultAssignee,
			DefaultDuration:    a.Calendar.DefaultDuration.Std(),
			Buffer:             a.Calendar.Buffer.Std(),
			AssigneeBuffers:    buffers,
			SearchHorizon:      a.Calendar.SearchHorizon.Std(),
		},
		WebhookSecret: a.WebhookSecret,
		SlackTeamID:   a.SlackTeamID,
		Triggers:      triggers,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Registry builds the agent registry from the configuration
func (a *AppConfig) Registry(now time.Time) *model.AgentRegistry {
	registry := model.NewAgentRegistry()
	for i := range a.Agents {
		registry.Register(a.Agents[i].ToAgent(now))
	}
	return registry
}

// WorkItems returns the pipeline work items declared for every tenant
func (a *AppConfig) WorkItems(now time.Time) []*model.WorkItem {
	var items []*model.WorkItem
	for _, agent := range a.Agents {
		for _, w := range agent.WorkItems {
			items = append(items, &model.WorkItem{
				ID:        w.ID,
				TenantID:  types.TenantID(agent.TenantID),
				Title:     w.Title,
				Stage:     w.Stage,
				UpdatedAt: now,
			})
		}
	}
	return items
}

// ResolverConfig returns the slot resolver tuning, defaults filled in
func (a *AppConfig) ResolverConfig() resolver.Config {
	if a.Resolver == nil {
		return resolver.DefaultConfig()
	}
	cfg, err := a.Resolver.toResolverConfig()
	if err != nil {
		// Validate rejects this earlier
		return resolver.DefaultConfig()
	}
	return cfg
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, goerr.Wrap(ErrInvalidWorkingTime, err.Error(), goerr.V(ValueKey, s))
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (r *ResolverConfig) toResolverConfig() (resolver.Config, error) {
	cfg := resolver.DefaultConfig()

	if r.Step < 0 || r.MaxResults < 0 {
		return cfg, goerr.Wrap(ErrInvalidConfig, "step and max_results must not be negative")
	}
	if r.Step > 0 {
		cfg.Step = r.Step.Std()
	}
	if r.MaxResults > 0 {
		cfg.MaxResults = r.MaxResults
	}
	if r.DistanceWeight != nil {
		cfg.DistanceWeight = *r.DistanceWeight
	}
	if r.BoundaryWeight != nil {
		cfg.BoundaryWeight = *r.BoundaryWeight
	}
	if r.WorkingHoursWeight != nil {
		cfg.WorkingHoursWeight = *r.WorkingHoursWeight
	}

	if r.WorkStart != "" {
		d, err := parseClock(r.WorkStart)
		if err != nil {
			return cfg, err
		}
		cfg.WorkStart = d
	}
	if r.WorkEnd != "" {
		d, err := parseClock(r.WorkEnd)
		if err != nil {
			return cfg, err
		}
		cfg.WorkEnd = d
	}
	if cfg.WorkEnd <= cfg.WorkStart {
		return cfg, goerr.Wrap(ErrInvalidWorkingTime, "work_end must be after work_start",
			goerr.V("work_start", r.WorkStart), goerr.V("work_end", r.WorkEnd))
	}

	if len(r.WorkDays) > 0 {
		cfg.WorkDays = nil
		for _, name := range r.WorkDays {
			day, ok := weekdays[strings.ToLower(name)]
			if !ok {
				return cfg, goerr.Wrap(ErrInvalidWorkingTime, "unknown weekday", goerr.V(ValueKey, name))
			}
			cfg.WorkDays = append(cfg.WorkDays, day)
		}
	}

	if r.Timezone != "" {
		loc, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return cfg, goerr.Wrap(ErrInvalidConfig, "unknown timezone", goerr.V(ValueKey, r.Timezone))
		}
		cfg.Location = loc
	}
	return cfg, nil
}
