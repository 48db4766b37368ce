package model

// ClassifyRequest is one classification call to the language model
type ClassifyRequest struct {
	// Provider and Model select the language model; empty uses the default
	Provider     string
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// Classification is the structured result parsed from a model response
type Classification struct {
	TaskType   string           `json:"task_type"`
	Entities   map[string]any   `json:"entities"`
	Priority   int              `json:"priority"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Actions    []ActionProposal `json:"actions"`
}

// ActionProposal is one action as proposed by the model before validation
type ActionProposal struct {
	Type        string         `json:"type"`
	WorkItemID  string         `json:"work_item_id,omitempty"`
	TargetStage string         `json:"target_stage,omitempty"`
	Title       string         `json:"title,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Attendees   []string       `json:"attendees,omitempty"`
	Start       string         `json:"start,omitempty"`
	DurationMin int            `json:"duration_minutes,omitempty"`
	EventRef    string         `json:"event_ref,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Template    string         `json:"template,omitempty"`
	Recipient   string         `json:"recipient,omitempty"`
	Workflow    string         `json:"workflow,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}
