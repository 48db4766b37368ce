package classifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// DefaultTimeout bounds one classification call
const DefaultTimeout = 30 * time.Second

// Classifier implements interfaces.Classifier on top of a gollem LLM client
type Classifier struct {
	llmClient gollem.LLMClient
	timeout   time.Duration
}

// Option is a functional option for Classifier
type Option func(*Classifier)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.timeout = d
	}
}

// New creates a Classifier with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (*Classifier, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &Classifier{
		llmClient: llmClient,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify opens a JSON-mode session per call and returns the raw response text.
// Temperature and MaxTokens are fixed when the LLM client is constructed.
func (c *Classifier) Classify(ctx context.Context, req model.ClassifyRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(ResponseSchema()),
		gollem.WithSessionSystemPrompt(req.SystemPrompt),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session",
			goerr.T(model.TagClassification))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(req.Prompt))
	if err != nil {
		opts := []goerr.Option{goerr.T(model.TagClassification)}
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			opts = append(opts, goerr.T(model.TagTransient))
		}
		return "", goerr.Wrap(err, "failed to generate content from LLM", opts...)
	}
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.New("empty response from LLM", goerr.T(model.TagClassification))
	}

	return strings.Join(resp.Texts, ""), nil
}

// ResponseSchema is the structured output contract of a classification
func ResponseSchema() *gollem.Parameter {
	taskTypes := make([]string, 0, len(types.AllTaskTypes()))
	for _, t := range types.AllTaskTypes() {
		taskTypes = append(taskTypes, t.String())
	}
	actionTypes := make([]string, 0, len(types.AllDecisionTypes()))
	for _, d := range types.AllDecisionTypes() {
		actionTypes = append(actionTypes, d.String())
	}

	str := func(desc string) *gollem.Parameter {
		return &gollem.Parameter{Type: gollem.TypeString, Description: desc}
	}

	return &gollem.Parameter{
		Title:       "TaskClassification",
		Description: "Classification of an incoming request with proposed actions",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"task_type": {
				Type:        gollem.TypeString,
				Description: "Intent of the request",
				Enum:        taskTypes,
				Required:    true,
			},
			"entities": {
				Type:        gollem.TypeObject,
				Description: "Entities extracted from the request",
				Properties: map[string]*gollem.Parameter{
					model.EntityRequestedTime: str("Requested start time in RFC3339"),
					model.EntityDurationMinutes: {
						Type:        gollem.TypeInteger,
						Description: "Requested duration in minutes",
					},
					model.EntityAssignee:    str("Person whose calendar is affected"),
					model.EntityTitle:       str("Short title of the meeting or task"),
					model.EntityEventRef:    str("Reference of an existing event"),
					model.EntityWorkItemID:  str("Identifier of a pipeline work item"),
					model.EntityTargetStage: str("Pipeline stage to move the work item to"),
				},
			},
			"priority": {
				Type:        gollem.TypeInteger,
				Description: "1 (most urgent) to 5 (least urgent)",
			},
			"confidence": {
				Type:        gollem.TypeNumber,
				Description: "Confidence in the classification between 0 and 1",
				Required:    true,
			},
			"reasoning": {
				Type:        gollem.TypeString,
				Description: "Short explanation of the classification",
				Required:    true,
			},
			"actions": {
				Type:        gollem.TypeArray,
				Description: "Concrete actions to execute, in order",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"type": {
							Type:        gollem.TypeString,
							Description: "Action type",
							Enum:        actionTypes,
							Required:    true,
						},
						"work_item_id": str("Work item for assign-pipeline"),
						"target_stage": str("Target stage for assign-pipeline"),
						"title":        str("Event title"),
						"assignee":     str("Event assignee"),
						"attendees": {
							Type:        gollem.TypeArray,
							Description: "Event attendees",
							Items:       &gollem.Parameter{Type: gollem.TypeString},
						},
						"start": str("Event start in RFC3339"),
						"duration_minutes": {
							Type:        gollem.TypeInteger,
							Description: "Event duration in minutes",
						},
						"event_ref": str("Existing event for update-event or cancel-event"),
						"channel":   str("Notification channel: email, sms, chat or webhook"),
						"template":  str("Notification message type"),
						"recipient": str("Notification recipient"),
						"workflow":  str("Automation workflow name"),
						"reason":    str("Reason for escalate"),
					},
				},
			},
		},
	}
}
