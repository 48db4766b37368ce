package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/lifecycle"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

//go:embed prompt/classify.md
var classifyPromptTmpl string

var classifyPrompt = template.Must(template.New("classify").Parse(classifyPromptTmpl))

const defaultSystemPrompt = "You are an operations assistant that turns incoming requests into scheduling, pipeline and notification actions."

// DefaultEventDuration is used when neither the request nor the agent gives one
const DefaultEventDuration = 30 * time.Minute

type classifyPromptData struct {
	Now             string
	Source          types.SourceChannel
	UserID          string
	DefaultAssignee string
	TaskTypes       []types.TaskType
	Actions         []types.DecisionType
	Known           map[string]string
	Content         string
}

// DecisionEngine turns a task into a Decision by asking the classifier for a
// structured classification and validating it
type DecisionEngine struct {
	classifier interfaces.Classifier
	now        func() time.Time
}

// NewDecisionEngine creates a new DecisionEngine instance
func NewDecisionEngine(classifier interfaces.Classifier) *DecisionEngine {
	return &DecisionEngine{
		classifier: classifier,
		now:        time.Now,
	}
}

// Classify never returns an error. A classifier failure or unparsable response
// yields a failed no-action decision carrying the failure message.
func (e *DecisionEngine) Classify(ctx context.Context, agent *model.OrchestrationAgent, task *model.Task) *model.Decision {
	now := e.now().UTC()
	d := &model.Decision{
		ID:        types.NewDecisionID(),
		AgentID:   agent.ID,
		TenantID:  task.TenantID,
		TaskID:    task.ID,
		Source:    task.Source,
		RawInput:  task.RawContent,
		Priority:  task.Priority,
		Type:      types.DecisionNoAction,
		Status:    types.DecisionStatusPending,
		CreatedAt: now,
	}

	prompt, err := buildClassifyPrompt(agent, task, now)
	if err != nil {
		return failDecision(d, goerr.Wrap(err, "failed to build prompt", goerr.T(model.TagClassification)))
	}
	d.Prompt = prompt

	systemPrompt := agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	if e.classifier == nil {
		return failDecision(d, goerr.New("classifier is not configured", goerr.T(model.TagClassification)))
	}
	raw, err := e.classifier.Classify(ctx, model.ClassifyRequest{
		Provider:     agent.Provider,
		Model:        agent.Model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		Temperature:  agent.Temperature,
		MaxTokens:    agent.MaxTokens,
	})
	if err != nil {
		return failDecision(d, goerr.Wrap(err, "classifier call failed", goerr.T(model.TagClassification)))
	}
	d.RawResponse = raw

	c, err := ParseClassification(raw)
	if err != nil {
		return failDecision(d, err)
	}

	d.TaskType = types.TaskType(c.TaskType)
	if !d.TaskType.IsValid() {
		logging.From(ctx).Warn("classifier returned unknown task type",
			"task_id", task.ID, "task_type", c.TaskType)
		d.TaskType = types.TaskTypeUnknown
	}
	d.Entities = c.Entities
	d.Confidence = clamp01(c.Confidence)
	d.Reasoning = c.Reasoning
	if c.Priority >= model.PriorityHighest && c.Priority <= model.PriorityLowest {
		d.Priority = c.Priority
	}
	if d.Priority == 0 {
		d.Priority = model.PriorityDefault
	}

	merged := mergeEntities(task.Entities, c.Entities)
	for _, p := range c.Actions {
		action, ok := buildAction(agent, task, merged, d.Reasoning, p)
		if !ok {
			logging.From(ctx).Warn("dropping invalid action proposal",
				"task_id", task.ID, "action_type", p.Type)
			continue
		}
		d.Actions = append(d.Actions, action)
	}
	if len(d.Actions) > 0 {
		d.Type = d.Actions[0].Type
	}

	if missing := lifecycle.MissingEntities(d.TaskType, merged); len(missing) > 0 {
		d.Status = types.DecisionStatusRequiresApproval
		d.Outcome.Status = model.ExecutionNeedsInput
		d.Outcome.MissingEntities = missing
		return d
	}
	if d.Confidence < agent.Threshold() {
		d.Status = types.DecisionStatusRequiresApproval
		d.Outcome.Status = model.ExecutionNeedsInput
	}

	return d
}

func failDecision(d *model.Decision, err error) *model.Decision {
	d.Type = types.DecisionNoAction
	d.Actions = nil
	d.Status = types.DecisionStatusFailed
	d.ErrorKind = types.ErrorKindClassification
	d.Error = err.Error()
	d.Outcome.Status = model.ExecutionFailed
	return d
}

// ParseClassification decodes a classifier response. Markdown code fences
// around the JSON object are tolerated.
func ParseClassification(raw string) (*model.Classification, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, goerr.New("classifier response is empty", goerr.T(model.TagClassification))
	}

	var c model.Classification
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return nil, goerr.Wrap(err, "classifier response is not valid JSON",
			goerr.T(model.TagClassification), goerr.V("response", truncate(body, 200)))
	}
	if c.TaskType == "" {
		return nil, goerr.New("classifier response has no task_type",
			goerr.T(model.TagClassification))
	}
	return &c, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildClassifyPrompt(agent *model.OrchestrationAgent, task *model.Task, now time.Time) (string, error) {
	actions := make([]types.DecisionType, 0, len(types.AllDecisionTypes()))
	for _, a := range types.AllDecisionTypes() {
		if agent.Capabilities.Allows(a) {
			actions = append(actions, a)
		}
	}

	var known map[string]string
	if len(task.Entities) > 0 {
		known = make(map[string]string, len(task.Entities))
		for k, v := range task.Entities {
			known[k] = fmt.Sprint(v)
		}
	}

	data := classifyPromptData{
		Now:             now.Format(time.RFC3339),
		Source:          task.Source,
		UserID:          task.UserID,
		DefaultAssignee: agent.Calendar.DefaultAssignee,
		TaskTypes:       types.AllTaskTypes(),
		Actions:         actions,
		Known:           known,
		Content:         task.RawContent,
	}

	var buf bytes.Buffer
	if err := classifyPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render classify prompt")
	}
	return buf.String(), nil
}

func buildAction(agent *model.OrchestrationAgent, task *model.Task, entities map[string]any, reasoning string, p model.ActionProposal) (model.Action, bool) {
	at, err := types.ParseDecisionType(p.Type)
	if err != nil {
		return model.Action{}, false
	}
	action := model.Action{Type: at}

	switch at {
	case types.DecisionAssignPipeline:
		action.WorkItemID = firstNonEmpty(p.WorkItemID, entityString(entities, model.EntityWorkItemID))
		action.TargetStage = firstNonEmpty(p.TargetStage, entityString(entities, model.EntityTargetStage))
		if action.WorkItemID == "" || action.TargetStage == "" {
			return model.Action{}, false
		}

	case types.DecisionCreateEvent, types.DecisionUpdateEvent:
		spec := &model.EventSpec{
			Title: firstNonEmpty(p.Title, entityString(entities, model.EntityTitle), "Meeting"),
			AssigneeID: firstNonEmpty(p.Assignee, entityString(entities, model.EntityAssignee),
				agent.Calendar.DefaultAssignee, task.UserID),
			Attendees: p.Attendees,
			Ref:       firstNonEmpty(p.EventRef, entityString(entities, model.EntityEventRef)),
		}
		if len(spec.Attendees) == 0 {
			spec.Attendees = entityStrings(entities, model.EntityAttendees)
		}
		start := firstNonEmpty(p.Start, entityString(entities, model.EntityRequestedTime))
		if ts, err := time.Parse(time.RFC3339, start); err == nil {
			spec.Start = ts.UTC()
			spec.End = spec.Start.Add(eventDuration(agent, entities, p))
		}
		if at == types.DecisionUpdateEvent && spec.Ref == "" {
			return model.Action{}, false
		}
		action.Event = spec

	case types.DecisionCancelEvent:
		ref := firstNonEmpty(p.EventRef, entityString(entities, model.EntityEventRef))
		if ref == "" {
			return model.Action{}, false
		}
		action.Event = &model.EventSpec{
			Ref:        ref,
			AssigneeID: firstNonEmpty(p.Assignee, entityString(entities, model.EntityAssignee), agent.Calendar.DefaultAssignee, task.UserID),
		}

	case types.DecisionSendNotification:
		spec := &model.NotificationSpec{
			Channel:   types.NotificationChannel(p.Channel),
			Template:  types.MessageType(p.Template),
			Recipient: p.Recipient,
			Data:      map[string]any{NotifyKeyTaskID: string(task.ID)},
		}
		if !spec.Channel.IsValid() {
			spec.Channel = task.Reply.Channel
		}
		if spec.Recipient == "" && spec.Channel == task.Reply.Channel {
			spec.Recipient = task.Reply.Recipient
			if task.Reply.Thread != "" {
				spec.Data[NotifyKeyThread] = task.Reply.Thread
			}
		}
		if !spec.Template.IsValid() {
			spec.Template = types.MessageInfo
		}
		if !spec.Channel.IsValid() {
			return model.Action{}, false
		}
		if reasoning != "" {
			spec.Data[NotifyKeyMessage] = reasoning
		}
		if title := entityString(entities, model.EntityTitle); title != "" {
			spec.Data[NotifyKeyTitle] = title
		}
		action.Notification = spec

	case types.DecisionTriggerAutomation:
		if p.Workflow == "" {
			return model.Action{}, false
		}
		action.Automation = &model.AutomationSpec{Workflow: p.Workflow, Payload: p.Payload}

	case types.DecisionEscalate:
		action.Reason = firstNonEmpty(p.Reason, reasoning, "escalated by classifier")

	case types.DecisionNoAction:
	}

	return action, true
}

func eventDuration(agent *model.OrchestrationAgent, entities map[string]any, p model.ActionProposal) time.Duration {
	if p.DurationMin > 0 {
		return time.Duration(p.DurationMin) * time.Minute
	}
	switch v := entities[model.EntityDurationMinutes].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Minute))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Minute
		}
	}
	if agent.Calendar.DefaultDuration > 0 {
		return agent.Calendar.DefaultDuration
	}
	return DefaultEventDuration
}

func mergeEntities(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

func entityString(entities map[string]any, key string) string {
	if s, ok := entities[key].(string); ok {
		return s
	}
	return ""
}

func entityStrings(entities map[string]any, key string) []string {
	switch v := entities[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		sort.Strings(out)
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
