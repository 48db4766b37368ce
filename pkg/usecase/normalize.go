package usecase

import (
	"context"
	"encoding/json"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
	"github.com/slack-go/slack/slackevents"
	"github.com/tidwall/gjson"
)

// Webhook payload paths, tried in order
var (
	webhookSourcePaths  = []string{"id", "source_id", "source"}
	webhookContentPaths = []string{"text", "content", "message"}
	webhookAuthorPaths  = []string{"user", "author", "from"}
	webhookThreadPaths  = []string{"thread", "thread_id"}
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

type channelAdapter func(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error)

// Normalizer converts raw channel payloads into NewTaskRequest values.
// Signed channels are authenticated before any field is read.
type Normalizer struct {
	registry      *model.AgentRegistry
	allowUnsigned bool
	adapters      map[types.SourceChannel]channelAdapter
	now           func() time.Time
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithAllowUnsigned accepts signed channels from tenants that configured no
// secret. Every such request is marked Unverified.
func WithAllowUnsigned(allow bool) NormalizerOption {
	return func(n *Normalizer) { n.allowUnsigned = allow }
}

// NewNormalizer creates a new Normalizer instance
func NewNormalizer(registry *model.AgentRegistry, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.adapters = map[types.SourceChannel]channelAdapter{
		types.SourceWebhook:  n.webhook,
		types.SourceEmail:    n.email,
		types.SourceSMS:      n.sms,
		types.SourceChat:     n.chat,
		types.SourceSchedule: n.schedule,
		types.SourceAPI:      n.api,
	}
	return n
}

// Normalize dispatches raw to the adapter of channel
func (n *Normalizer) Normalize(ctx context.Context, channel types.SourceChannel, raw model.RawInput) (*model.NewTaskRequest, error) {
	adapter, ok := n.adapters[channel]
	if !ok {
		return nil, goerr.New("unsupported source channel", goerr.V("channel", channel), goerr.T(model.TagValidation))
	}
	req, err := adapter(ctx, raw)
	if err != nil {
		return nil, err
	}
	req.Source = channel
	if req.Priority == 0 {
		req.Priority = model.PriorityDefault
	}
	return req, nil
}

// authenticate returns whether the request is unverified, or an authentication error
func (n *Normalizer) authenticate(raw model.RawInput) (*model.OrchestrationAgent, bool, error) {
	agent, err := n.registry.Get(raw.TenantID)
	if err != nil {
		// unknown tenants look the same as bad signatures
		return nil, false, goerr.Wrap(err, "unknown tenant",
			goerr.V(model.TenantIDKey, raw.TenantID), goerr.T(model.TagAuthentication))
	}

	switch webhook.Check(raw.Body, raw.Signature, agent.WebhookSecret) {
	case webhook.VerdictValid:
		return agent, false, nil
	case webhook.VerdictUnconfigured:
		if n.allowUnsigned {
			return agent, true, nil
		}
		return nil, false, goerr.New("tenant has no webhook secret configured",
			goerr.V(model.TenantIDKey, raw.TenantID), goerr.T(model.TagAuthentication))
	default:
		return nil, false, goerr.New("invalid webhook signature",
			goerr.V(model.TenantIDKey, raw.TenantID), goerr.T(model.TagAuthentication))
	}
}

func (n *Normalizer) webhook(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	agent, unverified, err := n.authenticate(raw)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw.Body) {
		return nil, goerr.New("webhook body is not valid JSON", goerr.T(model.TagValidation))
	}

	sourceRef := firstPath(raw.Body, webhookSourcePaths)
	content := firstPath(raw.Body, webhookContentPaths)
	if sourceRef == "" || content == "" {
		return nil, goerr.New("webhook payload requires a source identifier and content",
			goerr.V("has_source", sourceRef != ""), goerr.V("has_content", content != ""), goerr.T(model.TagValidation))
	}

	priority := int(gjson.GetBytes(raw.Body, "priority").Int())
	if priority != 0 && (priority < model.PriorityHighest || priority > model.PriorityLowest) {
		return nil, goerr.New("priority out of range", goerr.V("priority", priority), goerr.T(model.TagValidation))
	}

	req := &model.NewTaskRequest{
		TenantID:   raw.TenantID,
		UserID:     firstPath(raw.Body, webhookAuthorPaths),
		SourceRef:  sourceRef,
		ThreadRef:  firstPath(raw.Body, webhookThreadPaths),
		RawContent: content,
		Priority:   priority,
		Unverified: unverified,
	}
	if agent.Notify.WebhookURL != "" {
		req.Reply = model.ReplyRoute{Channel: types.NotifyWebhook, Recipient: agent.Notify.WebhookURL}
	}
	return req, nil
}

// email accepts the JSON form of an inbound-mail parse hook
func (n *Normalizer) email(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	_, unverified, err := n.authenticate(raw)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw.Body) {
		return nil, goerr.New("email body is not valid JSON", goerr.T(model.TagValidation))
	}

	fields := gjson.GetManyBytes(raw.Body, "message_id", "from", "subject", "text", "in_reply_to", "references")
	messageID, from, subject, text := fields[0].String(), fields[1].String(), fields[2].String(), fields[3].String()
	if messageID == "" || from == "" {
		return nil, goerr.New("email requires message_id and from", goerr.T(model.TagValidation))
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, goerr.Wrap(err, "malformed sender address", goerr.V("from", from), goerr.T(model.TagValidation))
	}

	content := strings.TrimSpace(subject + "\n\n" + text)
	if content == "" {
		return nil, goerr.New("email has no subject or body", goerr.T(model.TagValidation))
	}

	thread := messageID
	if refs := strings.Fields(fields[5].String()); len(refs) > 0 {
		thread = refs[0]
	} else if inReplyTo := fields[4].String(); inReplyTo != "" {
		thread = inReplyTo
	}

	return &model.NewTaskRequest{
		TenantID:   raw.TenantID,
		UserID:     addr.Address,
		SourceRef:  messageID,
		ThreadRef:  thread,
		RawContent: content,
		Reply:      model.ReplyRoute{Channel: types.NotifyEmail, Recipient: addr.Address},
		Unverified: unverified,
	}, nil
}

// sms accepts a form-encoded gateway callback
func (n *Normalizer) sms(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	_, unverified, err := n.authenticate(raw)
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(raw.Body))
	if err != nil {
		return nil, goerr.Wrap(err, "SMS callback is not form encoded", goerr.T(model.TagValidation))
	}

	from, body, sid := form.Get("From"), strings.TrimSpace(form.Get("Body")), form.Get("MessageSid")
	if from == "" || body == "" || sid == "" {
		return nil, goerr.New("SMS callback requires From, Body and MessageSid", goerr.T(model.TagValidation))
	}

	return &model.NewTaskRequest{
		TenantID:   raw.TenantID,
		UserID:     from,
		SourceRef:  sid,
		ThreadRef:  from,
		RawContent: body,
		Reply:      model.ReplyRoute{Channel: types.NotifySMS, Recipient: from},
		Unverified: unverified,
	}, nil
}

// chat accepts a Slack Events API callback. The request signature is checked
// at the HTTP layer with the Slack signing secret; the tenant comes from the team.
func (n *Normalizer) chat(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	ev, err := slackevents.ParseEvent(json.RawMessage(raw.Body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse chat event", goerr.T(model.TagValidation))
	}
	if ev.Type != slackevents.CallbackEvent {
		return nil, ErrIgnoredEvent
	}

	var user, text, channel, ts, threadTS string
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if inner.BotID != "" {
			return nil, ErrIgnoredEvent
		}
		user, text, channel, ts, threadTS = inner.User, inner.Text, inner.Channel, inner.TimeStamp, inner.ThreadTimeStamp
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" {
			return nil, ErrIgnoredEvent
		}
		user, text, channel, ts, threadTS = inner.User, inner.Text, inner.Channel, inner.TimeStamp, inner.ThreadTimeStamp
	default:
		return nil, ErrIgnoredEvent
	}

	agent := n.registry.FindBySlackTeam(ev.TeamID)
	if agent == nil {
		return nil, goerr.New("no tenant bound to chat team", goerr.V("team_id", ev.TeamID), goerr.T(model.TagValidation))
	}

	content := strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
	if content == "" || ts == "" {
		return nil, ErrIgnoredEvent
	}
	thread := threadTS
	if thread == "" {
		thread = ts
	}

	return &model.NewTaskRequest{
		TenantID:   agent.TenantID,
		UserID:     user,
		SourceRef:  channel + ":" + ts,
		ThreadRef:  thread,
		RawContent: content,
		Reply:      model.ReplyRoute{Channel: types.NotifyChat, Recipient: channel, Thread: thread},
	}, nil
}

// ScheduleFire is the payload produced when a trigger fires
type ScheduleFire struct {
	TriggerID string    `json:"trigger_id"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id,omitempty"`
	FiredAt   time.Time `json:"fired_at"`
}

func (n *Normalizer) schedule(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	var fire ScheduleFire
	if err := json.Unmarshal(raw.Body, &fire); err != nil {
		return nil, goerr.Wrap(err, "invalid schedule payload", goerr.T(model.TagValidation))
	}
	if fire.TriggerID == "" || strings.TrimSpace(fire.Text) == "" {
		return nil, goerr.New("schedule payload requires trigger_id and text", goerr.T(model.TagValidation))
	}
	if fire.FiredAt.IsZero() {
		fire.FiredAt = n.now()
	}
	return &model.NewTaskRequest{
		TenantID:   raw.TenantID,
		UserID:     fire.UserID,
		SourceRef:  fire.TriggerID + "@" + fire.FiredAt.UTC().Format(time.RFC3339),
		RawContent: fire.Text,
	}, nil
}

// APITaskInput is the admin API body for creating a task
type APITaskInput struct {
	Content   string `json:"content"`
	UserID    string `json:"user_id,omitempty"`
	SourceRef string `json:"source_ref,omitempty"`
	ThreadRef string `json:"thread_ref,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Reply     *struct {
		Channel   string `json:"channel"`
		Recipient string `json:"recipient"`
		Thread    string `json:"thread,omitempty"`
	} `json:"reply,omitempty"`
}

// api accepts a task submitted by an authenticated administrator
func (n *Normalizer) api(ctx context.Context, raw model.RawInput) (*model.NewTaskRequest, error) {
	var in APITaskInput
	if err := json.Unmarshal(raw.Body, &in); err != nil {
		return nil, goerr.Wrap(err, "invalid task payload", goerr.T(model.TagValidation))
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, goerr.New("content is required", goerr.T(model.TagValidation))
	}
	if in.Priority != 0 && (in.Priority < model.PriorityHighest || in.Priority > model.PriorityLowest) {
		return nil, goerr.New("priority out of range", goerr.V("priority", in.Priority), goerr.T(model.TagValidation))
	}

	req := &model.NewTaskRequest{
		TenantID:   raw.TenantID,
		UserID:     in.UserID,
		SourceRef:  firstNonEmpty(in.SourceRef, uuid.NewString()),
		ThreadRef:  in.ThreadRef,
		RawContent: in.Content,
		Priority:   in.Priority,
	}
	if in.Reply != nil {
		ch, err := types.ParseNotificationChannel(in.Reply.Channel)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid reply channel", goerr.T(model.TagValidation))
		}
		req.Reply = model.ReplyRoute{Channel: ch, Recipient: in.Reply.Recipient, Thread: in.Reply.Thread}
	}
	return req, nil
}

func firstPath(body []byte, paths []string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}
