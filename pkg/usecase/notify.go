package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
)

// SMSMaxLength is the rune limit of one text message, marker included
const SMSMaxLength = 160

const smsTruncationMarker = "..."

// Notification data keys understood by the built-in templates
const (
	NotifyKeyMessage = "message"
	NotifyKeyTitle   = "title"
	NotifyKeyStart   = "start"
	NotifyKeyTaskID  = "task_id"
	// NotifyKeyThread selects a chat thread; it is not rendered
	NotifyKeyThread = "thread"
)

type messageTemplate struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

func newMessageTemplate(name, subject, text, html string) messageTemplate {
	return messageTemplate{
		subject: subject,
		text:    template.Must(template.New(name).Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name).Parse(html)),
	}
}

var messageTemplates = map[types.MessageType]messageTemplate{
	types.MessageSchedulingUpdate: newMessageTemplate("scheduling-update",
		"Scheduling update",
		`Scheduling update{{with .title}}: {{.}}{{end}}{{with .start}} at {{.}}{{end}}.{{with .message}} {{.}}{{end}}`,
		`<p><strong>Scheduling update</strong>{{with .title}}: {{.}}{{end}}{{with .start}} at {{.}}{{end}}.</p>{{with .message}}<p>{{.}}</p>{{end}}`),
	types.MessageConfirmation: newMessageTemplate("confirmation",
		"Confirmed",
		`Confirmed{{with .title}}: {{.}}{{end}}{{with .start}} on {{.}}{{end}}.{{with .message}} {{.}}{{end}}`,
		`<p><strong>Confirmed</strong>{{with .title}}: {{.}}{{end}}{{with .start}} on {{.}}{{end}}.</p>{{with .message}}<p>{{.}}</p>{{end}}`),
	types.MessageClarification: newMessageTemplate("clarification",
		"More information needed",
		`We need a bit more information to continue.{{with .message}} {{.}}{{end}}`,
		`<p>We need a bit more information to continue.</p>{{with .message}}<p>{{.}}</p>{{end}}`),
	types.MessageCancellation: newMessageTemplate("cancellation",
		"Cancelled",
		`Cancelled{{with .title}}: {{.}}{{end}}.{{with .message}} {{.}}{{end}}`,
		`<p><strong>Cancelled</strong>{{with .title}}: {{.}}{{end}}.</p>{{with .message}}<p>{{.}}</p>{{end}}`),
	types.MessageError: newMessageTemplate("error",
		"We could not complete your request",
		`We could not complete your request.{{with .message}} {{.}}{{end}}`,
		`<p>We could not complete your request.</p>{{with .message}}<p>{{.}}</p>{{end}}`),
	types.MessageInfo: newMessageTemplate("info",
		"Update",
		`{{with .message}}{{.}}{{end}}`,
		`{{with .message}}<p>{{.}}</p>{{end}}`),
}

// NotificationDispatcher renders built-in templates and delivers them over
// email, SMS, chat or webhook with bounded retries for transient failures
type NotificationDispatcher struct {
	registry    *model.AgentRegistry
	email       interfaces.EmailSender
	sms         interfaces.SMSSender
	chat        interfaces.ChatPoster
	webhook     interfaces.WebhookPoster
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// DispatcherOption configures a NotificationDispatcher
type DispatcherOption func(*NotificationDispatcher)

func WithEmailSender(s interfaces.EmailSender) DispatcherOption {
	return func(d *NotificationDispatcher) { d.email = s }
}

func WithSMSSender(s interfaces.SMSSender) DispatcherOption {
	return func(d *NotificationDispatcher) { d.sms = s }
}

func WithChatPoster(p interfaces.ChatPoster) DispatcherOption {
	return func(d *NotificationDispatcher) { d.chat = p }
}

func WithWebhookPoster(p interfaces.WebhookPoster) DispatcherOption {
	return func(d *NotificationDispatcher) { d.webhook = p }
}

// WithRetryPolicy sets the attempt count and the first backoff, which doubles per retry
func WithRetryPolicy(maxAttempts int, backoff time.Duration) DispatcherOption {
	return func(d *NotificationDispatcher) {
		d.maxAttempts = maxAttempts
		d.backoff = backoff
	}
}

// NewNotificationDispatcher creates a dispatcher. Channels without a sender are unavailable.
func NewNotificationDispatcher(registry *model.AgentRegistry, opts ...DispatcherOption) *NotificationDispatcher {
	d := &NotificationDispatcher{
		registry:    registry,
		maxAttempts: 3,
		backoff:     time.Second,
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts < 1 {
		d.maxAttempts = 1
	}
	return d
}

// Send renders template with data and delivers it to recipient. It never
// returns an error: the Delivery carries the outcome, including
// channel-unavailable when the tenant has no integration for channel.
func (d *NotificationDispatcher) Send(ctx context.Context, tenantID types.TenantID, channel types.NotificationChannel, msgType types.MessageType, recipient string, data map[string]any) *model.Delivery {
	logger := logging.From(ctx)
	delivery := &model.Delivery{Channel: channel, Recipient: recipient}

	integration, available := d.integration(tenantID, channel)
	if !available {
		delivery.Status = types.DeliveryChannelUnavailable
		logger.Warn("notification channel unavailable",
			"tenant_id", tenantID, "channel", channel, "message_type", msgType)
		return delivery
	}

	send, err := d.prepare(tenantID, channel, msgType, recipient, data, integration)
	if err != nil {
		delivery.Status = types.DeliveryFailed
		delivery.Error = err.Error()
		return delivery
	}
	if channel == types.NotifyChat && recipient == "" {
		delivery.Recipient = integration.ChatChannel
	}
	if channel == types.NotifyWebhook && recipient == "" {
		delivery.Recipient = integration.WebhookURL
	}

	delay := d.backoff
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		delivery.Attempts = attempt
		err = send(ctx)
		if err == nil {
			delivery.Status = types.DeliveryDelivered
			delivery.Error = ""
			delivery.SentAt = d.now().UTC()
			return delivery
		}

		delivery.Error = err.Error()
		if goerr.HasTag(err, model.TagPermanent) {
			logger.Warn("notification permanently failed",
				"tenant_id", tenantID, "channel", channel, "error", err)
			break
		}
		if attempt == d.maxAttempts {
			break
		}
		logger.Info("retrying notification",
			"tenant_id", tenantID, "channel", channel, "attempt", attempt, "delay", delay, "error", err)
		if err := d.sleep(ctx, delay); err != nil {
			delivery.Error = err.Error()
			break
		}
		delay *= 2
	}

	delivery.Status = types.DeliveryFailed
	return delivery
}

func (d *NotificationDispatcher) integration(tenantID types.TenantID, channel types.NotificationChannel) (model.NotifyIntegration, bool) {
	if d.registry == nil {
		return model.NotifyIntegration{}, false
	}
	agent, err := d.registry.Get(tenantID)
	if err != nil {
		return model.NotifyIntegration{}, false
	}
	n := agent.Notify
	if !n.Configured(channel) {
		// an explicit chat recipient is enough when the chat transport exists
		if !(channel == types.NotifyChat && d.chat != nil) {
			return n, false
		}
	}

	switch channel {
	case types.NotifyEmail:
		return n, d.email != nil
	case types.NotifySMS:
		return n, d.sms != nil
	case types.NotifyChat:
		return n, d.chat != nil
	case types.NotifyWebhook:
		return n, d.webhook != nil
	default:
		return n, false
	}
}

func (d *NotificationDispatcher) prepare(tenantID types.TenantID, channel types.NotificationChannel, msgType types.MessageType, recipient string, data map[string]any, n model.NotifyIntegration) (func(ctx context.Context) error, error) {
	tmpl, ok := messageTemplates[msgType]
	if !ok {
		return nil, goerr.New("unknown message template", goerr.V("message_type", msgType), goerr.T(model.TagPermanent))
	}
	text, err := renderText(tmpl.text, data)
	if err != nil {
		return nil, err
	}

	switch channel {
	case types.NotifyEmail:
		html, err := renderHTML(tmpl.html, data)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return d.email.SendEmail(ctx, recipient, tmpl.subject, text, html)
		}, nil

	case types.NotifySMS:
		body := TruncateSMS(text)
		return func(ctx context.Context) error {
			return d.sms.SendSMS(ctx, recipient, body)
		}, nil

	case types.NotifyChat:
		target := recipient
		if target == "" {
			target = n.ChatChannel
		}
		if target == "" {
			return nil, goerr.New("chat recipient is required", goerr.T(model.TagPermanent))
		}
		thread, _ := data[NotifyKeyThread].(string)
		return func(ctx context.Context) error {
			return d.chat.PostChat(ctx, target, thread, msgType, text)
		}, nil

	case types.NotifyWebhook:
		url := recipient
		if url == "" {
			url = n.WebhookURL
		}
		payload, err := json.Marshal(map[string]any{
			"tenant_id":    tenantID,
			"message_type": msgType,
			"text":         text,
			"data":         data,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode webhook notification", goerr.T(model.TagPermanent))
		}
		return func(ctx context.Context) error {
			return d.webhook.PostWebhook(ctx, url, n.WebhookSecret, payload)
		}, nil

	default:
		return nil, goerr.New("unknown notification channel", goerr.V("channel", channel), goerr.T(model.TagPermanent))
	}
}

func renderText(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render message", goerr.T(model.TagPermanent))
	}
	return strings.TrimSpace(buf.String()), nil
}

func renderHTML(t *htmltemplate.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render HTML message", goerr.T(model.TagPermanent))
	}
	return buf.String(), nil
}

// TruncateSMS summarizes text to fit one SMS. Text over SMSMaxLength runes
// always becomes exactly SMSMaxLength runes ending in the marker: whitespace
// runs collapse first, then the summary is cut, or padded with spaces when
// collapsing left it shorter.
func TruncateSMS(text string) string {
	if utf8.RuneCountInString(text) <= SMSMaxLength {
		return text
	}
	keep := SMSMaxLength - utf8.RuneCountInString(smsTruncationMarker)
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > keep {
		runes = runes[:keep]
	}
	return string(runes) + strings.Repeat(" ", keep-len(runes)) + smsTruncationMarker
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
