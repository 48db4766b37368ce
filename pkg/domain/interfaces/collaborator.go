package interfaces

import (
	"context"

	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Classifier sends a classification prompt to a language model and returns
// the raw text response
type Classifier interface {
	Classify(ctx context.Context, req model.ClassifyRequest) (string, error)
}

// CalendarClient is the external scheduling collaborator. Calls authenticate
// with decrypted credential material that must not be retained.
type CalendarClient interface {
	ListEvents(ctx context.Context, secret model.SecretPayload, assigneeID string, window model.Window) ([]model.Event, error)
	CreateEvent(ctx context.Context, secret model.SecretPayload, spec model.EventSpec) (string, error)
	CancelEvent(ctx context.Context, secret model.SecretPayload, ref string) error
}

// AutomationTrigger starts an external workflow and returns its acknowledgement id
type AutomationTrigger interface {
	Trigger(ctx context.Context, tenantID types.TenantID, spec model.AutomationSpec) (string, error)
}

// EmailSender delivers a multipart email with plain text and HTML bodies
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// SMSSender delivers a text message
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ChatPoster posts a message to a chat channel, optionally into a thread
type ChatPoster interface {
	PostChat(ctx context.Context, channel, thread string, msgType types.MessageType, text string) error
}

// WebhookPoster delivers a signed JSON payload to a webhook URL
type WebhookPoster interface {
	PostWebhook(ctx context.Context, url, secret string, payload []byte) error
}
