package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
)

func newTestDispatcher(transport *fakeTransport, agent *model.OrchestrationAgent) *usecase.NotificationDispatcher {
	registry := model.NewAgentRegistry()
	registry.Register(agent)
	return usecase.NewNotificationDispatcher(registry,
		usecase.WithEmailSender(transport),
		usecase.WithSMSSender(transport),
		usecase.WithChatPoster(transport),
		usecase.WithRetryPolicy(3, time.Millisecond),
	)
}

func TestTruncateSMS(t *testing.T) {
	testCases := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "short text untouched", input: "See you at 3pm", expect: "See you at 3pm"},
		{name: "exactly at limit", input: strings.Repeat("a", 160), expect: strings.Repeat("a", 160)},
		{
			name:   "collapsed summary is padded to the limit",
			input:  strings.Repeat("word    ", 30),
			expect: strings.TrimSpace(strings.Repeat("word ", 30)) + strings.Repeat(" ", 157-149) + "...",
		},
		{
			name:   "collapsed summary is cut at the limit",
			input:  strings.Repeat("word\t\t", 40),
			expect: strings.TrimSpace(strings.Repeat("word ", 40))[:157] + "...",
		},
		{
			name:   "cut with marker",
			input:  strings.Repeat("b", 200),
			expect: strings.Repeat("b", 157) + "...",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Value(t, usecase.TruncateSMS(tc.input)).Equal(tc.expect)
		})
	}

	t.Run("long text is always exactly 160 runes", func(t *testing.T) {
		inputs := []string{strings.Repeat("word   ", 24)}
		for _, n := range []int{161, 170, 500, 2000} {
			inputs = append(inputs, strings.Repeat("ü", n), strings.Repeat("ü  ", n/3+1))
		}
		for _, in := range inputs {
			out := usecase.TruncateSMS(in)
			gt.Value(t, utf8.RuneCountInString(out)).Equal(usecase.SMSMaxLength)
			gt.Bool(t, strings.HasSuffix(out, "...")).True()
		}
	})
}

func TestDispatcher_SMSIsTruncated(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, newTestAgent())

	delivery := d.Send(context.Background(), testTenant, types.NotifySMS, types.MessageInfo, "+15550100",
		map[string]any{usecase.NotifyKeyMessage: strings.Repeat("long message ", 40)})
	gt.Bool(t, delivery.OK()).True()

	sent := transport.messages()
	gt.Array(t, sent).Length(1).Required()
	gt.Value(t, utf8.RuneCountInString(sent[0].Text)).Equal(160)
	gt.Value(t, sent[0].To).Equal("+15550100")
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	transport := &fakeTransport{errs: []error{transient("timeout"), transient("503")}}
	d := newTestDispatcher(transport, newTestAgent())

	delivery := d.Send(context.Background(), testTenant, types.NotifyEmail, types.MessageConfirmation, "bob@example.com",
		map[string]any{usecase.NotifyKeyTitle: "Sync", usecase.NotifyKeyStart: "Mon, 01 Jan 2024 15:00:00 UTC"})
	gt.Value(t, delivery.Status).Equal(types.DeliveryDelivered)
	gt.Value(t, delivery.Attempts).Equal(3)

	sent := transport.messages()
	gt.Array(t, sent).Length(1).Required()
	gt.Value(t, sent[0].Subject).Equal("Confirmed")
	gt.Value(t, sent[0].Text).Equal("Confirmed: Sync on Mon, 01 Jan 2024 15:00:00 UTC.")
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	transport := &fakeTransport{errs: []error{transient("a"), transient("b"), transient("c"), transient("d")}}
	d := newTestDispatcher(transport, newTestAgent())

	delivery := d.Send(context.Background(), testTenant, types.NotifyEmail, types.MessageInfo, "bob@example.com", nil)
	gt.Value(t, delivery.Status).Equal(types.DeliveryFailed)
	gt.Value(t, delivery.Attempts).Equal(3)
	gt.Value(t, transport.calls()).Equal(3)
}

func TestDispatcher_PermanentFailureIsNotRetried(t *testing.T) {
	transport := &fakeTransport{errs: []error{permanent("mailbox does not exist")}}
	d := newTestDispatcher(transport, newTestAgent())

	delivery := d.Send(context.Background(), testTenant, types.NotifyEmail, types.MessageInfo, "nobody@example.com", nil)
	gt.Value(t, delivery.Status).Equal(types.DeliveryFailed)
	gt.Value(t, delivery.Attempts).Equal(1)
	gt.Value(t, transport.calls()).Equal(1)
	gt.Bool(t, strings.Contains(delivery.Error, "mailbox")).True()
}

func TestDispatcher_ChannelUnavailable(t *testing.T) {
	agent := newTestAgent()
	agent.Notify.SMS = false

	testCases := []struct {
		name    string
		tenant  types.TenantID
		channel types.NotificationChannel
	}{
		{name: "integration disabled", tenant: testTenant, channel: types.NotifySMS},
		{name: "no webhook sender", tenant: testTenant, channel: types.NotifyWebhook},
		{name: "unknown tenant", tenant: "ghost", channel: types.NotifyEmail},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &fakeTransport{}
			d := newTestDispatcher(transport, agent)
			delivery := d.Send(context.Background(), tc.tenant, tc.channel, types.MessageInfo, "someone", nil)
			gt.Value(t, delivery.Status).Equal(types.DeliveryChannelUnavailable)
			gt.Value(t, transport.calls()).Equal(0)
		})
	}
}

func TestDispatcher_ChatUsesDefaultChannelAndThread(t *testing.T) {
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, newTestAgent())

	delivery := d.Send(context.Background(), testTenant, types.NotifyChat, types.MessageClarification, "",
		map[string]any{usecase.NotifyKeyMessage: "Which day works?", usecase.NotifyKeyThread: "1700000000.000100"})
	gt.Bool(t, delivery.OK()).True()
	gt.Value(t, delivery.Recipient).Equal("C-ops")

	sent := transport.messages()
	gt.Array(t, sent).Length(1).Required()
	gt.Value(t, sent[0].To).Equal("C-ops")
	gt.Value(t, sent[0].Thread).Equal("1700000000.000100")
	gt.Value(t, sent[0].Type).Equal(types.MessageClarification)
	gt.Value(t, sent[0].Text).Equal("We need a bit more information to continue. Which day works?")
}

func TestDispatcher_WebhookPayload(t *testing.T) {
	agent := newTestAgent()
	agent.Notify.WebhookURL = "https://hooks.example.com/acme"
	agent.Notify.WebhookSecret = "out-secret"

	transport := &fakeTransport{}
	registry := model.NewAgentRegistry()
	registry.Register(agent)
	d := usecase.NewNotificationDispatcher(registry, usecase.WithWebhookPoster(transport))

	delivery := d.Send(context.Background(), testTenant, types.NotifyWebhook, types.MessageCancellation, "",
		map[string]any{usecase.NotifyKeyTitle: "Sync"})
	gt.Bool(t, delivery.OK()).True()

	sent := transport.messages()
	gt.Array(t, sent).Length(1).Required()
	gt.Value(t, sent[0].To).Equal("https://hooks.example.com/acme")
	gt.Bool(t, strings.Contains(sent[0].Text, `"message_type":"cancellation"`)).True()
	gt.Bool(t, strings.Contains(sent[0].Text, `"text":"Cancelled: Sync."`)).True()
}

func TestDispatcher_EveryTemplateRenders(t *testing.T) {
	for _, mt := range []types.MessageType{
		types.MessageSchedulingUpdate,
		types.MessageConfirmation,
		types.MessageClarification,
		types.MessageCancellation,
		types.MessageError,
		types.MessageInfo,
	} {
		t.Run(string(mt), func(t *testing.T) {
			transport := &fakeTransport{}
			d := newTestDispatcher(transport, newTestAgent())
			delivery := d.Send(context.Background(), testTenant, types.NotifyEmail, mt, "bob@example.com",
				map[string]any{usecase.NotifyKeyMessage: "hello <world>"})
			gt.Bool(t, delivery.OK()).True()
			gt.Array(t, transport.messages()).Length(1)
		})
	}
}
