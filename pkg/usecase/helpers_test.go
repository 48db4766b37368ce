package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/repository/memory"
	"github.com/secmon-lab/taskpilot/pkg/service/calendar"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
)

const (
	testWebhookSecret = "whsec-test"
	testAssignee      = "alice"
	testProvider      = "calendar"
)

type fakeClassifier struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	last     model.ClassifyRequest
}

func (f *fakeClassifier) Classify(ctx context.Context, req model.ClassifyRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return f.response, f.err
}

func (f *fakeClassifier) set(resp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = resp
	f.err = nil
}

// classification renders a classifier JSON response
func classification(t *testing.T, c model.Classification) string {
	t.Helper()
	raw, err := json.Marshal(c)
	gt.NoError(t, err).Required()
	return string(raw)
}

type sentMessage struct {
	To      string
	Thread  string
	Subject string
	Text    string
	Type    types.MessageType
}

// fakeTransport implements every notification transport and fails the first
// len(errs) calls with the queued errors
type fakeTransport struct {
	mu   sync.Mutex
	errs []error
	sent []sentMessage
	hits int
}

func (f *fakeTransport) next() error {
	f.hits++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) SendEmail(ctx context.Context, to, subject, text, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{To: to, Subject: subject, Text: text})
	return nil
}

func (f *fakeTransport) SendSMS(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: body})
	return nil
}

func (f *fakeTransport) PostChat(ctx context.Context, channel, thread string, msgType types.MessageType, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{To: channel, Thread: thread, Type: msgType, Text: text})
	return nil
}

func (f *fakeTransport) PostWebhook(ctx context.Context, url, secret string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{To: url, Text: string(payload)})
	return nil
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func transient(msg string) error {
	return goerr.New(msg, goerr.T(model.TagTransient))
}

func permanent(msg string) error {
	return goerr.New(msg, goerr.T(model.TagPermanent))
}

func newTestAgent() *model.OrchestrationAgent {
	return &model.OrchestrationAgent{
		ID:                  "agent-acme",
		TenantID:            testTenant,
		Name:                "acme scheduler",
		Provider:            "gemini",
		Active:              true,
		ConfidenceThreshold: 0.5,
		Capabilities: model.Capabilities{
			CanAssignPipelines:    true,
			CanCreateEvents:       true,
			CanSendNotifications:  true,
			CanTriggerAutomations: true,
		},
		RateLimits: model.RateLimits{PerHour: 100},
		Notify: model.NotifyIntegration{
			Email:       true,
			SMS:         true,
			ChatChannel: "C-ops",
		},
		Calendar: model.CalendarSettings{
			CredentialProvider: testProvider,
			DefaultAssignee:    testAssignee,
		},
		WebhookSecret: testWebhookSecret,
		SlackTeamID:   "T-acme",
	}
}

type harness struct {
	repo       *memory.Memory
	registry   *model.AgentRegistry
	agent      *model.OrchestrationAgent
	calendar   *calendar.Memory
	classifier *fakeClassifier
	transport  *fakeTransport
	uc         *usecase.UseCases

	wrapCalendar func(*calendar.Memory) interfaces.CalendarClient
}

type harnessOption func(*harness)

func withAgent(f func(a *model.OrchestrationAgent)) harnessOption {
	return func(h *harness) { f(h.agent) }
}

func withCalendarClient(wrap func(*calendar.Memory) interfaces.CalendarClient) harnessOption {
	return func(h *harness) { h.wrapCalendar = wrap }
}

// newHarness wires the full pipeline against in-memory collaborators. The
// default assignee has a calendar credential in the vault.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		repo:       memory.New(),
		registry:   model.NewAgentRegistry(),
		agent:      newTestAgent(),
		calendar:   calendar.New(),
		classifier: &fakeClassifier{},
		transport:  &fakeTransport{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registry.Register(h.agent)

	var calendarClient interfaces.CalendarClient = h.calendar
	if h.wrapCalendar != nil {
		calendarClient = h.wrapCalendar(h.calendar)
	}

	h.uc = usecase.New(h.repo, h.registry,
		usecase.WithClassifier(h.classifier),
		usecase.WithSealer(newTestSealer(t)),
		usecase.WithExecutorOptions(usecase.WithCalendar(calendarClient)),
		usecase.WithDispatcherOptions(
			usecase.WithEmailSender(h.transport),
			usecase.WithSMSSender(h.transport),
			usecase.WithChatPoster(h.transport),
			usecase.WithWebhookPoster(h.transport),
			usecase.WithRetryPolicy(3, time.Millisecond),
		),
	)

	_, err := h.uc.Vault.Save(context.Background(), testAssignee, testTenant, testProvider, "work calendar",
		model.SecretPayload{"access_token": "cal-token"})
	gt.NoError(t, err).Required()
	return h
}

// tomorrowAt returns hour:00 UTC of the next day
func tomorrowAt(hour int) time.Time {
	d := time.Now().UTC().Add(24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

// submit creates a PENDING task through the task API
func (h *harness) submit(t *testing.T, content string, reply model.ReplyRoute) *model.Task {
	t.Helper()
	task, err := h.uc.Task.Submit(context.Background(), &model.NewTaskRequest{
		TenantID:   testTenant,
		UserID:     "bob",
		Source:     types.SourceAPI,
		SourceRef:  "ref-" + content,
		RawContent: content,
		Reply:      reply,
	})
	gt.NoError(t, err).Required()
	return task
}

func auditFilter(kind model.AuditKind) interfaces.AuditFilter {
	return interfaces.AuditFilter{Kind: kind}
}
