package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
	"github.com/secmon-lab/taskpilot/pkg/utils/safe"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds the acknowledgement wait
const DefaultTimeout = 30 * time.Second

// Trigger starts workflows on an HTTP automation endpoint. The endpoint must
// acknowledge synchronously; the workflow itself runs on its own.
type Trigger struct {
	endpoint string
	secret   string
	client   *http.Client
}

var _ interfaces.AutomationTrigger = &Trigger{}

type Option func(*Trigger)

// WithSecret signs each request body like an outbound webhook
func WithSecret(secret string) Option {
	return func(t *Trigger) {
		t.secret = secret
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(t *Trigger) {
		t.client = client
	}
}

func New(endpoint string, opts ...Option) *Trigger {
	t := &Trigger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type triggerRequest struct {
	TenantID types.TenantID `json:"tenant_id"`
	Workflow string         `json:"workflow"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Trigger posts the workflow request and returns the acknowledgement id.
// A 2xx response with "accepted": false is a permanent rejection.
func (t *Trigger) Trigger(ctx context.Context, tenantID types.TenantID, spec model.AutomationSpec) (string, error) {
	if spec.Workflow == "" {
		return "", goerr.New("workflow is required", goerr.T(model.TagPermanent))
	}

	body, err := json.Marshal(triggerRequest{
		TenantID: tenantID,
		Workflow: spec.Workflow,
		Payload:  spec.Payload,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal automation request", goerr.T(model.TagPermanent))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build automation request", goerr.T(model.TagPermanent))
	}
	req.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(body, t.secret))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "automation request failed",
			goerr.V("workflow", spec.Workflow), goerr.T(model.TagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	ack, err := safe.ReadLimited(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read automation acknowledgement", goerr.T(model.TagTransient))
	}

	switch {
	case resp.StatusCode >= 500:
		return "", goerr.New("automation endpoint returned server error",
			goerr.V("status", resp.StatusCode), goerr.V("workflow", spec.Workflow), goerr.T(model.TagTransient))
	case resp.StatusCode >= 400:
		return "", goerr.New("automation endpoint rejected trigger",
			goerr.V("status", resp.StatusCode), goerr.V("workflow", spec.Workflow), goerr.T(model.TagPermanent))
	}

	if accepted := gjson.GetBytes(ack, "accepted"); accepted.Exists() && !accepted.Bool() {
		return "", goerr.New("automation endpoint declined trigger",
			goerr.V("workflow", spec.Workflow),
			goerr.V("reason", gjson.GetBytes(ack, "reason").String()),
			goerr.T(model.TagPermanent))
	}

	for _, path := range []string{"id", "execution_id", "run_id"} {
		if id := gjson.GetBytes(ack, path); id.Exists() {
			return id.String(), nil
		}
	}
	return "", nil
}
