package webhook

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/utils/safe"
)

// DefaultTimeout bounds one outbound webhook POST
const DefaultTimeout = 30 * time.Second

// Poster delivers signed JSON payloads
type Poster struct {
	client *http.Client
}

var _ interfaces.WebhookPoster = &Poster{}

type PosterOption func(*Poster)

// WithHTTPClient replaces the HTTP client. Its timeout is used as is.
func WithHTTPClient(client *http.Client) PosterOption {
	return func(p *Poster) {
		p.client = client
	}
}

func NewPoster(opts ...PosterOption) *Poster {
	p := &Poster{
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PostWebhook POSTs payload with an HMAC-SHA256 signature header. Timeouts,
// transport errors and 5xx responses are tagged transient; 4xx are permanent.
func (p *Poster) PostWebhook(ctx context.Context, url, secret string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return goerr.Wrap(err, "failed to build webhook request", goerr.T(model.TagPermanent), goerr.V("url", url))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(payload, secret))

	resp, err := p.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "webhook request failed", goerr.T(model.TagTransient), goerr.V("url", url))
	}
	defer safe.DrainClose(ctx, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return goerr.New("webhook endpoint returned server error", goerr.T(model.TagTransient),
			goerr.V("url", url), goerr.V("status", resp.StatusCode))
	case resp.StatusCode >= 400:
		return goerr.New("webhook endpoint rejected payload", goerr.T(model.TagPermanent),
			goerr.V("url", url), goerr.V("status", resp.StatusCode))
	}
	return nil
}
