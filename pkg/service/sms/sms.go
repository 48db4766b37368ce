package sms

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/utils/safe"
)

// DefaultTimeout bounds one gateway request
const DefaultTimeout = 30 * time.Second

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Gateway sends text messages through a form-encoded HTTP SMS gateway
type Gateway struct {
	endpoint  string
	accountID string
	token     string
	from      string
	client    *http.Client
}

var _ interfaces.SMSSender = &Gateway{}

type Option func(*Gateway)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// New creates a Gateway posting to endpoint with basic auth accountID:token
func New(endpoint, accountID, token, from string, opts ...Option) (*Gateway, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, goerr.Wrap(err, "invalid SMS gateway endpoint", goerr.V("endpoint", endpoint))
	}
	if !e164.MatchString(from) {
		return nil, goerr.New("SMS sender must be an E.164 number", goerr.V("from", from))
	}

	g := &Gateway{
		endpoint:  endpoint,
		accountID: accountID,
		token:     token,
		from:      from,
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// SendSMS posts To/From/Body to the gateway. Timeouts and 5xx are transient;
// 4xx and malformed numbers are permanent.
func (g *Gateway) SendSMS(ctx context.Context, to, body string) error {
	if !e164.MatchString(to) {
		return goerr.New("malformed SMS recipient", goerr.V("to", to), goerr.T(model.TagPermanent))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", g.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return goerr.Wrap(err, "failed to build SMS request", goerr.T(model.TagPermanent))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if g.accountID != "" {
		req.SetBasicAuth(g.accountID, g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "SMS gateway request failed", goerr.T(model.TagTransient))
	}
	defer safe.DrainClose(ctx, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return goerr.New("SMS gateway returned server error", goerr.T(model.TagTransient),
			goerr.V("status", resp.StatusCode))
	case resp.StatusCode >= 400:
		return goerr.New("SMS gateway rejected message", goerr.T(model.TagPermanent),
			goerr.V("status", resp.StatusCode), goerr.V("to", to))
	}
	return nil
}
