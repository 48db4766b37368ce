package slack

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/slack-go/slack"
)

// metadataEventType tags every notification posted by the service
const metadataEventType = "taskpilot_notification"

// Client posts structured notifications to Slack. It implements interfaces.ChatPoster.
type Client struct {
	api *slack.Client
}

// Option is a functional option for client configuration
type Option func(*clientConfig)

type clientConfig struct {
	apiURL string
}

// WithAPIURL points the client at a different Slack API endpoint
func WithAPIURL(url string) Option {
	return func(c *clientConfig) {
		c.apiURL = url
	}
}

// New creates a new Slack client with the provided bot token
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var apiOpts []slack.Option
	if cfg.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(cfg.apiURL))
	}

	return &Client{api: slack.New(token, apiOpts...)}, nil
}

// PostChat posts a Block Kit message tagged with its message type
func (c *Client) PostChat(ctx context.Context, channel, thread string, msgType types.MessageType, text string) error {
	if channel == "" {
		return goerr.New("channel is required", goerr.T(model.TagPermanent))
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(truncateToMaxBytes(text, MaxTextBytes), false),
		slack.MsgOptionBlocks(BuildBlocks(msgType, text)...),
		slack.MsgOptionMetadata(slack.SlackMetadata{
			EventType: metadataEventType,
			EventPayload: map[string]interface{}{
				"message_type": msgType.String(),
			},
		}),
	}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}

	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return goerr.Wrap(err, "failed to post Slack message",
			goerr.V("channel", channel),
			goerr.V("message_type", msgType),
			classify(err))
	}
	return nil
}

// BuildBlocks renders a message as a type-tagged context block followed by a section
func BuildBlocks(msgType types.MessageType, text string) []slack.Block {
	label := slack.NewTextBlockObject(slack.MarkdownType, TypeLabel(msgType), false, false)
	body := slack.NewTextBlockObject(slack.MarkdownType, truncateToMaxBytes(text, MaxTextBytes), false, false)

	return []slack.Block{
		slack.NewContextBlock("type:"+msgType.String(), label),
		slack.NewSectionBlock(body, nil, nil),
	}
}

func classify(err error) goerr.Option {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return goerr.T(model.TagTransient)
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		if status.Code >= 500 {
			return goerr.T(model.TagTransient)
		}
		return goerr.T(model.TagPermanent)
	}
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return goerr.T(model.TagPermanent)
	}
	return goerr.T(model.TagTransient)
}

// truncateToMaxBytes cuts s to at most max bytes without splitting a UTF-8 sequence
func truncateToMaxBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
