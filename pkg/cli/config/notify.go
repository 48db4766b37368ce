package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/service/email"
	"github.com/secmon-lab/taskpilot/pkg/service/sms"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Notify holds the outbound notification transports
type Notify struct {
	smtpAddr     string
	smtpFrom     string
	smtpUser     string
	smtpPassword string

	smsEndpoint  string
	smsAccountID string
	smsToken     string
	smsFrom      string

	retryAttempts int
	retryBackoff  time.Duration
}

func (x *Notify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "smtp-addr",
			Usage:       "SMTP relay address (host:port) for email notifications",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMTP_ADDR"),
			Destination: &x.smtpAddr,
		},
		&cli.StringFlag{
			Name:        "smtp-from",
			Usage:       "Sender address of email notifications",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMTP_FROM"),
			Destination: &x.smtpFrom,
		},
		&cli.StringFlag{
			Name:        "smtp-user",
			Usage:       "SMTP username",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMTP_USER"),
			Destination: &x.smtpUser,
		},
		&cli.StringFlag{
			Name:        "smtp-password",
			Usage:       "SMTP password",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMTP_PASSWORD"),
			Destination: &x.smtpPassword,
		},
		&cli.StringFlag{
			Name:        "sms-endpoint",
			Usage:       "SMS gateway endpoint URL",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMS_ENDPOINT"),
			Destination: &x.smsEndpoint,
		},
		&cli.StringFlag{
			Name:        "sms-account-id",
			Usage:       "SMS gateway account ID",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMS_ACCOUNT_ID"),
			Destination: &x.smsAccountID,
		},
		&cli.StringFlag{
			Name:        "sms-token",
			Usage:       "SMS gateway auth token",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMS_TOKEN"),
			Destination: &x.smsToken,
		},
		&cli.StringFlag{
			Name:        "sms-from",
			Usage:       "Sender number of SMS notifications (E.164)",
			Category:    "Notification",
			Sources:     cli.EnvVars("TASKPILOT_SMS_FROM"),
			Destination: &x.smsFrom,
		},
		&cli.IntFlag{
			Name:        "notify-retry-attempts",
			Usage:       "Delivery attempts for transient notification failures",
			Category:    "Notification",
			Value:       3,
			Sources:     cli.EnvVars("TASKPILOT_NOTIFY_RETRY_ATTEMPTS"),
			Destination: &x.retryAttempts,
		},
		&cli.DurationFlag{
			Name:        "notify-retry-backoff",
			Usage:       "Initial backoff between notification attempts (doubles each retry)",
			Category:    "Notification",
			Value:       time.Second,
			Sources:     cli.EnvVars("TASKPILOT_NOTIFY_RETRY_BACKOFF"),
			Destination: &x.retryBackoff,
		},
	}
}

func (x Notify) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("email", x.smtpAddr != ""),
		slog.String("smtp_addr", x.smtpAddr),
		slog.Int("smtp-password.len", len(x.smtpPassword)),
		slog.Bool("sms", x.smsEndpoint != ""),
		slog.Int("sms-token.len", len(x.smsToken)),
		slog.Int("retry_attempts", x.retryAttempts),
		slog.Duration("retry_backoff", x.retryBackoff),
	)
}

// Configure builds the dispatcher options for every configured transport.
// chat may be nil when Slack is not configured.
func (x *Notify) Configure(chat interfaces.ChatPoster) ([]usecase.DispatcherOption, error) {
	if x.retryAttempts < 1 {
		return nil, goerr.New("notify-retry-attempts must be at least 1", goerr.V(ValueKey, x.retryAttempts))
	}

	opts := []usecase.DispatcherOption{
		usecase.WithRetryPolicy(x.retryAttempts, x.retryBackoff),
		usecase.WithWebhookPoster(webhook.NewPoster()),
	}

	if x.smtpAddr != "" {
		var emailOpts []email.Option
		if x.smtpUser != "" {
			emailOpts = append(emailOpts, email.WithAuth(x.smtpUser, x.smtpPassword))
		}
		sender, err := email.New(x.smtpAddr, x.smtpFrom, emailOpts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure email transport")
		}
		opts = append(opts, usecase.WithEmailSender(sender))
	}

	if x.smsEndpoint != "" {
		gw, err := sms.New(x.smsEndpoint, x.smsAccountID, x.smsToken, x.smsFrom)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure SMS transport")
		}
		opts = append(opts, usecase.WithSMSSender(gw))
	}

	if chat != nil {
		opts = append(opts, usecase.WithChatPoster(chat))
	}

	return opts, nil
}
