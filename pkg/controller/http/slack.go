package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/async"
	"github.com/secmon-lab/taskpilot/pkg/utils/errutil"
	"github.com/secmon-lab/taskpilot/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// slackMaxSkew bounds the age of a signed Slack request
const slackMaxSkew = 5 * time.Minute

// verifySlackSignature checks the v0 signature Slack computes over
// "v0:<timestamp>:<body>" with the app signing secret
func verifySlackSignature(signingSecret, timestamp, signature string, body []byte, now time.Time) error {
	if timestamp == "" {
		return goerr.New("missing timestamp")
	}
	if signature == "" {
		return goerr.New("missing signature")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp")
	}
	if d := now.Sub(time.Unix(ts, 0)); d > slackMaxSkew || d < -slackMaxSkew {
		return goerr.New("timestamp outside accepted window", goerr.V("timestamp", timestamp), goerr.V("now", now.Unix()))
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	if _, err := mac.Write([]byte(fmt.Sprintf("v0:%s:%s", timestamp, body))); err != nil {
		return goerr.Wrap(err, "failed to compute HMAC")
	}
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return goerr.New("signature mismatch")
	}
	return nil
}

// SlackSignatureMiddleware rejects requests that are not signed by Slack
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}

			timestamp := r.Header.Get("X-Slack-Request-Timestamp")
			signature := r.Header.Get("X-Slack-Signature")
			if err := verifySlackSignature(signingSecret, timestamp, signature, body, time.Now()); err != nil {
				logging.From(ctx).Warn("slack signature verification failed", "error", err)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// SlackWebhookHandler turns Slack Events API callbacks into chat tasks
type SlackWebhookHandler struct {
	task *usecase.TaskUseCase
}

// NewSlackWebhookHandler creates a new Slack webhook handler
func NewSlackWebhookHandler(task *usecase.TaskUseCase) *SlackWebhookHandler {
	return &SlackWebhookHandler{task: task}
}

// ServeHTTP answers within Slack's 3 second budget and ingests the event in
// the background
func (h *SlackWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse slack event"), http.StatusBadRequest)
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to unmarshal challenge"), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge.Challenge)); err != nil {
			logging.From(ctx).Error("failed to write challenge response", "error", err)
		}

	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)

		async.Dispatch(ctx, func(ctx context.Context) error {
			task, err := h.task.Ingest(ctx, types.SourceChat, model.RawInput{Body: body})
			if errors.Is(err, usecase.ErrIgnoredEvent) {
				return nil
			}
			if err != nil {
				return goerr.Wrap(err, "failed to ingest slack event", goerr.V("team_id", ev.TeamID))
			}
			logging.From(ctx).Info("slack event ingested",
				"team_id", ev.TeamID, "task_id", task.ID, "status", task.Status)
			return nil
		})

	default:
		logging.From(ctx).Warn("unknown slack event type", "type", ev.Type)
		w.WriteHeader(http.StatusOK)
	}
}
