package slack_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/service/slack"
	slackapi "github.com/slack-go/slack"
)

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates client when token is provided", func(t *testing.T) {
		svc, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func TestPostChat(t *testing.T) {
	type posted struct {
		channel string
		thread  string
		blocks  string
	}

	newServer := func(t *testing.T, status int, body string, got *posted) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.NoError(t, r.ParseForm())
			got.channel = r.FormValue("channel")
			got.thread = r.FormValue("thread_ts")
			got.blocks = r.FormValue("blocks")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	t.Run("posts type-tagged blocks into a thread", func(t *testing.T) {
		var got posted
		srv := newServer(t, http.StatusOK, `{"ok":true,"channel":"C123","ts":"1700000000.000100"}`, &got)

		c, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
		gt.NoError(t, err).Required()

		err = c.PostChat(context.Background(), "C123", "1699999999.000001", types.MessageConfirmation, "Meeting booked")
		gt.NoError(t, err).Required()
		gt.Value(t, got.channel).Equal("C123")
		gt.Value(t, got.thread).Equal("1699999999.000001")
		gt.String(t, got.blocks).Contains("type:confirmation")
		gt.String(t, got.blocks).Contains("Meeting booked")
	})

	t.Run("slack error response is permanent", func(t *testing.T) {
		var got posted
		srv := newServer(t, http.StatusOK, `{"ok":false,"error":"channel_not_found"}`, &got)

		c, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
		gt.NoError(t, err).Required()

		err = c.PostChat(context.Background(), "C404", "", types.MessageInfo, "hello")
		gt.Error(t, err)
		gt.Bool(t, goerr.HasTag(err, model.TagPermanent)).True()
	})

	t.Run("server error is transient", func(t *testing.T) {
		var got posted
		srv := newServer(t, http.StatusBadGateway, `bad gateway`, &got)

		c, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
		gt.NoError(t, err).Required()

		err = c.PostChat(context.Background(), "C123", "", types.MessageInfo, "hello")
		gt.Error(t, err)
		gt.Bool(t, goerr.HasTag(err, model.TagTransient)).True()
	})

	t.Run("empty channel is rejected", func(t *testing.T) {
		c, err := slack.New("xoxb-test")
		gt.NoError(t, err).Required()

		err = c.PostChat(context.Background(), "", "", types.MessageInfo, "hello")
		gt.Bool(t, goerr.HasTag(err, model.TagPermanent)).True()
	})
}

func TestBuildBlocks(t *testing.T) {
	blocks := slack.BuildBlocks(types.MessageClarification, "Which day works?")
	gt.Array(t, blocks).Length(2)
	gt.Value(t, blocks[0].BlockType()).Equal(slackapi.MBTContext)
	gt.Value(t, blocks[1].BlockType()).Equal(slackapi.MBTSection)
}

func TestTruncateToMaxBytes(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short text is untouched", input: "hello", max: 10, want: "hello"},
		{name: "ascii is cut at max", input: "hello world", max: 5, want: "hello"},
		{name: "multibyte rune is not split", input: "日本語", max: 4, want: "日"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := slack.TruncateToMaxBytes(tc.input, tc.max)
			gt.Value(t, got).Equal(tc.want)
			gt.Bool(t, strings.HasPrefix(tc.input, got)).True()
		})
	}
}
