package sms_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/sms"
)

func TestSendSMS(t *testing.T) {
	t.Run("posts form with basic auth", func(t *testing.T) {
		var to, from, body, user, pass string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.NoError(t, r.ParseForm())
			to = r.PostForm.Get("To")
			from = r.PostForm.Get("From")
			body = r.PostForm.Get("Body")
			user, pass, _ = r.BasicAuth()
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		g, err := sms.New(srv.URL, "AC123", "token", "+15550001111")
		gt.NoError(t, err).Required()

		gt.NoError(t, g.SendSMS(context.Background(), "+15552223333", "hello")).Required()
		gt.Value(t, to).Equal("+15552223333")
		gt.Value(t, from).Equal("+15550001111")
		gt.Value(t, body).Equal("hello")
		gt.Value(t, user).Equal("AC123")
		gt.Value(t, pass).Equal("token")
	})

	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "server error is transient", status: http.StatusServiceUnavailable, permanent: false},
		{name: "client error is permanent", status: http.StatusBadRequest, permanent: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			g, err := sms.New(srv.URL, "", "", "+15550001111")
			gt.NoError(t, err).Required()

			err = g.SendSMS(context.Background(), "+15552223333", "hello")
			gt.Value(t, goerr.HasTag(err, model.TagPermanent)).Equal(tc.permanent)
			gt.Value(t, goerr.HasTag(err, model.TagTransient)).Equal(!tc.permanent)
		})
	}

	t.Run("malformed recipient is permanent without a request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		g, err := sms.New(srv.URL, "", "", "+15550001111")
		gt.NoError(t, err).Required()

		err = g.SendSMS(context.Background(), "555-1234", "hello")
		gt.Bool(t, goerr.HasTag(err, model.TagPermanent)).True()
		gt.Bool(t, called).False()
	})
}

func TestNew(t *testing.T) {
	_, err := sms.New("::bad", "", "", "+15550001111")
	gt.Error(t, err)

	_, err = sms.New("https://sms.example.com/send", "", "", "12345")
	gt.Error(t, err)
}
