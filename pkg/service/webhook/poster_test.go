package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
)

func TestPoster_SignsBody(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(webhook.SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := webhook.NewPoster()
	gt.NoError(t, p.PostWebhook(context.Background(), srv.URL, secret, body)).Required()
	gt.Value(t, string(gotBody)).Equal(string(body))
	gt.Bool(t, webhook.Verify(gotBody, gotSig, secret)).True()
}

func TestPoster_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "server error is transient", status: http.StatusBadGateway, permanent: false},
		{name: "client error is permanent", status: http.StatusUnprocessableEntity, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := webhook.NewPoster().PostWebhook(context.Background(), srv.URL, secret, body)
			gt.Error(t, err)
			gt.Value(t, goerr.HasTag(err, model.TagPermanent)).Equal(tt.permanent)
			gt.Value(t, goerr.HasTag(err, model.TagTransient)).Equal(!tt.permanent)
		})
	}
}

func TestPoster_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := webhook.NewPoster(webhook.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	err := p.PostWebhook(context.Background(), srv.URL, secret, body)
	gt.Error(t, err)
	gt.Bool(t, goerr.HasTag(err, model.TagTransient)).True()
}
