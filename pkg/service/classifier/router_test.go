package classifier_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/service/classifier"
)

type namedClassifier string

func (n namedClassifier) Classify(ctx context.Context, req model.ClassifyRequest) (string, error) {
	return string(n) + ":" + req.Prompt, nil
}

func TestRouter(t *testing.T) {
	r := classifier.NewRouter("gemini")
	r.Register("gemini", namedClassifier("gemini"))
	r.Register("openai", namedClassifier("openai"))

	tests := []struct {
		name     string
		provider string
		want     string
		wantErr  bool
	}{
		{name: "empty provider uses fallback", provider: "", want: "gemini:hi"},
		{name: "explicit provider", provider: "openai", want: "openai:hi"},
		{name: "unknown provider", provider: "claude", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Classify(context.Background(), model.ClassifyRequest{Provider: tt.provider, Prompt: "hi"})
			if tt.wantErr {
				gt.Error(t, err)
				gt.Bool(t, goerr.HasTag(err, model.TagClassification)).True()
				gt.Bool(t, goerr.HasTag(err, model.TagPermanent)).True()
				return
			}
			gt.NoError(t, err).Required()
			gt.Value(t, out).Equal(tt.want)
		})
	}

	gt.Value(t, r.Providers()).Equal([]string{"gemini", "openai"})
	gt.Bool(t, r.Has("")).True()
	gt.Bool(t, r.Has("claude")).False()
}
