package webhook_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taskpilot/pkg/service/webhook"
)

const secret = "s3cr3t-shared-key"

var body = []byte(`{"source":"chat","text":"book a call tomorrow at 3pm"}`)

func TestCheck(t *testing.T) {
	valid := webhook.Sign(body, secret)

	tests := []struct {
		name   string
		header string
		secret string
		want   webhook.Verdict
	}{
		{name: "prefixed signature", header: valid, secret: secret, want: webhook.VerdictValid},
		{name: "bare hex signature", header: strings.TrimPrefix(valid, "sha256="), secret: secret, want: webhook.VerdictValid},
		{name: "uppercase hex", header: "sha256=" + strings.ToUpper(strings.TrimPrefix(valid, "sha256=")), secret: secret, want: webhook.VerdictInvalid},
		{name: "wrong secret", header: valid, secret: "other", want: webhook.VerdictInvalid},
		{name: "empty header", header: "", secret: secret, want: webhook.VerdictInvalid},
		{name: "unknown algorithm prefix", header: strings.Replace(valid, "sha256=", "sha1=", 1), secret: secret, want: webhook.VerdictInvalid},
		{name: "non hex", header: "sha256=zzzz", secret: secret, want: webhook.VerdictInvalid},
		{name: "truncated digest", header: valid[:len(valid)-2], secret: secret, want: webhook.VerdictInvalid},
		{name: "missing secret", header: valid, secret: "", want: webhook.VerdictUnconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, webhook.Check(body, tt.header, tt.secret)).Equal(tt.want)
		})
	}
}

func TestVerify_SingleBitMutation(t *testing.T) {
	header := webhook.Sign(body, secret)
	gt.Bool(t, webhook.Verify(body, header, secret)).True()

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			if webhook.Verify(mutated, header, secret) {
				t.Fatalf("mutated body verified at byte %d bit %d", i, bit)
			}
		}
	}

	sig := []byte(header)
	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), sig...)
			mutated[i] ^= 1 << bit
			if webhook.Verify(body, string(mutated), secret) {
				t.Fatalf("mutated header verified at byte %d bit %d: %q", i, bit, mutated)
			}
		}
	}

	// upper-case hex is a different header
	gt.Bool(t, webhook.Verify(body, strings.ToUpper(strings.TrimPrefix(header, "sha256=")), secret)).False()
}

func TestVerdictString(t *testing.T) {
	gt.Value(t, webhook.VerdictValid.String()).Equal("valid")
	gt.Value(t, webhook.VerdictInvalid.String()).Equal("invalid")
	gt.Value(t, webhook.VerdictUnconfigured.String()).Equal("unconfigured")
}
