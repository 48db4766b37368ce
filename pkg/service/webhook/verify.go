package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of an inbound or outbound webhook body
const SignatureHeader = "X-Webhook-Signature"

const algorithmPrefix = "sha256="

// Verdict is the outcome of a signature check
type Verdict int

const (
	// VerdictInvalid means a signature was expected and did not match
	VerdictInvalid Verdict = iota
	// VerdictValid means the signature matches the body
	VerdictValid
	// VerdictUnconfigured means no shared secret exists, so nothing can be verified
	VerdictUnconfigured
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictUnconfigured:
		return "unconfigured"
	default:
		return "invalid"
	}
}

// Check verifies header against an HMAC-SHA256 of the raw body. The header may
// carry a "sha256=" prefix and must be lower-case hex. Malformed headers are
// invalid, never an error.
func Check(body []byte, header, secret string) Verdict {
	if secret == "" {
		return VerdictUnconfigured
	}

	sig := strings.TrimSpace(header)
	if strings.Contains(sig, "=") {
		if !strings.HasPrefix(sig, algorithmPrefix) {
			return VerdictInvalid
		}
		sig = strings.TrimPrefix(sig, algorithmPrefix)
	}

	// compared as lower-case hex text so any change to the header is a mismatch
	expected := hex.EncodeToString(digest(body, secret))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return VerdictInvalid
	}
	return VerdictValid
}

// Verify reports whether header is a valid signature of body under secret
func Verify(body []byte, header, secret string) bool {
	return Check(body, header, secret) == VerdictValid
}

// Sign returns the "sha256=<hex>" signature header value for body
func Sign(body []byte, secret string) string {
	return algorithmPrefix + hex.EncodeToString(digest(body, secret))
}

func digest(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
