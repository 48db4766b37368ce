package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Error taxonomy tags. Wrap errors with goerr.T(tag) and test with goerr.HasTag.
var (
	TagValidation         = goerr.NewTag("validation")
	TagAuthentication     = goerr.NewTag("authentication")
	TagClassification     = goerr.NewTag("classification")
	TagConflict           = goerr.NewTag("conflict")
	TagRateLimit          = goerr.NewTag("rate_limit")
	TagChannelUnavailable = goerr.NewTag("channel_unavailable")
	TagCredential         = goerr.NewTag("credential")
	TagCapability         = goerr.NewTag("capability")

	// TagTransient marks failures eligible for retry (timeouts, 5xx)
	TagTransient = goerr.NewTag("transient")
	// TagPermanent marks failures that must not be retried (4xx, malformed input)
	TagPermanent = goerr.NewTag("permanent")
)

// Sentinel errors shared across layers
var (
	ErrNotFound          = errors.New("not found")
	ErrDecisionImmutable = errors.New("decision is immutable")
	ErrLeaseHeld         = errors.New("task lease is held by another worker")
	ErrTerminalTask      = errors.New("task is in a terminal status")
	ErrStaleTask         = errors.New("task was modified concurrently")
)

// Context keys for error values
const (
	TaskIDKey       = "task_id"
	TenantIDKey     = "tenant_id"
	DecisionIDKey   = "decision_id"
	CredentialIDKey = "credential_id"
)

// ErrorKindOf maps a tagged error to the kind recorded on a decision.
// Untagged errors are treated as transient.
func ErrorKindOf(err error) types.ErrorKind {
	switch {
	case err == nil:
		return types.ErrorKindNone
	case goerr.HasTag(err, TagValidation):
		return types.ErrorKindValidation
	case goerr.HasTag(err, TagAuthentication):
		return types.ErrorKindAuthentication
	case goerr.HasTag(err, TagClassification):
		return types.ErrorKindClassification
	case goerr.HasTag(err, TagConflict):
		return types.ErrorKindConflict
	case goerr.HasTag(err, TagRateLimit):
		return types.ErrorKindRateLimit
	case goerr.HasTag(err, TagChannelUnavailable):
		return types.ErrorKindChannelUnavailable
	case goerr.HasTag(err, TagCredential):
		return types.ErrorKindCredential
	case goerr.HasTag(err, TagCapability):
		return types.ErrorKindCapability
	case goerr.HasTag(err, TagPermanent):
		return types.ErrorKindPermanent
	default:
		return types.ErrorKindTransient
	}
}
