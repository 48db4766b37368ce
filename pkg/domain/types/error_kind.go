package types

// ErrorKind classifies a failure recorded on a decision
type ErrorKind string

const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindAuthentication     ErrorKind = "authentication"
	ErrorKindClassification     ErrorKind = "classification"
	ErrorKindConflict           ErrorKind = "conflict"
	ErrorKindRateLimit          ErrorKind = "rate-limit"
	ErrorKindChannelUnavailable ErrorKind = "channel-unavailable"
	ErrorKindCredential         ErrorKind = "credential"
	ErrorKindCapability         ErrorKind = "capability"
	ErrorKindTransient          ErrorKind = "transient"
	ErrorKindPermanent          ErrorKind = "permanent"
)

// IsRetryable reports whether a failure of this kind is eligible for automatic retry
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorKindClassification, ErrorKindTransient:
		return true
	default:
		return false
	}
}
