package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// ErrIgnoredEvent is returned for inbound events that are valid but carry
	// no task, such as bot messages or message edits
	ErrIgnoredEvent = errors.New("event ignored")

	// ErrTaskSettled is returned when a task reached a terminal status while
	// it was being processed
	ErrTaskSettled = errors.New("task was settled concurrently")

	// ErrNotApprovable is returned when a decision is not waiting for approval
	ErrNotApprovable = errors.New("decision is not awaiting approval")
)

// ThreadRefKey is the context key for thread correlation values
const ThreadRefKey = "thread"
