package types

import "fmt"

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending       TaskStatus = "PENDING"
	TaskStatusProcessing    TaskStatus = "PROCESSING"
	TaskStatusAwaitingInput TaskStatus = "AWAITING_INPUT"
	TaskStatusScheduled     TaskStatus = "SCHEDULED"
	TaskStatusCompleted     TaskStatus = "COMPLETED"
	TaskStatusFailed        TaskStatus = "FAILED"
	TaskStatusCancelled     TaskStatus = "CANCELLED"
)

// AllTaskStatuses returns all valid task statuses
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusProcessing,
		TaskStatusAwaitingInput,
		TaskStatusScheduled,
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusCancelled,
	}
}

// IsValid checks if the task status is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending,
		TaskStatusProcessing,
		TaskStatusAwaitingInput,
		TaskStatusScheduled,
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may leave this status
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsCancellable reports whether an external cancel signal takes effect immediately
func (s TaskStatus) IsCancellable() bool {
	switch s {
	case TaskStatusPending, TaskStatusAwaitingInput, TaskStatusScheduled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the task status
func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus parses a string into a TaskStatus
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid task status: %s", s)
	}
	return status, nil
}
