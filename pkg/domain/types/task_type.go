package types

import "fmt"

// TaskType is the classified intent of a task
type TaskType string

const (
	TaskTypeScheduleMeeting   TaskType = "schedule-meeting"
	TaskTypeReschedule        TaskType = "reschedule"
	TaskTypeCancel            TaskType = "cancel"
	TaskTypeCheckAvailability TaskType = "check-availability"
	TaskTypeCreateGenericTask TaskType = "create-generic-task"
	TaskTypeUpdateGenericTask TaskType = "update-generic-task"
	TaskTypeInquiry           TaskType = "inquiry"
	TaskTypeReminder          TaskType = "reminder"
	TaskTypeUnknown           TaskType = "unknown"
)

// AllTaskTypes returns all valid task types
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeScheduleMeeting,
		TaskTypeReschedule,
		TaskTypeCancel,
		TaskTypeCheckAvailability,
		TaskTypeCreateGenericTask,
		TaskTypeUpdateGenericTask,
		TaskTypeInquiry,
		TaskTypeReminder,
		TaskTypeUnknown,
	}
}

// IsValid checks if the task type is valid
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypeScheduleMeeting,
		TaskTypeReschedule,
		TaskTypeCancel,
		TaskTypeCheckAvailability,
		TaskTypeCreateGenericTask,
		TaskTypeUpdateGenericTask,
		TaskTypeInquiry,
		TaskTypeReminder,
		TaskTypeUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the task type
func (t TaskType) String() string {
	return string(t)
}

// ParseTaskType parses a string into a TaskType
func ParseTaskType(s string) (TaskType, error) {
	tt := TaskType(s)
	if !tt.IsValid() {
		return "", fmt.Errorf("invalid task type: %s", s)
	}
	return tt, nil
}
