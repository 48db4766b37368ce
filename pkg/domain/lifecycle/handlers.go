package lifecycle

import (
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// typeHandler describes how a task type behaves in the state machine
type typeHandler struct {
	requiredEntities []string
	producesEvent    bool
	onExecuted       func(t *model.Task, d *model.Decision) (types.TaskStatus, string)
}

func completeOnExecute(reason string) func(*model.Task, *model.Decision) (types.TaskStatus, string) {
	return func(*model.Task, *model.Decision) (types.TaskStatus, string) {
		return types.TaskStatusCompleted, reason
	}
}

func scheduleOnExecute(t *model.Task, d *model.Decision) (types.TaskStatus, string) {
	if d.Outcome.EventRef != "" {
		return types.TaskStatusScheduled, "event scheduled"
	}
	return types.TaskStatusCompleted, "completed without scheduling an event"
}

var handlers = map[types.TaskType]typeHandler{
	types.TaskTypeScheduleMeeting: {
		requiredEntities: []string{model.EntityRequestedTime},
		producesEvent:    true,
		onExecuted:       scheduleOnExecute,
	},
	types.TaskTypeReschedule: {
		requiredEntities: []string{model.EntityRequestedTime, model.EntityEventRef},
		producesEvent:    true,
		onExecuted:       scheduleOnExecute,
	},
	types.TaskTypeCancel: {
		requiredEntities: []string{model.EntityEventRef},
		onExecuted:       completeOnExecute("event cancelled"),
	},
	types.TaskTypeCheckAvailability: {
		onExecuted: completeOnExecute("availability reported"),
	},
	types.TaskTypeCreateGenericTask: {
		onExecuted: completeOnExecute("task created"),
	},
	types.TaskTypeUpdateGenericTask: {
		requiredEntities: []string{model.EntityWorkItemID},
		onExecuted:       completeOnExecute("task updated"),
	},
	types.TaskTypeInquiry: {
		onExecuted: completeOnExecute("inquiry answered"),
	},
	types.TaskTypeReminder: {
		requiredEntities: []string{model.EntityRequestedTime},
		onExecuted:       completeOnExecute("reminder dispatched"),
	},
	types.TaskTypeUnknown: {
		onExecuted: completeOnExecute("no automated action"),
	},
}

func handlerFor(tt types.TaskType) typeHandler {
	if h, ok := handlers[tt]; ok {
		return h
	}
	return handlers[types.TaskTypeUnknown]
}

// RequiredEntities returns the entities a task type needs before it can act
func RequiredEntities(tt types.TaskType) []string {
	return handlerFor(tt).requiredEntities
}

// ProducesEvent reports whether the task type results in a scheduled event
func ProducesEvent(tt types.TaskType) bool {
	return handlerFor(tt).producesEvent
}

// MissingEntities lists required entities absent from entities
func MissingEntities(tt types.TaskType, entities map[string]any) []string {
	probe := &model.Task{Entities: entities}
	var missing []string
	for _, key := range RequiredEntities(tt) {
		if !probe.HasEntity(key) {
			missing = append(missing, key)
		}
	}
	return missing
}
