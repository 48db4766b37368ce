package lifecycle

import "github.com/secmon-lab/taskpilot/pkg/domain/types"

func HasHandler(tt types.TaskType) bool {
	_, ok := handlers[tt]
	return ok
}
