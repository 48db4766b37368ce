package slack

import (
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// MaxTextBytes is the Block Kit limit for a section text object
const MaxTextBytes = 3000

// typeLabels decorate the context block of each message type
var typeLabels = map[types.MessageType]string{
	types.MessageSchedulingUpdate: ":calendar: Scheduling update",
	types.MessageConfirmation:     ":white_check_mark: Confirmation",
	types.MessageClarification:    ":question: Clarification needed",
	types.MessageCancellation:     ":x: Cancelled",
	types.MessageError:            ":warning: Error",
	types.MessageInfo:             ":information_source: Info",
}

// TypeLabel returns the human label shown for a message type
func TypeLabel(t types.MessageType) string {
	if label, ok := typeLabels[t]; ok {
		return label
	}
	return typeLabels[types.MessageInfo]
}
