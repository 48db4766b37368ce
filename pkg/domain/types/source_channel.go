package types

import "fmt"

// SourceChannel identifies the channel a task originated from
type SourceChannel string

const (
	SourceWebhook  SourceChannel = "webhook"
	SourceEmail    SourceChannel = "email"
	SourceSMS      SourceChannel = "sms"
	SourceAPI      SourceChannel = "api"
	SourceChat     SourceChannel = "chat"
	SourceSchedule SourceChannel = "schedule"
)

// AllSourceChannels returns all valid source channels
func AllSourceChannels() []SourceChannel {
	return []SourceChannel{
		SourceWebhook,
		SourceEmail,
		SourceSMS,
		SourceAPI,
		SourceChat,
		SourceSchedule,
	}
}

// IsValid checks if the source channel is valid
func (s SourceChannel) IsValid() bool {
	switch s {
	case SourceWebhook, SourceEmail, SourceSMS, SourceAPI, SourceChat, SourceSchedule:
		return true
	default:
		return false
	}
}

// String returns the string representation of the source channel
func (s SourceChannel) String() string {
	return string(s)
}

// ParseSourceChannel parses a string into a SourceChannel
func ParseSourceChannel(s string) (SourceChannel, error) {
	ch := SourceChannel(s)
	if !ch.IsValid() {
		return "", fmt.Errorf("invalid source channel: %s", s)
	}
	return ch, nil
}
