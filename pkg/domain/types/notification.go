package types

import "fmt"

// NotificationChannel is an outbound delivery channel
type NotificationChannel string

const (
	NotifyEmail   NotificationChannel = "email"
	NotifySMS     NotificationChannel = "sms"
	NotifyChat    NotificationChannel = "chat"
	NotifyWebhook NotificationChannel = "webhook"
)

// IsValid checks if the notification channel is valid
func (c NotificationChannel) IsValid() bool {
	switch c {
	case NotifyEmail, NotifySMS, NotifyChat, NotifyWebhook:
		return true
	default:
		return false
	}
}

// String returns the string representation of the notification channel
func (c NotificationChannel) String() string {
	return string(c)
}

// ParseNotificationChannel parses a string into a NotificationChannel
func ParseNotificationChannel(s string) (NotificationChannel, error) {
	c := NotificationChannel(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid notification channel: %s", s)
	}
	return c, nil
}

// MessageType tags a structured chat message and selects the built-in template
type MessageType string

const (
	MessageSchedulingUpdate MessageType = "scheduling-update"
	MessageConfirmation     MessageType = "confirmation"
	MessageClarification    MessageType = "clarification"
	MessageCancellation     MessageType = "cancellation"
	MessageError            MessageType = "error"
	MessageInfo             MessageType = "info"
)

// IsValid checks if the message type is valid
func (m MessageType) IsValid() bool {
	switch m {
	case MessageSchedulingUpdate,
		MessageConfirmation,
		MessageClarification,
		MessageCancellation,
		MessageError,
		MessageInfo:
		return true
	default:
		return false
	}
}

// String returns the string representation of the message type
func (m MessageType) String() string {
	return string(m)
}

// DeliveryStatus is the outcome of one notification send
type DeliveryStatus string

const (
	DeliveryDelivered          DeliveryStatus = "delivered"
	DeliveryFailed             DeliveryStatus = "failed"
	DeliveryChannelUnavailable DeliveryStatus = "channel-unavailable"
)
