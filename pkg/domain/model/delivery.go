package model

import (
	"time"

	"github.com/secmon-lab/taskpilot/pkg/domain/types"
)

// Delivery is the result of one notification dispatch
type Delivery struct {
	Channel   types.NotificationChannel
	Recipient string
	Status    types.DeliveryStatus
	Attempts  int
	Error     string
	SentAt    time.Time
}

// OK reports whether the message was delivered
func (d Delivery) OK() bool {
	return d.Status == types.DeliveryDelivered
}
