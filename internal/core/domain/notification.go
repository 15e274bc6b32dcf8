package domain

import (
	"fmt"
	"time"
)

// EventType names the business flow an outbox event belongs to.
type EventType string

const (
	EventTypeTransfer EventType = "TRANSFER"
	EventTypeCash     EventType = "CASH"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeTransfer, EventTypeCash:
		return true
	default:
		return false
	}
}

// Source is the logical producer stamped on the notification.
func (t EventType) Source() (string, error) {
	switch t {
	case EventTypeTransfer:
		return "transfer-saga", nil
	case EventTypeCash:
		return "cash-saga", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, string(t))
	}
}

// EventStatus is the business outcome carried by a notification.
type EventStatus string

const (
	EventStatusSuccess             EventStatus = "SUCCESS"
	EventStatusFailure             EventStatus = "FAILURE"
	EventStatusCompensationFailure EventStatus = "COMPENSATION_FAILURE"
)

// NotificationEvent is the payload stored in the outbox and forwarded to the
// notification sink.
type NotificationEvent struct {
	Username  string      `json:"username"`
	EventType EventType   `json:"eventType"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}
