package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery lifecycle state of an outbox record.
type OutboxStatus string

const (
	OutboxStatusNew       OutboxStatus = "NEW"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// ParseOutboxStatus validates and converts a raw status.
func ParseOutboxStatus(raw string) (OutboxStatus, error) {
	status := OutboxStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrOutboxStatusInvalid, raw)
	}
	return status, nil
}

// IsValid reports whether the status is part of the lifecycle.
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusNew, OutboxStatusProcessed, OutboxStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for PROCESSED and FAILED.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusProcessed || s == OutboxStatusFailed
}

// CanTransitionTo allows only NEW->PROCESSED and NEW->FAILED.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	return s == OutboxStatusNew && next.IsTerminal()
}

// OutboxRecord is a pending domain event awaiting delivery.
// Payload is immutable once the record exists.
type OutboxRecord struct {
	ID        uuid.UUID         `json:"id"`
	EventType EventType         `json:"event_type"`
	Payload   NotificationEvent `json:"payload"`
	Status    OutboxStatus      `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewOutboxRecord builds a NEW record for the given flow and outcome.
func NewOutboxRecord(eventType EventType, username string, status EventStatus, message string) (*OutboxRecord, error) {
	source, err := eventType.Source()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &OutboxRecord{
		ID:        uuid.New(),
		EventType: eventType,
		Payload: NotificationEvent{
			Username:  username,
			EventType: eventType,
			Status:    status,
			Message:   message,
			Timestamp: now,
			Source:    source,
		},
		Status:    OutboxStatusNew,
		CreatedAt: now,
	}, nil
}

// Transition moves the record to next, enforcing the lifecycle.
func (r *OutboxRecord) Transition(next OutboxStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrOutboxTransitionInvalid, r.Status, next)
	}
	r.Status = next
	return nil
}

// OutboxStats counts records per status.
type OutboxStats struct {
	New       int64 `json:"new"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}
