package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything an aggregate or service reports as
// having happened.
type Event interface {
	EventID() uuid.UUID
	OccurredAt() time.Time
	EventName() string
}

// EventMeta carries the identity and timestamp shared by all events.
type EventMeta struct {
	ID uuid.UUID `json:"event_id"`
	At time.Time `json:"occurred_at"`
}

func NewEventMeta() EventMeta {
	return EventMeta{
		ID: uuid.New(),
		At: time.Now().UTC(),
	}
}

func (m EventMeta) EventID() uuid.UUID {
	return m.ID
}

func (m EventMeta) OccurredAt() time.Time {
	return m.At
}
