package domain

import (
	"encoding/json"
	"fmt"
	"time"

	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Headers       json.RawMessage `db:"headers"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	Topic         string          `db:"topic"`
}

// Envelope is the wire shape of every message on the bus.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(event generalDomain.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("error marshalling %s payload: %w", event.EventName(), err)
	}

	return json.Marshal(Envelope{Event: event.EventName(), Payload: payload})
}

// FromDomainEvents turns the events returned by one aggregate operation into
// outbox rows in the order they were raised.
func FromDomainEvents(
	aggregateType string,
	aggregateID string,
	topic string,
	events []generalDomain.Event,
) ([]*OutboxEvent, error) {
	rows := make([]*OutboxEvent, 0, len(events))

	for _, event := range events {
		payload, err := NewEnvelope(event)
		if err != nil {
			return nil, err
		}

		rows = append(rows, &OutboxEvent{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			EventType:     event.EventName(),
			Payload:       payload,
			Topic:         topic,
		})
	}

	return rows, nil
}
