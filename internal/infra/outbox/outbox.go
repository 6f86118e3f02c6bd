package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventDocument is one pending domain event awaiting publication.
type EventDocument struct {
	ID         string
	Name       string
	Aggregate  string
	Payload    json.RawMessage
	Headers    map[string]string
	OccurredAt time.Time
	Attempts   int
}

// Store persists pending events. Claim hands out at most one event per
// call and bumps its attempt counter; MarkFailed schedules a retry.
type Store interface {
	Enqueue(ctx context.Context, doc *EventDocument) error
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error
}

// Sink adapts a Store to the session manager's event interface.
type Sink struct {
	Store Store
}

// Enqueue serializes the payload and stores it for the worker to publish.
func (s Sink) Enqueue(ctx context.Context, name, aggregateID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Store.Enqueue(ctx, &EventDocument{
		ID:         uuid.NewString(),
		Name:       name,
		Aggregate:  aggregateID,
		Payload:    data,
		OccurredAt: time.Now().UTC(),
	})
}
