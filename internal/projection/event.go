package projection

import (
	"fmt"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

// Event is a decoded cart event handed to projection handlers.
type Event struct {
	ID         uuid.UUID
	Type       enums.OutboxEventType
	OccurredAt time.Time
	Actor      *outbox.ActorRef
	Payload    any
}

// EventFromResolved converts a registry decode result into an Event.
func EventFromResolved(resolved *registry.ResolvedEvent) (Event, error) {
	if resolved == nil {
		return Event{}, registry.NewNonRetryableError(fmt.Errorf("resolved event is nil"))
	}
	id, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		return Event{}, registry.NewNonRetryableError(fmt.Errorf("parse event id: %w", err))
	}
	return Event{
		ID:         id,
		Type:       resolved.Descriptor.EventType,
		OccurredAt: resolved.Envelope.OccurredAt,
		Actor:      resolved.Envelope.Actor,
		Payload:    resolved.Payload,
	}, nil
}

func payloadAs[T any](evt Event) (*T, error) {
	payload, ok := evt.Payload.(*T)
	if !ok || payload == nil {
		var zero T
		return nil, registry.NewNonRetryableError(fmt.Errorf("event %s: expected payload %T, got %T", evt.Type, &zero, evt.Payload))
	}
	return payload, nil
}
