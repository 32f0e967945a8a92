package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row or a delivered message.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	validate *validator.Validate
}

// NonRetryableError signals the caller should stop retrying the event.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic name.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if strings.TrimSpace(cfg.CartEventsTopic) == "" {
		return nil, fmt.Errorf("cart events topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		validate: newValidator(),
	}
	topic := cfg.CartEventsTopic

	factories := map[enums.OutboxEventType]func() any{
		enums.EventCartCreated:             func() any { return &payloads.CartCreatedEvent{} },
		enums.EventMemberJoined:            func() any { return &payloads.MemberJoinedEvent{} },
		enums.EventItemAdded:               func() any { return &payloads.ItemAddedEvent{} },
		enums.EventItemRemoved:             func() any { return &payloads.ItemRemovedEvent{} },
		enums.EventItemQuantityUpdated:     func() any { return &payloads.ItemQuantityUpdatedEvent{} },
		enums.EventCouponApplied:           func() any { return &payloads.CouponAppliedEvent{} },
		enums.EventCouponRemoved:           func() any { return &payloads.CouponRemovedEvent{} },
		enums.EventTipApplied:              func() any { return &payloads.TipAppliedEvent{} },
		enums.EventCartLocked:              func() any { return &payloads.CartLockedEvent{} },
		enums.EventPricingFinalized:        func() any { return &payloads.PricingFinalizedEvent{} },
		enums.EventQuoteUpdated:            func() any { return &payloads.QuoteUpdatedEvent{} },
		enums.EventOnlinePaymentSucceeded:  func() any { return &payloads.OnlinePaymentSucceededEvent{} },
		enums.EventOnlinePaymentFailed:     func() any { return &payloads.OnlinePaymentFailedEvent{} },
		enums.EventCashOnDeliveryCommitted: func() any { return &payloads.CashOnDeliveryCommittedEvent{} },
		enums.EventReadyForConfirmation:    func() any { return &payloads.ReadyForConfirmationEvent{} },
		enums.EventCartConverted:           func() any { return &payloads.CartConvertedEvent{} },
		enums.EventCartExpired:             func() any { return &payloads.CartExpiredEvent{} },
	}
	for _, eventType := range enums.OutboxEventTypes() {
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateCart,
			Topic:          topic,
			PayloadFactory: factories[eventType],
		})
	}
	return reg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Descriptor returns the descriptor for an event type.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates an outbox row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	return r.Decode(event.EventType, event.Payload)
}

// Decode parses a raw envelope for eventType, then decodes and validates the payload.
// Every failure is non-retryable: redelivering the same bytes cannot succeed.
func (r *EventRegistry) Decode(eventType enums.OutboxEventType, raw []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", eventType))
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("envelope event id %q: %w", envelope.EventID, err))
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", eventType))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	if err := r.validate.Struct(payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("invalid %s payload: %w", eventType, err))
	}
	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
