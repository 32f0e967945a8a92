package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DomainEvent is what a producer hands to Emit inside its own transaction.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}
}

// Emit appends event to outbox_events through the producer's tx, so the row
// commits or rolls back with the state change it describes. The row id is
// also the envelope event id that consumers deduplicate on.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeInternal, "emit requires the producer transaction")
	}
	if err := normalize(&event); err != nil {
		return uuid.Nil, err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event data is not serializable")
	}
	eventID := uuid.New()
	envelope, err := json.Marshal(PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode envelope")
	}

	if err := s.repo.Insert(tx.WithContext(ctx), models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       envelope,
	}); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert outbox row")
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":   eventID.String(),
		"event_type": string(event.EventType),
		"cart_id":    event.AggregateID.String(),
	}), "outbox event queued")
	return eventID, nil
}

func normalize(event *DomainEvent) error {
	if !event.EventType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown event type "+string(event.EventType))
	}
	if event.AggregateType == "" {
		event.AggregateType = enums.AggregateCart
	}
	if !event.AggregateType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown aggregate type "+string(event.AggregateType))
	}
	// The aggregate id becomes the Pub/Sub ordering key.
	if event.AggregateID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "aggregate id is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	event.OccurredAt = event.OccurredAt.UTC()
	return nil
}
