package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

// inflight is one claimed row whose publish has been handed to Pub/Sub.
type inflight struct {
	event  models.OutboxEvent
	topic  string
	pub    publisher
	result publishResult
	fields map[string]any
}

// processBatch claims up to batchSize rows, publishes them all, then settles
// every row inside the claiming transaction. The bool reports whether any row
// was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	start := time.Now()
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		pending := make([]inflight, 0, len(events))
		for _, event := range events {
			item, err := s.send(publishCtx, event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, item.fields); err != nil {
					return err
				}
				continue
			}
			pending = append(pending, item)
		}

		for _, item := range pending {
			_, pubErr := item.result.Get(publishCtx)
			if err := s.settle(ctx, tx, item, classifyPublishError(pubErr)); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		s.metrics.ObserveBatch(time.Since(start))
	}
	return claimed > 0, err
}

// send resolves the row and hands it to the topic's publisher without
// waiting for the broker.
func (s *Service) send(ctx context.Context, event models.OutboxEvent) (inflight, error) {
	item := inflight{event: event, fields: eventFields(event)}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return item, err
	}
	item.topic = resolved.Descriptor.Topic
	item.fields["topic"] = item.topic
	item.fields["event_id"] = resolved.Envelope.EventID

	item.pub = s.publishers.Publisher(item.topic)
	if item.pub == nil {
		return item, registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", item.topic))
	}
	item.result = item.pub.Publish(ctx, newMessage(event, resolved))
	if item.result == nil {
		return item, registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", item.topic))
	}
	return item, nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, item inflight, pubErr error) error {
	event := item.event
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished()
		s.logg.Debug(s.logg.WithFields(ctx, item.fields), "outbox event published")
		return nil
	}

	// A failed publish pauses its ordering key; later rows for the same cart
	// cannot go out until it is resumed.
	item.pub.Resume(orderingKey(event))

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, item.fields)
	}

	attempt := event.AttemptCount + 1
	item.fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", pubErr), item.fields)
	}

	lctx := s.logg.WithField(s.logg.WithFields(ctx, item.fields), "error", pubErr.Error())
	s.logg.Warn(lctx, "outbox publish failed, will retry")
	s.metrics.IncFailed()
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	return nil
}

// deadLetter copies the row into outbox_dlq and retires it from the queue.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	if fields == nil {
		fields = eventFields(event)
	}
	fields["dlq_reason"] = reason.String()
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDLQ(reason.String())
	return nil
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"cart_id":       event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
