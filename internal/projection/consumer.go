package projection

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
)

type eventDecoder interface {
	Decode(eventType enums.OutboxEventType, raw []byte) (*registry.ResolvedEvent, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, evt Event) (Outcome, error)
}

type ConsumerParams struct {
	Subscription   *pubsub.Subscriber
	Decoder        eventDecoder
	Dispatcher     dispatcher
	Logger         *logger.Logger
	Workers        int
	MaxOutstanding int
	HandlerTimeout time.Duration
}

// Consumer receives cart events from Pub/Sub and hands them to the dispatcher.
type Consumer struct {
	subscription   *pubsub.Subscriber
	decoder        eventDecoder
	dispatcher     dispatcher
	logg           *logger.Logger
	handlerTimeout time.Duration
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("projector subscription required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("event decoder required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Workers > 0 {
		params.Subscription.ReceiveSettings.NumGoroutines = params.Workers
	}
	if params.MaxOutstanding > 0 {
		params.Subscription.ReceiveSettings.MaxOutstandingMessages = params.MaxOutstanding
	}
	return &Consumer{
		subscription:   params.Subscription,
		decoder:        params.Decoder,
		dispatcher:     params.Dispatcher,
		logg:           params.Logger,
		handlerTimeout: params.HandlerTimeout,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack     bool
	nack    bool
	outcome Outcome
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes[outbox.AttrEventType])
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	}
	if id := msg.Attributes[outbox.AttrEventID]; id != "" {
		fields["event_id"] = id
	}
	if msg.DeliveryAttempt != nil {
		fields["delivery_attempt"] = *msg.DeliveryAttempt
	}
	logCtx := c.logg.WithFields(ctx, fields)

	resolved, err := c.decoder.Decode(eventType, msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "rejecting undecodable cart event", err)
		return processResult{ack: true, outcome: OutcomeRejected}
	}
	evt, err := EventFromResolved(resolved)
	if err != nil {
		c.logg.Error(logCtx, "rejecting cart event with invalid id", err)
		return processResult{ack: true, outcome: OutcomeRejected}
	}

	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		logCtx, cancel = context.WithTimeout(logCtx, c.handlerTimeout)
		defer cancel()
	}

	outcome, err := c.dispatcher.Dispatch(logCtx, evt)
	if !outcome.ShouldAck() {
		c.logg.Warn(c.logg.WithField(logCtx, "error_code", string(pkgerrors.CodeOf(err))), "cart event nacked for redelivery")
		return processResult{nack: true, outcome: outcome}
	}
	return processResult{ack: true, outcome: outcome}
}
