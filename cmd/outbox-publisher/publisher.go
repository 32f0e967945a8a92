package main

import (
	"context"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/groupcart-backend/pkg/db/models"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	// Resume unpauses an ordering key after a failed publish.
	Resume(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisherSource interface {
	Publisher(topic string) publisher
}

// newMessage keys every message by cart so subscribers with ordering enabled
// see one cart's events in commit order.
func newMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey(event),
		Attributes: map[string]string{
			outbox.AttrEventID:     resolved.Envelope.EventID,
			outbox.AttrEventType:   string(event.EventType),
			outbox.AttrAggregateID: event.AggregateID.String(),
			"aggregate_type":       string(event.AggregateType),
			"created_at":           event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func orderingKey(event models.OutboxEvent) string {
	return event.AggregateID.String()
}

// classifyPublishError marks broker rejections that retrying cannot fix, such
// as an oversized message, as non-retryable.
func classifyPublishError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition:
		return registry.NewNonRetryableError(err)
	}
	return err
}

type topicPublisherFunc func(topic string) *gcppubsub.Publisher

// publisherCache hands out one ordered Pub/Sub publisher per topic for the
// life of the process.
type publisherCache struct {
	open topicPublisherFunc

	mu   sync.Mutex
	pubs map[string]*gcpPublisher
}

func newPublisherCache(open topicPublisherFunc) *publisherCache {
	return &publisherCache{open: open, pubs: make(map[string]*gcpPublisher)}
}

func (c *publisherCache) Publisher(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pubs[topic]; ok {
		return p
	}
	raw := c.open(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	p := &gcpPublisher{pub: raw}
	c.pubs[topic] = p
	return p
}

// Stop flushes and stops every publisher handed out so far.
func (c *publisherCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.pubs {
		p.pub.Stop()
		delete(c.pubs, topic)
	}
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}

func (p *gcpPublisher) Resume(orderingKey string) {
	p.pub.ResumePublish(orderingKey)
}
