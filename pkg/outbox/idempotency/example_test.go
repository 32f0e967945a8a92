package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type exampleConsumer struct {
	name   string
	ledger Ledger
}

func (c *exampleConsumer) handle(ctx context.Context, eventID uuid.UUID) string {
	if done, _ := c.ledger.HasProcessed(ctx, eventID, c.name); done {
		return "already processed"
	}
	if err := c.ledger.MarkProcessed(ctx, eventID, c.name); errors.Is(err, ErrAlreadyProcessed) {
		return "already processed"
	}
	return "processing event"
}

func ExampleRedisLedger_MarkProcessed() {
	ctx := context.Background()
	ledger, _ := NewRedisLedger(newFakeStore(), 0)
	consumer := &exampleConsumer{name: "cart_view_item_added", ledger: ledger}
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	fmt.Println(consumer.handle(ctx, eventID))
	fmt.Println(consumer.handle(ctx, eventID))
	// Output:
	// processing event
	// already processed
}
