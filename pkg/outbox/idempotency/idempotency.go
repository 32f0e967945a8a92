package idempotency

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyProcessed is returned by MarkProcessed when the (event, handler)
// pair was recorded by someone else first.
var ErrAlreadyProcessed = errors.New("event already processed by handler")

// Ledger is the durable set of (event id, handler name) pairs that completed.
// An entry is written only after the handler's side effects succeeded.
type Ledger interface {
	HasProcessed(ctx context.Context, eventID uuid.UUID, handler string) (bool, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, handler string) error
}

func validateKey(eventID uuid.UUID, handler string) error {
	if handler == "" {
		return errors.New("handler name is required")
	}
	if eventID == uuid.Nil {
		return errors.New("event id is required")
	}
	return nil
}
