package projection

import (
	"context"
	"errors"

	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/idempotency"
)

// HandlerFunc applies one event's side effects.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handler is a HandlerFunc guarded by the dedup ledger.
type Handler func(ctx context.Context, evt Event) (Outcome, error)

// Idempotent runs fn at most once per (event id, name) to completion. The
// ledger entry is written only after fn succeeds (a tolerated no-op counts as
// success), so a failed attempt leaves the event eligible for redelivery.
func Idempotent(name string, ledger idempotency.Ledger, fn HandlerFunc) Handler {
	return func(ctx context.Context, evt Event) (Outcome, error) {
		done, err := ledger.HasProcessed(ctx, evt.ID, name)
		if err != nil {
			return OutcomeRetryable, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check dedup ledger")
		}
		if done {
			return OutcomeSkipped, nil
		}

		err = fn(ctx, evt)
		outcome := classify(err)
		if outcome == OutcomeRetryable || outcome == OutcomeRejected {
			return outcome, err
		}

		if markErr := ledger.MarkProcessed(ctx, evt.ID, name); markErr != nil && !errors.Is(markErr, idempotency.ErrAlreadyProcessed) {
			return OutcomeRetryable, pkgerrors.Wrap(pkgerrors.CodeDependency, markErr, "record dedup ledger entry")
		}
		return outcome, err
	}
}
