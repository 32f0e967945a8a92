package projection

import (
	"errors"

	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
)

// Outcome is how the dispatcher disposed of an event. Only Retryable asks the
// transport for redelivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRetryable Outcome = "retryable"
	OutcomeRejected  Outcome = "rejected"
)

func (o Outcome) String() string {
	return string(o)
}

// ShouldAck reports whether the delivery can be acknowledged.
func (o Outcome) ShouldAck() bool {
	return o != OutcomeRetryable
}

// severity orders outcomes so the worst one wins when several handlers run.
func (o Outcome) severity() int {
	switch o {
	case OutcomeRetryable:
		return 3
	case OutcomeRejected:
		return 2
	case OutcomeApplied:
		return 1
	default:
		return 0
	}
}

func worst(a, b Outcome) Outcome {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// classify maps a handler error onto an outcome. Not-found and stale-version
// errors are successful no-ops; validation problems can never succeed on retry.
func classify(err error) Outcome {
	if err == nil {
		return OutcomeApplied
	}
	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return OutcomeRejected
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStaleVersion:
		return OutcomeSkipped
	case pkgerrors.CodeValidation, pkgerrors.CodeConflict:
		return OutcomeRejected
	}
	return OutcomeRetryable
}

// isNoop reports whether err is a tolerated no-op rather than a failure.
func isNoop(err error) bool {
	code := pkgerrors.CodeOf(err)
	return err != nil && (code == pkgerrors.CodeNotFound || code == pkgerrors.CodeStaleVersion)
}
