package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groupcart-backend/pkg/errors"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/idempotency"
	"golang.org/x/sync/semaphore"
)

// Binding attaches a named handler to an event type. Best-effort bindings run
// detached, are never ledgered and never influence the dispatch outcome.
type Binding struct {
	Name       string
	Handle     HandlerFunc
	BestEffort bool
}

// Registry is the static event type to handler table resolved at startup.
type Registry map[enums.OutboxEventType][]Binding

type DispatcherParams struct {
	Registry          Registry
	Ledger            idempotency.Ledger
	Logger            *logger.Logger
	Metrics           *metrics.ProjectionMetrics
	BestEffortTimeout time.Duration
	BestEffortLimit   int64
}

type boundHandler struct {
	name   string
	handle Handler
	detach HandlerFunc
}

// Dispatcher routes decoded events to their registered handlers.
type Dispatcher struct {
	handlers          map[enums.OutboxEventType][]boundHandler
	logg              *logger.Logger
	metrics           *metrics.ProjectionMetrics
	sem               *semaphore.Weighted
	bestEffortTimeout time.Duration
	wg                sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("dedup ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BestEffortTimeout <= 0 {
		params.BestEffortTimeout = 3 * time.Second
	}
	if params.BestEffortLimit <= 0 {
		params.BestEffortLimit = 8
	}

	handlers := make(map[enums.OutboxEventType][]boundHandler, len(params.Registry))
	seen := make(map[string]struct{})
	for eventType, bindings := range params.Registry {
		if !eventType.IsValid() {
			return nil, fmt.Errorf("unknown event type %q in registry", eventType)
		}
		for _, b := range bindings {
			if b.Name == "" || b.Handle == nil {
				return nil, fmt.Errorf("incomplete binding for %s", eventType)
			}
			if _, dup := seen[b.Name]; dup {
				return nil, fmt.Errorf("duplicate handler name %q", b.Name)
			}
			seen[b.Name] = struct{}{}
			bh := boundHandler{name: b.Name}
			if b.BestEffort {
				bh.detach = b.Handle
			} else {
				bh.handle = Idempotent(b.Name, params.Ledger, b.Handle)
			}
			handlers[eventType] = append(handlers[eventType], bh)
		}
	}

	return &Dispatcher{
		handlers:          handlers,
		logg:              params.Logger,
		metrics:           params.Metrics,
		sem:               semaphore.NewWeighted(params.BestEffortLimit),
		bestEffortTimeout: params.BestEffortTimeout,
	}, nil
}

// Dispatch runs every handler bound to evt.Type in registration order and
// returns the most severe outcome. Handlers are independent: a failing one
// does not stop the rest, and on redelivery the ledger skips those that finished.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (Outcome, error) {
	ctx = d.logg.WithFields(ctx, map[string]any{
		"event_id":   evt.ID.String(),
		"event_type": string(evt.Type),
	})

	handlers, ok := d.handlers[evt.Type]
	if !ok {
		err := fmt.Errorf("no handlers registered for %s", evt.Type)
		d.logg.Error(ctx, "rejecting unknown event type", err)
		d.metrics.ObserveHandler("unregistered", OutcomeRejected.String(), 0)
		return OutcomeRejected, err
	}

	result := OutcomeSkipped
	var firstErr error
	for _, h := range handlers {
		if h.detach != nil {
			d.runDetached(ctx, h.name, h.detach, evt)
			continue
		}
		outcome, err := d.run(ctx, h, evt)
		result = worst(result, outcome)
		if err != nil && !isNoop(err) && firstErr == nil {
			firstErr = err
		}
	}
	if result.ShouldAck() && result != OutcomeRejected {
		return result, nil
	}
	return result, firstErr
}

func (d *Dispatcher) run(ctx context.Context, h boundHandler, evt Event) (Outcome, error) {
	ctx = d.logg.WithHandler(ctx, h.name)
	start := time.Now()
	outcome, err := h.handle(ctx, evt)
	d.metrics.ObserveHandler(h.name, outcome.String(), time.Since(start))

	switch {
	case outcome == OutcomeRetryable:
		d.logg.Error(ctx, "projection handler failed; event will be redelivered", err)
	case outcome == OutcomeRejected:
		d.logg.Error(ctx, "projection handler rejected event", err)
	case pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound:
		d.logg.Warn(d.logg.WithField(ctx, "reason", err.Error()), "cart entity missing; event skipped")
	case isNoop(err):
		d.logg.Debug(d.logg.WithField(ctx, "reason", err.Error()), "stale event skipped")
	case outcome == OutcomeSkipped:
		d.logg.Debug(ctx, "event already processed by handler")
	}
	return outcome, err
}

// runDetached starts a best-effort handler bounded by the semaphore. When the
// limit is reached the task is dropped.
func (d *Dispatcher) runDetached(ctx context.Context, name string, fn HandlerFunc, evt Event) {
	ctx = d.logg.WithHandler(ctx, name)
	if !d.sem.TryAcquire(1) {
		d.logg.Warn(ctx, "best-effort handler dropped: concurrency limit reached")
		d.metrics.ObserveHandler(name, "dropped", 0)
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logg.Error(ctx, "best-effort handler panicked", fmt.Errorf("panic: %v", r))
			}
		}()

		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.bestEffortTimeout)
		defer cancel()

		start := time.Now()
		err := fn(taskCtx, evt)
		outcome := OutcomeApplied.String()
		if err != nil && !isNoop(err) {
			outcome = "failed"
			d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "best-effort handler failed")
		}
		d.metrics.ObserveHandler(name, outcome, time.Since(start))
	}()
}

// Wait blocks until detached best-effort handlers finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EventTypes lists the event types with at least one binding.
func (d *Dispatcher) EventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(d.handlers))
	for _, eventType := range enums.OutboxEventTypes() {
		if _, ok := d.handlers[eventType]; ok {
			types = append(types, eventType)
		}
	}
	return types
}
