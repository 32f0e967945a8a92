package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. Defaults to Interval so no job outlives
	// a lock whose TTL is one interval.
	JobTimeout time.Duration
	// Concurrency is how many jobs may run at once. Defaults to 1.
	Concurrency int
}

// Service runs every registered job once per interval while holding the lock.
type Service struct {
	logg        *logger.Logger
	registry    *Registry
	lock        Lock
	metrics     *metrics.JobMetrics
	interval    time.Duration
	jobTimeout  time.Duration
	concurrency int
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.Registry == nil:
		return nil, errors.New("registry required")
	}
	s := &Service{
		logg:        params.Logger,
		registry:    params.Registry,
		lock:        params.Lock,
		metrics:     params.Metrics,
		interval:    params.Interval,
		jobTimeout:  params.JobTimeout,
		concurrency: params.Concurrency,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 || s.jobTimeout > s.interval {
		s.jobTimeout = s.interval
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
// Cycle failures are logged; only cancellation stops the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil && ctx.Err() == nil {
			s.logg.Error(ctx, "housekeeping cycle finished with failures", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "housekeeper stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle runs every job under the lock and returns the combined job errors.
// A failing job never prevents the others from running.
func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "housekeeping lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release housekeeping lock", relErr)
		}
	}()

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := s.runJob(ctx, job); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Append(errs, ctx.Err())
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(job.Name(), elapsed, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Warn(jobCtx, "housekeeping job failed")
		return err
	}
	s.logg.Debug(jobCtx, "housekeeping job completed")
	return nil
}
