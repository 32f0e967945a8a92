package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
)

// PurgeFunc deletes rows older than cutoff and returns how many it removed.
type PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Name      string
	Retention time.Duration
	Purge     PurgeFunc
	Logger    *logger.Logger
	Metrics   *metrics.JobMetrics
}

type retentionJob struct {
	name      string
	retention time.Duration
	purge     PurgeFunc
	logg      *logger.Logger
	metrics   *metrics.JobMetrics
	now       func() time.Time
}

// NewRetentionJob builds a job that deletes everything older than the
// retention window on each run.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("%s: retention must be positive", params.Name)
	}
	if params.Purge == nil {
		return nil, fmt.Errorf("%s: purge func required", params.Name)
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &retentionJob{
		name:      params.Name,
		retention: params.Retention,
		purge:     params.Purge,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.metrics.AddDeleted(j.name, deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
