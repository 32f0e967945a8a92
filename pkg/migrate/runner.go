package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/pressly/goose/v3"
)

// Runner applies migrations through a goose provider. It never closes the
// *sql.DB it was given.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if fsys == nil {
		fsys = FS()
	}
	if logg == nil {
		logg = logger.Nop()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration only.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	if result != nil {
		r.logResults(ctx, []*goose.MigrationResult{result})
	}
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is current.
func (r *Runner) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != 14 {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch direction(current, version) {
	case 0:
		return nil
	case 1:
		results, err = r.provider.UpTo(ctx, version)
	default:
		results, err = r.provider.DownTo(ctx, version)
	}
	r.logResults(ctx, results)
	if err != nil {
		return fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return nil
}

// Status logs one line per known migration and returns how many are pending.
func (r *Runner) Status(ctx context.Context) (int, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose status: %w", err)
	}
	pending := 0
	for _, st := range statuses {
		fields := map[string]any{"version": st.Source.Version, "state": string(st.State)}
		if st.State == goose.StateApplied {
			fields["applied_at"] = st.AppliedAt
		} else {
			pending++
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration.status")
	}
	return pending, nil
}

func (r *Runner) logResults(ctx context.Context, results []*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		lctx := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(lctx, "migration.failed", res.Error)
			continue
		}
		r.logg.Info(lctx, "migration.applied")
	}
}

// direction is 1 to migrate up, -1 to migrate down, 0 when already there.
func direction(current, target int64) int {
	switch {
	case current < target:
		return 1
	case current > target:
		return -1
	}
	return 0
}
