package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/groupcart-backend/internal/cron"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/angelmondragon/groupcart-backend/pkg/migrate"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	serviceName   = "housekeeper"
	lockKeyFormat = "gc:housekeeper:lock:%s"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	registry, err := buildRegistry(cfg, logg, dbClient, jobMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to register housekeeping jobs", err)
		os.Exit(1)
	}

	// Hold the lock for at most one interval so a crashed replica cannot block the next cycle.
	lock, err := cron.NewRedisLock(redisClient, fmt.Sprintf(lockKeyFormat, envOrLocal(cfg.App.Env)), cfg.Housekeeping.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Housekeeping.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create housekeeping service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})
	logg.Info(ctx, "starting housekeeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "housekeeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "housekeeper shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, jobMetrics *metrics.JobMetrics) (*cron.Registry, error) {
	outboxJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-retention",
		Retention: cfg.Housekeeping.OutboxRetention,
		Purge:     outbox.NewRepository(dbClient.DB()).DeletePublishedBefore,
		Logger:    logg,
		Metrics:   jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	dlqJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:      "outbox-dlq-retention",
		Retention: cfg.Housekeeping.DLQRetention,
		Purge:     outbox.NewDLQRepository(dbClient.DB()).DeleteFailedBefore,
		Logger:    logg,
		Metrics:   jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{outboxJob, dlqJob}

	// Redis ledger entries are bounded by GROUPCART_LEDGER_TTL instead.
	if cfg.Eventing.LedgerBackend == config.LedgerBackendPostgres {
		ledgerJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
			Name:      "ledger-retention",
			Retention: cfg.Housekeeping.LedgerRetention,
			Purge:     idempotency.NewGormLedger(dbClient.DB()).PurgeBefore,
			Logger:    logg,
			Metrics:   jobMetrics,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, ledgerJob)
	}

	return cron.NewRegistry(jobs...)
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
