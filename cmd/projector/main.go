package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/groupcart-backend/api/controllers"
	"github.com/angelmondragon/groupcart-backend/api/routes"
	"github.com/angelmondragon/groupcart-backend/internal/aggregate"
	"github.com/angelmondragon/groupcart-backend/internal/cartview"
	"github.com/angelmondragon/groupcart-backend/internal/notify"
	"github.com/angelmondragon/groupcart-backend/internal/projection"
	"github.com/angelmondragon/groupcart-backend/pkg/config"
	"github.com/angelmondragon/groupcart-backend/pkg/db"
	"github.com/angelmondragon/groupcart-backend/pkg/logger"
	"github.com/angelmondragon/groupcart-backend/pkg/metrics"
	"github.com/angelmondragon/groupcart-backend/pkg/migrate"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/groupcart-backend/pkg/outbox/registry"
	"github.com/angelmondragon/groupcart-backend/pkg/pubsub"
	"github.com/angelmondragon/groupcart-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "projector"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))
	requireResource(ctx, logg, "db pool metrics", dbClient.RegisterMetrics(prometheus.DefaultRegisterer, serviceName))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RoleProjector, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.ProjectorSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "projector subscription", errors.New("subscription not configured"))
	}

	ledger, err := newLedger(cfg, dbClient, redisClient)
	requireResource(ctx, logg, "dedup ledger", err)

	store, err := cartview.NewRedisStore(redisClient, cartview.StoreOptions{
		TTL:          cfg.Projection.ViewTTL,
		TombstoneTTL: cfg.Projection.ViewTombstoneTTL,
		MaxRetries:   cfg.Projection.StoreMaxRetries,
	})
	requireResource(ctx, logg, "cart view store", err)

	reader := aggregate.NewRepository(dbClient.DB())

	realtime, err := notify.NewRedisRealtime(redisClient)
	requireResource(ctx, logg, "realtime notifier", err)

	pusher, err := newPusher(ctx, cfg, logg, dbClient, reader)
	requireResource(ctx, logg, "push notifier", err)

	projectionMetrics := metrics.NewProjectionMetrics(prometheus.DefaultRegisterer)

	handlers, err := projection.NewHandlers(projection.HandlersParams{
		Store:    store,
		Reader:   reader,
		Realtime: realtime,
		Pusher:   pusher,
		Metrics:  projectionMetrics,
		Logger:   logg,
	})
	requireResource(ctx, logg, "projection handlers", err)

	suggestions, err := projection.NewSuggestions(store, reader, realtime, logg)
	requireResource(ctx, logg, "coupon suggestions", err)

	dispatcher, err := projection.NewDispatcher(projection.DispatcherParams{
		Registry:          projection.NewRegistry(handlers, suggestions),
		Ledger:            ledger,
		Logger:            logg,
		Metrics:           projectionMetrics,
		BestEffortTimeout: cfg.Projection.SuggestionTimeout,
		BestEffortLimit:   cfg.Projection.SuggestionConcurrency,
	})
	requireResource(ctx, logg, "dispatcher", err)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	consumer, err := projection.NewConsumer(projection.ConsumerParams{
		Subscription:   subscription,
		Decoder:        eventRegistry,
		Dispatcher:     dispatcher,
		Logger:         logg,
		Workers:        cfg.Projection.Workers,
		MaxOutstanding: cfg.Projection.MaxOutstanding,
		HandlerTimeout: cfg.Projection.HandlerTimeout,
	})
	requireResource(ctx, logg, "projection consumer", err)

	router := routes.NewRouter(routes.RouterParams{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"db":     dbClient,
			"redis":  redisClient,
			"pubsub": pubsubClient,
		},
		Views: store,
	})

	service, err := NewService(ServiceParams{
		Logger:     logg,
		Consumer:   consumer,
		Dispatcher: dispatcher,
		Handler:    router,
		Addr:       net.JoinHostPort("", cfg.App.Port),
	})
	requireResource(ctx, logg, "projector service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"ledger":      cfg.Eventing.LedgerBackend,
		"pushEnabled": cfg.Push.Enabled,
	})
	logg.Info(runCtx, "projector ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "projector stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "projector shutting down gracefully")
}

func newLedger(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client) (idempotency.Ledger, error) {
	if cfg.Eventing.LedgerBackend == config.LedgerBackendRedis {
		return idempotency.NewRedisLedger(redisClient, cfg.Eventing.LedgerTTL)
	}
	return idempotency.NewGormLedger(dbClient.DB()), nil
}

func newPusher(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, reader aggregate.Reader) (notify.PushNotifier, error) {
	if !cfg.Push.Enabled {
		logg.Warn(ctx, "push notifications disabled")
		return notify.NoopPusher{}, nil
	}
	client, err := notify.NewMessagingClient(ctx, cfg.GCP, cfg.Push)
	if err != nil {
		return nil, err
	}
	return notify.NewFCMPusher(notify.FCMPusherParams{
		Sender:         client,
		Members:        reader,
		Tokens:         notify.NewTokenRepository(dbClient.DB()),
		Logger:         logg,
		DryRun:         cfg.Push.DryRun,
		AndroidChannel: cfg.Push.AndroidChannel,
	})
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
