package config

import "time"

const (
	EnvPrefix = "GROUPCART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LedgerBackendPostgres = "postgres"
	LedgerBackendRedis    = "redis"

	// Pub/Sub keeps unacked messages for at most seven days.
	minLedgerRetention = 7 * 24 * time.Hour
)

const (
	EnvAppEnv              = "GROUPCART_APP_ENV"
	EnvPort                = "GROUPCART_APP_PORT"
	EnvDBDSN               = "GROUPCART_DB_DSN"
	EnvDBHost              = "GROUPCART_DB_HOST"
	EnvDBUser              = "GROUPCART_DB_USER"
	EnvDBName              = "GROUPCART_DB_NAME"
	EnvRedisURL            = "GROUPCART_REDIS_URL"
	EnvGCPProjectID        = "GROUPCART_GCP_PROJECT_ID"
	EnvPubSubCartTopic     = "GROUPCART_PUBSUB_CART_EVENTS_TOPIC"
	EnvPubSubProjectorSub  = "GROUPCART_PUBSUB_PROJECTOR_SUBSCRIPTION"
	EnvLedgerBackend       = "GROUPCART_LEDGER_BACKEND"
	EnvProjectionWorkers   = "GROUPCART_PROJECTION_WORKERS"
	EnvPushDryRun          = "GROUPCART_PUSH_DRY_RUN"
	EnvCartViewTTL         = "GROUPCART_CART_VIEW_TTL"
	EnvCartViewTombstone   = "GROUPCART_CART_VIEW_TOMBSTONE_TTL"
	EnvOutboxPublishBatch  = "GROUPCART_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxPublishPollMS = "GROUPCART_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxMaxAttempts   = "GROUPCART_OUTBOX_MAX_ATTEMPTS"
	EnvLedgerRetention     = "GROUPCART_LEDGER_RETENTION"
)

var legacyDBEnvVars = []string{
	EnvDBHost,
	EnvDBUser,
	EnvDBName,
}
