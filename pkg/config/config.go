package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Eventing     EventingConfig
	Projection   ProjectionConfig
	Push         PushConfig
	Outbox       OutboxConfig
	Housekeeping HousekeepingConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Housekeeping.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GROUPCART_APP_ENV" required:"true"`
	Port         string `envconfig:"GROUPCART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GROUPCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GROUPCART_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"GROUPCART_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"GROUPCART_DB_DSN"`

	LegacyHost     string `envconfig:"GROUPCART_DB_HOST"`
	LegacyPort     int    `envconfig:"GROUPCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GROUPCART_DB_USER"`
	LegacyPassword string `envconfig:"GROUPCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"GROUPCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"GROUPCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GROUPCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GROUPCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GROUPCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GROUPCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GROUPCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GROUPCART_REDIS_ADDR"`
	Password     string        `envconfig:"GROUPCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROUPCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROUPCART_REDIS_POOL_SIZE" default:"20"`
	MinIdleConns int           `envconfig:"GROUPCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROUPCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROUPCART_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"GROUPCART_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GROUPCART_GCP_PROJECT_ID" required:"true"`
	CredentialsFile string `envconfig:"GROUPCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CartEventsTopic       string `envconfig:"GROUPCART_PUBSUB_CART_EVENTS_TOPIC" required:"true"`
	ProjectorSubscription string `envconfig:"GROUPCART_PUBSUB_PROJECTOR_SUBSCRIPTION" required:"true"`
}

// EventingConfig selects where the deduplication ledger lives.
type EventingConfig struct {
	LedgerBackend string        `envconfig:"GROUPCART_LEDGER_BACKEND" default:"postgres"`
	LedgerTTL     time.Duration `envconfig:"GROUPCART_LEDGER_TTL" default:"0s"`
}

func (e EventingConfig) validate() error {
	switch e.LedgerBackend {
	case LedgerBackendPostgres, LedgerBackendRedis:
		return nil
	default:
		return fmt.Errorf("unsupported ledger backend %q", e.LedgerBackend)
	}
}

type ProjectionConfig struct {
	Workers               int           `envconfig:"GROUPCART_PROJECTION_WORKERS" default:"4"`
	MaxOutstanding        int           `envconfig:"GROUPCART_PROJECTION_MAX_OUTSTANDING" default:"100"`
	HandlerTimeout        time.Duration `envconfig:"GROUPCART_PROJECTION_HANDLER_TIMEOUT" default:"30s"`
	SuggestionTimeout     time.Duration `envconfig:"GROUPCART_PROJECTION_SUGGESTION_TIMEOUT" default:"3s"`
	SuggestionConcurrency int64         `envconfig:"GROUPCART_PROJECTION_SUGGESTION_CONCURRENCY" default:"8"`
	// ViewTTL is a safety net for orphaned documents; 0 keeps views until the
	// cart converts or expires. Set it well above the cart expiry window.
	ViewTTL               time.Duration `envconfig:"GROUPCART_CART_VIEW_TTL" default:"0"`
	ViewTombstoneTTL      time.Duration `envconfig:"GROUPCART_CART_VIEW_TOMBSTONE_TTL" default:"168h"`
	StoreMaxRetries       int           `envconfig:"GROUPCART_CART_VIEW_MAX_RETRIES" default:"10"`
}

type PushConfig struct {
	Enabled         bool   `envconfig:"GROUPCART_PUSH_ENABLED" default:"true"`
	DryRun          bool   `envconfig:"GROUPCART_PUSH_DRY_RUN" default:"false"`
	CredentialsFile string `envconfig:"GROUPCART_FCM_CREDENTIALS_FILE"`
	AndroidChannel  string `envconfig:"GROUPCART_PUSH_ANDROID_CHANNEL" default:"group_cart"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GROUPCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GROUPCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GROUPCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// HousekeepingConfig drives the retention jobs. LedgerRetention must outlive
// the Pub/Sub redelivery window or old events could be applied twice.
type HousekeepingConfig struct {
	Interval        time.Duration `envconfig:"GROUPCART_HOUSEKEEPING_INTERVAL" default:"1h"`
	OutboxRetention time.Duration `envconfig:"GROUPCART_OUTBOX_RETENTION" default:"720h"`
	LedgerRetention time.Duration `envconfig:"GROUPCART_LEDGER_RETENTION" default:"192h"`
	DLQRetention    time.Duration `envconfig:"GROUPCART_DLQ_RETENTION" default:"2160h"`
}

func (h HousekeepingConfig) validate() error {
	if h.LedgerRetention > 0 && h.LedgerRetention < minLedgerRetention {
		return fmt.Errorf("ledger retention %s is shorter than the %s redelivery window", h.LedgerRetention, minLedgerRetention)
	}
	return nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GROUPCART_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
