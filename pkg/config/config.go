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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Catalog      CatalogConfig
	RateLimit    RateLimitConfig
	Register     RegisterConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRegister parses only the sections the POS terminal needs, so a register
// can boot without database or broker settings.
func LoadRegister() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg.App); err != nil {
		return nil, fmt.Errorf("parsing app config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg.Register); err != nil {
		return nil, fmt.Errorf("parsing register config: %w", err)
	}
	cfg.Service.Kind = ServiceKindRegister
	return &cfg, nil
}

// LoadJWT parses only the signing settings, for tooling that mints tokens.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FESTPOS_APP_ENV" required:"true"`
	Port         string `envconfig:"FESTPOS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FESTPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FESTPOS_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FESTPOS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FESTPOS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FESTPOS_DB_DSN"`
	Driver string `envconfig:"FESTPOS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FESTPOS_DB_HOST"`
	Port     int    `envconfig:"FESTPOS_DB_PORT" default:"5432"`
	User     string `envconfig:"FESTPOS_DB_USER"`
	Password string `envconfig:"FESTPOS_DB_PASSWORD"`
	Name     string `envconfig:"FESTPOS_DB_NAME"`
	SSLMode  string `envconfig:"FESTPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FESTPOS_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"FESTPOS_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"FESTPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FESTPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FESTPOS_REDIS_URL"`
	Address      string        `envconfig:"FESTPOS_REDIS_ADDR"`
	Password     string        `envconfig:"FESTPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"FESTPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FESTPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FESTPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FESTPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FESTPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FESTPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"FESTPOS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FESTPOS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FESTPOS_JWT_EXPIRATION_MINUTES" default:"720"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FESTPOS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FESTPOS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SalesTopic string `envconfig:"FESTPOS_PUBSUB_SALES_TOPIC" default:"festpos-sales"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FESTPOS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FESTPOS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FESTPOS_OUTBOX_MAX_ATTEMPTS" default:"10"`

	MetricsAddr string `envconfig:"FESTPOS_OUTBOX_METRICS_ADDR"`
}

// CatalogConfig lists the product ids whose returns are projected onto the
// sales feed topic.
type CatalogConfig struct {
	TrackedProductIDs []string `envconfig:"FESTPOS_TRACKED_PRODUCT_IDS"`
}

// Tracks reports whether returns of productID are published to the feed.
func (c CatalogConfig) Tracks(productID string) bool {
	for _, id := range c.TrackedProductIDs {
		if strings.TrimSpace(id) == productID {
			return true
		}
	}
	return false
}

// RateLimitConfig throttles sale writes per user. Zero disables the limiter.
type RateLimitConfig struct {
	SalesPerWindow int           `envconfig:"FESTPOS_SALES_RATE_LIMIT" default:"120"`
	SalesWindow    time.Duration `envconfig:"FESTPOS_SALES_RATE_WINDOW" default:"1m"`
}

type RegisterConfig struct {
	APIBaseURL     string        `envconfig:"FESTPOS_REGISTER_API_URL" required:"true"`
	APIToken       string        `envconfig:"FESTPOS_REGISTER_API_TOKEN" required:"true"`
	LocalDBPath    string        `envconfig:"FESTPOS_REGISTER_LOCAL_DB" default:"festpos-register.db"`
	ListenAddr     string        `envconfig:"FESTPOS_REGISTER_LISTEN_ADDR" default:"127.0.0.1:8090"`
	SyncBatchSize  int           `envconfig:"FESTPOS_REGISTER_SYNC_BATCH_SIZE" default:"25"`
	SyncPollMS     int           `envconfig:"FESTPOS_REGISTER_SYNC_POLL_MS" default:"1000"`
	RequestTimeout time.Duration `envconfig:"FESTPOS_REGISTER_REQUEST_TIMEOUT" default:"10s"`
	ClearDelay     time.Duration `envconfig:"FESTPOS_REGISTER_CLEAR_DELAY" default:"3s"`
}

// SyncInterval returns the replay poll interval.
func (r RegisterConfig) SyncInterval() time.Duration {
	if r.SyncPollMS <= 0 {
		return time.Second
	}
	return time.Duration(r.SyncPollMS) * time.Millisecond
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
