package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
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
	Marketplace  MarketplaceConfig
	Midtrans     MidtransConfig
	Shipping     ShippingConfig
	Events       EventsConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`
	PublicURL    string   `envconfig:"MARKETPLACE_PUBLIC_URL" default:"http://localhost:8080"`
	CORSOrigins  []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	// Host and friends assemble a DSN when MARKETPLACE_DB_DSN is unset.
	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"250ms"`
	TxRetries       int           `envconfig:"MARKETPLACE_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"MARKETPLACE_REDIS_KEY_PREFIX" default:"mv"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"MARKETPLACE_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

// MarketplaceConfig carries the business parameters injected into the calculators
// and engines.
type MarketplaceConfig struct {
	CommissionDefaultRate Decimal       `envconfig:"MARKETPLACE_COMMISSION_DEFAULT_RATE" default:"0.10"`
	VATRate               Decimal       `envconfig:"MARKETPLACE_TAX_VAT_RATE" default:"0.11"`
	WithholdingRate       Decimal       `envconfig:"MARKETPLACE_TAX_WITHHOLDING_RATE" default:"0.025"`
	MinimumPayout         Decimal       `envconfig:"MARKETPLACE_MINIMUM_PAYOUT" default:"100000"`
	OrderNumberPrefix     string        `envconfig:"MARKETPLACE_ORDER_NUMBER_PREFIX" default:"MV"`
	OrderNumberAttempts   int           `envconfig:"MARKETPLACE_ORDER_NUMBER_ATTEMPTS" default:"5"`
	PayoutNumberPrefix    string        `envconfig:"MARKETPLACE_PAYOUT_NUMBER_PREFIX" default:"PO"`
	AutoCompleteDays      int           `envconfig:"MARKETPLACE_AUTO_COMPLETE_DAYS" default:"7"`
	PendingOrderTTL       time.Duration `envconfig:"MARKETPLACE_PENDING_ORDER_TTL" default:"24h"`
	CartTTLUser           time.Duration `envconfig:"MARKETPLACE_CART_TTL_USER" default:"720h"`
	CartTTLGuest          time.Duration `envconfig:"MARKETPLACE_CART_TTL_GUEST" default:"168h"`
}

// AutoCompleteAfter returns the shipped-order age after which orders complete automatically.
func (m MarketplaceConfig) AutoCompleteAfter() time.Duration {
	if m.AutoCompleteDays <= 0 {
		return 0
	}
	return time.Duration(m.AutoCompleteDays) * 24 * time.Hour
}

func (m MarketplaceConfig) validate() error {
	for name, rate := range map[string]Decimal{
		EnvCommissionDefaultRate: m.CommissionDefaultRate,
		EnvVATRate:               m.VATRate,
		EnvWithholdingRate:       m.WithholdingRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be within [0, 1)", name)
		}
	}
	if m.MinimumPayout.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvMinimumPayout)
	}
	if strings.TrimSpace(m.OrderNumberPrefix) == "" {
		return fmt.Errorf("%s is required", EnvOrderNumberPrefix)
	}
	return nil
}

type MidtransConfig struct {
	ServerKey    string        `envconfig:"MARKETPLACE_MIDTRANS_SERVER_KEY"`
	ClientKey    string        `envconfig:"MARKETPLACE_MIDTRANS_CLIENT_KEY"`
	IsProduction bool          `envconfig:"MARKETPLACE_MIDTRANS_IS_PRODUCTION" default:"false"`
	Timeout      time.Duration `envconfig:"MARKETPLACE_MIDTRANS_TIMEOUT" default:"15s"`
	FinishPath   string        `envconfig:"MARKETPLACE_MIDTRANS_FINISH_PATH" default:"/payment/finish"`
	DedupeTTL    time.Duration `envconfig:"MARKETPLACE_MIDTRANS_DEDUPE_TTL" default:"72h"`
}

type ShippingConfig struct {
	APIKey   string        `envconfig:"MARKETPLACE_SHIPPING_API_KEY"`
	BaseURL  string        `envconfig:"MARKETPLACE_SHIPPING_BASE_URL" default:"https://pro.rajaongkir.com/api"`
	Couriers []string      `envconfig:"MARKETPLACE_SHIPPING_COURIERS" default:"jne,tiki,pos"`
	CacheTTL time.Duration `envconfig:"MARKETPLACE_SHIPPING_CACHE_TTL" default:"24h"`
	Timeout  time.Duration `envconfig:"MARKETPLACE_SHIPPING_TIMEOUT" default:"10s"`
}

type EventsConfig struct {
	Sink         string   `envconfig:"MARKETPLACE_EVENTS_SINK" default:"pubsub"`
	GCPProjectID string   `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	PubSubTopic  string   `envconfig:"MARKETPLACE_PUBSUB_TOPIC" default:"marketplace-events"`
	KafkaBrokers []string `envconfig:"MARKETPLACE_KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"MARKETPLACE_KAFKA_TOPIC" default:"marketplace-events"`
}

// SinkKind returns the normalized event sink name.
func (e EventsConfig) SinkKind() string {
	sink := strings.TrimSpace(strings.ToLower(e.Sink))
	if sink == "" {
		return EventSinkPubSub
	}
	return sink
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETPLACE_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"MARKETPLACE_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

// RateLimitConfig caps money-moving requests per caller. A zero limit
// disables the policy.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutLimit   int           `envconfig:"MARKETPLACE_RATE_LIMIT_CHECKOUT" default:"10"`
	PaymentLimit    int           `envconfig:"MARKETPLACE_RATE_LIMIT_PAYMENT_SESSION" default:"20"`
	NotificationIPs int           `envconfig:"MARKETPLACE_RATE_LIMIT_WEBHOOK_PER_IP" default:"300"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"2h"`
	JobTimeout      time.Duration `envconfig:"MARKETPLACE_CRON_JOB_TIMEOUT" default:"30m"`
	PayoutEvery     time.Duration `envconfig:"MARKETPLACE_CRON_PAYOUT_EVERY" default:"24h"`
	CartExpiryEvery time.Duration `envconfig:"MARKETPLACE_CRON_CART_EXPIRY_EVERY" default:"6h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s is unset and so are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
