package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EventSinkPubSub = "pubsub"
	EventSinkKafka  = "kafka"
	EventSinkLog    = "log"
)

const (
	EnvAppEnv     = "MARKETPLACE_APP_ENV"
	EnvPort       = "MARKETPLACE_APP_PORT"
	EnvLogLevel   = "MARKETPLACE_LOG_LEVEL"
	EnvPublicURL  = "MARKETPLACE_PUBLIC_URL"
	EnvServiceKnd = "MARKETPLACE_SERVICE_KIND"

	EnvDBDSN  = "MARKETPLACE_DB_DSN"
	EnvDBHost = "MARKETPLACE_DB_HOST"
	EnvDBPort = "MARKETPLACE_DB_PORT"
	EnvDBUser = "MARKETPLACE_DB_USER"
	EnvDBPass = "MARKETPLACE_DB_PASSWORD"
	EnvDBName = "MARKETPLACE_DB_NAME"

	EnvRedisURL  = "MARKETPLACE_REDIS_URL"
	EnvRedisAddr = "MARKETPLACE_REDIS_ADDR"

	EnvJWTSecret  = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer  = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins = "MARKETPLACE_JWT_EXPIRATION_MINUTES"

	EnvAutoMigrate = "MARKETPLACE_AUTO_MIGRATE"

	EnvCommissionDefaultRate = "MARKETPLACE_COMMISSION_DEFAULT_RATE"
	EnvVATRate               = "MARKETPLACE_TAX_VAT_RATE"
	EnvWithholdingRate       = "MARKETPLACE_TAX_WITHHOLDING_RATE"
	EnvMinimumPayout         = "MARKETPLACE_MINIMUM_PAYOUT"
	EnvOrderNumberPrefix     = "MARKETPLACE_ORDER_NUMBER_PREFIX"
	EnvAutoCompleteDays      = "MARKETPLACE_AUTO_COMPLETE_DAYS"
	EnvPendingOrderTTL       = "MARKETPLACE_PENDING_ORDER_TTL"

	EnvMidtransServerKey    = "MARKETPLACE_MIDTRANS_SERVER_KEY"
	EnvMidtransClientKey    = "MARKETPLACE_MIDTRANS_CLIENT_KEY"
	EnvMidtransIsProduction = "MARKETPLACE_MIDTRANS_IS_PRODUCTION"

	EnvShippingAPIKey   = "MARKETPLACE_SHIPPING_API_KEY"
	EnvShippingCouriers = "MARKETPLACE_SHIPPING_COURIERS"

	EnvEventsSink   = "MARKETPLACE_EVENTS_SINK"
	EnvGCPProjectID = "MARKETPLACE_GCP_PROJECT_ID"
	EnvKafkaBrokers = "MARKETPLACE_KAFKA_BROKERS"

	EnvCronInterval = "MARKETPLACE_CRON_INTERVAL"
)
