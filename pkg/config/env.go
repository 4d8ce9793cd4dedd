package config

const (
	EnvPrefix = "EPIGUARD"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv                 = "EPIGUARD_APP_ENV"
	EnvPort                   = "EPIGUARD_APP_PORT"
	EnvDBDSN                  = "EPIGUARD_DB_DSN"
	EnvDBHost                 = "EPIGUARD_DB_HOST"
	EnvDBUser                 = "EPIGUARD_DB_USER"
	EnvDBName                 = "EPIGUARD_DB_NAME"
	EnvRedisURL               = "EPIGUARD_REDIS_URL"
	EnvJWTSecret              = "EPIGUARD_JWT_SECRET"
	EnvJWTIssuer              = "EPIGUARD_JWT_ISSUER"
	EnvJWTExpMins             = "EPIGUARD_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "EPIGUARD_REFRESH_TOKEN_TTL_MINUTES"
	EnvUseSQLite              = "EPIGUARD_USE_SQLITE"
	EnvLowStockThreshold      = "EPIGUARD_LOW_STOCK_THRESHOLD"
	EnvTxMaxAttempts          = "EPIGUARD_TX_MAX_ATTEMPTS"
	EnvReferenceTimezone      = "EPIGUARD_REFERENCE_TIMEZONE"
	EnvWebhookURL             = "EPIGUARD_WEBHOOK_URL"
	EnvCORSOrigins            = "EPIGUARD_CORS_ORIGINS"

	defaultSQLiteDSN = "file:epiguard.db?_busy_timeout=5000&_foreign_keys=on"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
