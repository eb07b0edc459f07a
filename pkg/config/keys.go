package config

// EnvPrefix is handed to envconfig. Every field carries its full variable
// name, so the prefix only matters for the generated fallback keys.
const EnvPrefix = "LICENSOR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv                 = "LICENSOR_APP_ENV"
	EnvPort                   = "LICENSOR_APP_PORT"
	EnvLogLevel               = "LICENSOR_LOG_LEVEL"
	EnvDBDSN                  = "LICENSOR_DB_DSN"
	EnvDBDriver               = "LICENSOR_DB_DRIVER"
	EnvDBHost                 = "LICENSOR_DB_HOST"
	EnvDBUser                 = "LICENSOR_DB_USER"
	EnvDBName                 = "LICENSOR_DB_NAME"
	EnvRedisURL               = "LICENSOR_REDIS_URL"
	EnvJWTSecret              = "LICENSOR_JWT_SECRET"
	EnvJWTIssuer              = "LICENSOR_JWT_ISSUER"
	EnvJWTExpMins             = "LICENSOR_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "LICENSOR_REFRESH_TOKEN_TTL_MINUTES"
	EnvLoginMaxAttempts       = "LICENSOR_LOGIN_MAX_ATTEMPTS"
	EnvLoginLockoutMinutes    = "LICENSOR_LOGIN_LOCKOUT_MINUTES"
	EnvHeartbeatRetentionDays = "LICENSOR_HEARTBEAT_RETENTION_DAYS"
	EnvUseSQLite              = "LICENSOR_USE_SQLITE"
	EnvCORSAllowedOrigins     = "LICENSOR_CORS_ALLOWED_ORIGINS"
	EnvBootstrapAdminUsername = "LICENSOR_BOOTSTRAP_ADMIN_USERNAME"
	EnvBootstrapAdminEmail    = "LICENSOR_BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminPassword = "LICENSOR_BOOTSTRAP_ADMIN_PASSWORD"
	EnvPublicRateLimitRPS     = "LICENSOR_PUBLIC_RATE_LIMIT_RPS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
