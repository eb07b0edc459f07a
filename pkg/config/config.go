package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Password        PasswordConfig
	AuthRateLimit   AuthRateLimitConfig
	LoginLimiter    LoginLimiterConfig
	License         LicenseConfig
	PublicRateLimit PublicRateLimitConfig
	Cron            CronConfig
	CORS            CORSConfig
	Bootstrap       BootstrapConfig
	FeatureFlags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LoginLimiter.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoginMaxAttempts)
	}
	if c.LoginLimiter.LockoutMinutes <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoginLockoutMinutes)
	}
	switch c.DB.Driver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, c.DB.Driver)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"LICENSOR_APP_ENV" required:"true"`
	Port         string `envconfig:"LICENSOR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LICENSOR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LICENSOR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"LICENSOR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LICENSOR_DB_DSN"`
	Driver string `envconfig:"LICENSOR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LICENSOR_DB_HOST"`
	LegacyPort     int    `envconfig:"LICENSOR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LICENSOR_DB_USER"`
	LegacyPassword string `envconfig:"LICENSOR_DB_PASSWORD"`
	LegacyName     string `envconfig:"LICENSOR_DB_NAME"`
	LegacySSLMode  string `envconfig:"LICENSOR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LICENSOR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LICENSOR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LICENSOR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LICENSOR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LICENSOR_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
	ConnectAttempts    uint          `envconfig:"LICENSOR_DB_CONNECT_ATTEMPTS" default:"5"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LICENSOR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LICENSOR_REDIS_ADDR"`
	Password     string        `envconfig:"LICENSOR_REDIS_PASSWORD"`
	DB           int           `envconfig:"LICENSOR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LICENSOR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LICENSOR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LICENSOR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LICENSOR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LICENSOR_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyNamespace string        `envconfig:"LICENSOR_REDIS_KEY_NAMESPACE" default:"lic"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"LICENSOR_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"LICENSOR_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"LICENSOR_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"LICENSOR_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LICENSOR_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LICENSOR_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LICENSOR_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LICENSOR_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LICENSOR_ARGON_KEY_LEN" default:"32"`
}

// AuthRateLimitConfig is the coarse redis-backed window in front of login.
// The per-account lockout lives in LoginLimiterConfig.
type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"LICENSOR_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginIdentLimit int           `envconfig:"LICENSOR_AUTH_RATE_LIMIT_LOGIN_IDENT_LIMIT" default:"20"`
	LoginIPLimit    int           `envconfig:"LICENSOR_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"60"`
}

type LoginLimiterConfig struct {
	MaxAttempts    int           `envconfig:"LICENSOR_LOGIN_MAX_ATTEMPTS" default:"5"`
	LockoutMinutes int           `envconfig:"LICENSOR_LOGIN_LOCKOUT_MINUTES" default:"15"`
	SweepInterval  time.Duration `envconfig:"LICENSOR_LOGIN_SWEEP_INTERVAL" default:"1m"`
	IdleTTL        time.Duration `envconfig:"LICENSOR_LOGIN_IDLE_TTL" default:"24h"`
}

// Lockout returns the lockout duration.
func (l LoginLimiterConfig) Lockout() time.Duration {
	return time.Duration(l.LockoutMinutes) * time.Minute
}

type LicenseConfig struct {
	KeyPrefix              string        `envconfig:"LICENSOR_LICENSE_KEY_PREFIX" default:"LK"`
	TxRetryAttempts        uint          `envconfig:"LICENSOR_LICENSE_TX_RETRY_ATTEMPTS" default:"3"`
	TxRetryDelay           time.Duration `envconfig:"LICENSOR_LICENSE_TX_RETRY_DELAY" default:"25ms"`
	ExpirySweepBatch       int           `envconfig:"LICENSOR_LICENSE_EXPIRY_SWEEP_BATCH" default:"500"`
	HeartbeatRetentionDays int           `envconfig:"LICENSOR_HEARTBEAT_RETENTION_DAYS" default:"180"`
	ExpiringSoonDays       int           `envconfig:"LICENSOR_LICENSE_EXPIRING_SOON_DAYS" default:"7"`
}

// HeartbeatRetention returns how long heartbeat entries are kept.
func (l LicenseConfig) HeartbeatRetention() time.Duration {
	return time.Duration(l.HeartbeatRetentionDays) * 24 * time.Hour
}

// ExpiringSoonWindow is the look-ahead used by the admin dashboard.
func (l LicenseConfig) ExpiringSoonWindow() time.Duration {
	return time.Duration(l.ExpiringSoonDays) * 24 * time.Hour
}

// PublicRateLimitConfig throttles the unauthenticated client endpoints per IP.
type PublicRateLimitConfig struct {
	RequestsPerSecond float64       `envconfig:"LICENSOR_PUBLIC_RATE_LIMIT_RPS" default:"5"`
	Burst             int           `envconfig:"LICENSOR_PUBLIC_RATE_LIMIT_BURST" default:"10"`
	IdleTTL           time.Duration `envconfig:"LICENSOR_PUBLIC_RATE_LIMIT_IDLE_TTL" default:"10m"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LICENSOR_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"LICENSOR_CRON_LOCK_TTL" default:"55m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LICENSOR_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// BootstrapConfig seeds the first admin account when all fields are set.
type BootstrapConfig struct {
	AdminUsername string `envconfig:"LICENSOR_BOOTSTRAP_ADMIN_USERNAME"`
	AdminEmail    string `envconfig:"LICENSOR_BOOTSTRAP_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"LICENSOR_BOOTSTRAP_ADMIN_PASSWORD"`
}

// Enabled reports whether every bootstrap field is populated.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminUsername) != "" &&
		strings.TrimSpace(b.AdminEmail) != "" &&
		b.AdminPassword != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LICENSOR_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LICENSOR_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:licensor.db?_busy_timeout=5000&_journal_mode=WAL"
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
