package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Issuance      IssuanceConfig
	Webhook       WebhookConfig
	Cron          CronConfig
	Live          LiveConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Issuance.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EPIGUARD_APP_ENV" required:"true"`
	Port         string `envconfig:"EPIGUARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EPIGUARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EPIGUARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EPIGUARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EPIGUARD_DB_DSN"`
	Driver string `envconfig:"EPIGUARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EPIGUARD_DB_HOST"`
	LegacyPort     int    `envconfig:"EPIGUARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EPIGUARD_DB_USER"`
	LegacyPassword string `envconfig:"EPIGUARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"EPIGUARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"EPIGUARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EPIGUARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EPIGUARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EPIGUARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EPIGUARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EPIGUARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EPIGUARD_REDIS_ADDR"`
	Password     string        `envconfig:"EPIGUARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"EPIGUARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EPIGUARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EPIGUARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EPIGUARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EPIGUARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EPIGUARD_REDIS_WRITE_TIMEOUT" default:"5s"`

	// SlowThreshold logs commands slower than this; zero disables the hook.
	SlowThreshold time.Duration `envconfig:"EPIGUARD_REDIS_SLOW_THRESHOLD" default:"250ms"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"EPIGUARD_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"EPIGUARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"EPIGUARD_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"EPIGUARD_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"EPIGUARD_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"EPIGUARD_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"EPIGUARD_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"EPIGUARD_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"EPIGUARD_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"EPIGUARD_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite      bool `envconfig:"EPIGUARD_USE_SQLITE" default:"false"`
	AutoMigrate    bool `envconfig:"EPIGUARD_AUTO_MIGRATE" default:"false"`
	OpenRegister   bool `envconfig:"EPIGUARD_OPEN_REGISTER" default:"false"`
	IdempotencyOff bool `envconfig:"EPIGUARD_IDEMPOTENCY_OFF" default:"false"`
}

// IssuanceConfig tunes the issuance core.
type IssuanceConfig struct {
	LowStockThreshold int           `envconfig:"EPIGUARD_LOW_STOCK_THRESHOLD" default:"5"`
	TxMaxAttempts     int           `envconfig:"EPIGUARD_TX_MAX_ATTEMPTS" default:"3"`
	TxTimeout         time.Duration `envconfig:"EPIGUARD_TX_TIMEOUT" default:"10s"`
	TxBackoff         time.Duration `envconfig:"EPIGUARD_TX_BACKOFF" default:"20ms"`
	TxMaxBackoff      time.Duration `envconfig:"EPIGUARD_TX_MAX_BACKOFF" default:"250ms"`
	SideEffectTimeout time.Duration `envconfig:"EPIGUARD_SIDE_EFFECT_TIMEOUT" default:"10s"`
	Timezone          string        `envconfig:"EPIGUARD_REFERENCE_TIMEZONE" default:"America/Sao_Paulo"`
}

// Location resolves the registry reference timezone used to normalize certificate expiry dates.
func (i IssuanceConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(i.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading %s %q: %w", EnvReferenceTimezone, name, err)
	}
	return loc, nil
}

type WebhookConfig struct {
	LowStockURL string        `envconfig:"EPIGUARD_WEBHOOK_URL"`
	Timeout     time.Duration `envconfig:"EPIGUARD_WEBHOOK_TIMEOUT" default:"5s"`
}

// Enabled reports whether a low-stock webhook target is configured.
func (w WebhookConfig) Enabled() bool {
	return strings.TrimSpace(w.LowStockURL) != ""
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"EPIGUARD_CRON_INTERVAL" default:"1h"`
	ExpiryWarningDays     int           `envconfig:"EPIGUARD_CRON_EXPIRY_WARNING_DAYS" default:"30"`
	NotificationRetention int           `envconfig:"EPIGUARD_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
}

type LiveConfig struct {
	Channel           string        `envconfig:"EPIGUARD_LIVE_CHANNEL" default:"live"`
	HeartbeatInterval time.Duration `envconfig:"EPIGUARD_LIVE_HEARTBEAT" default:"25s"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"EPIGUARD_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
