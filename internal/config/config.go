package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup from the
// environment (optionally seeded from a .env file).
type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	JWT        JWTConfig
	Security   SecurityConfig
	Hashing    HashingConfig
	Geo        GeoConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	TLSPort     int
	AutoCert    bool
	Domain      string
	Email       string
	CertFile    string
	KeyFile     string
	AutoCertDir string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
	// Enabled=false switches the key-value layer to the in-process fallback.
	Enabled bool
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers         []string
	EventsTopic     string
	Enabled         bool
	DispatchRetries int
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
	Enabled  bool
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type SecurityConfig struct {
	MaxFailedLogins      int
	LockoutDuration      time.Duration
	OTPLength            int
	OTPTTL               time.Duration
	OTPMaxAttempts       int
	OTPResendCooldown    time.Duration
	OTPResendLimit       int
	OTPResendWindow      time.Duration
	EmailResendLimit     int
	EmailResendWindow    time.Duration
	PendingTTL           time.Duration
	DefaultTrustDays     int
	SessionTTL           time.Duration
	LoginRateLimit       int
	LoginRateWindow      time.Duration
	RegisterRateLimit    int
	RegisterRateWindow   time.Duration
	BackupCodeCount      int
	TOTPIssuer           string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
}

type GeoConfig struct {
	Enabled bool
	BaseURL string
	Token   string
	Timeout time.Duration
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// LoadConfig reads configuration from the environment. Safe to call more
// than once; the first call wins.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		// Missing .env is fine in containerized deployments.
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
				Enabled:  getEnvBool("REDIS_ENABLED", true),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", "127.0.0.1:9042"),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "mfa"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:         getEnvList("KAFKA_BROKERS", "localhost:9092"),
				EventsTopic:     getEnv("KAFKA_EVENTS_TOPIC", "auth-events"),
				Enabled:         getEnvBool("KAFKA_ENABLED", true),
				DispatchRetries: getEnvInt("KAFKA_DISPATCH_RETRIES", 3),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: getEnv("CLICKHOUSE_DATABASE", "security"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", true),
			},
			JWT: JWTConfig{
				Secret:          getEnv("JWT_SECRET", ""),
				Issuer:          getEnv("JWT_ISSUER", "real-mfa"),
				AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
				RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			},
			Security: SecurityConfig{
				MaxFailedLogins:    getEnvInt("MAX_FAILED_LOGINS", 5),
				LockoutDuration:    getEnvDuration("LOCKOUT_DURATION", 30*time.Minute),
				OTPLength:          getEnvInt("OTP_LENGTH", 6),
				OTPTTL:             getEnvDuration("OTP_TTL", 10*time.Minute),
				OTPMaxAttempts:     getEnvInt("OTP_MAX_ATTEMPTS", 3),
				OTPResendCooldown:  getEnvDuration("OTP_RESEND_COOLDOWN", 60*time.Second),
				OTPResendLimit:     getEnvInt("OTP_RESEND_LIMIT", 3),
				OTPResendWindow:    getEnvDuration("OTP_RESEND_WINDOW", 10*time.Minute),
				EmailResendLimit:   getEnvInt("EMAIL_RESEND_LIMIT", 4),
				EmailResendWindow:  getEnvDuration("EMAIL_RESEND_WINDOW", time.Hour),
				PendingTTL:         getEnvDuration("PENDING_TTL", 10*time.Minute),
				DefaultTrustDays:   getEnvInt("DEFAULT_TRUST_DAYS", 30),
				SessionTTL:         getEnvDuration("SESSION_TTL", 7*24*time.Hour),
				LoginRateLimit:     getEnvInt("LOGIN_RATE_LIMIT", 5),
				LoginRateWindow:    getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),
				RegisterRateLimit:  getEnvInt("REGISTER_RATE_LIMIT", 2),
				RegisterRateWindow: getEnvDuration("REGISTER_RATE_WINDOW", time.Minute),
				BackupCodeCount:    getEnvInt("BACKUP_CODE_COUNT", 10),
				TOTPIssuer:         getEnv("TOTP_ISSUER", "RealMFA"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
				Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
				Pepper:            getEnv("PASSWORD_PEPPER", ""),
			},
			Geo: GeoConfig{
				Enabled: getEnvBool("GEO_ENABLED", true),
				BaseURL: getEnv("GEO_BASE_URL", "https://ipinfo.io"),
				Token:   getEnv("GEO_TOKEN", ""),
				Timeout: getEnvDuration("GEO_TIMEOUT", 3*time.Second),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate catches configuration mistakes that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Security.MaxFailedLogins < 1 {
		return fmt.Errorf("MAX_FAILED_LOGINS must be at least 1")
	}
	if c.Security.OTPLength < 4 || c.Security.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
