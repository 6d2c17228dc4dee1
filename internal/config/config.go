package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Apply      ApplyConfig
	Allocation AllocationConfig

	TelephonyConfigPath string
	Bootstrap           BootstrapConfig
}

// ApplyConfig selects how concurrent applies are serialized.
type ApplyConfig struct {
	LockBackend string
	LockTTL     time.Duration
}

type AllocationConfig struct {
	MaxRetries    int
	DefaultExtMin int
	DefaultExtMax int
}

type BootstrapConfig struct {
	EnsureDefaultTenant bool
	DefaultTenantName   string
}

const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
	LockBackendLocal    = "local"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "switchboard"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "switchboard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Apply: ApplyConfig{
			LockBackend: normalizeLockBackend(getenv("APPLY_LOCK_BACKEND", LockBackendPostgres)),
			LockTTL:     getenvDuration("APPLY_LOCK_TTL", 5*time.Minute),
		},
		Allocation: AllocationConfig{
			MaxRetries:    getenvInt("ALLOCATION_MAX_RETRIES", 5),
			DefaultExtMin: getenvInt("DEFAULT_EXTENSION_MIN", 1000),
			DefaultExtMax: getenvInt("DEFAULT_EXTENSION_MAX", 1999),
		},

		TelephonyConfigPath: strings.TrimSpace(getenv("TELEPHONY_CONFIG_PATH", "")),
		Bootstrap: BootstrapConfig{
			EnsureDefaultTenant: getenvBool("BOOTSTRAP_DEFAULT_TENANT", true),
			DefaultTenantName:   getenv("BOOTSTRAP_DEFAULT_TENANT_NAME", "Default"),
		},
	}

	return cfg
}

func normalizeLockBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LockBackendRedis:
		return LockBackendRedis
	case LockBackendLocal:
		return LockBackendLocal
	default:
		return LockBackendPostgres
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
