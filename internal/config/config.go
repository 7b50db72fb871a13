package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	APIBaseURL         string
	APITimeout         time.Duration
	SessionBackend     string
	SessionNamespace   string
	SessionFile        string
	SessionSQLitePath  string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisKeyPrefix     string
	DatabaseURL        string
	DBMaxConns         int32
	DBMinConns         int32
	CORSOrigins        []string
	RateLimitRPM       int
	AuthRateLimitRPM   int
	LogLevel           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8090"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		APIBaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("API_BASE_URL")), "/"),
		APITimeout:         getDuration("API_TIMEOUT", 15*time.Second),
		SessionBackend:     strings.ToLower(getEnv("SESSION_BACKEND", BackendFile)),
		SessionNamespace:   getEnv("SESSION_NAMESPACE", "default"),
		SessionFile:        getEnv("SESSION_FILE", "./state/session.json"),
		SessionSQLitePath:  getEnv("SESSION_SQLITE_PATH", "./state/session.db"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:            getInt("REDIS_DB", 0),
		RedisKeyPrefix:     getEnv("REDIS_KEY_PREFIX", "clinic-console"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:         int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:         int32(getInt("DB_MIN_CONNS", 0)),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:   getInt("AUTH_RATE_LIMIT_RPM", 10),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendFile:
		if strings.TrimSpace(c.SessionFile) == "" {
			return fmt.Errorf("SESSION_FILE cannot be empty")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SessionSQLitePath) == "" {
			return fmt.Errorf("SESSION_SQLITE_PATH cannot be empty")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be one of memory, file, sqlite, redis, postgres; got %q", c.SessionBackend)
	}

	if c.AuthRateLimitRPM <= 0 || c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and AUTH_RATE_LIMIT_RPM must be positive")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
