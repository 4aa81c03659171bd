package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/utils"
)

// Config service configuration, filled from the environment
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	APIPrefix  string `env:"API_PREFIX"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Log        logger.LogConfig

	// provider webhooks
	PublicBaseURL      string `env:"PUBLIC_BASE_URL"`
	ProviderAuthToken  string `env:"PROVIDER_AUTH_TOKEN"`
	RecordCalls        bool   `env:"RECORD_CALLS"`
	DialTimeoutSeconds int    `env:"DIAL_TIMEOUT_SECONDS"`
	StoreTimeout       time.Duration

	// read API
	APISecretKey string `env:"API_SECRET_KEY"`
	RateLimit    string `env:"RATE_LIMIT"`

	// metrics
	MonitorPrefix         string `env:"MONITOR_PREFIX"`
	MetricsCacheTTL       time.Duration
	MetricsRowLimit       int    `env:"METRICS_ROW_LIMIT"`
	MetricsDigestSchedule string `env:"METRICS_DIGEST_SCHEDULE"`
	ReportTimezone        string `env:"REPORT_TIMEZONE"`

	// event export
	KafkaBrokers  []string
	KafkaTopic    string `env:"KAFKA_TOPIC"`
	KafkaUsername string `env:"KAFKA_USERNAME"`
	KafkaPassword string `env:"KAFKA_PASSWORD"`

	Cache cache.Config
}

var GlobalConfig *Config

func Load() error {
	// a missing .env is fine, every key has a default
	env := os.Getenv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		ServerName: getStringOrDefault("SERVER_NAME", "calltrack"),
		Addr:       getStringOrDefault("ADDR", ":7080"),
		Mode:       getStringOrDefault("MODE", "development"),
		APIPrefix:  getStringOrDefault("API_PREFIX", "/api"),
		DBDriver:   getStringOrDefault("DB_DRIVER", "sqlite"),
		DSN:        getStringOrDefault("DSN", "./calltrack.db"),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/calltrack.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		PublicBaseURL:         strings.TrimRight(getStringOrDefault("PUBLIC_BASE_URL", "http://localhost:7080"), "/"),
		ProviderAuthToken:     getStringOrDefault("PROVIDER_AUTH_TOKEN", ""),
		RecordCalls:           getBoolOrDefault("RECORD_CALLS", false),
		DialTimeoutSeconds:    getIntOrDefault("DIAL_TIMEOUT_SECONDS", 25),
		StoreTimeout:          getDurationOrDefault("STORE_TIMEOUT", 5*time.Second),
		APISecretKey:          getStringOrDefault("API_SECRET_KEY", ""),
		RateLimit:             getStringOrDefault("RATE_LIMIT", "120-M"),
		MonitorPrefix:         getStringOrDefault("MONITOR_PREFIX", "/metrics"),
		MetricsCacheTTL:       getDurationOrDefault("METRICS_CACHE_TTL", 30*time.Second),
		MetricsRowLimit:       getIntOrDefault("METRICS_ROW_LIMIT", 50000),
		MetricsDigestSchedule: getStringOrDefault("METRICS_DIGEST_SCHEDULE", "5 0 * * *"),
		ReportTimezone:        getStringOrDefault("REPORT_TIMEZONE", "UTC"),
		KafkaBrokers:          splitList(utils.GetEnv("KAFKA_BROKERS")),
		KafkaTopic:            getStringOrDefault("KAFKA_TOPIC", "calltrack.call-events"),
		KafkaUsername:         utils.GetEnv("KAFKA_USERNAME"),
		KafkaPassword:         utils.GetEnv("KAFKA_PASSWORD"),
		Cache:                 loadCacheConfig(),
	}
	return nil
}

// ReportLocation resolves REPORT_TIMEZONE, falling back to UTC
func (c *Config) ReportLocation() *time.Location {
	if c == nil || c.ReportTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getDurationOrDefault accepts Go durations ("5s") or bare seconds ("5")
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n := utils.GetIntEnv(key); n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", cache.TypeLocal),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     utils.GetEnv("REDIS_PASSWORD"),
			DB:           int(utils.GetIntEnv("REDIS_DB")),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getDurationOrDefault("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationOrDefault("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationOrDefault("REDIS_WRITE_TIMEOUT", 3*time.Second),
			IdleTimeout:  getDurationOrDefault("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			KeyPrefix:    getStringOrDefault("REDIS_KEY_PREFIX", "calltrack:"),
		},
		Local: cache.LocalConfig{
			MaxSize:           getIntOrDefault("LOCAL_CACHE_MAX_SIZE", 1000),
			DefaultExpiration: getDurationOrDefault("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
			CleanupInterval:   getDurationOrDefault("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
	}
}
