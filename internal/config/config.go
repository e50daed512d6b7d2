package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

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

	Redis     RedisConfig
	Telegram  TelegramConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type TelegramConfig struct {
	BotToken    string
	ChannelID   string
	APIBaseURL  string
	Timeout     time.Duration
	CacheTTL    time.Duration
	AssumeAllOK bool
	RateLimit   float64
	RateBurst   int
}

type SchedulerConfig struct {
	RunInterval           time.Duration
	ReapInterval          time.Duration
	Concurrency           int
	BatchSize             int
	MaxCatchUpPeriods     int
	UseStoredSubscription bool
	EnabledJobs           []string
	LockTTL               time.Duration
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewLifecycleConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "botquota"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("NODE_ID", 1),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "botquota"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Telegram: TelegramConfig{
			BotToken:    strings.TrimSpace(getenv("BOT_TOKEN", "")),
			ChannelID:   strings.TrimSpace(getenv("CHANNEL_ID", "")),
			APIBaseURL:  strings.TrimRight(getenv("TELEGRAM_API_URL", "https://api.telegram.org"), "/"),
			Timeout:     getenvDuration("TELEGRAM_TIMEOUT", 5*time.Second),
			CacheTTL:    getenvDuration("SUBSCRIPTION_CACHE_TTL", 5*time.Minute),
			AssumeAllOK: getenvBool("SUBSCRIPTION_ASSUME_ALL", false),
			RateLimit:   getenvFloat("TELEGRAM_RATE_LIMIT", 25),
			RateBurst:   int(getenvInt64("TELEGRAM_RATE_BURST", 5)),
		},
		Scheduler: SchedulerConfig{
			RunInterval:           getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			ReapInterval:          getenvDuration("SCHEDULER_REAP_INTERVAL", time.Hour),
			Concurrency:           int(getenvInt64("SCHEDULER_CONCURRENCY", 8)),
			BatchSize:             int(getenvInt64("SCHEDULER_BATCH_SIZE", 500)),
			MaxCatchUpPeriods:     int(getenvInt64("SCHEDULER_MAX_CATCH_UP", 7)),
			UseStoredSubscription: getenvBool("SCHEDULER_USE_STORED_SUBSCRIPTION", false),
			EnabledJobs:           getenvList("SCHEDULER_ENABLED_JOBS"),
			LockTTL:               getenvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
