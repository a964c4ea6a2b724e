package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Username      string // Required for a fresh login: account email
	Password      string // Required for a fresh login
	MFASecret     string // Optional: base32 TOTP seed, codes are prompted for when unset
	ChallengeType string // Optional: email or sms (default: email)
	BaseURL       string // Optional: API root (default: rhsdk.DefaultBaseURL)

	CacheDriver     string        // Optional: file, sqlite, redis or none (default: file)
	CacheDir        string        // Optional: directory for the file driver (default: ~/.robinhood)
	CacheKey        string        // Optional: record name (default: login)
	CachePassphrase string        // Optional: seals cached records when set
	SQLiteFile      string        // Optional: database for the sqlite driver (default: ~/.robinhood/sessions.db)
	RedisAddr       string        // Optional: address for the redis driver (default: localhost:6379)
	RedisTTL        time.Duration // Optional: expiry of redis records (default: none)

	EventsRedisAddr string // Optional: publish session events to a Redis stream at this address
	EventsTopic     string // Optional: stream name (default: rhsession.events)

	RequestTimeout time.Duration // Per-request timeout (default: 15s)
	Env            string        // Environment (dev, prod) (default: prod)
	LogLevel       string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat      string        // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		Username:      os.Getenv("RH_USERNAME"),
		Password:      os.Getenv("RH_PASSWORD"),
		MFASecret:     os.Getenv("RH_MFA_SECRET"),
		ChallengeType: getEnvOrDefault("RH_CHALLENGE_TYPE", "email"),
		BaseURL:       os.Getenv("RH_BASE_URL"),

		CacheDriver:     getEnvOrDefault("RH_CACHE_DRIVER", "file"),
		CacheDir:        os.Getenv("RH_CACHE_DIR"),
		CacheKey:        getEnvOrDefault("RH_CACHE_KEY", "login"),
		CachePassphrase: os.Getenv("RH_CACHE_PASSPHRASE"),
		SQLiteFile:      os.Getenv("RH_SQLITE_FILE"),
		RedisAddr:       getEnvOrDefault("RH_REDIS_ADDR", "localhost:6379"),
		RedisTTL:        getEnvDurationOrDefault("RH_REDIS_TTL", 0),

		EventsRedisAddr: os.Getenv("RH_EVENTS_REDIS_ADDR"),
		EventsTopic:     getEnvOrDefault("RH_EVENTS_TOPIC", "rhsession.events"),

		RequestTimeout: getEnvDurationOrDefault("RH_REQUEST_TIMEOUT", 15*time.Second),
		Env:            getEnvOrDefault("ENV", "prod"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
