package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration for all three binaries
// (cmd/api, cmd/worker, cmd/sweeper). Every field is loaded from the
// environment with a sane local-dev fallback.
type Config struct {
	Env   string
	Port  int
	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	// DefaultTimezone is the IANA zone used to derive an event's wall-clock
	// day boundaries when the event itself does not carry one.
	DefaultTimezone string

	// KeyedLockTimeout is loaded from LOCK_TIMEOUT but not read elsewhere; a
	// registration-engine lock wait is bounded by the request context's
	// deadline.
	KeyedLockTimeout time.Duration

	// EventCacheTTL is the default TTL of the shared cache built in
	// internal/http and cmd/sweeper. CapacityCacheTTL is loaded but not read
	// elsewhere; the engine caches role counts for a fixed 30s.
	EventCacheTTL    time.Duration
	CapacityCacheTTL time.Duration

	// StatusSweepInterval / CounterSweepInterval drive cmd/sweeper's two
	// periodic jobs.
	StatusSweepInterval  time.Duration
	CounterSweepInterval time.Duration
	SweepLockTTL         time.Duration

	// SideEffectPoolSize bounds the worker goroutine pool used to fan out
	// email/system-message/audit jobs.
	SideEffectPoolSize int
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8080)
	dbURL := buildDBURL()

	return Config{
		Env:   env,
		Port:  port,
		DBURL: dbURL,

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 30),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "changeme"),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
		AdminRole:     getEnv("ADMIN_ROLE", "Super Admin"),

		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "UTC"),

		KeyedLockTimeout: getEnvDuration("LOCK_TIMEOUT", 5*time.Second),

		EventCacheTTL:    getEnvDuration("EVENT_CACHE_TTL", 30*time.Second),
		CapacityCacheTTL: getEnvDuration("CAPACITY_CACHE_TTL", 5*time.Second),

		StatusSweepInterval:  getEnvDuration("STATUS_SWEEP_INTERVAL", time.Minute),
		CounterSweepInterval: getEnvDuration("COUNTER_SWEEP_INTERVAL", 5*time.Minute),
		SweepLockTTL:         getEnvDuration("SWEEP_LOCK_TTL", 30*time.Second),

		SideEffectPoolSize: getEnvInt("SIDE_EFFECT_POOL_SIZE", 32),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "eventhub")
	pass := getEnv("DB_PASSWORD", "eventhub")
	name := getEnv("DB_NAME", "eventhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return d
	}
	return fallback
}
