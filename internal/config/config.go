package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP struct {
		Addr           string
		AllowedOrigins []string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		LogSQL   bool
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	JWT struct {
		Secret string
		TTL    time.Duration
	}

	Match MatchPolicy
}

// MatchPolicy holds the tunable knobs of the queue and the resolver.
type MatchPolicy struct {
	// FallbackAfter relaxes an entry's own filters once it has waited this long.
	// Zero keeps filters hard forever.
	FallbackAfter time.Duration
	// StaleAfter is how long an entry may go without a heartbeat before it is a ghost.
	StaleAfter time.Duration
	// PollInterval drives the polling half of the match observer.
	PollInterval time.Duration
	// LookupTTL bounds how long a consumed entry still resolves to its pairing.
	LookupTTL time.Duration
	// SweepInterval is the period of the ghost-entry sweeper.
	SweepInterval time.Duration
}

// DefaultMatchPolicy returns the policy used when nothing is configured.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		FallbackAfter: DefaultFallbackAfter,
		StaleAfter:    DefaultStaleAfter,
		PollInterval:  DefaultPollInterval,
		LookupTTL:     DefaultMatchLookupTTL,
		SweepInterval: DefaultQueueSweepPeriod,
	}
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded")
	}
	return New()
}

// New builds a Config from the process environment only.
func New() *Config {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnvDefault("HTTP_ADDR", ":8080")
	cfg.HTTP.AllowedOrigins = splitList(getEnvDefault("CORS_ALLOWED_ORIGINS", "*"))

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "strangerchat")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "postgres"))
	cfg.DB.LogSQL = isTruthy(os.Getenv("DB_LOG_SQL"))
	cfg.DB.DSN = os.Getenv("DATABASE_URL")
	if cfg.DB.DSN == "" {
		switch cfg.DB.Driver {
		case "sqlite":
			cfg.DB.DSN = getEnvDefault("SQLITE_PATH", "strangerchat.db")
		default:
			cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
			cfg.DB.Port = getEnvDefault("DB_PORT", "5432")
			cfg.DB.User = getEnvDefault("DB_USER", "user")
			cfg.DB.Password = getEnvDefault("DB_PASSWORD", "password")
			cfg.DB.Name = getEnvDefault("DB_NAME", "strangerchat")

			cfg.DB.DSN = fmt.Sprintf(
				"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
				cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbInt, err := strconv.Atoi(getEnvDefault("REDIS_DB", "0")); err == nil {
		cfg.Redis.DB = dbInt
	}

	// JWT
	cfg.JWT.Secret = getEnvDefault("JWT_SECRET", "change-me")
	cfg.JWT.TTL = getDurationDefault("JWT_TTL", 72*time.Hour)

	// Matching
	def := DefaultMatchPolicy()
	cfg.Match.FallbackAfter = getDurationDefault("MATCH_FALLBACK_AFTER", def.FallbackAfter)
	cfg.Match.StaleAfter = getDurationDefault("QUEUE_STALE_AFTER", def.StaleAfter)
	cfg.Match.PollInterval = getDurationDefault("MATCH_POLL_INTERVAL", def.PollInterval)
	cfg.Match.LookupTTL = getDurationDefault("MATCH_LOOKUP_TTL", def.LookupTTL)
	cfg.Match.SweepInterval = getDurationDefault("QUEUE_SWEEP_INTERVAL", def.SweepInterval)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDurationDefault(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid duration %s=%q, using %s", k, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
