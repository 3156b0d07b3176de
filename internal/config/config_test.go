package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MATCH_FALLBACK_AFTER", "")

	cfg := New()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "dbname=strangerchat")
	assert.Equal(t, DefaultMatchPolicy(), cfg.Match)
	assert.Equal(t, 72*time.Hour, cfg.JWT.TTL)
}

func TestNew_MatchPolicyFromEnv(t *testing.T) {
	t.Setenv("MATCH_FALLBACK_AFTER", "0s")
	t.Setenv("QUEUE_STALE_AFTER", "3s")
	t.Setenv("MATCH_POLL_INTERVAL", "bogus")

	cfg := New()

	assert.Equal(t, time.Duration(0), cfg.Match.FallbackAfter)
	assert.Equal(t, 3*time.Second, cfg.Match.StaleAfter)
	assert.Equal(t, DefaultPollInterval, cfg.Match.PollInterval, "invalid durations fall back to the default")
}

func TestNew_SQLiteDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "/tmp/chat.db")

	cfg := New()

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.DB.DSN)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "off", "nope"} {
		assert.False(t, isTruthy(v), v)
	}
}

func TestNew_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://chat.example, ,http://localhost:5173")

	cfg := New()

	assert.Equal(t, []string{"https://chat.example", "http://localhost:5173"}, cfg.HTTP.AllowedOrigins)
}
