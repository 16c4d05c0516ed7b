package config

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadInfersPostgresFromDatabaseURL(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/celustock")

	cfg := Load()
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.DatabaseDriver)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")

	cfg := Load()
	if cfg.ReportCacheTTLSeconds != 3600 {
		t.Fatalf("expected default report ttl, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestNewLoggerParsesLevel(t *testing.T) {
	logger := NewLogger("warn", "text")
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}

	fallback := NewLogger("loud", "json")
	if fallback.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", fallback.GetLevel())
	}
}
