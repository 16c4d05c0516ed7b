package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"celustock/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresDatabaseURLForPostgres(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		DatabaseDriver: "postgres",
	})
	if err == nil {
		t.Fatalf("expected missing DATABASE_URL to be rejected")
	}
}

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	logger, _ := test.NewNullLogger()

	repo, closeFn, err := openRepository(context.Background(), config.Config{}, logger)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no close func for memory store")
	}
	if _, err := repo.GetStore(context.Background(), "store-centro"); err != nil {
		t.Fatalf("expected seeded store, got %v", err)
	}
}

func TestOpenRepositorySQLite(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Config{DatabaseDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "celustock.db")}

	repo, closeFn, err := openRepository(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	defer func() { _ = closeFn() }()

	if _, err := repo.ListStores(context.Background()); err != nil {
		t.Fatalf("list stores: %v", err)
	}
}

func TestOpenRepositoryRejectsUnknownDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	if _, _, err := openRepository(context.Background(), config.Config{DatabaseDriver: "mongo"}, logger); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
