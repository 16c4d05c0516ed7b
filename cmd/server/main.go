package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"celustock/backend/internal/cache"
	"celustock/backend/internal/config"
	"celustock/backend/internal/httpapi"
	"celustock/backend/internal/reporting"
	"celustock/backend/internal/service"
	"celustock/backend/internal/store"
	"celustock/backend/internal/store/memory"
	pgstore "celustock/backend/internal/store/postgres"
	sqlitestore "celustock/backend/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).WithField("driver", cfg.DatabaseDriver).Fatal("repository unavailable; refusing to start with in-memory fallback")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	var locker cache.Locker = cache.NoopLocker{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, dashboard cache and batch locks disabled")
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			locker = redisCache
			closers = append(closers, redisCache.Close)
			logger.WithField("addr", cfg.RedisAddr).Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	reporter := reporting.NewEngine(reportCache, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second, logger)
	svc := service.New(repo, reporter, locker, time.Duration(cfg.BatchLockTTLSeconds)*time.Second, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("inventory backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

// openRepository selects the backing store from DB_DRIVER. The returned close
// func is nil for the in-memory store.
func openRepository(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (store.Repository, func() error, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		logger.Info("repository: postgres")
		return pg, pg.Close, nil
	case "sqlite":
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("repository: sqlite")
		return db, db.Close, nil
	case "", "memory":
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DatabaseDriver)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.DatabaseDriver {
	case "", "memory", "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of memory, sqlite, postgres")
	}
	return nil
}
