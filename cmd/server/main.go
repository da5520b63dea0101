package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grocerydist/routeledger/internal/config"
	"github.com/grocerydist/routeledger/internal/database"
	"github.com/grocerydist/routeledger/internal/lock"
	"github.com/grocerydist/routeledger/internal/logging"
	"github.com/grocerydist/routeledger/internal/router"
	"github.com/grocerydist/routeledger/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			logger.WithError(err).Fatal("run migrations")
		}
		logger.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("ping database")
	}

	var rdb *redis.Client
	if cfg.RedisAddress != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Locks degrade to no-ops; Postgres row locks still serialize writes.
			logger.WithError(err).Warn("redis unreachable, route locks disabled")
		}
	}
	locker := lock.NewRedisLocker(rdb, lock.DefaultTTL, logger)

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, pool, hub, locker, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
