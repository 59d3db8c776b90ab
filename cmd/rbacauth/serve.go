package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/api"
	"github.com/MrEthical07/rbacAuth/metrics/export/prometheus"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/redis/go-redis/v9"
)

func serve(ctx context.Context, cfg Config, log *slog.Logger) error {
	db, store, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	rdb, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}

	builder := rbacAuth.New().
		WithConfig(cfg.Auth).
		WithAccountStore(store).
		WithNotifier(notifier).
		WithLogger(log)
	if rdb != nil {
		builder = builder.WithRedis(rdb)
	}

	if strings.EqualFold(cfg.Notices.Backend, "redis") {
		queue, err := notify.NewRedisQueue(rdb, notify.RedisQueueConfig{
			Key:   cfg.Notices.Key,
			Retry: cfg.Auth.Notify.Retry,
		}, notifier, log)
		if err != nil {
			return err
		}
		builder = builder.WithNoticeQueue(queue)
		go func() {
			if err := queue.Run(ctx); err != nil {
				log.Error("notice queue stopped", "error", err)
			}
		}()
		log.Info("notices queued in redis", "key", cfg.Notices.Key)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	logSecurityReport(log, engine.SecurityReport())

	if cfg.Seed.Email != "" {
		if err := seedSuperadmin(ctx, engine, cfg.Seed, log); err != nil {
			return err
		}
	}

	srv, err := api.New(api.Deps{
		Config:  cfg.Server,
		Engine:  engine,
		Logger:  log,
		Metrics: prometheus.New(engine).Handler(),
		Ready:   readiness(db, rdb),
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	return srv.Close()
}

func readiness(db *sql.DB, rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func logSecurityReport(log *slog.Logger, r rbacAuth.SecurityReport) {
	log.Info("security posture",
		"production", r.ProductionMode,
		"signing_method", r.SigningMethod,
		"session_ttl", r.SessionTTL.String(),
		"cookie_secure", r.CookieSecure,
		"password_algorithm", r.PasswordAlgorithm,
		"totp_window", r.TOTPWindow,
		"lockout", r.LockoutActive,
		"device_tracking", r.DeviceTracking,
	)
	for _, w := range r.Warnings {
		log.Warn("security warning", "detail", w)
	}
}
