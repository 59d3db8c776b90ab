// Command rbacauth runs the authentication API.
//
// Usage:
//
//	rbacauth [-config path] serve     start the HTTP server
//	rbacauth [-config path] migrate   apply database migrations and exit
//	rbacauth [-config path] seed      create the bootstrap superadmin and exit
//
// Secrets come from the environment: RBACAUTH_ACCESS_TOKEN_SECRET,
// RBACAUTH_DATABASE_DSN, RBACAUTH_SMTP_PASSWORD, RBACAUTH_SEED_PASSWORD.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/internal/logging"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/store/sqlstore"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

const defaultConfigPath = "configs/rbacauth.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("rbacauth", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML config (default "+defaultConfigPath+" when present)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := fs.Arg(0)
	if command == "" {
		command = "serve"
	}

	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := loadConfig(path, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, "rbacauth")
	log.Info("starting rbacauth", "version", version, "command", command, "config", path)

	switch command {
	case "serve":
		return serve(ctx, cfg, log)
	case "migrate":
		return migrate(ctx, cfg, log)
	case "seed":
		return seed(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate or seed)", command)
	}
}

// openDatabase connects and migrates. The caller closes the handle.
func openDatabase(ctx context.Context, cfg Config, log *slog.Logger) (*sql.DB, *sqlstore.Store, error) {
	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlstore.Migrate(ctx, db, cfg.Database.Dialect, log); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	store, err := sqlstore.New(db, cfg.Database.Dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("database ready", "dialect", cfg.Database.Dialect)
	return db, store, nil
}

func migrate(ctx context.Context, cfg Config, log *slog.Logger) error {
	db, _, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := sqlstore.Version(ctx, db, cfg.Database.Dialect)
	if err != nil {
		return err
	}
	log.Info("migrations complete", "version", v)
	return nil
}

func seed(ctx context.Context, cfg Config, log *slog.Logger) error {
	if cfg.Seed.Email == "" {
		return fmt.Errorf("seed email and password are required (%s, %s)", envSeedEmail, envSeedPassword)
	}
	db, store, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	// Seeding never logs in, so the limiter is not needed.
	authCfg := cfg.Auth
	authCfg.Lockout.Enabled = false
	engine, err := rbacAuth.New().
		WithConfig(authCfg).
		WithAccountStore(store).
		WithNotifier(notify.LogNotifier{Logger: log}).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	return seedSuperadmin(ctx, engine, cfg.Seed, log)
}

func seedSuperadmin(ctx context.Context, engine *rbacAuth.Engine, s SeedConfig, log *slog.Logger) error {
	created, err := engine.SeedSuperadmin(ctx, rbacAuth.SeedRequest{
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Password:    s.Password,
	})
	if err != nil {
		return fmt.Errorf("seeding superadmin: %w", err)
	}
	if created {
		log.Info("superadmin created", "email", s.Email)
	} else {
		log.Info("superadmin already present", "email", s.Email)
	}
	return nil
}

func newRedisClient(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func newNotifier(cfg Config, log *slog.Logger) (rbacAuth.Notifier, error) {
	if cfg.SMTP.Host == "" {
		log.Warn("smtp not configured; emails are written to the log")
		return notify.LogNotifier{Logger: log}, nil
	}
	n, err := notify.NewSMTPNotifier(cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("smtp: %w", err)
	}
	return n, nil
}
