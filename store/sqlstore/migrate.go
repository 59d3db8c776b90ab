package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies every pending migration for d.
func Migrate(ctx context.Context, db *sql.DB, d Dialect, logger *slog.Logger) error {
	dl, err := lookupDialect(d)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(dl.goose); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, dl.migrationsDir); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	dl, err := lookupDialect(d)
	if err != nil {
		return 0, err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dl.goose); err != nil {
		return 0, fmt.Errorf("goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
	}
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Error(fmt.Sprintf(format, v...), "component", "migrate")
	}
}
