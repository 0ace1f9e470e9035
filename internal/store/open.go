package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	// Verbose logs every SQL statement.
	Verbose bool
}

// Open picks the backend once; callers only see the Store interface.
func Open(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	log = log.Named("store")

	gormCfg := &gorm.Config{Logger: newGormLogger(log, opts.Verbose)}

	switch opts.Driver {
	case DriverMemory, "":
		log.Info("using in-memory store")
		return NewMemory(), nil

	case DriverSQLite:
		if dir := filepath.Dir(opts.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err := gorm.Open(sqlite.Open(opts.SQLitePath+"?_pragma=busy_timeout(5000)"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One writer at a time; UpdateGame relies on it instead of row locks.
		sqlDB.SetMaxOpenConns(1)
		log.Info("using sqlite store", zap.String("path", opts.SQLitePath))
		return openGorm(ctx, db, false)

	case DriverPostgres:
		db, err := gorm.Open(postgres.Open(opts.DatabaseURL), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info("using postgres store")
		return openGorm(ctx, db, true)

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// openGorm migrates db and wraps it. On failure db is closed.
func openGorm(ctx context.Context, db *gorm.DB, lockRows bool) (Store, error) {
	g, err := NewGorm(ctx, db, lockRows)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return g, nil
}
