package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the embedded store. Foreign keys are enforced so paper and
// session deletes cascade in the database, and the pool is limited to
// a single connection: SQLite allows only one writer at a time, so a
// single-writer discipline avoids SQLITE_BUSY churn under concurrent
// request handlers.
func New(ctx context.Context, path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(DSN(path)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite sql db failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}

	return db, nil
}

// DSN builds the connection string for a database path, including the
// in-memory form used by tests.
func DSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_loc=UTC"
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return "file::memory:?" + params
	}
	return fmt.Sprintf("file:%s?%s", path, params)
}
