package migrate_test

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"papercompanion/internal/migrate"
	"papercompanion/internal/platform/sqlite"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	return db
}

func TestInitializeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db)

	if err := m.Initialize(); err != nil {
		t.Fatalf("first initialize failed: %v", err)
	}
	if err := m.Initialize(); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("current version failed: %v", err)
	}
	if current != 1 {
		t.Fatalf("expected version 1 after initialize, got %d", current)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM schema_version").Scan(&count).Error; err != nil {
		t.Fatalf("count versions failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one version record, got %d", count)
	}
}

func TestCurrentVersionOnEmptyStore(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db)

	current, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("current version failed: %v", err)
	}
	if current != 0 {
		t.Fatalf("expected version 0 on empty store, got %d", current)
	}
}

func TestApplyMigrationsRunsInOrder(t *testing.T) {
	db := newTestDB(t)

	var order []int
	m := migrate.New(db,
		migrate.Migration{
			Version:     3,
			Description: "third",
			Run: func(tx *gorm.DB) error {
				order = append(order, 3)
				return nil
			},
		},
		migrate.Migration{
			Version:     2,
			Description: "second",
			Run: func(tx *gorm.DB) error {
				order = append(order, 2)
				return nil
			},
		},
	)

	if err := m.ApplyMigrations(0); err != nil {
		t.Fatalf("apply migrations failed: %v", err)
	}

	if len(order) != 2 || order[0] != 2 || order[1] != 3 {
		t.Fatalf("expected migrations in order [2 3], got %v", order)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("current version failed: %v", err)
	}
	if current != 3 {
		t.Fatalf("expected version 3, got %d", current)
	}
}

func TestApplyMigrationsRejectsDowngrade(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db,
		migrate.Migration{
			Version:     2,
			Description: "second",
			Run:         func(tx *gorm.DB) error { return nil },
		},
	)

	if err := m.ApplyMigrations(0); err != nil {
		t.Fatalf("apply migrations failed: %v", err)
	}

	err := m.ApplyMigrations(1)
	if !errors.Is(err, migrate.ErrDowngrade) {
		t.Fatalf("expected ErrDowngrade, got %v", err)
	}
}

func TestApplyMigrationsRejectsGaps(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db,
		migrate.Migration{
			Version:     3,
			Description: "third",
			Run:         func(tx *gorm.DB) error { return nil },
		},
	)

	err := m.ApplyMigrations(0)
	if !errors.Is(err, migrate.ErrMissingMigration) {
		t.Fatalf("expected ErrMissingMigration, got %v", err)
	}

	// The gap is detected before anything runs, so the store stays at
	// the base version.
	current, verr := m.CurrentVersion()
	if verr != nil {
		t.Fatalf("current version failed: %v", verr)
	}
	if current != 1 {
		t.Fatalf("expected version 1 after rejected run, got %d", current)
	}
}

func TestFailedMigrationDoesNotAdvanceVersion(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db,
		migrate.Migration{
			Version:     2,
			Description: "boom",
			Run: func(tx *gorm.DB) error {
				return errors.New("intentional failure")
			},
		},
	)

	if err := m.ApplyMigrations(0); err == nil {
		t.Fatal("expected migration failure")
	}

	current, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("current version failed: %v", err)
	}
	if current != 1 {
		t.Fatalf("expected version 1 after failed migration, got %d", current)
	}
}

func TestRegisteredMigrationsApply(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db, migrate.All()...)

	if err := m.ApplyMigrations(0); err != nil {
		t.Fatalf("apply registered migrations failed: %v", err)
	}

	// Migration 2 adds papers.full_text; inserting into it proves the
	// column exists.
	err := db.Exec(`
		INSERT INTO papers (pdf_hash, full_text, created_at, updated_at)
		VALUES ('hash-migrate', 'body', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`).Error
	if err != nil {
		t.Fatalf("insert with migrated column failed: %v", err)
	}
}

func TestMigrationInfo(t *testing.T) {
	db := newTestDB(t)
	m := migrate.New(db,
		migrate.Migration{
			Version:     2,
			Description: "second",
			Run:         func(tx *gorm.DB) error { return nil },
		},
	)

	info, err := m.MigrationInfo()
	if err != nil {
		t.Fatalf("migration info failed: %v", err)
	}
	if info.Current != 0 || info.Target != 2 {
		t.Fatalf("expected current 0 target 2, got %d/%d", info.Current, info.Target)
	}
	if len(info.Pending) != 2 || info.Pending[0] != 1 || info.Pending[1] != 2 {
		t.Fatalf("expected pending [1 2], got %v", info.Pending)
	}

	if err := m.ApplyMigrations(0); err != nil {
		t.Fatalf("apply migrations failed: %v", err)
	}

	info, err = m.MigrationInfo()
	if err != nil {
		t.Fatalf("migration info failed: %v", err)
	}
	if info.Current != 2 || len(info.Pending) != 0 {
		t.Fatalf("expected current 2 with no pending, got %d/%v", info.Current, info.Pending)
	}
	if len(info.Applied) != 2 {
		t.Fatalf("expected 2 applied records, got %d", len(info.Applied))
	}
}
