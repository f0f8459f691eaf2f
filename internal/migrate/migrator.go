// Package migrate applies and tracks ordered schema changes against
// the embedded store. Each migration runs in its own transaction; the
// recorded version never advances past a failed change, and downgrades
// are rejected rather than silently ignored.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"papercompanion/internal/model"
)

var (
	ErrDowngrade        = errors.New("schema downgrade is not supported")
	ErrMissingMigration = errors.New("no migration registered for pending version")
)

// Migration is one ordered schema change. Run executes inside a
// transaction that also records the version; both commit or neither
// does.
type Migration struct {
	Version     int
	Description string
	Run         func(tx *gorm.DB) error
}

type Migrator struct {
	db         *gorm.DB
	migrations map[int]Migration
}

// Info is the diagnostic view of migration state.
type Info struct {
	Current int                   `json:"current_version"`
	Target  int                   `json:"target_version"`
	Pending []int                 `json:"pending_versions"`
	Applied []model.SchemaVersion `json:"applied"`
}

func New(db *gorm.DB, migrations ...Migration) *Migrator {
	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}
	return &Migrator{db: db, migrations: byVersion}
}

// CurrentVersion returns 0 when the store is uninitialized, otherwise
// the highest applied version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version sql.NullInt64
	err := m.db.Raw("SELECT MAX(version) FROM schema_version").Scan(&version).Error
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version failed: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// TargetVersion is the highest registered version, never below the
// base schema version.
func (m *Migrator) TargetVersion() int {
	target := 1
	for v := range m.migrations {
		if v > target {
			target = v
		}
	}
	return target
}

// Initialize applies the full base schema as one atomic operation and
// records version 1. Calling it on an initialized store is a no-op.
func (m *Migrator) Initialize() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current >= 1 {
		return nil
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range baseSchema {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("apply base schema failed: %w", err)
			}
		}
		record := model.SchemaVersion{
			Version:     1,
			Description: "base schema",
			AppliedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("record base schema version failed: %w", err)
		}
		return nil
	})
}

// ApplyMigrations brings the schema to target. A target of 0 means
// TargetVersion. Every version in (current, target] must have a
// registered migration; each is applied in order inside its own
// transaction, and the first failure stops the run without advancing
// the recorded version.
func (m *Migrator) ApplyMigrations(target int) error {
	if target <= 0 {
		target = m.TargetVersion()
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if target < current {
		return fmt.Errorf("target version %d below current %d: %w", target, current, ErrDowngrade)
	}

	if current == 0 {
		if err := m.Initialize(); err != nil {
			return err
		}
		current = 1
	}

	for v := current + 1; v <= target; v++ {
		if _, ok := m.migrations[v]; !ok {
			return fmt.Errorf("version %d: %w", v, ErrMissingMigration)
		}
	}

	for v := current + 1; v <= target; v++ {
		mig := m.migrations[v]
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := mig.Run(tx); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Description, err)
			}
			record := model.SchemaVersion{
				Version:     mig.Version,
				Description: mig.Description,
				AppliedAt:   time.Now().UTC(),
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("record version %d failed: %w", mig.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// MigrationInfo reports current/target versions, the pending list and
// the applied history.
func (m *Migrator) MigrationInfo() (*Info, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, err
	}

	info := &Info{
		Current: current,
		Target:  m.TargetVersion(),
		Pending: []int{},
		Applied: []model.SchemaVersion{},
	}
	for v := range m.migrations {
		if v > current {
			info.Pending = append(info.Pending, v)
		}
	}
	if current == 0 && info.Target >= 1 {
		info.Pending = append(info.Pending, 1)
	}
	sort.Ints(info.Pending)

	if current > 0 {
		if err := m.db.Order("version ASC").Find(&info.Applied).Error; err != nil {
			return nil, fmt.Errorf("read applied versions failed: %w", err)
		}
	}
	return info, nil
}
