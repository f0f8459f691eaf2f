package model

import "time"

// SchemaVersion records one applied schema change. Versions only ever
// increase; downgrades are rejected at the migrator.
type SchemaVersion struct {
	Version     int       `gorm:"primaryKey" json:"version"`
	Description string    `gorm:"size:256;not null" json:"description"`
	AppliedAt   time.Time `gorm:"column:applied_at" json:"applied_at"`
}

func (SchemaVersion) TableName() string { return "schema_version" }
