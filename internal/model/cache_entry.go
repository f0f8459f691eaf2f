package model

import "time"

// CacheEntry is a generic derived artifact, independent of the
// paper/session hierarchy. ExpiresAt nil means the entry never expires
// through the lazy check; only an explicit delete or clear removes it.
type CacheEntry struct {
	CacheKey       string     `gorm:"column:cache_key;primaryKey;size:256" json:"cache_key"`
	CacheType      string     `gorm:"column:cache_type;size:64;not null;index" json:"cache_type"`
	Data           []byte     `gorm:"type:blob;not null" json:"-"`
	Metadata       string     `gorm:"type:text" json:"metadata,omitempty"` // JSON
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at,omitempty"`
	HitCount       int64      `gorm:"not null;default:0" json:"hit_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `gorm:"column:last_accessed_at" json:"last_accessed_at"`
}

func (CacheEntry) TableName() string { return "cache" }

func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
