package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"papercompanion/internal/model"
)

// CacheRepository is the generic store for expensive derived artifacts
// (extraction bundles, converted assets). Entries carry a type tag, an
// optional absolute expiry and usage counters that drive eviction.
type CacheRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCacheRepository(db *gorm.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

// WithClock overrides the time source. Tests use it to exercise expiry
// without sleeping.
func (r *CacheRepository) WithClock(now func() time.Time) *CacheRepository {
	r.now = now
	return r
}

// Get returns the payload for key. An entry whose expiry has passed is
// deleted as a side effect and reported as a miss; a live hit bumps
// the hit counter and last-access time before returning.
func (r *CacheRepository) Get(key string) ([]byte, bool, error) {
	var data []byte
	found := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var entry model.CacheEntry
		if err := tx.Where("cache_key = ?", key).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("get cache entry failed: %w", err)
		}

		if entry.Expired(r.now()) {
			if err := tx.Where("cache_key = ?", key).Delete(&model.CacheEntry{}).Error; err != nil {
				return fmt.Errorf("delete expired entry failed: %w", err)
			}
			return nil
		}

		err := tx.Exec(`
			UPDATE cache
			SET hit_count = hit_count + 1, last_accessed_at = ?
			WHERE cache_key = ?`, r.now().UTC(), key).Error
		if err != nil {
			return fmt.Errorf("record cache hit failed: %w", err)
		}

		data = entry.Data
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

// Set upserts the entry; an existing entry with the same key is
// replaced wholesale, hit counter included. A zero ttl means the entry
// never expires through the lazy check.
func (r *CacheRepository) Set(key string, data []byte, cacheType string, ttl time.Duration, metadata map[string]interface{}) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := r.now().Add(ttl).UTC()
		expiresAt = &t
	}

	metadataJSON := ""
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal cache metadata failed: %w", err)
		}
		metadataJSON = string(raw)
	}

	now := r.now().UTC()
	err := r.db.Exec(`
		INSERT OR REPLACE INTO cache
			(cache_key, cache_type, data, metadata, expires_at, hit_count, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		key, cacheType, data, metadataJSON, expiresAt, now, now).Error
	if err != nil {
		return fmt.Errorf("set cache entry failed: %w", err)
	}
	return nil
}

// Delete reports whether an entry was actually removed.
func (r *CacheRepository) Delete(key string) (bool, error) {
	res := r.db.Where("cache_key = ?", key).Delete(&model.CacheEntry{})
	if res.Error != nil {
		return false, fmt.Errorf("delete cache entry failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Clear removes all entries of the given type, or everything when the
// type is empty. Returns the number removed.
func (r *CacheRepository) Clear(cacheType string) (int64, error) {
	q := r.db
	if cacheType != "" {
		q = q.Where("cache_type = ?", cacheType)
	} else {
		q = q.Where("1 = 1")
	}

	res := q.Delete(&model.CacheEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear cache failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// InvalidateExpired sweeps every entry whose expiry has passed,
// independent of access.
func (r *CacheRepository) InvalidateExpired() (int64, error) {
	res := r.db.Exec("DELETE FROM cache WHERE expires_at IS NOT NULL AND expires_at < ?", r.now().UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("invalidate expired entries failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecordHit bumps the hit counter without reading the payload, for
// callers that already resolved the hit themselves. Missing keys are a
// silent no-op.
func (r *CacheRepository) RecordHit(key string) error {
	err := r.db.Exec(`
		UPDATE cache
		SET hit_count = hit_count + 1, last_accessed_at = ?
		WHERE cache_key = ?`, r.now().UTC(), key).Error
	if err != nil {
		return fmt.Errorf("record cache hit failed: %w", err)
	}
	return nil
}

type CacheTypeStats struct {
	Count   int64   `json:"count"`
	Size    int64   `json:"size_bytes"`
	Hits    int64   `json:"hits"`
	AvgHits float64 `json:"avg_hits"`
}

type CacheStats struct {
	TotalEntries   int64                     `json:"total_entries"`
	TotalSizeBytes int64                     `json:"total_size_bytes"`
	TotalHits      int64                     `json:"total_hits"`
	ExpiredEntries int64                     `json:"expired_entries"`
	ByType         map[string]CacheTypeStats `json:"by_type"`
}

func (r *CacheRepository) Stats() (*CacheStats, error) {
	// Scan into plain structs; scanning into CacheStats directly would
	// make gorm reset the whole destination, map field included.
	var totals struct {
		TotalEntries   int64
		TotalSizeBytes int64
		TotalHits      int64
	}
	err := r.db.Raw(`
		SELECT
			COUNT(*) AS total_entries,
			COALESCE(SUM(LENGTH(data)), 0) AS total_size_bytes,
			COALESCE(SUM(hit_count), 0) AS total_hits
		FROM cache`).Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("cache totals failed: %w", err)
	}

	stats := &CacheStats{
		TotalEntries:   totals.TotalEntries,
		TotalSizeBytes: totals.TotalSizeBytes,
		TotalHits:      totals.TotalHits,
		ByType:         make(map[string]CacheTypeStats),
	}

	err = r.db.Raw(`
		SELECT COUNT(*) AS expired_entries
		FROM cache
		WHERE expires_at IS NOT NULL AND expires_at < ?`, r.now().UTC()).
		Scan(&stats.ExpiredEntries).Error
	if err != nil {
		return nil, fmt.Errorf("cache expired count failed: %w", err)
	}

	var rows []struct {
		CacheType string
		Count     int64
		Size      int64
		Hits      int64
		AvgHits   float64
	}
	err = r.db.Raw(`
		SELECT
			cache_type,
			COUNT(*) AS count,
			COALESCE(SUM(LENGTH(data)), 0) AS size,
			COALESCE(SUM(hit_count), 0) AS hits,
			COALESCE(AVG(hit_count), 0) AS avg_hits
		FROM cache
		GROUP BY cache_type`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("cache per-type stats failed: %w", err)
	}
	for _, row := range rows {
		stats.ByType[row.CacheType] = CacheTypeStats{
			Count:   row.Count,
			Size:    row.Size,
			Hits:    row.Hits,
			AvgHits: row.AvgHits,
		}
	}

	return stats, nil
}

// ListByType returns entry headers (no payload) of one type, newest
// first.
func (r *CacheRepository) ListByType(cacheType string, limit int) ([]model.CacheEntry, error) {
	q := r.db.
		Select("cache_key", "cache_type", "metadata", "expires_at", "hit_count", "created_at", "last_accessed_at").
		Where("cache_type = ?", cacheType).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []model.CacheEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list cache entries failed: %w", err)
	}
	return entries, nil
}

// CleanupLeastUsed keeps only the keepCount most engaged entries of a
// type, ranked by hit count then recency, and deletes the rest.
func (r *CacheRepository) CleanupLeastUsed(cacheType string, keepCount int) (int64, error) {
	if keepCount < 0 {
		keepCount = 0
	}

	res := r.db.Exec(`
		DELETE FROM cache
		WHERE cache_key IN (
			SELECT cache_key FROM cache
			WHERE cache_type = ?
			ORDER BY hit_count DESC, last_accessed_at DESC
			LIMIT -1 OFFSET ?
		)`, cacheType, keepCount)
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup least used failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
