package repository_test

import (
	"bytes"
	"testing"
	"time"

	"papercompanion/internal/repository"
)

func TestCacheSetGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCacheRepository(db)

	if err := repo.Set("k1", []byte("payload"), "test", 0, map[string]interface{}{"origin": "unit"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	data, found, err := repo.Get("k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found || !bytes.Equal(data, []byte("payload")) {
		t.Fatalf("expected payload hit, got found=%v data=%q", found, data)
	}

	_, found, err = repo.Get("missing")
	if err != nil {
		t.Fatalf("get missing failed: %v", err)
	}
	if found {
		t.Fatal("expected miss for unknown key")
	}
}

func TestCacheExpiryIsLazy(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewCacheRepository(db).WithClock(func() time.Time { return now })

	if err := repo.Set("expiring", []byte("x"), "test", time.Minute, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Still live just before the deadline.
	now = now.Add(59 * time.Second)
	if _, found, err := repo.Get("expiring"); err != nil || !found {
		t.Fatalf("expected hit before expiry, found=%v err=%v", found, err)
	}

	// Past the deadline the read deletes the entry and reports a miss.
	now = now.Add(2 * time.Second)
	if _, found, err := repo.Get("expiring"); err != nil || found {
		t.Fatalf("expected miss after expiry, found=%v err=%v", found, err)
	}

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM cache").Scan(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected expired entry deleted, found %d rows", count)
	}
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewCacheRepository(db).WithClock(func() time.Time { return now })

	if err := repo.Set("forever", []byte("x"), "test", 0, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	now = now.Add(1000 * time.Hour)
	if _, found, err := repo.Get("forever"); err != nil || !found {
		t.Fatalf("expected zero-ttl entry to survive, found=%v err=%v", found, err)
	}
}

func TestCacheSetReplacesAndResetsHits(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCacheRepository(db)

	if err := repo.Set("k", []byte("v1"), "test", 0, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, _, err := repo.Get("k"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := repo.Set("k", []byte("v2"), "test", 0, nil); err != nil {
		t.Fatalf("re-set failed: %v", err)
	}

	data, found, err := repo.Get("k")
	if err != nil || !found {
		t.Fatalf("get after replace failed: %v", err)
	}
	if !bytes.Equal(data, []byte("v2")) {
		t.Fatalf("expected replaced payload, got %q", data)
	}

	var hits int64
	if err := db.Raw("SELECT hit_count FROM cache WHERE cache_key = 'k'").Scan(&hits).Error; err != nil {
		t.Fatalf("read hit count failed: %v", err)
	}
	// One hit after the replace; the pre-replace hit is gone.
	if hits != 1 {
		t.Fatalf("expected hit counter reset on replace, got %d", hits)
	}
}

func TestCacheClearByType(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCacheRepository(db)

	mustSet := func(key, cacheType string) {
		t.Helper()
		if err := repo.Set(key, []byte("x"), cacheType, 0, nil); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}
	mustSet("a1", "alpha")
	mustSet("a2", "alpha")
	mustSet("b1", "beta")

	removed, err := repo.Clear("alpha")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	if _, found, _ := repo.Get("b1"); !found {
		t.Fatal("expected other type to survive clear")
	}

	removed, err = repo.Clear("")
	if err != nil {
		t.Fatalf("clear all failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed on full clear, got %d", removed)
	}
}

func TestCacheCleanupLeastUsed(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCacheRepository(db)

	hit := func(key string, times int) {
		t.Helper()
		for i := 0; i < times; i++ {
			if _, _, err := repo.Get(key); err != nil {
				t.Fatalf("hit %s failed: %v", key, err)
			}
		}
	}
	for _, key := range []string{"hot", "cold", "warm"} {
		if err := repo.Set(key, []byte("x"), "bundle", 0, nil); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}
	hit("hot", 5)
	hit("cold", 1)
	hit("warm", 3)

	removed, err := repo.CleanupLeastUsed("bundle", 2)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, found, _ := repo.Get("cold"); found {
		t.Fatal("expected least used entry evicted")
	}
	if _, found, _ := repo.Get("hot"); !found {
		t.Fatal("expected most used entry kept")
	}
	if _, found, _ := repo.Get("warm"); !found {
		t.Fatal("expected second most used entry kept")
	}
}

func TestCacheStats(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewCacheRepository(db).WithClock(func() time.Time { return now })

	if err := repo.Set("live", []byte("1234"), "alpha", time.Hour, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := repo.Set("dead", []byte("12"), "beta", time.Minute, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, _, err := repo.Get("live"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	now = now.Add(30 * time.Minute)

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalEntries != 2 || stats.TotalSizeBytes != 6 || stats.TotalHits != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.ExpiredEntries != 1 {
		t.Fatalf("expected 1 expired entry, got %d", stats.ExpiredEntries)
	}
	if len(stats.ByType) != 2 {
		t.Fatalf("expected per-type stats for both types, got %+v", stats.ByType)
	}
	if stats.ByType["alpha"].Count != 1 || stats.ByType["alpha"].Hits != 1 {
		t.Fatalf("unexpected per-type stats: %+v", stats.ByType)
	}
	if stats.ByType["beta"].Count != 1 || stats.ByType["beta"].Hits != 0 {
		t.Fatalf("unexpected per-type stats: %+v", stats.ByType)
	}
}

func TestCacheInvalidateExpired(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := repository.NewCacheRepository(db).WithClock(func() time.Time { return now })

	if err := repo.Set("short", []byte("x"), "test", time.Minute, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := repo.Set("long", []byte("x"), "test", time.Hour, nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	now = now.Add(10 * time.Minute)
	removed, err := repo.InvalidateExpired()
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, found, _ := repo.Get("long"); !found {
		t.Fatal("expected unexpired entry to survive sweep")
	}
}
