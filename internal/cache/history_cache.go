// Package cache holds the redis layer in front of hot read paths. It
// is a throughput aid only; the SQLite store stays the source of truth
// and every entry here can be lost without consequence.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"papercompanion/internal/model"
)

// RecentHistoryCache keeps each session's recent non-summary messages
// so prompt building does not hit SQLite on every question.
type RecentHistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
}

func NewRecentHistoryCache(client *redisv9.Client, historyTTL time.Duration) *RecentHistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	return &RecentHistoryCache{
		client:     client,
		historyTTL: historyTTL,
	}
}

func (c *RecentHistoryCache) GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *RecentHistoryCache) SetHistory(ctx context.Context, sessionID string, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(sessionID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *RecentHistoryCache) DeleteHistory(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *RecentHistoryCache) historyKey(sessionID string) string {
	return "paper:session:history:" + sessionID
}
