package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"papercompanion/internal/ai"
	"papercompanion/internal/model"
	"papercompanion/internal/repository"
)

const (
	insightCacheType = "session_insights"

	// Assistant answers are truncated when formatting history for the
	// extraction prompt.
	conversationExcerptLimit = 500
	conversationPromptLimit  = 10000
)

// Extractor is the external extraction collaborator. The service
// treats the call as opaque apart from the exchange-count bookkeeping
// it wraps around it.
type Extractor interface {
	ExtractInsights(ctx context.Context, input ai.ExtractionInput) (*ai.Bundle, ai.Usage, error)
}

// InsightService decides whether a previously extracted bundle is
// still valid for a session or must be regenerated. Staleness is keyed
// on the session's exchange count: monotonic, cheap to read, and it
// tracks exactly "has new conversation happened". A known limitation
// carried over deliberately: flagging an old exchange after a bundle
// was cached does not invalidate a Fresh bundle.
type InsightService struct {
	sessions  *repository.SessionRepository
	cache     *repository.CacheRepository
	extractor Extractor
}

func NewInsightService(
	sessions *repository.SessionRepository,
	cache *repository.CacheRepository,
	extractor Extractor,
) *InsightService {
	return &InsightService{
		sessions:  sessions,
		cache:     cache,
		extractor: extractor,
	}
}

// InsightResult is a bundle plus the bookkeeping a caller needs to
// know how it was produced.
type InsightResult struct {
	SessionID      string     `json:"session_id"`
	Bundle         *ai.Bundle `json:"bundle"`
	ExchangeCount  int        `json:"exchange_count"`
	FromCache      bool       `json:"from_cache"`
	NoNewExchanges bool       `json:"no_new_exchanges"`
	ExtractedAt    time.Time  `json:"extracted_at"`
	Usage          ai.Usage   `json:"usage"`
}

// bundleEnvelope is the cached representation: the bundle together
// with the exchange count it was extracted at.
type bundleEnvelope struct {
	ExchangeCount int        `json:"exchange_count"`
	ExtractedAt   time.Time  `json:"extracted_at"`
	Bundle        *ai.Bundle `json:"bundle"`
}

func insightCacheKey(sessionID string) string {
	return "session_insights:" + sessionID
}

// GetInsights implements the Absent/Fresh/Stale decision:
//
//   - Fresh (cached count == current count) and not forced: the cached
//     bundle comes back flagged NoNewExchanges.
//   - cacheOnly: the cached bundle comes back as-is even when Stale;
//     Absent fails with ErrNoCachedInsights. Extraction never runs.
//   - otherwise: extract, persist the new bundle keyed by the current
//     exchange count, and append the insight rows to the session.
//
// Persistence is an upsert: concurrent extractions at the same count
// may waste a call, but the last writer simply replaces the bundle and
// the cache is never corrupted.
func (s *InsightService) GetInsights(ctx context.Context, sessionID string, force, cacheOnly bool) (*InsightResult, error) {
	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	currentCount := session.TotalExchanges

	cached := s.readCachedBundle(sessionID)

	if cached != nil && !force && cached.ExchangeCount >= currentCount {
		return &InsightResult{
			SessionID:      sessionID,
			Bundle:         cached.Bundle,
			ExchangeCount:  cached.ExchangeCount,
			FromCache:      true,
			NoNewExchanges: true,
			ExtractedAt:    cached.ExtractedAt,
		}, nil
	}

	if cacheOnly {
		if cached == nil {
			return nil, fmt.Errorf("session %q: %w", sessionID, ErrNoCachedInsights)
		}
		return &InsightResult{
			SessionID:      sessionID,
			Bundle:         cached.Bundle,
			ExchangeCount:  cached.ExchangeCount,
			FromCache:      true,
			NoNewExchanges: cached.ExchangeCount >= currentCount,
			ExtractedAt:    cached.ExtractedAt,
		}, nil
	}

	input, err := s.buildExtractionInput(sessionID, currentCount)
	if err != nil {
		return nil, err
	}

	bundle, usage, err := s.extractor.ExtractInsights(ctx, *input)
	if err != nil {
		var parseErr *ai.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("session %q: %w", sessionID, parseErr)
		}
		return nil, err
	}

	extractedAt := time.Now().UTC()
	if err := s.persistBundle(sessionID, currentCount, extractedAt, bundle); err != nil {
		return nil, err
	}

	return &InsightResult{
		SessionID:     sessionID,
		Bundle:        bundle,
		ExchangeCount: currentCount,
		ExtractedAt:   extractedAt,
		Usage:         usage,
	}, nil
}

// readCachedBundle returns nil for Absent. A cached payload that no
// longer decodes is treated as Absent rather than surfaced; the next
// extraction overwrites it.
func (s *InsightService) readCachedBundle(sessionID string) *bundleEnvelope {
	data, ok, err := s.cache.Get(insightCacheKey(sessionID))
	if err != nil {
		log.Printf("read cached bundle for session %s failed: %v", sessionID, err)
		return nil
	}
	if !ok {
		return nil
	}

	var envelope bundleEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Bundle == nil {
		log.Printf("cached bundle for session %s is undecodable, treating as absent", sessionID)
		return nil
	}
	return &envelope
}

func (s *InsightService) persistBundle(sessionID string, exchangeCount int, extractedAt time.Time, bundle *ai.Bundle) error {
	envelope := bundleEnvelope{
		ExchangeCount: exchangeCount,
		ExtractedAt:   extractedAt,
		Bundle:        bundle,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal bundle failed: %w", err)
	}

	err = s.cache.Set(insightCacheKey(sessionID), payload, insightCacheType, 0, map[string]interface{}{
		"session_id":     sessionID,
		"exchange_count": exchangeCount,
	})
	if err != nil {
		return err
	}

	if _, err := s.sessions.AddInsightsBulk(sessionID, bundle.ByCategory(), false); err != nil {
		return err
	}
	return nil
}

func (s *InsightService) buildExtractionInput(sessionID string, exchangeCount int) (*ai.ExtractionInput, error) {
	messages, err := s.sessions.GetMessages(sessionID, false, 0, 0)
	if err != nil {
		return nil, err
	}
	flags, err := s.sessions.GetFlags(sessionID)
	if err != nil {
		return nil, err
	}

	return &ai.ExtractionInput{
		Conversation:     formatConversation(messages),
		FlaggedExchanges: formatFlaggedExchanges(flags),
		Highlights:       formatHighlights(flags),
		ExchangeCount:    exchangeCount,
	}, nil
}

// formatConversation pairs user questions with assistant answers,
// truncating long answers, and caps the total prompt contribution.
func formatConversation(messages []model.Message) string {
	var pairs []string
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role != model.RoleUser || messages[i+1].Role != model.RoleAssistant {
			continue
		}
		answer := messages[i+1].Content
		if len(answer) > conversationExcerptLimit {
			answer = answer[:conversationExcerptLimit] + "..."
		}
		pairs = append(pairs, fmt.Sprintf("User: %s\nAssistant: %s", messages[i].Content, answer))
		i++
	}

	formatted := strings.Join(pairs, "\n\n")
	if len(formatted) > conversationPromptLimit {
		formatted = formatted[:conversationPromptLimit]
	}
	return formatted
}

func formatFlaggedExchanges(flags []model.FlaggedExchange) string {
	if len(flags) == 0 {
		return "(No flagged exchanges)"
	}

	var parts []string
	for _, flag := range flags {
		note := ""
		if flag.Note != "" {
			note = "\nNote: " + flag.Note
		}
		parts = append(parts, fmt.Sprintf("[FLAGGED at %s]%s\nUser: %s\nAssistant: %s",
			flag.CreatedAt.Format(time.RFC3339), note, flag.UserContent, flag.AssistantContent))
	}
	return strings.Join(parts, "\n\n")
}

// formatHighlights feeds the prompt's highlight section from flag
// notes; the store keeps no separate highlight entity.
func formatHighlights(flags []model.FlaggedExchange) string {
	var lines []string
	for _, flag := range flags {
		if flag.Note != "" {
			lines = append(lines, "- "+flag.Note)
		}
	}
	if len(lines) == 0 {
		return "(No highlights)"
	}
	return strings.Join(lines, "\n")
}
