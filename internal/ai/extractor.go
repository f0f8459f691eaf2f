package ai

import (
	"context"
	"fmt"
)

// ExtractionInput carries the formatted session history the extraction
// prompt is built from. The caller owns the formatting; this client
// only wraps the LLM round trip and the structured parse.
type ExtractionInput struct {
	Conversation     string
	FlaggedExchanges string
	Highlights       string
	ExchangeCount    int
}

// InsightExtractor turns a session's history into a structured insight
// Bundle via the chat completion API.
type InsightExtractor struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewInsightExtractor(client *OpenAICompatibleClient, cfg ChatConfig) *InsightExtractor {
	return &InsightExtractor{client: client, cfg: cfg}
}

const extractionPromptTemplate = `Based on our conversation about this paper, extract insights and organize them THEMATICALLY.

CONVERSATION (%d exchanges):
%s

FLAGGED EXCHANGES (these are especially important):
%s

HIGHLIGHTS FROM READING:
%s

Provide a JSON object with these keys:
- bibliographic: {title, authors, journal, year, doi} when mentioned
- strengths, weaknesses, methodological_notes, statistical_concerns,
  theoretical_contributions, empirical_findings, questions_raised,
  applications, connections, critiques, surprising_elements:
  each a list of strings from what we actually discussed
- key_quotes: the 3-5 most insightful exchanges, each as
  {"user": ..., "assistant": ..., "theme": ..., "note": ...}
- custom_themes: recurring session-specific themes that fit nowhere
  above, as {"theme_name": ["insight", ...]}

Focus especially on the FLAGGED exchanges.
Provide ONLY the JSON object, no additional text.`

// ExtractInsights runs the extraction call and parses the response.
// A response without a decodable JSON object fails with *ParseError.
func (e *InsightExtractor) ExtractInsights(ctx context.Context, input ExtractionInput) (*Bundle, Usage, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate,
		input.ExchangeCount, input.Conversation, input.FlaggedExchanges, input.Highlights)

	raw, usage, err := e.client.Complete(ctx, e.cfg, []ChatMessage{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, Usage{}, fmt.Errorf("extraction call failed: %w", err)
	}

	bundle, err := ParseBundle(raw)
	if err != nil {
		return nil, usage, err
	}
	return bundle, usage, nil
}
