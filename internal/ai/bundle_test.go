package ai_test

import (
	"errors"
	"strings"
	"testing"

	"papercompanion/internal/ai"
)

func TestParseBundleScrapesWrappedJSON(t *testing.T) {
	raw := "Here are the insights:\n```json\n" +
		`{"strengths": ["clear writing"], "custom_themes": {"reproducibility": ["code released"]}}` +
		"\n```\nLet me know if you need more."

	bundle, err := ai.ParseBundle(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(bundle.Strengths) != 1 || bundle.Strengths[0] != "clear writing" {
		t.Fatalf("unexpected strengths: %+v", bundle.Strengths)
	}

	grouped := bundle.ByCategory()
	if len(grouped["reproducibility"]) != 1 {
		t.Fatalf("expected custom theme in grouping, got %+v", grouped)
	}
	if _, ok := grouped["weaknesses"]; ok {
		t.Fatal("empty categories must not appear in grouping")
	}
}

func TestParseBundleFailureReturnsParseError(t *testing.T) {
	raw := "I could not produce JSON this time. " + strings.Repeat("x", 600)

	_, err := ai.ParseBundle(raw)
	var parseErr *ai.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if len(parseErr.Raw) != 500 {
		t.Fatalf("expected raw excerpt truncated to 500 chars, got %d", len(parseErr.Raw))
	}
}

func TestParseBundleRejectsMalformedObject(t *testing.T) {
	_, err := ai.ParseBundle(`{"strengths": [unquoted]}`)
	var parseErr *ai.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for malformed object, got %v", err)
	}
}
