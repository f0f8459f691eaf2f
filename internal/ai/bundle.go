package ai

import (
	"encoding/json"
	"strings"
)

// Bundle is the structured output of one insight extraction call,
// cached and persisted as a unit.
type Bundle struct {
	Bibliographic            map[string]string   `json:"bibliographic,omitempty"`
	Strengths                []string            `json:"strengths,omitempty"`
	Weaknesses               []string            `json:"weaknesses,omitempty"`
	MethodologicalNotes      []string            `json:"methodological_notes,omitempty"`
	StatisticalConcerns      []string            `json:"statistical_concerns,omitempty"`
	TheoreticalContributions []string            `json:"theoretical_contributions,omitempty"`
	EmpiricalFindings        []string            `json:"empirical_findings,omitempty"`
	QuestionsRaised          []string            `json:"questions_raised,omitempty"`
	Applications             []string            `json:"applications,omitempty"`
	Connections              []string            `json:"connections,omitempty"`
	Critiques                []string            `json:"critiques,omitempty"`
	SurprisingElements       []string            `json:"surprising_elements,omitempty"`
	KeyQuotes                []KeyQuote          `json:"key_quotes,omitempty"`
	CustomThemes             map[string][]string `json:"custom_themes,omitempty"`
}

type KeyQuote struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	Theme     string `json:"theme,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ByCategory flattens the bundle into category → contents for bulk
// insight persistence. Custom themes keep their own names.
func (b *Bundle) ByCategory() map[string][]string {
	grouped := map[string][]string{}
	add := func(category string, items []string) {
		if len(items) > 0 {
			grouped[category] = items
		}
	}
	add("strengths", b.Strengths)
	add("weaknesses", b.Weaknesses)
	add("methodological_notes", b.MethodologicalNotes)
	add("statistical_concerns", b.StatisticalConcerns)
	add("theoretical_contributions", b.TheoreticalContributions)
	add("empirical_findings", b.EmpiricalFindings)
	add("questions_raised", b.QuestionsRaised)
	add("applications", b.Applications)
	add("connections", b.Connections)
	add("critiques", b.Critiques)
	add("surprising_elements", b.SurprisingElements)
	for theme, items := range b.CustomThemes {
		add(theme, items)
	}
	return grouped
}

// ParseError is the explicit failure half of a structured extraction
// result. Callers must handle it; a failed parse never degrades into a
// half-empty Bundle that looks like a real one.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return "extraction response is not a parseable insight bundle"
}

const parseErrorRawLimit = 500

// ParseBundle scrapes the first JSON object out of a completion and
// decodes it. Models often wrap the object in prose or code fences, so
// everything outside the outermost braces is ignored.
func ParseBundle(raw string) (*Bundle, error) {
	candidate := raw
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidate = raw[start : end+1]
		}
	}

	var bundle Bundle
	if err := json.Unmarshal([]byte(candidate), &bundle); err != nil {
		truncated := raw
		if len(truncated) > parseErrorRawLimit {
			truncated = truncated[:parseErrorRawLimit]
		}
		return nil, &ParseError{Raw: truncated}
	}
	return &bundle, nil
}
