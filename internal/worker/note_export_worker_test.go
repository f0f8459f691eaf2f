package worker_test

import (
	"strings"
	"testing"

	"papercompanion/internal/worker"
)

func TestFormatInsightsHTML(t *testing.T) {
	note := worker.FormatInsightsHTML("A Great Paper", "sess-1", map[string][]string{
		"methodological_notes": {"small n", "no <control> group"},
		"strengths":            {"clear writing"},
	})

	if !strings.Contains(note, "<h1>Reading session insights: A Great Paper</h1>") {
		t.Fatalf("missing heading in note:\n%s", note)
	}
	if !strings.Contains(note, "<h2>Methodological Notes</h2>") {
		t.Fatalf("expected humanized category heading:\n%s", note)
	}
	if !strings.Contains(note, "<li>no &lt;control&gt; group</li>") {
		t.Fatalf("expected escaped item content:\n%s", note)
	}

	// Categories render in sorted order so repeated exports diff
	// cleanly.
	if strings.Index(note, "Methodological Notes") > strings.Index(note, "Strengths") {
		t.Fatalf("expected sorted category order:\n%s", note)
	}
}
