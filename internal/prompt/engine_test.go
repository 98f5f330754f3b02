package prompt

import (
	"strings"
	"testing"

	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/types"
)

func textEvent(ts int64, source types.Source, text string) types.ContextEvent {
	return types.ContextEvent{
		Version:    types.ContextEventVersion,
		EventID:    types.NewEventID(),
		Ts:         ts,
		SessionKey: "desktop:main",
		Source:     source,
		Payload:    payload.Object(map[string]payload.Value{"text": payload.String(text)}),
	}
}

func TestBuildPromptChronologicalOrder(t *testing.T) {
	engine := New("gpt-4", 4096, 512)
	events := []types.ContextEvent{
		textEvent(1_000, types.SourceTerminal, "git status"),
		textEvent(2_000, types.SourceClipboard, "copied snippet"),
		textEvent(3_000, types.SourceEditor, "func main"),
	}

	result := engine.BuildPrompt("desktop:main", events)
	if result.IncludedEvents != 3 || result.Truncated {
		t.Fatalf("expected all events included, got %+v", result)
	}
	first := strings.Index(result.Text, "git status")
	second := strings.Index(result.Text, "copied snippet")
	third := strings.Index(result.Text, "func main")
	if first < 0 || second < 0 || third < 0 || !(first < second && second < third) {
		t.Errorf("events out of order:\n%s", result.Text)
	}
	if !strings.HasPrefix(result.Text, "Ambient context for session desktop:main:") {
		t.Errorf("missing header:\n%s", result.Text)
	}
}

func TestBuildPromptKeepsNewestUnderTightBudget(t *testing.T) {
	engine := New("gpt-4", 60, 10)
	var events []types.ContextEvent
	for i := int64(0); i < 20; i++ {
		events = append(events, textEvent(1_000+i, types.SourceTerminal, strings.Repeat("word ", 8)))
	}

	result := engine.BuildPrompt("desktop:main", events)
	if !result.Truncated || result.IncludedEvents == 0 || result.IncludedEvents >= 20 {
		t.Fatalf("expected partial inclusion, got %+v", result)
	}
	if result.TotalEvents != 20 {
		t.Errorf("expected total 20, got %d", result.TotalEvents)
	}
	if result.TokenCount > 50 {
		t.Errorf("token count %d exceeds input budget", result.TokenCount)
	}
	// The survivors must be the newest events.
	lines := strings.Split(result.Text, "\n")
	if len(lines) != result.IncludedEvents+1 {
		t.Fatalf("expected %d lines, got %d", result.IncludedEvents+1, len(lines))
	}
}

func TestBuildPromptRedactionMarker(t *testing.T) {
	engine := New("unknown-model", 4096, 512)
	event := textEvent(1_000, types.SourceClipboard, "sanitized")
	event.Redaction = types.Redaction{Applied: true, Level: types.RedactionMask, Reasons: []string{"assignment"}}

	result := engine.BuildPrompt("desktop:main", []types.ContextEvent{event})
	if !strings.Contains(result.Text, "(redacted)") {
		t.Errorf("expected redaction marker:\n%s", result.Text)
	}
}

func TestBuildPromptApproximateCountsWithoutTokenizer(t *testing.T) {
	// No tokenizer, as on a machine that never fetched the BPE data.
	engine := &Engine{maxTokens: 4096, reserve: 512}
	if got := engine.countTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2 approximate tokens, got %d", got)
	}
	if got := engine.countTokens("abcdefghi"); got != 3 {
		t.Errorf("expected rounding up to 3 tokens, got %d", got)
	}

	result := engine.BuildPrompt("desktop:main", []types.ContextEvent{
		textEvent(1_000, types.SourceTerminal, "git status"),
	})
	if result.IncludedEvents != 1 || result.TokenCount <= 0 {
		t.Fatalf("expected event included with a token count, got %+v", result)
	}
}

func TestBuildPromptEmptyRing(t *testing.T) {
	engine := New("gpt-4", 4096, 512)
	result := engine.BuildPrompt("desktop:main", nil)
	if result.IncludedEvents != 0 || result.Truncated {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Text != "Ambient context for session desktop:main:" {
		t.Errorf("unexpected text: %q", result.Text)
	}
}
