// Package prompt renders a session's context ring into a token-budgeted
// plain-text block for model consumption. Selection walks newest first so
// the freshest context survives a tight budget; the rendered block itself
// stays chronological.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/neuroclaw/internal/types"
)

const (
	DefaultMaxTokens = 4096
	DefaultReserve   = 1024
)

// Result is one rendered prompt block.
type Result struct {
	SessionKey     types.SessionKey `json:"sessionKey"`
	Text           string           `json:"text"`
	TokenCount     int              `json:"tokenCount"`
	IncludedEvents int              `json:"includedEvents"`
	TotalEvents    int              `json:"totalEvents"`
	Truncated      bool             `json:"truncated"`
}

// Engine renders prompts with a fixed tokenizer and budget.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates an engine. model selects the tokenizer; unknown models fall
// back to cl100k_base. The tokenizer data is fetched lazily by the
// library, so a machine that has never been online falls back to
// approximate counting rather than failing. maxTokens is the context
// window, reserve is held back for the model's response.
func New(model string, maxTokens, reserve int) *Engine {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("tokenizer unavailable, using approximate token counts", "model", model, "error", err)
		enc = nil
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if reserve < 0 || reserve >= maxTokens {
		reserve = DefaultReserve
		if reserve >= maxTokens {
			reserve = maxTokens / 4
		}
	}
	return &Engine{tokenizer: enc, maxTokens: maxTokens, reserve: reserve}
}

func (e *Engine) countTokens(text string) int {
	if e.tokenizer == nil {
		// Rough BPE average of 4 bytes per token, rounded up.
		return (len(text) + 3) / 4
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}

func renderEvent(event types.ContextEvent) string {
	ts := time.UnixMilli(event.Ts).UTC().Format(time.RFC3339)
	encoded, err := event.Payload.MarshalJSON()
	if err != nil {
		encoded = []byte("{}")
	}
	line := fmt.Sprintf("[%s] %s: %s", ts, event.Source, encoded)
	if event.Redaction.Applied {
		line += " (redacted)"
	}
	return line
}

// BuildPrompt renders events into a budgeted block. events must be in
// chronological order, as the ring snapshot returns them.
func (e *Engine) BuildPrompt(sessionKey types.SessionKey, events []types.ContextEvent) Result {
	header := fmt.Sprintf("Ambient context for session %s:", sessionKey)
	budget := e.maxTokens - e.reserve
	used := e.countTokens(header)

	// Walk newest first, keep whatever fits, then restore order.
	var kept []string
	for i := len(events) - 1; i >= 0; i-- {
		line := renderEvent(events[i])
		lineTokens := e.countTokens(line) + 1
		if used+lineTokens > budget {
			break
		}
		kept = append(kept, line)
		used += lineTokens
	}
	for left, right := 0, len(kept)-1; left < right; left, right = left+1, right-1 {
		kept[left], kept[right] = kept[right], kept[left]
	}

	var b strings.Builder
	b.WriteString(header)
	for _, line := range kept {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return Result{
		SessionKey:     sessionKey,
		Text:           b.String(),
		TokenCount:     used,
		IncludedEvents: len(kept),
		TotalEvents:    len(events),
		Truncated:      len(kept) < len(events),
	}
}
