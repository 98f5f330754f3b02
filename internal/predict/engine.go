// Package predict scores incoming signals against behavioral history and
// decides whether to surface a suggestion, auto-apply it, or stay quiet.
// A per-session suppression map keeps repeated signals from re-triggering
// inside a short window.
package predict

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/types"
)

const (
	DefaultSuppressionWindow = 2 * time.Minute
	DefaultMinSignalChars    = 4
	DefaultMaxSuppression    = 4096

	minSuppressionWindow = time.Second
	minSuppressionCap    = 128
)

// Action is the engine's verdict for a signal.
type Action string

const (
	ActionSuggest   Action = "suggest"
	ActionAutoApply Action = "auto_apply"
	ActionIgnore    Action = "ignore"
)

// Decision is the full scored outcome for one signal.
type Decision struct {
	SessionKey       types.SessionKey  `json:"sessionKey"`
	Source           types.Source      `json:"source"`
	Signal           string            `json:"signal"`
	NormalizedSignal string            `json:"normalizedSignal"`
	PatternKey       string            `json:"patternKey"`
	PatternHash      string            `json:"patternHash"`
	Action           Action            `json:"action"`
	Suppressed       bool              `json:"suppressed"`
	Confidence       float64           `json:"confidence"`
	SimilarCount     int               `json:"similarCount"`
	AcceptRate       float64           `json:"acceptRate"`
	ReasonCodes      []string          `json:"reasonCodes"`
	Preference       *types.Preference `json:"preference"`
	LastEventTs      *int64            `json:"lastEventTs"`
}

// StatsProvider is the slice of the behavioral store the engine reads.
type StatsProvider interface {
	PatternStats(patternHash string, sessionKey types.SessionKey) (behavior.PatternStats, error)
}

// Options configure New. Zero values select defaults.
type Options struct {
	SuppressionWindow time.Duration
	MinSignalChars    int
	MaxSuppression    int
	Now               func() int64
}

// Engine scores signals. Safe for concurrent use.
type Engine struct {
	stats             StatsProvider
	now               func() int64
	suppressionWindow time.Duration
	minSignalChars    int
	maxSuppression    int

	mu          sync.Mutex
	suppression map[string]int64
}

// New creates a prediction engine backed by the given stats provider.
func New(stats StatsProvider, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	window := opts.SuppressionWindow
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	window = max(minSuppressionWindow, window)
	minChars := opts.MinSignalChars
	if minChars <= 0 {
		minChars = DefaultMinSignalChars
	}
	minChars = max(1, minChars)
	capEntries := opts.MaxSuppression
	if capEntries <= 0 {
		capEntries = DefaultMaxSuppression
	}
	capEntries = max(minSuppressionCap, capEntries)
	return &Engine{
		stats:             stats,
		now:               now,
		suppressionWindow: window,
		minSignalChars:    minChars,
		maxSuppression:    capEntries,
		suppression:       make(map[string]int64),
	}
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeSignal lowercases, trims, and collapses runs of whitespace.
func NormalizeSignal(input string) string {
	return whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), " ")
}

// PatternKey combines source and normalized signal into pattern identity.
func PatternKey(source types.Source, signal string) string {
	return string(source) + ":" + NormalizeSignal(signal)
}

// Predict scores one signal. nowMs <= 0 uses the engine clock.
func (e *Engine) Predict(sessionKey types.SessionKey, source types.Source, signal string, nowMs int64) (Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if nowMs <= 0 {
		nowMs = e.now()
	}
	e.cleanupSuppression(nowMs)

	normalized := NormalizeSignal(signal)
	patternKey := PatternKey(source, signal)
	patternHash := behavior.PatternHash("suggestion:" + patternKey)

	decision := Decision{
		SessionKey:       sessionKey,
		Source:           source,
		Signal:           signal,
		NormalizedSignal: normalized,
		PatternKey:       patternKey,
		PatternHash:      patternHash,
		Action:           ActionIgnore,
	}

	if utf8.RuneCountInString(normalized) < e.minSignalChars {
		decision.ReasonCodes = []string{"SIGNAL_TOO_SHORT"}
		return decision, nil
	}

	stats, err := e.stats.PatternStats(patternHash, sessionKey)
	if err != nil {
		return Decision{}, fmt.Errorf("pattern stats: %w", err)
	}
	positive := stats.AcceptCount + stats.ModifyCount
	acceptRate := 0.0
	if stats.FeedbackTotal > 0 {
		acceptRate = float64(positive) / float64(stats.FeedbackTotal)
	}

	reasons := []string{}
	if stats.EventCount > 0 {
		reasons = append(reasons, "SIMILAR_HISTORY")
	} else {
		reasons = append(reasons, "COLD_START")
	}
	if acceptRate >= 0.7 && stats.FeedbackTotal >= 3 {
		reasons = append(reasons, "HIGH_ACCEPT_RATE")
	}
	var preference *types.Preference
	if stats.Preference != nil {
		p := stats.Preference.Preference
		preference = &p
		reasons = append(reasons, "PREFERENCE_"+strings.ToUpper(string(p)))
	}

	decision.SimilarCount = stats.EventCount
	decision.AcceptRate = acceptRate
	decision.Preference = preference
	decision.LastEventTs = stats.LastEventTs

	supKey := suppressionKey(sessionKey, patternHash)
	if suggestedAt, ok := e.suppression[supKey]; ok && nowMs-suggestedAt <= e.suppressionWindow.Milliseconds() {
		decision.Suppressed = true
		decision.ReasonCodes = append(reasons, "SUPPRESSED_RECENT_SIGNAL")
		return decision, nil
	}

	action := resolveAction(stats.EventCount, acceptRate, preference)
	confidence := 0.2 + min(0.35, float64(stats.EventCount)*0.04) + clamp(acceptRate, 0, 1)*0.4
	if action == ActionAutoApply {
		confidence += 0.1
	}
	decision.Action = action
	decision.Confidence = clamp(confidence, 0, 0.95)
	decision.ReasonCodes = reasons

	if action != ActionIgnore {
		e.suppression[supKey] = nowMs
	}
	return decision, nil
}

// RegisterFeedback adjusts suppression after explicit user feedback:
// negative feedback pins the suppression window, positive feedback clears
// it so the pattern may fire again immediately.
func (e *Engine) RegisterFeedback(sessionKey types.SessionKey, source types.Source, signal string, action types.FeedbackAction, nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if nowMs <= 0 {
		nowMs = e.now()
	}
	patternHash := behavior.PatternHash("suggestion:" + PatternKey(source, signal))
	supKey := suppressionKey(sessionKey, patternHash)
	if action == types.FeedbackDismiss || action == types.FeedbackIgnore {
		e.suppression[supKey] = nowMs
		return
	}
	delete(e.suppression, supKey)
}

func suppressionKey(sessionKey types.SessionKey, patternHash string) string {
	return string(sessionKey) + ":" + patternHash
}

func (e *Engine) cleanupSuppression(nowMs int64) {
	windowMs := e.suppressionWindow.Milliseconds()
	for key, suggestedAt := range e.suppression {
		if nowMs-suggestedAt > windowMs {
			delete(e.suppression, key)
		}
	}
	if len(e.suppression) <= e.maxSuppression {
		return
	}
	type record struct {
		key         string
		suggestedAt int64
	}
	ordered := make([]record, 0, len(e.suppression))
	for key, suggestedAt := range e.suppression {
		ordered = append(ordered, record{key, suggestedAt})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].suggestedAt < ordered[j].suggestedAt })
	for _, rec := range ordered[:len(ordered)-e.maxSuppression] {
		delete(e.suppression, rec.key)
	}
}

func resolveAction(similarCount int, acceptRate float64, preference *types.Preference) Action {
	if preference != nil {
		if *preference == types.PreferenceIgnore {
			return ActionIgnore
		}
		if *preference == types.PreferenceAutoApply {
			return ActionAutoApply
		}
	}
	if similarCount >= 5 && acceptRate >= 0.8 {
		return ActionAutoApply
	}
	return ActionSuggest
}

func clamp(value, lo, hi float64) float64 {
	return min(hi, max(lo, value))
}
