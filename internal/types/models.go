// internal/types/models.go
package types

import "github.com/user/neuroclaw/internal/payload"

// Wire-format version tags carried by context and suggestion envelopes.
const (
	ContextEventVersion       = "context.event.v1"
	SuggestionCardVersion     = "suggestion.card.v1"
	SuggestionFeedbackVersion = "suggestion.feedback.v1"
)

// Source identifies which desktop sensor produced a context event.
type Source string

const (
	SourceClipboard    Source = "clipboard"
	SourceActiveWindow Source = "active_window"
	SourceTerminal     Source = "terminal"
	SourceFS           Source = "fs"
	SourceEditor       Source = "editor"
)

// Sources lists every valid source in a stable order.
var Sources = []Source{SourceClipboard, SourceActiveWindow, SourceTerminal, SourceFS, SourceEditor}

func (s Source) Valid() bool {
	switch s {
	case SourceClipboard, SourceActiveWindow, SourceTerminal, SourceFS, SourceEditor:
		return true
	}
	return false
}

// RedactionLevel is the strongest transformation applied to a payload.
// Levels order none < mask < hash < block.
type RedactionLevel string

const (
	RedactionNone  RedactionLevel = "none"
	RedactionMask  RedactionLevel = "mask"
	RedactionHash  RedactionLevel = "hash"
	RedactionBlock RedactionLevel = "block"
)

// Rank returns the severity order of the level. Unknown levels rank lowest.
func (l RedactionLevel) Rank() int {
	switch l {
	case RedactionMask:
		return 1
	case RedactionHash:
		return 2
	case RedactionBlock:
		return 3
	}
	return 0
}

// MaxLevel returns the stronger of two redaction levels.
func MaxLevel(a, b RedactionLevel) RedactionLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type Redaction struct {
	Applied bool           `json:"applied"`
	Level   RedactionLevel `json:"level"`
	Reasons []string       `json:"reasons"`
}

type Bounds struct {
	Bytes   int  `json:"bytes"`
	Dropped bool `json:"dropped"`
}

// ContextEvent is one redacted observation from a desktop sensor.
type ContextEvent struct {
	Version    string        `json:"version"`
	EventID    EventID       `json:"eventId"`
	Ts         int64         `json:"ts"`
	SessionKey SessionKey    `json:"sessionKey"`
	Source     Source        `json:"source"`
	Payload    payload.Value `json:"payload"`
	Redaction  Redaction     `json:"redaction"`
	Bounds     Bounds        `json:"bounds"`
}

// CardMode selects how aggressively a suggestion may act.
type CardMode string

const (
	ModeSafe CardMode = "safe"
	ModeFlow CardMode = "flow"
)

func (m CardMode) Valid() bool {
	return m == ModeSafe || m == ModeFlow
}

// SuggestionAction is a user-visible action on a card.
type SuggestionAction string

const (
	ActionApply   SuggestionAction = "apply"
	ActionDismiss SuggestionAction = "dismiss"
	ActionUndo    SuggestionAction = "undo"
	ActionExplain SuggestionAction = "explain"
)

func (a SuggestionAction) Valid() bool {
	switch a {
	case ActionApply, ActionDismiss, ActionUndo, ActionExplain:
		return true
	}
	return false
}

// FeedbackAction is the behavioral signal recorded for a suggestion.
type FeedbackAction string

const (
	FeedbackAccept  FeedbackAction = "accept"
	FeedbackDismiss FeedbackAction = "dismiss"
	FeedbackModify  FeedbackAction = "modify"
	FeedbackIgnore  FeedbackAction = "ignore"
)

func (a FeedbackAction) Valid() bool {
	switch a {
	case FeedbackAccept, FeedbackDismiss, FeedbackModify, FeedbackIgnore:
		return true
	}
	return false
}

// Preference is a learned per-pattern disposition.
type Preference string

const (
	PreferenceAutoApply Preference = "auto_apply"
	PreferenceSuggest   Preference = "suggest"
	PreferenceIgnore    Preference = "ignore"
)

func (p Preference) Valid() bool {
	switch p {
	case PreferenceAutoApply, PreferenceSuggest, PreferenceIgnore:
		return true
	}
	return false
}

// SuggestionCard is the wire form of a proactive suggestion.
type SuggestionCard struct {
	Version      string             `json:"version"`
	SuggestionID SuggestionID       `json:"suggestionId"`
	SessionKey   SessionKey         `json:"sessionKey"`
	Confidence   float64            `json:"confidence"`
	Mode         CardMode           `json:"mode"`
	Actions      []SuggestionAction `json:"actions"`
	ExpiresAt    int64              `json:"expiresAt"`
}

// SuggestionFeedback is the behavioral record emitted after a card action.
type SuggestionFeedback struct {
	Version      string         `json:"version"`
	SuggestionID SuggestionID   `json:"suggestionId"`
	Action       FeedbackAction `json:"action"`
	Ts           int64          `json:"ts"`
	SessionKey   SessionKey     `json:"sessionKey"`
}

// UndoSnapshot captures a reversible unit of an applied suggestion.
type UndoSnapshot struct {
	SnapshotID SnapshotID    `json:"snapshotId"`
	Kind       string        `json:"kind"`
	Target     string        `json:"target"`
	Before     payload.Value `json:"before,omitempty"`
	After      payload.Value `json:"after,omitempty"`
}
