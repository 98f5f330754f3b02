// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type EventID string
type SuggestionID string
type JournalID string
type GroupID string
type SnapshotID string
type RunID string
type DeviceID string

func NewEventID() EventID {
	return EventID("evt-" + uuid.New().String())
}

func NewSuggestionID() SuggestionID {
	return SuggestionID("sug-" + uuid.New().String())
}

func NewJournalID() JournalID {
	return JournalID("undo-" + uuid.New().String())
}

func NewGroupID() GroupID {
	return GroupID("undo-group-" + uuid.New().String())
}

func NewSnapshotID() SnapshotID {
	return SnapshotID("undo-snap-" + uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
