// internal/suggest/journal.go
package suggest

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/neuroclaw/internal/types"
)

// JournalStatus tracks an entry through its lifecycle.
type JournalStatus string

const (
	StatusApplied JournalStatus = "applied"
	StatusUndone  JournalStatus = "undone"
	StatusExpired JournalStatus = "expired"
)

// JournalEntry records one applied suggestion with its revert snapshots.
type JournalEntry struct {
	JournalID    types.JournalID      `json:"journalId"`
	GroupID      types.GroupID        `json:"groupId"`
	SessionKey   types.SessionKey     `json:"sessionKey"`
	SuggestionID types.SuggestionID   `json:"suggestionId"`
	Mode         types.CardMode       `json:"mode"`
	CreatedAtMs  int64                `json:"createdAtMs"`
	ExpiresAtMs  int64                `json:"expiresAtMs"`
	UndoneAtMs   *int64               `json:"undoneAtMs"`
	Status       JournalStatus        `json:"status"`
	Snapshots    []types.UndoSnapshot `json:"snapshots"`
}

// RecordParams describe an apply to journal. GroupID is generated when
// empty; snapshot kinds and targets get placeholder values when blank.
type RecordParams struct {
	SessionKey   types.SessionKey
	SuggestionID types.SuggestionID
	Mode         types.CardMode
	GroupID      types.GroupID
	Snapshots    []types.UndoSnapshot
}

// Journal is the per-session undo log. Safe for concurrent use.
type Journal struct {
	mu         sync.Mutex
	undoWindow time.Duration
	now        func() int64
	bySession  map[types.SessionKey][]*JournalEntry
}

// JournalOptions configure NewJournal. Zero values select defaults.
type JournalOptions struct {
	UndoWindow time.Duration
	Now        func() int64
}

func NewJournal(opts JournalOptions) *Journal {
	window := opts.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Journal{
		undoWindow: window,
		now:        now,
		bySession:  make(map[types.SessionKey][]*JournalEntry),
	}
}

func normalizeSnapshots(snapshots []types.UndoSnapshot) []types.UndoSnapshot {
	normalized := make([]types.UndoSnapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if strings.TrimSpace(string(snapshot.SnapshotID)) == "" {
			snapshot.SnapshotID = types.NewSnapshotID()
		}
		if strings.TrimSpace(snapshot.Kind) == "" {
			snapshot.Kind = "unknown"
		}
		if strings.TrimSpace(snapshot.Target) == "" {
			snapshot.Target = "unknown-target"
		}
		normalized = append(normalized, snapshot)
	}
	return normalized
}

func (j *Journal) expire(sessionKey types.SessionKey, nowMs int64) {
	for _, entry := range j.bySession[sessionKey] {
		if entry.Status != StatusApplied {
			continue
		}
		if entry.ExpiresAtMs < nowMs {
			entry.Status = StatusExpired
		}
	}
}

// RecordApply journals an applied suggestion. nowMs <= 0 uses the journal
// clock.
func (j *Journal) RecordApply(params RecordParams, nowMs int64) JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if nowMs <= 0 {
		nowMs = j.now()
	}
	j.expire(params.SessionKey, nowMs)
	groupID := params.GroupID
	if strings.TrimSpace(string(groupID)) == "" {
		groupID = types.NewGroupID()
	}
	entry := &JournalEntry{
		JournalID:    types.NewJournalID(),
		GroupID:      groupID,
		SessionKey:   params.SessionKey,
		SuggestionID: params.SuggestionID,
		Mode:         params.Mode,
		CreatedAtMs:  nowMs,
		ExpiresAtMs:  nowMs + j.undoWindow.Milliseconds(),
		Status:       StatusApplied,
		Snapshots:    normalizeSnapshots(params.Snapshots),
	}
	j.bySession[params.SessionKey] = append(j.bySession[params.SessionKey], entry)
	return *entry
}

// UndoLatestBySuggestion flips the newest live entry for the suggestion to
// undone and returns it, or nil when nothing is undoable.
func (j *Journal) UndoLatestBySuggestion(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) *JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if nowMs <= 0 {
		nowMs = j.now()
	}
	j.expire(sessionKey, nowMs)
	entries := j.bySession[sessionKey]
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.SuggestionID != suggestionID {
			continue
		}
		if entry.Status != StatusApplied || entry.ExpiresAtMs < nowMs {
			continue
		}
		entry.Status = StatusUndone
		undoneAt := nowMs
		entry.UndoneAtMs = &undoneAt
		result := *entry
		return &result
	}
	return nil
}

// ListBySuggestion returns the suggestion's entries newest first.
func (j *Journal) ListBySuggestion(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) []JournalEntry {
	return j.list(sessionKey, nowMs, func(entry *JournalEntry) bool {
		return entry.SuggestionID == suggestionID
	})
}

// ListByGroup returns the group's entries newest first.
func (j *Journal) ListByGroup(sessionKey types.SessionKey, groupID types.GroupID, nowMs int64) []JournalEntry {
	return j.list(sessionKey, nowMs, func(entry *JournalEntry) bool {
		return entry.GroupID == groupID
	})
}

func (j *Journal) list(sessionKey types.SessionKey, nowMs int64, match func(*JournalEntry) bool) []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if nowMs <= 0 {
		nowMs = j.now()
	}
	j.expire(sessionKey, nowMs)
	result := []JournalEntry{}
	for _, entry := range j.bySession[sessionKey] {
		if match(entry) {
			result = append(result, *entry)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAtMs > result[k].CreatedAtMs })
	return result
}
