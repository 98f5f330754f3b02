// internal/suggest/journal_test.go
package suggest

import (
	"strings"
	"testing"

	"github.com/user/neuroclaw/internal/types"
)

func TestRecordApplyDefaults(t *testing.T) {
	journal := NewJournal(JournalOptions{})
	now := int64(1_000)

	entry := journal.RecordApply(RecordParams{
		SessionKey:   "s1",
		SuggestionID: "sug-1",
		Mode:         types.ModeSafe,
		Snapshots: []types.UndoSnapshot{
			{},
			{SnapshotID: "snap-custom", Kind: "file", Target: "/tmp/a"},
		},
	}, now)

	if !strings.HasPrefix(string(entry.JournalID), "undo-") {
		t.Errorf("unexpected journal id: %s", entry.JournalID)
	}
	if !strings.HasPrefix(string(entry.GroupID), "undo-group-") {
		t.Errorf("unexpected group id: %s", entry.GroupID)
	}
	if entry.ExpiresAtMs != now+DefaultUndoWindow.Milliseconds() {
		t.Errorf("unexpected expiry: %d", entry.ExpiresAtMs)
	}
	if entry.Status != StatusApplied {
		t.Errorf("unexpected status: %s", entry.Status)
	}
	first := entry.Snapshots[0]
	if !strings.HasPrefix(string(first.SnapshotID), "undo-snap-") || first.Kind != "unknown" || first.Target != "unknown-target" {
		t.Errorf("snapshot defaults not applied: %+v", first)
	}
	second := entry.Snapshots[1]
	if second.SnapshotID != "snap-custom" || second.Kind != "file" {
		t.Errorf("explicit snapshot mutated: %+v", second)
	}
}

func TestUndoLatestBySuggestion(t *testing.T) {
	journal := NewJournal(JournalOptions{})
	now := int64(1_000)

	journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "sug-1", Mode: types.ModeSafe}, now)
	latest := journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "sug-1", Mode: types.ModeSafe}, now+10)

	undone := journal.UndoLatestBySuggestion("s1", "sug-1", now+20)
	if undone == nil {
		t.Fatal("expected undo to find an entry")
	}
	if undone.JournalID != latest.JournalID {
		t.Error("undo picked the wrong entry")
	}
	if undone.Status != StatusUndone || undone.UndoneAtMs == nil || *undone.UndoneAtMs != now+20 {
		t.Errorf("unexpected undone entry: %+v", undone)
	}

	// The older entry is next in line.
	second := journal.UndoLatestBySuggestion("s1", "sug-1", now+30)
	if second == nil || second.JournalID == latest.JournalID {
		t.Error("expected older entry on second undo")
	}
	if journal.UndoLatestBySuggestion("s1", "sug-1", now+40) != nil {
		t.Error("expected no undoable entries left")
	}
}

func TestJournalExpiry(t *testing.T) {
	journal := NewJournal(JournalOptions{})
	now := int64(1_000)

	journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "sug-1", Mode: types.ModeFlow}, now)
	late := now + DefaultUndoWindow.Milliseconds() + 1
	if journal.UndoLatestBySuggestion("s1", "sug-1", late) != nil {
		t.Error("expired entry should not be undoable")
	}
	entries := journal.ListBySuggestion("s1", "sug-1", late)
	if len(entries) != 1 || entries[0].Status != StatusExpired {
		t.Errorf("expected expired entry, got %+v", entries)
	}
}

func TestListByGroupNewestFirst(t *testing.T) {
	journal := NewJournal(JournalOptions{})
	now := int64(1_000)

	group := types.GroupID("undo-group-fixed")
	journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "a", Mode: types.ModeSafe, GroupID: group}, now)
	journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "b", Mode: types.ModeSafe, GroupID: group}, now+10)
	journal.RecordApply(RecordParams{SessionKey: "s1", SuggestionID: "c", Mode: types.ModeSafe}, now+20)

	entries := journal.ListByGroup("s1", group, now+30)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].SuggestionID != "b" || entries[1].SuggestionID != "a" {
		t.Errorf("unexpected order: %s, %s", entries[0].SuggestionID, entries[1].SuggestionID)
	}
}
