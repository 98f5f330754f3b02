// internal/suggest/cards.go

// Package suggest keeps the in-memory suggestion surface: the active cards
// per session and the undo journal for applied suggestions. Expiry is lazy;
// every read sweeps expired state first.
package suggest

import (
	"sort"
	"sync"
	"time"

	"github.com/user/neuroclaw/internal/types"
)

// DefaultUndoWindow is how long an applied suggestion stays undoable.
const DefaultUndoWindow = 5 * time.Minute

type cardRecord struct {
	card            types.SuggestionCard
	lastAppliedAtMs *int64
	undoUntilMs     *int64
}

// UpsertResult reports whether an upsert created or replaced a card.
type UpsertResult struct {
	Inserted bool `json:"inserted"`
	Replaced bool `json:"replaced"`
}

// ListResult is a session's sorted cards plus the expiry sweep count.
type ListResult struct {
	Cards          []types.SuggestionCard `json:"cards"`
	ExpiredRemoved int                    `json:"expiredRemoved"`
}

// CardStore holds the active suggestion cards per session. Safe for
// concurrent use.
type CardStore struct {
	mu         sync.Mutex
	undoWindow time.Duration
	now        func() int64
	bySession  map[types.SessionKey]map[types.SuggestionID]*cardRecord
}

// CardStoreOptions configure NewCardStore. Zero values select defaults.
type CardStoreOptions struct {
	UndoWindow time.Duration
	Now        func() int64
}

func NewCardStore(opts CardStoreOptions) *CardStore {
	window := opts.UndoWindow
	if window <= 0 {
		window = DefaultUndoWindow
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &CardStore{
		undoWindow: window,
		now:        now,
		bySession:  make(map[types.SessionKey]map[types.SuggestionID]*cardRecord),
	}
}

func (s *CardStore) cleanupSession(sessionKey types.SessionKey, nowMs int64) int {
	session := s.bySession[sessionKey]
	if session == nil {
		return 0
	}
	removed := 0
	for suggestionID, record := range session {
		if record.card.ExpiresAt > nowMs {
			continue
		}
		delete(session, suggestionID)
		removed++
	}
	if len(session) == 0 {
		delete(s.bySession, sessionKey)
	}
	return removed
}

func (s *CardStore) getRecord(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) *cardRecord {
	s.cleanupSession(sessionKey, nowMs)
	session := s.bySession[sessionKey]
	if session == nil {
		return nil
	}
	return session[suggestionID]
}

// Upsert stores a card, preserving any apply/undo state from a previous
// version of the same suggestion. nowMs <= 0 uses the store clock.
func (s *CardStore) Upsert(card types.SuggestionCard, nowMs int64) UpsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	s.cleanupSession(card.SessionKey, nowMs)
	session := s.bySession[card.SessionKey]
	if session == nil {
		session = make(map[types.SuggestionID]*cardRecord)
		s.bySession[card.SessionKey] = session
	}
	previous := session[card.SuggestionID]
	record := &cardRecord{card: card}
	if previous != nil {
		record.lastAppliedAtMs = previous.lastAppliedAtMs
		record.undoUntilMs = previous.undoUntilMs
	}
	session[card.SuggestionID] = record
	return UpsertResult{Inserted: previous == nil, Replaced: previous != nil}
}

// List returns the session's live cards sorted by expiry then id.
func (s *CardStore) List(sessionKey types.SessionKey, nowMs int64) ListResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	expiredRemoved := s.cleanupSession(sessionKey, nowMs)
	cards := []types.SuggestionCard{}
	for _, record := range s.bySession[sessionKey] {
		cards = append(cards, record.card)
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].ExpiresAt == cards[j].ExpiresAt {
			return cards[i].SuggestionID < cards[j].SuggestionID
		}
		return cards[i].ExpiresAt < cards[j].ExpiresAt
	})
	return ListResult{Cards: cards, ExpiredRemoved: expiredRemoved}
}

// Get returns a live card or nil.
func (s *CardStore) Get(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) *types.SuggestionCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	record := s.getRecord(sessionKey, suggestionID, nowMs)
	if record == nil {
		return nil
	}
	card := record.card
	return &card
}

// Remove deletes a card and reports whether it existed.
func (s *CardStore) Remove(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	s.cleanupSession(sessionKey, nowMs)
	session := s.bySession[sessionKey]
	if session == nil {
		return false
	}
	_, ok := session[suggestionID]
	delete(session, suggestionID)
	if len(session) == 0 {
		delete(s.bySession, sessionKey)
	}
	return ok
}

// MarkApplied opens the undo window for a card. Returns nil when the card
// is gone.
func (s *CardStore) MarkApplied(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	record := s.getRecord(sessionKey, suggestionID, nowMs)
	if record == nil {
		return nil
	}
	applied := nowMs
	until := nowMs + s.undoWindow.Milliseconds()
	record.lastAppliedAtMs = &applied
	record.undoUntilMs = &until
	return &until
}

// Undo reverts a card's applied state if its undo window is still open.
func (s *CardStore) Undo(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	record := s.getRecord(sessionKey, suggestionID, nowMs)
	if record == nil || record.undoUntilMs == nil || *record.undoUntilMs < nowMs {
		return false
	}
	record.lastAppliedAtMs = nil
	record.undoUntilMs = nil
	return true
}

// UndoUntil reports the card's undo deadline, nil when not applied.
func (s *CardStore) UndoUntil(sessionKey types.SessionKey, suggestionID types.SuggestionID, nowMs int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	record := s.getRecord(sessionKey, suggestionID, nowMs)
	if record == nil {
		return nil
	}
	return record.undoUntilMs
}
