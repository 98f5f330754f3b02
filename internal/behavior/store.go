// Package behavior persists suggestion/feedback history and learned
// per-pattern preferences in a local sqlite database. All rows stay on disk
// under the user's data directory; nothing leaves the machine unless the
// user exports it.
package behavior

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/user/neuroclaw/internal/types"
)

const (
	DefaultRetentionDays = 30
	DefaultPruneInterval = time.Hour

	minPruneInterval = time.Minute
	dayMs            = 24 * 60 * 60 * 1000
)

// EventType distinguishes shown suggestions from user feedback.
type EventType string

const (
	EventSuggestion EventType = "suggestion"
	EventFeedback   EventType = "feedback"
)

// Event is one behavioral log row.
type Event struct {
	ID           string                `json:"id"`
	Ts           int64                 `json:"ts"`
	SessionKey   types.SessionKey      `json:"sessionKey"`
	Type         EventType             `json:"type"`
	PatternHash  string                `json:"patternHash"`
	SuggestionID *types.SuggestionID   `json:"suggestionId"`
	Mode         *types.CardMode       `json:"mode"`
	UserAction   *types.FeedbackAction `json:"userAction"`
	Confidence   *float64              `json:"confidence"`
	Workspace    *string               `json:"workspace"`
	FilePath     *string               `json:"filePath"`
	AppName      *string               `json:"appName"`
	Metadata     map[string]any        `json:"metadata"`
}

// Preference is the learned disposition for one pattern hash.
type Preference struct {
	PatternHash string           `json:"patternHash"`
	Preference  types.Preference `json:"preference"`
	Score       float64          `json:"score"`
	UpdatedAtMs int64            `json:"updatedAtMs"`
}

// PatternStats aggregates history for one pattern, optionally scoped to a
// session.
type PatternStats struct {
	PatternHash    string
	SessionKey     types.SessionKey
	EventCount     int
	FeedbackTotal  int
	AcceptCount    int
	DismissCount   int
	ModifyCount    int
	IgnoreCount    int
	LastEventTs    *int64
	LastFeedbackTs *int64
	Preference     *Preference
}

// StoreStats describes the database for diagnostics.
type StoreStats struct {
	DBPath           string `json:"dbPath"`
	SchemaVersion    int    `json:"schemaVersion"`
	TotalEvents      int    `json:"totalEvents"`
	TotalPreferences int    `json:"totalPreferences"`
}

// ExportOptions filter an export. A zero Limit means 1000; limits clamp to
// [1, 5000].
type ExportOptions struct {
	SessionKey         types.SessionKey
	FromTs             *int64
	ToTs               *int64
	Limit              int
	ExcludePreferences bool
}

// Export is a user-readable dump of events and preferences.
type Export struct {
	ExportedAtMs int64        `json:"exportedAtMs"`
	Events       []Event      `json:"events"`
	Preferences  []Preference `json:"preferences"`
}

// DeleteOptions select which rows to remove. An empty filter deletes every
// event.
type DeleteOptions struct {
	SessionKey        types.SessionKey
	BeforeTs          *int64
	DeletePreferences bool
}

// DeleteResult reports what a delete removed and what remains.
type DeleteResult struct {
	DeletedEvents        int `json:"deletedEvents"`
	DeletedPreferences   int `json:"deletedPreferences"`
	RemainingEvents      int `json:"remainingEvents"`
	RemainingPreferences int `json:"remainingPreferences"`
}

// RetentionResult reports one retention pass.
type RetentionResult struct {
	CutoffTs        int64 `json:"cutoffTs"`
	DeletedEvents   int   `json:"deletedEvents"`
	RemainingEvents int   `json:"remainingEvents"`
	RetentionDays   int   `json:"retentionDays"`
	DryRun          bool  `json:"dryRun"`
}

// Options configure Open. Zero values select defaults.
type Options struct {
	DBPath        string
	RetentionDays int
	PruneInterval time.Duration
	Now           func() int64
}

// Store is the behavioral event log. Safe for concurrent use; sqlite access
// is serialized through a single connection.
type Store struct {
	db            *sql.DB
	dbPath        string
	schemaVersion int
	retentionDays int
	pruneInterval time.Duration
	now           func() int64

	mu            sync.Mutex
	lastPruneAtMs int64
}

// Open creates or opens the database at opts.DBPath and applies pending
// migrations.
func Open(opts Options) (*Store, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("behavior: db path required")
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	retentionDays = max(1, retentionDays)
	pruneInterval := opts.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}
	pruneInterval = max(minPruneInterval, pruneInterval)

	dbPath, err := filepath.Abs(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	version, err := applyMigrations(db, now())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{
		db:            db,
		dbPath:        dbPath,
		schemaVersion: version,
		retentionDays: retentionDays,
		pruneInterval: pruneInterval,
		now:           now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DBPath() string { return s.dbPath }

func (s *Store) SchemaVersion() int { return s.schemaVersion }

// PatternHash returns the canonical hash for a pattern input.
func PatternHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// SuggestionPatternHash hashes a suggestion identity into pattern space.
func SuggestionPatternHash(suggestionID types.SuggestionID) string {
	return PatternHash("suggestion:" + string(suggestionID))
}

func feedbackScoreDelta(action types.FeedbackAction) float64 {
	switch action {
	case types.FeedbackAccept:
		return 1
	case types.FeedbackModify:
		return 0.25
	case types.FeedbackDismiss:
		return -0.5
	default:
		return -0.25
	}
}

func preferenceFromScore(score float64) types.Preference {
	if score >= 1.5 {
		return types.PreferenceAutoApply
	}
	if score <= -0.5 {
		return types.PreferenceIgnore
	}
	return types.PreferenceSuggest
}

// Stats reports database totals.
func (s *Store) Stats() (StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totalEvents, err := s.countEvents("", nil)
	if err != nil {
		return StoreStats{}, err
	}
	totalPreferences, err := s.countPreferences()
	if err != nil {
		return StoreStats{}, err
	}
	return StoreStats{
		DBPath:           s.dbPath,
		SchemaVersion:    s.schemaVersion,
		TotalEvents:      totalEvents,
		TotalPreferences: totalPreferences,
	}, nil
}

// RecordSuggestion logs a shown card. nowMs <= 0 uses the store clock.
func (s *Store) RecordSuggestion(card types.SuggestionCard, nowMs int64, metadata map[string]any) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := nowMs
	if ts <= 0 {
		ts = s.now()
	}
	s.maybeRunRetention(ts)
	patternHash := SuggestionPatternHash(card.SuggestionID)
	merged := map[string]any{
		"actions":   card.Actions,
		"expiresAt": card.ExpiresAt,
	}
	for k, v := range metadata {
		merged[k] = v
	}
	suggestionID := card.SuggestionID
	mode := card.Mode
	confidence := card.Confidence
	eventID, err := s.insertEvent(eventInsert{
		ts:           ts,
		sessionKey:   card.SessionKey,
		eventType:    EventSuggestion,
		patternHash:  patternHash,
		suggestionID: &suggestionID,
		mode:         &mode,
		confidence:   &confidence,
		metadata:     merged,
	})
	if err != nil {
		return "", "", err
	}
	return eventID, patternHash, nil
}

// RecordFeedback logs a feedback event and folds it into the pattern's
// preference score.
func (s *Store) RecordFeedback(feedback types.SuggestionFeedback, nowMs int64, metadata map[string]any) (string, string, Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := nowMs
	if ts <= 0 {
		ts = feedback.Ts
	}
	if ts <= 0 {
		ts = s.now()
	}
	s.maybeRunRetention(ts)
	patternHash := SuggestionPatternHash(feedback.SuggestionID)
	suggestionID := feedback.SuggestionID
	action := feedback.Action
	eventID, err := s.insertEvent(eventInsert{
		ts:           ts,
		sessionKey:   feedback.SessionKey,
		eventType:    EventFeedback,
		patternHash:  patternHash,
		suggestionID: &suggestionID,
		userAction:   &action,
		metadata:     metadata,
	})
	if err != nil {
		return "", "", Preference{}, err
	}
	pref, err := s.updatePreference(patternHash, feedback.Action, ts)
	if err != nil {
		return "", "", Preference{}, err
	}
	return eventID, patternHash, pref, nil
}

// PatternStats aggregates history for patternHash. An empty sessionKey
// aggregates across sessions.
func (s *Store) PatternStats(patternHash string, sessionKey types.SessionKey) (PatternStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where := "pattern_hash = ?"
	args := []any{patternHash}
	if sessionKey != "" {
		where = "pattern_hash = ? AND session_key = ?"
		args = append(args, string(sessionKey))
	}

	var (
		eventCount, feedbackTotal, acceptCount       sql.NullInt64
		dismissCount, modifyCount, ignoreCount       sql.NullInt64
		lastEventTs, lastFeedbackTs                  sql.NullInt64
	)
	err := s.db.QueryRow(
		`SELECT
			COUNT(*),
			MAX(ts),
			SUM(CASE WHEN type = 'feedback' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'feedback' AND user_action = 'accept' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'feedback' AND user_action = 'dismiss' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'feedback' AND user_action = 'modify' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'feedback' AND user_action = 'ignore' THEN 1 ELSE 0 END),
			MAX(CASE WHEN type = 'feedback' THEN ts ELSE NULL END)
		FROM behavior_events WHERE `+where,
		args...,
	).Scan(&eventCount, &lastEventTs, &feedbackTotal, &acceptCount, &dismissCount, &modifyCount, &ignoreCount, &lastFeedbackTs)
	if err != nil {
		return PatternStats{}, fmt.Errorf("pattern stats: %w", err)
	}

	stats := PatternStats{
		PatternHash:   patternHash,
		SessionKey:    sessionKey,
		EventCount:    int(eventCount.Int64),
		FeedbackTotal: int(feedbackTotal.Int64),
		AcceptCount:   int(acceptCount.Int64),
		DismissCount:  int(dismissCount.Int64),
		ModifyCount:   int(modifyCount.Int64),
		IgnoreCount:   int(ignoreCount.Int64),
	}
	if lastEventTs.Valid {
		v := lastEventTs.Int64
		stats.LastEventTs = &v
	}
	if lastFeedbackTs.Valid {
		v := lastFeedbackTs.Int64
		stats.LastFeedbackTs = &v
	}

	pref, err := s.getPreference(patternHash)
	if err != nil {
		return PatternStats{}, err
	}
	stats.Preference = pref
	return stats, nil
}

// ExportData dumps events (newest first) and preferences for user review.
func (s *Store) ExportData(opts ExportOptions) (Export, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeRunRetention(s.now())

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}
	limit = min(5000, limit)

	where, args := buildEventFilter(opts.SessionKey, opts.FromTs, opts.ToTs)
	rows, err := s.db.Query(
		`SELECT id, ts, session_key, type, pattern_hash, suggestion_id, mode, user_action,
			confidence, workspace, file_path, app_name, metadata_json
		FROM behavior_events`+where+` ORDER BY ts DESC LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return Export{}, fmt.Errorf("export events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return Export{}, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return Export{}, fmt.Errorf("export events: %w", err)
	}

	preferences := []Preference{}
	if !opts.ExcludePreferences {
		preferences, err = s.listPreferences()
		if err != nil {
			return Export{}, err
		}
	}

	return Export{
		ExportedAtMs: s.now(),
		Events:       events,
		Preferences:  preferences,
	}, nil
}

// DeleteData removes matching events and, when requested, all preferences
// and sync watermarks.
func (s *Store) DeleteData(opts DeleteOptions) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeRunRetention(s.now())

	where, args := buildEventFilter(opts.SessionKey, nil, opts.BeforeTs)
	res, err := s.db.Exec(`DELETE FROM behavior_events`+where, args...)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete events: %w", err)
	}
	deletedEvents, _ := res.RowsAffected()

	deletedPreferences := int64(0)
	if opts.DeletePreferences {
		prefRes, err := s.db.Exec(`DELETE FROM pattern_preferences`)
		if err != nil {
			return DeleteResult{}, fmt.Errorf("delete preferences: %w", err)
		}
		deletedPreferences, _ = prefRes.RowsAffected()
		if _, err := s.db.Exec(`DELETE FROM sync_watermarks`); err != nil {
			return DeleteResult{}, fmt.Errorf("delete watermarks: %w", err)
		}
	}

	remainingEvents, err := s.countEvents("", nil)
	if err != nil {
		return DeleteResult{}, err
	}
	remainingPreferences, err := s.countPreferences()
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{
		DeletedEvents:        int(deletedEvents),
		DeletedPreferences:   int(deletedPreferences),
		RemainingEvents:      remainingEvents,
		RemainingPreferences: remainingPreferences,
	}, nil
}

// PruneExpired deletes (or counts, when dryRun) events older than the
// retention window. nowMs <= 0 uses the store clock.
func (s *Store) PruneExpired(nowMs int64, dryRun bool) (RetentionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneExpiredLocked(nowMs, dryRun)
}

func (s *Store) pruneExpiredLocked(nowMs int64, dryRun bool) (RetentionResult, error) {
	if nowMs <= 0 {
		nowMs = s.now()
	}
	cutoffTs := nowMs - int64(s.retentionDays)*dayMs

	var deletedEvents int
	if dryRun {
		n, err := s.countEvents(" WHERE ts < ?", []any{cutoffTs})
		if err != nil {
			return RetentionResult{}, err
		}
		deletedEvents = n
	} else {
		res, err := s.db.Exec(`DELETE FROM behavior_events WHERE ts < ?`, cutoffTs)
		if err != nil {
			return RetentionResult{}, fmt.Errorf("prune events: %w", err)
		}
		n, _ := res.RowsAffected()
		deletedEvents = int(n)
	}

	remaining, err := s.countEvents("", nil)
	if err != nil {
		return RetentionResult{}, err
	}
	return RetentionResult{
		CutoffTs:        cutoffTs,
		DeletedEvents:   deletedEvents,
		RemainingEvents: remaining,
		RetentionDays:   s.retentionDays,
		DryRun:          dryRun,
	}, nil
}

func (s *Store) maybeRunRetention(nowMs int64) {
	if nowMs-s.lastPruneAtMs < s.pruneInterval.Milliseconds() {
		return
	}
	// Retention failures never block writes; the next pass retries.
	_, _ = s.pruneExpiredLocked(nowMs, false)
	s.lastPruneAtMs = nowMs
}

type eventInsert struct {
	ts           int64
	sessionKey   types.SessionKey
	eventType    EventType
	patternHash  string
	suggestionID *types.SuggestionID
	mode         *types.CardMode
	userAction   *types.FeedbackAction
	confidence   *float64
	workspace    *string
	filePath     *string
	appName      *string
	metadata     map[string]any
}

func (s *Store) insertEvent(in eventInsert) (string, error) {
	id := uuid.New().String()
	metadata := in.metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO behavior_events(
			id, ts, session_key, type, pattern_hash, suggestion_id, mode, user_action,
			confidence, workspace, file_path, app_name, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.ts, string(in.sessionKey), string(in.eventType), in.patternHash,
		optString((*string)(in.suggestionID)), optString((*string)(in.mode)),
		optString((*string)(in.userAction)), optFloat(in.confidence),
		optString(in.workspace), optString(in.filePath), optString(in.appName),
		string(metadataJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

func (s *Store) updatePreference(patternHash string, action types.FeedbackAction, nowMs int64) (Preference, error) {
	var current sql.NullFloat64
	err := s.db.QueryRow(`SELECT score FROM pattern_preferences WHERE pattern_hash = ?`, patternHash).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return Preference{}, fmt.Errorf("read preference: %w", err)
	}
	nextScore := current.Float64 + feedbackScoreDelta(action)
	nextPreference := preferenceFromScore(nextScore)
	_, err = s.db.Exec(
		`INSERT INTO pattern_preferences(pattern_hash, preference, score, updated_at_ms) VALUES(?, ?, ?, ?)
		ON CONFLICT(pattern_hash) DO UPDATE SET
			preference = excluded.preference,
			score = excluded.score,
			updated_at_ms = excluded.updated_at_ms`,
		patternHash, string(nextPreference), nextScore, nowMs,
	)
	if err != nil {
		return Preference{}, fmt.Errorf("update preference: %w", err)
	}
	return Preference{
		PatternHash: patternHash,
		Preference:  nextPreference,
		Score:       nextScore,
		UpdatedAtMs: nowMs,
	}, nil
}

func (s *Store) getPreference(patternHash string) (*Preference, error) {
	var pref Preference
	var preference string
	err := s.db.QueryRow(
		`SELECT pattern_hash, preference, score, updated_at_ms FROM pattern_preferences WHERE pattern_hash = ?`,
		patternHash,
	).Scan(&pref.PatternHash, &preference, &pref.Score, &pref.UpdatedAtMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preference: %w", err)
	}
	pref.Preference = types.Preference(preference)
	return &pref, nil
}

func (s *Store) listPreferences() ([]Preference, error) {
	rows, err := s.db.Query(
		`SELECT pattern_hash, preference, score, updated_at_ms FROM pattern_preferences ORDER BY updated_at_ms DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	preferences := []Preference{}
	for rows.Next() {
		var pref Preference
		var preference string
		if err := rows.Scan(&pref.PatternHash, &preference, &pref.Score, &pref.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		pref.Preference = types.Preference(preference)
		preferences = append(preferences, pref)
	}
	return preferences, rows.Err()
}

func (s *Store) countEvents(where string, args []any) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM behavior_events`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func (s *Store) countPreferences() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pattern_preferences`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count preferences: %w", err)
	}
	return count, nil
}

func buildEventFilter(sessionKey types.SessionKey, fromTs, toTs *int64) (string, []any) {
	clauses := []string{}
	args := []any{}
	if sessionKey != "" {
		clauses = append(clauses, "session_key = ?")
		args = append(args, string(sessionKey))
	}
	if fromTs != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, *fromTs)
	}
	if toTs != nil {
		clauses = append(clauses, "ts <= ?")
		args = append(args, *toTs)
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := " WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}
	return where, args
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event        Event
		sessionKey   string
		eventType    string
		suggestionID sql.NullString
		mode         sql.NullString
		userAction   sql.NullString
		confidence   sql.NullFloat64
		workspace    sql.NullString
		filePath     sql.NullString
		appName      sql.NullString
		metadataJSON string
	)
	err := rows.Scan(
		&event.ID, &event.Ts, &sessionKey, &eventType, &event.PatternHash,
		&suggestionID, &mode, &userAction, &confidence,
		&workspace, &filePath, &appName, &metadataJSON,
	)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	event.SessionKey = types.SessionKey(sessionKey)
	event.Type = EventType(eventType)
	if suggestionID.Valid {
		v := types.SuggestionID(suggestionID.String)
		event.SuggestionID = &v
	}
	if mode.Valid {
		v := types.CardMode(mode.String)
		event.Mode = &v
	}
	if userAction.Valid {
		v := types.FeedbackAction(userAction.String)
		event.UserAction = &v
	}
	if confidence.Valid {
		event.Confidence = &confidence.Float64
	}
	if workspace.Valid {
		event.Workspace = &workspace.String
	}
	if filePath.Valid {
		event.FilePath = &filePath.String
	}
	if appName.Valid {
		event.AppName = &appName.String
	}
	event.Metadata = map[string]any{}
	if err := json.Unmarshal([]byte(metadataJSON), &event.Metadata); err != nil {
		event.Metadata = map[string]any{}
	}
	return event, nil
}

func optString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func optFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
