// Package ringbuf holds recent context events per (session, source) with
// TTL, count, and byte eviction. Eviction always removes oldest entries
// first; the byte cap never drops a bucket below one entry so a single
// oversized event still surfaces in snapshots.
package ringbuf

import (
	"encoding/json"
	"sync"

	"github.com/user/neuroclaw/internal/types"
)

// Limits hold per-source eviction thresholds.
type Limits struct {
	TTLMsBySource     map[types.Source]int64
	MaxEventsBySource map[types.Source]int
	MaxBytesBySource  map[types.Source]int
}

// DefaultLimits returns the stock eviction thresholds. Clipboard content is
// the most sensitive source and ages out fastest.
func DefaultLimits() Limits {
	return Limits{
		TTLMsBySource: map[types.Source]int64{
			types.SourceClipboard:    30_000,
			types.SourceActiveWindow: 120_000,
			types.SourceTerminal:     120_000,
			types.SourceFS:           120_000,
			types.SourceEditor:       120_000,
		},
		MaxEventsBySource: map[types.Source]int{
			types.SourceClipboard:    120,
			types.SourceActiveWindow: 120,
			types.SourceTerminal:     120,
			types.SourceFS:           120,
			types.SourceEditor:       120,
		},
		MaxBytesBySource: map[types.Source]int{
			types.SourceClipboard:    512 * 1024,
			types.SourceActiveWindow: 256 * 1024,
			types.SourceTerminal:     512 * 1024,
			types.SourceFS:           256 * 1024,
			types.SourceEditor:       512 * 1024,
		},
	}
}

// PerSourceStats summarizes one source bucket inside a snapshot.
type PerSourceStats struct {
	Count    int    `json:"count"`
	Bytes    int    `json:"bytes"`
	LatestTs *int64 `json:"latestTs"`
}

// Snapshot is a merged, chronological view of a session's cached events.
type Snapshot struct {
	SessionKey  types.SessionKey                `json:"sessionKey"`
	TotalBytes  int                             `json:"totalBytes"`
	TotalEvents int                             `json:"totalEvents"`
	Events      []types.ContextEvent            `json:"events"`
	PerSource   map[types.Source]PerSourceStats `json:"perSource"`
}

// Stats aggregates cache occupancy across all sessions.
type Stats struct {
	Sessions    int `json:"sessions"`
	TotalEvents int `json:"totalEvents"`
	TotalBytes  int `json:"totalBytes"`
}

type entry struct {
	event types.ContextEvent
	bytes int
}

type bucket struct {
	entries    []entry
	totalBytes int
}

// Buffer is the in-memory context cache. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	limits   Limits
	sessions map[types.SessionKey]map[types.Source]*bucket
}

// New creates a buffer with the given limits. Sources missing from a limit
// map fall back to the defaults.
func New(limits Limits) *Buffer {
	merged := DefaultLimits()
	for source, ttl := range limits.TTLMsBySource {
		merged.TTLMsBySource[source] = ttl
	}
	for source, n := range limits.MaxEventsBySource {
		merged.MaxEventsBySource[source] = n
	}
	for source, n := range limits.MaxBytesBySource {
		merged.MaxBytesBySource[source] = n
	}
	return &Buffer{
		limits:   merged,
		sessions: make(map[types.SessionKey]map[types.Source]*bucket),
	}
}

// Limits returns the effective eviction thresholds.
func (b *Buffer) Limits() Limits {
	return b.limits
}

func estimateEventBytes(event types.ContextEvent) int {
	data, err := json.Marshal(event)
	if err != nil {
		return 0
	}
	return len(data)
}

// Append stores an event and returns how many entries eviction removed from
// its bucket.
func (b *Buffer) Append(event types.ContextEvent, nowMs int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	buckets := b.sessions[event.SessionKey]
	if buckets == nil {
		buckets = make(map[types.Source]*bucket)
		b.sessions[event.SessionKey] = buckets
	}
	bk := buckets[event.Source]
	if bk == nil {
		bk = &bucket{}
		buckets[event.Source] = bk
	}
	e := entry{event: event, bytes: estimateEventBytes(event)}
	bk.entries = append(bk.entries, e)
	bk.totalBytes += e.bytes
	dropped := b.pruneBucket(bk, event.Source, nowMs)
	b.removeEmptySessions()
	return dropped
}

// Prune applies all eviction rules across every session and returns the
// number of dropped entries.
func (b *Buffer) Prune(nowMs int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneLocked(nowMs)
}

func (b *Buffer) pruneLocked(nowMs int64) int {
	dropped := 0
	for _, buckets := range b.sessions {
		for _, source := range types.Sources {
			bk := buckets[source]
			if bk == nil {
				continue
			}
			dropped += b.pruneBucket(bk, source, nowMs)
		}
	}
	b.removeEmptySessions()
	return dropped
}

func (b *Buffer) pruneBucket(bk *bucket, source types.Source, nowMs int64) int {
	dropped := 0
	ttlMs := b.limits.TTLMsBySource[source]
	if ttlMs > 0 {
		cutoff := nowMs - ttlMs
		for len(bk.entries) > 0 && bk.entries[0].event.Ts < cutoff {
			bk.removeOldest()
			dropped++
		}
	}

	maxEvents := max(1, b.limits.MaxEventsBySource[source])
	for len(bk.entries) > maxEvents {
		bk.removeOldest()
		dropped++
	}

	maxBytes := max(1, b.limits.MaxBytesBySource[source])
	for bk.totalBytes > maxBytes && len(bk.entries) > 1 {
		bk.removeOldest()
		dropped++
	}
	return dropped
}

func (bk *bucket) removeOldest() {
	oldest := bk.entries[0]
	bk.entries = bk.entries[1:]
	bk.totalBytes -= oldest.bytes
	if bk.totalBytes < 0 {
		bk.totalBytes = 0
	}
}

func (b *Buffer) removeEmptySessions() {
	for sessionKey, buckets := range b.sessions {
		keep := false
		for _, source := range types.Sources {
			bk := buckets[source]
			if bk == nil {
				continue
			}
			if len(bk.entries) == 0 {
				delete(buckets, source)
				continue
			}
			keep = true
		}
		if !keep {
			delete(b.sessions, sessionKey)
		}
	}
}

func emptyPerSource() map[types.Source]PerSourceStats {
	perSource := make(map[types.Source]PerSourceStats, len(types.Sources))
	for _, source := range types.Sources {
		perSource[source] = PerSourceStats{}
	}
	return perSource
}

// Snapshot prunes, then merges the session's buckets into a single
// timestamp-ordered event list.
func (b *Buffer) Snapshot(sessionKey types.SessionKey, nowMs int64) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(nowMs)

	snap := Snapshot{
		SessionKey: sessionKey,
		Events:     []types.ContextEvent{},
		PerSource:  emptyPerSource(),
	}
	buckets := b.sessions[sessionKey]
	if buckets == nil {
		return snap
	}
	for _, source := range types.Sources {
		bk := buckets[source]
		if bk == nil {
			continue
		}
		latest := bk.entries[len(bk.entries)-1].event.Ts
		snap.PerSource[source] = PerSourceStats{
			Count:    len(bk.entries),
			Bytes:    bk.totalBytes,
			LatestTs: &latest,
		}
		snap.TotalEvents += len(bk.entries)
		snap.TotalBytes += bk.totalBytes
		for _, e := range bk.entries {
			snap.Events = append(snap.Events, e.event)
		}
	}
	sortEventsByTs(snap.Events)
	return snap
}

func sortEventsByTs(events []types.ContextEvent) {
	// Buckets are already time-ordered; a stable insertion pass keeps the
	// cross-source merge deterministic.
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j-1].Ts > events[j].Ts; j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
}

// Stats prunes, then reports cache occupancy.
func (b *Buffer) Stats(nowMs int64) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(nowMs)

	st := Stats{Sessions: len(b.sessions)}
	for _, buckets := range b.sessions {
		for _, source := range types.Sources {
			bk := buckets[source]
			if bk == nil {
				continue
			}
			st.TotalEvents += len(bk.entries)
			st.TotalBytes += bk.totalBytes
		}
	}
	return st
}

// Clear removes one session's cache.
func (b *Buffer) Clear(sessionKey types.SessionKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionKey)
}

// ClearAll empties the cache.
func (b *Buffer) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[types.SessionKey]map[types.Source]*bucket)
}
