// Package capture pulls ambient context from local sensors, redacts it, and
// turns it into context events. Sensors run concurrently with a per-sensor
// timeout; consecutive identical payloads within the dedupe window are
// skipped so a quiet clipboard does not flood the ring.
package capture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/redact"
	"github.com/user/neuroclaw/internal/types"
)

const (
	DefaultSensorTimeout = 1500 * time.Millisecond
	DefaultDedupeWindow  = 1500 * time.Millisecond
)

// Skip reasons.
const (
	SkipNoData         = "no_data"
	SkipDuplicate      = "duplicate"
	SkipCollectorError = "collector_error"
)

// Sensor produces one raw payload per collection pass. A null value means
// the sensor had nothing to report.
type Sensor interface {
	Source() types.Source
	Collect(ctx context.Context) (payload.Value, error)
}

// Skip records why a sensor produced no event this pass.
type Skip struct {
	Source types.Source `json:"source"`
	Reason string       `json:"reason"`
}

// Result is the outcome of one capture pass.
type Result struct {
	Events []types.ContextEvent `json:"events"`
	Skips  []Skip               `json:"skips"`
}

type dedupeEntry struct {
	signature string
	atMs      int64
}

// Runner drives a fixed set of sensors. Safe for concurrent use.
type Runner struct {
	sensors       []Sensor
	sensorTimeout time.Duration
	dedupeWindow  time.Duration
	now           func() int64

	mu    sync.Mutex
	cache map[string]dedupeEntry
}

// Options configure NewRunner. Zero durations select the defaults.
type Options struct {
	Sensors       []Sensor
	SensorTimeout time.Duration
	DedupeWindow  time.Duration
	Now           func() int64
}

func NewRunner(opts Options) *Runner {
	timeout := opts.SensorTimeout
	if timeout <= 0 {
		timeout = DefaultSensorTimeout
	}
	window := opts.DedupeWindow
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	return &Runner{
		sensors:       opts.Sensors,
		sensorTimeout: timeout,
		dedupeWindow:  window,
		now:           now,
		cache:         make(map[string]dedupeEntry),
	}
}

type collected struct {
	source types.Source
	value  payload.Value
	err    error
}

// CaptureOnce runs every sensor and returns the redacted events plus the
// per-sensor skips. Sensor failures never fail the pass.
func (r *Runner) CaptureOnce(ctx context.Context, sessionKey types.SessionKey) Result {
	results := make([]collected, len(r.sensors))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, sensor := range r.sensors {
		group.Go(func() error {
			sensorCtx, cancel := context.WithTimeout(groupCtx, r.sensorTimeout)
			defer cancel()
			value, err := sensor.Collect(sensorCtx)
			results[i] = collected{source: sensor.Source(), value: value, err: err}
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes them.
	_ = group.Wait()

	var out Result
	for _, c := range results {
		if c.err != nil {
			slog.Warn("sensor collect failed", "source", string(c.source), "error", c.err)
			out.Skips = append(out.Skips, Skip{Source: c.source, Reason: SkipCollectorError})
			continue
		}
		if c.value.IsNull() {
			out.Skips = append(out.Skips, Skip{Source: c.source, Reason: SkipNoData})
			continue
		}
		redacted := redact.Apply(c.source, c.value)
		if r.isDuplicate(sessionKey, c.source, redacted.Payload) {
			out.Skips = append(out.Skips, Skip{Source: c.source, Reason: SkipDuplicate})
			continue
		}
		out.Events = append(out.Events, types.ContextEvent{
			Version:    types.ContextEventVersion,
			EventID:    types.NewEventID(),
			Ts:         r.now(),
			SessionKey: sessionKey,
			Source:     c.source,
			Payload:    redacted.Payload,
			Redaction:  redacted.Redaction,
			Bounds:     redacted.Bounds,
		})
	}
	return out
}

func signature(p payload.Value) string {
	encoded, err := p.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// isDuplicate updates the dedupe cache and reports whether the payload
// matches the previous one for this session and source within the window.
func (r *Runner) isDuplicate(sessionKey types.SessionKey, source types.Source, p payload.Value) bool {
	sig := signature(p)
	key := fmt.Sprintf("%s::%s", sessionKey, source)
	nowMs := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	previous, seen := r.cache[key]
	r.cache[key] = dedupeEntry{signature: sig, atMs: nowMs}
	return seen && previous.signature == sig && nowMs-previous.atMs <= r.dedupeWindow.Milliseconds()
}
