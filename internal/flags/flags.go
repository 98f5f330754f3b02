// Package flags holds the runtime feature toggles for the proactive layer.
// Everything defaults off; the kill switch forces every other effective
// flag off without touching the configured values.
package flags

import (
	"sync"
	"time"
)

// State is one set of flag values.
type State struct {
	ProactiveCards bool `json:"proactiveCards"`
	FlowMode       bool `json:"flowMode"`
	PreferenceSync bool `json:"preferenceSync"`
	KillSwitch     bool `json:"killSwitch"`
}

// Patch updates a subset of flags; nil fields stay unchanged.
type Patch struct {
	ProactiveCards *bool `json:"proactiveCards,omitempty"`
	FlowMode       *bool `json:"flowMode,omitempty"`
	PreferenceSync *bool `json:"preferenceSync,omitempty"`
	KillSwitch     *bool `json:"killSwitch,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.ProactiveCards == nil && p.FlowMode == nil && p.PreferenceSync == nil && p.KillSwitch == nil
}

// Snapshot is a versioned view of configured and effective flags.
type Snapshot struct {
	Version     int64 `json:"version"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
	Configured  State `json:"configured"`
	Effective   State `json:"effective"`
}

// Service stores the flag state. Safe for concurrent use.
type Service struct {
	mu          sync.Mutex
	now         func() int64
	configured  State
	version     int64
	updatedAtMs int64
}

// Options configure New.
type Options struct {
	Initial Patch
	Now     func() int64
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	s := &Service{now: now, version: 1}
	s.configured = applyPatch(State{}, opts.Initial)
	s.updatedAtMs = now()
	return s
}

func applyPatch(state State, patch Patch) State {
	if patch.ProactiveCards != nil {
		state.ProactiveCards = *patch.ProactiveCards
	}
	if patch.FlowMode != nil {
		state.FlowMode = *patch.FlowMode
	}
	if patch.PreferenceSync != nil {
		state.PreferenceSync = *patch.PreferenceSync
	}
	if patch.KillSwitch != nil {
		state.KillSwitch = *patch.KillSwitch
	}
	return state
}

func buildSnapshot(version, updatedAtMs int64, configured State) Snapshot {
	effective := configured
	if configured.KillSwitch {
		effective.ProactiveCards = false
		effective.FlowMode = false
		effective.PreferenceSync = false
	}
	return Snapshot{
		Version:     version,
		UpdatedAtMs: updatedAtMs,
		Configured:  configured,
		Effective:   effective,
	}
}

// Get returns the current snapshot.
func (s *Service) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSnapshot(s.version, s.updatedAtMs, s.configured)
}

// Set applies a patch and returns the new snapshot.
func (s *Service) Set(patch Patch) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = applyPatch(s.configured, patch)
	s.version++
	s.updatedAtMs = s.now()
	return buildSnapshot(s.version, s.updatedAtMs, s.configured)
}
