// Package metrics tracks latency distributions, process memory, and
// redaction counters for the proactive layer. Counters are mirrored onto a
// private prometheus registry so the HTTP surface can expose them without
// touching the default registry.
package metrics

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/neuroclaw/internal/types"
)

const (
	DefaultMaxSamples = 2048
	minMaxSamples     = 32
)

// DistributionStats summarizes one rolling sample window. Nil fields mean
// no samples yet.
type DistributionStats struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	P50   *float64 `json:"p50"`
	P95   *float64 `json:"p95"`
}

// MemoryMb breaks down gateway process memory in megabytes.
type MemoryMb struct {
	RSS       float64 `json:"rss"`
	HeapUsed  float64 `json:"heapUsed"`
	HeapTotal float64 `json:"heapTotal"`
	External  float64 `json:"external"`
}

// Snapshot is the full metrics view at one instant.
type Snapshot struct {
	Ts     int64 `json:"ts"`
	Invoke struct {
		UIReadyMs    DistributionStats `json:"uiReadyMs"`
		FirstTokenMs DistributionStats `json:"firstTokenMs"`
	} `json:"invoke"`
	Memory struct {
		GatewayMb          MemoryMb `json:"gatewayMb"`
		DesktopMb          *float64 `json:"desktopMb"`
		DesktopUpdatedAtMs *int64   `json:"desktopUpdatedAtMs"`
	} `json:"memory"`
	Redaction struct {
		MaskCount  int64 `json:"maskCount"`
		BlockCount int64 `json:"blockCount"`
	} `json:"redaction"`
}

type distribution struct {
	values     []float64
	maxSamples int
}

func newDistribution(maxSamples int) *distribution {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &distribution{maxSamples: max(minMaxSamples, maxSamples)}
}

func (d *distribution) add(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return
	}
	d.values = append(d.values, value)
	if len(d.values) > d.maxSamples {
		d.values = d.values[1:]
	}
}

func percentile(sorted []float64, p float64) *float64 {
	if len(sorted) == 0 {
		return nil
	}
	rank := min(1, max(0, p)) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	lowerValue := sorted[lower]
	if lower == upper {
		return &lowerValue
	}
	weight := rank - float64(lower)
	value := lowerValue + (sorted[upper]-lowerValue)*weight
	return &value
}

func (d *distribution) stats() DistributionStats {
	if len(d.values) == 0 {
		return DistributionStats{}
	}
	values := make([]float64, len(d.values))
	copy(values, d.values)
	sort.Float64s(values)
	minValue := values[0]
	maxValue := values[len(values)-1]
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return DistributionStats{
		Count: len(values),
		Min:   &minValue,
		Max:   &maxValue,
		Avg:   &avg,
		P50:   percentile(values, 0.5),
		P95:   percentile(values, 0.95),
	}
}

// Service aggregates all proactive-layer metrics. Safe for concurrent use.
type Service struct {
	mu                sync.Mutex
	now               func() int64
	uiReadyMs         *distribution
	firstTokenMs      *distribution
	pendingRunStarted map[types.RunID]int64

	desktopMemoryMb    *float64
	desktopUpdatedAtMs *int64
	maskCount          int64
	blockCount         int64

	registry       *prometheus.Registry
	promMaskTotal  prometheus.Counter
	promBlockTotal prometheus.Counter
	promUIReady    prometheus.Histogram
	promFirstToken prometheus.Histogram
}

// Options configure New. Zero values select defaults.
type Options struct {
	MaxSamples int
	Now        func() int64
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	registry := prometheus.NewRegistry()
	promMaskTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neuro_redaction_mask_total",
		Help: "Payload redactions that masked sensitive content.",
	})
	promBlockTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "neuro_redaction_block_total",
		Help: "Payload redactions that removed blocked content.",
	})
	promUIReady := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "neuro_invoke_ui_ready_ms",
		Help:    "Time from invoke to a ready suggestion surface.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	})
	promFirstToken := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "neuro_invoke_first_token_ms",
		Help:    "Time from run start to first model token.",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	})
	registry.MustRegister(promMaskTotal, promBlockTotal, promUIReady, promFirstToken)

	return &Service{
		now:               now,
		uiReadyMs:         newDistribution(opts.MaxSamples),
		firstTokenMs:      newDistribution(opts.MaxSamples),
		pendingRunStarted: make(map[types.RunID]int64),
		registry:          registry,
		promMaskTotal:     promMaskTotal,
		promBlockTotal:    promBlockTotal,
		promUIReady:       promUIReady,
		promFirstToken:    promFirstToken,
	}
}

// Registry exposes the private prometheus registry for the HTTP surface.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// RecordInvokeUIReady adds one ui-ready latency sample.
func (s *Service) RecordInvokeUIReady(durationMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.uiReadyMs.values)
	s.uiReadyMs.add(durationMs)
	if len(s.uiReadyMs.values) != before || before == s.uiReadyMs.maxSamples {
		s.promUIReady.Observe(durationMs)
	}
}

// MarkRunStarted notes a run start so the first-token latency can be
// measured later.
func (s *Service) MarkRunStarted(runID types.RunID, startedAtMs int64) {
	if runID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if startedAtMs <= 0 {
		startedAtMs = s.now()
	}
	s.pendingRunStarted[runID] = startedAtMs
}

// MarkFirstToken records the first-token latency for a started run.
func (s *Service) MarkFirstToken(runID types.RunID, firstTokenAtMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startedAt, ok := s.pendingRunStarted[runID]
	if !ok {
		return
	}
	delete(s.pendingRunStarted, runID)
	if firstTokenAtMs <= 0 {
		firstTokenAtMs = s.now()
	}
	sample := float64(firstTokenAtMs - startedAt)
	before := len(s.firstTokenMs.values)
	s.firstTokenMs.add(sample)
	if len(s.firstTokenMs.values) != before || before == s.firstTokenMs.maxSamples {
		s.promFirstToken.Observe(sample)
	}
}

// ClearRun discards a pending run start.
func (s *Service) ClearRun(runID types.RunID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingRunStarted, runID)
}

// RecordDesktopMemoryMb stores the desktop shell's reported memory.
func (s *Service) RecordDesktopMemoryMb(memoryMb float64) {
	if math.IsNaN(memoryMb) || math.IsInf(memoryMb, 0) || memoryMb < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := s.now()
	s.desktopMemoryMb = &memoryMb
	s.desktopUpdatedAtMs = &updated
}

// RecordRedactionLevel counts mask and block redactions; other levels are
// ignored.
func (s *Service) RecordRedactionLevel(level types.RedactionLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch level {
	case types.RedactionMask:
		s.maskCount++
		s.promMaskTotal.Inc()
	case types.RedactionBlock:
		s.blockCount++
		s.promBlockTotal.Inc()
	}
}

func toMb(bytes uint64) float64 {
	return float64(bytes) / (1024 * 1024)
}

// GetSnapshot returns the current metrics view. nowMs <= 0 uses the
// service clock.
func (s *Service) GetSnapshot(nowMs int64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMs <= 0 {
		nowMs = s.now()
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var snap Snapshot
	snap.Ts = nowMs
	snap.Invoke.UIReadyMs = s.uiReadyMs.stats()
	snap.Invoke.FirstTokenMs = s.firstTokenMs.stats()
	snap.Memory.GatewayMb = MemoryMb{
		RSS:       toMb(mem.Sys),
		HeapUsed:  toMb(mem.HeapAlloc),
		HeapTotal: toMb(mem.HeapSys),
		External:  toMb(mem.StackSys),
	}
	snap.Memory.DesktopMb = s.desktopMemoryMb
	snap.Memory.DesktopUpdatedAtMs = s.desktopUpdatedAtMs
	snap.Redaction.MaskCount = s.maskCount
	snap.Redaction.BlockCount = s.blockCount
	return snap
}
