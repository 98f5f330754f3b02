package metrics

import (
	"math"
	"testing"

	"github.com/user/neuroclaw/internal/types"
)

func TestEmptySnapshot(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	snap := svc.GetSnapshot(0)
	if snap.Ts != 1_000 {
		t.Errorf("expected ts from clock, got %d", snap.Ts)
	}
	if snap.Invoke.UIReadyMs.Count != 0 || snap.Invoke.UIReadyMs.P95 != nil {
		t.Errorf("expected empty distribution, got %+v", snap.Invoke.UIReadyMs)
	}
	if snap.Memory.DesktopMb != nil || snap.Memory.DesktopUpdatedAtMs != nil {
		t.Error("desktop memory should start unset")
	}
	if snap.Memory.GatewayMb.RSS <= 0 || snap.Memory.GatewayMb.HeapUsed <= 0 {
		t.Errorf("gateway memory should be positive: %+v", snap.Memory.GatewayMb)
	}
}

func TestDistributionStats(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	for _, v := range []float64{100, 200, 300, 400} {
		svc.RecordInvokeUIReady(v)
	}
	// Rejected samples must not show up.
	svc.RecordInvokeUIReady(-5)
	svc.RecordInvokeUIReady(math.NaN())
	svc.RecordInvokeUIReady(math.Inf(1))

	stats := svc.GetSnapshot(0).Invoke.UIReadyMs
	if stats.Count != 4 {
		t.Fatalf("expected 4 samples, got %d", stats.Count)
	}
	if *stats.Min != 100 || *stats.Max != 400 || *stats.Avg != 250 {
		t.Errorf("unexpected min/max/avg: %v/%v/%v", *stats.Min, *stats.Max, *stats.Avg)
	}
	// rank 0.5*3 = 1.5 interpolates 200..300.
	if *stats.P50 != 250 {
		t.Errorf("expected p50 250, got %v", *stats.P50)
	}
	// rank 0.95*3 = 2.85 interpolates 300..400.
	if math.Abs(*stats.P95-385) > 1e-9 {
		t.Errorf("expected p95 385, got %v", *stats.P95)
	}
}

func TestRollingWindowEvictsOldest(t *testing.T) {
	svc := New(Options{MaxSamples: 32, Now: func() int64 { return 1_000 }})
	for i := 0; i < 40; i++ {
		svc.RecordInvokeUIReady(float64(i))
	}
	stats := svc.GetSnapshot(0).Invoke.UIReadyMs
	if stats.Count != 32 {
		t.Fatalf("expected 32 samples, got %d", stats.Count)
	}
	if *stats.Min != 8 || *stats.Max != 39 {
		t.Errorf("expected window [8,39], got [%v,%v]", *stats.Min, *stats.Max)
	}
}

func TestFirstTokenLatency(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	svc.MarkRunStarted(types.RunID("run-1"), 5_000)
	svc.MarkFirstToken(types.RunID("run-1"), 5_450)

	stats := svc.GetSnapshot(0).Invoke.FirstTokenMs
	if stats.Count != 1 || *stats.Avg != 450 {
		t.Errorf("expected one 450ms sample, got %+v", stats)
	}

	// A consumed run cannot be recorded twice.
	svc.MarkFirstToken(types.RunID("run-1"), 9_000)
	if got := svc.GetSnapshot(0).Invoke.FirstTokenMs.Count; got != 1 {
		t.Errorf("expected still one sample, got %d", got)
	}
}

func TestFirstTokenRequiresStart(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	svc.MarkFirstToken(types.RunID("run-unknown"), 5_000)
	svc.MarkRunStarted(types.RunID(""), 5_000)
	if got := svc.GetSnapshot(0).Invoke.FirstTokenMs.Count; got != 0 {
		t.Errorf("expected no samples, got %d", got)
	}
}

func TestClearRunDropsPendingStart(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	svc.MarkRunStarted(types.RunID("run-2"), 5_000)
	svc.ClearRun(types.RunID("run-2"))
	svc.MarkFirstToken(types.RunID("run-2"), 5_300)
	if got := svc.GetSnapshot(0).Invoke.FirstTokenMs.Count; got != 0 {
		t.Errorf("expected cleared run ignored, got %d samples", got)
	}
}

func TestDesktopMemory(t *testing.T) {
	now := int64(1_000)
	svc := New(Options{Now: func() int64 { return now }})

	svc.RecordDesktopMemoryMb(-1)
	svc.RecordDesktopMemoryMb(math.NaN())
	if snap := svc.GetSnapshot(0); snap.Memory.DesktopMb != nil {
		t.Fatal("invalid samples must be rejected")
	}

	now = 2_000
	svc.RecordDesktopMemoryMb(512.5)
	snap := svc.GetSnapshot(0)
	if snap.Memory.DesktopMb == nil || *snap.Memory.DesktopMb != 512.5 {
		t.Errorf("unexpected desktop memory: %+v", snap.Memory.DesktopMb)
	}
	if snap.Memory.DesktopUpdatedAtMs == nil || *snap.Memory.DesktopUpdatedAtMs != 2_000 {
		t.Errorf("unexpected desktop updated ts: %+v", snap.Memory.DesktopUpdatedAtMs)
	}
}

func TestRedactionCounters(t *testing.T) {
	svc := New(Options{Now: func() int64 { return 1_000 }})
	svc.RecordRedactionLevel(types.RedactionMask)
	svc.RecordRedactionLevel(types.RedactionMask)
	svc.RecordRedactionLevel(types.RedactionBlock)
	svc.RecordRedactionLevel(types.RedactionNone)

	snap := svc.GetSnapshot(0)
	if snap.Redaction.MaskCount != 2 || snap.Redaction.BlockCount != 1 {
		t.Errorf("unexpected redaction counts: %+v", snap.Redaction)
	}

	families, err := svc.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]float64{}
	for _, family := range families {
		if len(family.GetMetric()) == 1 && family.GetMetric()[0].GetCounter() != nil {
			found[family.GetName()] = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if found["neuro_redaction_mask_total"] != 2 {
		t.Errorf("prometheus mask counter = %v", found["neuro_redaction_mask_total"])
	}
	if found["neuro_redaction_block_total"] != 1 {
		t.Errorf("prometheus block counter = %v", found["neuro_redaction_block_total"])
	}
}
