package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/capture"
	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/types"
	"github.com/user/neuroclaw/pkg/llm"
)

type failingCatalog struct {
	err error
}

func (c failingCatalog) ListModels(ctx context.Context) ([]llm.Model, error) {
	return nil, c.err
}

type testEnv struct {
	svc   *Service
	store *behavior.Store
	nowMs *int64
}

func newTestEnv(t *testing.T, models llm.Catalog) *testEnv {
	t.Helper()
	nowMs := int64(1_000_000)
	now := func() int64 { return nowMs }
	store, err := behavior.Open(behavior.Options{
		DBPath: filepath.Join(t.TempDir(), "behavior.db"),
		Now:    now,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := New(Options{
		Store:  store,
		Models: models,
		Retry:  &RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
		Now:    now,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env := &testEnv{svc: svc, store: store, nowMs: &nowMs}
	return env
}

func textPayload(text string) payload.Value {
	return payload.Object(map[string]payload.Value{"text": payload.String(text)})
}

func installCard(t *testing.T, svc *Service, suggestionID string, mode string) types.SuggestionCard {
	t.Helper()
	result, err := svc.SuggestionUpsert(context.Background(), UpsertParams{Card: CardParams{
		SuggestionID: suggestionID,
		SessionKey:   "desktop:main",
		Confidence:   0.8,
		Mode:         mode,
		Actions:      []string{"apply", "dismiss", "undo", "explain"},
		ExpiresAt:    2_000_000,
	}})
	if err != nil {
		t.Fatalf("upsert card: %v", err)
	}
	return result.Card
}

func TestIngestValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.Ingest(context.Background(), IngestParams{})
	gatewayErr := AsError(err)
	if gatewayErr.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %+v", gatewayErr)
	}
	_, err = env.svc.Ingest(context.Background(), IngestParams{Events: []IngestEventParams{
		{SessionKey: "desktop:main", Source: "mouse"},
	}})
	if AsError(err).Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for bad source, got %v", err)
	}
}

func TestIngestAndSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.svc.Ingest(ctx, IngestParams{Events: []IngestEventParams{
		{SessionKey: "desktop:main", Source: "terminal", Ts: 999_000, Payload: textPayload("git status")},
		{SessionKey: "desktop:main", Source: "clipboard", Ts: 999_500, Payload: textPayload("password=hunter2secret")},
	}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.AcceptedEvents != 2 || result.DroppedEvents != 0 {
		t.Errorf("unexpected ingest result: %+v", result)
	}
	if result.Cache.Sessions != 1 || result.Cache.TotalEvents != 2 {
		t.Errorf("unexpected cache stats: %+v", result.Cache)
	}

	snap, err := env.svc.Snapshot(ctx, SnapshotParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalEvents != 2 || snap.ReturnedEvents != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Events[0].Ts != 999_000 || snap.Events[1].Ts != 999_500 {
		t.Errorf("events out of order: %+v", snap.Events)
	}
	clipboard := snap.Events[1]
	if !clipboard.Redaction.Applied {
		t.Error("clipboard secret should be redacted")
	}

	// The redaction metric moved with the ingest.
	metricsSnap, err := env.svc.MetricsGet(ctx, MetricsGetParams{})
	if err != nil {
		t.Fatalf("metrics get: %v", err)
	}
	if metricsSnap.Redaction.MaskCount == 0 {
		t.Error("expected mask count from ingest")
	}
}

func TestSnapshotTrimsToMaxEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	var events []IngestEventParams
	for i := int64(0); i < 10; i++ {
		events = append(events, IngestEventParams{
			SessionKey: "desktop:main",
			Source:     "terminal",
			Ts:         999_000 + i,
			Payload:    textPayload("ls"),
		})
	}
	if _, err := env.svc.Ingest(ctx, IngestParams{Events: events}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	snap, err := env.svc.Snapshot(ctx, SnapshotParams{SessionKey: "desktop:main", MaxEvents: 3})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalEvents != 10 || snap.ReturnedEvents != 3 || len(snap.Events) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Events[2].Ts != 999_009 {
		t.Errorf("expected newest events kept, got %+v", snap.Events)
	}

	noEvents := false
	snap, err = env.svc.Snapshot(ctx, SnapshotParams{SessionKey: "desktop:main", IncludeEvents: &noEvents})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.ReturnedEvents != 0 || len(snap.Events) != 0 || snap.TotalEvents != 10 {
		t.Errorf("includeEvents=false should omit events: %+v", snap)
	}
}

func TestPromptOperation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.svc.Ingest(ctx, IngestParams{Events: []IngestEventParams{
		{SessionKey: "desktop:main", Source: "terminal", Ts: 999_000, Payload: textPayload("make test")},
	}}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	result, err := env.svc.Prompt(ctx, PromptParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if result.IncludedEvents != 1 || result.TokenCount == 0 {
		t.Errorf("unexpected prompt result: %+v", result)
	}
}

func TestApplyHappyPath(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	ctx := context.Background()
	installCard(t, env.svc, "sug-apply", "safe")

	result, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-apply",
		Action:       "apply",
		Snapshots:    []ActionSnapshotParams{{Kind: "file", Target: "/tmp/a.txt"}},
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Status != StatusApplied || result.Message != "Suggestion applied." {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.UndoUntilMs == nil || result.JournalID == nil || result.GroupID == nil {
		t.Fatalf("missing undo bookkeeping: %+v", result)
	}
	if result.Feedback != types.FeedbackAccept {
		t.Errorf("expected accept feedback, got %s", result.Feedback)
	}
	if result.Policy == nil || result.Policy.Code != "ALLOW" {
		t.Errorf("unexpected policy outcome: %+v", result.Policy)
	}

	// Undo inside the window reverts.
	undo, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-apply",
		Action:       "undo",
	})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undo.Status != StatusUndone || undo.Message != "Suggestion changes reverted (1 snapshot(s))." {
		t.Fatalf("unexpected undo result: %+v", undo)
	}
	if undo.Feedback != types.FeedbackModify {
		t.Errorf("expected modify feedback, got %s", undo.Feedback)
	}
}

func TestUndoWithoutApplyFallsBack(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	installCard(t, env.svc, "sug-undo", "safe")

	result, err := env.svc.SuggestionAction(context.Background(), ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-undo",
		Action:       "undo",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Status != StatusFallback || result.Fallback == nil {
		t.Fatalf("expected fallback, got %+v", result)
	}
	if result.Fallback.Kind != FallbackUnavailable || result.Fallback.Retryable {
		t.Errorf("unexpected fallback: %+v", result.Fallback)
	}
	if result.Message != "Undo window expired or no undo snapshot exists." {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestExplainAndDismiss(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	ctx := context.Background()
	installCard(t, env.svc, "sug-x", "safe")

	explain, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-x",
		Action:       "explain",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if explain.Status != StatusExplained || explain.Message != "Confidence 80% in safe mode." {
		t.Fatalf("unexpected explain: %+v", explain)
	}
	if explain.Policy.Code != "ALLOW_NON_APPLY" {
		t.Errorf("explain should bypass the apply gate: %+v", explain.Policy)
	}

	dismiss, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-x",
		Action:       "dismiss",
	})
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if dismiss.Status != StatusDismissed || dismiss.Feedback != types.FeedbackDismiss {
		t.Fatalf("unexpected dismiss: %+v", dismiss)
	}

	listed, err := env.svc.SuggestionList(ctx, ListParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Cards) != 0 {
		t.Errorf("dismissed card still listed: %+v", listed.Cards)
	}
}

func TestExplainRequiresProvider(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t, nil)
	installCard(t, env.svc, "sug-x", "safe")
	result, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-x",
		Action:       "explain",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if result.Status != StatusFallback || result.Fallback == nil {
		t.Fatalf("explain without a provider should fall back: %+v", result)
	}
	if result.Fallback.Kind != FallbackProvider {
		t.Errorf("unexpected fallback kind: %s", result.Fallback.Kind)
	}

	env = newTestEnv(t, failingCatalog{err: errors.New("dial tcp: ECONNREFUSED")})
	installCard(t, env.svc, "sug-x", "safe")
	result, err = env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-x",
		Action:       "explain",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if result.Status != StatusFallback || result.Fallback == nil {
		t.Fatalf("explain with an offline provider should fall back: %+v", result)
	}
	if result.Fallback.Kind != FallbackOffline || !result.Fallback.Retryable {
		t.Errorf("unexpected fallback: %+v", result.Fallback)
	}
}

func TestCardNotFoundFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	result, err := env.svc.SuggestionAction(context.Background(), ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-missing",
		Action:       "apply",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Status != StatusFallback || result.Message != "Suggestion is no longer available." {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestActionNotAllowedFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.SuggestionUpsert(context.Background(), UpsertParams{Card: CardParams{
		SuggestionID: "sug-limited",
		SessionKey:   "desktop:main",
		Confidence:   0.5,
		Mode:         "safe",
		Actions:      []string{"dismiss"},
		ExpiresAt:    2_000_000,
	}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	result, err := env.svc.SuggestionAction(context.Background(), ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-limited",
		Action:       "apply",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Message != "Action 'apply' is not available for this suggestion." {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestPolicyFallbacks(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	ctx := context.Background()

	flowOn := true
	installCard(t, env.svc, "sug-flow", "flow")
	result, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-flow",
		Action:       "apply",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Fallback == nil || !result.Fallback.Retryable {
		t.Fatalf("flow-disabled fallback should be retryable: %+v", result)
	}
	if result.Message != "Flow mode is disabled. Enable flow mode or run in safe mode." {
		t.Errorf("unexpected message: %q", result.Message)
	}

	killOn := true
	if _, err := env.svc.FlagsSet(ctx, FlagsSetParams{FlowMode: &flowOn, KillSwitch: &killOn}); err != nil {
		t.Fatalf("flags set: %v", err)
	}
	result, err = env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey:   "desktop:main",
		SuggestionID: "sug-flow",
		Action:       "apply",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Message != "Neuro kill switch is enabled. Apply actions are blocked." || result.Fallback.Retryable {
		t.Errorf("unexpected kill-switch fallback: %+v", result)
	}
}

func TestProviderFallbacks(t *testing.T) {
	ctx := context.Background()

	// No catalog configured at all.
	env := newTestEnv(t, nil)
	installCard(t, env.svc, "sug-p", "safe")
	result, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-p", Action: "apply",
	})
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if result.Fallback.Kind != FallbackProvider || result.Message != "No model provider is currently configured for this action." {
		t.Fatalf("unexpected fallback: %+v", result)
	}

	// Empty catalog behaves the same.
	env = newTestEnv(t, llm.StaticCatalog{})
	installCard(t, env.svc, "sug-p", "safe")
	result, _ = env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-p", Action: "apply",
	})
	if result.Fallback.Kind != FallbackProvider {
		t.Fatalf("unexpected fallback: %+v", result)
	}

	// Network-shaped errors classify as offline.
	env = newTestEnv(t, failingCatalog{err: errors.New("dial tcp: ECONNREFUSED")})
	installCard(t, env.svc, "sug-p", "safe")
	result, _ = env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-p", Action: "apply",
	})
	if result.Fallback.Kind != FallbackOffline || !result.Fallback.Retryable {
		t.Fatalf("expected offline fallback: %+v", result)
	}
	if result.Message != "Provider appears offline. Check connectivity and try again." {
		t.Errorf("unexpected message: %q", result.Message)
	}

	// Other provider errors stay provider-kind.
	env = newTestEnv(t, failingCatalog{err: errors.New("500 internal server error")})
	installCard(t, env.svc, "sug-p", "safe")
	result, _ = env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-p", Action: "apply",
	})
	if result.Fallback.Kind != FallbackProvider || result.Message != "Provider is temporarily unavailable. Please retry shortly." {
		t.Fatalf("unexpected fallback: %+v", result)
	}
}

func TestFallbackRecordsSyntheticFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	installCard(t, env.svc, "sug-f", "safe")
	if _, err := env.svc.SuggestionAction(context.Background(), ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-f", Action: "apply",
	}); err != nil {
		t.Fatalf("action: %v", err)
	}

	export, err := env.svc.BehaviorExport(context.Background(), ExportParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var foundFallback bool
	for _, event := range export.Events {
		if event.Type == behavior.EventFeedback && event.Metadata["fallbackKind"] != nil {
			foundFallback = true
			if event.Metadata["requestedAction"] != "apply" {
				t.Errorf("unexpected metadata: %+v", event.Metadata)
			}
		}
	}
	if !foundFallback {
		t.Error("expected a synthetic fallback feedback event in the export")
	}
}

func TestActionFeedbackCarriesStatusMetadata(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	ctx := context.Background()
	installCard(t, env.svc, "sug-m", "safe")

	actions := []ActionParams{
		{SessionKey: "desktop:main", SuggestionID: "sug-m", Action: "explain"},
		{SessionKey: "desktop:main", SuggestionID: "sug-m", Action: "apply",
			Snapshots: []ActionSnapshotParams{{Kind: "file", Target: "/tmp/m.txt"}}},
		{SessionKey: "desktop:main", SuggestionID: "sug-m", Action: "dismiss"},
	}
	for _, params := range actions {
		if _, err := env.svc.SuggestionAction(ctx, params); err != nil {
			t.Fatalf("%s: %v", params.Action, err)
		}
	}

	export, err := env.svc.BehaviorExport(ctx, ExportParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	statuses := map[string]bool{}
	for _, event := range export.Events {
		if event.Type != behavior.EventFeedback {
			continue
		}
		status, _ := event.Metadata["status"].(string)
		statuses[status] = true
		if status == StatusApplied {
			if id, ok := event.Metadata["journalId"].(string); !ok || id == "" {
				t.Errorf("applied feedback missing journalId: %+v", event.Metadata)
			}
		}
		if status == StatusExplained {
			if _, ok := event.Metadata["policyCode"].(string); !ok {
				t.Errorf("explained feedback missing policyCode: %+v", event.Metadata)
			}
		}
	}
	for _, want := range []string{StatusExplained, StatusApplied, StatusDismissed} {
		if !statuses[want] {
			t.Errorf("no feedback event with status %q in export", want)
		}
	}
}

func TestBehaviorOps(t *testing.T) {
	env := newTestEnv(t, llm.StaticCatalog{{ID: "gpt-4"}})
	ctx := context.Background()
	installCard(t, env.svc, "sug-b", "safe")
	if _, err := env.svc.SuggestionAction(ctx, ActionParams{
		SessionKey: "desktop:main", SuggestionID: "sug-b", Action: "apply",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	export, err := env.svc.BehaviorExport(ctx, ExportParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(export.Events) == 0 {
		t.Fatal("expected exported events")
	}

	retention, err := env.svc.BehaviorRetention(ctx, RetentionParams{DryRun: true})
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	if !retention.DryRun || retention.DeletedEvents != 0 {
		t.Errorf("unexpected retention result: %+v", retention)
	}

	deleted, err := env.svc.BehaviorDelete(ctx, DeleteParams{SessionKey: "desktop:main", DeletePreferences: true})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.RemainingEvents != 0 {
		t.Errorf("expected all events deleted: %+v", deleted)
	}
}

func TestPredictPreview(t *testing.T) {
	env := newTestEnv(t, nil)
	decision, err := env.svc.PredictPreview(context.Background(), PredictPreviewParams{
		SessionKey: "desktop:main",
		Source:     "terminal",
		Signal:     "git status",
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if decision.PatternKey != "terminal:git status" {
		t.Errorf("unexpected pattern key: %q", decision.PatternKey)
	}
	if decision.Action == "" || decision.Confidence <= 0 {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestFlagsSetRequiresPatch(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.FlagsSet(context.Background(), FlagsSetParams{})
	if AsError(err).Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestFlagsSetBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.svc.Hub().Subscribe()
	defer sub.Close()

	enabled := true
	snap, err := env.svc.FlagsSet(context.Background(), FlagsSetParams{ProactiveCards: &enabled})
	if err != nil {
		t.Fatalf("flags set: %v", err)
	}
	if snap.Version != 2 || !snap.Effective.ProactiveCards {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	select {
	case msg := <-sub.C:
		if msg.Topic != "neuro.flags.changed" {
			t.Errorf("unexpected topic %q", msg.Topic)
		}
	default:
		t.Fatal("expected a flags.changed broadcast")
	}
}

func TestMetricsObserveRequiresAField(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.MetricsObserve(context.Background(), MetricsObserveParams{})
	if AsError(err).Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	uiReady := 120.0
	snap, err := env.svc.MetricsObserve(context.Background(), MetricsObserveParams{UIReadyMs: &uiReady})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if snap.Invoke.UIReadyMs.Count != 1 {
		t.Errorf("unexpected snapshot: %+v", snap.Invoke.UIReadyMs)
	}
}

func TestProcessCaptureCreatesCards(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	enabled := true
	if _, err := env.svc.FlagsSet(ctx, FlagsSetParams{ProactiveCards: &enabled}); err != nil {
		t.Fatalf("flags set: %v", err)
	}

	event := types.ContextEvent{
		Version:    types.ContextEventVersion,
		EventID:    types.NewEventID(),
		Ts:         999_000,
		SessionKey: "desktop:main",
		Source:     types.SourceTerminal,
		Payload:    textPayload("git status"),
	}
	env.svc.ProcessCapture(capture.Result{Events: []types.ContextEvent{event}})

	listed, err := env.svc.SuggestionList(ctx, ListParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Cards) != 1 {
		t.Fatalf("expected one proactive card, got %+v", listed.Cards)
	}
	if listed.Cards[0].Mode != types.ModeSafe {
		t.Errorf("cold-start card should be safe mode: %+v", listed.Cards[0])
	}

	// The same signal is suppressed right after.
	env.svc.ProcessCapture(capture.Result{Events: []types.ContextEvent{event}})
	listed, _ = env.svc.SuggestionList(ctx, ListParams{SessionKey: "desktop:main"})
	if len(listed.Cards) != 1 {
		t.Errorf("suppressed signal must not add a card: %+v", listed.Cards)
	}
}

func TestProcessCaptureRespectsFlag(t *testing.T) {
	env := newTestEnv(t, nil)
	event := types.ContextEvent{
		Version:    types.ContextEventVersion,
		EventID:    types.NewEventID(),
		Ts:         999_000,
		SessionKey: "desktop:main",
		Source:     types.SourceTerminal,
		Payload:    textPayload("git status"),
	}
	env.svc.ProcessCapture(capture.Result{Events: []types.ContextEvent{event}})

	listed, err := env.svc.SuggestionList(context.Background(), ListParams{SessionKey: "desktop:main"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed.Cards) != 0 {
		t.Errorf("proactive cards disabled by default: %+v", listed.Cards)
	}
	// The event still lands in the ring.
	snap, _ := env.svc.Snapshot(context.Background(), SnapshotParams{SessionKey: "desktop:main"})
	if snap.TotalEvents != 1 {
		t.Errorf("capture event missing from ring: %+v", snap)
	}
}
