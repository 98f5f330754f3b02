// Package gateway exposes the proactive layer as validated operations. It
// wires the context ring, behavioral store, prediction engine, card and
// undo stores, policy, flags, and metrics behind a single surface.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/flags"
	"github.com/user/neuroclaw/internal/metrics"
	"github.com/user/neuroclaw/internal/notify"
	"github.com/user/neuroclaw/internal/policy"
	"github.com/user/neuroclaw/internal/predict"
	"github.com/user/neuroclaw/internal/prompt"
	"github.com/user/neuroclaw/internal/redact"
	"github.com/user/neuroclaw/internal/ringbuf"
	"github.com/user/neuroclaw/internal/suggest"
	"github.com/user/neuroclaw/internal/types"
	"github.com/user/neuroclaw/pkg/llm"
)

const defaultSnapshotEvents = 200

// Service is the operation surface. Safe for concurrent use.
type Service struct {
	ring      *ringbuf.Buffer
	store     *behavior.Store
	predictor *predict.Engine
	cards     *suggest.CardStore
	journal   *suggest.Journal
	policy    *policy.Engine
	flags     *flags.Service
	metrics   *metrics.Service
	hub       *notify.Hub
	prompt    *prompt.Engine
	models    llm.Catalog
	retry     *RetryPolicy
	now       func() int64
	locks     *sessionLocks

	originMu sync.Mutex
	origins  map[types.SuggestionID]cardOrigin
}

// cardOrigin remembers which signal produced a card so feedback can reach
// the prediction engine's suppression state.
type cardOrigin struct {
	source types.Source
	signal string
}

const maxTrackedOrigins = 1024

// Options wire a Service. Nil in-memory components get fresh defaults; a
// nil Store or Models degrades the dependent operations instead of failing
// construction.
type Options struct {
	Ring        *ringbuf.Buffer
	Store       *behavior.Store
	Predictor   *predict.Engine
	Cards       *suggest.CardStore
	Journal     *suggest.Journal
	Policy      *policy.Engine
	Flags       *flags.Service
	Metrics     *metrics.Service
	Hub         *notify.Hub
	Prompt      *prompt.Engine
	Models      llm.Catalog
	Retry       *RetryPolicy
	PromptModel string
	Now         func() int64
}

func New(opts Options) (*Service, error) {
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}
	s := &Service{
		ring:      opts.Ring,
		store:     opts.Store,
		predictor: opts.Predictor,
		cards:     opts.Cards,
		journal:   opts.Journal,
		policy:    opts.Policy,
		flags:     opts.Flags,
		metrics:   opts.Metrics,
		hub:       opts.Hub,
		prompt:    opts.Prompt,
		models:    opts.Models,
		retry:     opts.Retry,
		now:       now,
		locks:     newSessionLocks(),
		origins:   make(map[types.SuggestionID]cardOrigin),
	}
	if s.ring == nil {
		s.ring = ringbuf.New(ringbuf.DefaultLimits())
	}
	if s.cards == nil {
		s.cards = suggest.NewCardStore(suggest.CardStoreOptions{Now: now})
	}
	if s.journal == nil {
		s.journal = suggest.NewJournal(suggest.JournalOptions{Now: now})
	}
	if s.policy == nil {
		s.policy = policy.New()
	}
	if s.flags == nil {
		s.flags = flags.New(flags.Options{Now: now})
	}
	if s.metrics == nil {
		s.metrics = metrics.New(metrics.Options{Now: now})
	}
	if s.hub == nil {
		s.hub = notify.NewHub(0)
	}
	if s.retry == nil {
		s.retry = DefaultRetryPolicy()
	}
	if s.predictor == nil && s.store != nil {
		s.predictor = predict.New(s.store, predict.Options{Now: now})
	}
	if s.prompt == nil {
		model := opts.PromptModel
		if model == "" {
			model = "gpt-4"
		}
		s.prompt = prompt.New(model, 0, 0)
	}
	return s, nil
}

// Hub exposes the broadcast hub for transports.
func (s *Service) Hub() *notify.Hub { return s.hub }

// Metrics exposes the metrics service for transports.
func (s *Service) Metrics() *metrics.Service { return s.metrics }

// Ingest redacts and caches a batch of raw observations.
func (s *Service) Ingest(ctx context.Context, params IngestParams) (IngestResult, error) {
	if err := checkParams(params); err != nil {
		return IngestResult{}, err
	}
	nowMs := s.now()
	var result IngestResult
	for _, raw := range params.Events {
		source := types.Source(raw.Source)
		redacted := redact.Apply(source, raw.Payload)
		s.metrics.RecordRedactionLevel(redacted.Redaction.Level)

		ts := raw.Ts
		if ts <= 0 {
			ts = nowMs
		}
		event := types.ContextEvent{
			Version:    types.ContextEventVersion,
			EventID:    types.NewEventID(),
			Ts:         ts,
			SessionKey: types.SessionKey(raw.SessionKey),
			Source:     source,
			Payload:    redacted.Payload,
			Redaction:  redacted.Redaction,
			Bounds:     redacted.Bounds,
		}
		result.DroppedEvents += s.ring.Append(event, nowMs)
		result.AcceptedEvents++
	}
	result.Cache = s.ring.Stats(nowMs)
	return result, nil
}

// Snapshot returns a session's cached context.
func (s *Service) Snapshot(ctx context.Context, params SnapshotParams) (SnapshotResult, error) {
	if err := checkParams(params); err != nil {
		return SnapshotResult{}, err
	}
	maxEvents := params.MaxEvents
	if maxEvents == 0 {
		maxEvents = defaultSnapshotEvents
	}
	includeEvents := params.IncludeEvents == nil || *params.IncludeEvents

	snap := s.ring.Snapshot(types.SessionKey(params.SessionKey), s.now())
	result := SnapshotResult{
		SessionKey:  snap.SessionKey,
		TotalBytes:  snap.TotalBytes,
		TotalEvents: snap.TotalEvents,
		Events:      []types.ContextEvent{},
		PerSource:   snap.PerSource,
	}
	if includeEvents {
		events := snap.Events
		if len(events) > maxEvents {
			events = events[len(events)-maxEvents:]
		}
		result.Events = events
		result.ReturnedEvents = len(events)
	}
	return result, nil
}

// Prompt renders a session's cached context into a token-budgeted block.
func (s *Service) Prompt(ctx context.Context, params PromptParams) (PromptResult, error) {
	if err := checkParams(params); err != nil {
		return PromptResult{}, err
	}
	sessionKey := types.SessionKey(params.SessionKey)
	snap := s.ring.Snapshot(sessionKey, s.now())
	return s.prompt.BuildPrompt(sessionKey, snap.Events), nil
}

// SuggestionUpsert installs or replaces a card.
func (s *Service) SuggestionUpsert(ctx context.Context, params UpsertParams) (UpsertResult, error) {
	if err := checkParams(params); err != nil {
		return UpsertResult{}, err
	}
	actions := make([]types.SuggestionAction, 0, len(params.Card.Actions))
	for _, action := range params.Card.Actions {
		actions = append(actions, types.SuggestionAction(action))
	}
	card := types.SuggestionCard{
		Version:      types.SuggestionCardVersion,
		SuggestionID: types.SuggestionID(params.Card.SuggestionID),
		SessionKey:   types.SessionKey(params.Card.SessionKey),
		Confidence:   params.Card.Confidence,
		Mode:         types.CardMode(params.Card.Mode),
		Actions:      actions,
		ExpiresAt:    params.Card.ExpiresAt,
	}
	nowMs := s.now()
	upsert := s.cards.Upsert(card, nowMs)
	s.recordSuggestion(card, nowMs)
	s.hub.CardUpsert(card)
	return UpsertResult{Inserted: upsert.Inserted, Replaced: upsert.Replaced, Card: card}, nil
}

// SuggestionList returns a session's live cards.
func (s *Service) SuggestionList(ctx context.Context, params ListParams) (ListResult, error) {
	if err := checkParams(params); err != nil {
		return ListResult{}, err
	}
	sessionKey := types.SessionKey(params.SessionKey)
	listed := s.cards.List(sessionKey, s.now())
	return ListResult{
		SessionKey:     sessionKey,
		Cards:          listed.Cards,
		ExpiredRemoved: listed.ExpiredRemoved,
	}, nil
}

// BehaviorExport dumps behavioral events and preferences.
func (s *Service) BehaviorExport(ctx context.Context, params ExportParams) (ExportResult, error) {
	if err := checkParams(params); err != nil {
		return ExportResult{}, err
	}
	if s.store == nil {
		return ExportResult{}, Unavailablef("behavior store is not configured")
	}
	opts := behavior.ExportOptions{
		SessionKey:         types.SessionKey(params.SessionKey),
		FromTs:             params.FromTs,
		ToTs:               params.ToTs,
		Limit:              params.Limit,
		ExcludePreferences: params.IncludePreferences != nil && !*params.IncludePreferences,
	}
	export, err := s.store.ExportData(opts)
	if err != nil {
		return ExportResult{}, Unavailablef("export failed: %s", err.Error())
	}
	return export, nil
}

// BehaviorDelete removes behavioral rows.
func (s *Service) BehaviorDelete(ctx context.Context, params DeleteParams) (DeleteResult, error) {
	if err := checkParams(params); err != nil {
		return DeleteResult{}, err
	}
	if s.store == nil {
		return DeleteResult{}, Unavailablef("behavior store is not configured")
	}
	result, err := s.store.DeleteData(behavior.DeleteOptions{
		SessionKey:        types.SessionKey(params.SessionKey),
		BeforeTs:          params.BeforeTs,
		DeletePreferences: params.DeletePreferences,
	})
	if err != nil {
		return DeleteResult{}, Unavailablef("delete failed: %s", err.Error())
	}
	return result, nil
}

// BehaviorRetention runs one retention pass.
func (s *Service) BehaviorRetention(ctx context.Context, params RetentionParams) (RetentionResult, error) {
	if err := checkParams(params); err != nil {
		return RetentionResult{}, err
	}
	if s.store == nil {
		return RetentionResult{}, Unavailablef("behavior store is not configured")
	}
	nowMs := params.NowMs
	if nowMs <= 0 {
		nowMs = s.now()
	}
	result, err := s.store.PruneExpired(nowMs, params.DryRun)
	if err != nil {
		return RetentionResult{}, Unavailablef("retention failed: %s", err.Error())
	}
	return result, nil
}

// PredictPreview scores a signal without creating a card.
func (s *Service) PredictPreview(ctx context.Context, params PredictPreviewParams) (predict.Decision, error) {
	if err := checkParams(params); err != nil {
		return predict.Decision{}, err
	}
	if s.predictor == nil {
		return predict.Decision{}, Unavailablef("prediction engine is not configured")
	}
	decision, err := s.predictor.Predict(
		types.SessionKey(params.SessionKey),
		types.Source(params.Source),
		params.Signal,
		s.now(),
	)
	if err != nil {
		return predict.Decision{}, Unavailablef("predict failed: %s", err.Error())
	}
	return decision, nil
}

// FlagsGet returns the current flag snapshot.
func (s *Service) FlagsGet(ctx context.Context) (flags.Snapshot, error) {
	return s.flags.Get(), nil
}

// FlagsSet patches the runtime flags and broadcasts the new snapshot.
func (s *Service) FlagsSet(ctx context.Context, params FlagsSetParams) (flags.Snapshot, error) {
	patch := params.patch()
	if patch.Empty() {
		return flags.Snapshot{}, Invalidf("at least one flag must be provided")
	}
	snap := s.flags.Set(patch)
	s.hub.FlagsChanged(snap)
	return snap, nil
}

// MetricsGet returns the metrics snapshot.
func (s *Service) MetricsGet(ctx context.Context, params MetricsGetParams) (metrics.Snapshot, error) {
	if err := checkParams(params); err != nil {
		return metrics.Snapshot{}, err
	}
	return s.metrics.GetSnapshot(params.NowMs), nil
}

// MetricsObserve pushes externally measured samples.
func (s *Service) MetricsObserve(ctx context.Context, params MetricsObserveParams) (metrics.Snapshot, error) {
	if params.UIReadyMs == nil && params.DesktopMemoryMb == nil {
		return metrics.Snapshot{}, Invalidf("at least one observation must be provided")
	}
	if params.UIReadyMs != nil {
		s.metrics.RecordInvokeUIReady(*params.UIReadyMs)
	}
	if params.DesktopMemoryMb != nil {
		s.metrics.RecordDesktopMemoryMb(*params.DesktopMemoryMb)
	}
	return s.metrics.GetSnapshot(0), nil
}

// recordSuggestion writes a card to the behavioral log. Hot-path writes
// never fail the request.
func (s *Service) recordSuggestion(card types.SuggestionCard, nowMs int64) {
	if s.store == nil {
		return
	}
	if _, _, err := s.store.RecordSuggestion(card, nowMs, nil); err != nil {
		slog.Warn("suggestion record failed", "suggestion_id", string(card.SuggestionID), "error", err)
	}
}
