package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/user/neuroclaw/internal/policy"
	"github.com/user/neuroclaw/internal/suggest"
	"github.com/user/neuroclaw/internal/types"
	"github.com/user/neuroclaw/pkg/llm"
)

// Action result statuses.
const (
	StatusApplied   = "applied"
	StatusDismissed = "dismissed"
	StatusUndone    = "undone"
	StatusExplained = "explained"
	StatusFallback  = "fallback"
)

// Fallback kinds.
const (
	FallbackOffline     = "offline"
	FallbackProvider    = "provider"
	FallbackUnavailable = "unavailable"
)

const (
	msgCardNotFound    = "Suggestion is no longer available."
	msgUndoFailed      = "Undo window expired or no undo snapshot exists."
	msgApplied         = "Suggestion applied."
	msgDismissed       = "Suggestion dismissed."
	msgFlowDisabled    = "Flow mode is disabled. Enable flow mode or run in safe mode."
	msgKillSwitch      = "Neuro kill switch is enabled. Apply actions are blocked."
	msgNoProvider      = "No model provider is currently configured for this action."
	msgProviderOffline = "Provider appears offline. Check connectivity and try again."
	msgProviderFlaky   = "Provider is temporarily unavailable. Please retry shortly."
)

// SuggestionAction executes one user action on a card. Degraded outcomes
// come back as status "fallback" on a nil error; only validation failures
// return an error.
func (s *Service) SuggestionAction(ctx context.Context, params ActionParams) (ActionResult, error) {
	if err := checkParams(params); err != nil {
		return ActionResult{}, err
	}
	sessionKey := types.SessionKey(params.SessionKey)
	suggestionID := types.SuggestionID(params.SuggestionID)
	action := types.SuggestionAction(params.Action)

	release := s.locks.Acquire(sessionKey)
	defer release()

	nowMs := s.now()
	result := ActionResult{
		SessionKey:   sessionKey,
		SuggestionID: suggestionID,
		Action:       action,
	}

	card := s.cards.Get(sessionKey, suggestionID, nowMs)
	if card == nil {
		return s.fallback(result, FallbackUnavailable, false, msgCardNotFound, nowMs), nil
	}
	if !cardAllowsAction(*card, action) {
		message := fmt.Sprintf("Action '%s' is not available for this suggestion.", action)
		return s.fallback(result, FallbackUnavailable, false, message, nowMs), nil
	}

	effective := s.flags.Get().Effective
	decision := s.policy.Evaluate(policy.Input{
		Action:    action,
		Card:      *card,
		Flags:     policy.Flags{FlowMode: effective.FlowMode, KillSwitch: effective.KillSwitch},
		Operation: params.Operation,
	})
	result.Policy = &PolicyOutcome{Allowed: decision.Allowed, Code: decision.Code, Reason: decision.Reason}
	if !decision.Allowed {
		switch decision.Code {
		case policy.CodeDenyFlowDisabled:
			return s.fallback(result, FallbackUnavailable, true, msgFlowDisabled, nowMs), nil
		case policy.CodeDenyKillSwitch:
			return s.fallback(result, FallbackUnavailable, false, msgKillSwitch, nowMs), nil
		default:
			return s.fallback(result, FallbackUnavailable, false, decision.Reason, nowMs), nil
		}
	}

	switch action {
	case types.ActionApply:
		return s.handleApply(ctx, result, *card, params, nowMs), nil
	case types.ActionDismiss:
		s.cards.Remove(sessionKey, suggestionID, nowMs)
		s.hub.CardRemove(sessionKey, suggestionID)
		result.Status = StatusDismissed
		result.Message = msgDismissed
		result.Feedback = types.FeedbackDismiss
		s.recordFeedback(sessionKey, suggestionID, result.Feedback, nowMs, map[string]any{
			"status": StatusDismissed,
		})
	case types.ActionUndo:
		entry := s.journal.UndoLatestBySuggestion(sessionKey, suggestionID, nowMs)
		if entry == nil {
			return s.fallback(result, FallbackUnavailable, false, msgUndoFailed, nowMs), nil
		}
		s.cards.Undo(sessionKey, suggestionID, nowMs)
		result.Status = StatusUndone
		result.Message = fmt.Sprintf("Suggestion changes reverted (%d snapshot(s)).", len(entry.Snapshots))
		result.JournalID = &entry.JournalID
		result.GroupID = &entry.GroupID
		result.Feedback = types.FeedbackModify
		s.recordFeedback(sessionKey, suggestionID, result.Feedback, nowMs, map[string]any{
			"status":    StatusUndone,
			"journalId": string(entry.JournalID),
			"groupId":   string(entry.GroupID),
		})
	case types.ActionExplain:
		// Explaining still consults the provider: the explanation is only
		// actionable when an apply could follow it.
		if probed, ok := s.probeProvider(ctx, result, nowMs); !ok {
			return probed, nil
		}
		percent := int(math.Round(card.Confidence * 100))
		result.Status = StatusExplained
		result.Message = fmt.Sprintf("Confidence %d%% in %s mode.", percent, card.Mode)
		result.Feedback = types.FeedbackIgnore
		s.recordFeedback(sessionKey, suggestionID, result.Feedback, nowMs, map[string]any{
			"status":     StatusExplained,
			"policyCode": decision.Code,
			"confidence": card.Confidence,
			"mode":       string(card.Mode),
		})
	}
	return result, nil
}

func cardAllowsAction(card types.SuggestionCard, action types.SuggestionAction) bool {
	for _, allowed := range card.Actions {
		if allowed == action {
			return true
		}
	}
	return false
}

// probeProvider confirms a model provider is reachable before an apply or
// explain proceeds. On failure it finalizes the fallback result and
// returns false.
func (s *Service) probeProvider(ctx context.Context, result ActionResult, nowMs int64) (ActionResult, bool) {
	if s.models == nil {
		return s.fallback(result, FallbackProvider, true, msgNoProvider, nowMs), false
	}
	var models []llm.Model
	err := s.retry.Execute(func() error {
		listed, listErr := s.models.ListModels(ctx)
		models = listed
		return listErr
	})
	if err != nil {
		if isNetworkError(err) {
			return s.fallback(result, FallbackOffline, true, msgProviderOffline, nowMs), false
		}
		return s.fallback(result, FallbackProvider, true, msgProviderFlaky, nowMs), false
	}
	if len(models) == 0 {
		return s.fallback(result, FallbackProvider, true, msgNoProvider, nowMs), false
	}
	return result, true
}

func (s *Service) handleApply(ctx context.Context, result ActionResult, card types.SuggestionCard, params ActionParams, nowMs int64) ActionResult {
	if probed, ok := s.probeProvider(ctx, result, nowMs); !ok {
		return probed
	}

	snapshots := make([]types.UndoSnapshot, 0, len(params.Snapshots))
	for _, snap := range params.Snapshots {
		snapshots = append(snapshots, types.UndoSnapshot{
			SnapshotID: types.SnapshotID(snap.SnapshotID),
			Kind:       snap.Kind,
			Target:     snap.Target,
			Before:     snap.Before,
			After:      snap.After,
		})
	}
	entry := s.journal.RecordApply(suggest.RecordParams{
		SessionKey:   card.SessionKey,
		SuggestionID: card.SuggestionID,
		Mode:         card.Mode,
		GroupID:      types.GroupID(params.GroupID),
		Snapshots:    snapshots,
	}, nowMs)
	undoUntil := s.cards.MarkApplied(card.SessionKey, card.SuggestionID, nowMs)

	result.Status = StatusApplied
	result.Message = msgApplied
	result.UndoUntilMs = undoUntil
	if result.UndoUntilMs == nil {
		result.UndoUntilMs = &entry.ExpiresAtMs
	}
	result.JournalID = &entry.JournalID
	result.GroupID = &entry.GroupID
	result.Feedback = types.FeedbackAccept
	s.recordFeedback(card.SessionKey, card.SuggestionID, types.FeedbackAccept, nowMs, map[string]any{
		"status":      StatusApplied,
		"journalId":   string(entry.JournalID),
		"groupId":     string(entry.GroupID),
		"undoUntilMs": *result.UndoUntilMs,
	})
	return result
}

// fallback finalizes a degraded outcome and records a synthetic ignore
// feedback carrying the failure details.
func (s *Service) fallback(result ActionResult, kind string, retryable bool, message string, nowMs int64) ActionResult {
	result.Status = StatusFallback
	result.Message = message
	result.Feedback = types.FeedbackIgnore
	result.Fallback = &Fallback{Kind: kind, Retryable: retryable, Message: message}

	metadata := map[string]any{
		"status":          StatusFallback,
		"requestedAction": string(result.Action),
		"fallbackKind":    kind,
		"message":         message,
	}
	if result.Policy != nil {
		metadata["policyCode"] = result.Policy.Code
	}
	s.recordFeedback(result.SessionKey, result.SuggestionID, types.FeedbackIgnore, nowMs, metadata)
	return result
}

// recordFeedback persists the behavioral signal, notifies subscribers, and
// feeds the prediction engine's suppression state. Best effort throughout.
func (s *Service) recordFeedback(sessionKey types.SessionKey, suggestionID types.SuggestionID, action types.FeedbackAction, nowMs int64, metadata map[string]any) {
	feedback := types.SuggestionFeedback{
		Version:      types.SuggestionFeedbackVersion,
		SuggestionID: suggestionID,
		Action:       action,
		Ts:           nowMs,
		SessionKey:   sessionKey,
	}
	if s.store != nil {
		if _, _, _, err := s.store.RecordFeedback(feedback, nowMs, metadata); err != nil {
			slog.Warn("feedback record failed", "suggestion_id", string(suggestionID), "error", err)
		}
	}
	s.hub.Feedback(feedback)

	s.originMu.Lock()
	origin, known := s.origins[suggestionID]
	s.originMu.Unlock()
	if known && s.predictor != nil {
		s.predictor.RegisterFeedback(sessionKey, origin.source, origin.signal, action, nowMs)
	}
}

// trackOrigin remembers a card's originating signal, evicting arbitrary
// entries once the map is full.
func (s *Service) trackOrigin(suggestionID types.SuggestionID, source types.Source, signal string) {
	s.originMu.Lock()
	defer s.originMu.Unlock()
	for id := range s.origins {
		if len(s.origins) < maxTrackedOrigins {
			break
		}
		delete(s.origins, id)
	}
	s.origins[suggestionID] = cardOrigin{source: source, signal: signal}
}
