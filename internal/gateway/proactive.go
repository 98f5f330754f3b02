package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/neuroclaw/internal/capture"
	"github.com/user/neuroclaw/internal/predict"
	"github.com/user/neuroclaw/internal/types"
)

// DefaultCardTTL bounds how long a proactively created card stays live.
const DefaultCardTTL = 60 * time.Second

// signalFields are checked in order when deriving a prediction signal from
// an event payload.
var signalFields = []string{"text", "output", "stdout", "line", "selection", "title", "path"}

func signalFromEvent(event types.ContextEvent) string {
	for _, field := range signalFields {
		value, ok := event.Payload.Field(field)
		if ok && value.StringVal() != "" {
			return value.StringVal()
		}
	}
	return ""
}

// RunCapturePass runs the sensors once and feeds the results through the
// ring and, when proactive cards are enabled, the prediction engine.
func (s *Service) RunCapturePass(ctx context.Context, runner *capture.Runner, sessionKey types.SessionKey) capture.Result {
	result := runner.CaptureOnce(ctx, sessionKey)
	s.ProcessCapture(result)
	return result
}

// ProcessCapture caches captured events and turns strong predictions into
// suggestion cards.
func (s *Service) ProcessCapture(result capture.Result) {
	nowMs := s.now()
	proactive := s.flags.Get().Effective.ProactiveCards
	for _, event := range result.Events {
		s.metrics.RecordRedactionLevel(event.Redaction.Level)
		s.ring.Append(event, nowMs)
		if !proactive || s.predictor == nil {
			continue
		}
		signal := signalFromEvent(event)
		if signal == "" {
			continue
		}
		decision, err := s.predictor.Predict(event.SessionKey, event.Source, signal, nowMs)
		if err != nil {
			slog.Warn("predict failed", "source", string(event.Source), "error", err)
			continue
		}
		if decision.Action == predict.ActionIgnore {
			continue
		}
		s.createCardFromDecision(decision, nowMs)
	}
}

func (s *Service) createCardFromDecision(decision predict.Decision, nowMs int64) {
	mode := types.ModeSafe
	if decision.Action == predict.ActionAutoApply {
		mode = types.ModeFlow
	}
	card := types.SuggestionCard{
		Version:      types.SuggestionCardVersion,
		SuggestionID: types.NewSuggestionID(),
		SessionKey:   decision.SessionKey,
		Confidence:   decision.Confidence,
		Mode:         mode,
		Actions: []types.SuggestionAction{
			types.ActionApply,
			types.ActionDismiss,
			types.ActionUndo,
			types.ActionExplain,
		},
		ExpiresAt: nowMs + DefaultCardTTL.Milliseconds(),
	}
	s.cards.Upsert(card, nowMs)
	s.recordSuggestion(card, nowMs)
	s.trackOrigin(card.SuggestionID, decision.Source, decision.Signal)
	s.hub.CardUpsert(card)
}
