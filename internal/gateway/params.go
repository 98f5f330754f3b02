package gateway

import (
	"github.com/go-playground/validator/v10"

	"github.com/user/neuroclaw/internal/behavior"
	"github.com/user/neuroclaw/internal/flags"
	"github.com/user/neuroclaw/internal/payload"
	"github.com/user/neuroclaw/internal/prompt"
	"github.com/user/neuroclaw/internal/ringbuf"
	"github.com/user/neuroclaw/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkParams runs struct validation and maps failures to INVALID_REQUEST.
func checkParams(params any) *Error {
	if err := validate.Struct(params); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok && len(fieldErrors) > 0 {
			first := fieldErrors[0]
			return Invalidf("invalid field %s: failed %s validation", first.Field(), first.Tag())
		}
		return Invalidf("%s", err.Error())
	}
	return nil
}

// IngestEventParams is one inbound raw observation.
type IngestEventParams struct {
	SessionKey string        `json:"sessionKey" validate:"required"`
	Source     string        `json:"source" validate:"required,oneof=clipboard active_window terminal fs editor"`
	Ts         int64         `json:"ts" validate:"min=0"`
	Payload    payload.Value `json:"payload"`
}

// IngestParams carry a batch of raw observations.
type IngestParams struct {
	Events []IngestEventParams `json:"events" validate:"required,min=1,max=256,dive"`
}

// IngestResult reports what the ring accepted.
type IngestResult struct {
	AcceptedEvents int           `json:"acceptedEvents"`
	DroppedEvents  int           `json:"droppedEvents"`
	Cache          ringbuf.Stats `json:"cache"`
}

// SnapshotParams select a session view. MaxEvents zero means 200.
type SnapshotParams struct {
	SessionKey    string `json:"sessionKey" validate:"required"`
	IncludeEvents *bool  `json:"includeEvents"`
	MaxEvents     int    `json:"maxEvents" validate:"min=0,max=1000"`
}

// SnapshotResult is a ring snapshot trimmed to the requested event count.
type SnapshotResult struct {
	SessionKey     types.SessionKey                        `json:"sessionKey"`
	TotalBytes     int                                     `json:"totalBytes"`
	TotalEvents    int                                     `json:"totalEvents"`
	ReturnedEvents int                                     `json:"returnedEvents"`
	Events         []types.ContextEvent                    `json:"events"`
	PerSource      map[types.Source]ringbuf.PerSourceStats `json:"perSource"`
}

// PromptParams render a session's ring into a prompt block.
type PromptParams struct {
	SessionKey string `json:"sessionKey" validate:"required"`
}

// PromptResult aliases the prompt engine output.
type PromptResult = prompt.Result

// UpsertParams install or replace a suggestion card.
type UpsertParams struct {
	Card CardParams `json:"card" validate:"required"`
}

// CardParams is the inbound wire form of a card.
type CardParams struct {
	SuggestionID string   `json:"suggestionId" validate:"required"`
	SessionKey   string   `json:"sessionKey" validate:"required"`
	Confidence   float64  `json:"confidence" validate:"min=0,max=1"`
	Mode         string   `json:"mode" validate:"required,oneof=safe flow"`
	Actions      []string `json:"actions" validate:"required,min=1,dive,oneof=apply dismiss undo explain"`
	ExpiresAt    int64    `json:"expiresAt" validate:"required,min=1"`
}

// UpsertResult reports whether the card was new.
type UpsertResult struct {
	Inserted bool                 `json:"inserted"`
	Replaced bool                 `json:"replaced"`
	Card     types.SuggestionCard `json:"card"`
}

// ListParams select a session's cards.
type ListParams struct {
	SessionKey string `json:"sessionKey" validate:"required"`
}

// ListResult is the sorted live card set.
type ListResult struct {
	SessionKey     types.SessionKey       `json:"sessionKey"`
	Cards          []types.SuggestionCard `json:"cards"`
	ExpiredRemoved int                    `json:"expiredRemoved"`
}

// ActionSnapshotParams is one reversible unit attached to an apply.
type ActionSnapshotParams struct {
	SnapshotID string        `json:"snapshotId"`
	Kind       string        `json:"kind"`
	Target     string        `json:"target"`
	Before     payload.Value `json:"before"`
	After      payload.Value `json:"after"`
}

// ActionParams describe one user action on a card.
type ActionParams struct {
	SessionKey   string                 `json:"sessionKey" validate:"required"`
	SuggestionID string                 `json:"suggestionId" validate:"required"`
	Action       string                 `json:"action" validate:"required,oneof=apply dismiss undo explain"`
	Operation    string                 `json:"operation"`
	GroupID      string                 `json:"groupId"`
	Snapshots    []ActionSnapshotParams `json:"snapshots" validate:"max=64,dive"`
}

// Fallback describes a degraded action outcome.
type Fallback struct {
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

// PolicyOutcome is the policy decision echoed in action results.
type PolicyOutcome struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// ActionResult is the full outcome of a suggestion action.
type ActionResult struct {
	SessionKey   types.SessionKey       `json:"sessionKey"`
	SuggestionID types.SuggestionID     `json:"suggestionId"`
	Action       types.SuggestionAction `json:"action"`
	Status       string                 `json:"status"`
	Message      string                 `json:"message"`
	UndoUntilMs  *int64                 `json:"undoUntilMs,omitempty"`
	JournalID    *types.JournalID       `json:"journalId,omitempty"`
	GroupID      *types.GroupID         `json:"groupId,omitempty"`
	Policy       *PolicyOutcome         `json:"policy,omitempty"`
	Feedback     types.FeedbackAction   `json:"feedback"`
	Fallback     *Fallback              `json:"fallback,omitempty"`
}

// ExportParams filter a behavioral export.
type ExportParams struct {
	SessionKey         string `json:"sessionKey"`
	FromTs             *int64 `json:"fromTs"`
	ToTs               *int64 `json:"toTs"`
	Limit              int    `json:"limit" validate:"min=0,max=5000"`
	IncludePreferences *bool  `json:"includePreferences"`
}

// DeleteParams select behavioral rows to remove.
type DeleteParams struct {
	SessionKey        string `json:"sessionKey"`
	BeforeTs          *int64 `json:"beforeTs"`
	DeletePreferences bool   `json:"deletePreferences"`
}

// RetentionParams run one retention pass.
type RetentionParams struct {
	NowMs  int64 `json:"nowMs" validate:"min=0"`
	DryRun bool  `json:"dryRun"`
}

// ExportResult, DeleteResult, and RetentionResult reuse the store shapes.
type (
	ExportResult    = behavior.Export
	DeleteResult    = behavior.DeleteResult
	RetentionResult = behavior.RetentionResult
)

// PredictPreviewParams score one signal without creating a card.
type PredictPreviewParams struct {
	SessionKey string `json:"sessionKey" validate:"required"`
	Source     string `json:"source" validate:"required,oneof=clipboard active_window terminal fs editor"`
	Signal     string `json:"signal" validate:"required"`
}

// FlagsSetParams patch the runtime flags; at least one field must be set.
type FlagsSetParams struct {
	ProactiveCards *bool `json:"proactiveCards"`
	FlowMode       *bool `json:"flowMode"`
	PreferenceSync *bool `json:"preferenceSync"`
	KillSwitch     *bool `json:"killSwitch"`
}

func (p FlagsSetParams) patch() flags.Patch {
	return flags.Patch{
		ProactiveCards: p.ProactiveCards,
		FlowMode:       p.FlowMode,
		PreferenceSync: p.PreferenceSync,
		KillSwitch:     p.KillSwitch,
	}
}

// MetricsGetParams select the snapshot instant. Zero means now.
type MetricsGetParams struct {
	NowMs int64 `json:"nowMs" validate:"min=0"`
}

// MetricsObserveParams push external measurements; at least one field must
// be set.
type MetricsObserveParams struct {
	UIReadyMs       *float64 `json:"uiReadyMs"`
	DesktopMemoryMb *float64 `json:"desktopMemoryMb"`
}
