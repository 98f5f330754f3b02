// Package policy gates apply actions. Non-apply actions always pass; apply
// actions run through the kill switch, flow-mode, and hard-deny checks in
// that order.
package policy

import (
	"fmt"
	"strings"

	"github.com/user/neuroclaw/internal/types"
)

// Decision codes.
const (
	CodeAllow            = "ALLOW"
	CodeAllowNonApply    = "ALLOW_NON_APPLY"
	CodeDenyKillSwitch   = "DENY_KILL_SWITCH"
	CodeDenyFlowDisabled = "DENY_FLOW_DISABLED"
	CodeDenyHardList     = "DENY_HARD_LIST"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// Flags is the slice of effective feature flags policy consults.
type Flags struct {
	FlowMode   bool
	KillSwitch bool
}

// Input describes one action to evaluate.
type Input struct {
	Action    types.SuggestionAction
	Card      types.SuggestionCard
	Flags     Flags
	Operation string
}

var defaultHardDenyOperations = []string{
	"rm_rf",
	"delete_root",
	"format_disk",
	"drop_database",
	"credential_exfiltration",
	"shutdown_host",
	"reboot_host",
}

// Engine evaluates actions against a fixed hard-deny set.
type Engine struct {
	hardDeny map[string]bool
}

// New builds an engine. extraHardDeny operations extend the built-in list.
func New(extraHardDeny ...string) *Engine {
	hardDeny := make(map[string]bool, len(defaultHardDenyOperations)+len(extraHardDeny))
	for _, op := range defaultHardDenyOperations {
		hardDeny[op] = true
	}
	for _, op := range extraHardDeny {
		normalized := normalizeToken(op)
		if normalized != "" {
			hardDeny[normalized] = true
		}
	}
	return &Engine{hardDeny: hardDeny}
}

func normalizeToken(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// Evaluate runs the policy gates for one action.
func (e *Engine) Evaluate(in Input) Decision {
	if in.Action != types.ActionApply {
		return Decision{
			Allowed: true,
			Code:    CodeAllowNonApply,
			Reason:  "Non-apply action bypasses apply policy gate.",
		}
	}
	if in.Flags.KillSwitch {
		return Decision{
			Allowed: false,
			Code:    CodeDenyKillSwitch,
			Reason:  "Neuro kill switch is enabled.",
		}
	}
	if in.Card.Mode == types.ModeFlow && !in.Flags.FlowMode {
		return Decision{
			Allowed: false,
			Code:    CodeDenyFlowDisabled,
			Reason:  "Flow mode is disabled by runtime policy.",
		}
	}
	if op := normalizeToken(in.Operation); op != "" && e.hardDeny[op] {
		return Decision{
			Allowed: false,
			Code:    CodeDenyHardList,
			Reason:  fmt.Sprintf("Operation '%s' is hard-denied by policy.", op),
		}
	}
	return Decision{
		Allowed: true,
		Code:    CodeAllow,
		Reason:  "Action passes safe/flow policy checks.",
	}
}
