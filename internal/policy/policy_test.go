package policy

import (
	"testing"

	"github.com/user/neuroclaw/internal/types"
)

func flowCard() types.SuggestionCard {
	return types.SuggestionCard{Mode: types.ModeFlow}
}

func safeCard() types.SuggestionCard {
	return types.SuggestionCard{Mode: types.ModeSafe}
}

func TestNonApplyBypassesGate(t *testing.T) {
	engine := New()
	for _, action := range []types.SuggestionAction{types.ActionDismiss, types.ActionUndo, types.ActionExplain} {
		decision := engine.Evaluate(Input{
			Action: action,
			Card:   flowCard(),
			Flags:  Flags{KillSwitch: true},
		})
		if !decision.Allowed || decision.Code != CodeAllowNonApply {
			t.Errorf("%s: expected ALLOW_NON_APPLY, got %+v", action, decision)
		}
	}
}

func TestKillSwitchDeniesApply(t *testing.T) {
	engine := New()
	decision := engine.Evaluate(Input{
		Action: types.ActionApply,
		Card:   safeCard(),
		Flags:  Flags{KillSwitch: true, FlowMode: true},
	})
	if decision.Allowed || decision.Code != CodeDenyKillSwitch {
		t.Errorf("expected DENY_KILL_SWITCH, got %+v", decision)
	}
}

func TestFlowCardNeedsFlowMode(t *testing.T) {
	engine := New()
	decision := engine.Evaluate(Input{Action: types.ActionApply, Card: flowCard()})
	if decision.Allowed || decision.Code != CodeDenyFlowDisabled {
		t.Errorf("expected DENY_FLOW_DISABLED, got %+v", decision)
	}
	decision = engine.Evaluate(Input{Action: types.ActionApply, Card: flowCard(), Flags: Flags{FlowMode: true}})
	if !decision.Allowed || decision.Code != CodeAllow {
		t.Errorf("expected ALLOW with flow mode on, got %+v", decision)
	}
}

func TestHardDenyList(t *testing.T) {
	engine := New()
	decision := engine.Evaluate(Input{
		Action:    types.ActionApply,
		Card:      safeCard(),
		Operation: "  RM_RF  ",
	})
	if decision.Allowed || decision.Code != CodeDenyHardList {
		t.Errorf("expected DENY_HARD_LIST, got %+v", decision)
	}
	if decision.Reason != "Operation 'rm_rf' is hard-denied by policy." {
		t.Errorf("unexpected reason: %s", decision.Reason)
	}
}

func TestExtraHardDenyOperations(t *testing.T) {
	engine := New("Wipe_Backups")
	decision := engine.Evaluate(Input{
		Action:    types.ActionApply,
		Card:      safeCard(),
		Operation: "wipe_backups",
	})
	if decision.Allowed {
		t.Errorf("expected custom operation denied, got %+v", decision)
	}
}

func TestSafeApplyAllowed(t *testing.T) {
	engine := New()
	decision := engine.Evaluate(Input{
		Action:    types.ActionApply,
		Card:      safeCard(),
		Operation: "insert_snippet",
	})
	if !decision.Allowed || decision.Code != CodeAllow {
		t.Errorf("expected ALLOW, got %+v", decision)
	}
}
