package barista

import (
	"context"
	"fmt"
	"strings"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/order"
)

// Prompts spoken by the scripted flow, one per slot.
const (
	promptSize    = "Nice choice. What size would you like? Small, medium, or large?"
	promptTemp    = "Got it. Would you like it hot or iced?"
	promptMilk    = "What milk do you want? Whole, skim, oat or almond?"
	promptExtras  = "Any extras? Sugar, whipped cream, caramel, chocolate or extra espresso shot?"
	promptConfirm = " Should I confirm the order?"
	msgClosed     = "Perfect. Your drink is being prepared. Thanks for choosing MurfBrew."
	msgRetry      = "No problem. Would you like to change something or restart?"
)

// ScriptedAgent walks the customer through the order one slot at a time. Each
// utterance fills the slot the tracker is waiting on; once extras are collected it
// reads back a summary and loops in the yes/no branch. The retry message offers a
// restart, but no restart transition exists.
type ScriptedAgent struct {
	tracker *order.Tracker
}

func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{tracker: order.NewTracker()}
}

// Tracker exposes the session's order state for teardown logging and finalization.
func (a *ScriptedAgent) Tracker() *order.Tracker { return a.tracker }

// HandleUtterance consumes one finalized user utterance and returns the single reply
// to speak back. It never returns an error; any non-empty text is accepted verbatim.
func (a *ScriptedAgent) HandleUtterance(_ context.Context, utterance string) (string, error) {
	msg := strings.ToLower(strings.TrimSpace(utterance))

	switch a.tracker.State() {
	case order.StateAwaitingDrink:
		a.tracker.Fill(msg)
		return promptSize, nil
	case order.StateAwaitingSize:
		a.tracker.Fill(msg)
		return promptTemp, nil
	case order.StateAwaitingTemperature:
		a.tracker.Fill(msg)
		return promptMilk, nil
	case order.StateAwaitingMilk:
		a.tracker.Fill(msg)
		return promptExtras, nil
	case order.StateAwaitingExtras:
		a.tracker.FillExtras(msg)
		return a.summary() + promptConfirm, nil
	default:
		// Final yes/no branch: the order record no longer changes.
		if strings.Contains(msg, "yes") || strings.Contains(msg, "confirm") {
			return msgClosed, nil
		}
		return msgRetry, nil
	}
}

func (a *ScriptedAgent) summary() string {
	o := a.tracker.Order()
	s := fmt.Sprintf("Alright, so you ordered a %s %s %s with %s milk", o.Size, o.Temperature, o.Drink, o.Milk)
	if len(o.Extras) > 0 {
		s += fmt.Sprintf(" and extras: %s.", strings.Join(o.Extras, ", "))
	}
	return s
}
