package barista

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/order"
)

func drive(t *testing.T, a *ScriptedAgent, utterances ...string) string {
	t.Helper()
	var last string
	for _, u := range utterances {
		reply, err := a.HandleUtterance(context.Background(), u)
		if err != nil {
			t.Fatalf("handle %q: %v", u, err)
		}
		if reply == "" {
			t.Fatalf("empty reply for %q", u)
		}
		last = reply
	}
	return last
}

func TestScripted_HappyPathNoExtras(t *testing.T) {
	a := NewScriptedAgent()
	got := drive(t, a, "latte", "medium", "iced", "oat", "no")
	want := "Alright, so you ordered a medium iced latte with oat milk Should I confirm the order?"
	if got != want {
		t.Fatalf("summary mismatch:\n got %q\nwant %q", got, want)
	}
	o := a.Tracker().Order()
	if len(o.Extras) != 0 {
		t.Fatalf("expected empty extras, got %v", o.Extras)
	}
	if !o.Confirmed {
		t.Fatalf("expected confirmed order state")
	}
}

func TestScripted_ExtrasAppearInSummary(t *testing.T) {
	a := NewScriptedAgent()
	got := drive(t, a, "latte", "medium", "iced", "oat", "caramel")
	if !strings.Contains(got, "and extras: caramel.") {
		t.Fatalf("expected extras clause in summary, got %q", got)
	}
	o := a.Tracker().Order()
	if !reflect.DeepEqual(o.Extras, []string{"caramel"}) {
		t.Fatalf("expected extras [caramel], got %v", o.Extras)
	}
}

func TestScripted_IntermediatePrompts(t *testing.T) {
	a := NewScriptedAgent()
	steps := []struct{ utterance, reply string }{
		{"cappuccino", promptSize},
		{"Large", promptTemp},
		{"hot", promptMilk},
		{"whole", promptExtras},
	}
	for _, st := range steps {
		got, err := a.HandleUtterance(context.Background(), st.utterance)
		if err != nil {
			t.Fatalf("handle %q: %v", st.utterance, err)
		}
		if got != st.reply {
			t.Fatalf("after %q: got %q want %q", st.utterance, got, st.reply)
		}
	}
	// utterances are lower-cased before storage
	if a.Tracker().Order().Size != "large" {
		t.Fatalf("expected lower-cased size, got %q", a.Tracker().Order().Size)
	}
}

func TestScripted_SummaryContainsEachValueOnce(t *testing.T) {
	a := NewScriptedAgent()
	got := drive(t, a, "mocha", "small", "hot", "almond", "sugar")
	for _, v := range []string{"mocha", "small", "hot", "almond", "sugar"} {
		if strings.Count(got, v) != 1 {
			t.Fatalf("expected exactly one occurrence of %q in %q", v, got)
		}
	}
}

func TestScripted_ConfirmationBranch(t *testing.T) {
	cases := []struct {
		utterance string
		want      string
	}{
		{"yes", msgClosed},
		{"yes please", msgClosed},
		{"Confirm it", msgClosed},
		{"YES", msgClosed},
		{"yep", msgRetry},
		{"change the milk", msgRetry},
		{"restart", msgRetry},
	}
	for _, tc := range cases {
		a := NewScriptedAgent()
		drive(t, a, "latte", "medium", "iced", "oat", "no")
		got, err := a.HandleUtterance(context.Background(), tc.utterance)
		if err != nil {
			t.Fatalf("handle %q: %v", tc.utterance, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %q want %q", tc.utterance, got, tc.want)
		}
	}
}

func TestScripted_StateFrozenAfterConfirmationPrompt(t *testing.T) {
	a := NewScriptedAgent()
	drive(t, a, "latte", "medium", "iced", "oat", "no")
	before := a.Tracker().Order()
	// neither a decline nor a confirm mutates the record
	drive(t, a, "change the drink to espresso", "yes")
	after := a.Tracker().Order()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("order mutated after confirmation prompt:\nbefore %+v\nafter  %+v", before, after)
	}
	if a.Tracker().State() != order.StateAwaitingConfirmation {
		t.Fatalf("state changed after confirmation prompt: %v", a.Tracker().State())
	}
}
