package order

import "testing"

func TestTracker_FixedSlotOrder(t *testing.T) {
	tr := NewTracker()
	steps := []struct {
		utterance string
		next      State
	}{
		{"latte", StateAwaitingSize},
		{"medium", StateAwaitingTemperature},
		{"iced", StateAwaitingMilk},
		{"oat", StateAwaitingExtras},
	}
	for _, st := range steps {
		if tr.State() == StateAwaitingExtras {
			break
		}
		tr.Fill(st.utterance)
		if tr.State() != st.next {
			t.Fatalf("after %q expected state %v, got %v", st.utterance, st.next, tr.State())
		}
	}
	o := tr.Order()
	if o.Drink != "latte" || o.Size != "medium" || o.Temperature != "iced" || o.Milk != "oat" {
		t.Fatalf("unexpected order %+v", o)
	}
	if o.Confirmed {
		t.Fatalf("order must not be confirmed before extras turn")
	}
}

func TestTracker_ExtrasNegativeAdvancesWithoutAppending(t *testing.T) {
	tr := NewTracker()
	for _, u := range []string{"latte", "medium", "iced", "oat"} {
		tr.Fill(u)
	}
	tr.FillExtras("no")
	o := tr.Order()
	if len(o.Extras) != 0 {
		t.Fatalf("expected empty extras, got %v", o.Extras)
	}
	if !o.Confirmed {
		t.Fatalf("expected confirmed after extras turn")
	}
	if tr.State() != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %v", tr.State())
	}
}

func TestTracker_ExtrasAppendsSingleUtterance(t *testing.T) {
	tr := NewTracker()
	for _, u := range []string{"latte", "medium", "iced", "oat"} {
		tr.Fill(u)
	}
	tr.FillExtras("caramel")
	o := tr.Order()
	if len(o.Extras) != 1 || o.Extras[0] != "caramel" {
		t.Fatalf("expected extras [caramel], got %v", o.Extras)
	}
	// second call must be a no-op: the extras slot is never revisited
	tr.FillExtras("whipped cream")
	if got := tr.Order().Extras; len(got) != 1 {
		t.Fatalf("extras slot revisited: %v", got)
	}
}

func TestTracker_FillIgnoredAfterExtras(t *testing.T) {
	tr := NewTracker()
	for _, u := range []string{"latte", "medium", "iced", "oat"} {
		tr.Fill(u)
	}
	tr.FillExtras("no")
	tr.Fill("espresso")
	o := tr.Order()
	if o.Drink != "latte" {
		t.Fatalf("drink slot mutated after confirmation prompt: %q", o.Drink)
	}
	if tr.State() != StateAwaitingConfirmation {
		t.Fatalf("state changed after confirmation prompt: %v", tr.State())
	}
}

func TestIsNegative(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"no", true},
		{"none", true},
		{"that's all", true},
		{"done", true},
		{"  No  ", true},
		{"nope", false},
		{"caramel", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsNegative(tc.in); got != tc.want {
			t.Fatalf("IsNegative(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateAwaitingDrink.String() != "awaiting_drink" || StateClosed.String() != "closed" {
		t.Fatalf("unexpected state names")
	}
	if State(42).String() != "unknown" {
		t.Fatalf("expected unknown for out-of-range state")
	}
}
