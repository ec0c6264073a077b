package order

import "strings"

// Order is the record collected across one ordering session. Slot values are stored
// verbatim from the user's utterance; no validation against a menu is performed.
type Order struct {
	Drink       string   `json:"drink"`
	Size        string   `json:"size"`
	Temperature string   `json:"temperature"`
	Milk        string   `json:"milk"`
	Extras      []string `json:"extras"`
	Confirmed   bool     `json:"confirmed"`
}

// State identifies which slot the session is waiting on. Slots are filled in a fixed
// order and never revisited; there is no edit or undo transition. StateClosed is
// reachable only via Close (session teardown) - the scripted flow advertises a
// "restart" after confirmation but has no transition for it.
type State int

const (
	StateAwaitingDrink State = iota
	StateAwaitingSize
	StateAwaitingTemperature
	StateAwaitingMilk
	StateAwaitingExtras
	StateAwaitingConfirmation
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingDrink:
		return "awaiting_drink"
	case StateAwaitingSize:
		return "awaiting_size"
	case StateAwaitingTemperature:
		return "awaiting_temperature"
	case StateAwaitingMilk:
		return "awaiting_milk"
	case StateAwaitingExtras:
		return "awaiting_extras"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// negativePhrases suppress adding an utterance to extras but still advance the flow.
var negativePhrases = map[string]struct{}{
	"no":         {},
	"none":       {},
	"that's all": {},
	"done":       {},
}

// IsNegative reports whether the utterance declines extras. Matching is exact on the
// lower-cased, trimmed text; "yep"/"nope" style synonyms are deliberately not handled.
func IsNegative(utterance string) bool {
	_, ok := negativePhrases[strings.ToLower(strings.TrimSpace(utterance))]
	return ok
}

// Tracker holds one session's partially-filled Order together with an explicit slot
// state. One Tracker is created per session; nothing is shared across sessions.
type Tracker struct {
	state State
	order Order
}

func NewTracker() *Tracker {
	return &Tracker{state: StateAwaitingDrink}
}

// State returns the slot the tracker is currently waiting on.
func (t *Tracker) State() State { return t.state }

// Order returns a copy of the record collected so far.
func (t *Tracker) Order() Order {
	o := t.order
	o.Extras = append([]string(nil), t.order.Extras...)
	return o
}

// Fill stores value into the slot the tracker is waiting on and advances to the next
// slot. It is a no-op once the extras slot has been passed; extras and confirmation
// have dedicated transitions.
func (t *Tracker) Fill(value string) {
	switch t.state {
	case StateAwaitingDrink:
		t.order.Drink = value
		t.state = StateAwaitingSize
	case StateAwaitingSize:
		t.order.Size = value
		t.state = StateAwaitingTemperature
	case StateAwaitingTemperature:
		t.order.Temperature = value
		t.state = StateAwaitingMilk
	case StateAwaitingMilk:
		t.order.Milk = value
		t.state = StateAwaitingExtras
	}
}

// FillExtras records at most one extras entry, skipping recognized negative phrases,
// marks the order as shown-for-confirmation and moves to the final yes/no branch.
func (t *Tracker) FillExtras(value string) {
	if t.state != StateAwaitingExtras {
		return
	}
	if !IsNegative(value) {
		t.order.Extras = append(t.order.Extras, value)
	}
	t.order.Confirmed = true
	t.state = StateAwaitingConfirmation
}

// Close marks the session finished. The confirmation branch itself never calls this;
// it is driven by session teardown so a disconnect finalizes the record exactly once.
func (t *Tracker) Close() {
	t.state = StateClosed
}
