package barista

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/llm"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/ordersink"
)

// fakeModel replays scripted responses, one per GenerateContent call.
type fakeModel struct {
	replies []llm.Content
	calls   int
	lastIn  []llm.Content
	err     error
}

func (f *fakeModel) GenerateContent(_ context.Context, _ string, contents []llm.Content, _ []llm.Tool) (llm.Content, error) {
	f.lastIn = append([]llm.Content(nil), contents...)
	if f.err != nil {
		return llm.Content{}, f.err
	}
	if f.calls >= len(f.replies) {
		return llm.Content{}, errors.New("fakeModel: no reply scripted")
	}
	out := f.replies[f.calls]
	f.calls++
	return out, nil
}

type fakeSink struct {
	saved []ordersink.Record
	err   error
}

func (f *fakeSink) Save(rec ordersink.Record) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, rec)
	return ordersink.Summary(rec), nil
}

func textReply(s string) llm.Content {
	return llm.Content{Role: "model", Parts: []llm.Part{{Text: s}}}
}

func toolReply(name string, args string) llm.Content {
	return llm.Content{Role: "model", Parts: []llm.Part{{FunctionCall: &llm.FunctionCall{Name: name, Args: json.RawMessage(args)}}}}
}

func TestDelegated_PlainTextTurn(t *testing.T) {
	m := &fakeModel{replies: []llm.Content{textReply("  What size would you like?  ")}}
	a := NewDelegatedAgent(m, &fakeSink{})
	got, err := a.HandleUtterance(context.Background(), "a latte please")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got != "What size would you like?" {
		t.Fatalf("expected trimmed model text, got %q", got)
	}
	if m.calls != 1 {
		t.Fatalf("expected one model call, got %d", m.calls)
	}
}

func TestDelegated_SaveOrderToolCall(t *testing.T) {
	args := `{"drinkType":"latte","size":"medium","milk":"oat","extras":["caramel"],"name":"Priya"}`
	m := &fakeModel{replies: []llm.Content{
		toolReply("save_order", args),
		textReply("All set, Priya. See you at the counter!"),
	}}
	sink := &fakeSink{}
	a := NewDelegatedAgent(m, sink)

	got, err := a.HandleUtterance(context.Background(), "yes, confirm it")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got != "All set, Priya. See you at the counter!" {
		t.Fatalf("unexpected final reply %q", got)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("expected one saved order, got %d", len(sink.saved))
	}
	rec := sink.saved[0]
	if rec.DrinkType != "latte" || rec.Size != "medium" || rec.Milk != "oat" || rec.Name != "Priya" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.Extras) != 1 || rec.Extras[0] != "caramel" {
		t.Fatalf("unexpected extras %v", rec.Extras)
	}

	// the sink's summary must be fed back as the function response
	var sawResponse bool
	for _, c := range m.lastIn {
		for _, p := range c.Parts {
			if p.FunctionResponse != nil && p.FunctionResponse.Name == "save_order" {
				sawResponse = true
				result, _ := p.FunctionResponse.Response["result"].(string)
				if !strings.Contains(result, "Priya") {
					t.Fatalf("function response missing summary: %v", p.FunctionResponse.Response)
				}
			}
		}
	}
	if !sawResponse {
		t.Fatalf("expected save_order function response in follow-up model call")
	}
}

func TestDelegated_SinkErrorPropagates(t *testing.T) {
	args := `{"drinkType":"latte","size":"medium","milk":"oat","extras":[],"name":"Kim"}`
	m := &fakeModel{replies: []llm.Content{toolReply("save_order", args)}}
	a := NewDelegatedAgent(m, &fakeSink{err: errors.New("disk full")})
	if _, err := a.HandleUtterance(context.Background(), "confirm"); err == nil {
		t.Fatalf("expected sink error to propagate")
	}
}

func TestDelegated_UnknownToolRejected(t *testing.T) {
	m := &fakeModel{replies: []llm.Content{toolReply("delete_order", `{}`)}}
	a := NewDelegatedAgent(m, &fakeSink{})
	if _, err := a.HandleUtterance(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

func TestDelegated_BadArgsRejected(t *testing.T) {
	m := &fakeModel{replies: []llm.Content{toolReply("save_order", `not-json`)}}
	a := NewDelegatedAgent(m, &fakeSink{})
	if _, err := a.HandleUtterance(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for malformed args")
	}
}

func TestDelegated_ModelErrorPropagates(t *testing.T) {
	m := &fakeModel{err: errors.New("rate limited")}
	a := NewDelegatedAgent(m, &fakeSink{})
	if _, err := a.HandleUtterance(context.Background(), "hi"); err == nil {
		t.Fatalf("expected model error to propagate")
	}
}

func TestDelegated_HistoryAccumulatesAcrossTurns(t *testing.T) {
	m := &fakeModel{replies: []llm.Content{textReply("What size?"), textReply("Hot or iced?")}}
	a := NewDelegatedAgent(m, &fakeSink{})
	if _, err := a.HandleUtterance(context.Background(), "a latte"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if _, err := a.HandleUtterance(context.Background(), "medium"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	// second call sees user, model, user
	if len(m.lastIn) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(m.lastIn))
	}
	if m.lastIn[0].Role != "user" || m.lastIn[1].Role != "model" || m.lastIn[2].Role != "user" {
		t.Fatalf("unexpected role sequence %v %v %v", m.lastIn[0].Role, m.lastIn[1].Role, m.lastIn[2].Role)
	}
}
