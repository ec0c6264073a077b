package barista

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/llm"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/ordersink"
)

// delegatedInstructions hands the whole slot-filling flow to the model. The
// "exactly once" rule for save_order is instruction-only; nothing programmatic
// prevents a second call.
const delegatedInstructions = `You are MurfBrew, a friendly and confident AI barista from a premium café.
The user speaks to you through voice.

Your job:
- Greet the customer naturally.
- Take their coffee order step by step, asking one question at a time.
- You must learn all of: drinkType, size, milk, extras, and the customer's first name.
- Keep asking until every field is known. Extras may be empty if the customer wants none.
- Once the order is fully known, repeat it back and ask the customer to confirm.
- When the customer confirms, call save_order exactly once with the complete order, then close politely.

Tone rules:
- Sound like a real barista, not an AI assistant.
- Keep responses short, casual and natural.
- No emojis. No robotic phrases.`

// ChatModel is one model turn with optional tool access; satisfied by *llm.GeminiClient.
type ChatModel interface {
	GenerateContent(ctx context.Context, system string, contents []llm.Content, tools []llm.Tool) (llm.Content, error)
}

// OrderSink durably records a completed order and returns the spoken confirmation.
type OrderSink interface {
	Save(rec ordersink.Record) (string, error)
}

var saveOrderTool = llm.Tool{
	FunctionDeclarations: []llm.FunctionDeclaration{{
		Name:        "save_order",
		Description: "Persist the customer's completed coffee order. Call once, after the customer has confirmed.",
		Parameters: &llm.Schema{
			Type: "object",
			Properties: map[string]*llm.Schema{
				"drinkType": {Type: "string"},
				"size":      {Type: "string"},
				"milk":      {Type: "string"},
				"extras":    {Type: "array", Items: &llm.Schema{Type: "string"}},
				"name":      {Type: "string"},
			},
			Required: []string{"drinkType", "size", "milk", "extras", "name"},
		},
	}},
}

// DelegatedAgent routes every utterance through the model and only implements the
// save_order contract itself. Conversation state lives in the model's context window,
// not in an explicit tracker.
type DelegatedAgent struct {
	model   ChatModel
	sink    OrderSink
	history []llm.Content
}

func NewDelegatedAgent(model ChatModel, sink OrderSink) *DelegatedAgent {
	return &DelegatedAgent{model: model, sink: sink}
}

// maxToolRounds bounds the generate/tool loop within a single turn.
const maxToolRounds = 3

// HandleUtterance forwards the utterance to the model and executes any save_order
// call it issues, feeding the sink's summary back so the model can word its goodbye.
func (a *DelegatedAgent) HandleUtterance(ctx context.Context, utterance string) (string, error) {
	a.history = append(a.history, llm.Content{Role: "user", Parts: []llm.Part{{Text: utterance}}})

	for round := 0; round < maxToolRounds; round++ {
		out, err := a.model.GenerateContent(ctx, delegatedInstructions, a.history, []llm.Tool{saveOrderTool})
		if err != nil {
			return "", err
		}
		a.history = append(a.history, out)

		fc := llm.FindFunctionCall(out)
		if fc == nil {
			return strings.TrimSpace(llm.Text(out)), nil
		}
		if fc.Name != "save_order" {
			return "", fmt.Errorf("barista: model called unknown tool %q", fc.Name)
		}

		var rec ordersink.Record
		if err := json.Unmarshal(fc.Args, &rec); err != nil {
			return "", fmt.Errorf("barista: decode save_order args: %w", err)
		}
		summary, err := a.sink.Save(rec)
		if err != nil {
			return "", err
		}
		a.history = append(a.history, llm.Content{
			Role: "function",
			Parts: []llm.Part{{FunctionResponse: &llm.FunctionResponse{
				Name:     "save_order",
				Response: map[string]any{"result": summary},
			}}},
		})
	}
	return "", fmt.Errorf("barista: tool loop exceeded %d rounds", maxToolRounds)
}
