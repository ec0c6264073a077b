package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiClient calls the Gemini generateContent REST API directly.
type GeminiClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	// BaseURL defaults to the public endpoint; tests point it at a local server.
	BaseURL string
}

// Content is one conversation entry: role "user", "model" or "function".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part carries exactly one of text, a model-issued function call, or the caller's
// function response.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Schema is the subset of OpenAPI schema the API accepts for tool parameters.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type generateContentRequest struct {
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
	Contents          []Content `json:"contents"`
	Tools             []Tool    `json:"tools,omitempty"`
}

type candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
	}
}

// GenerateContent runs one model turn over the given conversation. The returned
// Content may contain a functionCall part when tools are supplied.
func (c *GeminiClient) GenerateContent(ctx context.Context, system string, contents []Content, tools []Tool) (Content, error) {
	if c.APIKey == "" {
		return Content{}, fmt.Errorf("gemini api key missing")
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.BaseURL, c.Model)

	body := generateContentRequest{Contents: contents, Tools: tools}
	if system != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Content{}, err
	}
	req.Header.Set("x-goog-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Content{}, fmt.Errorf("gemini error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var gr generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return Content{}, err
	}
	if len(gr.Candidates) == 0 {
		return Content{}, fmt.Errorf("gemini: empty candidates")
	}
	return gr.Candidates[0].Content, nil
}

// Text concatenates the text parts of a Content.
func Text(c Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// FindFunctionCall returns the first function call part, if any.
func FindFunctionCall(c Content) *FunctionCall {
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			return p.FunctionCall
		}
	}
	return nil
}
