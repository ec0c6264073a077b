package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGemini_NoKey(t *testing.T) {
	c := NewGeminiClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.GenerateContent(ctx, "", []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}}, nil); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestGemini_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
		{"empty_candidates", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewGeminiClient("key", "model")
			c.BaseURL = srv.URL
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.GenerateContent(ctx, "", []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}}, nil); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

func TestGemini_TextAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  hello there "}]}}]}`))
	}))
	defer srv.Close()
	c := NewGeminiClient("key", "model")
	c.BaseURL = srv.URL
	out, err := c.GenerateContent(context.Background(), "be brief", []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}}, nil)
	if err != nil {
		t.Fatalf("generate content: %v", err)
	}
	if strings.TrimSpace(Text(out)) != "hello there" {
		t.Fatalf("expected text parts, got %q", Text(out))
	}
}

func TestGemini_FunctionCallParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"save_order","args":{"size":"large"}}}]}}]}`))
	}))
	defer srv.Close()
	c := NewGeminiClient("key", "model")
	c.BaseURL = srv.URL
	out, err := c.GenerateContent(context.Background(), "", []Content{{Role: "user", Parts: []Part{{Text: "hi"}}}}, nil)
	if err != nil {
		t.Fatalf("generate content: %v", err)
	}
	fc := FindFunctionCall(out)
	if fc == nil || fc.Name != "save_order" {
		t.Fatalf("expected save_order function call, got %+v", out)
	}
}
