package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("DEEPGRAM_STT_MODEL", "")
	t.Setenv("GEMINI_MODEL_ID", "")
	t.Setenv("MURF_VOICE_ID", "")
	t.Setenv("AGENT_MODE", "")
	t.Setenv("ORDERS_DIR", "")
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.DeepgramSTTModel != "nova-3" {
		t.Fatalf("expected default stt model, got %q", cfg.DeepgramSTTModel)
	}
	if cfg.GeminiModelID != "gemini-2.5-flash" {
		t.Fatalf("expected default gemini model, got %q", cfg.GeminiModelID)
	}
	if cfg.MurfVoiceID != "en-US-matthew" {
		t.Fatalf("expected default voice id, got %q", cfg.MurfVoiceID)
	}
	if cfg.AgentMode != "scripted" {
		t.Fatalf("expected default agent mode, got %q", cfg.AgentMode)
	}
	if cfg.OrdersDir != "orders" {
		t.Fatalf("expected default orders dir, got %q", cfg.OrdersDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("AGENT_MODE", "llm")
	t.Setenv("ORDERS_DIR", "/tmp/orders")
	cfg := Load()
	if cfg.HTTPAddress != ":9999" {
		t.Fatalf("expected overridden http address, got %q", cfg.HTTPAddress)
	}
	if cfg.AgentMode != "llm" {
		t.Fatalf("expected overridden agent mode, got %q", cfg.AgentMode)
	}
	if cfg.OrdersDir != "/tmp/orders" {
		t.Fatalf("expected overridden orders dir, got %q", cfg.OrdersDir)
	}
}
