package tts

import (
	"context"
	"testing"
	"time"
)

// Smoke test for StreamPCM48k without an API key; it should error quickly
func TestDeepgram_StreamPCM48k_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.StreamPCM48k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
		// ignore
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestMurf_StreamPCM48k_NoKey(t *testing.T) {
	m := NewMurfClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := m.StreamPCM48k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
		// ignore
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestMurf_EmptyTextProducesNoAudio(t *testing.T) {
	m := NewMurfClient("key", "")
	pcmCh, errCh := m.StreamPCM48k(context.Background(), "")
	select {
	case b, ok := <-pcmCh:
		if ok {
			t.Fatalf("expected no audio for empty text, got %d bytes", len(b))
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for channel close")
	}
	if err := <-errCh; err != nil {
		t.Fatalf("expected no error for empty text, got %v", err)
	}
}

func TestMurf_DefaultVoice(t *testing.T) {
	m := NewMurfClient("key", "")
	if m.VoiceID != "en-US-matthew" {
		t.Fatalf("expected default voice, got %q", m.VoiceID)
	}
}
