package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// MurfClient streams synthesized speech from Murf's HTTP streaming endpoint.
type MurfClient struct {
	APIKey  string
	VoiceID string
	Style   string
}

func NewMurfClient(apiKey, voiceID string) *MurfClient {
	if voiceID == "" {
		voiceID = "en-US-matthew"
	}
	return &MurfClient{APIKey: apiKey, VoiceID: voiceID, Style: "Conversation"}
}

// StreamPCM48k streams 48kHz PCM mono audio for the given text, adapting to the
// agent.TTS interface.
func (m *MurfClient) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if m.APIKey == "" {
			errCh <- fmt.Errorf("murf: api key missing")
			return
		}
		if text == "" {
			return
		}
		if err := m.httpStream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

// httpStream posts the text and forwards raw PCM body chunks to pcmCh as they arrive.
func (m *MurfClient) httpStream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	u := url.URL{
		Scheme: "https",
		Host:   "api.murf.ai",
		Path:   "/v1/speech/stream",
	}

	body := map[string]any{
		"text":        text,
		"voiceId":     m.VoiceID,
		"style":       m.Style,
		"format":      "PCM",
		"sampleRate":  48000,
		"channelType": "MONO",
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("murf http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("murf http status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			default:
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("murf http read error: %w", rerr)
		}
	}
}
