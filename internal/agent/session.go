package agent

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// chunkReply splits a reply into sentence-like chunks to allow committing transcript
// increments only after corresponding audio is emitted.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Session orchestrates STT -> barista -> TTS for a single ordering call. One inbound
// utterance produces at most one outbound spoken reply; turns are strictly sequential.
type Session struct {
	transcriber  Transcriber
	barista      Barista
	tts          TTS
	sink         PCM48kSink
	onTranscript func(text string)
	// onTurn is invoked when a user utterance completes and the barista has spoken
	// back some or all of its reply. The reply text provided is exactly what was
	// actually spoken to the user (possibly truncated if interrupted).
	onTurn func(user string, spoken string)

	mu               sync.Mutex
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool
}

// NewSession constructs a new Session.
func NewSession(t Transcriber, b Barista, tts TTS, sink PCM48kSink, onTranscript func(string), onTurn func(string, string)) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{transcriber: t, barista: b, tts: tts, sink: sink, onTranscript: onTranscript, onTurn: onTurn}
}

// Start connects the transcriber and begins processing. It returns a stop function.
func (s *Session) Start(ctx context.Context) (func(), error) {
	if err := s.transcriber.Connect(); err != nil {
		return nil, err
	}

	// Stream live transcripts (optional UI)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-s.transcriber.GetTranscripts():
				if !ok {
					return
				}
				if s.onTranscript != nil && t != "" {
					s.onTranscript(t)
				}
			}
		}
	}()

	// On finalized utterance -> barista -> TTS -> sink
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-s.transcriber.Finalize():
				if !ok {
					return
				}
				// Normalize whitespace only; slot values are stored verbatim downstream
				prompt := strings.TrimSpace(utterance)
				if prompt == "" {
					continue
				}
				log.Printf("heard(final): %s", prompt)
				// Before the barista speaks, ensure sustained silence from the user
				// to avoid talking over them. Wait up to a bounded time for a silence window.
				waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
				for waitCtx.Err() == nil {
					// Require at least 500ms without detected voice energy before proceeding
					if !s.transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
						break
					}
					time.Sleep(50 * time.Millisecond)
				}
				waitCancel()

				turnCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
				reply, err := s.barista.HandleUtterance(turnCtx, prompt)
				cancel()
				if err != nil {
					log.Printf("barista error: %v", err)
					continue
				}
				reply = strings.TrimSpace(reply)
				if reply == "" {
					continue
				}

				spokenText, wasBarged := s.speak(ctx, reply)
				if wasBarged {
					if len(spokenText) > 0 {
						spokenText = spokenText + " [INTERUPTED BY USER]"
					} else {
						spokenText = "[INTERUPTED BY USER]"
					}
				}
				if s.onTurn != nil {
					// Provide exactly what was spoken to the user for this turn
					s.onTurn(prompt, spokenText)
				}
			}
		}
	}()

	stop := func() {
		_ = s.transcriber.Close()
	}
	return stop, nil
}

// Say speaks a barista-initiated line (e.g., the greeting) through the same chunked
// TTS path used for replies. It blocks until the audio has been streamed or barged.
func (s *Session) Say(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	spoken, _ := s.speak(ctx, text)
	if s.onTurn != nil && spoken != "" {
		s.onTurn("", spoken)
	}
}

// speak streams the reply chunk by chunk and returns the text actually delivered
// along with whether the user barged in mid-reply.
func (s *Session) speak(ctx context.Context, reply string) (string, bool) {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.ttsCancel = cancelTTS
	s.bargeInRequested = false
	s.mu.Unlock()

	var spokenBuilder strings.Builder
	chunks := chunkReply(reply)
CHUNK_LOOP:
	for i, chunk := range chunks {
		s.mu.Lock()
		barged := s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}

		// Stream current chunk
		pcmCh, errCh := s.tts.StreamPCM48k(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 {
						s.mu.Lock()
						drop := s.bargeInRequested
						s.mu.Unlock()
						if !drop {
							s.sink.WritePCM(b)
						}
					}
				} else {
					openPCM = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Printf("tts stream error: %v", e)
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		// If not barged after finishing this chunk, commit chunk text to spoken builder
		s.mu.Lock()
		barged = s.bargeInRequested
		s.mu.Unlock()
		if !barged {
			spokenBuilder.WriteString(strings.TrimSpace(chunk))
			// Add a single space between chunks when needed
			if i < len(chunks)-1 {
				spokenBuilder.WriteString(" ")
			}
		} else {
			break CHUNK_LOOP
		}
	}

	// capture whether barge-in was requested; then clear speaking state
	s.mu.Lock()
	wasBarged := s.bargeInRequested
	s.speaking = false
	s.ttsCancel = nil
	s.bargeInRequested = false
	s.mu.Unlock()
	cancelTTS()
	if !wasBarged {
		s.sink.FlushTail()
	}

	return strings.TrimSpace(spokenBuilder.String()), wasBarged
}

// FeedPCM16KLE sends input audio to the transcriber.
func (s *Session) FeedPCM16KLE(pcm []byte) {
	_ = s.transcriber.SendPCM16KLE(pcm)
}

type nopSink struct{}

func (nopSink) WritePCM(_ []byte) {}
func (nopSink) FlushTail()        {}
func (nopSink) Reset()            {}

// IsSpeaking reports whether TTS is currently active for this session.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeIn cancels current TTS streaming and prevents further audio from being written to the sink.
func (s *Session) BargeIn() {
	s.mu.Lock()
	cancel := s.ttsCancel
	if s.speaking {
		s.bargeInRequested = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Drop any queued audio immediately to ensure interruption feels instant
	s.sink.Reset()
}
