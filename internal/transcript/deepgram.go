package transcript

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
)

// SILENCE_THRESHOLD is the base inactivity window required before we consider an utterance complete.
// Keep conservative to avoid cutting user mid-sentence.
const SILENCE_THRESHOLD = 700 * time.Millisecond

// CONTINUATION_EXTENSION extends the threshold when the last word implies continuation
// (e.g., "and", "or", "if"), so the customer can finish listing extras.
const CONTINUATION_EXTENSION = 1200 * time.Millisecond

// STABILIZATION_GRACE waits a little after crossing the silence threshold to
// absorb any late transcript updates from the ASR before finalizing.
const STABILIZATION_GRACE = 250 * time.Millisecond

// DeepgramService streams microphone PCM to Deepgram's realtime listen API and turns
// interim/final result segments into one finalized utterance per customer turn.
type DeepgramService struct {
	apiKey      string
	model       string
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}
	conn        *websocket.Conn
	mu          sync.RWMutex
	connected   bool

	// utterance accumulation: finalized result segments plus the latest interim
	accMu          sync.Mutex
	finalSegments  []string
	interim        string
	lastUpdateTime time.Time
	// resettable timer to detect end-of-utterance based on inactivity
	silenceTimer *time.Timer
	// last time we detected non-silent voice energy in the incoming PCM
	lastVoiceTime time.Time
}

// resultMessage is the subset of Deepgram's Results payload we consume.
type resultMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type metadataMessage struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Duration  float64 `json:"duration"`
}

// NewDeepgramService creates a new streaming transcription service.
func NewDeepgramService(apiKey, model string) *DeepgramService {
	if model == "" {
		model = "nova-3"
	}
	return &DeepgramService{
		apiKey:      apiKey,
		model:       model,
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Finalize returns a channel signaling end-of-utterance with the accumulated text.
func (s *DeepgramService) Finalize() <-chan string { return s.finalizeCh }

// Connect establishes the WebSocket connection to Deepgram.
func (s *DeepgramService) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return fmt.Errorf("deepgram API key is empty")
	}

	params := url.Values{}
	params.Set("model", s.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("channels", "1")
	params.Set("interim_results", "true")
	params.Set("punctuate", "true")

	wsURL := fmt.Sprintf("wss://api.deepgram.com/v1/listen?%s", params.Encode())
	headers := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	log.Printf("Connecting to Deepgram at: %s", wsURL)
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("Deepgram connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	s.conn = conn
	s.connected = true
	s.lastUpdateTime = time.Now()
	s.lastVoiceTime = time.Now()

	go s.handleMessages()
	go s.sendAudioData()

	log.Println("Successfully connected to Deepgram streaming service")
	return nil
}

// SendAudio queues audio data to be sent to Deepgram.
func (s *DeepgramService) SendAudio(audioData []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return fmt.Errorf("not connected to Deepgram")
	}
	// Simple RMS scan to track voice activity alongside the ASR stream
	s.detectVoiceActivity(audioData)
	select {
	case s.audioData <- audioData:
		return nil
	default:
		log.Println("Audio buffer full, dropping packet")
		return nil
	}
}

// SendPCM16KLE implements the agent.Transcriber-friendly method name.
func (s *DeepgramService) SendPCM16KLE(pcm []byte) error { return s.SendAudio(pcm) }

// detectVoiceActivity updates lastVoiceTime if PCM buffer contains voice energy above a threshold.
// Expects 16-bit little-endian PCM mono at 16 kHz.
func (s *DeepgramService) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2            // every sample
	if len(pcm) > 3200 { // if it's a bigger chunk, sample sparsely
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	}
}

// GetTranscripts returns the channel for receiving live transcript fragments.
func (s *DeepgramService) GetTranscripts() <-chan string { return s.transcripts }

// RecentlyDetectedVoice reports whether non-silent voice energy was observed within the given window.
func (s *DeepgramService) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close closes the connection and cleans up resources.
func (s *DeepgramService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.silenceTimer != nil {
		_ = s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	// Best-effort flush of any pending utterance before closing channels
	s.flushPending()
	close(s.audioData)
	close(s.transcripts)
	close(s.finalizeCh)
	log.Println("Deepgram connection closed")
	return nil
}

// handleMessages processes incoming WebSocket messages.
func (s *DeepgramService) handleMessages() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in handleMessages: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Error reading message: %v", err)
				return
			}
			s.processMessage(message)
		}
	}
}

// processMessage handles Results, UtteranceEnd and Metadata payloads from Deepgram.
func (s *DeepgramService) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("Error unmarshaling message: %v", err)
		return
	}
	switch base.Type {
	case "Results":
		var msg resultMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Results message: %v", err)
			return
		}
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
		if text == "" {
			return
		}
		// stream fragments for UI
		select {
		case s.transcripts <- text:
		default:
		}
		s.accMu.Lock()
		if msg.IsFinal {
			s.finalSegments = append(s.finalSegments, text)
			s.interim = ""
		} else {
			s.interim = text
		}
		s.lastUpdateTime = time.Now()
		// reset or start the silence timer; finalize fires only after inactivity
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.accMu.Unlock()
	case "UtteranceEnd":
		// Deepgram's own end-of-speech marker; flush whatever has accumulated
		s.flushPending()
	case "Metadata":
		var msg metadataMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling Metadata message: %v", err)
			return
		}
		log.Printf("Deepgram session metadata: RequestID=%s Duration=%.2fs", msg.RequestID, msg.Duration)
	case "Error":
		log.Printf("Deepgram error message: %s", string(message))
	default:
		// SpeechStarted and friends are informational
	}
}

// pendingUtterance joins finalized segments with the trailing interim, without committing.
func (s *DeepgramService) pendingUtterance() string {
	parts := append([]string(nil), s.finalSegments...)
	if s.interim != "" {
		parts = append(parts, s.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// finalizeDueToSilence is invoked after SILENCE_THRESHOLD of inactivity. It emits the
// accumulated utterance once both the transcript stream and the voice energy have been
// quiet long enough.
func (s *DeepgramService) finalizeDueToSilence() {
	// If we're shutting down, do nothing to avoid sends on closed channels
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	// Dynamically extend threshold for continuation-like endings
	threshold := SILENCE_THRESHOLD
	if isContinuationLikely(s.pendingUtterance()) {
		threshold += CONTINUATION_EXTENSION
	}
	sinceText := now.Sub(s.lastUpdateTime)
	sinceVoice := now.Sub(s.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		// Not enough inactivity; reschedule for the remaining window
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}

	// Snapshot last update time and release the lock to wait for stabilization
	lastUpdateAt := s.lastUpdateTime
	s.accMu.Unlock()

	// Grace period to catch late transcript updates
	time.Sleep(STABILIZATION_GRACE)

	s.accMu.Lock()
	if s.lastUpdateTime.After(lastUpdateAt) {
		// A late update arrived during grace; push the timer forward
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(SILENCE_THRESHOLD, s.finalizeDueToSilence)
		} else {
			_ = s.silenceTimer.Stop()
			s.silenceTimer.Reset(SILENCE_THRESHOLD)
		}
		s.accMu.Unlock()
		return
	}
	utterance := s.pendingUtterance()
	s.finalSegments = s.finalSegments[:0]
	s.interim = ""
	s.accMu.Unlock()

	if utterance == "" {
		return
	}
	// Deliver without dropping to guarantee every word is sent downstream.
	select {
	case <-s.stopCh:
		return
	case s.finalizeCh <- utterance:
	}
}

// flushPending sends any remaining accumulated utterance.
// It is best-effort and will not block indefinitely on shutdown.
func (s *DeepgramService) flushPending() {
	s.accMu.Lock()
	utterance := s.pendingUtterance()
	s.finalSegments = s.finalSegments[:0]
	s.interim = ""
	s.accMu.Unlock()
	if utterance == "" {
		return
	}
	select {
	case s.finalizeCh <- utterance:
	case <-time.After(200 * time.Millisecond):
		log.Printf("Deepgram flush: timed out delivering final utterance")
	}
}

// isContinuationLikely returns true if the last meaningful word indicates the
// speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	// Split on non-letters to extract words
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// Coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// Subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// Discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// Common prepositions that are awkward sentence endings; extend to await continuation
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}

// sendAudioData sends queued audio data to Deepgram.
func (s *DeepgramService) sendAudioData() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", r)
		}
	}()
	for {
		select {
		case <-s.stopCh:
			return
		case audioData, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.BinaryMessage, audioData); err != nil {
					log.Printf("Error sending audio data: %v", err)
					return
				}
			}
		}
	}
}
