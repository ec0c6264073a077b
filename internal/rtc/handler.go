package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/agent"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/barista"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/llm"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/ordersink"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/transcript"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/tts"
)

// SessionDescription is a small DTO to avoid exposing webrtc types in transport.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// greeting is spoken once the audio path is up, before the first customer turn.
const greeting = "Welcome to MurfBrew! What can I get started for you today?"

// Handler manages WebRTC peer connections, one barista session per call.
type Handler struct {
	deepgramAPIKey string
	sttModel       string

	geminiAPIKey string
	geminiModel  string

	murfAPIKey  string
	murfVoiceID string

	// mode selects the dialogue engine: "scripted" runs the slot-filling flow,
	// "llm" delegates the conversation to the model with the save_order tool.
	mode      string
	ordersDir string
	archive   ordersink.Archiver
}

func NewHandler(deepgramAPIKey string) *Handler {
	return &Handler{deepgramAPIKey: deepgramAPIKey, mode: "scripted"}
}

func (h *Handler) WithSTT(model string) *Handler {
	h.sttModel = model
	return h
}

func (h *Handler) WithLLM(apiKey, model string) *Handler {
	h.geminiAPIKey, h.geminiModel = apiKey, model
	return h
}

func (h *Handler) WithTTS(murfAPIKey, voiceID string) *Handler {
	h.murfAPIKey, h.murfVoiceID = murfAPIKey, voiceID
	return h
}

func (h *Handler) WithMode(mode string) *Handler {
	if mode != "" {
		h.mode = mode
	}
	return h
}

func (h *Handler) WithOrders(dir string, archive ordersink.Archiver) *Handler {
	h.ordersDir, h.archive = dir, archive
	return h
}

// newBarista builds the dialogue engine for one call and returns it together with a
// teardown hook that finalizes the order record when the call ends.
func (h *Handler) newBarista(callID string) (agent.Barista, func()) {
	if h.mode == "llm" {
		model := llm.NewGeminiClient(h.geminiAPIKey, h.geminiModel)
		sink := ordersink.NewFileSink(h.ordersDir)
		sink.Archive = h.archive
		return barista.NewDelegatedAgent(model, sink), func() {}
	}
	sa := barista.NewScriptedAgent()
	return sa, func() {
		tr := sa.Tracker()
		o := tr.Order()
		st := tr.State()
		tr.Close()
		log.Printf("[%s] final order state=%s drink=%q size=%q temp=%q milk=%q extras=%v confirmed=%v",
			callID, st, o.Drink, o.Size, o.Temperature, o.Milk, o.Extras, o.Confirmed)
	}
}

func (h *Handler) newTTS() agent.TTS {
	if h.murfAPIKey != "" {
		return tts.NewMurfClient(h.murfAPIKey, h.murfVoiceID)
	}
	return tts.NewDeepgramClient(h.deepgramAPIKey, "")
}

// HandleOffer accepts an SDP offer and returns an SDP answer.
func (h *Handler) HandleOffer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if offer.Type != "offer" || offer.SDP == "" {
		return SessionDescription{}, errors.New("invalid offer")
	}

	callID := uuid.NewString()[:8]

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return SessionDescription{}, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return SessionDescription{}, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	peerConnection, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}})
	if err != nil {
		return SessionDescription{}, err
	}

	outTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1}, "barista-audio", "barista")
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	if _, err := peerConnection.AddTrack(outTrack); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}

	// Build services
	transcriptionService := transcript.NewDeepgramService(h.deepgramAPIKey, h.sttModel)
	engine, finalizeOrder := h.newBarista(callID)
	ttsClient := h.newTTS()

	type convoTurn struct {
		Role, Text string
		At         time.Time
	}
	var (
		transcriptMu sync.Mutex
		turns        []convoTurn
	)

	// Single state-change handler: pion keeps only the last registered handler,
	// so every cleanup stage enrolls in the teardown registry instead.
	td := &teardown{}
	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("[%s] PeerConnection state: %s", callID, state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			td.run()
		}
	})
	td.add(func() {
		transcriptMu.Lock()
		log.Printf("[%s] Conversation transcript (%d turns):", callID, len(turns))
		for i, t := range turns {
			log.Printf("[%s] %02d %s: %s", callID, i+1, strings.ToUpper(t.Role), t.Text)
		}
		transcriptMu.Unlock()
		finalizeOrder()
		_ = transcriptionService.Close()
		_ = peerConnection.Close()
	})

	// Control channel: client can request barge-in explicitly
	var sessPtr atomic.Pointer[agent.Session]
	var pacedPtr atomic.Pointer[OpusPacedWriter]
	peerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "control" {
			return
		}
		log.Printf("[%s] Control channel opened", callID)
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			cmd := strings.TrimSpace(strings.ToLower(string(msg.Data)))
			switch cmd {
			case "stop", "stop-speaking", "cancel", "barge-in":
				if s := sessPtr.Load(); s != nil {
					(*s).BargeIn()
				}
				if p := pacedPtr.Load(); p != nil {
					(*p).Reset()
				}
			}
		})
	})
	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) { log.Printf("[%s] ICE state: %s", callID, state.String()) })

	peerConnection.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("[%s] Remote audio track received: codec=%s", callID, remote.Codec().MimeType)

		// Prepare paced writer for outgoing barista audio
		paced, err := NewOpusPacedWriter(outTrack)
		if err != nil {
			log.Printf("[%s] Opus encoder error: %v", callID, err)
			return
		}
		pacedPtr.Store(paced)

		const pcm16kChunkBytes = 3200
		pcm16kBuf := make([]byte, 0, pcm16kChunkBytes*4)

		// Build orchestrator
		sess := agent.NewSession(
			transcriptionService,
			engine,
			ttsClient,
			paced,
			nil, // live partials not used here
			func(user, spoken string) {
				// Append only what was actually spoken; if interrupted the text includes marker
				transcriptMu.Lock()
				if user != "" {
					turns = append(turns, convoTurn{Role: "USER", Text: user, At: time.Now()})
				}
				if spoken != "" {
					turns = append(turns, convoTurn{Role: "BARISTA", Text: spoken, At: time.Now()})
				}
				transcriptMu.Unlock()
				if spoken != "" {
					log.Printf("[%s] SPOKEN barista: %s", callID, spoken)
				} else {
					log.Printf("[%s] SPOKEN barista: (none)", callID)
				}
			},
		)
		sessPtr.Store(sess)

		// Mic reader (started only if transcription connects)
		startMicReader := func(dec *opus.Decoder) {
			go func() {
				pcmSamples := make([]int16, 1920)
				for {
					pkt, _, readErr := remote.ReadRTP()
					if readErr != nil {
						log.Printf("[%s] RTP read error: %v", callID, readErr)
						return
					}
					if len(pkt.Payload) == 0 {
						continue
					}
					n, decErr := dec.Decode(pkt.Payload, pcmSamples)
					if decErr != nil {
						log.Printf("[%s] Opus decode error: %v", callID, decErr)
						continue
					}
					startLen := len(pcm16kBuf)
					need := n * 2
					if cap(pcm16kBuf)-len(pcm16kBuf) < need {
						newCap := len(pcm16kBuf) + need + pcm16kChunkBytes
						tmp := make([]byte, len(pcm16kBuf), newCap)
						copy(tmp, pcm16kBuf)
						pcm16kBuf = tmp
					}
					pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)+need]
					o := pcm16kBuf[startLen:]
					for i := 0; i < n; i++ {
						binary.LittleEndian.PutUint16(o[i*2:(i+1)*2], uint16(pcmSamples[i]))
					}
					for len(pcm16kBuf) >= pcm16kChunkBytes {
						chunk := pcm16kBuf[:pcm16kChunkBytes]
						if err := transcriptionService.SendPCM16KLE(chunk); err != nil {
							log.Printf("[%s] STT send error: %v", callID, err)
						}
						copy(pcm16kBuf, pcm16kBuf[pcm16kChunkBytes:])
						pcm16kBuf = pcm16kBuf[:len(pcm16kBuf)-pcm16kChunkBytes]
					}
				}
			}()
		}

		// Barge-in detection based on recent voice activity (VAD), not partial text.
		var speaking int32 // 0 false, 1 true
		doneCh := make(chan struct{})
		td.add(func() { close(doneCh) })
		go func() {
			ticker := time.NewTicker(40 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if atomic.LoadInt32(&speaking) == 1 && sess.IsSpeaking() {
						// If we detected voice within the last 150ms, treat as barge-in
						if transcriptionService.RecentlyDetectedVoice(150 * time.Millisecond) {
							log.Printf("[%s] barge-in: canceling TTS (VAD)", callID)
							sess.BargeIn()
							paced.Reset()
							atomic.StoreInt32(&speaking, 0)
						}
					}
				case <-doneCh:
					return
				}
			}
		}()

		// Try to connect and start orchestrator
		if err := transcriptionService.Connect(); err != nil {
			log.Printf("[%s] Failed to connect to Deepgram (barista replies disabled): %v", callID, err)
		} else {
			// Create decoder for incoming mic audio only after successful connect
			dec, derr := opus.NewDecoder(16000, 1)
			if derr != nil {
				log.Printf("[%s] Opus decoder error: %v", callID, derr)
				return
			}
			startMicReader(dec)
			ctxSess, cancelSess := context.WithCancel(context.Background())
			stop, err := sess.Start(ctxSess)
			if err != nil {
				log.Printf("[%s] session start error: %v", callID, err)
			}
			// Greet the customer once the pipeline is live
			go sess.Say(ctxSess, greeting)
			go func() {
				// lightweight ticker to sample speaking state and expose to atomic flag
				t := time.NewTicker(20 * time.Millisecond)
				defer t.Stop()
				for {
					select {
					case <-ctxSess.Done():
						return
					case <-t.C:
						if sess.IsSpeaking() {
							atomic.StoreInt32(&speaking, 1)
						} else {
							atomic.StoreInt32(&speaking, 0)
						}
					}
				}
			}()
			// ensure cleanup on close; allow frames to drain before closing
			td.add(func() {
				cancelSess()
				if stop != nil {
					stop()
				}
				paced.FlushTail()
				time.AfterFunc(400*time.Millisecond, func() { paced.Close() })
			})
		}
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := peerConnection.SetRemoteDescription(remoteOffer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		_ = peerConnection.Close()
		return SessionDescription{}, err
	}
	<-gatherComplete
	local := peerConnection.LocalDescription()
	if local == nil {
		_ = peerConnection.Close()
		return SessionDescription{}, errors.New("no local description")
	}
	return SessionDescription{Type: "answer", SDP: local.SDP}, nil
}
