package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	AuthPassword     string
	DeepgramAPIKey   string
	DeepgramSTTModel string
	GeminiAPIKey     string
	GeminiModelID    string
	MurfAPIKey       string
	MurfVoiceID      string
	AgentMode        string
	OrdersDir        string

	TwilioAccountSID string
	TwilioAuthToken  string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}
	sttModel := os.Getenv("DEEPGRAM_STT_MODEL")
	if sttModel == "" {
		sttModel = "nova-3"
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	geminiModel := os.Getenv("GEMINI_MODEL_ID")
	if geminiModel == "" {
		geminiModel = "gemini-2.5-flash"
	}

	murfKey := os.Getenv("MURF_API_KEY")
	if murfKey == "" {
		log.Println("Warning: MURF_API_KEY not set - falling back to Deepgram TTS")
	}
	voiceID := os.Getenv("MURF_VOICE_ID")
	if voiceID == "" {
		voiceID = "en-US-matthew"
	}

	mode := os.Getenv("AGENT_MODE")
	if mode == "" {
		mode = "scripted"
	}
	if mode == "llm" && geminiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - llm mode will not work")
	}

	ordersDir := os.Getenv("ORDERS_DIR")
	if ordersDir == "" {
		ordersDir = "orders"
	}

	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "recordings"
	}

	log.Printf("config: HTTP_ADDRESS=%s AGENT_MODE=%s", addr, mode)
	return Config{
		HTTPAddress:      addr,
		AuthPassword:     os.Getenv("AUTH_PASSWORD"),
		DeepgramAPIKey:   deepgramKey,
		DeepgramSTTModel: sttModel,
		GeminiAPIKey:     geminiKey,
		GeminiModelID:    geminiModel,
		MurfAPIKey:       murfKey,
		MurfVoiceID:      voiceID,
		AgentMode:        mode,
		OrdersDir:        ordersDir,

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),

		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         supabaseBucket,
	}
}
