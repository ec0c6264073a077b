package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/config"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/middleware"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/ordersink"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/rtc"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/storage"
	"github.com/shreyaa002/ten-days-of-voice-agents-2025/internal/telephony"
)

// Server bundles the HTTP router and dependencies.
type Server struct {
	Router http.Handler
}

// New constructs the HTTP server with routes.
func New(cfg config.Config) *Server {
	e := newRouter()

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	var archive ordersink.Archiver
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		st, err := storage.New(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("supabase storage disabled: %v", err)
		} else {
			archive = st
		}
	}

	h := rtc.NewHandler(cfg.DeepgramAPIKey).
		WithSTT(cfg.DeepgramSTTModel).
		WithLLM(cfg.GeminiAPIKey, cfg.GeminiModelID).
		WithTTS(cfg.MurfAPIKey, cfg.MurfVoiceID).
		WithMode(cfg.AgentMode).
		WithOrders(cfg.OrdersDir, archive)

	e.POST("/call", func(c echo.Context) error {
		if !callAuthOK(c.Request(), cfg.AuthPassword) {
			return c.NoContent(http.StatusUnauthorized)
		}
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			log.Printf("invalid offer: %v", err)
			return c.NoContent(http.StatusBadRequest)
		}
		answer, err := h.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Printf("webrtc handle offer failed: %v", err)
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusOK, answer)
	})

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		var twilioStorage telephony.Storage
		if archive != nil {
			twilioStorage = archive
		}
		svc := telephony.NewTwilioService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, twilioStorage)
		telephony.NewHandlers(svc).Register(e, middleware.TwilioAuth(func() string { return cfg.TwilioAuthToken }))
	}

	return &Server{Router: e}
}

// callAuthOK checks the optional shared password on the signaling endpoint.
// Accepted as ?password=, X-Auth-Token, or an Authorization bearer token.
func callAuthOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") && auth[7:] == expected {
		return true
	}
	return false
}
