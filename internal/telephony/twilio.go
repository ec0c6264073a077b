package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Storage abstracts the archive backend for call recordings.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

// TwilioService defines the Twilio operations the webhook handlers rely on.
type TwilioService interface {
	StartCallRecording(callSid string, absoluteCallbackURL string) error
	UploadRecordingToStorage(ctx context.Context, recordingURL string, fileName string) error
	BuildAbsoluteURL(c echo.Context, path string) string
}

type twilioService struct {
	accountSID string
	authToken  string
	storage    Storage
	client     *twilio.RestClient
	httpClient *http.Client
}

func NewTwilioService(accountSID, authToken string, storage Storage) TwilioService {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &twilioService{
		accountSID: accountSID,
		authToken:  authToken,
		storage:    storage,
		client:     client,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BuildAbsoluteURL builds a public absolute URL for callbacks.
// Priority: BASE_URL env > X-Forwarded-* headers > request Host heuristic.
func (s *twilioService) BuildAbsoluteURL(c echo.Context, path string) string {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		proto := c.Request().Header.Get("X-Forwarded-Proto")
		host := c.Request().Header.Get("X-Forwarded-Host")
		if proto != "" && host != "" {
			baseURL = fmt.Sprintf("%s://%s", proto, host)
		}
	}
	if baseURL == "" {
		host := c.Request().Host
		proto := "https"
		if strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
			proto = "http"
		}
		baseURL = fmt.Sprintf("%s://%s", proto, host)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// StartCallRecording creates a single continuous recording on an in-progress call.
func (s *twilioService) StartCallRecording(callSid, absoluteCallbackURL string) error {
	if s.accountSID == "" || s.authToken == "" {
		return fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to start recording")
	}

	params := &twilioApi.CreateCallRecordingParams{}
	params.SetRecordingStatusCallback(absoluteCallbackURL)
	params.SetRecordingStatusCallbackMethod("POST")
	params.SetRecordingStatusCallbackEvent([]string{"in-progress", "completed", "absent"})
	params.SetTrim("do-not-trim")
	params.SetRecordingChannels("mono")
	params.SetRecordingTrack("both")

	if _, err := s.client.Api.CreateCallRecording(callSid, params); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	return nil
}

// UploadRecordingToStorage downloads a Twilio recording and uploads it to the archive.
func (s *twilioService) UploadRecordingToStorage(ctx context.Context, recordingURL, fileName string) error {
	if s.accountSID == "" || s.authToken == "" {
		return fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required to download recording")
	}
	mediaURL := recordingURL + ".wav"
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to Twilio recording URL: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyPreview, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to download recording, status %d: %s", resp.StatusCode, string(bodyPreview))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read recording: %w", err)
	}

	if err := s.storage.Upload(fileName, "audio/wav", body); err != nil {
		return fmt.Errorf("failed to upload to storage: %w", err)
	}
	return nil
}
