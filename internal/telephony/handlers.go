package telephony

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
)

// Handlers serves the Twilio webhooks for phone-in ordering.
type Handlers struct {
	Twilio TwilioService
}

func NewHandlers(twilioService TwilioService) Handlers {
	return Handlers{Twilio: twilioService}
}

func (h Handlers) Register(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.POST("/twilio/voice", h.voice, mw...)
	e.POST("/twilio/recording-status", h.recordingStatus, mw...)
	e.POST("/twilio/recording-complete", h.recordingComplete, mw...)
}

// voice answers an inbound call, starts a continuous recording and greets the caller.
func (h Handlers) voice(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	fromNumber := params["From"]
	callSid := params["CallSid"]
	c.Echo().Logger.Infof("Inbound order call from %s, CallSid=%s", fromNumber, callSid)

	if callSid != "" {
		absoluteCallback := h.Twilio.BuildAbsoluteURL(c, "/twilio/recording-status")
		go func() {
			if err := h.Twilio.StartCallRecording(callSid, absoluteCallback); err != nil {
				c.Echo().Logger.Errorf("Failed to start call recording for CallSid=%s: %v", callSid, err)
			} else {
				c.Echo().Logger.Infof("Started continuous recording for CallSid=%s", callSid)
			}
		}()
	} else {
		c.Echo().Logger.Warn("CallSid not present in params; cannot start call recording")
	}

	say := &twiml.VoiceSay{Message: "Welcome to MurfBrew! This call is recorded. Please tell us your order after the tone."}
	record := &twiml.VoiceRecord{
		Action:                        "/twilio/recording-complete",
		Method:                        "POST",
		MaxLength:                     "120",
		RecordingStatusCallback:       "/twilio/recording-status",
		RecordingStatusCallbackMethod: "POST",
	}
	response, err := twiml.Voice([]twiml.Element{say, record})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// recordingComplete thanks the caller once their recorded order is done.
func (h Handlers) recordingComplete(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	fromNumber := params["From"]
	recordingSid := params["RecordingSid"]
	recordingDuration := params["RecordingDuration"]
	c.Echo().Logger.Infof("Order recording completed from %s, Duration=%s seconds, SID=%s", fromNumber, recordingDuration, recordingSid)

	say := &twiml.VoiceSay{Message: "Thanks! Your order has been received and will be ready shortly. Goodbye!"}
	hangup := &twiml.VoiceHangup{}
	response, err := twiml.Voice([]twiml.Element{say, hangup})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// recordingStatus archives completed recordings to storage.
func (h Handlers) recordingStatus(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	recordingSid := params["RecordingSid"]
	recordingURL := params["RecordingUrl"]
	recordingStatus := params["RecordingStatus"]
	recordingDuration := params["RecordingDuration"]

	c.Echo().Logger.Infof("Recording status update: SID=%s, Status=%s, Duration=%s", recordingSid, recordingStatus, recordingDuration)

	switch recordingStatus {
	case "completed":
		fileName := fmt.Sprintf("recording_%s_%d.wav", recordingSid, time.Now().Unix())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.Twilio.UploadRecordingToStorage(ctx, recordingURL, fileName); err != nil {
				c.Echo().Logger.Errorf("Failed to upload recording from status callback: %v", err)
			} else {
				c.Echo().Logger.Infof("Recording uploaded: %s", fileName)
			}
		}()
	case "failed", "absent":
		c.Echo().Logger.Errorf("Recording failed or is absent: SID=%s, Status=%s", recordingSid, recordingStatus)
	}

	return c.String(http.StatusOK, "OK")
}
