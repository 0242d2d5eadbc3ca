// Package notify posts pipeline lifecycle events to an external
// webhook. Delivery is best effort: failures are logged and never
// propagate into job processing.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	godebug "github.com/Shyp/go-debug"
)

var debug = godebug.Debug("convert:notify")

// Event names sent in the webhook payload.
const (
	EventStart              = "START"
	EventConversionComplete = "CONVERSION_COMPLETE"
	EventTranscriptionSent  = "TRANSKRIPTOR_SENT"
	EventUploadComplete     = "UPLOAD_COMPLETE"
	EventError              = "ERROR"
)

// MediaInfo identifies the media a notification is about.
type MediaInfo struct {
	Title    string `json:"title,omitempty"`
	Filename string `json:"filename,omitempty"`
	Link     string `json:"link,omitempty"`
	ID       string `json:"id,omitempty"`
}

type payload struct {
	Event     string    `json:"event"`
	Timestamp string    `json:"timestamp"`
	Media     MediaInfo `json:"media"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// A WebhookLogger sends events to one webhook URL. A nil logger or an
// empty URL silently discards every event.
type WebhookLogger struct {
	URL    string
	Client *http.Client
}

func New(url string) *WebhookLogger {
	return &WebhookLogger{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookLogger) send(event string, media MediaInfo, message, errMsg string) {
	if w == nil || w.URL == "" {
		return
	}
	body, err := json.Marshal(payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Media:     media,
		Message:   message,
		Error:     errMsg,
	})
	if err != nil {
		log.Printf("notify: could not marshal %s event: %s", event, err)
		return
	}
	res, err := w.Client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: %s webhook failed: %s", event, err)
		return
	}
	res.Body.Close()
	if res.StatusCode >= 400 {
		log.Printf("notify: %s webhook returned status %d", event, res.StatusCode)
		return
	}
	debug("sent %s for %q", event, media.Title)
}

func (w *WebhookLogger) LogStart(media MediaInfo) {
	w.send(EventStart, media, "processing started", "")
}

func (w *WebhookLogger) LogConversionComplete(media MediaInfo) {
	w.send(EventConversionComplete, media, "audio conversion finished", "")
}

func (w *WebhookLogger) LogTranscriptionSent(media MediaInfo) {
	w.send(EventTranscriptionSent, media, "audio forwarded to transcription", "")
}

func (w *WebhookLogger) LogUploadComplete(media MediaInfo) {
	w.send(EventUploadComplete, media, "artifact published", "")
}

func (w *WebhookLogger) LogError(media MediaInfo, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	w.send(EventError, media, "processing failed", msg)
}
