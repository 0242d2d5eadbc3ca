package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mlgrupo/convert/test"
)

func TestEvents(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var got []payload
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		test.AssertEquals(t, r.Header.Get("Content-Type"), "application/json")
		var p payload
		test.AssertNotError(t, json.NewDecoder(r.Body).Decode(&p), "decoding payload")
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}))
	defer s.Close()

	w := New(s.URL)
	media := MediaInfo{Title: "standup", Link: "https://example.com/standup.mp4"}
	w.LogStart(media)
	w.LogConversionComplete(media)
	w.LogTranscriptionSent(media)
	w.LogUploadComplete(media)
	w.LogError(media, errors.New("disk full"))

	mu.Lock()
	defer mu.Unlock()
	test.AssertEquals(t, len(got), 5)
	test.AssertEquals(t, got[0].Event, EventStart)
	test.AssertEquals(t, got[1].Event, EventConversionComplete)
	test.AssertEquals(t, got[2].Event, EventTranscriptionSent)
	test.AssertEquals(t, got[3].Event, EventUploadComplete)
	test.AssertEquals(t, got[4].Event, EventError)
	test.AssertEquals(t, got[4].Error, "disk full")
	test.AssertEquals(t, got[0].Media.Title, "standup")
	test.Assert(t, got[0].Timestamp != "", "timestamp should be set")
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var w *WebhookLogger
	w.LogStart(MediaInfo{Title: "nobody listening"})
	w.LogError(MediaInfo{}, errors.New("still fine"))
}

func TestEmptyURLIsSafe(t *testing.T) {
	t.Parallel()
	w := New("")
	w.LogStart(MediaInfo{Title: "nobody listening"})
}

func TestDeliveryFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer s.Close()

	w := New(s.URL)
	// Nothing to assert beyond not panicking; errors are logged only.
	w.LogUploadComplete(MediaInfo{Title: "flaky hook"})
}
