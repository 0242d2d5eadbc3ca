package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mlgrupo/convert/audio"
	"github.com/mlgrupo/convert/drive"
	"github.com/mlgrupo/convert/fetch"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/notify"
	"github.com/mlgrupo/convert/runner"
	"github.com/mlgrupo/convert/storage"
	"github.com/mlgrupo/convert/test"
	"github.com/mlgrupo/convert/test/factory"
	"github.com/mlgrupo/convert/transcription"
)

// fakeFFmpeg writes a small mp3 to the output path ffmpeg would have
// written to.
var fakeFFmpeg = runner.Func(func(ctx context.Context, name string, args ...string) (runner.Result, error) {
	return runner.Result{}, os.WriteFile(args[len(args)-1], []byte("mp3 bytes"), 0644)
})

// newProcessor wires a pipeline around local temp dirs, a generic
// media server, and a fake ffmpeg. Callers fill in optional
// collaborators afterwards.
func newProcessor(t *testing.T) (*MediaProcessor, *httptest.Server) {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("source video bytes"))
	}))
	t.Cleanup(s.Close)

	workDir := filepath.Join(t.TempDir(), "work")
	test.AssertNotError(t, os.MkdirAll(workDir, 0755), "creating work dir")
	return &MediaProcessor{
		Fetcher:    fetch.New(nil, fakeFFmpeg, ""),
		Normalizer: audio.New("ffmpeg", fakeFFmpeg),
		Store:      storage.New(filepath.Join(t.TempDir(), "store"), "http://localhost:9090"),
		Ledger:     factory.Ledger(t),
		WorkDir:    workDir,
	}, s
}

func newJob(link string) *models.Job {
	return &models.Job{
		ID:         factory.RandomId(models.JobIDPrefix),
		SourceLink: link,
		Status:     models.StatusRunning,
	}
}

func assertWorkDirEmpty(t *testing.T, p *MediaProcessor) {
	t.Helper()
	entries, err := os.ReadDir(p.WorkDir)
	test.AssertNotError(t, err, "reading work dir")
	test.AssertEquals(t, len(entries), 0)
}

func TestProcessGenericLink(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)

	job := newJob(s.URL + "/town-hall.mp4")
	res, err := p.Process(job)
	test.AssertNotError(t, err, "processing")

	test.Assert(t, res.Success, "expected success")
	test.AssertEquals(t, res.Title, "town-hall")
	test.AssertEquals(t, res.Storage.Type, "local")
	test.AssertEquals(t, res.File.FileName, "town-hall.mp3")
	test.AssertContains(t, res.File.DownloadURL, "/v1/download/town-hall.mp3")
	test.Assert(t, res.Processing.Normalized, "processing info should be set")
	test.Assert(t, res.Drive == nil, "no drive client, no drive upload")
	test.Assert(t, res.Transcription == nil, "no transcription client")

	// The link carries no identity, so the ledger stays empty.
	test.AssertEquals(t, len(p.Ledger.ListAll()), 0)
	assertWorkDirEmpty(t, p)
}

func TestProcessDriveLink(t *testing.T) {
	t.Parallel()
	p, _ := newProcessor(t)

	mux := http.NewServeMux()
	ds := httptest.NewServer(mux)
	t.Cleanup(ds.Close)
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			w.Write([]byte("drive video bytes"))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "1DriveFileId", "name": "board meeting.mp4", "size": "17"})
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "1Uploaded", "name": "board_meeting.mp3", "size": "9"})
	})
	driveClient := drive.NewClient("token-123", ds.URL, "1DefaultFolder")
	p.Drive = driveClient
	p.Fetcher = fetch.New(driveClient, fakeFFmpeg, "")

	job := newJob("https://drive.google.com/file/d/1DriveFileId/view")
	job.Options.DestinationFolder = "https://drive.google.com/drive/folders/1DestFolder99"
	res, err := p.Process(job)
	test.AssertNotError(t, err, "processing")

	test.Assert(t, res.Success, "expected success")
	test.AssertEquals(t, res.Title, "board meeting")
	test.AssertEquals(t, res.Storage.Type, "drive")
	test.Assert(t, res.Drive != nil, "expected a drive upload")
	test.AssertEquals(t, res.Drive.FileID, "1Uploaded")
	test.AssertEquals(t, res.Drive.FolderID, "1DestFolder99")
	test.Assert(t, res.File == nil, "drive uploads are not stored locally")

	rec := p.Ledger.GetByID("1DriveFileId")
	test.Assert(t, rec != nil, "expected a ledger entry")
	test.AssertEquals(t, rec.Title, "board meeting")
	test.AssertEquals(t, rec.FileName, "board_meeting.mp3")
	assertWorkDirEmpty(t, p)
}

func TestProcessNoFolderStaysLocal(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)

	var uploads int64
	mux := http.NewServeMux()
	ds := httptest.NewServer(mux)
	t.Cleanup(ds.Close)
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&uploads, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": "1Uploaded"})
	})
	p.Drive = drive.NewClient("token-123", ds.URL, "1DefaultFolder")

	// No destination folder: the artifact stays local even though a
	// drive client is configured.
	res, err := p.Process(newJob(s.URL + "/town-hall.mp4"))
	test.AssertNotError(t, err, "processing")
	test.AssertEquals(t, res.Storage.Type, "local")
	test.Assert(t, res.Drive == nil, "no folder, no drive upload")
	test.Assert(t, res.File != nil, "expected a local file")
	test.AssertEquals(t, atomic.LoadInt64(&uploads), int64(0))
}

func TestProcessFolderWithoutDriveClient(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)

	job := newJob(s.URL + "/town-hall.mp4")
	job.Options.DestinationFolder = "https://drive.google.com/drive/folders/1DestFolder99"
	_, err := p.Process(job)
	test.AssertError(t, err, "expected a publish failure")
	var stageErr *StageError
	test.Assert(t, errors.As(err, &stageErr), "expected a StageError")
	test.AssertEquals(t, stageErr.Stage, "publish")
	assertWorkDirEmpty(t, p)
}

func TestProcessFetchFailure(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)

	_, err := p.Process(newJob(s.URL + "/missing.mp4"))
	test.AssertError(t, err, "expected a fetch failure")
	var stageErr *StageError
	test.Assert(t, errors.As(err, &stageErr), "expected a StageError")
	test.AssertEquals(t, stageErr.Stage, "fetch")
	test.AssertEquals(t, len(p.Ledger.ListAll()), 0)
	assertWorkDirEmpty(t, p)
}

func TestProcessConvertFailure(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)
	p.Normalizer = audio.New("ffmpeg", runner.Func(func(ctx context.Context, name string, args ...string) (runner.Result, error) {
		return runner.Result{Stderr: "Invalid data", ExitCode: 1}, errors.New("exit status 1")
	}))

	_, err := p.Process(newJob(s.URL + "/clip.mp4"))
	test.AssertError(t, err, "expected a convert failure")
	var stageErr *StageError
	test.Assert(t, errors.As(err, &stageErr), "expected a StageError")
	test.AssertEquals(t, stageErr.Stage, "convert")
	assertWorkDirEmpty(t, p)
}

func TestTranscriptionFailureIsBestEffort(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "service down"})
	}))
	t.Cleanup(ts.Close)
	p.Transcription = transcription.NewClient("token-123", ts.URL, "")

	job := newJob(s.URL + "/clip.mp4")
	job.Options.ForwardToTranscription = true
	res, err := p.Process(job)
	test.AssertNotError(t, err, "transcription outage should not fail the job")
	test.Assert(t, res.Success, "expected success")
	test.Assert(t, res.Transcription == nil, "no transcription info on failure")
}

func TestTranscriptionForward(t *testing.T) {
	t.Parallel()
	p, _ := newProcessor(t)

	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	mux.HandleFunc("/local_file/get_upload_url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": ts.URL + "/put", "file_id": "file_1"})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/local_file/initiate_transcription", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"order_id": "order_7"})
	})
	p.Transcription = transcription.NewClient("token-123", ts.URL, "")

	// Use a drive-style link so the transcription id lands in the ledger.
	mux2 := http.NewServeMux()
	ds := httptest.NewServer(mux2)
	t.Cleanup(ds.Close)
	mux2.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			w.Write([]byte("drive video bytes"))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "1DriveFileId", "name": "retro.mp4"})
	})
	p.Fetcher = fetch.New(drive.NewClient("token-123", ds.URL, ""), fakeFFmpeg, "")

	job := newJob("https://drive.google.com/file/d/1DriveFileId/view")
	job.Options.ForwardToTranscription = true
	res, err := p.Process(job)
	test.AssertNotError(t, err, "processing")

	test.Assert(t, res.Transcription != nil, "expected transcription info")
	test.AssertEquals(t, res.Transcription.FileID, "order_7")
	rec := p.Ledger.GetByID("1DriveFileId")
	test.Assert(t, rec != nil, "expected a ledger entry")
	test.AssertEquals(t, rec.TranscriptionID, "order_7")
}

func TestDestinationFolderID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in  string
		out string
	}{
		{"", ""},
		{"https://drive.google.com/drive/folders/1DestFolder99", "1DestFolder99"},
		{"https://drive.google.com/drive/u/0/folders/1DestFolder99?usp=sharing", "1DestFolder99"},
		{"1BareFolderId", "1BareFolderId"},
		{"https://example.com/not-a-folder", ""},
	}
	for _, tt := range tests {
		if got := destinationFolderID(tt.in); got != tt.out {
			t.Errorf("destinationFolderID(%q): got %q, want %q", tt.in, got, tt.out)
		}
	}
}

func TestNotifierSequence(t *testing.T) {
	t.Parallel()
	p, s := newProcessor(t)
	var mu sync.Mutex
	var events []string
	ns := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Event string `json:"event"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		events = append(events, body.Event)
		mu.Unlock()
	}))
	t.Cleanup(ns.Close)
	p.Notifier = notify.New(ns.URL)

	_, err := p.Process(newJob(s.URL + "/clip.mp4"))
	test.AssertNotError(t, err, "processing")
	mu.Lock()
	defer mu.Unlock()
	test.AssertDeepEquals(t, events, []string{
		notify.EventStart,
		notify.EventConversionComplete,
		notify.EventUploadComplete,
	})
}
