// Package setup wires configuration into the collaborators the server
// needs, in one place, so commands stay small.
package setup

import (
	"log"
	"os"
	"path/filepath"

	"github.com/mlgrupo/convert/audio"
	"github.com/mlgrupo/convert/config"
	"github.com/mlgrupo/convert/drive"
	"github.com/mlgrupo/convert/fetch"
	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/notify"
	"github.com/mlgrupo/convert/queue"
	"github.com/mlgrupo/convert/runner"
	"github.com/mlgrupo/convert/services"
	"github.com/mlgrupo/convert/storage"
	"github.com/mlgrupo/convert/transcription"
)

// An App is a fully wired process: ledger loaded, pipeline assembled,
// queue ready for submissions.
type App struct {
	Queue     *queue.Queue
	Ledger    *ledger.Ledger
	Store     *storage.Store
	Processor *services.MediaProcessor
}

// NewApp builds an App from the environment. Only the work, storage
// and ledger paths are required to have usable defaults; drive and
// transcription credentials are optional and their features degrade
// gracefully when absent.
func NewApp() (*App, error) {
	workDir := config.Get("CONVERT_WORK_DIR", filepath.Join(os.TempDir(), "convert"))
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, err
	}

	l := ledger.New(config.Get("CONVERT_LEDGER_PATH", filepath.Join("data", "processed.json")))
	if err := l.Load(); err != nil {
		return nil, err
	}

	r := runner.New()

	var driveClient *drive.Client
	if token := os.Getenv("DRIVE_API_TOKEN"); token != "" {
		driveClient = drive.NewClient(token, "", os.Getenv("DRIVE_DEFAULT_FOLDER_ID"))
	} else {
		log.Print("setup: DRIVE_API_TOKEN not set, drive features disabled")
	}

	var transcriptionClient *transcription.Client
	if token := os.Getenv("TRANSCRIPTION_API_TOKEN"); token != "" {
		transcriptionClient = transcription.NewClient(
			token,
			config.Get("TRANSCRIPTION_BASE_URL", "https://api.tor.app/developer"),
			os.Getenv("TRANSCRIPTION_WEBHOOK_URL"),
		)
		transcriptionClient.Language = os.Getenv("TRANSCRIPTION_LANGUAGE")
	} else {
		log.Print("setup: TRANSCRIPTION_API_TOKEN not set, transcription forwarding disabled")
	}

	store := storage.New(
		config.Get("CONVERT_STORAGE_DIR", "converted"),
		config.Get("PUBLIC_BASE_URL", "http://localhost:9090"),
	)

	processor := &services.MediaProcessor{
		Fetcher:       fetch.New(driveClient, r, os.Getenv("DOWNLOADER_PATH")),
		Normalizer:    audio.New(os.Getenv("FFMPEG_PATH"), r),
		Store:         store,
		Ledger:        l,
		Drive:         driveClient,
		Transcription: transcriptionClient,
		Notifier:      notify.New(os.Getenv("LOGS_WEBHOOK_URL")),
		WorkDir:       workDir,
	}

	maxConcurrent, err := config.GetInt("CONVERT_MAX_CONCURRENT")
	if err != nil {
		maxConcurrent = queue.DefaultMaxConcurrent
	}

	return &App{
		Queue:     queue.New(l, processor, maxConcurrent),
		Ledger:    l,
		Store:     store,
		Processor: processor,
	}, nil
}
