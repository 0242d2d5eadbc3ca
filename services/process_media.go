// Package services contains the media processing pipeline: fetch the
// source, normalize the audio, publish the artifact, and record the
// outcome in the ledger.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/mlgrupo/convert/audio"
	"github.com/mlgrupo/convert/drive"
	"github.com/mlgrupo/convert/fetch"
	"github.com/mlgrupo/convert/identity"
	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/notify"
	"github.com/mlgrupo/convert/storage"
	"github.com/mlgrupo/convert/transcription"
)

// DefaultJobTimeout bounds one job's fetch+convert+publish wall time.
const DefaultJobTimeout = 30 * time.Minute

// StageError reports which pipeline stage a job died in.
type StageError struct {
	Stage      string
	JobID      string
	SourceLink string
	Title      string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// A MediaProcessor runs the whole pipeline for one job. Fetcher,
// Normalizer, Store and Ledger are required; Drive, Transcription and
// Notifier are optional collaborators.
type MediaProcessor struct {
	Fetcher       *fetch.Fetcher
	Normalizer    *audio.Normalizer
	Store         *storage.Store
	Ledger        *ledger.Ledger
	Drive         *drive.Client
	Transcription *transcription.Client
	Notifier      *notify.WebhookLogger

	// WorkDir holds per-job scratch directories.
	WorkDir string

	JobTimeout time.Duration
}

func (p *MediaProcessor) timeout() time.Duration {
	if p.JobTimeout > 0 {
		return p.JobTimeout
	}
	return DefaultJobTimeout
}

// Process implements queue.Processor.
func (p *MediaProcessor) Process(job *models.Job) (*models.CompletionResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout())
	defer cancel()
	start := time.Now()

	media := notify.MediaInfo{Link: job.SourceLink, ID: job.ID.String()}
	p.Notifier.LogStart(media)

	arena, err := os.MkdirTemp(p.WorkDir, "job_*")
	if err != nil {
		return nil, p.fail(job, media, "setup", err)
	}
	defer func() {
		if err := os.RemoveAll(arena); err != nil {
			log.Printf("process: could not clean scratch dir %s: %s", arena, err)
		}
	}()

	srcPath, title, err := p.Fetcher.Fetch(ctx, job.SourceLink, arena)
	if err != nil {
		return nil, p.fail(job, media, "fetch", err)
	}
	if title == "" {
		title = "audio_" + time.Now().Format("20060102_150405")
	}
	job.Title = title
	media.Title = title
	log.Printf("process: job %s fetched %q", job.ID.String(), title)

	base := fetch.SafeFileName(title)
	if base == "" {
		base = "audio_" + time.Now().Format("20060102_150405")
	}
	fileName := base + ".mp3"
	outPath := filepath.Join(arena, fileName)
	media.Filename = fileName

	artifact, err := p.Normalizer.Normalize(ctx, srcPath, outPath)
	if err != nil {
		return nil, p.fail(job, media, "convert", err)
	}
	p.Notifier.LogConversionComplete(media)

	result := &models.CompletionResult{
		Success:    true,
		Message:    "processing completed",
		SourceLink: job.SourceLink,
		Title:      title,
	}

	// A destination folder routes the artifact to drive; without one it
	// is stored locally and served over the download endpoint.
	if job.Options.DestinationFolder != "" {
		if p.Drive == nil {
			return nil, p.fail(job, media, "publish", errors.New("drive credentials are not configured"))
		}
		upload, err := p.Drive.Upload(ctx, artifact, fileName, destinationFolderID(job.Options.DestinationFolder))
		if err != nil {
			return nil, p.fail(job, media, "publish", err)
		}
		result.Drive = upload
		result.Storage = &models.StorageInfo{
			Type:        "drive",
			Description: "uploaded to drive folder " + upload.FolderID,
		}
	} else {
		fileInfo, err := p.Store.Save(artifact, fileName)
		if err != nil {
			return nil, p.fail(job, media, "store", err)
		}
		result.File = fileInfo
		result.Storage = &models.StorageInfo{
			Type:        "local",
			Description: "stored locally, available for download",
		}
	}

	// Transcription is best effort: the artifact is already published,
	// so a transcription outage must not fail the job.
	transcriptionID := ""
	if p.Transcription != nil && job.Options.ForwardToTranscription {
		info, err := p.Transcription.Upload(ctx, artifact, fileName, "")
		if err != nil {
			log.Printf("process: job %s transcription forward failed: %s", job.ID.String(), err)
			go metrics.Increment("process.transcription.failed")
		} else {
			result.Transcription = info
			transcriptionID = info.FileID
			p.Notifier.LogTranscriptionSent(media)
		}
	}

	if identity.SourceID(job.SourceLink) != "" {
		record, err := p.Ledger.Upsert(job.SourceLink, title, transcriptionID, fileName)
		if err != nil {
			return nil, p.fail(job, media, "record", err)
		}
		log.Printf("process: job %s recorded as %s", job.ID.String(), record.ID)
	}

	p.Notifier.LogUploadComplete(media)
	result.Processing = &models.ProcessingInfo{
		SilenceRemoved:   true,
		Normalized:       true,
		Title:            title,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	go metrics.Time("process.latency", time.Since(start))
	return result, nil
}

// destinationFolderID accepts either a drive folder link or a bare
// folder id. An unrecognizable value falls through to the drive
// client's default folder.
func destinationFolderID(folder string) string {
	if folder == "" {
		return ""
	}
	if id := identity.FolderID(folder); id != "" {
		return id
	}
	if !strings.Contains(folder, "/") {
		return folder
	}
	log.Printf("process: could not extract a folder id from %q, using the default folder", folder)
	return ""
}

func (p *MediaProcessor) fail(job *models.Job, media notify.MediaInfo, stage string, err error) error {
	go metrics.Increment(fmt.Sprintf("process.%s.failed", stage))
	stageErr := &StageError{
		Stage:      stage,
		JobID:      job.ID.String(),
		SourceLink: job.SourceLink,
		Title:      job.Title,
		Err:        err,
	}
	p.Notifier.LogError(media, stageErr)
	return stageErr
}
