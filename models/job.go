// Package models holds the types shared by the queue, the processing
// pipeline, and the HTTP server.
package models

import (
	"time"

	types "github.com/Shyp/go-types"
)

// Prefix for all job ids handed out at submission time.
const JobIDPrefix = "job_"

type JobStatus string

const (
	StatusQueued    = JobStatus("queued")
	StatusRunning   = JobStatus("running")
	StatusSucceeded = JobStatus("succeeded")
	StatusFailed    = JobStatus("failed")
)

// JobOptions is the structured configuration attached to a submission.
type JobOptions struct {
	// Link to a cloud-drive folder to upload the finished artifact to.
	// When empty the artifact is stored locally instead.
	DestinationFolder string `json:"destination_folder,omitempty"`

	// Forward the finished artifact to the transcription service.
	// Delivery there is best-effort and never fails the job.
	ForwardToTranscription bool `json:"forward_to_transcription,omitempty"`
}

// A Job is one unit of work. The queue owns the Job from submission
// until its completion callback has been delivered; after that only
// the ledger entry persists, if the source had an extractable identity.
type Job struct {
	ID          types.PrefixUUID `json:"id"`
	SourceLink  string           `json:"source_link"`
	Title       string           `json:"title,omitempty"`
	Options     JobOptions       `json:"options"`
	Status      JobStatus        `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// Summary returns the read-only view of the job exposed by the queue
// status endpoint.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID.String(),
		SourceLink:  j.SourceLink,
		Title:       j.Title,
		SubmittedAt: j.SubmittedAt,
		Status:      j.Status,
	}
}

type JobSummary struct {
	ID          string    `json:"id"`
	SourceLink  string    `json:"source_link"`
	Title       string    `json:"title,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      JobStatus `json:"status"`
}
