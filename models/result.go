package models

// SubmissionResult reports the outcome of Queue.Submit. Added is false
// when the link was rejected as a duplicate; Reason then holds one of
// ReasonAlreadyProcessed or ReasonAlreadyInQueue.
type SubmissionResult struct {
	Added         bool           `json:"added"`
	Reason        string         `json:"reason,omitempty"`
	JobID         string         `json:"job_id,omitempty"`
	Position      int            `json:"position,omitempty"`
	EstimatedWait int            `json:"estimated_wait,omitempty"`
	Record        *ProcessedItem `json:"record,omitempty"`
}

const (
	ReasonAlreadyProcessed = "already_processed"
	ReasonAlreadyInQueue   = "already_in_queue"
)

// StorageInfo describes where the primary artifact ended up.
type StorageInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FileInfo describes a locally stored artifact.
type FileInfo struct {
	OriginalName string `json:"original_name"`
	FileName     string `json:"file_name,omitempty"`
	Size         int64  `json:"size,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
	ExpiresIn    string `json:"expires_in,omitempty"`
}

// DriveUpload describes an artifact uploaded to a cloud-drive folder.
type DriveUpload struct {
	FileID          string `json:"file_id"`
	FileName        string `json:"file_name"`
	FileSize        int64  `json:"file_size,omitempty"`
	WebViewLink     string `json:"web_view_link,omitempty"`
	FolderID        string `json:"folder_id"`
	FolderSpecified bool   `json:"folder_specified"`
	FolderLink      string `json:"folder_link,omitempty"`
}

// TranscriptionInfo describes a best-effort forward to the
// transcription service.
type TranscriptionInfo struct {
	FileID     string `json:"file_id"`
	Status     string `json:"status"`
	FileName   string `json:"file_name"`
	Language   string `json:"language"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// ProcessingInfo summarizes what the pipeline did to the audio.
type ProcessingInfo struct {
	SilenceRemoved   bool   `json:"silence_removed"`
	Normalized       bool   `json:"normalized"`
	Title            string `json:"title,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// CompletionResult is delivered exactly once per admitted job, after
// the job reaches a terminal state. On failure only Success, Message,
// SourceLink and Title are set. Record is set only on the synchronous
// callback for an already-processed duplicate.
type CompletionResult struct {
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	Storage       *StorageInfo       `json:"storage,omitempty"`
	File          *FileInfo          `json:"file,omitempty"`
	Drive         *DriveUpload       `json:"drive,omitempty"`
	Transcription *TranscriptionInfo `json:"transcription,omitempty"`
	Processing    *ProcessingInfo    `json:"processing,omitempty"`
	Record        *ProcessedItem     `json:"record,omitempty"`

	SourceLink string `json:"source_link,omitempty"`
	Title      string `json:"title,omitempty"`
}
