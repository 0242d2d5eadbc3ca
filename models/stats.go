package models

// QueueStats is the live counter snapshot exposed by the queue.
type QueueStats struct {
	TotalQueued      int  `json:"total_queued"`
	TotalProcessed   int  `json:"total_processed"`
	TotalFailed      int  `json:"total_failed"`
	TotalDuplicates  int  `json:"total_duplicates"`
	QueueSize        int  `json:"queue_size"`
	ActiveProcessors int  `json:"active_processors"`
	MaxConcurrent    int  `json:"max_concurrent"`
	IsProcessing     bool `json:"is_processing"`
}

// QueueStatus is the full derived view: pending jobs in admission
// order plus the counter snapshot. Rebuilt on demand, never persisted.
type QueueStatus struct {
	Queue []JobSummary `json:"queue"`
	Stats QueueStats   `json:"stats"`
}

// LedgerStats summarizes the processed-item ledger.
type LedgerStats struct {
	TotalProcessed       int    `json:"total_processed"`
	WithTranscription    int    `json:"with_transcription"`
	WithoutTranscription int    `json:"without_transcription"`
	LastUpdated          string `json:"last_updated"`
}
