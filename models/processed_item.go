package models

import "time"

// ItemStatusProcessed is the only status the ledger stores; failed
// pipelines never produce a ledger entry.
const ItemStatusProcessed = "processed"

// A ProcessedItem is the durable record of one successfully completed
// source, keyed by the identity extracted from its link. At most one
// entry exists per identity; reprocessing overwrites the prior entry.
type ProcessedItem struct {
	ID              string    `json:"id"`
	SourceLink      string    `json:"source_link"`
	Title           string    `json:"title"`
	ProcessedAt     time.Time `json:"processed_at"`
	TranscriptionID string    `json:"transcription_id,omitempty"`
	Status          string    `json:"status"`
	FileName        string    `json:"file_name,omitempty"`
}
