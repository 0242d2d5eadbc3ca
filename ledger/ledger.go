// Package ledger keeps the durable record of successfully processed
// sources, keyed by the identity extracted from the source link. The
// queue consults it to reject duplicate work across process restarts.
//
// The store is a single JSON document replaced whole on every
// mutation; the in-memory copy and the file are reconciled before any
// mutating call returns.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	godebug "github.com/Shyp/go-debug"
	"github.com/mlgrupo/convert/identity"
	"github.com/mlgrupo/convert/models"
)

var debug = godebug.Debug("convert:ledger")

// ErrUnidentifiableSource is returned by Upsert when no identity can
// be extracted from the link. Callers processing non-drive sources
// should skip the ledger write instead of calling Upsert.
var ErrUnidentifiableSource = errors.New("ledger: cannot extract a source identity from the link")

// ErrNotLoaded is returned by Upsert and Remove before Load has
// succeeded.
var ErrNotLoaded = errors.New("ledger: not loaded")

type metadata struct {
	TotalProcessed int       `json:"total_processed"`
	LastUpdated    time.Time `json:"last_updated"`
	Version        string    `json:"version"`
}

type store struct {
	Items    []models.ProcessedItem `json:"processed_items"`
	Metadata metadata               `json:"metadata"`
}

// A Ledger persists processed items to a JSON file at path. Construct
// with New and call Load before accepting submissions.
type Ledger struct {
	path string

	mu   sync.Mutex
	data *store
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Load reads the store from disk, creating an empty one (and any
// missing parent directories) if the file does not exist. Safe to call
// more than once; subsequent calls are no-ops.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data != nil {
		return nil
	}
	bits, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("ledger: could not read %s: %w", l.path, err)
		}
		l.data = &store{
			Items: []models.ProcessedItem{},
			Metadata: metadata{
				LastUpdated: time.Now().UTC(),
				Version:     "1.0",
			},
		}
		if err := l.save(); err != nil {
			l.data = nil
			return err
		}
		debug("created empty store at %s", l.path)
		return nil
	}
	data := new(store)
	if err := json.Unmarshal(bits, data); err != nil {
		return fmt.Errorf("ledger: could not parse %s: %w", l.path, err)
	}
	l.data = data
	debug("loaded %d items from %s", len(data.Items), l.path)
	return nil
}

// Loaded reports whether Load has succeeded.
func (l *Ledger) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data != nil
}

// save writes the whole store to a temporary file and renames it over
// the old one. Callers must hold l.mu.
func (l *Ledger) save() error {
	l.data.Metadata.LastUpdated = time.Now().UTC()
	l.data.Metadata.TotalProcessed = len(l.data.Items)
	bits, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(bits); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), l.path)
}

// IsProcessed reports whether the link's identity has a ledger entry.
// Links with no extractable identity are never processed.
func (l *Ledger) IsProcessed(link string) bool {
	return l.GetRecord(link) != nil
}

// GetRecord returns the entry for the link's identity, or nil.
func (l *Ledger) GetRecord(link string) *models.ProcessedItem {
	id := identity.SourceID(link)
	if id == "" {
		return nil
	}
	return l.GetByID(id)
}

// GetByID returns the entry with the given identity, or nil.
func (l *Ledger) GetByID(id string) *models.ProcessedItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return nil
	}
	for i := range l.data.Items {
		if l.data.Items[i].ID == id {
			item := l.data.Items[i]
			return &item
		}
	}
	return nil
}

// Upsert records a successful completion for the link's identity,
// overwriting any prior entry, and persists the store before
// returning. The write is the job's durability point; an error here
// fails the job.
func (l *Ledger) Upsert(link, title, transcriptionID, fileName string) (*models.ProcessedItem, error) {
	id := identity.SourceID(link)
	if id == "" {
		return nil, ErrUnidentifiableSource
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return nil, ErrNotLoaded
	}
	item := models.ProcessedItem{
		ID:              id,
		SourceLink:      link,
		Title:           title,
		ProcessedAt:     time.Now().UTC(),
		TranscriptionID: transcriptionID,
		Status:          models.ItemStatusProcessed,
		FileName:        fileName,
	}
	replaced := false
	for i := range l.data.Items {
		if l.data.Items[i].ID == id {
			l.data.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		l.data.Items = append(l.data.Items, item)
	}
	if err := l.save(); err != nil {
		return nil, err
	}
	if replaced {
		debug("overwrote entry %s", id)
	} else {
		debug("added entry %s", id)
	}
	return &item, nil
}

// Remove deletes the entry with the given identity and persists the
// store. Returns false when no entry exists.
func (l *Ledger) Remove(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return false, ErrNotLoaded
	}
	for i := range l.data.Items {
		if l.data.Items[i].ID == id {
			l.data.Items = append(l.data.Items[:i], l.data.Items[i+1:]...)
			if err := l.save(); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// ListAll returns a copy of every entry, oldest first.
func (l *Ledger) ListAll() []models.ProcessedItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return []models.ProcessedItem{}
	}
	items := make([]models.ProcessedItem, len(l.data.Items))
	copy(items, l.data.Items)
	return items
}

// Stats summarizes the ledger contents.
func (l *Ledger) Stats() models.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := models.LedgerStats{}
	if l.data == nil {
		return stats
	}
	stats.TotalProcessed = len(l.data.Items)
	stats.LastUpdated = l.data.Metadata.LastUpdated.Format(time.RFC3339)
	for i := range l.data.Items {
		if l.data.Items[i].TranscriptionID != "" {
			stats.WithTranscription++
		} else {
			stats.WithoutTranscription++
		}
	}
	return stats
}
