// Package factory contains helpers for instantiating tests.
package factory

import (
	"testing"

	types "github.com/Shyp/go-types"
	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/queue"
	"github.com/mlgrupo/convert/test"
	uuid "github.com/kevinburke/go.uuid"
)

// DriveLink is a source link with an extractable identity.
const DriveLink = "https://drive.google.com/file/d/1AbCdEfGhIjKlMnOpQrStUvWxYz012345/view"

// DriveID is the identity inside DriveLink.
const DriveID = "1AbCdEfGhIjKlMnOpQrStUvWxYz012345"

// PlainLink has no extractable identity, so it is never deduplicated.
const PlainLink = "https://example.com/recordings/standup.mp4"

var JobId types.PrefixUUID

func init() {
	id, _ := types.NewPrefixUUID("job_6740b44e-13b9-475d-af06-979627e0e0d6")
	JobId = id
}

// RandomId returns a random UUID with the given prefix.
func RandomId(prefix string) types.PrefixUUID {
	return types.PrefixUUID{
		UUID:   uuid.NewV4(),
		Prefix: prefix,
	}
}

// Ledger returns a loaded ledger backed by a test-scoped temp file.
func Ledger(t testing.TB) *ledger.Ledger {
	t.Helper()
	l := ledger.New(test.LedgerPath(t))
	if err := l.Load(); err != nil {
		t.Fatal(err)
	}
	return l
}

// SucceedingProcessor returns a processor that completes every job
// with a minimal successful result.
func SucceedingProcessor() queue.Processor {
	return queue.ProcessorFunc(func(j *models.Job) (*models.CompletionResult, error) {
		return &models.CompletionResult{
			Success:    true,
			Message:    "processing completed",
			SourceLink: j.SourceLink,
			Title:      j.Title,
		}, nil
	})
}

// Queue returns a queue backed by a fresh ledger and the given
// processor, with the default concurrency bound.
func Queue(t testing.TB, p queue.Processor) *queue.Queue {
	t.Helper()
	return queue.New(Ledger(t), p, 0)
}
