// Package queue admits media jobs, deduplicates them against the
// ledger and against itself, bounds how many run at once, and drives
// each admitted job through the processing pipeline to a terminal
// state. Results are delivered exactly once per admitted job via the
// submission-time callback.
package queue

import (
	"errors"
	"log"
	"sync"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/models"
)

var debug = godebug.Debug("convert:queue")

// DefaultMaxConcurrent bounds how many jobs may run at once. Two slots
// keeps transcode CPU and remote API quotas within budget.
const DefaultMaxConcurrent = 2

// averageJobDuration feeds the estimated-wait calculation returned at
// submission time. An estimate only, never a guarantee.
const averageJobDuration = 5 * time.Second

// ErrLedgerNotLoaded is returned by Submit when the ledger has not
// been loaded; submissions cannot be deduplicated without it.
var ErrLedgerNotLoaded = errors.New("queue: ledger not loaded, refusing submissions")

// A Processor runs the full pipeline for one job: fetch, normalize,
// publish, ledger write. It may fill in the job's title as it learns
// it. Implementations are shared between slots and must be safe for
// concurrent use.
type Processor interface {
	Process(job *models.Job) (*models.CompletionResult, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(job *models.Job) (*models.CompletionResult, error)

func (f ProcessorFunc) Process(job *models.Job) (*models.CompletionResult, error) {
	return f(job)
}

// job pairs the public Job record with its completion callback. The
// sync.Once is what makes the exactly-once delivery contract hold.
type job struct {
	models.Job
	onComplete func(*models.CompletionResult)
	once       sync.Once
}

func (j *job) deliver(res *models.CompletionResult) {
	j.once.Do(func() {
		if j.onComplete != nil {
			j.onComplete(res)
		}
	})
}

// A Queue schedules submitted jobs. Construct with New; the zero value
// is not usable.
type Queue struct {
	maxConcurrent int
	ledger        *ledger.Ledger
	processor     Processor

	mu       sync.Mutex
	pending  []*job
	inFlight map[string]bool // source links queued or running
	active   int

	totalQueued     int
	totalProcessed  int
	totalFailed     int
	totalDuplicates int

	listeners []chan Event

	wg sync.WaitGroup
}

// New creates a Queue backed by the given ledger and processor. The
// ledger must be loaded before submissions are accepted. maxConcurrent
// values below 1 fall back to DefaultMaxConcurrent.
func New(l *ledger.Ledger, p Processor, maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Queue{
		maxConcurrent: maxConcurrent,
		ledger:        l,
		processor:     p,
		inFlight:      make(map[string]bool),
	}
}

// Submit asks the queue to process sourceLink. The returned
// SubmissionResult reports whether the job was admitted; onComplete
// fires exactly once with a terminal result for every admitted job,
// and synchronously with the prior record's summary when the link was
// already processed. A non-nil error means the queue cannot accept
// submissions at all.
func (q *Queue) Submit(sourceLink string, opts models.JobOptions, onComplete func(*models.CompletionResult)) (models.SubmissionResult, error) {
	if !q.ledger.Loaded() {
		return models.SubmissionResult{}, ErrLedgerNotLoaded
	}

	// Ledger first, so duplicates submitted after a restart are still
	// caught before we ever look at in-memory state.
	if rec := q.ledger.GetRecord(sourceLink); rec != nil {
		q.mu.Lock()
		q.totalDuplicates++
		q.mu.Unlock()
		go metrics.Increment("queue.duplicate")
		log.Printf("queue: %s already processed as %s, rejecting", sourceLink, rec.ID)
		if onComplete != nil {
			onComplete(&models.CompletionResult{
				Success:    true,
				Message:    "Source was already processed",
				SourceLink: rec.SourceLink,
				Title:      rec.Title,
				Record:     rec,
			})
		}
		return models.SubmissionResult{
			Added:  false,
			Reason: models.ReasonAlreadyProcessed,
			Record: rec,
		}, nil
	}

	q.mu.Lock()
	if q.inFlight[sourceLink] {
		q.mu.Unlock()
		debug("link already queued or running: %s", sourceLink)
		return models.SubmissionResult{
			Added:  false,
			Reason: models.ReasonAlreadyInQueue,
		}, nil
	}

	id := types.GenerateUUID(models.JobIDPrefix)
	j := &job{
		Job: models.Job{
			ID:          id,
			SourceLink:  sourceLink,
			Options:     opts,
			Status:      models.StatusQueued,
			SubmittedAt: time.Now().UTC(),
		},
		onComplete: onComplete,
	}
	q.pending = append(q.pending, j)
	q.inFlight[sourceLink] = true
	q.totalQueued++
	result := models.SubmissionResult{
		Added:         true,
		JobID:         id.String(),
		Position:      len(q.pending),
		EstimatedWait: q.estimatedWaitLocked(),
	}
	q.admitLocked()
	q.mu.Unlock()

	go metrics.Increment("queue.enqueue")
	log.Printf("queue: enqueued %s for %s", id.String(), sourceLink)
	return result, nil
}

// admitLocked starts pending jobs while slots are free. Callers must
// hold q.mu. Idempotent; safe to call with nothing to do.
func (q *Queue) admitLocked() {
	for len(q.pending) > 0 && q.active < q.maxConcurrent {
		j := q.pending[0]
		q.pending = q.pending[1:]
		j.Status = models.StatusRunning
		q.active++
		q.wg.Add(1)
		go q.run(j)
	}
}

// run occupies one concurrency slot for the job's entire pipeline.
func (q *Queue) run(j *job) {
	defer q.wg.Done()
	debug("starting %s (%s)", j.ID.String(), j.SourceLink)
	q.publish(Event{Kind: EventStarted, JobID: j.ID.String(), SourceLink: j.SourceLink, Title: j.Title})

	start := time.Now()
	res, err := q.processor.Process(&j.Job)
	go metrics.Time("queue.process.latency", time.Since(start))

	q.mu.Lock()
	if err != nil {
		j.Status = models.StatusFailed
		q.totalFailed++
	} else {
		j.Status = models.StatusSucceeded
		q.totalProcessed++
	}
	// The link may be resubmitted as soon as the job is terminal.
	delete(q.inFlight, j.SourceLink)
	q.mu.Unlock()

	if err != nil {
		go metrics.Increment("queue.process.failure")
		log.Printf("queue: job %s failed: %s", j.ID.String(), err)
		res = &models.CompletionResult{
			Success:    false,
			Message:    err.Error(),
			SourceLink: j.SourceLink,
			Title:      j.Title,
		}
		j.deliver(res)
		q.publish(Event{Kind: EventFailed, JobID: j.ID.String(), SourceLink: j.SourceLink, Title: j.Title, Error: err.Error()})
	} else {
		go metrics.Increment("queue.process.success")
		log.Printf("queue: job %s succeeded", j.ID.String())
		j.deliver(res)
		q.publish(Event{Kind: EventCompleted, JobID: j.ID.String(), SourceLink: j.SourceLink, Title: j.Title})
	}

	q.mu.Lock()
	q.active--
	q.admitLocked()
	empty := len(q.pending) == 0 && q.active == 0
	q.mu.Unlock()
	if empty {
		debug("queue drained")
		q.publish(Event{Kind: EventEmpty})
	}
}

// estimatedWaitLocked estimates, in seconds, how long a job submitted
// now will wait before starting. Callers must hold q.mu.
func (q *Queue) estimatedWaitLocked() int {
	position := len(q.pending)
	if position == 0 {
		return 0
	}
	avg := int(averageJobDuration / time.Second)
	slots := q.maxConcurrent - q.active
	if slots < 1 {
		slots = q.maxConcurrent
	}
	return (position + slots - 1) / slots * avg
}

// Stats returns the live counter snapshot.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statsLocked()
}

func (q *Queue) statsLocked() models.QueueStats {
	return models.QueueStats{
		TotalQueued:      q.totalQueued,
		TotalProcessed:   q.totalProcessed,
		TotalFailed:      q.totalFailed,
		TotalDuplicates:  q.totalDuplicates,
		QueueSize:        len(q.pending),
		ActiveProcessors: q.active,
		MaxConcurrent:    q.maxConcurrent,
		IsProcessing:     q.active > 0,
	}
}

// Status returns the pending jobs in admission order plus Stats.
func (q *Queue) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	summaries := make([]models.JobSummary, len(q.pending))
	for i, j := range q.pending {
		summaries[i] = j.Summary()
	}
	return models.QueueStatus{
		Queue: summaries,
		Stats: q.statsLocked(),
	}
}

// Clear drops every pending job and returns how many were dropped.
// Running jobs are unaffected and still deliver their callbacks.
func (q *Queue) Clear() int {
	q.mu.Lock()
	cleared := len(q.pending)
	for _, j := range q.pending {
		delete(q.inFlight, j.SourceLink)
	}
	q.pending = nil
	q.mu.Unlock()
	if cleared > 0 {
		log.Printf("queue: cleared %d pending jobs", cleared)
		q.publish(Event{Kind: EventCleared})
	}
	return cleared
}

// Remove drops a single pending job by id. Returns false if the job is
// already running, finished, or unknown.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	for i, j := range q.pending {
		if j.ID.String() == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			delete(q.inFlight, j.SourceLink)
			q.mu.Unlock()
			log.Printf("queue: removed pending job %s", jobID)
			q.publish(Event{Kind: EventRemoved, JobID: jobID, SourceLink: j.SourceLink})
			return true
		}
	}
	q.mu.Unlock()
	return false
}

// Shutdown drops all pending jobs and waits for running jobs to reach
// a terminal state and deliver their callbacks.
func (q *Queue) Shutdown() {
	q.Clear()
	q.wg.Wait()
}
