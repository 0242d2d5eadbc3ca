package server

import (
	"encoding/json"
	"net/http"

	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/queue"
)

// getQueueStatus returns pending jobs in admission order plus the
// counter snapshot.
func getQueueStatus(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(q.Status())
	})
}

type clearResponse struct {
	Cleared int `json:"cleared"`
}

// clearQueue drops every pending job. Running jobs keep running.
func clearQueue(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clearResponse{Cleared: q.Clear()})
	})
}

type removeResponse struct {
	Removed bool   `json:"removed"`
	JobID   string `json:"job_id"`
}

// removeQueuedJob drops one pending job by id. Jobs already running
// cannot be removed.
func removeQueuedJob(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matches := queueJobRoute.FindStringSubmatch(r.URL.Path)
		if len(matches) < 2 {
			notFound(w, new404(r))
			return
		}
		jobID := matches[1]
		if !q.Remove(jobID) {
			notFound(w, new404(r))
			return
		}
		json.NewEncoder(w).Encode(removeResponse{Removed: true, JobID: jobID})
	})
}

type statsResponse struct {
	Queue  interface{} `json:"queue"`
	Ledger interface{} `json:"ledger"`
}

// getStats combines the queue counters with the ledger summary.
func getStats(q *queue.Queue, l *ledger.Ledger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statsResponse{
			Queue:  q.Stats(),
			Ledger: l.Stats(),
		})
	})
}
