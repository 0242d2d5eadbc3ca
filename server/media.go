package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shyp/rest"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/queue"
)

type mediaSubmission struct {
	Link    string            `json:"link"`
	Options models.JobOptions `json:"options"`
}

// submitMedia enqueues a link for processing. The response is held open
// until the job reaches a terminal state, so a successful POST returns
// the finished artifact's details. Duplicate links get an immediate
// response instead.
func submitMedia(q *queue.Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var body mediaSubmission
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(w, r, &rest.Error{
				ID:       "invalid_request",
				Title:    "Invalid request body",
				Detail:   err.Error(),
				Instance: r.URL.Path,
			})
			return
		}
		if body.Link == "" {
			badRequest(w, r, createEmptyErr("link", r.URL.Path))
			return
		}

		done := make(chan *models.CompletionResult, 1)
		result, err := q.Submit(body.Link, body.Options, func(res *models.CompletionResult) {
			done <- res
		})
		if err != nil {
			if errors.Is(err, queue.ErrLedgerNotLoaded) {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(&rest.Error{
					ID:    "not_ready",
					Title: "Server is still starting up. Please try again",
				})
				return
			}
			writeServerError(w, r, err)
			return
		}

		if !result.Added {
			switch result.Reason {
			case models.ReasonAlreadyProcessed:
				w.WriteHeader(http.StatusOK)
			case models.ReasonAlreadyInQueue:
				w.WriteHeader(http.StatusConflict)
			default:
				w.WriteHeader(http.StatusOK)
			}
			json.NewEncoder(w).Encode(result)
			return
		}

		w.Header().Set("X-Job-Id", result.JobID)
		select {
		case res := <-done:
			if res.Success {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
			json.NewEncoder(w).Encode(res)
		case <-r.Context().Done():
			// Client went away; the job keeps running and its outcome
			// lands in the ledger.
		}
	})
}
