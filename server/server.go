// Package server responds to incoming HTTP requests: media
// submissions, queue inspection, ledger inspection, artifact download,
// and a websocket feed of queue lifecycle events.
package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/queue"
	"github.com/mlgrupo/convert/storage"
)

// Config collects the collaborators every handler needs.
type Config struct {
	Authorizer Authorizer
	Queue      *queue.Queue
	Ledger     *ledger.Ledger
	Store      *storage.Store
}

var mediaRoute = buildRoute("^/v1/media$")
var queueRoute = buildRoute("^/v1/queue$")
var queueJobRoute = buildRoute("^/v1/queue/(job_[0-9a-f-]+)$")
var statsRoute = buildRoute("^/v1/stats$")
var ledgerRoute = buildRoute("^/v1/ledger$")
var ledgerItemRoute = buildRoute("^/v1/ledger/([a-zA-Z0-9_-]+)$")
var downloadRoute = buildRoute("^/v1/download/([^/]+)$")
var liveRoute = buildRoute("^/v1/live$")
var homeRoute = buildRoute("^/$")
var pprofRoute = buildRoute("^/debug/pprof")

// Get returns the top-level handler. The download, live, and homepage
// routes are public; everything else requires credentials.
func Get(c Config) http.Handler {
	h := new(RegexpHandler)

	h.Handler(mediaRoute, []string{"POST"}, authHandler(submitMedia(c.Queue), c.Authorizer))
	h.Handler(queueRoute, []string{"GET"}, authHandler(getQueueStatus(c.Queue), c.Authorizer))
	h.Handler(queueRoute, []string{"DELETE"}, authHandler(clearQueue(c.Queue), c.Authorizer))
	h.Handler(queueJobRoute, []string{"DELETE"}, authHandler(removeQueuedJob(c.Queue), c.Authorizer))
	h.Handler(statsRoute, []string{"GET"}, authHandler(getStats(c.Queue, c.Ledger), c.Authorizer))
	h.Handler(ledgerRoute, []string{"GET"}, authHandler(listLedger(c.Ledger), c.Authorizer))
	h.Handler(ledgerItemRoute, []string{"GET"}, authHandler(getLedgerItem(c.Ledger), c.Authorizer))
	h.Handler(ledgerItemRoute, []string{"DELETE"}, authHandler(removeLedgerItem(c.Ledger), c.Authorizer))

	h.HandleFunc(downloadRoute, []string{"GET"}, downloadArtifact(c.Store))
	h.HandleFunc(liveRoute, []string{"GET"}, liveEvents(c.Queue))
	h.HandleFunc(homeRoute, []string{"GET"}, renderHomepage)

	h.HandleFunc(buildRoute("^/debug/pprof/cmdline$"), []string{"GET"}, pprof.Cmdline)
	h.HandleFunc(buildRoute("^/debug/pprof/profile$"), []string{"GET"}, pprof.Profile)
	h.HandleFunc(buildRoute("^/debug/pprof/symbol$"), []string{"GET"}, pprof.Symbol)
	h.HandleFunc(buildRoute("^/debug/pprof/trace$"), []string{"GET"}, pprof.Trace)
	h.HandleFunc(pprofRoute, []string{"GET"}, pprof.Index)

	return forbidNonTLSTrafficHandler(h)
}

// authHandler checks basic auth credentials against a before passing
// the request through.
func authHandler(h http.Handler, a Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if err := a.Authorize(user, pass); err != nil {
			handleAuthorizeError(w, r, err)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// forbidNonTLSTrafficHandler returns a 403 to an insecure request made
// against a production server.
func forbidNonTLSTrafficHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "http" {
			forbidden(w, insecure403(r))
			return
		}
		h.ServeHTTP(w, r)
	})
}
