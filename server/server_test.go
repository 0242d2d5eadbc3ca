package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Shyp/rest"
	"github.com/mlgrupo/convert/ledger"
	"github.com/mlgrupo/convert/models"
	"github.com/mlgrupo/convert/queue"
	"github.com/mlgrupo/convert/storage"
	"github.com/mlgrupo/convert/test"
	"github.com/mlgrupo/convert/test/factory"
)

type testApp struct {
	handler http.Handler
	queue   *queue.Queue
	ledger  *ledger.Ledger
	store   *storage.Store
}

func newTestApp(t *testing.T, p queue.Processor) *testApp {
	t.Helper()
	a := NewSharedSecretAuthorizer()
	a.AddUser("test", "password")
	l := factory.Ledger(t)
	q := queue.New(l, p, 2)
	st := storage.New(t.TempDir(), "http://localhost:9090")
	return &testApp{
		handler: Get(Config{Authorizer: a, Queue: q, Ledger: l, Store: st}),
		queue:   q,
		ledger:  l,
		store:   st,
	}
}

func (app *testApp) do(t *testing.T, method, path string, body []byte, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	test.AssertNotError(t, err, "building request")
	if authed {
		req.SetBasicAuth("test", "password")
	}
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	return w
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "GET", "/v1/media", nil, true)
	test.AssertEquals(t, w.Code, http.StatusMethodNotAllowed)

	var e rest.Error
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &e), "decoding error")
	test.AssertEquals(t, e.Title, "Method not allowed")
	test.AssertEquals(t, e.Instance, "/v1/media")
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "GET", "/v1/nope", nil, true)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestMissingAuth(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "GET", "/v1/queue", nil, false)
	test.AssertEquals(t, w.Code, http.StatusUnauthorized)
	test.AssertContains(t, w.Header().Get("WWW-Authenticate"), "convert")
}

func TestWrongPassword(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	req, err := http.NewRequest("GET", "/v1/queue", nil)
	test.AssertNotError(t, err, "building request")
	req.SetBasicAuth("test", "wrong")
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
}

func TestSubmitMissingLink(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "POST", "/v1/media", []byte(`{}`), true)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)

	var e rest.Error
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &e), "decoding error")
	test.AssertEquals(t, e.ID, "missing_parameter")
	test.AssertEquals(t, e.Title, "Missing required field: link")
}

func TestSubmitInvalidBody(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "POST", "/v1/media", []byte(`{`), true)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
}

func TestSubmitWaitsForCompletion(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	body, _ := json.Marshal(map[string]string{"link": factory.PlainLink})
	w := app.do(t, "POST", "/v1/media", body, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	test.Assert(t, w.Header().Get("X-Job-Id") != "", "expected a job id header")

	var res models.CompletionResult
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &res), "decoding result")
	test.Assert(t, res.Success, "expected success")
	test.AssertEquals(t, res.SourceLink, factory.PlainLink)
}

func TestSubmitFailureReturns500(t *testing.T) {
	t.Parallel()
	p := queue.ProcessorFunc(func(j *models.Job) (*models.CompletionResult, error) {
		return nil, errors.New("fetch stage failed: no such host")
	})
	app := newTestApp(t, p)
	body, _ := json.Marshal(map[string]string{"link": factory.PlainLink})
	w := app.do(t, "POST", "/v1/media", body, true)
	test.AssertEquals(t, w.Code, http.StatusInternalServerError)

	var res models.CompletionResult
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &res), "decoding result")
	test.Assert(t, !res.Success, "expected failure")
}

func TestSubmitDuplicate(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	_, err := app.ledger.Upsert(factory.DriveLink, "already done", "", "done.mp3")
	test.AssertNotError(t, err, "seeding ledger")

	body, _ := json.Marshal(map[string]string{"link": factory.DriveLink})
	w := app.do(t, "POST", "/v1/media", body, true)
	test.AssertEquals(t, w.Code, http.StatusOK)

	var res models.SubmissionResult
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &res), "decoding result")
	test.Assert(t, !res.Added, "duplicate should not be added")
	test.AssertEquals(t, res.Reason, models.ReasonAlreadyProcessed)
	test.Assert(t, res.Record != nil, "expected the prior record")
}

func TestQueueStatusAndClear(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())

	w := app.do(t, "GET", "/v1/queue", nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var status models.QueueStatus
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &status), "decoding status")
	test.AssertEquals(t, status.Stats.MaxConcurrent, 2)
	test.AssertEquals(t, len(status.Queue), 0)

	w = app.do(t, "DELETE", "/v1/queue", nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var cleared clearResponse
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &cleared), "decoding clear response")
	test.AssertEquals(t, cleared.Cleared, 0)
}

func TestRemoveUnknownJob(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "DELETE", "/v1/queue/job_6740b44e-13b9-475d-af06-979627e0e0d6", nil, true)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestStats(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "GET", "/v1/stats", nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)

	var res struct {
		Queue  models.QueueStats  `json:"queue"`
		Ledger models.LedgerStats `json:"ledger"`
	}
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &res), "decoding stats")
	test.AssertEquals(t, res.Queue.MaxConcurrent, 2)
	test.AssertEquals(t, res.Ledger.TotalProcessed, 0)
}

func TestLedgerEndpoints(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	_, err := app.ledger.Upsert(factory.DriveLink, "a recording", "tr_1", "a.mp3")
	test.AssertNotError(t, err, "seeding ledger")

	w := app.do(t, "GET", "/v1/ledger", nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var list ledgerListResponse
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &list), "decoding list")
	test.AssertEquals(t, len(list.Items), 1)
	test.AssertEquals(t, list.Stats.TotalProcessed, 1)

	w = app.do(t, "GET", "/v1/ledger/"+factory.DriveID, nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	var item models.ProcessedItem
	test.AssertNotError(t, json.Unmarshal(w.Body.Bytes(), &item), "decoding item")
	test.AssertEquals(t, item.Title, "a recording")

	w = app.do(t, "DELETE", "/v1/ledger/"+factory.DriveID, nil, true)
	test.AssertEquals(t, w.Code, http.StatusOK)
	w = app.do(t, "GET", "/v1/ledger/"+factory.DriveID, nil, true)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestDownload(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	src := test.TempFile(t, "artifact.mp3", []byte("mp3 bytes"))
	info, err := app.store.Save(src, "standup.mp3")
	test.AssertNotError(t, err, "saving artifact")

	// Downloads are public: no credentials on the request.
	w := app.do(t, "GET", "/v1/download/"+info.FileName, nil, false)
	test.AssertEquals(t, w.Code, http.StatusOK)
	test.AssertEquals(t, w.Header().Get("Content-Type"), "audio/mpeg")
	test.AssertEquals(t, w.Body.String(), "mp3 bytes")

	w = app.do(t, "GET", "/v1/download/missing.mp3", nil, false)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func TestInsecureRequestForbidden(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	req, err := http.NewRequest("GET", "/v1/queue", nil)
	test.AssertNotError(t, err, "building request")
	req.SetBasicAuth("test", "password")
	req.Header.Set("X-Forwarded-Proto", "http")
	w := httptest.NewRecorder()
	app.handler.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
}

func TestHomepage(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, factory.SucceedingProcessor())
	w := app.do(t, "GET", "/", nil, false)
	test.AssertEquals(t, w.Code, http.StatusOK)
	test.AssertContains(t, w.Body.String(), "convert version")
}
