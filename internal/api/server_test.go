package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipowatch/internal/clock"
	"ipowatch/internal/export"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
	"ipowatch/internal/worker"
)

type fakeControl struct {
	runID    uuid.UUID
	startErr error
	cancelOK bool
	info     worker.RunInfo
	hasRun   bool
}

func (f *fakeControl) StartCrawl() (uuid.UUID, error) { return f.runID, f.startErr }
func (f *fakeControl) Cancel() bool                   { return f.cancelOK }
func (f *fakeControl) Status() (worker.RunInfo, bool) { return f.info, f.hasRun }

type fakeReader struct {
	recs       []schedule.Record
	brokers    []string
	lastBroker string
	lastToday  string
	err        error
	pingErr    error
}

func (f *fakeReader) UpcomingSchedules(_ context.Context, today, broker string) ([]schedule.Record, error) {
	f.lastToday = today
	f.lastBroker = broker
	return f.recs, f.err
}

func (f *fakeReader) Brokers(_ context.Context, today string) ([]string, error) {
	f.lastToday = today
	return f.brokers, f.err
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

type fakeExporter struct {
	path string
	rows int
	err  error
}

func (f *fakeExporter) Write(context.Context) (string, int, error) {
	return f.path, f.rows, f.err
}

type fakeActivity struct {
	events []progress.Event
}

func (f *fakeActivity) Events() []progress.Event { return f.events }

func newTestServer(control *fakeControl, reader *fakeReader, exporter *fakeExporter, activity Activity) *Server {
	return NewServer(Config{
		Worker:   control,
		Reader:   reader,
		Exporter: exporter,
		Activity: activity,
		Clock:    clock.Fixed{T: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	})
}

func doRequest(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{}, &fakeReader{}, &fakeExporter{}, nil)
	rec, body := doRequest(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReportsDatabaseState(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{}, &fakeReader{}, &fakeExporter{}, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(&fakeControl{}, &fakeReader{pingErr: errors.New("down")}, &fakeExporter{}, nil)
	rec, _ = doRequest(t, s, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartCrawl(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	s := newTestServer(&fakeControl{runID: runID}, &fakeReader{}, &fakeExporter{}, nil)
	rec, body := doRequest(t, s, http.MethodPost, "/v1/crawls")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, runID.String(), body["run_id"])
}

func TestStartCrawlConflictsWhileRunning(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{startErr: worker.ErrRunInProgress}, &fakeReader{}, &fakeExporter{}, nil)
	rec, body := doRequest(t, s, http.MethodPost, "/v1/crawls")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestCancelCrawl(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{cancelOK: true}, &fakeReader{}, &fakeExporter{}, nil)
	rec, _ := doRequest(t, s, http.MethodPost, "/v1/crawls/current/cancel")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	s = newTestServer(&fakeControl{cancelOK: false}, &fakeReader{}, &fakeExporter{}, nil)
	rec, _ = doRequest(t, s, http.MethodPost, "/v1/crawls/current/cancel")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCurrentCrawl(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{}, &fakeReader{}, &fakeExporter{}, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/v1/crawls/current")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	runID := uuid.New()
	control := &fakeControl{
		hasRun: true,
		info: worker.RunInfo{
			ID:        runID,
			Status:    worker.StatusRunning,
			StartedAt: time.Now(),
		},
	}
	activity := &fakeActivity{events: []progress.Event{
		{RunID: runID, TS: time.Now(), Kind: progress.KindRunStart},
	}}
	s = newTestServer(control, &fakeReader{}, &fakeExporter{}, activity)
	rec, body := doRequest(t, s, http.MethodGet, "/v1/crawls/current")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, body, "run")
	require.Contains(t, body, "activity")
	assert.Len(t, body["activity"], 1)
}

func TestUpcomingSchedules(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{recs: []schedule.Record{
		{StockName: "ACME Corp", Status: schedule.StatusSubscription, Source: "subscription-schedule"},
	}}
	s := newTestServer(&fakeControl{}, reader, &fakeExporter{}, nil)
	rec, body := doRequest(t, s, http.MethodGet, "/v1/schedules/upcoming?broker=한국투자증권")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "한국투자증권", reader.lastBroker)
	assert.Equal(t, "2025-03-01", reader.lastToday, "today comes from the injected clock")
}

func TestListBrokers(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{brokers: []string{"NH투자증권", "한국투자증권"}}
	s := newTestServer(&fakeControl{}, reader, &fakeExporter{}, nil)
	rec, body := doRequest(t, s, http.MethodGet, "/v1/brokers")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["brokers"], 2)
}

func TestExportWorkbook(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{}, &fakeReader{}, &fakeExporter{path: "/tmp/out.xlsx", rows: 12}, nil)
	rec, body := doRequest(t, s, http.MethodPost, "/v1/exports")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/tmp/out.xlsx", body["path"])
	assert.Equal(t, float64(12), body["rows"])
}

func TestExportWorkbookEmptyStore(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeControl{}, &fakeReader{}, &fakeExporter{err: export.ErrNoRecords}, nil)
	rec, _ := doRequest(t, s, http.MethodPost, "/v1/exports")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
