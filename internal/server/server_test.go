package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/acquire"
	"github.com/joseph-ayodele/property-importer/internal/async"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/entity"
	"github.com/joseph-ayodele/property-importer/internal/export"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// importerFunc adapts a function to Importer.
type importerFunc func(ctx context.Context, req pipeline.Request) <-chan pipeline.Event

func (f importerFunc) Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event {
	return f(ctx, req)
}

func emitting(got *pipeline.Request, events ...pipeline.Event) importerFunc {
	return func(_ context.Context, req pipeline.Request) <-chan pipeline.Event {
		if got != nil {
			*got = req
		}
		ch := make(chan pipeline.Event, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch
	}
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return job.RunID, nil
}

func (q *fakeQueue) Shutdown(context.Context) {}

type env struct {
	db    *repository.DB
	runs  repository.ImportRunRepository
	props repository.PropertyRepository
	queue *fakeQueue
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, quiet()) })
	require.NoError(t, repository.Migrate(ctx, db, quiet()))
	require.NoError(t, repository.NewTenantRepository(db, quiet()).Upsert(ctx, &entity.Tenant{ID: "t1", Name: "Blue Coast"}))
	return &env{
		db:    db,
		runs:  repository.NewImportRunRepository(db, quiet()),
		props: repository.NewPropertyRepository(db, quiet()),
		queue: &fakeQueue{},
	}
}

func (e *env) server(imp Importer) http.Handler {
	return e.serverWith(imp, Config{})
}

func (e *env) serverWith(imp Importer, cfg Config) http.Handler {
	return New(Deps{
		Importer: imp,
		Queue:    e.queue,
		Runs:     e.runs,
		Export:   export.NewService(e.props, quiet()),
		Health: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, e.db, 0, quiet())
		},
	}, cfg, quiet()).Routes()
}

func readLines(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line %q", sc.Text())
		out = append(out, m)
	}
	return out
}

func TestStreamImport_WritesOneLinePerEvent(t *testing.T) {
	e := newEnv(t)
	var got pipeline.Request
	h := e.server(emitting(&got,
		pipeline.Event{Type: pipeline.EventStatus, Step: constants.StepInit, Message: "Starting import", RunID: "r1"},
		pipeline.Event{Type: pipeline.EventStatus, Step: constants.StepSourceAcquisition, Message: "Reading pasted text", RunID: "r1"},
		pipeline.Event{Type: pipeline.EventResult, Step: constants.StepDone, PropertyID: "p1", RunID: "r1"},
	))

	body := `{"tenantId":" t1 ","text":"3 bed villa","hints":"sale only","maxImages":5}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeNDJSON, rec.Header().Get("Content-Type"))
	lines := readLines(t, rec.Body)
	require.Len(t, lines, 3)
	assert.Equal(t, "status", lines[0]["type"])
	assert.Equal(t, "INIT", lines[0]["step"])
	assert.Equal(t, "result", lines[2]["type"])
	assert.Equal(t, "p1", lines[2]["propertyId"])

	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, acquire.KindText, got.Source.Kind)
	assert.Equal(t, "3 bed villa", got.Source.Text)
	assert.Equal(t, "sale only", got.Hints)
	assert.Equal(t, 5, got.MaxImages)
}

func TestStreamImport_ScreenshotDataURL(t *testing.T) {
	e := newEnv(t)
	var got pipeline.Request
	h := e.server(emitting(&got, pipeline.Event{Type: pipeline.EventError, Step: constants.StepError, Message: "x"}))

	img := base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nrest"))
	body := `{"tenantId":"t1","text":"ignored","screenshot":"data:image/png;base64,` + img + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acquire.KindScreenshot, got.Source.Kind)
	assert.Equal(t, "image/png", got.Source.Image.MIME)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), got.Source.Image.Data)
}

func TestStreamImport_BadScreenshotIsRejected(t *testing.T) {
	e := newEnv(t)
	h := e.server(emitting(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(`{"screenshot":"***"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), common.CodeInvalidInput)
}

func TestStreamImport_PanicBecomesErrorLine(t *testing.T) {
	e := newEnv(t)
	h := e.server(importerFunc(func(context.Context, pipeline.Request) <-chan pipeline.Event {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(`{"url":"https://example.com"}`)))

	lines := readLines(t, rec.Body)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["type"])
	assert.Equal(t, internalStreamError, lines[0]["message"])
}

func TestStreamImport_MissingTerminalEvent(t *testing.T) {
	e := newEnv(t)
	h := e.server(emitting(nil, pipeline.Event{Type: pipeline.EventStatus, Step: constants.StepInit}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(`{"url":"https://example.com"}`)))

	lines := readLines(t, rec.Body)
	require.Len(t, lines, 2)
	assert.Equal(t, "error", lines[1]["type"])
	assert.Equal(t, internalStreamError, lines[1]["message"])
}

func TestStreamImport_ResultAfterDeadlineIsWritten(t *testing.T) {
	e := newEnv(t)
	h := e.serverWith(importerFunc(func(ctx context.Context, _ pipeline.Request) <-chan pipeline.Event {
		ch := make(chan pipeline.Event)
		go func() {
			defer close(ch)
			ch <- pipeline.Event{Type: pipeline.EventStatus, Step: constants.StepPersisting}
			<-ctx.Done()
			ch <- pipeline.Event{Type: pipeline.EventResult, Step: constants.StepDone, PropertyID: "p1"}
		}()
		return ch
	}), Config{StreamTimeout: 20 * time.Millisecond})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(`{"url":"https://example.com"}`)))

	lines := readLines(t, rec.Body)
	require.Len(t, lines, 2)
	assert.Equal(t, "result", lines[1]["type"])
	assert.Equal(t, "p1", lines[1]["propertyId"])
}

func TestStreamImport_GalleryImages(t *testing.T) {
	e := newEnv(t)
	var got pipeline.Request
	h := e.server(emitting(&got, pipeline.Event{Type: pipeline.EventResult, Step: constants.StepDone}))

	body := `{"tenantId":"t1","text":"villa","galleryImages":[" https://cdn.example.com/1.jpg ","https://cdn.example.com/2.jpg"]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"}, got.GalleryImages)
	assert.Empty(t, got.Screenshots)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import-stream", strings.NewReader(`{"text":"villa","galleryImages":["file:///etc/passwd"]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "galleryImages[0]")
}

func TestStreamImportQuery(t *testing.T) {
	e := newEnv(t)
	var got pipeline.Request
	h := e.server(emitting(&got, pipeline.Event{Type: pipeline.EventResult, Step: constants.StepDone}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import-stream?tenantId=t1&url=https%3A%2F%2Fexample.com%2Fl%2F1&model=gpt-4o&maxImages=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acquire.KindURL, got.Source.Kind)
	assert.Equal(t, "https://example.com/l/1", got.Source.URL)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 7, got.MaxImages)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import-stream?url=https://example.com&maxImages=lots", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import-stream?url=https://example.com&maxImages=9999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueImport(t *testing.T) {
	e := newEnv(t)
	h := e.server(emitting(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(`{"tenantId":"t1","url":"https://example.com/l/9"}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["runId"])
	require.Len(t, e.queue.jobs, 1)
	job := e.queue.jobs[0]
	assert.Equal(t, resp["runId"], job.RunID)
	assert.Equal(t, resp["runId"], job.Request.RunID)
	assert.Equal(t, "https://example.com/l/9", job.Request.Source.URL)
	assert.False(t, job.SubmittedAt.IsZero())
}

func TestEnqueueImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		queueErr error
		want     int
	}{
		{"invalid url", `{"tenantId":"t1","url":"ftp://example.com"}`, nil, http.StatusBadRequest},
		{"no tenant", `{"url":"https://example.com"}`, nil, http.StatusUnauthorized},
		{"malformed json", `{"url":`, nil, http.StatusBadRequest},
		{"queue closed", `{"tenantId":"t1","url":"https://example.com"}`, async.ErrClosed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.queue.err = tt.queueErr
			rec := httptest.NewRecorder()
			e.server(emitting(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGetImport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.runs.Start(ctx, &entity.ImportRun{ID: "run-1", TenantID: "t1", SourceKind: "url", SourceRef: "example.com/l/1"}))
	require.NoError(t, e.runs.Advance(ctx, "run-1", string(constants.StepAIExtraction)))
	h := e.server(emitting(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run entity.ImportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, string(constants.RunStatusRunning), run.Status)
	assert.Equal(t, string(constants.StepAIExtraction), run.Step)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/imports/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), common.CodeNotFound)
}

func TestExportProperties(t *testing.T) {
	e := newEnv(t)
	price := 250000.0
	_, err := e.props.CreateProperty(context.Background(), &entity.Property{
		TenantID: "t1", Slug: "flat-1", Title: "Flat", Category: "residential", Type: "apartment",
		Goal: "SALE", Status: constants.PropertyStatusActive, PublicationStatus: constants.PublicationStatusDraft,
		Price: &price, Currency: "EUR", Country: "Cyprus", SourceRef: "example.com/flat",
	})
	require.NoError(t, err)
	h := e.server(emitting(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/properties/export?tenantId=t1&since=2020-01-01", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/properties/export?since=2020-01-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/properties/export?tenantId=t1&since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.server(emitting(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	down := New(Deps{Health: func(context.Context) error { return errors.New("db down") }}, Config{}, quiet()).Routes()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}
