package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/async"
	"github.com/joseph-ayodele/committee-extract/internal/core/extract"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
	"github.com/joseph-ayodele/committee-extract/internal/export"
	"github.com/joseph-ayodele/committee-extract/internal/repository"
)

const readableText = "פרוטוקול ועדה רפואית לעררים נכות כללית שם המבוטח דוגמה כהן ת.ז 123456789 " +
	"תאריך הועדה 01/02/2024 אבחנה כאבי גב תחתון סעיף ליקוי 37(7)(א) אחוז נכות 10%"

// echoStrategy returns the document bytes as its text.
type echoStrategy struct{}

func (echoStrategy) Name() string              { return "echo" }
func (echoStrategy) MinChars() int             { return 20 }
func (echoStrategy) Applies(extract.Input) bool { return true }
func (echoStrategy) Extract(_ context.Context, in extract.Input) (string, error) {
	return string(in.Doc.Data), nil
}

type staticCompleter string

func (c staticCompleter) Complete(context.Context, string) (string, error) { return string(c), nil }

type fixture struct {
	store repository.RecordStore
	svc   *BatchService
	http  *HTTPServer
	h     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	proc, err := core.NewProcessor(extract.NewCascade(logger, echoStrategy{}),
		staticCompleter(`{"שם המבוטח": "דוגמה כהן", "ת.ז": "123456789"}`), logger)
	if err != nil {
		t.Fatal(err)
	}
	runner := async.NewBatchRunner(proc, logger, async.WithConcurrency(2))
	svc := NewBatchService(ctx, store, runner, nil, export.NewService(store, schema.Committee, logger), logger)
	hs := NewHTTPServer(svc, store, common.ServerConfig{MaxUploadBytes: 1 << 20, RequestTimeout: time.Minute}, logger)
	return &fixture{store: store, svc: svc, http: hs, h: hs.Routes()}
}

func upload(t *testing.T, files map[string]string, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		fw, err := mw.CreateFormFile(filesField, name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(files[name]))
	}
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

func decodeBatch(t *testing.T, w *httptest.ResponseRecorder) entity.BatchResult {
	t.Helper()
	var res entity.BatchResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

func TestSubmitBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	body, ct := upload(t, map[string]string{"a.pdf": readableText, "b.png": "", "c.pdf": readableText},
		[]string{"a.pdf", "b.png", "c.pdf"})

	w := f.do(t, http.MethodPost, "/api/v1/batches", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	res := decodeBatch(t, w)
	if res.Completed != 2 || res.Failed != 1 || len(res.Records) != 3 {
		t.Fatalf("result = %+v", res)
	}
	if res.Records[1].FileName != "b.png" || res.Records[1].Status != constants.StatusError {
		t.Fatalf("b.png = %+v", res.Records[1])
	}
	if got := res.Records[0].Fields[schema.KeyInsuredName]; got != "דוגמה כהן" {
		t.Fatalf("insured = %q", got)
	}

	w = f.do(t, http.MethodGet, "/api/v1/batches/"+res.BatchID, nil, "")
	stored := decodeBatch(t, w)
	if len(stored.Records) != 3 || stored.Records[2].FileName != "c.pdf" || stored.Failed != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSubmitBatchAsync(t *testing.T) {
	f := newFixture(t)
	body, ct := upload(t, map[string]string{"a.pdf": readableText}, []string{"a.pdf"})

	w := f.do(t, http.MethodPost, "/api/v1/batches?async=true", body, ct)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	res := decodeBatch(t, w)
	if res.Records[0].Status != constants.StatusPending {
		t.Fatalf("snapshot status = %s", res.Records[0].Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.svc.Wait(ctx)

	got, err := f.svc.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Completed != 1 {
		t.Fatalf("after wait = %+v", got.Records)
	}
}

func TestSubmitBatchRejectsEmptyUpload(t *testing.T) {
	f := newFixture(t)
	body, ct := upload(t, nil, nil)
	if w := f.do(t, http.MethodPost, "/api/v1/batches", body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/batches", bytes.NewBufferString("{}"), "application/json"); w.Code != http.StatusBadRequest {
		t.Fatalf("json status = %d", w.Code)
	}
}

func TestResubmitReplacesFailedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, []*entity.RawDocument{
		{FileName: "a.pdf", MimeType: constants.MimePDF, Data: []byte(readableText)},
		{FileName: "b.pdf", MimeType: constants.MimePDF},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	failed, done := res.Records[1], res.Records[0]

	if w := f.do(t, http.MethodPost, "/api/v1/documents/"+done.ID.String()+"/resubmit", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("completed resubmit status = %d", w.Code)
	}

	w := f.do(t, http.MethodPost, "/api/v1/documents/"+failed.ID.String()+"/resubmit", nil, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var fresh entity.Record
	_ = json.NewDecoder(w.Body).Decode(&fresh)
	if fresh.ID == failed.ID || fresh.Position != 2 || fresh.BatchID != res.BatchID {
		t.Fatalf("fresh = %+v", fresh)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.svc.Wait(wctx)

	batch, _ := f.svc.Batch(ctx, res.BatchID)
	if len(batch.Records) != 2 || batch.Records[1].ID != fresh.ID || !batch.Records[1].Status.IsTerminal() {
		t.Fatalf("batch = %+v", batch.Records)
	}
	old, _ := f.svc.Record(ctx, failed.ID)
	if old.Status != constants.StatusError {
		t.Fatalf("old status = %s", old.Status)
	}

	if w := f.do(t, http.MethodPost, "/api/v1/documents/nope/resubmit", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
}

func TestResubmitOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, []*entity.RawDocument{
		{FileName: "a.pdf", MimeType: constants.MimePDF, Data: []byte(readableText)},
		{FileName: "b.pdf", MimeType: constants.MimePDF},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	failed := res.Records[1]

	fresh, err := f.svc.Resubmit(ctx, failed.ID)
	if err != nil {
		t.Fatalf("first resubmit: %v", err)
	}
	if _, err := f.svc.Resubmit(ctx, failed.ID); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("second resubmit err = %v, want ErrInvalidInput", err)
	}
	if w := f.do(t, http.MethodPost, "/api/v1/documents/"+failed.ID.String()+"/resubmit", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("second resubmit status = %d", w.Code)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.svc.Wait(wctx)

	old, err := f.svc.Record(ctx, failed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.SupersededBy == nil || *old.SupersededBy != fresh.ID {
		t.Fatalf("superseded_by = %v, want %s", old.SupersededBy, fresh.ID)
	}
	batch, err := f.svc.Batch(ctx, res.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("batch has %d rows, want 2", len(batch.Records))
	}
	if batch.Records[1].ID != fresh.ID || batch.Records[1].Position != 2 {
		t.Fatalf("position 2 = %+v", batch.Records[1])
	}

	// the replacement failed too (empty document) and is itself resubmittable once
	if batch.Records[1].Status != constants.StatusError {
		t.Fatalf("replacement status = %s", batch.Records[1].Status)
	}
	if _, err := f.svc.Resubmit(ctx, fresh.ID); err != nil {
		t.Fatalf("resubmit replacement: %v", err)
	}
	f.svc.Wait(wctx)
	if batch, _ = f.svc.Batch(ctx, res.BatchID); len(batch.Records) != 2 {
		t.Fatalf("batch has %d rows after chained resubmit, want 2", len(batch.Records))
	}
}

func TestConcurrentResubmitSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, []*entity.RawDocument{{FileName: "b.pdf", MimeType: constants.MimePDF}}, true)
	if err != nil {
		t.Fatal(err)
	}
	failed := res.Records[0]

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Resubmit(ctx, failed.ID)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, common.ErrInvalidInput):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d resubmissions succeeded, want 1", wins)
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	f.svc.Wait(wctx)
	batch, _ := f.svc.Batch(ctx, res.BatchID)
	if len(batch.Records) != 1 {
		t.Fatalf("batch has %d rows, want 1", len(batch.Records))
	}
}

func TestExportAndLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, []*entity.RawDocument{
		{FileName: "a.pdf", MimeType: constants.MimePDF, Data: []byte(readableText)},
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodGet, "/api/v1/batches/"+res.BatchID+"/export", nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export status = %d type = %s", w.Code, w.Header().Get("Content-Type"))
	}
	xf, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer xf.Close()
	if got, _ := xf.GetCellValue(export.SummarySheet, "B2"); got != "a.pdf" {
		t.Fatalf("B2 = %q", got)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/batches/missing/export", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing export = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/batches/missing", nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing batch = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/documents/"+res.Records[0].ID.String(), nil, ""); w.Code != http.StatusOK {
		t.Fatalf("record = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/healthz", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
}

func TestHealthServerTracksStore(t *testing.T) {
	f := newFixture(t)
	hs := NewHealthServer(f.store, nil)
	if got := hs.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", got)
	}
	_ = f.store.Close()
	if got := hs.Check(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("closed store status = %v", got)
	}
}
