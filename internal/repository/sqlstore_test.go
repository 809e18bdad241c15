package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

func openTestStore(t *testing.T) RecordStore {
	t.Helper()
	store, err := Open(context.Background(), Config{DSN: ":memory:"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRecord(batch string, pos int, name string) *entity.Record {
	r := entity.NewRecord(name, schema.Committee)
	r.BatchID = batch
	r.Position = pos
	return r
}

func TestSaveAndGetRecord(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	r := newRecord("b1", 1, "a.pdf")
	if err := store.SaveRecord(ctx, r.Clone()); err != nil {
		t.Fatal(err)
	}
	_ = r.Start()
	f := schema.Committee.NewFields()
	f[schema.KeyInsuredName] = "דוגמה כהן"
	r.Strategy, r.Readability, r.Degraded = "text-layer", 87.5, true
	_ = r.Complete(f, []schema.Decision{{Diagnosis: "כאבי גב", Percentage: "10%"}})
	if err := store.SaveRecord(ctx, r.Clone()); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRecord(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != constants.StatusCompleted || got.Fields[schema.KeyInsuredName] != "דוגמה כהן" {
		t.Fatalf("record = %+v", got)
	}
	if got.Strategy != "text-layer" || got.Readability != 87.5 || !got.Degraded {
		t.Fatalf("metadata = %q %.1f %v", got.Strategy, got.Readability, got.Degraded)
	}
	if len(got.Decisions) != 1 || got.Decisions[0].Diagnosis != "כאבי גב" {
		t.Fatalf("decisions = %+v", got.Decisions)
	}
	if got.StartedAt == nil || got.FinishedAt == nil || !got.CreatedAt.Equal(r.CreatedAt) {
		t.Fatal("timestamps lost")
	}
	if len(got.Fields) != len(schema.Committee.Keys()) {
		t.Fatalf("fields = %d", len(got.Fields))
	}
}

func TestGetRecordNotFound(t *testing.T) {
	_, err := openTestStore(t).GetRecord(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestListBatchOrderAndSupersede(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	second := newRecord("b1", 2, "b.pdf")
	first := newRecord("b1", 1, "a.pdf")
	other := newRecord("b2", 1, "x.pdf")
	for _, r := range []*entity.Record{second, first, other} {
		if err := store.SaveRecord(ctx, r.Clone()); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := store.ListBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].FileName != "a.pdf" || recs[1].FileName != "b.pdf" {
		t.Fatalf("batch = %+v", recs)
	}

	retry := newRecord("b1", 2, "b.pdf")
	doc := &entity.RawDocument{FileName: "b.pdf", MimeType: constants.MimePDF, Data: []byte("%PDF-1.4")}
	if err := store.Supersede(ctx, second.ID, retry.Clone(), doc); err != nil {
		t.Fatal(err)
	}
	recs, _ = store.ListBatch(ctx, "b1")
	if len(recs) != 2 || recs[1].ID != retry.ID {
		t.Fatalf("after supersede = %+v", recs)
	}
	if got, err := store.GetDocument(ctx, retry.ID); err != nil || got.FileName != "b.pdf" {
		t.Fatalf("replacement document = %+v, %v", got, err)
	}
	old, _ := store.GetRecord(ctx, second.ID)
	if old.SupersededBy == nil || *old.SupersededBy != retry.ID {
		t.Fatalf("superseded_by = %v", old.SupersededBy)
	}

	if _, err := store.ListBatch(ctx, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("missing batch err = %v", err)
	}
	if err := store.Supersede(ctx, uuid.New(), newRecord("b1", 3, "c.pdf").Clone(), doc); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("supersede missing err = %v", err)
	}
}

func TestSupersedeTwiceStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	doc := &entity.RawDocument{FileName: "b.pdf", MimeType: constants.MimePDF}

	failed := newRecord("b1", 1, "b.pdf")
	if err := store.SaveRecord(ctx, failed.Clone()); err != nil {
		t.Fatal(err)
	}
	first := newRecord("b1", 1, "b.pdf")
	if err := store.Supersede(ctx, failed.ID, first.Clone(), doc); err != nil {
		t.Fatal(err)
	}

	second := newRecord("b1", 1, "b.pdf")
	err := store.Supersede(ctx, failed.ID, second.Clone(), doc)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("second supersede err = %v, want ErrInvalidInput", err)
	}
	if _, err := store.GetRecord(ctx, second.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("rejected record was stored: %v", err)
	}
	if _, err := store.GetDocument(ctx, second.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("rejected document was stored: %v", err)
	}
	recs, err := store.ListBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != first.ID {
		t.Fatalf("batch = %+v", recs)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	id := uuid.New()
	doc := &entity.RawDocument{FileName: "a.pdf", MimeType: constants.MimePDF, Data: []byte("%PDF-1.4\x00\xff")}
	if err := store.SaveDocument(ctx, id, doc); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetDocument(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileName != doc.FileName || got.MimeType != doc.MimeType || string(got.Data) != string(doc.Data) {
		t.Fatalf("document = %+v", got)
	}
	if _, err := store.GetDocument(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	if got := dialectPostgres.rebind(q); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Fatalf("postgres = %s", got)
	}
	if got := dialectSQLite.rebind(q); got != q {
		t.Fatalf("sqlite = %s", got)
	}
	if !IsPostgres("postgres://u@h/db") || IsPostgres("committee.db") {
		t.Fatal("IsPostgres")
	}
}
