// Package server exposes batch submission, status, resubmission and export over HTTP,
// plus a gRPC health endpoint for the daemon.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/async"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
	"github.com/joseph-ayodele/committee-extract/internal/export"
	"github.com/joseph-ayodele/committee-extract/internal/repository"
)

// BatchService turns uploaded documents into stored records and drives them through the pipeline.
type BatchService struct {
	store    repository.RecordStore
	runner   *async.BatchRunner
	queue    async.Queue
	exporter *export.Service
	persist  core.Observer
	logger   *slog.Logger

	// base outlives request contexts for batches that run in the background.
	base    context.Context
	running sync.WaitGroup

	watchBatch string
	watchPos   atomic.Int64
}

// NewBatchService wires the service. queue may be nil; single documents then run through runner.
func NewBatchService(base context.Context, store repository.RecordStore, runner *async.BatchRunner, queue async.Queue, exporter *export.Service, logger *slog.Logger) *BatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchService{
		store:    store,
		runner:   runner,
		queue:    queue,
		exporter: exporter,
		persist:  repository.Recorder(store, logger),
		logger:   logger,
		base:     base,

		watchBatch: async.NewBatchID(),
	}
}

// Submit stores a pending record per document and starts the batch. With wait set it
// returns after every record is terminal; otherwise it returns the pending snapshots.
func (s *BatchService) Submit(ctx context.Context, docs []*entity.RawDocument, wait bool) (entity.BatchResult, error) {
	if len(docs) == 0 {
		return entity.BatchResult{}, common.NewAppError("VALIDATION_ERROR", "no documents submitted", common.ErrValidation)
	}
	batchID := async.NewBatchID()
	recs := s.runner.Prepare(batchID, docs)
	pending := make([]entity.Record, len(recs))
	for i, r := range recs {
		if err := s.store.SaveDocument(ctx, r.ID, docs[i]); err != nil {
			return entity.BatchResult{}, err
		}
		if err := s.store.SaveRecord(ctx, r.Clone()); err != nil {
			return entity.BatchResult{}, err
		}
		pending[i] = r.Clone()
	}
	s.logger.Info("batch.submitted", "batch_id", batchID, "documents", len(docs), "wait", wait)

	if wait {
		return s.runner.RunRecords(ctx, batchID, recs, docs, s.persist), nil
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runner.RunRecords(s.base, batchID, recs, docs, s.persist)
	}()
	return entity.NewBatchResult(batchID, pending), nil
}

// SubmitWatched adds one document found by the folder watcher to this process's watch batch.
func (s *BatchService) SubmitWatched(ctx context.Context, doc *entity.RawDocument) error {
	rec := entity.NewRecord(doc.FileName, s.runner.Schema())
	rec.BatchID = s.watchBatch
	rec.Position = int(s.watchPos.Add(1))
	if err := s.store.SaveDocument(ctx, rec.ID, doc); err != nil {
		return err
	}
	if err := s.store.SaveRecord(ctx, rec.Clone()); err != nil {
		return err
	}
	return s.dispatch(ctx, rec, doc)
}

// WatchBatchID is the batch that collects watched documents.
func (s *BatchService) WatchBatchID() string {
	return s.watchBatch
}

// Batch returns the current records of batchID in position order.
func (s *BatchService) Batch(ctx context.Context, batchID string) (entity.BatchResult, error) {
	recs, err := s.store.ListBatch(ctx, batchID)
	if err != nil {
		return entity.BatchResult{}, err
	}
	return entity.NewBatchResult(batchID, recs), nil
}

func (s *BatchService) Record(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	return s.store.GetRecord(ctx, id)
}

// Resubmit reprocesses the stored document of a failed record as a new pending record
// that takes the old one's place in its batch. The failed record itself stays in error
// and can be resubmitted only once.
func (s *BatchService) Resubmit(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	old, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return entity.Record{}, err
	}
	if old.Status != constants.StatusError {
		return entity.Record{}, common.NewAppError(common.CodeStatus,
			fmt.Sprintf("record %s is %s, only failed records can be resubmitted", id, old.Status), common.ErrInvalidInput)
	}
	if old.SupersededBy != nil {
		return entity.Record{}, common.NewAppError(common.CodeStatus,
			fmt.Sprintf("record %s was already resubmitted as %s", id, old.SupersededBy), common.ErrInvalidInput)
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return entity.Record{}, err
	}

	rec := entity.NewRecord(old.FileName, s.runner.Schema())
	rec.BatchID = old.BatchID
	rec.Position = old.Position
	if err := s.store.Supersede(ctx, old.ID, rec.Clone(), doc); err != nil {
		return entity.Record{}, err
	}
	s.logger.Info("record.resubmitted", "batch_id", rec.BatchID, "old_id", old.ID, "record_id", rec.ID)

	snapshot := rec.Clone()
	if err := s.dispatch(ctx, rec, doc); err != nil {
		return entity.Record{}, err
	}
	return snapshot, nil
}

// Export renders the current records of batchID as an XLSX workbook.
func (s *BatchService) Export(ctx context.Context, batchID string) ([]byte, string, error) {
	return s.exporter.ExportBatchXLSX(ctx, batchID)
}

// Wait blocks until background batches finish or ctx is done.
func (s *BatchService) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() { defer close(done); s.running.Wait() }()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background batches still running at shutdown")
	}
}

func (s *BatchService) dispatch(ctx context.Context, rec *entity.Record, doc *entity.RawDocument) error {
	if s.queue != nil {
		return s.queue.Enqueue(ctx, async.Job{BatchID: rec.BatchID, Record: rec, Doc: doc})
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.runner.RunRecords(s.base, rec.BatchID, []*entity.Record{rec}, []*entity.RawDocument{doc}, s.persist)
	}()
	return nil
}
