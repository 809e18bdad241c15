// Package async runs documents through the processor concurrently: a bounded fan-out for
// whole batches and a long-lived worker queue for the daemon.
package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// BatchRunner processes a list of documents with bounded concurrency.
// One document failing never stops its siblings.
type BatchRunner struct {
	proc        *core.Processor
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
}

type BatchOption func(*BatchRunner)

func WithConcurrency(n int) BatchOption {
	return func(b *BatchRunner) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithDocumentTimeout(d time.Duration) BatchOption {
	return func(b *BatchRunner) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func NewBatchRunner(proc *core.Processor, logger *slog.Logger, opts ...BatchOption) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BatchRunner{proc: proc, logger: logger, concurrency: 4, timeout: 5 * time.Minute}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Schema is the record schema of the underlying processor.
func (b *BatchRunner) Schema() *schema.Schema { return b.proc.Schema() }

// NewBatchID returns a fresh batch identifier.
func NewBatchID() string { return uuid.New().String() }

// Prepare creates one pending record per document, in input order.
func (b *BatchRunner) Prepare(batchID string, docs []*entity.RawDocument) []*entity.Record {
	recs := make([]*entity.Record, len(docs))
	for i, d := range docs {
		r := entity.NewRecord(d.FileName, b.Schema())
		r.BatchID = batchID
		r.Position = i + 1
		recs[i] = r
	}
	return recs
}

// Run prepares records for docs and processes them. notify may be nil; it is called
// from worker goroutines and must be safe for concurrent use.
func (b *BatchRunner) Run(ctx context.Context, docs []*entity.RawDocument, notify core.Observer) entity.BatchResult {
	batchID := NewBatchID()
	recs := b.Prepare(batchID, docs)
	for _, r := range recs {
		if notify != nil {
			notify(r.Clone())
		}
	}
	return b.RunRecords(ctx, batchID, recs, docs, notify)
}

// RunRecords processes prepared records; recs[i] belongs to docs[i].
// It returns once every record is terminal, with records in input order.
func (b *BatchRunner) RunRecords(ctx context.Context, batchID string, recs []*entity.Record, docs []*entity.RawDocument, notify core.Observer) entity.BatchResult {
	ctx = common.WithBatchID(ctx, batchID)
	log := common.LoggerWithContext(ctx, b.logger)
	start := time.Now()
	log.Info("batch.start", "documents", len(docs), "concurrency", b.concurrency)

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i := range recs {
		rec, doc := recs[i], docs[i]
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(common.WithRequestID(ctx, rec.ID.String()), b.timeout)
			defer cancel()
			_ = b.proc.ProcessRecord(dctx, rec, doc, notify)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]entity.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	res := entity.NewBatchResult(batchID, out)
	log.Info("batch.done",
		"completed", res.Completed,
		"failed", res.Failed,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}
