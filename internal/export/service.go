package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// BatchLister is the slice of the record store the export needs.
type BatchLister interface {
	ListBatch(ctx context.Context, batchID string) ([]entity.Record, error)
}

// Service is a small façade over the record store that produces XLSX bytes for a batch.
type Service struct {
	store  BatchLister
	schema *schema.Schema
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store BatchLister, sch *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sch == nil {
		sch = schema.Committee
	}
	return &Service{store: store, schema: sch, logger: logger, now: time.Now}
}

// ExportBatchXLSX returns the workbook bytes and a suggested file name for every current record of batchID.
func (s *Service) ExportBatchXLSX(ctx context.Context, batchID string) ([]byte, string, error) {
	start := time.Now()
	recs, err := s.store.ListBatch(ctx, batchID)
	if err != nil {
		return nil, "", fmt.Errorf("list batch: %w", err)
	}
	data, err := s.Records(recs)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("export.xlsx.ok",
		"batch_id", batchID,
		"rows", len(recs),
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return data, FileName(s.now()), nil
}

// Records renders already loaded records, e.g. a BatchResult the CLI holds in memory.
func (s *Service) Records(recs []entity.Record) ([]byte, error) {
	wb, err := Render(Aggregate(recs, s.schema))
	if err != nil {
		return nil, fmt.Errorf("xlsx render: %w", err)
	}
	defer wb.Close()

	data, err := wb.Bytes()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return data, nil
}
