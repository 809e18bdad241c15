package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// RecordStore persists records by batch, and the source document of each record so
// a failed record can be resubmitted.
type RecordStore interface {
	Migrate(ctx context.Context) error
	SaveRecord(ctx context.Context, rec entity.Record) error
	SaveDocument(ctx context.Context, recordID uuid.UUID, doc *entity.RawDocument) error
	GetRecord(ctx context.Context, id uuid.UUID) (entity.Record, error)
	GetDocument(ctx context.Context, recordID uuid.UUID) (*entity.RawDocument, error)
	// ListBatch returns the current records of a batch ordered by position.
	// Records replaced by a resubmission are omitted.
	ListBatch(ctx context.Context, batchID string) ([]entity.Record, error)
	// Supersede stores rec with its document and hides oldID from ListBatch in its favour,
	// in one transaction. A record can be superseded once; later attempts fail with
	// ErrInvalidInput and store nothing.
	Supersede(ctx context.Context, oldID uuid.UUID, rec entity.Record, doc *entity.RawDocument) error
	Ping(ctx context.Context) error
	Close() error
}

const recordSaveTimeout = 10 * time.Second

// Recorder returns an observer that saves every record snapshot it sees. Saves use their own
// deadline so the terminal snapshot of a cancelled document is still stored.
func Recorder(store RecordStore, logger *slog.Logger) func(entity.Record) {
	return func(rec entity.Record) {
		ctx, cancel := context.WithTimeout(context.Background(), recordSaveTimeout)
		defer cancel()
		if err := store.SaveRecord(ctx, rec); err != nil {
			logger.Error("record.persist_failed", "record_id", rec.ID, "status", rec.Status, "error", err)
		}
	}
}
