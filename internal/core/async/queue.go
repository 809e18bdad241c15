package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// Job is one pending record plus the document it was created for.
type Job struct {
	BatchID     string
	Record      *entity.Record
	Doc         *entity.RawDocument
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
