package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
)

// Record is the StructuredRecord of one document: every schema field plus lifecycle state.
type Record struct {
	ID           uuid.UUID                  `json:"id"`
	BatchID      string                     `json:"batch_id,omitempty"`
	Position     int                        `json:"position"`
	FileName     string                     `json:"file_name"`
	Fields       schema.Fields              `json:"fields"`
	Decisions    []schema.Decision          `json:"decisions,omitempty"`
	Status       constants.ProcessingStatus `json:"processing_status"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	Strategy     string                     `json:"strategy,omitempty"`
	Readability  float64                    `json:"readability,omitempty"`
	Degraded     bool                       `json:"degraded,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	FinishedAt   *time.Time                 `json:"finished_at,omitempty"`
	// SupersededBy is set once a resubmission has replaced this record in its batch.
	SupersededBy *uuid.UUID                 `json:"superseded_by,omitempty"`
}

// NewRecord returns a pending record with every key of sch present and empty.
func NewRecord(fileName string, sch *schema.Schema) *Record {
	return &Record{
		ID:        uuid.New(),
		FileName:  fileName,
		Fields:    sch.NewFields(),
		Status:    constants.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *Record) transition(to constants.ProcessingStatus) error {
	if !constants.CanTransition(r.Status, to) {
		return common.NewAppError(common.CodeStatus,
			fmt.Sprintf("record %s: %s -> %s", r.ID, r.Status, to), common.ErrInvalidInput)
	}
	r.Status = to
	return nil
}

// Start moves pending -> processing.
func (r *Record) Start() error {
	if err := r.transition(constants.StatusProcessing); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.StartedAt = &now
	return nil
}

// Complete moves processing -> completed. Keys outside the record's key set are ignored.
func (r *Record) Complete(fields schema.Fields, decisions []schema.Decision) error {
	if err := r.transition(constants.StatusCompleted); err != nil {
		return err
	}
	for k := range r.Fields {
		r.Fields[k] = fields.Get(k)
	}
	r.Decisions = decisions
	r.finish()
	return nil
}

// Fail moves processing -> error and records a human readable reason.
func (r *Record) Fail(cause error) error {
	if err := r.transition(constants.StatusError); err != nil {
		return err
	}
	r.ErrorMessage = common.UserMessage(cause)
	if r.ErrorMessage == "" {
		r.ErrorMessage = "unknown error"
	}
	r.finish()
	return nil
}

func (r *Record) finish() {
	now := time.Now().UTC()
	r.FinishedAt = &now
}

// Clone returns a deep copy safe to hand to observers.
func (r *Record) Clone() Record {
	out := *r
	out.Fields = make(schema.Fields, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	if r.Decisions != nil {
		out.Decisions = append([]schema.Decision(nil), r.Decisions...)
	}
	return out
}

// BatchResult is what a batch run reports back: per-document records in input order plus counts.
type BatchResult struct {
	BatchID   string   `json:"batch_id"`
	Records   []Record `json:"records"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
}

// NewBatchResult counts terminal states of records.
func NewBatchResult(batchID string, records []Record) BatchResult {
	res := BatchResult{BatchID: batchID, Records: records}
	for _, r := range records {
		switch r.Status {
		case constants.StatusCompleted:
			res.Completed++
		case constants.StatusError:
			res.Failed++
		}
	}
	return res
}
