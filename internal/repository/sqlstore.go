package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/core/schema"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

type dialect struct {
	name       string
	blobType   string
	dollarArgs bool
}

var (
	dialectSQLite   = dialect{name: "sqlite", blobType: "BLOB"}
	dialectPostgres = dialect{name: "postgres", blobType: "BYTEA", dollarArgs: true}
)

// rebind rewrites '?' placeholders as $1..$n for Postgres.
func (d dialect) rebind(q string) string {
	if !d.dollarArgs {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore is the RecordStore for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	onClose func()
}

var _ RecordStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect, logger *slog.Logger, onClose func()) *SQLStore {
	return &SQLStore{db: db, dialect: d, logger: logger, onClose: onClose}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS committee_records (
			id            TEXT PRIMARY KEY,
			batch_id      TEXT NOT NULL,
			position      INTEGER NOT NULL,
			file_name     TEXT NOT NULL,
			status        TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			strategy      TEXT NOT NULL DEFAULT '',
			readability   DOUBLE PRECISION NOT NULL DEFAULT 0,
			degraded      BOOLEAN NOT NULL DEFAULT FALSE,
			fields        TEXT NOT NULL,
			decisions     TEXT NOT NULL DEFAULT '[]',
			created_at    TEXT NOT NULL,
			started_at    TEXT NOT NULL DEFAULT '',
			finished_at   TEXT NOT NULL DEFAULT '',
			superseded_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_committee_records_batch ON committee_records (batch_id, position)`,
		`CREATE TABLE IF NOT EXISTS committee_documents (
			record_id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			data      ` + s.dialect.blobType + ` NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			s.logger.Error("db.migrate.failed", "driver", s.dialect.name, "error", err)
			return fmt.Errorf("%w: migrate: %v", common.ErrDatabase, err)
		}
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) SaveRecord(ctx context.Context, rec entity.Record) error {
	return s.saveRecord(ctx, s.db, rec)
}

func (s *SQLStore) saveRecord(ctx context.Context, ex execer, rec entity.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	decisions := []byte("[]")
	if len(rec.Decisions) > 0 {
		if decisions, err = json.Marshal(rec.Decisions); err != nil {
			return fmt.Errorf("marshal decisions: %w", err)
		}
	}

	q := s.dialect.rebind(`INSERT INTO committee_records
		(id, batch_id, position, file_name, status, error_message, strategy, readability, degraded,
		 fields, decisions, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			strategy = excluded.strategy,
			readability = excluded.readability,
			degraded = excluded.degraded,
			fields = excluded.fields,
			decisions = excluded.decisions,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`)
	_, err = ex.ExecContext(ctx, q,
		rec.ID.String(), rec.BatchID, rec.Position, rec.FileName, string(rec.Status), rec.ErrorMessage,
		rec.Strategy, rec.Readability, rec.Degraded, string(fields), string(decisions),
		formatTime(&rec.CreatedAt), formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
	)
	if err != nil {
		s.logger.Error("db.record.save_failed", "record_id", rec.ID, "error", err)
		return fmt.Errorf("%w: save record: %v", common.ErrDatabase, err)
	}
	return nil
}

func (s *SQLStore) SaveDocument(ctx context.Context, recordID uuid.UUID, doc *entity.RawDocument) error {
	return s.saveDocument(ctx, s.db, recordID, doc)
}

func (s *SQLStore) saveDocument(ctx context.Context, ex execer, recordID uuid.UUID, doc *entity.RawDocument) error {
	q := s.dialect.rebind(`INSERT INTO committee_documents (record_id, file_name, mime_type, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (record_id) DO NOTHING`)
	data := doc.Data
	if data == nil {
		data = []byte{} // a nil slice binds as NULL
	}
	if _, err := ex.ExecContext(ctx, q, recordID.String(), doc.FileName, doc.MimeType, data); err != nil {
		return fmt.Errorf("%w: save document: %v", common.ErrDatabase, err)
	}
	return nil
}

const recordColumns = `id, batch_id, position, file_name, status, error_message, strategy, readability,
	degraded, fields, decisions, created_at, started_at, finished_at, superseded_by`

func (s *SQLStore) GetRecord(ctx context.Context, id uuid.UUID) (entity.Record, error) {
	q := s.dialect.rebind(`SELECT ` + recordColumns + ` FROM committee_records WHERE id = ?`)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Record{}, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.Record{}, fmt.Errorf("%w: get record: %v", common.ErrDatabase, err)
	}
	return rec, nil
}

func (s *SQLStore) GetDocument(ctx context.Context, recordID uuid.UUID) (*entity.RawDocument, error) {
	q := s.dialect.rebind(`SELECT file_name, mime_type, data FROM committee_documents WHERE record_id = ?`)
	var doc entity.RawDocument
	err := s.db.QueryRowContext(ctx, q, recordID.String()).Scan(&doc.FileName, &doc.MimeType, &doc.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document of record %s: %w", recordID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %v", common.ErrDatabase, err)
	}
	return &doc, nil
}

func (s *SQLStore) ListBatch(ctx context.Context, batchID string) ([]entity.Record, error) {
	q := s.dialect.rebind(`SELECT ` + recordColumns + ` FROM committee_records
		WHERE batch_id = ? AND superseded_by = ''
		ORDER BY position, created_at`)
	rows, err := s.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: list batch: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", common.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list batch: %v", common.ErrDatabase, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}
	return out, nil
}

func (s *SQLStore) Supersede(ctx context.Context, oldID uuid.UUID, rec entity.Record, doc *entity.RawDocument) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin supersede: %v", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// a record is superseded at most once
	q := s.dialect.rebind(`UPDATE committee_records SET superseded_by = ? WHERE id = ? AND superseded_by = ''`)
	res, err := tx.ExecContext(ctx, q, rec.ID.String(), oldID.String())
	if err != nil {
		return fmt.Errorf("%w: supersede: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.supersedeConflict(ctx, tx, oldID)
	}
	if err = s.saveDocument(ctx, tx, rec.ID, doc); err != nil {
		return err
	}
	if err = s.saveRecord(ctx, tx, rec); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit supersede: %v", common.ErrDatabase, err)
	}
	return nil
}

// supersedeConflict explains why the guarded update matched no row.
func (s *SQLStore) supersedeConflict(ctx context.Context, tx *sql.Tx, oldID uuid.UUID) error {
	q := s.dialect.rebind(`SELECT superseded_by FROM committee_records WHERE id = ?`)
	var by string
	err := tx.QueryRowContext(ctx, q, oldID.String()).Scan(&by)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %s: %w", oldID, common.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: supersede: %v", common.ErrDatabase, err)
	}
	return common.NewAppError(common.CodeStatus,
		fmt.Sprintf("record %s was already resubmitted as %s", oldID, by), common.ErrInvalidInput)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	s.logger.Info("closing database connections", "driver", s.dialect.name)
	err := s.db.Close()
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (entity.Record, error) {
	var (
		rec                        entity.Record
		id, status                 string
		fields, decisions          string
		created, started, finished string
		supersededBy               string
	)
	err := row.Scan(&id, &rec.BatchID, &rec.Position, &rec.FileName, &status, &rec.ErrorMessage,
		&rec.Strategy, &rec.Readability, &rec.Degraded, &fields, &decisions, &created, &started, &finished,
		&supersededBy)
	if err != nil {
		return rec, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return rec, fmt.Errorf("record id: %w", err)
	}
	rec.Status = constants.ProcessingStatus(status)
	rec.Fields = schema.Fields{}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return rec, fmt.Errorf("record fields: %w", err)
	}
	if err := json.Unmarshal([]byte(decisions), &rec.Decisions); err != nil {
		return rec, fmt.Errorf("record decisions: %w", err)
	}
	if len(rec.Decisions) == 0 {
		rec.Decisions = nil
	}
	if t := parseTime(created); t != nil {
		rec.CreatedAt = *t
	}
	rec.StartedAt = parseTime(started)
	rec.FinishedAt = parseTime(finished)
	if supersededBy != "" {
		by, err := uuid.Parse(supersededBy)
		if err != nil {
			return rec, fmt.Errorf("superseded_by: %w", err)
		}
		rec.SupersededBy = &by
	}
	return rec, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
