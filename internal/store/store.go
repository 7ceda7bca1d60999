package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"transcriptgen/internal/domain"
	"transcriptgen/internal/events"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 50

// Store persists generation jobs and their results. Every mutation commits
// before returning and records a job event in the same transaction.
type Store struct {
	DB       *sql.DB
	EventLog events.Writer
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, EventLog: events.Writer{Now: time.Now}}
}

const jobColumns = `id,status,config,progress,total_records,completed_records,created_at,completed_at,error`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.GenerationJob, error) {
	var (
		j           domain.GenerationJob
		cfg         string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	err := row.Scan(&j.ID, &j.Status, &cfg, &j.Progress, &j.TotalRecords, &j.CompletedRecords, &j.CreatedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal([]byte(cfg), &j.Config); err != nil {
		return j, fmt.Errorf("decode config for job %s: %w", j.ID, err)
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.String
	}
	if errMsg.Valid {
		j.Error = &errMsg.String
	}
	return j, nil
}

// Create inserts a new job. A second job with the same id is ErrDuplicateID.
func (s *Store) Create(ctx context.Context, job domain.GenerationJob) error {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id=?`, job.ID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("job %s: %w", job.ID, ErrDuplicateID)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
			job.ID, job.Status, string(cfg), job.Progress, job.TotalRecords, job.CompletedRecords, job.CreatedAt,
			nullableStringPtr(job.CompletedAt), nullableStringPtr(job.Error))
		if isConstraint(err) {
			return fmt.Errorf("job %s: %w", job.ID, ErrDuplicateID)
		}
		if err != nil {
			return err
		}
		return s.EventLog.Append(ctx, tx, domain.EventJobCreated, job.ID, events.EventPayload{
			"industry":      job.Config.Industry,
			"total_records": job.TotalRecords,
		})
	})
}

func (s *Store) Get(ctx context.Context, id string) (domain.GenerationJob, error) {
	return scanJob(s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
}

// Update writes the mutable job fields: status, progress, completed count,
// completion time and error. Id and config are never touched. The status
// change is checked against the persisted status, terminal jobs reject every
// update, and a completed job must carry full progress and a completion time.
func (s *Store) Update(ctx context.Context, job domain.GenerationJob) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current domain.JobStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id=?`, job.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current.Terminal() || (current != job.Status && !current.CanTransition(job.Status)) {
			return fmt.Errorf("job %s: %s -> %s: %w", job.ID, current, job.Status, ErrInvalidTransition)
		}
		if job.Status == domain.JobStatusCompleted && (job.Progress != 100 || job.CompletedAt == nil) {
			return fmt.Errorf("job %s: completed needs progress 100 and a completion time: %w", job.ID, ErrInvalidTransition)
		}
		res, err := tx.ExecContext(ctx, `UPDATE jobs SET status=?,progress=?,completed_records=?,completed_at=?,error=? WHERE id=? AND status=?`,
			job.Status, job.Progress, job.CompletedRecords, nullableStringPtr(job.CompletedAt), nullableStringPtr(job.Error), job.ID, current)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("job %s changed concurrently: %w", job.ID, ErrInvalidTransition)
		}
		payload := events.EventPayload{
			"status":            job.Status,
			"progress":          job.Progress,
			"completed_records": job.CompletedRecords,
		}
		if job.Error != nil {
			payload["error"] = *job.Error
		}
		evt := domain.EventJobProgress
		if current != job.Status {
			evt = domain.EventForStatus(job.Status)
		}
		return s.EventLog.Append(ctx, tx, evt, job.ID, payload)
	})
}

// Claim atomically moves a pending job to running and returns it. A job that
// is no longer pending yields ErrInvalidTransition.
func (s *Store) Claim(ctx context.Context, id string) (domain.GenerationJob, error) {
	var job domain.GenerationJob
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE jobs SET status=? WHERE id=? AND status=?`,
			domain.JobStatusRunning, id, domain.JobStatusPending)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)); err != nil {
				return err
			}
			return fmt.Errorf("job %s is not pending: %w", id, ErrInvalidTransition)
		}
		job, err = scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id))
		if err != nil {
			return err
		}
		return s.EventLog.Append(ctx, tx, domain.EventJobRunning, id, events.EventPayload{
			"status":            job.Status,
			"progress":          job.Progress,
			"completed_records": job.CompletedRecords,
		})
	})
	return job, err
}

// SaveResults replaces the job's result payload. Terminal jobs are immutable.
func (s *Store) SaveResults(ctx context.Context, id string, results []domain.Transcript) error {
	if results == nil {
		results = []domain.Transcript{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current domain.JobStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id=?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if current.Terminal() {
			return fmt.Errorf("job %s is %s: %w", id, current, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET results=? WHERE id=?`, string(data), id); err != nil {
			return err
		}
		return s.EventLog.Append(ctx, tx, domain.EventJobResultsSaved, id, events.EventPayload{"count": len(results)})
	})
}

// GetResults returns the saved transcripts, or nil if none were saved yet.
func (s *Store) GetResults(ctx context.Context, id string) ([]domain.Transcript, error) {
	var payload sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT results FROM jobs WHERE id=?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !payload.Valid {
		return nil, nil
	}
	var out []domain.Transcript
	if err := json.Unmarshal([]byte(payload.String), &out); err != nil {
		return nil, fmt.Errorf("decode results for job %s: %w", id, err)
	}
	return out, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.GenerationJob, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// ListByStatus returns jobs in status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.GenerationJob, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status=? ORDER BY created_at ASC, rowid ASC`, status)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.GenerationJob, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.GenerationJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// Delete removes the job and its results. It reports whether a job existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		deleted = true
		return s.EventLog.Append(ctx, tx, domain.EventJobDeleted, id, nil)
	})
	return deleted, err
}

// Events returns a job's events oldest first. Events outlive their job.
func (s *Store) Events(ctx context.Context, jobID string, limit int) ([]domain.JobEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryEvents(ctx, `SELECT id,ts,type,job_id,payload_json FROM job_events WHERE job_id=? ORDER BY id ASC LIMIT ?`, jobID, limit)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (s *Store) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.JobEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryEvents(ctx, `SELECT id,ts,type,job_id,payload_json FROM job_events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event ID.
func (s *Store) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM job_events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]domain.JobEvent, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.JobEvent{}
	for rows.Next() {
		var e domain.JobEvent
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.JobID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
