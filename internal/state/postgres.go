package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fraser29/zfmrf/pkg/core"
)

// PostgresStore implements core.Store using PostgreSQL via pgx. Labs
// that share one index across workstations point every client at the
// same database instead of a sqlite file on a network share.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres index store instance.
func NewPostgresStore(logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{logger: logger}
}

// Open opens a connection using a postgres:// DSN.
func (s *PostgresStore) Open(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres database: %w", err)
	}

	s.db = db
	s.logger.Debug("opened subject index", slog.String("driver", "pgx"))
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the database schema up to date.
func (s *PostgresStore) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return migrateUp(s.db, "postgres")
}

// UpsertSubject inserts or updates an indexed subject.
func (s *PostgresStore) UpsertSubject(rec *core.SubjectRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if rec.SubjectID == "" {
		return fmt.Errorf("subject record requires a subject ID")
	}

	scannedAt := sql.NullTime{Time: rec.ScannedAt.UTC(), Valid: !rec.ScannedAt.IsZero()}
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO subjects (subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   patient_name = excluded.patient_name,
		   patient_id   = excluded.patient_id,
		   study_date   = excluded.study_date,
		   study_uid    = excluded.study_uid,
		   exam_id      = excluded.exam_id,
		   station_name = excluded.station_name,
		   dicom_count  = excluded.dicom_count,
		   scanned_at   = excluded.scanned_at,
		   updated_at   = excluded.updated_at`,
		rec.SubjectID, rec.PatientName, rec.PatientID, rec.StudyDate, rec.StudyUID,
		rec.ExamID, rec.StationName, rec.DICOMCount, scannedAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subject: %w", err)
	}

	rec.UpdatedAt = now
	s.logger.Debug("indexed subject", slog.String("subject", rec.SubjectID))
	return nil
}

// GetSubject retrieves an indexed subject by ID.
func (s *PostgresStore) GetSubject(subjID string) (*core.SubjectRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at
		 FROM subjects WHERE subject_id = $1`, subjID)

	rec, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSubjectNotFound, subjID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	return rec, nil
}

// ListSubjects returns all indexed subjects ordered by ID.
func (s *PostgresStore) ListSubjects() ([]*core.SubjectRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at
		 FROM subjects ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	return collectSubjects(rows)
}

// SearchSubjects returns subjects whose ID, patient name, patient ID or
// exam ID contains the query string. Matching is case-insensitive.
func (s *PostgresStore) SearchSubjects(nameQuery string) ([]*core.SubjectRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	pattern := "%" + nameQuery + "%"
	rows, err := s.db.Query(
		`SELECT subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at
		 FROM subjects
		 WHERE subject_id ILIKE $1 OR patient_name ILIKE $1 OR patient_id ILIKE $1 OR exam_id ILIKE $1
		 ORDER BY subject_id`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search subjects: %w", err)
	}
	defer rows.Close()

	return collectSubjects(rows)
}

// DeleteSubject removes a subject and its action history from the index.
func (s *PostgresStore) DeleteSubject(subjID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if _, err := s.db.Exec(`DELETE FROM action_runs WHERE subject_id = $1`, subjID); err != nil {
		return fmt.Errorf("failed to delete action runs: %w", err)
	}
	res, err := s.db.Exec(`DELETE FROM subjects WHERE subject_id = $1`, subjID)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrSubjectNotFound, subjID)
	}
	return nil
}

// CreateActionRun records the start of an action execution.
func (s *PostgresStore) CreateActionRun(subjID, action string) (*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &core.ActionRun{
		ID:        generateID(),
		SubjectID: subjID,
		Action:    action,
		Status:    core.ActionRunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO action_runs (id, subject_id, action, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.SubjectID, run.Action, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action run: %w", err)
	}

	return run, nil
}

// GetActionRun retrieves an action run by ID.
func (s *PostgresStore) GetActionRun(id string) (*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE id = $1`, id)

	run, err := scanActionRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action run: %w", err)
	}
	return run, nil
}

// CompleteActionRun marks an action run as finished.
func (s *PostgresStore) CompleteActionRun(id string, status core.ActionRunStatus, detail, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE action_runs SET status = $1, detail = $2, completed_at = $3, error = $4 WHERE id = $5`,
		status, detail, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete action run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("action run not found: %s", id)
	}
	return nil
}

// ListActionRuns returns a subject's action history, newest first.
func (s *PostgresStore) ListActionRuns(subjID string) ([]*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE subject_id = $1 ORDER BY started_at DESC, id`, subjID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action runs: %w", err)
	}
	defer rows.Close()

	var runs []*core.ActionRun
	for rows.Next() {
		run, err := scanActionRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestActionRun returns the most recent run of an action for a
// subject, or nil when the action has never been run.
func (s *PostgresStore) LatestActionRun(subjID, action string) (*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE subject_id = $1 AND action = $2
		 ORDER BY started_at DESC, id LIMIT 1`, subjID, action)

	run, err := scanActionRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest action run: %w", err)
	}
	return run, nil
}
