package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fraser29/zfmrf/pkg/core"
)

// SQLiteStore implements core.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite index store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create index directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// Every pooled connection to :memory: would otherwise get its own
	// empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("opened subject index", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the database schema up to date.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return migrateUp(s.db, "sqlite")
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// --- Subject operations ---

// UpsertSubject inserts or updates an indexed subject.
func (s *SQLiteStore) UpsertSubject(rec *core.SubjectRecord) error {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
func (s *SQLiteStore) GetSubject(subjID string) (*core.SubjectRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at
		 FROM subjects WHERE subject_id = ?`, subjID)

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
func (s *SQLiteStore) ListSubjects() ([]*core.SubjectRecord, error) {
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
// exam ID contains the query string.
func (s *SQLiteStore) SearchSubjects(nameQuery string) ([]*core.SubjectRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	pattern := "%" + nameQuery + "%"
	rows, err := s.db.Query(
		`SELECT subject_id, patient_name, patient_id, study_date, study_uid, exam_id, station_name, dicom_count, scanned_at, updated_at
		 FROM subjects
		 WHERE subject_id LIKE ? OR patient_name LIKE ? OR patient_id LIKE ? OR exam_id LIKE ?
		 ORDER BY subject_id`,
		pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search subjects: %w", err)
	}
	defer rows.Close()

	return collectSubjects(rows)
}

// DeleteSubject removes a subject and its action history from the index.
func (s *SQLiteStore) DeleteSubject(subjID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if _, err := s.db.Exec(`DELETE FROM action_runs WHERE subject_id = ?`, subjID); err != nil {
		return fmt.Errorf("failed to delete action runs: %w", err)
	}
	res, err := s.db.Exec(`DELETE FROM subjects WHERE subject_id = ?`, subjID)
	if err != nil {
		return fmt.Errorf("failed to delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrSubjectNotFound, subjID)
	}
	return nil
}

// --- Action run operations ---

// CreateActionRun records the start of an action execution.
func (s *SQLiteStore) CreateActionRun(subjID, action string) (*core.ActionRun, error) {
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

	s.logger.Debug("creating action run",
		slog.String("id", run.ID),
		slog.String("subject", subjID),
		slog.String("action", action))

	_, err := s.db.Exec(
		`INSERT INTO action_runs (id, subject_id, action, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SubjectID, run.Action, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create action run: %w", err)
	}

	return run, nil
}

// GetActionRun retrieves an action run by ID.
func (s *SQLiteStore) GetActionRun(id string) (*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE id = ?`, id)

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
func (s *SQLiteStore) CompleteActionRun(id string, status core.ActionRunStatus, detail, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.Exec(
		`UPDATE action_runs SET status = ?, detail = ?, completed_at = ?, error = ? WHERE id = ?`,
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
func (s *SQLiteStore) ListActionRuns(subjID string) ([]*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE subject_id = ? ORDER BY started_at DESC, id`, subjID)
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
func (s *SQLiteStore) LatestActionRun(subjID, action string) (*core.ActionRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, subject_id, action, status, detail, started_at, completed_at, error
		 FROM action_runs WHERE subject_id = ? AND action = ?
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

// --- Row scanning helpers ---

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubject(sc scanner) (*core.SubjectRecord, error) {
	rec := &core.SubjectRecord{}
	var scannedAt sql.NullTime

	err := sc.Scan(&rec.SubjectID, &rec.PatientName, &rec.PatientID, &rec.StudyDate,
		&rec.StudyUID, &rec.ExamID, &rec.StationName, &rec.DICOMCount,
		&scannedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scannedAt.Valid {
		rec.ScannedAt = scannedAt.Time
	}
	return rec, nil
}

func collectSubjects(rows *sql.Rows) ([]*core.SubjectRecord, error) {
	var recs []*core.SubjectRecord
	for rows.Next() {
		rec, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanActionRun(sc scanner) (*core.ActionRun, error) {
	run := &core.ActionRun{}
	var completedAt sql.NullTime
	var detail, errMsg sql.NullString

	err := sc.Scan(&run.ID, &run.SubjectID, &run.Action, &run.Status,
		&detail, &run.StartedAt, &completedAt, &errMsg)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Detail = detail.String
	run.Error = errMsg.String
	return run, nil
}
