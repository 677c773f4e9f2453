package core

import "time"

// Store defines the interface for subject index operations. The index is a
// cache over the directory tree: it can always be rebuilt by rescanning, so
// rows carry no data that does not also live on disk.
type Store interface {
	Open(dsn string) error
	Close() error
	InitSchema() error

	// Subject operations
	UpsertSubject(rec *SubjectRecord) error
	GetSubject(subjID string) (*SubjectRecord, error)
	ListSubjects() ([]*SubjectRecord, error)
	SearchSubjects(nameQuery string) ([]*SubjectRecord, error)
	DeleteSubject(subjID string) error

	// Action run operations
	CreateActionRun(subjID, action string) (*ActionRun, error)
	GetActionRun(id string) (*ActionRun, error)
	CompleteActionRun(id string, status ActionRunStatus, detail, errMsg string) error
	ListActionRuns(subjID string) ([]*ActionRun, error)
	LatestActionRun(subjID, action string) (*ActionRun, error)
}

// SubjectRecord is one indexed subject directory.
type SubjectRecord struct {
	SubjectID   string
	PatientName string
	PatientID   string
	StudyDate   string // DICOM DA form, e.g. 20180426
	StudyUID    string
	ExamID      string
	StationName string
	DICOMCount  int64
	ScannedAt   time.Time
	UpdatedAt   time.Time
}

// ActionRunStatus represents the status of an action execution.
type ActionRunStatus string

// Action run status constants.
const (
	ActionRunStatusRunning   ActionRunStatus = "running"
	ActionRunStatusCompleted ActionRunStatus = "completed"
	ActionRunStatusFailed    ActionRunStatus = "failed"
)

// ActionRun records a single execution of a subject action.
type ActionRun struct {
	ID          string
	SubjectID   string
	Action      string
	Status      ActionRunStatus
	Detail      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// Duration returns the wall time of a completed run, or zero while running.
func (r *ActionRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
