// Package state persists the subject index. The index is a cache over
// the data root: every row can be rebuilt from the directory tree, so
// losing the database loses history but never data.
//
// Note: Core types are defined in pkg/core. This package re-exports
// them via type aliases so callers that already import state do not
// need a second import.
package state

import (
	"fmt"
	"log/slog"

	"github.com/fraser29/zfmrf/pkg/core"
)

// Type aliases for the shared index types defined in pkg/core.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// SubjectRecord is an alias for core.SubjectRecord.
	SubjectRecord = core.SubjectRecord

	// ActionRun is an alias for core.ActionRun.
	ActionRun = core.ActionRun

	// ActionRunStatus is an alias for core.ActionRunStatus.
	ActionRunStatus = core.ActionRunStatus
)

// Action run status re-exports.
const (
	ActionRunStatusRunning   = core.ActionRunStatusRunning
	ActionRunStatusCompleted = core.ActionRunStatusCompleted
	ActionRunStatusFailed    = core.ActionRunStatusFailed
)

// OpenStore opens and migrates an index store for the given driver.
// Supported drivers are "sqlite" and "pgx".
func OpenStore(driver, dsn string, logger *slog.Logger) (core.Store, error) {
	var st core.Store
	switch driver {
	case "sqlite", "":
		st = NewSQLiteStore(logger)
	case "pgx", "postgres":
		st = NewPostgresStore(logger)
	default:
		return nil, fmt.Errorf("unknown index driver: %s", driver)
	}

	if err := st.Open(dsn); err != nil {
		return nil, err
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
