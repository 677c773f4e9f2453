// Package actions runs registry actions against subjects and records each
// execution in the index.
package actions

import (
	"context"
	"log/slog"

	"github.com/fraser29/zfmrf/pkg/core"
	"github.com/fraser29/zfmrf/pkg/zfmrf"
)

// Execute runs a named action against a subject, recording the run in the
// index when a store is available. The returned run carries the final
// status. The returned error is the action's own failure; the index is a
// cache over the data root, so a recording failure is logged and does not
// block the action.
func Execute(ctx context.Context, st core.Store, s *zfmrf.Subject, name string, logger *slog.Logger) (*core.ActionRun, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := zfmrf.ActionByName(name); err != nil {
		return nil, err
	}

	var run *core.ActionRun
	if st != nil {
		var err error
		run, err = st.CreateActionRun(s.ID, name)
		if err != nil {
			logger.Warn("could not record action run", "subject", s.ID, "action", name, "error", err)
			run = nil
		}
	}

	detail, runErr := zfmrf.RunAction(ctx, s, name)

	if run != nil {
		status := core.ActionRunStatusCompleted
		errMsg := ""
		if runErr != nil {
			status = core.ActionRunStatusFailed
			errMsg = runErr.Error()
		}
		if cerr := st.CompleteActionRun(run.ID, status, detail, errMsg); cerr != nil {
			logger.Warn("could not complete action run record", "subject", s.ID, "action", name, "error", cerr)
		} else if updated, gerr := st.GetActionRun(run.ID); gerr == nil {
			run = updated
		}
	}
	return run, runErr
}
